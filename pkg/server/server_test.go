package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/projectform/internal/config"
	"github.com/vango-dev/projectform/pkg/imagedelete"
	"github.com/vango-dev/projectform/pkg/metrics"
	"github.com/vango-dev/projectform/pkg/protocol"
	"github.com/vango-dev/projectform/pkg/upload"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n', 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

func pngBytes(extra int) []byte {
	return append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{1}, extra)...)
}

// wireMessage decodes any server message.
type wireMessage struct {
	Type      string                `json:"type"`
	Status    string                `json:"status"`
	SessionID string                `json:"sessionId"`
	MaxFiles  int                   `json:"maxFiles"`
	Op        string                `json:"op"`
	Target    string                `json:"target"`
	Files     []protocol.FileView   `json:"files"`
	Preview   *protocol.PreviewView `json:"preview"`
	Classes   []string              `json:"classes"`
	Message   string                `json:"message"`
	ID        uint64                `json:"id"`
	Busy      bool                  `json:"busy"`
	Options   json.RawMessage       `json:"options"`
	Tags      []string              `json:"tags"`
	Code      string                `json:"code"`
	Fatal     bool                  `json:"fatal"`
}

type deleteRequest struct {
	path      string
	csrf      string
	requested string
	sessionID string
}

type testEnv struct {
	t       *testing.T
	srv     *Server
	http    *httptest.Server
	backend *httptest.Server

	mu       sync.Mutex
	deletes  []deleteRequest
	response string
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	env := &testEnv{t: t, response: `{"success": true}`}

	env.backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := deleteRequest{
			path:      r.URL.Path,
			csrf:      r.Header.Get("X-CSRFToken"),
			requested: r.Header.Get("X-Requested-With"),
		}
		if c, err := r.Cookie("sessionid"); err == nil {
			req.sessionID = c.Value
		}
		env.mu.Lock()
		env.deletes = append(env.deletes, req)
		body := env.response
		env.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	}))
	t.Cleanup(env.backend.Close)

	store, err := upload.NewDiskStore(t.TempDir(), 32<<20)
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Store = store
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	backendURL := env.backend.URL
	cfg.DeleteURL = func(id string) string {
		return backendURL + "/projects/delete-image/" + url.PathEscape(id) + "/"
	}
	if mutate != nil {
		mutate(cfg)
	}

	env.srv, err = New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.http = httptest.NewServer(env.srv.Handler())
	t.Cleanup(func() {
		env.http.Close()
		env.srv.Shutdown(context.Background())
	})
	return env
}

func (env *testEnv) setResponse(body string) {
	env.mu.Lock()
	env.response = body
	env.mu.Unlock()
}

func (env *testEnv) deleteRequests() []deleteRequest {
	env.mu.Lock()
	defer env.mu.Unlock()
	return append([]deleteRequest(nil), env.deletes...)
}

// upload posts content and returns its temp id.
func (env *testEnv) upload(name string, content []byte) string {
	env.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		env.t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	resp, err := http.Post(env.http.URL+"/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		env.t.Fatalf("POST /upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		env.t.Fatalf("POST /upload: %d %s", resp.StatusCode, body)
	}
	var out upload.Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		env.t.Fatalf("decode upload response: %v", err)
	}
	return out.TempID
}

func (env *testEnv) wsURL() string {
	return "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
}

// dial opens a session and returns the connection and the welcome.
func (env *testEnv) dial(hello protocol.Hello, header http.Header) (*websocket.Conn, wireMessage) {
	env.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), header)
	if err != nil {
		env.t.Fatalf("Dial: %v", err)
	}
	env.t.Cleanup(func() { conn.Close() })

	hello.Type = protocol.TypeHello
	if hello.Version == 0 {
		hello.Version = protocol.Version
	}
	writeJSON(env.t, conn, hello)
	return conn, readMessage(env.t, conn)
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) wireMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg wireMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return msg
}

// readOps reads n messages and indexes them by op name (or "error").
func readOps(t *testing.T, conn *websocket.Conn, n int) map[string]wireMessage {
	t.Helper()
	got := make(map[string]wireMessage, n)
	for i := 0; i < n; i++ {
		msg := readMessage(t, conn)
		key := msg.Op
		if msg.Type == "error" {
			key = "error"
		}
		got[key] = msg
	}
	return got
}

func expectOp(t *testing.T, conn *websocket.Conn, op string) wireMessage {
	t.Helper()
	msg := readMessage(t, conn)
	if msg.Op != op {
		t.Fatalf("got %+v, want op %q", msg, op)
	}
	return msg
}

func expectError(t *testing.T, conn *websocket.Conn, code string) wireMessage {
	t.Helper()
	msg := readMessage(t, conn)
	if msg.Type != "error" || msg.Code != code {
		t.Fatalf("got %+v, want error %s", msg, code)
	}
	return msg
}

func event(name, target string, files ...string) protocol.Event {
	return protocol.Event{Type: protocol.TypeEvent, Name: name, Target: target, Files: files}
}

func click(target, ref string) protocol.Event {
	return protocol.Event{Type: protocol.TypeEvent, Name: protocol.EventClick, Target: target, Ref: ref}
}

var uploadPage = protocol.Hello{Elements: []string{ElementFileInput, ElementPreviews, ElementDropZone}}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, err := http.Get(env.http.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Error("New without a store should fail")
	}
}

func TestHandshake(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxFiles = 3 })

	_, welcome := env.dial(uploadPage, nil)
	if welcome.Type != "welcome" || welcome.Status != string(protocol.HandshakeOK) {
		t.Fatalf("welcome = %+v", welcome)
	}
	if welcome.SessionID == "" || welcome.MaxFiles != 3 {
		t.Errorf("welcome = %+v", welcome)
	}
}

func TestHandshakeRejections(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		send   any
		status protocol.HandshakeStatus
	}{
		{
			name:   "event before hello",
			send:   event(protocol.EventChange, ElementFileInput),
			status: protocol.HandshakeInvalidFormat,
		},
		{
			name:   "malformed",
			send:   map[string]any{"type": "hello", "images": []string{""}},
			status: protocol.HandshakeInvalidFormat,
		},
		{
			name:   "version mismatch",
			send:   protocol.Hello{Type: protocol.TypeHello, Version: 99},
			status: protocol.HandshakeVersionMismatch,
		},
		{
			name:   "images without token",
			send:   protocol.Hello{Type: protocol.TypeHello, Version: protocol.Version, Images: []string{"12"}},
			status: protocol.HandshakeInvalidCSRF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(env.wsURL(), nil)
			if err != nil {
				t.Fatal(err)
			}
			defer conn.Close()
			writeJSON(t, conn, tt.send)
			if msg := readMessage(t, conn); msg.Status != string(tt.status) {
				t.Errorf("status = %q, want %q", msg.Status, tt.status)
			}
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); err == nil {
				t.Error("connection stayed open after rejection")
			}
		})
	}
}

func TestHandshakeTokenFromCookie(t *testing.T) {
	env := newTestEnv(t, nil)
	header := http.Header{"Cookie": {"csrftoken=fromcookie"}}
	_, welcome := env.dial(protocol.Hello{Images: []string{"12"}}, header)
	if welcome.Status != string(protocol.HandshakeOK) {
		t.Fatalf("welcome = %+v", welcome)
	}
}

func TestStageAndRemoveFile(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.upload("cover.png", pngBytes(64))
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, id))

	set := expectOp(t, conn, string(protocol.OpSetFiles))
	if len(set.Files) != 1 || set.Files[0].TempID != id || set.Files[0].Name != "cover.png" || set.Files[0].MIMEType != "image/png" {
		t.Fatalf("setFiles = %+v", set.Files)
	}

	appended := expectOp(t, conn, string(protocol.OpAppendPreview))
	if appended.Target != ElementPreviews || appended.Preview == nil {
		t.Fatalf("appendPreview = %+v", appended)
	}
	if appended.Preview.TempID != id || !strings.HasPrefix(appended.Preview.Src, "data:image/png;base64,") {
		t.Errorf("preview = %+v", appended.Preview)
	}

	writeJSON(t, conn, click(protocol.TargetPreviewRemove, appended.Preview.ID))
	ops := readOps(t, conn, 2)
	if removed, ok := ops[string(protocol.OpRemovePreview)]; !ok || removed.Preview.ID != appended.Preview.ID {
		t.Errorf("removePreview = %+v", ops)
	}
	if set, ok := ops[string(protocol.OpSetFiles)]; !ok || len(set.Files) != 0 {
		t.Errorf("setFiles after remove = %+v", ops)
	}

	// The entry is gone; a second click names an unknown preview.
	writeJSON(t, conn, click(protocol.TargetPreviewRemove, appended.Preview.ID))
	expectError(t, conn, "P402")
}

func TestRejectionsAreAlerted(t *testing.T) {
	env := newTestEnv(t, nil)
	big := env.upload("big.png", pngBytes(6<<20))
	text := env.upload("notes.txt", []byte("just some notes\n"))
	good := env.upload("ok.png", pngBytes(8))
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, big, text, good))

	ops := readOps(t, conn, 2)
	set, ok := ops[string(protocol.OpSetFiles)]
	if !ok || len(set.Files) != 1 || set.Files[0].TempID != good {
		t.Fatalf("setFiles = %+v", ops)
	}
	alert := ops[string(protocol.OpAlert)]
	want := "File 'big.png' is too large. Maximum size is 5MB.\nFile 'notes.txt' is not an image."
	if alert.Message != want {
		t.Errorf("alert = %q, want %q", alert.Message, want)
	}
}

func TestCapacityRejectsWholeBatch(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxFiles = 2 })
	ids := []string{
		env.upload("a.png", pngBytes(1)),
		env.upload("b.png", pngBytes(2)),
		env.upload("c.png", pngBytes(3)),
	}
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, ids...))
	alert := expectOp(t, conn, string(protocol.OpAlert))
	if alert.Message != "You can only upload 2 more file(s). Maximum of 2 files allowed." {
		t.Errorf("alert = %q", alert.Message)
	}
}

func TestSameTempIDIsSameFile(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.upload("a.png", pngBytes(4))
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, id))
	expectOp(t, conn, string(protocol.OpSetFiles))
	expectOp(t, conn, string(protocol.OpAppendPreview))

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, id))
	alert := expectOp(t, conn, string(protocol.OpAlert))
	if alert.Message != "File 'a.png' is already added." {
		t.Errorf("alert = %q", alert.Message)
	}
}

func TestDropZone(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.upload("dropped.png", pngBytes(16))
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventDragEnter, ElementDropZone))
	add := expectOp(t, conn, string(protocol.OpAddClass))
	if add.Target != ElementDropZone || strings.Join(add.Classes, " ") != "border-primary-500 bg-blue-50" {
		t.Errorf("addClass = %+v", add)
	}

	// Already active: no second op.
	writeJSON(t, conn, event(protocol.EventDragOver, ElementDropZone))
	writeJSON(t, conn, event(protocol.EventDrop, ElementDropZone, id))
	expectOp(t, conn, string(protocol.OpRemoveClass))
	set := expectOp(t, conn, string(protocol.OpSetFiles))
	if len(set.Files) != 1 || set.Files[0].Name != "dropped.png" {
		t.Errorf("setFiles = %+v", set.Files)
	}
}

func TestDropOfUnknownFileClearsHighlight(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(uploadPage, nil)

	writeJSON(t, conn, event(protocol.EventDragEnter, ElementDropZone))
	expectOp(t, conn, string(protocol.OpAddClass))

	writeJSON(t, conn, event(protocol.EventDrop, ElementDropZone, upload.NewTempID()))
	expectOp(t, conn, string(protocol.OpRemoveClass))
	expectError(t, conn, "P402")
}

func TestOversizedBatchIsCapacityAlert(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(uploadPage, nil)
	want := "You can only upload 5 more file(s). Maximum of 5 files allowed."

	ids := make([]string, 65)
	for i := range ids {
		ids[i] = upload.NewTempID()
	}

	writeJSON(t, conn, event(protocol.EventDragEnter, ElementDropZone))
	expectOp(t, conn, string(protocol.OpAddClass))
	writeJSON(t, conn, event(protocol.EventDrop, ElementDropZone, ids...))
	expectOp(t, conn, string(protocol.OpRemoveClass))
	if alert := expectOp(t, conn, string(protocol.OpAlert)); alert.Message != want {
		t.Errorf("drop alert = %q, want %q", alert.Message, want)
	}

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, ids[:6]...))
	if alert := expectOp(t, conn, string(protocol.OpAlert)); alert.Message != want {
		t.Errorf("change alert = %q, want %q", alert.Message, want)
	}

	// Nothing was staged: a valid file still fits.
	id := env.upload("a.png", pngBytes(4))
	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, id))
	if set := expectOp(t, conn, string(protocol.OpSetFiles)); len(set.Files) != 1 {
		t.Errorf("setFiles = %+v", set.Files)
	}
}

func TestCompletionsSurviveSmallQueue(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.MaxEventQueue = 1 })
	ids := []string{
		env.upload("a.png", pngBytes(1)),
		env.upload("b.png", pngBytes(2)),
		env.upload("c.png", pngBytes(3)),
		env.upload("d.png", pngBytes(4)),
	}
	conn, _ := env.dial(protocol.Hello{
		CSRFToken: "tok",
		Elements:  uploadPage.Elements,
		Images:    []string{"12"},
	}, nil)

	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, ids...))
	expectOp(t, conn, string(protocol.OpSetFiles))
	previews := make(map[string]bool)
	for i := 0; i < len(ids); i++ {
		p := expectOp(t, conn, string(protocol.OpAppendPreview))
		previews[p.Preview.TempID] = true
	}
	if len(previews) != len(ids) {
		t.Errorf("previews for %d of %d files", len(previews), len(ids))
	}

	writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
	confirm := expectOp(t, conn, string(protocol.OpConfirm))
	writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: confirm.ID, OK: true})
	expectOp(t, conn, string(protocol.OpSetBusy))
	expectOp(t, conn, string(protocol.OpDetach))
}

func TestOptionalElements(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.upload("a.png", pngBytes(4))

	// No drop zone on the page.
	conn, _ := env.dial(protocol.Hello{Elements: []string{ElementFileInput, ElementPreviews}}, nil)
	writeJSON(t, conn, event(protocol.EventDrop, ElementDropZone, id))
	expectError(t, conn, "P402")

	// No upload elements at all.
	conn, _ = env.dial(protocol.Hello{}, nil)
	writeJSON(t, conn, event(protocol.EventChange, ElementFileInput, id))
	expectError(t, conn, "P402")
}

func TestUnknownTargets(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(uploadPage, nil)

	for _, ev := range []protocol.Event{
		event(protocol.EventChange, ElementFileInput, upload.NewTempID()),
		event(protocol.EventChange, ElementFileInput, "../../etc/passwd"),
		click("somewhere-else", "x"),
		click(protocol.TargetDeleteImage, "99"),
		event(protocol.EventChange, ElementDropZone),
	} {
		writeJSON(t, conn, ev)
		expectError(t, conn, "P402")
	}

	writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: 42, OK: true})
	expectError(t, conn, "P402")

	writeJSON(t, conn, map[string]any{"type": "event", "name": "keydown", "target": "x"})
	msg := expectError(t, conn, "P401")
	if msg.Fatal {
		t.Error("malformed message should not be fatal")
	}
}

func TestDeleteImage(t *testing.T) {
	env := newTestEnv(t, nil)
	header := http.Header{"Cookie": {"sessionid=abc"}}
	conn, _ := env.dial(protocol.Hello{CSRFToken: "tok", Images: []string{"12", "13"}}, header)

	writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
	confirm := expectOp(t, conn, string(protocol.OpConfirm))
	if confirm.Message != imagedelete.ConfirmMessage || confirm.ID == 0 {
		t.Fatalf("confirm = %+v", confirm)
	}

	writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: confirm.ID, OK: true})
	busy := expectOp(t, conn, string(protocol.OpSetBusy))
	if busy.Target != "12" || !busy.Busy {
		t.Errorf("setBusy = %+v", busy)
	}
	detach := expectOp(t, conn, string(protocol.OpDetach))
	if detach.Target != "12" {
		t.Errorf("detach = %+v", detach)
	}

	reqs := env.deleteRequests()
	if len(reqs) != 1 {
		t.Fatalf("backend got %d requests", len(reqs))
	}
	want := deleteRequest{path: "/projects/delete-image/12/", csrf: "tok", requested: "XMLHttpRequest", sessionID: "abc"}
	if reqs[0] != want {
		t.Errorf("request = %+v, want %+v", reqs[0], want)
	}

	// A removed image ignores further clicks.
	writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
	writeJSON(t, conn, click(protocol.TargetDeleteImage, "13"))
	if next := expectOp(t, conn, string(protocol.OpConfirm)); next.ID == confirm.ID {
		t.Errorf("prompt id reused: %d", next.ID)
	}
}

func TestDeleteImageDeclined(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(protocol.Hello{CSRFToken: "tok", Images: []string{"12"}}, nil)

	writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
	confirm := expectOp(t, conn, string(protocol.OpConfirm))
	writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: confirm.ID, OK: false})

	// Back to idle: the next click prompts again and nothing was sent.
	writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
	expectOp(t, conn, string(protocol.OpConfirm))
	if n := len(env.deleteRequests()); n != 0 {
		t.Errorf("backend got %d requests", n)
	}
}

func TestDeleteImageFailures(t *testing.T) {
	tests := []struct {
		name     string
		response string
		alert    string
	}{
		{"declined by server", `{"success": false}`, "Failed to delete the image. Please try again."},
		{"unreadable body", `<html>oops</html>`, "An error occurred while deleting the image."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			env.setResponse(tt.response)
			conn, _ := env.dial(protocol.Hello{CSRFToken: "tok", Images: []string{"12"}}, nil)

			writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
			confirm := expectOp(t, conn, string(protocol.OpConfirm))
			writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: confirm.ID, OK: true})

			if busy := expectOp(t, conn, string(protocol.OpSetBusy)); !busy.Busy {
				t.Errorf("first setBusy = %+v", busy)
			}
			ops := readOps(t, conn, 2)
			if restored, ok := ops[string(protocol.OpSetBusy)]; !ok || restored.Busy {
				t.Errorf("control not restored: %+v", ops)
			}
			if alert := ops[string(protocol.OpAlert)]; alert.Message != tt.alert {
				t.Errorf("alert = %q, want %q", alert.Message, tt.alert)
			}

			// Failed allows another attempt.
			writeJSON(t, conn, click(protocol.TargetDeleteImage, "12"))
			expectOp(t, conn, string(protocol.OpConfirm))
		})
	}
}

func TestDeleteURLRelativeToOrigin(t *testing.T) {
	env := newTestEnv(t, func(c *Config) { c.DeleteURL = config.New().DeleteURL })
	conn, _ := env.dial(protocol.Hello{CSRFToken: "tok", Origin: env.backend.URL, Images: []string{"7"}}, nil)

	writeJSON(t, conn, click(protocol.TargetDeleteImage, "7"))
	confirm := expectOp(t, conn, string(protocol.OpConfirm))
	writeJSON(t, conn, protocol.Reply{Type: protocol.TypeReply, ID: confirm.ID, OK: true})
	expectOp(t, conn, string(protocol.OpSetBusy))
	expectOp(t, conn, string(protocol.OpDetach))

	if reqs := env.deleteRequests(); len(reqs) != 1 || reqs[0].path != "/projects/delete-image/7/" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestTagsInput(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(protocol.Hello{
		Elements: []string{"id_tech_stack"},
		Tags:     "Go, Rust,, Go ,PostgreSQL",
	}, nil)

	op := expectOp(t, conn, string(protocol.OpTagsInput))
	if op.Target != "id_tech_stack" {
		t.Errorf("target = %q", op.Target)
	}
	if got := strings.Join(op.Tags, "|"); got != "Go|Rust|PostgreSQL" {
		t.Errorf("tags = %q", got)
	}
	var opts map[string]any
	if err := json.Unmarshal(op.Options, &opts); err != nil {
		t.Fatal(err)
	}
	if opts["maxTags"] != float64(10) || opts["maxChars"] != float64(20) || opts["trimValue"] != true {
		t.Errorf("options = %v", opts)
	}
}

func TestSessionLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	env := newTestEnv(t, func(c *Config) { c.Metrics = m })

	env.upload("a.png", pngBytes(4))
	conn, _ := env.dial(uploadPage, nil)

	waitFor(t, func() bool { return env.srv.SessionCount() == 1 })
	conn.Close()
	waitFor(t, func() bool { return env.srv.SessionCount() == 0 })

	resp, err := http.Get(env.http.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	for _, want := range []string{"projectform_uploads_total 1", "projectform_active_sessions 0"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestShutdownClosesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	conn, _ := env.dial(uploadPage, nil)
	waitFor(t, func() bool { return env.srv.SessionCount() == 1 })

	if err := env.srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection open after shutdown")
	}
	if n := env.srv.SessionCount(); n != 0 {
		t.Errorf("sessions = %d", n)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
