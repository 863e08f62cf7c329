package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/future"
	"github.com/vango-dev/projectform/pkg/protocol"
	"github.com/vango-dev/projectform/pkg/upload"
)

// ErrSessionClosed resolves prompts that were pending when the session
// closed.
var ErrSessionClosed = stderrors.New("server: session closed")

// inbound is a decoded client message on its way to the event loop, with
// the metadata of the temp ids it references.
type inbound struct {
	msg   protocol.ClientMessage
	files map[string]*upload.File
	err   error

	// overCapacity marks a batch larger than MaxFiles. Its temp ids are
	// not looked up; the controller rejects it whole.
	overCapacity bool
}

// Session is one connected page. Its event loop goroutine owns the page
// state; all other goroutines reach it through Dispatch.
type Session struct {
	ID string

	server *Server
	conn   *websocket.Conn
	hello  *protocol.Hello
	logger *slog.Logger

	csrfToken string
	cookies   []*http.Cookie
	origin    *url.URL

	// ctx carries the upgrade request's values and ends with the session.
	ctx    context.Context
	cancel context.CancelFunc

	events    chan inbound
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex

	// completions holds dispatched callbacks until the event loop runs
	// them. It is unbounded: a dropped completion would strand the state
	// machine waiting for it. wake signals that it is non-empty.
	dispatchMu  sync.Mutex
	completions []func()
	wake        chan struct{}

	// page is owned by the event loop.
	page *page
}

var _ future.Dispatcher = (*Session)(nil)

func newSession(srv *Server, conn *websocket.Conn, r *http.Request, hello *protocol.Hello, token string) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))

	origin := hello.Origin
	if origin == "" {
		origin = r.Header.Get("Origin")
	}
	var originURL *url.URL
	if u, err := url.Parse(origin); err == nil && u.IsAbs() {
		originURL = u
	}

	return &Session{
		ID:         id,
		server:     srv,
		conn:       conn,
		hello:      hello,
		logger:     srv.config.Logger.With("session_id", id),
		csrfToken:  token,
		cookies:    r.Cookies(),
		origin:     originURL,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan inbound, srv.config.MaxEventQueue),
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
}

// Start starts the session loops.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
	go s.eventLoop()
}

// readLoop decodes client messages and queues them for the event loop.
func (s *Session) readLoop() {
	defer s.Close()

	readTimeout := s.server.config.ReadTimeout
	s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Warn("read error", "error", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		msg, err := protocol.DecodeClient(data)
		if err != nil {
			s.sendError(err, false)
			continue
		}

		in := inbound{msg: msg}
		if e, ok := msg.(*protocol.Event); ok && len(e.Files) > 0 {
			if len(e.Files) > s.server.config.MaxFiles {
				in.overCapacity = true
			} else {
				in.files, in.err = s.statFiles(e.Files)
			}
		}
		s.queue(in)
	}
}

// statFiles looks up temp ids off the event loop.
func (s *Session) statFiles(ids []string) (map[string]*upload.File, error) {
	files := make(map[string]*upload.File, len(ids))
	for _, id := range ids {
		if _, ok := files[id]; ok {
			continue
		}
		f, err := s.server.config.Store.Stat(s.ctx, id)
		if err != nil {
			if stderrors.Is(err, upload.ErrNotFound) || stderrors.Is(err, upload.ErrInvalidID) {
				return nil, errors.New("P402").WithDetail(fmt.Sprintf("unknown temp id %q", id))
			}
			return nil, errors.New("P402").Wrap(err).WithDetail(fmt.Sprintf("temp id %q: %v", id, err))
		}
		files[id] = f
	}
	return files, nil
}

func (s *Session) queue(in inbound) {
	select {
	case s.events <- in:
	case <-s.done:
	default:
		s.logger.Warn("event queue full, dropping message")
		s.sendError(errors.New("P403"), false)
	}
}

// writeLoop sends heartbeat pings until the session closes.
func (s *Session) writeLoop() {
	ticker := time.NewTicker(s.server.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(s.server.config.WriteTimeout)
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debug("ping failed", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}

// eventLoop builds the page, then runs client messages and dispatched
// completions one at a time.
func (s *Session) eventLoop() {
	defer s.teardown()

	s.execute(func() { s.page = newPage(s) })
	if s.page == nil {
		s.Close()
		return
	}

	for {
		select {
		case in := <-s.events:
			s.execute(func() {
				if err := s.page.handle(in); err != nil {
					s.sendError(err, false)
				}
			})
		case <-s.wake:
			s.runCompletions()
		case <-s.done:
			return
		}
	}
}

// execute runs fn with panic recovery.
func (s *Session) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event loop panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

func (s *Session) teardown() {
	if s.page != nil {
		s.page.close()
	}
	s.logger.Info("session ended")
}

// Dispatch queues fn to run on the event loop. It is safe to call from any
// goroutine, including the event loop itself, and never blocks. Callbacks
// dispatched after Close are discarded.
func (s *Session) Dispatch(fn func()) {
	select {
	case <-s.done:
		return
	default:
	}

	s.dispatchMu.Lock()
	s.completions = append(s.completions, fn)
	s.dispatchMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// runCompletions runs the queued callbacks in dispatch order, including
// ones queued while running.
func (s *Session) runCompletions() {
	for {
		s.dispatchMu.Lock()
		batch := s.completions
		s.completions = nil
		s.dispatchMu.Unlock()
		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			select {
			case <-s.done:
				return
			default:
			}
			s.execute(fn)
		}
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancel()
		s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.conn.Close()
		s.server.removeSession(s)
	})
}

// send writes one server message. Write failures close the session.
func (s *Session) send(msg protocol.ServerMessage) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.Error("encode failed", "error", err)
		return
	}

	s.writeMu.Lock()
	select {
	case <-s.done:
		s.writeMu.Unlock()
		return
	default:
	}
	s.conn.SetWriteDeadline(time.Now().Add(s.server.config.WriteTimeout))
	err = s.conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()

	if err != nil {
		s.logger.Warn("write failed", "error", err)
		s.Close()
	}
}

// sendError reports err to the client, closing the session when fatal.
func (s *Session) sendError(err error, fatal bool) {
	if errors.HasCategory(err, errors.CategoryProtocol) {
		s.logger.Debug("client error", "error", err)
	} else {
		s.logger.Warn("session error", "error", err)
	}
	em := protocol.NewErrorMessage(err, fatal)
	s.server.config.Metrics.ProtocolError(em.Code)
	s.send(em)
	if fatal {
		s.Close()
	}
}

// Alert implements staged.Alerter and imagedelete.Alerter.
func (s *Session) Alert(message string) {
	s.send(protocol.Alert(message))
}

// deleteURL resolves the deletion endpoint of an image against the page
// origin.
func (s *Session) deleteURL(imageID string) string {
	raw := s.server.config.DeleteURL(imageID)
	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || s.origin == nil {
		return raw
	}
	return s.origin.ResolveReference(u).String()
}
