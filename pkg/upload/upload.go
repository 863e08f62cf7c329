package upload

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a temp file doesn't exist.
var ErrNotFound = errors.New("upload: file not found")

// ErrTooLarge is returned when a file exceeds the size limit.
var ErrTooLarge = errors.New("upload: file too large")

// ErrInvalidID is returned for temp ids that are not well formed.
var ErrInvalidID = errors.New("upload: invalid temp id")

// Store is the interface for upload storage backends.
type Store interface {
	// Save stores the uploaded bytes and returns a temp ID.
	Save(ctx context.Context, filename, contentType string, size int64, r io.Reader) (tempID string, err error)

	// Stat returns the metadata of a temp file.
	Stat(ctx context.Context, tempID string) (*File, error)

	// Open reads a temp file without consuming it.
	Open(ctx context.Context, tempID string) (io.ReadCloser, error)

	// Cleanup removes temp files older than maxAge and returns how many
	// were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int, error)
}

// File represents an uploaded file.
type File struct {
	// ID is the temp id.
	ID string

	// Filename is the original filename from the client.
	Filename string

	// ContentType is the sniffed MIME type of the bytes.
	ContentType string

	// Size is the file size in bytes.
	Size int64

	// CreatedAt is when the file was staged.
	CreatedAt time.Time

	// Path is the local filesystem path (DiskStore only).
	Path string
}

// Response is the JSON body returned by the upload handler.
type Response struct {
	TempID      string `json:"temp_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Config holds configuration for the upload handler.
type Config struct {
	// MaxRequestSize caps the request body in bytes. Default: 32 MiB.
	MaxRequestSize int64

	// OnSaved is called after each stored file. Optional.
	OnSaved func(resp Response)

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxRequestSize: 32 << 20,
	}
}

// sniffLen is how many leading bytes are inspected to detect the type.
const sniffLen = 3072

// Handler returns an http.Handler for file uploads.
// Mount it on your router: r.Post("/upload", upload.Handler(store))
//
// The handler expects a multipart form with a "file" field and answers:
//
//	{"temp_id": "...", "filename": "a.png", "content_type": "image/png", "size": 1024}
func Handler(store Store) http.Handler {
	return HandlerWithConfig(store, DefaultConfig())
}

// HandlerWithConfig returns an upload handler with custom configuration.
func HandlerWithConfig(store Store, config *Config) http.Handler {
	maxSize := config.MaxRequestSize
	if maxSize <= 0 {
		maxSize = DefaultConfig().MaxRequestSize
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "upload")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Limit the body before parsing.
		r.Body = http.MaxBytesReader(w, r.Body, maxSize)

		if err := r.ParseMultipartForm(maxSize); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to parse form", http.StatusBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "No file provided", http.StatusBadRequest)
			return
		}
		defer file.Close()

		head := make([]byte, sniffLen)
		n, err := io.ReadFull(file, head)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			http.Error(w, "Failed to read file", http.StatusBadRequest)
			return
		}
		head = head[:n]
		contentType := mimetype.Detect(head).String()
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			http.Error(w, "Failed to read file", http.StatusBadRequest)
			return
		}

		tempID, err := store.Save(r.Context(),
			header.Filename,
			contentType,
			header.Size,
			file,
		)
		if err != nil {
			if errors.Is(err, ErrTooLarge) {
				http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
				return
			}
			logger.Error("upload save failed", "filename", header.Filename, "error", err)
			http.Error(w, "Upload failed", http.StatusInternalServerError)
			return
		}

		resp := Response{
			TempID:      tempID,
			Filename:    header.Filename,
			ContentType: contentType,
			Size:        header.Size,
		}
		logger.Debug("file staged", "temp_id", tempID, "content_type", contentType, "size", header.Size)
		if config.OnSaved != nil {
			config.OnSaved(resp)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}

// NewTempID returns a fresh temp id.
func NewTempID() string {
	return uuid.NewString()
}

// ValidTempID reports whether id could have been produced by NewTempID.
// Stores reject anything else before touching the backend.
func ValidTempID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}
