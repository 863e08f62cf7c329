package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vango-dev/projectform/internal/config"
	"github.com/vango-dev/projectform/pkg/metrics"
	"github.com/vango-dev/projectform/pkg/staged"
	"github.com/vango-dev/projectform/pkg/taginput"
	"github.com/vango-dev/projectform/pkg/upload"
)

// Element ids the page script declares in its hello.
const (
	ElementFileInput = "file-upload"
	ElementPreviews  = "preview-container"
	ElementDropZone  = "drop-zone"
)

// HighlightClasses mark the drop zone while a drag hovers it.
var HighlightClasses = []string{"border-primary-500", "bg-blue-50"}

// Config configures a Server.
type Config struct {
	// Address is the listen address (default: ":3000").
	Address string

	// Store holds uploaded bytes. Required.
	Store upload.Store

	// AllowedOrigins lists page origins allowed to open a session.
	// Empty means same-origin only.
	AllowedOrigins []string

	// CheckOrigin overrides the origin check built from AllowedOrigins.
	CheckOrigin func(r *http.Request) bool

	ReadBufferSize  int
	WriteBufferSize int

	// MaxFiles and MaxFileSize bound each page's staged list.
	MaxFiles    int
	MaxFileSize int64

	// MaxRequestSize bounds an upload request body.
	MaxRequestSize int64

	// MaxEventQueue is the buffered event capacity of a session.
	MaxEventQueue int

	// HandshakeTimeout bounds the wait for the client's hello.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration

	// ReadTimeout closes a connection that sent nothing, not even a pong,
	// for this long.
	ReadTimeout time.Duration

	// HeartbeatInterval is the ping period. Must be below ReadTimeout.
	HeartbeatInterval time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// DeleteURL maps a persisted image id to its deletion endpoint. A
	// relative result is resolved against the page origin.
	DeleteURL func(imageID string) string

	// CSRFHeader carries the page token on delete requests.
	CSRFHeader string

	// CSRFCookie is read from the upgrade request when the hello carries
	// no token.
	CSRFCookie string

	// TagField and TagOptions configure the tag-input widget.
	TagField   string
	TagOptions taginput.Options

	// PreviewCacheSize is the number of thumbnails kept in memory.
	PreviewCacheSize int

	// HTTPClient sends delete requests. Default: http.DefaultClient.
	HTTPClient *http.Client

	// Metrics receives domain counters. Nil disables them.
	Metrics *metrics.Metrics

	// Middleware wraps every route, after request id, recovery and the
	// access log.
	Middleware []func(http.Handler) http.Handler

	// Logger is the structured logger. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults. Store is unset.
func DefaultConfig() *Config {
	return &Config{
		Address:           ":3000",
		ReadBufferSize:    4096,
		WriteBufferSize:   4096,
		MaxFiles:          staged.DefaultMaxFiles,
		MaxFileSize:       staged.DefaultMaxFileSize,
		MaxRequestSize:    config.DefaultMaxRequestSize,
		MaxEventQueue:     256,
		HandshakeTimeout:  10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadTimeout:       60 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DeleteURL:         config.New().DeleteURL,
		CSRFHeader:        config.DefaultCSRFHeader,
		CSRFCookie:        "csrftoken",
		TagField:          taginput.DefaultField,
		TagOptions:        taginput.DefaultOptions(),
		PreviewCacheSize:  64,
	}
}

// FromConfig builds a server Config from a loaded projectform.json.
func FromConfig(cfg *config.Config, store upload.Store) *Config {
	c := DefaultConfig()
	c.Address = cfg.Address()
	c.Store = store
	c.AllowedOrigins = cfg.Server.AllowedOrigins
	c.MaxFiles = cfg.Upload.MaxFiles
	c.MaxFileSize = cfg.Upload.MaxFileSize
	c.MaxRequestSize = cfg.Upload.MaxRequestSize
	c.MaxEventQueue = cfg.Session.MaxEventQueue
	c.WriteTimeout = cfg.WriteTimeout()
	c.DeleteURL = cfg.DeleteURL
	c.CSRFHeader = cfg.Backend.CSRFHeader
	c.TagField = cfg.Tags.Field
	c.TagOptions.MaxTags = cfg.Tags.MaxTags
	c.TagOptions.MaxChars = cfg.Tags.MaxChars
	c.PreviewCacheSize = cfg.Preview.CacheSize
	return c
}

// fillDefaults sets every zero field to its default.
func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.Address == "" {
		c.Address = d.Address
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize == 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = d.MaxFiles
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = d.MaxFileSize
	}
	if c.MaxRequestSize <= 0 {
		c.MaxRequestSize = d.MaxRequestSize
	}
	if c.MaxEventQueue <= 0 {
		c.MaxEventQueue = d.MaxEventQueue
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ReadTimeout {
		c.HeartbeatInterval = c.ReadTimeout * 2 / 5
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.DeleteURL == nil {
		c.DeleteURL = d.DeleteURL
	}
	if c.CSRFHeader == "" {
		c.CSRFHeader = d.CSRFHeader
	}
	if c.CSRFCookie == "" {
		c.CSRFCookie = d.CSRFCookie
	}
	if c.TagField == "" {
		c.TagField = d.TagField
	}
	if c.TagOptions.Validate() != nil {
		c.TagOptions = d.TagOptions
	}
	if c.PreviewCacheSize <= 0 {
		c.PreviewCacheSize = d.PreviewCacheSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = originChecker(c.AllowedOrigins)
	}
}

// originChecker accepts same-origin requests and the listed origins.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return r.Host != "" && u.Host == r.Host
	}
}
