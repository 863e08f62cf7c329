package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/projectform/pkg/imagedelete"
	"github.com/vango-dev/projectform/pkg/middleware"
	"github.com/vango-dev/projectform/pkg/preview"
	"github.com/vango-dev/projectform/pkg/upload"
)

// Server hosts the upload endpoint and the WebSocket sessions of the
// project form.
type Server struct {
	config   *Config
	router   chi.Router
	upgrader websocket.Upgrader

	// Shared by all sessions; thumbnails are keyed by temp id.
	previews *preview.Reader
	deletes  *imagedelete.Client

	mu       sync.Mutex
	sessions map[string]*Session

	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server. Zero fields of config take their defaults.
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Store == nil {
		return nil, errors.New("server: Config.Store is required")
	}
	config.fillDefaults()
	if err := config.TagOptions.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger.With("component", "server")

	previews, err := preview.NewReader(preview.Config{
		CacheSize: config.PreviewCacheSize,
		MaxBytes:  config.MaxFileSize,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: preview reader: %w", err)
	}

	s := &Server{
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		previews: previews,
		deletes: imagedelete.NewClient(imagedelete.ClientConfig{
			HTTPClient: config.HTTPClient,
			CSRFHeader: config.CSRFHeader,
			Logger:     config.Logger,
		}),
		sessions: make(map[string]*Session),
		logger:   logger,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.AccessLog(s.config.Logger))
	r.Use(s.config.Middleware...)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Get("/ws", s.HandleWebSocket)
	r.Method(http.MethodPost, "/upload", upload.HandlerWithConfig(s.config.Store, &upload.Config{
		MaxRequestSize: s.config.MaxRequestSize,
		OnSaved:        s.config.Metrics.UploadSaved,
		Logger:         s.config.Logger,
	}))
	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics.Handler())
	}
	return r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HandleWebSocket upgrades the request and runs a session for the page.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	session, err := s.handshake(r, conn)
	if err != nil {
		s.logger.Info("handshake failed", "error", err, "remote", r.RemoteAddr)
		conn.Close()
		return
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	s.config.Metrics.SessionOpened()

	session.Start()
}

func (s *Server) removeSession(session *Session) {
	s.mu.Lock()
	_, ok := s.sessions[session.ID]
	delete(s.sessions, session.ID)
	s.mu.Unlock()
	if ok {
		s.config.Metrics.SessionClosed()
	}
}

// SessionCount returns the number of open sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Run serves on config.Address until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "address", ln.Addr().String())
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down", "sessions", s.SessionCount())

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	return err
}
