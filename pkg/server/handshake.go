package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-dev/projectform/internal/errors"
	"github.com/vango-dev/projectform/pkg/protocol"
)

// handshake reads the client's hello and answers with a welcome. On
// failure the client gets a non-ok welcome and the caller closes conn.
func (s *Server) handshake(r *http.Request, conn *websocket.Conn) (*Session, error) {
	conn.SetReadLimit(protocol.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.config.HandshakeTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("read hello: %w", err)
	}

	msg, err := protocol.DecodeClient(data)
	if err != nil {
		s.reject(conn, protocol.HandshakeInvalidFormat)
		return nil, err
	}
	hello, ok := msg.(*protocol.Hello)
	if !ok {
		s.reject(conn, protocol.HandshakeInvalidFormat)
		return nil, errors.New("P404").WithDetail(fmt.Sprintf("got %T", msg))
	}
	if hello.Version != protocol.Version {
		s.reject(conn, protocol.HandshakeVersionMismatch)
		return nil, fmt.Errorf("protocol version %d, want %d", hello.Version, protocol.Version)
	}

	token := hello.CSRFToken
	if token == "" {
		if c, err := r.Cookie(s.config.CSRFCookie); err == nil {
			token = c.Value
		}
	}
	// Delete requests cannot be authenticated without a token.
	if token == "" && len(hello.Images) > 0 {
		s.reject(conn, protocol.HandshakeInvalidCSRF)
		return nil, fmt.Errorf("no anti-forgery token for %d images", len(hello.Images))
	}

	conn.SetReadDeadline(time.Time{})
	session := newSession(s, conn, r, hello, token)

	session.send(&protocol.Welcome{
		Status:      protocol.HandshakeOK,
		SessionID:   session.ID,
		MaxFiles:    s.config.MaxFiles,
		MaxFileSize: s.config.MaxFileSize,
		UploadURL:   "/upload",
	})
	session.logger.Info("session started",
		"elements", len(hello.Elements),
		"images", len(hello.Images))
	return session, nil
}

func (s *Server) reject(conn *websocket.Conn, status protocol.HandshakeStatus) {
	data, err := protocol.Encode(&protocol.Welcome{Status: status})
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	conn.WriteMessage(websocket.TextMessage, data)
}
