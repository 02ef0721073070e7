package websocket

import (
	"bytes"
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatgate-backend/internal/middleware"
	"chatgate-backend/internal/models"
	"chatgate-backend/internal/services"
	"chatgate-backend/internal/uistream"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 10 << 20
)

type chatService interface {
	Configured() bool
	Stream(ctx context.Context, turn models.ChatTurn, sink uistream.Sink) error
}

// ChatSocket serves chat turns over a websocket. Each text frame from the
// client is one chat request; the answer comes back as one frame per UI
// message stream chunk followed by a "[DONE]" frame. Every turn counts
// against the client's chat rate limit.
type ChatSocket struct {
	mu          sync.Mutex
	connections map[*websocket.Conn]struct{}
	chat        chatService
	limiter     middleware.Limiter
	upgrader    websocket.Upgrader
}

// NewChatSocket builds the socket handler. A nil limiter disables rate limiting.
func NewChatSocket(chat chatService, limiter middleware.Limiter, frontendURL string) *ChatSocket {
	return &ChatSocket{
		connections: make(map[*websocket.Conn]struct{}),
		chat:        chat,
		limiter:     limiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowOrigin(frontendURL),
		},
	}
}

func allowOrigin(frontendURL string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || frontendURL == "*" || strings.EqualFold(origin, frontendURL)
	}
}

func (s *ChatSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	s.registerConnection(conn)
	defer s.unregisterConnection(conn)

	requestID := r.Header.Get(middleware.RequestIDHeader)
	clientIP := middleware.ClientIP(r)
	ctx := r.Context()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if err := s.serveTurn(ctx, conn, clientIP, requestID, data); err != nil {
			log.Printf("WebSocket chat turn failed: %v", err)
			return
		}
	}
}

// serveTurn answers one request frame. Only transport failures are returned.
func (s *ChatSocket) serveTurn(ctx context.Context, conn *websocket.Conn, clientIP, requestID string, data []byte) error {
	sink := &socketSink{conn: conn}

	if !s.chat.Configured() {
		return sink.fail(services.ErrMissingAPIKey.Message)
	}

	if !s.allow(ctx, clientIP) {
		return sink.fail(middleware.RateLimitedMessage)
	}

	turn, err := services.ParseChatRequest(bytes.NewReader(data))
	if err != nil {
		var validationErr *services.ValidationError
		if errors.As(err, &validationErr) {
			return sink.fail(validationErr.Message)
		}
		return sink.fail(err.Error())
	}
	turn.RequestID = uuid.NewString()
	if requestID != "" {
		turn.RequestID = requestID + "/" + turn.RequestID[:8]
	}

	err = s.chat.Stream(ctx, turn, sink)
	if sink.err != nil {
		return sink.err
	}
	if err != nil {
		log.Printf("WebSocket chat %s ended with error: %v", turn.RequestID, err)
	}
	return nil
}

// allow applies the chat rate limit. Limiter failures let the turn through.
func (s *ChatSocket) allow(ctx context.Context, clientIP string) bool {
	if s.limiter == nil {
		return true
	}
	allowed, err := s.limiter.Allow(ctx, clientIP)
	if err != nil {
		log.Printf("Rate limiter unavailable: %v", err)
		return true
	}
	return allowed
}

func (s *ChatSocket) registerConnection(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.connections[conn] = struct{}{}
	log.Printf("WebSocket connected (total: %d)", len(s.connections))
}

func (s *ChatSocket) unregisterConnection(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn.Close()
	delete(s.connections, conn)
	log.Printf("WebSocket disconnected (total: %d)", len(s.connections))
}

// CloseAll sends a going-away close frame to every open connection.
func (s *ChatSocket) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for conn := range s.connections {
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
	}
}

// socketSink adapts a websocket connection to uistream.Sink.
type socketSink struct {
	conn *websocket.Conn
	err  error
}

func (s *socketSink) WriteChunk(c uistream.Chunk) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(c); err != nil {
		s.err = err
		return err
	}
	return nil
}

func (s *socketSink) Close() error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(uistream.DoneMarker)); err != nil {
		s.err = err
		return err
	}
	return nil
}

// fail reports a request-level error and ends the turn.
func (s *socketSink) fail(message string) error {
	if err := s.WriteChunk(uistream.Chunk{Type: uistream.TypeError, ErrorText: message}); err != nil {
		return err
	}
	return s.Close()
}
