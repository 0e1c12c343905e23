// ABOUTME: OneBot reverse-websocket server for himari-relay
// ABOUTME: Accepts bot client connections and reads the event stream

package relay

import (
	"context"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// Conversations defines what the relay needs from the conversation core.
type Conversations interface {
	IsUserFree(userID int64) bool
	SendTurn(ctx context.Context, userID int64, text string, onComplete func(reply string, err error)) error
}

// Server hosts the reverse websocket endpoint that OneBot clients
// (go-cqhttp and friends) connect to.
type Server struct {
	gpt         Conversations
	accessToken string
	commandRe   *regexp.Regexp
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewServer creates a relay server. commandPrefix selects which group
// messages are treated as conversation commands, e.g. "/chat".
func NewServer(gpt Conversations, accessToken, commandPrefix string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		gpt:         gpt,
		accessToken: accessToken,
		commandRe:   regexp.MustCompile(`^` + regexp.QuoteMeta(commandPrefix) + `\s+(.+)$`),
		logger:      logger.With("component", "relay"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP routes for the relay: the websocket endpoint at
// the root and a health check.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok")) //nolint:errcheck
	})
	r.Get("/", s.handleWS)
	return r
}

// handleWS authenticates and upgrades a OneBot client connection, then
// reads events until the connection drops.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.accessToken != "" && clientToken(r) != s.accessToken {
		s.logger.Warn("rejecting client with missing or invalid access token",
			"remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()

	s.logger.Info("bot client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	wc := &wsConn{conn: conn}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("bot client connection lost", "remote", r.RemoteAddr, "error", err)
			} else {
				s.logger.Info("bot client disconnected", "remote", r.RemoteAddr)
			}
			return
		}
		s.handleEvent(ctx, wc, data)
	}
}

// clientToken extracts the access token from the handshake request.
// go-cqhttp sends "Authorization: Bearer <token>"; the access_token query
// parameter is accepted as a fallback.
func clientToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

// wsConn serializes writes: completion callbacks for different users may
// fire concurrently against the same socket.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
