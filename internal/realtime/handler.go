package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// UserResolver returns the authenticated user of a request.
type UserResolver func(r *http.Request) (uuid.UUID, bool)

// Handler streams events of one table for the authenticated user over a websocket.
// The table is taken from the "table" query parameter.
type Handler struct {
	subscriber Subscriber
	user       UserResolver
	logger     *zap.Logger
}

func NewHandler(subscriber Subscriber, user UserResolver, logger *zap.Logger) *Handler {
	return &Handler{subscriber: subscriber, user: user, logger: logger.Named("ws")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	table := r.URL.Query().Get("table")
	if table == "" {
		http.Error(w, "table is required", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	// Subscribe first so no event committed after the handshake is missed.
	sub, err := h.subscriber.Subscribe(ctx, Filter{Table: table, UserID: userID})
	if err != nil {
		cancel()
		h.logger.Error("Failed to subscribe", zap.Error(err))
		http.Error(w, "subscription failed", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		cancel()
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.logger.Info("WebSocket client connected", zap.String("user_id", userID.String()), zap.String("table", table))

	go h.readPump(conn, cancel)
	h.writePump(ctx, conn, sub)

	h.logger.Info("WebSocket client disconnected", zap.String("user_id", userID.String()), zap.String("table", table))
}

// readPump consumes control frames and ends the session when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sub Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.Close()
		conn.Close()
	}()

	for {
		select {
		case e, ok := <-sub.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
