package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client subscribes to a remote Handler.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	buffer int
	logger *zap.Logger
}

var _ Subscriber = (*Client)(nil)

// NewClient creates a websocket subscriber. The token is sent as a bearer credential.
func NewClient(rawURL, token string, buffer int, logger *zap.Logger) *Client {
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		url:    rawURL,
		header: header,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		buffer: buffer,
		logger: logger.Named("ws-client"),
	}
}

// Subscribe connects and streams the events of filter.Table. The server scopes the
// stream to the authenticated user; filter.UserID is applied again locally.
func (c *Client) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	q := u.Query()
	q.Set("table", filter.Table)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), c.header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to realtime feed: %w", err)
	}

	sub := &wsSubscription{
		conn: conn,
		ch:   make(chan Event, c.buffer),
		done: make(chan struct{}),
	}

	go sub.readLoop(filter, c.logger)
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

type wsSubscription struct {
	conn *websocket.Conn
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func (s *wsSubscription) Events() <-chan Event { return s.ch }

func (s *wsSubscription) Close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()
	})
}

func (s *wsSubscription) readLoop(filter Filter, logger *zap.Logger) {
	defer close(s.ch)

	for {
		var e Event
		if err := s.conn.ReadJSON(&e); err != nil {
			select {
			case <-s.done:
			default:
				logger.Warn("Realtime connection lost", zap.Error(err))
			}
			return
		}
		if !filter.Matches(e) {
			continue
		}
		select {
		case s.ch <- e:
		case <-s.done:
			return
		}
	}
}
