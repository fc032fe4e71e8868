// Package realtime delivers row-level change events to subscribers, in process or over a websocket.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
)

// Event is a committed change of one row.
type Event struct {
	Table      string          `json:"table"`
	Type       EventType       `json:"type"`
	UserID     uuid.UUID       `json:"user_id"`
	Record     json.RawMessage `json:"record"`
	CommitTime time.Time       `json:"commit_time"`
}

// NewEvent encodes record as the payload of a change event.
func NewEvent(table string, typ EventType, userID uuid.UUID, record any) (Event, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s record: %w", table, err)
	}
	return Event{Table: table, Type: typ, UserID: userID, Record: raw, CommitTime: time.Now()}, nil
}

// Decode unmarshals the row carried by the event.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Record, v)
}

// Filter selects events by table and owning user. Zero values match anything.
type Filter struct {
	Table  string    `json:"table"`
	UserID uuid.UUID `json:"user_id"`
}

func (f Filter) Matches(e Event) bool {
	if f.Table != "" && f.Table != e.Table {
		return false
	}
	if f.UserID != uuid.Nil && f.UserID != e.UserID {
		return false
	}
	return true
}

// Subscription is a live stream of events. Events is closed after Close.
type Subscription interface {
	Events() <-chan Event
	Close()
}

type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)
}

type Publisher interface {
	Publish(e Event)
}

// Feed is an in-process pub/sub hub. Slow subscribers miss events rather than block publishers.
type Feed struct {
	mu     sync.RWMutex
	subs   map[uint64]*feedSubscription
	next   uint64
	buffer int
	logger *zap.Logger
}

var (
	_ Subscriber = (*Feed)(nil)
	_ Publisher  = (*Feed)(nil)
)

func NewFeed(buffer int, logger *zap.Logger) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{
		subs:   make(map[uint64]*feedSubscription),
		buffer: buffer,
		logger: logger.Named("feed"),
	}
}

func (f *Feed) Publish(e Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			f.logger.Debug("Subscriber buffer full, dropping event",
				zap.Uint64("subscription", sub.id),
				zap.String("table", e.Table),
			)
		}
	}
}

// Subscribe registers a subscription that ends on Close or when ctx is done.
func (f *Feed) Subscribe(ctx context.Context, filter Filter) (Subscription, error) {
	f.mu.Lock()
	f.next++
	sub := &feedSubscription{
		id:     f.next,
		feed:   f,
		filter: filter,
		ch:     make(chan Event, f.buffer),
		done:   make(chan struct{}),
	}
	f.subs[sub.id] = sub
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Subscribers returns the number of open subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

type feedSubscription struct {
	id     uint64
	feed   *Feed
	filter Filter
	ch     chan Event
	done   chan struct{}
	once   sync.Once
}

func (s *feedSubscription) Events() <-chan Event { return s.ch }

func (s *feedSubscription) Close() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		close(s.ch)
		s.feed.mu.Unlock()
		close(s.done)
	})
}
