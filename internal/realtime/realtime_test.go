package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func receive(t *testing.T, sub Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	return Event{}
}

func TestFeed_FiltersByTableAndUser(t *testing.T) {
	feed := NewFeed(8, zap.NewNop())
	alice, bob := uuid.New(), uuid.New()

	sub, err := feed.Subscribe(context.Background(), Filter{Table: "profiles", UserID: alice})
	require.NoError(t, err)
	defer sub.Close()

	feed.Publish(Event{Table: "profiles", Type: Update, UserID: bob})
	feed.Publish(Event{Table: "trades", Type: Update, UserID: alice})
	feed.Publish(Event{Table: "profiles", Type: Update, UserID: alice, Record: []byte(`{"id":1}`)})

	e := receive(t, sub)
	assert.Equal(t, alice, e.UserID)
	assert.Equal(t, "profiles", e.Table)
	assert.Len(t, sub.Events(), 0)
}

func TestFeed_DropsWhenSubscriberIsFull(t *testing.T) {
	feed := NewFeed(1, zap.NewNop())
	sub, err := feed.Subscribe(context.Background(), Filter{})
	require.NoError(t, err)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			feed.Publish(Event{Table: "trades"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, sub.Events(), 1)
}

func TestFeed_ContextEndsSubscription(t *testing.T) {
	feed := NewFeed(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := feed.Subscribe(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, feed.Subscribers())

	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
	assert.Equal(t, 0, feed.Subscribers())

	// Closing again is a no-op.
	sub.Close()
}

func TestEvent_Decode(t *testing.T) {
	type row struct {
		Balance string `json:"balance"`
	}
	e, err := NewEvent("profiles", Update, uuid.New(), row{Balance: "502"})
	require.NoError(t, err)

	var got row
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, "502", got.Balance)
}

func TestHandlerAndClient_RoundTrip(t *testing.T) {
	feed := NewFeed(8, zap.NewNop())
	userID := uuid.New()

	handler := NewHandler(feed, func(r *http.Request) (uuid.UUID, bool) {
		return userID, r.Header.Get("Authorization") == "Bearer secret"
	}, zap.NewNop())
	server := httptest.NewServer(handler)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	t.Run("Unauthorized", func(t *testing.T) {
		client := NewClient(wsURL, "wrong", 8, zap.NewNop())
		_, err := client.Subscribe(context.Background(), Filter{Table: "profiles"})
		assert.Error(t, err)
	})

	client := NewClient(wsURL, "secret", 8, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := client.Subscribe(ctx, Filter{Table: "profiles", UserID: userID})
	require.NoError(t, err)

	// The handler subscribes before upgrading, so the feed already knows the client.
	require.Eventually(t, func() bool { return feed.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	e, err := NewEvent("profiles", Update, userID, map[string]string{"usdt_balance": "502"})
	require.NoError(t, err)
	feed.Publish(e)
	feed.Publish(Event{Table: "profiles", Type: Update, UserID: uuid.New()})

	got := receive(t, sub)
	assert.Equal(t, Update, got.Type)
	assert.JSONEq(t, `{"usdt_balance":"502"}`, string(got.Record))

	sub.Close()
	require.Eventually(t, func() bool { return feed.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
