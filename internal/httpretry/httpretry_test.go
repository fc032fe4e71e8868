package httpretry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func serve(t *testing.T, statuses ...int) (*resty.Client, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&calls, 1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "0")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	t.Cleanup(server.Close)
	return resty.New().SetBaseURL(server.URL), &calls
}

func do(client *resty.Client, p Policy) (*resty.Response, error) {
	ctx := context.Background()
	return Do(ctx, rate.NewLimiter(rate.Inf, 1), p, zap.NewNop(), http.MethodGet, "/x", client.R().SetContext(ctx))
}

func TestDo(t *testing.T) {
	t.Run("retries throttling and server errors", func(t *testing.T) {
		client, calls := serve(t, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusOK)

		resp, err := do(client, Policy{Attempts: 3, Backoff: time.Millisecond})

		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode())
		assert.Equal(t, int32(3), atomic.LoadInt32(calls))
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		client, calls := serve(t, http.StatusServiceUnavailable)

		_, err := do(client, Policy{Attempts: 2, Backoff: time.Millisecond})

		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
		assert.Contains(t, statusErr.Body, "nope")
		assert.Equal(t, int32(2), atomic.LoadInt32(calls))
	})

	t.Run("client errors are final", func(t *testing.T) {
		client, calls := serve(t, http.StatusBadRequest)

		_, err := do(client, Policy{Attempts: 3, Backoff: time.Millisecond})

		assert.Error(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})

	t.Run("classify ends retries", func(t *testing.T) {
		client, calls := serve(t, http.StatusServiceUnavailable)
		errDown := errors.New("down for maintenance")

		_, err := do(client, Policy{Attempts: 3, Backoff: time.Millisecond, Classify: func(resp *resty.Response) error {
			if resp.StatusCode() == http.StatusServiceUnavailable {
				return errDown
			}
			return nil
		}})

		assert.ErrorIs(t, err, errDown)
		assert.Equal(t, int32(1), atomic.LoadInt32(calls))
	})
}
