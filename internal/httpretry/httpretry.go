// Package httpretry executes resty requests behind a rate limiter, retrying transport
// errors, throttling and server errors with exponential backoff.
package httpretry

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// StatusError is a non-2xx response that was either not retryable or out of attempts.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %s: %s", e.Status, e.Body)
}

// Policy tunes Do.
type Policy struct {
	// Attempts is the total number of tries, at least one.
	Attempts int
	// Backoff is the wait after the first failure and doubles after each retry.
	// A Retry-After header on a 429 response replaces it.
	Backoff time.Duration
	// Classify may map a non-2xx response to a final error. Returning nil leaves the
	// response to the default retry rules.
	Classify func(resp *resty.Response) error
}

// Do executes req, waiting on limiter before every attempt.
func Do(ctx context.Context, limiter *rate.Limiter, p Policy, logger *zap.Logger, method, url string, req *resty.Request) (*resty.Response, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error

	for i := 0; i < attempts; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		var resp *resty.Response
		resp, err = req.Execute(method, url)
		if err == nil && !resp.IsError() {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		shouldRetry := err != nil
		var retryAfter time.Duration
		if err == nil {
			if p.Classify != nil {
				if final := p.Classify(resp); final != nil {
					return nil, final
				}
			}
			switch status := resp.StatusCode(); {
			case status == http.StatusTooManyRequests:
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case status >= 500:
				shouldRetry = true
			}
			err = &StatusError{Code: resp.StatusCode(), Status: resp.Status(), Body: resp.String()}
		}

		if !shouldRetry || i == attempts-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = p.Backoff << i
		}

		logger.Warn("Request failed, retrying...",
			zap.String("url", url),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}
