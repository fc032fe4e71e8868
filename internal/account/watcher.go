package account

import (
	"context"
	"fmt"
	"time"

	"crypto-invest-platform-go/internal/backend"
	"crypto-invest-platform-go/internal/models"
	"crypto-invest-platform-go/internal/realtime"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Watcher feeds a View from an initial fetch, a periodic poll and realtime pushes of
// the user's profile row.
type Watcher struct {
	userID     uuid.UUID
	backend    backend.Backend
	store      backend.Store
	subscriber realtime.Subscriber
	view       *View
	poll       time.Duration
	onUpdate   func(Snapshot)
	logger     *zap.Logger
}

// WatcherOptions tunes a Watcher.
type WatcherOptions struct {
	Poll time.Duration
	// OnUpdate, if set, is called from the watcher goroutine after every applied snapshot.
	OnUpdate func(Snapshot)
}

func NewWatcher(userID uuid.UUID, be backend.Backend, store backend.Store, subscriber realtime.Subscriber, view *View, opts WatcherOptions, logger *zap.Logger) *Watcher {
	if opts.Poll <= 0 {
		opts.Poll = 3 * time.Second
	}
	return &Watcher{
		userID:     userID,
		backend:    be,
		store:      store,
		subscriber: subscriber,
		view:       view,
		poll:       opts.Poll,
		onUpdate:   opts.OnUpdate,
		logger:     logger.Named("account").With(zap.String("user_id", userID.String())),
	}
}

// Run applies updates until ctx is canceled. Both sources are handled on this goroutine;
// on return the ticker is stopped and the subscription closed.
func (w *Watcher) Run(ctx context.Context) error {
	var events <-chan realtime.Event
	if w.subscriber != nil {
		sub, err := w.subscriber.Subscribe(ctx, realtime.Filter{Table: models.TableProfiles, UserID: w.userID})
		if err != nil {
			w.logger.Warn("Realtime subscription failed, polling only", zap.Error(err))
		} else {
			defer sub.Close()
			events = sub.Events()
		}
	}

	if err := w.Refresh(ctx, OriginPoll); err != nil {
		w.logger.Error("Initial balance fetch failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Stopping balance watcher")
			return nil
		case <-ticker.C:
			if _, err := w.backend.SyncTradingProfits(ctx); err != nil {
				w.logger.Warn("Profit sync failed", zap.Error(err))
			}
			if err := w.Refresh(ctx, OriginPoll); err != nil {
				w.logger.Warn("Balance poll failed", zap.Error(err))
			}
		case e, ok := <-events:
			if !ok {
				w.logger.Warn("Realtime subscription ended, polling only")
				events = nil
				continue
			}
			w.handleEvent(e)
		}
	}
}

func (w *Watcher) handleEvent(e realtime.Event) {
	if e.Type != realtime.Update {
		return
	}
	var p models.Profile
	if err := e.Decode(&p); err != nil {
		w.logger.Warn("Discarding undecodable profile event", zap.Error(err))
		return
	}
	if p.ID != w.userID {
		return
	}
	w.apply(&p, OriginPush)
}

// Refresh reads the profile row and applies it.
func (w *Watcher) Refresh(ctx context.Context, origin Origin) error {
	p, err := w.store.GetProfile(ctx, w.userID)
	if err != nil {
		return fmt.Errorf("failed to fetch profile: %w", err)
	}
	w.apply(p, origin)
	return nil
}

func (w *Watcher) apply(p *models.Profile, origin Origin) {
	s := w.view.Apply(p, origin)
	if w.onUpdate != nil {
		w.onUpdate(s)
	}
}
