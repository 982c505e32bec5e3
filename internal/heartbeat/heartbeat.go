// Package heartbeat runs the per-node liveness loop: ping the store every
// tick so GetNodes/GetOtherNode keep seeing this node as fresh.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/nodefleet/fleet/internal/store"
)

// Loop periodically calls store.Ping. Errors are logged; the loop never
// exits on a store error, only on Stop.
type Loop struct {
	store    store.Store
	interval time.Duration
	log      *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(s store.Store, interval time.Duration, log *slog.Logger) *Loop {
	return &Loop{
		store:    s,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (l *Loop) Start() {
	go l.run()
}

func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run() {
	defer close(l.doneCh)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.store.Ping(context.Background()); err != nil {
				l.log.Error("heartbeat ping failed", "error", err)
			}
		}
	}
}
