package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nodefleet/fleet/internal/executor"
	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/store"
)

// Pool owns the lifecycle of a node type's worker threads. Unlike a
// channel-fed pool, each Worker here pulls directly from its own
// replicated store handle rather than from a shared in-process queue, so
// Pool's job is only to start, count and gracefully stop them.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
	cancel  context.CancelFunc

	mu      sync.Mutex
	started bool
}

func NewPool() *Pool {
	return &Pool{}
}

// Start replicates threadCount store handles from base and launches one
// Worker per handle, each bound to nodeTypeUUID. m may be nil, in which
// case workers skip metrics recording.
func (p *Pool) Start(ctx context.Context, base store.Store, nodeTypeUUID string, threadCount int, registry executor.Registry, log *slog.Logger, m *metrics.Collector) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < threadCount; i++ {
		handle, err := base.Replicate(ctx)
		if err != nil {
			cancel()
			return err
		}
		if err := handle.SetNodeType(ctx, nodeTypeUUID); err != nil {
			cancel()
			return err
		}

		w := newWorker(i, handle, registry, log, m)
		p.workers = append(p.workers, w)

		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(runCtx)
		}(w)
	}

	p.started = true
	return nil
}

// Stop cancels every Worker's context and waits for all threads to exit
// their current iteration.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

func (p *Pool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}
