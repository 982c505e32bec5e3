// Package worker runs the per-node-type execution threads: each Worker
// owns its own replicated store handle and blocks directly on the store's
// Redis-backed queue, dispatching dequeued jobs to the executor registry.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/nodefleet/fleet/internal/executor"
	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/store"
)

// Worker is one blocking dequeue-execute-finish loop. Concurrency per node
// equals node_type.thread_count, realised by starting that many Workers,
// each with its own store handle obtained via Replicate.
type Worker struct {
	id        int
	store     store.Store
	executors executor.Registry
	log       *slog.Logger
	metrics   *metrics.Collector
}

func newWorker(id int, s store.Store, registry executor.Registry, log *slog.Logger, m *metrics.Collector) *Worker {
	return &Worker{id: id, store: s, executors: registry, log: log, metrics: m}
}

// Run blocks forever, dequeuing and executing jobs, until ctx is cancelled.
// A store error on dequeue or finish is logged; the loop never exits on it.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.store.DequeueJob(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("worker: dequeue failed", "worker", w.id, "error", err)
			continue
		}
		dequeuedAt := time.Now()
		if w.metrics != nil {
			w.metrics.RecordDequeue()
		}

		exec, ok := w.executors.Lookup(job.JobType.Executor)
		if !ok {
			if err := w.store.FinishJob(ctx, job, nil, nil); err != nil {
				w.log.Error("worker: finish (unknown executor) failed", "job", job.UUID, "error", err)
			}
			w.recordFinished("unknown_executor", dequeuedAt)
			continue
		}

		execCtx := exec.Execute(job)
		result, err := execCtx.Result(job, false)
		if err != nil {
			w.log.Error("worker: executor context failed", "job", job.UUID, "error", err)
			continue
		}

		var results, errs interface{}
		outcome := "success"
		switch {
		case result == nil:
			errs = "invalid executor context [async not supported]"
			outcome = "error"
		case !result.Success:
			errs = result.Payload
			outcome = "error"
		default:
			results = result.Payload
		}

		if err := w.store.FinishJob(ctx, job, results, errs); err != nil {
			w.log.Error("worker: finish job failed", "job", job.UUID, "error", err)
		}
		w.recordFinished(outcome, dequeuedAt)
	}
}

func (w *Worker) recordFinished(outcome string, dequeuedAt time.Time) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordFinished(outcome, time.Since(dequeuedAt).Seconds())
}
