// Package scheduler promotes recurring ScheduleItems into Jobs. There is
// no leader: every node running a scheduler loop ticks independently and
// relies on the store's compare-and-swap to guarantee a given due item is
// claimed and enqueued exactly once per firing.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nodefleet/fleet/internal/clock"
	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/store"
	"github.com/nodefleet/fleet/pkg/types"
)

// Loop scans every ScheduleItem on each tick and enqueues a Job for any
// item whose interval has elapsed since its last firing. due() compares
// clk's "now" against LastScheduledAt, which ClaimJobScheduled stamps with
// the store handle's own clock; the caller passes clk separately to New.
type Loop struct {
	store    store.Store
	clk      clock.Clock
	interval time.Duration
	log      *slog.Logger
	metrics  *metrics.Collector
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Loop. m may be nil, in which case claim outcomes and
// enqueues are not recorded.
func New(s store.Store, clk clock.Clock, interval time.Duration, log *slog.Logger, m *metrics.Collector) *Loop {
	return &Loop{
		store:    s,
		clk:      clk,
		interval: interval,
		log:      log,
		metrics:  m,
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
			l.tick(context.Background())
		}
	}
}

// tick scans every schedule item once. It is unexported; tests in this
// package call it directly without depending on ticker timing.
func (l *Loop) tick(ctx context.Context) {
	items, err := l.store.GetScheduleItems(ctx)
	if err != nil {
		l.log.Error("scheduler: list schedule items failed", "error", err)
		return
	}
	now := l.clk.NowMillis()
	for _, item := range items {
		if !due(item, now) {
			continue
		}
		l.fire(ctx, item)
	}
}

func due(item *types.ScheduleItem, nowMillis int64) bool {
	if item.LastScheduledAt == nil {
		return true
	}
	return nowMillis-*item.LastScheduledAt >= item.Interval
}

// fire claims item via the store's CAS and, only on a successful claim,
// resolves its JobType and enqueues a derived Job onto that JobType's
// node-type queue. A lost claim race is not an error: another node won it.
func (l *Loop) fire(ctx context.Context, item *types.ScheduleItem) {
	claimed, ok, err := l.store.ClaimJobScheduled(ctx, item)
	if err != nil {
		l.log.Error("scheduler: claim failed", "schedule_item", item.UUID, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.RecordScheduleClaim(ok)
	}
	if !ok {
		return
	}

	jt, err := l.store.GetJobType(ctx, claimed.JobTypeUUID)
	if err != nil {
		l.log.Error("scheduler: unknown job type for claimed schedule item",
			"schedule_item", claimed.UUID, "job_type", claimed.JobTypeUUID, "error", err)
		return
	}

	nt, err := l.store.ResolveNodeTypeByName(ctx, jt.NodeType)
	if err != nil {
		l.log.Error("scheduler: unresolved node type for job type",
			"job_type", jt.UUID, "node_type_name", jt.NodeType, "error", err)
		return
	}

	if err := l.store.SetNodeTypeSoft(ctx, nt.UUID); err != nil {
		l.log.Error("scheduler: rebind node type failed", "node_type", nt.UUID, "error", err)
		return
	}

	job := &types.Job{
		UUID:        uuid.NewString(),
		JobTypeUUID: jt.UUID,
		Arguments:   claimed.JobArguments,
	}
	if err := l.store.EnqueueJob(ctx, job); err != nil {
		l.log.Error("scheduler: enqueue derived job failed", "schedule_item", claimed.UUID, "error", err)
		return
	}
	if l.metrics != nil {
		l.metrics.RecordEnqueue()
	}
	l.log.Info("scheduler: enqueued scheduled job", "schedule_item", claimed.UUID, "job", job.UUID, "job_type", jt.UUID)
}
