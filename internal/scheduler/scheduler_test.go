package scheduler

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/fleet/internal/clock"
	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/store"
	"github.com/nodefleet/fleet/pkg/types"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s, err := store.Connect(context.Background(), client, clock.NewFrozen(1_700_000_000_000))
	require.NoError(t, err)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nullWriter{}, nil))
}

type nullWriter struct{}

func (nullWriter) Write(p []byte) (int, error) { return len(p), nil }

// S5: a due schedule item fires exactly once, and re-ticking immediately
// after does not fire it again.
func TestFirstFireThenNoDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nt := &types.NodeType{UUID: "nt-1", Name: "builders", ThreadCount: 1}
	require.NoError(t, s.NewNodeType(ctx, nt))
	jt := &types.JobType{UUID: "jt-1", Name: "nightly", Executor: types.ExecutorBash, NodeType: nt.Name, Metadata: map[string]interface{}{"command": "true"}}
	require.NoError(t, s.NewJobType(ctx, jt))
	item := &types.ScheduleItem{UUID: "sched-1", Interval: 3_600_000, JobTypeUUID: jt.UUID}
	require.NoError(t, s.NewScheduleItem(ctx, item))

	require.NoError(t, s.SetNodeType(ctx, nt.UUID))

	loop := New(s, clock.NewFrozen(1_700_000_000_000), 0, discardLogger(), nil)
	loop.tick(ctx)

	waiting, err := s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
	assert.Equal(t, jt.UUID, waiting[0].JobTypeUUID)

	loop.tick(ctx)

	waiting, err = s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	assert.Len(t, waiting, 1, "second tick immediately after must not fire again")
}

// Property 1 at the scheduler level: two independent loop instances racing
// the same due item enqueue exactly one derived job between them.
func TestSingleClaimAcrossLoops(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nt := &types.NodeType{UUID: "nt-1", Name: "builders", ThreadCount: 1}
	require.NoError(t, s.NewNodeType(ctx, nt))
	jt := &types.JobType{UUID: "jt-1", Name: "nightly", Executor: types.ExecutorBash, NodeType: nt.Name, Metadata: map[string]interface{}{"command": "true"}}
	require.NoError(t, s.NewJobType(ctx, jt))
	item := &types.ScheduleItem{UUID: "sched-1", Interval: 3_600_000, JobTypeUUID: jt.UUID}
	require.NoError(t, s.NewScheduleItem(ctx, item))

	require.NoError(t, s.SetNodeType(ctx, nt.UUID))
	other, err := s.Replicate(ctx)
	require.NoError(t, err)
	require.NoError(t, other.SetNodeType(ctx, nt.UUID))

	loopA := New(s, clock.NewFrozen(1_700_000_000_000), 0, discardLogger(), nil)
	loopB := New(other, clock.NewFrozen(1_700_000_000_000), 0, discardLogger(), nil)

	loopA.tick(ctx)
	loopB.tick(ctx)

	waiting, err := s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	assert.Len(t, waiting, 1)
}

func TestSchedulerRecordsClaimMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	nt := &types.NodeType{UUID: "nt-1", Name: "builders", ThreadCount: 1}
	require.NoError(t, s.NewNodeType(ctx, nt))
	jt := &types.JobType{UUID: "jt-1", Name: "nightly", Executor: types.ExecutorBash, NodeType: nt.Name, Metadata: map[string]interface{}{"command": "true"}}
	require.NoError(t, s.NewJobType(ctx, jt))
	item := &types.ScheduleItem{UUID: "sched-1", Interval: 3_600_000, JobTypeUUID: jt.UUID}
	require.NoError(t, s.NewScheduleItem(ctx, item))
	require.NoError(t, s.SetNodeType(ctx, nt.UUID))

	collector := metrics.NewCollector()
	loop := New(s, clock.NewFrozen(1_700_000_000_000), 0, discardLogger(), collector)
	loop.tick(ctx)

	waiting, err := s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)
}

func TestDueRespectsInterval(t *testing.T) {
	now := int64(10_000)
	last := now - 500
	item := &types.ScheduleItem{Interval: 1000, LastScheduledAt: &last}
	assert.False(t, due(item, now))

	last2 := now - 1000
	item2 := &types.ScheduleItem{Interval: 1000, LastScheduledAt: &last2}
	assert.True(t, due(item2, now))

	item3 := &types.ScheduleItem{Interval: 1000}
	assert.True(t, due(item3, now))
}
