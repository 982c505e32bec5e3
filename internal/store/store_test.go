package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodefleet/fleet/internal/clock"
	"github.com/nodefleet/fleet/pkg/types"
)

func newTestStore(t *testing.T) (*RedisStore, *clock.Frozen) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewFrozen(1_700_000_000_000)
	s, err := Connect(context.Background(), client, clk)
	require.NoError(t, err)
	return s, clk
}

func seedNodeType(t *testing.T, s *RedisStore, name string, threadCount int) *types.NodeType {
	t.Helper()
	nt := &types.NodeType{UUID: "nt-" + name, Name: name, ThreadCount: threadCount}
	require.NoError(t, s.NewNodeType(context.Background(), nt))
	return nt
}

func seedJobType(t *testing.T, s *RedisStore, nodeType string) *types.JobType {
	t.Helper()
	jt := &types.JobType{
		UUID:     "jt-1",
		Name:     "echo",
		Executor: types.ExecutorBash,
		Metadata: map[string]interface{}{"command": "echo hi"},
		NodeType: nodeType,
	}
	require.NoError(t, s.NewJobType(context.Background(), jt))
	return jt
}

func TestRoundTripNodeType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	nt := seedNodeType(t, s, "builders", 4)

	got, err := s.GetNodeType(ctx, nt.UUID)
	require.NoError(t, err)
	assert.Equal(t, nt, got)
}

func TestSetNodeTypeRejectsUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.SetNodeType(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueuePartitioning(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	ntA := seedNodeType(t, s, "a", 1)
	ntB := seedNodeType(t, s, "b", 1)
	jt := seedJobType(t, s, ntA.Name)

	require.NoError(t, s.SetNodeType(ctx, ntA.UUID))
	require.NoError(t, s.EnqueueJob(ctx, &types.Job{UUID: "job-1", JobTypeUUID: jt.UUID}))

	jobsA, err := s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	require.Len(t, jobsA, 1)

	require.NoError(t, s.SetNodeType(ctx, ntB.UUID))
	jobsB, err := s.GetAllJobsWaiting(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobsB)
}

func TestLifecycleLinearity(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	nt := seedNodeType(t, s, "a", 1)
	jt := seedJobType(t, s, nt.Name)
	require.NoError(t, s.SetNodeType(ctx, nt.UUID))
	require.NoError(t, s.EnqueueJob(ctx, &types.Job{UUID: "job-1", JobTypeUUID: jt.UUID}))

	job, err := s.DequeueJob(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.UUID)
	assert.NotNil(t, job.StartedAt)
	assert.Equal(t, s.Node().UUID, job.ExecutingNode)

	waiting, _ := s.GetAllJobsWaiting(ctx)
	inProgress, _ := s.GetAllJobsInProgress(ctx)
	finished, _ := s.GetAllJobsFinished(ctx)
	assert.Empty(t, waiting)
	assert.Len(t, inProgress, 1)
	assert.Empty(t, finished)

	require.NoError(t, s.FinishJob(ctx, job, map[string]interface{}{"ok": true}, nil))

	inProgress, _ = s.GetAllJobsInProgress(ctx)
	finished, _ = s.GetAllJobsFinished(ctx)
	assert.Empty(t, inProgress)
	assert.Len(t, finished, 1)
	assert.NotNil(t, finished[0].EndedAt)
}

func TestSingleClaimPerTick(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()
	nt := seedNodeType(t, s, "a", 1)
	jt := seedJobType(t, s, nt.Name)
	item := &types.ScheduleItem{UUID: "sched-1", Interval: 500, JobTypeUUID: jt.UUID}
	require.NoError(t, s.NewScheduleItem(ctx, item))
	_ = clk

	other, err := s.Replicate(ctx)
	require.NoError(t, err)

	claimed1, ok1, err1 := s.ClaimJobScheduled(ctx, item)
	require.NoError(t, err1)
	claimed2, ok2, err2 := other.(*RedisStore).ClaimJobScheduled(ctx, item)
	require.NoError(t, err2)

	// Exactly one of the two racers wins the CAS.
	assert.True(t, ok1 != ok2)
	if ok1 {
		assert.NotNil(t, claimed1)
	} else {
		assert.NotNil(t, claimed2)
	}
}

func TestLivenessFilter(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()

	other, err := s.Replicate(ctx)
	require.NoError(t, err)
	or := other.(*RedisStore)
	require.NoError(t, or.Ping(ctx))

	nodes, err := s.GetNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 2)

	clk.Advance(30_000)

	nodes, err = s.GetNodes(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 0)

	_, err = s.GetOtherNode(ctx, or.Node().UUID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIdempotentHeartbeat(t *testing.T) {
	s, clk := newTestStore(t)
	ctx := context.Background()
	nt := seedNodeType(t, s, "a", 1)
	require.NoError(t, s.SetNodeType(ctx, nt.UUID))
	before := *s.Node()

	clk.Advance(1000)
	require.NoError(t, s.Ping(ctx))

	after := s.Node()
	assert.NotEqual(t, before.LastPing, after.LastPing)
	assert.Equal(t, before.UUID, after.UUID)
	assert.Equal(t, before.NodeTypeUUID, after.NodeTypeUUID)
}

func TestDequeueUnknownJobType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	nt := seedNodeType(t, s, "a", 1)
	require.NoError(t, s.SetNodeType(ctx, nt.UUID))
	require.NoError(t, s.EnqueueJob(ctx, &types.Job{UUID: "job-1", JobTypeUUID: "missing"}))

	_, err := s.DequeueJob(ctx)
	assert.ErrorIs(t, err, ErrInvalidJobType)
}
