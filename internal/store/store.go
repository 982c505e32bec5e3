// Package store is the strongly-typed façade over the Redis server that
// makes multi-node coordination correct: hashes for entities, lists for the
// per-node-type waiting queue, and a Lua compare-and-swap for the
// scheduler's single-claim guarantee. It is the only place in the fleet
// that talks to Redis directly; every other component goes through the
// Store interface.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/nodefleet/fleet/internal/clock"
	"github.com/nodefleet/fleet/pkg/types"
)

// staleAfter is the liveness window from the base spec: a node whose
// last_ping is older than this is treated as dead by GetNodes/GetOtherNode.
const staleAfter = 20000 * time.Millisecond

// Store is the façade every long-running loop and the HTTP control plane
// program against. One handle owns one node identity and one current node
// type binding; concurrent goroutines each get their own handle via
// Replicate.
type Store interface {
	// Node types
	GetNodeTypes(ctx context.Context) ([]*types.NodeType, error)
	GetNodeType(ctx context.Context, uuid string) (*types.NodeType, error)
	NewNodeType(ctx context.Context, nt *types.NodeType) error

	// Job types
	GetJobTypes(ctx context.Context) ([]*types.JobType, error)
	GetJobType(ctx context.Context, uuid string) (*types.JobType, error)
	NewJobType(ctx context.Context, jt *types.JobType) error
	ResolveNodeTypeByName(ctx context.Context, name string) (*types.NodeType, error)

	// Schedule items
	GetScheduleItems(ctx context.Context) ([]*types.ScheduleItem, error)
	GetScheduleItem(ctx context.Context, uuid string) (*types.ScheduleItem, error)
	NewScheduleItem(ctx context.Context, si *types.ScheduleItem) error
	DeleteScheduleItem(ctx context.Context, uuid string) error

	// Node-type binding
	SetNodeType(ctx context.Context, nodeTypeUUID string) error
	SetNodeTypeSoft(ctx context.Context, nodeTypeUUID string) error
	CurrentNodeTypeUUID() string
	Node() *types.Node

	// Jobs
	EnqueueJob(ctx context.Context, job *types.Job) error
	DequeueJob(ctx context.Context) (*types.Job, error)
	FinishJob(ctx context.Context, job *types.Job, results, errs interface{}) error
	ClaimJobScheduled(ctx context.Context, item *types.ScheduleItem) (*types.ScheduleItem, bool, error)

	GetAllJobsWaiting(ctx context.Context) ([]*types.Job, error)
	GetAllJobsInProgress(ctx context.Context) ([]*types.Job, error)
	GetAllJobsFinished(ctx context.Context) ([]*types.Job, error)
	GetFinishedJob(ctx context.Context, uuid string) (*types.Job, error)

	// Liveness
	Ping(ctx context.Context) error
	GetNodes(ctx context.Context) ([]*types.Node, error)
	GetOtherNode(ctx context.Context, uuid string) (*types.Node, error)

	Replicate(ctx context.Context) (Store, error)
	Clean(ctx context.Context) error
	Close() error
}

// RedisStore is the only Store realisation: a single *redis.Client shared
// by every handle replicated from the same Connect call, plus a
// process-local node identity, node-type binding and JobType cache.
type RedisStore struct {
	client *redis.Client
	clk    clock.Clock
	node   *types.Node
	cache  *jobTypeCache
}

// Connect opens a store handle, synthesising a fresh Node with last_ping
// set to now and writing it to the nodes hash.
func Connect(ctx context.Context, client *redis.Client, clk clock.Clock) (*RedisStore, error) {
	node := &types.Node{
		UUID:     uuid.NewString(),
		LastPing: clk.NowMillis(),
	}
	s := &RedisStore{
		client: client,
		clk:    clk,
		node:   node,
		cache:  newJobTypeCache(),
	}
	if err := s.writeNode(ctx, node); err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return s, nil
}

// Replicate returns a new handle sharing the same *redis.Client connection
// pool and JobType cache but its own node identity copy, so a blocking
// DequeueJob on one handle never stalls another goroutine's calls.
func (s *RedisStore) Replicate(ctx context.Context) (Store, error) {
	nodeCopy := *s.node
	r := &RedisStore{
		client: s.client,
		clk:    s.clk,
		node:   &nodeCopy,
		cache:  s.cache,
	}
	return r, nil
}

func (s *RedisStore) Close() error {
	return nil
}

func (s *RedisStore) Node() *types.Node {
	return s.node
}

func (s *RedisStore) CurrentNodeTypeUUID() string {
	return s.node.NodeTypeUUID
}

// ---- node types ----

func (s *RedisStore) GetNodeTypes(ctx context.Context) ([]*types.NodeType, error) {
	raw, err := s.client.HGetAll(ctx, keyNodeTypes).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get node types: %w", err)
	}
	out := make([]*types.NodeType, 0, len(raw))
	for field, val := range raw {
		nt, err := decodeChecked[types.NodeType](val, field, func(v *types.NodeType) string { return v.UUID })
		if err != nil {
			return nil, err
		}
		out = append(out, nt)
	}
	return out, nil
}

func (s *RedisStore) GetNodeType(ctx context.Context, id string) (*types.NodeType, error) {
	val, err := s.client.HGet(ctx, keyNodeTypes, id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get node type: %w", err)
	}
	return decodeChecked[types.NodeType](val, id, func(v *types.NodeType) string { return v.UUID })
}

func (s *RedisStore) NewNodeType(ctx context.Context, nt *types.NodeType) error {
	raw, err := json.Marshal(nt)
	if err != nil {
		return fmt.Errorf("store: encode node type: %w", err)
	}
	if err := s.client.HSet(ctx, keyNodeTypes, nt.UUID, raw).Err(); err != nil {
		return fmt.Errorf("store: new node type: %w", err)
	}
	return nil
}

// ResolveNodeTypeByName resolves the uuid a JobType's node_type name refers
// to. JobType.NodeType is stored as a name to avoid coupling to node-type
// identity, so every node-type rebind-by-job-type must scan.
func (s *RedisStore) ResolveNodeTypeByName(ctx context.Context, name string) (*types.NodeType, error) {
	all, err := s.GetNodeTypes(ctx)
	if err != nil {
		return nil, err
	}
	for _, nt := range all {
		if nt.Name == name {
			return nt, nil
		}
	}
	return nil, ErrNotFound
}

// ---- job types ----

func (s *RedisStore) GetJobTypes(ctx context.Context) ([]*types.JobType, error) {
	raw, err := s.client.HGetAll(ctx, keyJobTypes).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get job types: %w", err)
	}
	out := make([]*types.JobType, 0, len(raw))
	for field, val := range raw {
		jt, err := decodeChecked[types.JobType](val, field, func(v *types.JobType) string { return v.UUID })
		if err != nil {
			return nil, err
		}
		out = append(out, jt)
	}
	return out, nil
}

func (s *RedisStore) GetJobType(ctx context.Context, id string) (*types.JobType, error) {
	if jt, ok := s.cache.get(id); ok {
		return jt, nil
	}
	val, err := s.client.HGet(ctx, keyJobTypes, id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get job type: %w", err)
	}
	jt, err := decodeChecked[types.JobType](val, id, func(v *types.JobType) string { return v.UUID })
	if err != nil {
		return nil, err
	}
	s.cache.put(jt)
	return jt, nil
}

func (s *RedisStore) NewJobType(ctx context.Context, jt *types.JobType) error {
	raw, err := json.Marshal(jt)
	if err != nil {
		return fmt.Errorf("store: encode job type: %w", err)
	}
	if err := s.client.HSet(ctx, keyJobTypes, jt.UUID, raw).Err(); err != nil {
		return fmt.Errorf("store: new job type: %w", err)
	}
	return nil
}

// ---- schedule items ----

func (s *RedisStore) GetScheduleItems(ctx context.Context) ([]*types.ScheduleItem, error) {
	raw, err := s.client.HGetAll(ctx, keyScheduleItems).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get schedule items: %w", err)
	}
	out := make([]*types.ScheduleItem, 0, len(raw))
	for field, val := range raw {
		si, err := decodeChecked[types.ScheduleItem](val, field, func(v *types.ScheduleItem) string { return v.UUID })
		if err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, nil
}

func (s *RedisStore) GetScheduleItem(ctx context.Context, id string) (*types.ScheduleItem, error) {
	val, err := s.client.HGet(ctx, keyScheduleItems, id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get schedule item: %w", err)
	}
	return decodeChecked[types.ScheduleItem](val, id, func(v *types.ScheduleItem) string { return v.UUID })
}

func (s *RedisStore) NewScheduleItem(ctx context.Context, si *types.ScheduleItem) error {
	raw, err := json.Marshal(si)
	if err != nil {
		return fmt.Errorf("store: encode schedule item: %w", err)
	}
	if err := s.client.HSet(ctx, keyScheduleItems, si.UUID, raw).Err(); err != nil {
		return fmt.Errorf("store: new schedule item: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteScheduleItem(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, keyScheduleItems, id).Err(); err != nil {
		return fmt.Errorf("store: delete schedule item: %w", err)
	}
	return nil
}

// ---- node-type binding ----

func (s *RedisStore) SetNodeType(ctx context.Context, nodeTypeUUID string) error {
	nt, err := s.GetNodeType(ctx, nodeTypeUUID)
	if err != nil {
		return err
	}
	s.node.NodeTypeUUID = nt.UUID
	s.node.NodeType = nt
	return s.writeNode(ctx, s.node)
}

func (s *RedisStore) SetNodeTypeSoft(ctx context.Context, nodeTypeUUID string) error {
	nt, err := s.GetNodeType(ctx, nodeTypeUUID)
	if err != nil {
		return err
	}
	s.node.NodeTypeUUID = nt.UUID
	s.node.NodeType = nt
	return nil
}

func (s *RedisStore) writeNode(ctx context.Context, node *types.Node) error {
	raw, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node: %w", err)
	}
	return s.client.HSet(ctx, keyNodes, node.UUID, raw).Err()
}

// ---- jobs ----

func (s *RedisStore) EnqueueJob(ctx context.Context, job *types.Job) error {
	now := s.clk.NowMillis()
	job.EnqueuedAt = &now
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("store: encode job: %w", err)
	}
	if err := s.client.RPush(ctx, keyJobsWaiting(s.node.NodeTypeUUID), raw).Err(); err != nil {
		return fmt.Errorf("store: enqueue job: %w", err)
	}
	return nil
}

// DequeueJob blocks indefinitely (BLPOP with no timeout) until a job is
// available on the current node type's waiting queue.
func (s *RedisStore) DequeueJob(ctx context.Context) (*types.Job, error) {
	res, err := s.client.BLPop(ctx, 0, keyJobsWaiting(s.node.NodeTypeUUID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: dequeue job: %w", err)
	}
	// res[0] is the key name, res[1] is the popped value.
	var job types.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("store: decode dequeued job: %w", err)
	}

	jt, err := s.GetJobType(ctx, job.JobTypeUUID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidJobType, job.JobTypeUUID)
	}
	job.JobType = jt

	now := s.clk.NowMillis()
	job.StartedAt = &now
	job.ExecutingNode = s.node.UUID

	raw, err := json.Marshal(&job)
	if err != nil {
		return nil, fmt.Errorf("store: encode in-progress job: %w", err)
	}
	if err := s.client.HSet(ctx, keyJobsInProgress(s.node.NodeTypeUUID), job.UUID, raw).Err(); err != nil {
		return nil, fmt.Errorf("store: mark in progress: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) FinishJob(ctx context.Context, job *types.Job, results, errs interface{}) error {
	now := s.clk.NowMillis()
	job.EndedAt = &now
	job.Results = results
	job.Errors = errs

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("store: encode finished job: %w", err)
	}

	ntUUID := s.node.NodeTypeUUID
	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, keyJobsInProgress(ntUUID), job.UUID)
	pipe.HSet(ctx, keyJobsFinished(ntUUID), job.UUID, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store: finish job: %w", err)
	}
	return nil
}

// ClaimJobScheduled runs the CAS that guarantees a ScheduleItem is claimed
// by at most one node per tick: the new value is only written if the
// current value still stringly equals the item as the caller last saw it.
func (s *RedisStore) ClaimJobScheduled(ctx context.Context, item *types.ScheduleItem) (*types.ScheduleItem, bool, error) {
	expected, err := json.Marshal(item)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode expected schedule item: %w", err)
	}

	now := s.clk.NowMillis()
	claimed := *item
	claimed.LastScheduledAt = &now
	claimed.LastScheduledBy = s.node.UUID
	newVal, err := json.Marshal(&claimed)
	if err != nil {
		return nil, false, fmt.Errorf("store: encode claimed schedule item: %w", err)
	}

	res, err := casScript.Run(ctx, s.client, []string{keyScheduleItems}, item.UUID, string(expected), string(newVal)).Int()
	if err != nil {
		return nil, false, fmt.Errorf("store: claim schedule item: %w", err)
	}
	if res == 0 {
		return nil, false, nil
	}
	return &claimed, true, nil
}

func (s *RedisStore) hydrateJobs(ctx context.Context, raw map[string]string) ([]*types.Job, error) {
	out := make([]*types.Job, 0, len(raw))
	for field, val := range raw {
		job, err := decodeChecked[types.Job](val, field, func(v *types.Job) string { return v.UUID })
		if err != nil {
			return nil, err
		}
		if job.JobTypeUUID != "" {
			if jt, err := s.GetJobType(ctx, job.JobTypeUUID); err == nil {
				job.JobType = jt
			}
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *RedisStore) GetAllJobsWaiting(ctx context.Context) ([]*types.Job, error) {
	vals, err := s.client.LRange(ctx, keyJobsWaiting(s.node.NodeTypeUUID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get waiting jobs: %w", err)
	}
	out := make([]*types.Job, 0, len(vals))
	for _, val := range vals {
		var job types.Job
		if err := json.Unmarshal([]byte(val), &job); err != nil {
			return nil, fmt.Errorf("store: decode waiting job: %w", err)
		}
		if jt, err := s.GetJobType(ctx, job.JobTypeUUID); err == nil {
			job.JobType = jt
		}
		out = append(out, &job)
	}
	return out, nil
}

func (s *RedisStore) GetAllJobsInProgress(ctx context.Context) ([]*types.Job, error) {
	raw, err := s.client.HGetAll(ctx, keyJobsInProgress(s.node.NodeTypeUUID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get in-progress jobs: %w", err)
	}
	return s.hydrateJobs(ctx, raw)
}

func (s *RedisStore) GetAllJobsFinished(ctx context.Context) ([]*types.Job, error) {
	raw, err := s.client.HGetAll(ctx, keyJobsFinished(s.node.NodeTypeUUID)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get finished jobs: %w", err)
	}
	return s.hydrateJobs(ctx, raw)
}

func (s *RedisStore) GetFinishedJob(ctx context.Context, id string) (*types.Job, error) {
	val, err := s.client.HGet(ctx, keyJobsFinished(s.node.NodeTypeUUID), id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get finished job: %w", err)
	}
	job, err := decodeChecked[types.Job](val, id, func(v *types.Job) string { return v.UUID })
	if err != nil {
		return nil, err
	}
	if jt, err := s.GetJobType(ctx, job.JobTypeUUID); err == nil {
		job.JobType = jt
	}
	return job, nil
}

// ---- liveness ----

func (s *RedisStore) Ping(ctx context.Context) error {
	s.node.LastPing = s.clk.NowMillis()
	if err := s.writeNode(ctx, s.node); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

func (s *RedisStore) isFresh(node *types.Node) bool {
	return time.Duration(s.clk.NowMillis()-node.LastPing)*time.Millisecond < staleAfter
}

func (s *RedisStore) GetNodes(ctx context.Context) ([]*types.Node, error) {
	raw, err := s.client.HGetAll(ctx, keyNodes).Result()
	if err != nil {
		return nil, fmt.Errorf("store: get nodes: %w", err)
	}
	out := make([]*types.Node, 0, len(raw))
	for field, val := range raw {
		n, err := decodeChecked[types.Node](val, field, func(v *types.Node) string { return v.UUID })
		if err != nil {
			return nil, err
		}
		if s.isFresh(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *RedisStore) GetOtherNode(ctx context.Context, id string) (*types.Node, error) {
	val, err := s.client.HGet(ctx, keyNodes, id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get other node: %w", err)
	}
	n, err := decodeChecked[types.Node](val, id, func(v *types.Node) string { return v.UUID })
	if err != nil {
		return nil, err
	}
	if !s.isFresh(n) {
		return nil, ErrNotFound
	}
	return n, nil
}

// Clean wipes every fleet key. Test-only.
func (s *RedisStore) Clean(ctx context.Context) error {
	keys, err := s.client.Keys(ctx, "*").Result()
	if err != nil {
		return fmt.Errorf("store: clean: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

// decodeChecked unmarshals raw into T and fails with ErrConsistency if the
// decoded uuid disagrees with the hash field it was read from.
func decodeChecked[T any](raw, field string, uuidOf func(*T) string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("store: decode: %w", err)
	}
	if uuidOf(&v) != field {
		return nil, ErrConsistency
	}
	return &v, nil
}
