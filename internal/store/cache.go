package store

import (
	"sync"

	"github.com/nodefleet/fleet/pkg/types"
)

// jobTypeCache is a process-local, read-through cache from JobType uuid to
// the decoded JobType. It is populated on first miss and never invalidated
// at runtime: an operator who edits a JobType must restart nodes to pick up
// the change. The hybrid map-plus-mutex
// shape mirrors the teacher's job state index, narrowed to a single lookup
// table since the store, not an in-memory manager, now owns job state.
type jobTypeCache struct {
	mu    sync.RWMutex
	types map[string]*types.JobType
}

func newJobTypeCache() *jobTypeCache {
	return &jobTypeCache{types: make(map[string]*types.JobType)}
}

func (c *jobTypeCache) get(uuid string) (*types.JobType, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	jt, ok := c.types[uuid]
	return jt, ok
}

func (c *jobTypeCache) put(jt *types.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[jt.UUID] = jt
}
