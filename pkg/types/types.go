// Package types defines the domain entities shared by every fleet
// component: node types, nodes, job types, jobs and schedule items.
//
// Every entity round-trips through JSON exactly as it is persisted in the
// store (see internal/store); transient, denormalised fields are tagged
// json:"-" so they never leak into a hash value written to Redis.
package types

// Executor names a pluggable job executor.
type Executor string

const (
	ExecutorBash    Executor = "bash"
	ExecutorSidekiq Executor = "sidekiq"
)

// NodeType is a named fleet partition: every Node binds to one, every
// JobType targets one by name.
type NodeType struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	ThreadCount int    `json:"thread_count"`
}

// Node is one running fleet process. NodeType is a read convenience
// hydrated by callers that already resolved NodeTypeUUID; it is never
// written back to the store.
type Node struct {
	UUID         string    `json:"uuid"`
	NodeTypeUUID string    `json:"node_type_uuid,omitempty"`
	NodeType     *NodeType `json:"-"`
	LastPing     int64     `json:"last_ping"`
}

// JobType is a declarative template for a unit of work. NodeType is
// stored as a name, not a uuid, so job types don't couple to node-type
// identity.
type JobType struct {
	UUID     string                 `json:"uuid"`
	Name     string                 `json:"name"`
	Executor Executor               `json:"executor"`
	Metadata map[string]interface{} `json:"metadata"`
	Unique   bool                   `json:"unique"`
	NodeType string                 `json:"node_type"`
	Timeout  *int64                 `json:"timeout,omitempty"`
}

// Job is one concrete execution of a JobType. JobType is hydrated by the
// store's read-through cache and never persisted on the Job itself.
type Job struct {
	UUID          string                 `json:"uuid"`
	JobTypeUUID   string                 `json:"job_type_uuid"`
	JobType       *JobType               `json:"-"`
	Arguments     map[string]interface{} `json:"arguments"`
	ExecutingNode string                 `json:"executing_node,omitempty"`
	EnqueuedAt    *int64                 `json:"enqueued_at,omitempty"`
	StartedAt     *int64                 `json:"started_at,omitempty"`
	EndedAt       *int64                 `json:"ended_at,omitempty"`
	Results       interface{}            `json:"results,omitempty"`
	Errors        interface{}            `json:"errors,omitempty"`
}

// ScheduleItem derives a Job from a JobType every Interval milliseconds.
type ScheduleItem struct {
	UUID            string                 `json:"uuid"`
	Interval        int64                  `json:"interval"`
	JobTypeUUID     string                 `json:"job_type_uuid"`
	JobArguments    map[string]interface{} `json:"job_arguments"`
	LastScheduledAt *int64                 `json:"last_scheduled_at,omitempty"`
	LastScheduledBy string                 `json:"last_scheduled_by,omitempty"`
}
