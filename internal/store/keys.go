package store

import "fmt"

// Logical key layout, bit-exact across every process in the fleet.
const (
	keyNodes         = "nodes"
	keyNodeTypes     = "node_types"
	keyJobTypes      = "job_types"
	keyScheduleItems = "schedule_items"
)

func keyJobsWaiting(nodeTypeUUID string) string {
	return fmt.Sprintf("jobs_waiting_%s", nodeTypeUUID)
}

func keyJobsInProgress(nodeTypeUUID string) string {
	return fmt.Sprintf("jobs_in_progress_%s", nodeTypeUUID)
}

func keyJobsFinished(nodeTypeUUID string) string {
	return fmt.Sprintf("jobs_finished_%s", nodeTypeUUID)
}
