package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nodefleet/fleet/pkg/types"
)

// jobSummary is the listing shape for finished jobs: results/errors are
// collapsed to presence booleans to bound response size (§6 of the base
// spec). The singular GET returns the full *types.Job instead.
type jobSummary struct {
	UUID          string `json:"uuid"`
	JobTypeUUID   string `json:"job_type_uuid"`
	ExecutingNode string `json:"executing_node,omitempty"`
	EnqueuedAt    *int64 `json:"enqueued_at,omitempty"`
	StartedAt     *int64 `json:"started_at,omitempty"`
	EndedAt       *int64 `json:"ended_at,omitempty"`
	HasResults    bool   `json:"has_results"`
	HasErrors     bool   `json:"has_errors"`
}

func summarize(job *types.Job) jobSummary {
	return jobSummary{
		UUID:          job.UUID,
		JobTypeUUID:   job.JobTypeUUID,
		ExecutingNode: job.ExecutingNode,
		EnqueuedAt:    job.EnqueuedAt,
		StartedAt:     job.StartedAt,
		EndedAt:       job.EndedAt,
		HasResults:    job.Results != nil,
		HasErrors:     job.Errors != nil,
	}
}

func (a *API) listQueuedJobs(w http.ResponseWriter, r *http.Request) {
	nodeTypeUUID := pathVar(r, "node_type_uuid")
	var jobs []*types.Job
	err := a.withNodeType(r.Context(), nodeTypeUUID, func() error {
		var err error
		jobs, err = a.store.GetAllJobsWaiting(r.Context())
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) listInProgressJobs(w http.ResponseWriter, r *http.Request) {
	nodeTypeUUID := pathVar(r, "node_type_uuid")
	var jobs []*types.Job
	err := a.withNodeType(r.Context(), nodeTypeUUID, func() error {
		var err error
		jobs, err = a.store.GetAllJobsInProgress(r.Context())
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) listFinishedJobs(w http.ResponseWriter, r *http.Request) {
	nodeTypeUUID := pathVar(r, "node_type_uuid")
	var jobs []*types.Job
	err := a.withNodeType(r.Context(), nodeTypeUUID, func() error {
		var err error
		jobs, err = a.store.GetAllJobsFinished(r.Context())
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	summaries := make([]jobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, summarize(j))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) getFinishedJob(w http.ResponseWriter, r *http.Request) {
	nodeTypeUUID := pathVar(r, "node_type_uuid")
	jobUUID := pathVar(r, "uuid")

	var job *types.Job
	err := a.withNodeType(r.Context(), nodeTypeUUID, func() error {
		var err error
		job, err = a.store.GetFinishedJob(r.Context(), jobUUID)
		return err
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// enqueueJob resolves the node type the job's JobType targets (stored as a
// name), rebinds the shared handle, and enqueues a fresh Job on that
// node type's waiting queue.
func (a *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		JobTypeUUID string                 `json:"job_type_uuid"`
		Arguments   map[string]interface{} `json:"arguments"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	ctx := r.Context()
	jt, err := a.store.GetJobType(ctx, body.JobTypeUUID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	nt, err := a.store.ResolveNodeTypeByName(ctx, jt.NodeType)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	job := &types.Job{
		UUID:        uuid.NewString(),
		JobTypeUUID: jt.UUID,
		Arguments:   body.Arguments,
	}

	err = a.withNodeType(ctx, nt.UUID, func() error {
		return a.store.EnqueueJob(ctx, job)
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if a.metrics != nil {
		a.metrics.RecordEnqueue()
	}
	writeJSON(w, http.StatusOK, job)
}
