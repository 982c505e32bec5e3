// Package httpapi is the fleet's HTTP control plane: CRUD over node
// types, nodes, job types, jobs and schedule items, routed with
// gorilla/mux and wrapped in gorilla/handlers middleware.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/nodefleet/fleet/internal/metrics"
	"github.com/nodefleet/fleet/internal/store"
)

// API holds the dependencies every handler needs: a single store handle
// shared and mutex-guarded across concurrent requests (the node-type-scoped
// jobs endpoints temporarily rebind it), plus a logger.
type API struct {
	mu      sync.Mutex
	store   store.Store
	log     *slog.Logger
	key     string
	metrics *metrics.Collector
}

func New(s store.Store, apiKey string, log *slog.Logger) *API {
	return &API{store: s, log: log, key: apiKey}
}

// WithMetrics attaches a Collector so listNodes can report fleet_nodes_active
// on every scrape-adjacent read. Returns the API for chaining; safe to skip.
func (a *API) WithMetrics(m *metrics.Collector) *API {
	a.metrics = m
	return a
}

// Router builds the full mux, including middleware.
func (a *API) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", a.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/node_types", a.listNodeTypes).Methods(http.MethodGet)
	api.HandleFunc("/node_types/{uuid}", a.getNodeType).Methods(http.MethodGet)
	api.HandleFunc("/node_types/{uuid}", a.putNodeType).Methods(http.MethodPost)

	api.HandleFunc("/nodes", a.listNodes).Methods(http.MethodGet)
	api.HandleFunc("/nodes/{uuid}", a.getNode).Methods(http.MethodGet)

	api.HandleFunc("/job_types", a.listJobTypes).Methods(http.MethodGet)
	api.HandleFunc("/job_types/{uuid}", a.getJobType).Methods(http.MethodGet)
	api.HandleFunc("/job_types", a.createJobType).Methods(http.MethodPost)

	api.HandleFunc("/jobs/{node_type_uuid}/queued", a.listQueuedJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{node_type_uuid}/in_progress", a.listInProgressJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{node_type_uuid}/finished", a.listFinishedJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{node_type_uuid}/{uuid}", a.getFinishedJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs", a.enqueueJob).Methods(http.MethodPost)

	api.HandleFunc("/schedules", a.listSchedules).Methods(http.MethodGet)
	api.HandleFunc("/schedules/{uuid}", a.getSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedules", a.createSchedule).Methods(http.MethodPost)
	api.HandleFunc("/schedules/{uuid}", a.deleteSchedule).Methods(http.MethodDelete)

	r.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(false)))
	r.Use(a.requestLogger)
	r.Use(a.requireJSONOnPost)
	r.Use(a.requireBearerOnMutations)

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

// withNodeType runs fn with the shared store handle temporarily rebound to
// nodeTypeUUID, restoring the previous binding afterward if there was one;
// a handle with no previous binding stays bound to nodeTypeUUID. The mutex is held
// for the whole call: every store method used here is non-blocking I/O,
// never DequeueJob.
func (a *API) withNodeType(ctx context.Context, nodeTypeUUID string, fn func() error) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	previous := a.store.CurrentNodeTypeUUID()
	if err := a.store.SetNodeTypeSoft(ctx, nodeTypeUUID); err != nil {
		return err
	}
	defer func() {
		if previous != "" {
			_ = a.store.SetNodeTypeSoft(ctx, previous)
		}
	}()

	return fn()
}
