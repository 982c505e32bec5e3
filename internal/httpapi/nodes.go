package httpapi

import (
	"net/http"
)

func (a *API) listNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := a.store.GetNodes(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if a.metrics != nil {
		a.metrics.SetNodesActive(len(nodes))
	}
	writeJSON(w, http.StatusOK, nodes)
}

// getNode fetches one node; stale nodes (last_ping older than the
// liveness window) are indistinguishable from missing ones, so the store
// already returns ErrNotFound for them.
func (a *API) getNode(w http.ResponseWriter, r *http.Request) {
	uuid := pathVar(r, "uuid")
	node, err := a.store.GetOtherNode(r.Context(), uuid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
