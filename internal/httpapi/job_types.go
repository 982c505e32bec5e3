package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nodefleet/fleet/pkg/types"
)

func (a *API) listJobTypes(w http.ResponseWriter, r *http.Request) {
	jts, err := a.store.GetJobTypes(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jts)
}

func (a *API) getJobType(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "uuid")
	jt, err := a.store.GetJobType(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jt)
}

// createJobType mints the uuid server-side; any uuid present in the body
// is ignored.
func (a *API) createJobType(w http.ResponseWriter, r *http.Request) {
	var jt types.JobType
	if err := decodeBody(r, &jt); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	jt.UUID = uuid.NewString()

	if err := a.store.NewJobType(r.Context(), &jt); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jt)
}
