package httpapi

import (
	"net/http"

	"github.com/nodefleet/fleet/pkg/types"
)

func (a *API) listNodeTypes(w http.ResponseWriter, r *http.Request) {
	nts, err := a.store.GetNodeTypes(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nts)
}

func (a *API) getNodeType(w http.ResponseWriter, r *http.Request) {
	uuid := pathVar(r, "uuid")
	nt, err := a.store.GetNodeType(r.Context(), uuid)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nt)
}

// putNodeType creates or updates a node type; the body's uuid must match
// the URL uuid.
func (a *API) putNodeType(w http.ResponseWriter, r *http.Request) {
	uuid := pathVar(r, "uuid")

	var nt types.NodeType
	if err := decodeBody(r, &nt); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if nt.UUID != uuid {
		writeError(w, http.StatusBadRequest, "body uuid must equal URL uuid")
		return
	}

	if err := a.store.NewNodeType(r.Context(), &nt); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nt)
}
