package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/nodefleet/fleet/pkg/types"
)

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.GetScheduleItems(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "uuid")
	item, err := a.store.GetScheduleItem(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) createSchedule(w http.ResponseWriter, r *http.Request) {
	var item types.ScheduleItem
	if err := decodeBody(r, &item); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	item.UUID = uuid.NewString()

	if err := a.store.NewScheduleItem(r.Context(), &item); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := pathVar(r, "uuid")
	if err := a.store.DeleteScheduleItem(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
