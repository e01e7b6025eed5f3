package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

func (h *Handler) crashReport(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var fields map[string]string
	if err := decodeJSON(body, &fields); err != nil {
		fail(w, r, err)
		return
	}
	id, err := h.svc.CrashReport(r.Context(), fields)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) crashReportFiles(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticateAs(r, nil, h.svc.Settings().DelegateUser); err != nil {
		fail(w, r, err)
		return
	}
	files, err := h.svc.CrashReportFiles(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}
