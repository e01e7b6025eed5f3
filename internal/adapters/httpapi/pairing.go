package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"peerhub/pkg/domain"
)

type pairingView struct {
	Name       string          `json:"name"`
	Data       json.RawMessage `json:"data"`
	Expiration time.Time       `json:"expiration"`
}

func (h *Handler) pairingPut(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.authenticateAs(r, body, name); err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		PassphraseHash string          `json:"passphrase_hash"`
		Data           json.RawMessage `json:"data"`
	}
	if err := decodeJSON(body, &req); err != nil {
		fail(w, r, err)
		return
	}
	if len(req.Data) == 0 || string(req.Data) == "null" {
		fail(w, r, domain.MissingFieldError{Entity: domain.EntityPairing, Field: "data"})
		return
	}
	p, err := h.svc.PutPairing(r.Context(), name, req.PassphraseHash, req.Data)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expiration": p.Expiration})
}

// pairingGet hands the record out once, to a caller presenting the
// passphrase hash it was stored with.
func (h *Handler) pairingGet(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, name); err != nil {
		fail(w, r, err)
		return
	}
	hash := r.Header.Get(PairingHeader)
	if hash == "" {
		fail(w, r, domain.MissingFieldError{Entity: domain.EntityPairing, Field: "passphrase_hash"})
		return
	}
	p, err := h.svc.GetPairing(r.Context(), name, hash)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pairingView{Name: p.Name, Data: p.Data, Expiration: p.Expiration})
}

func (h *Handler) pairingStatus(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, name); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.PairingStatus(r.Context(), name); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) pairingDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, name); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeletePairing(r.Context(), name); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
