package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"peerhub/pkg/domain"
)

func (h *Handler) volumeGet(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Volume(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) volumePut(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	body, ok := h.ownerBody(w, r, name)
	if !ok {
		return
	}
	v, err := domain.Decode[domain.Volume](domain.VolumeSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if v.Name != name {
		fail(w, r, domain.InvalidFormatError{Entity: domain.EntityVolume, Field: "name", Reason: "does not match the path"})
		return
	}
	if v.Owner != nil {
		if err := h.ownedBy(r, name.Owner, *v.Owner); err != nil {
			fail(w, r, err)
			return
		}
	}
	if err := h.svc.CreateVolume(r.Context(), v); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

func (h *Handler) volumeDelete(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	actor, err := h.authenticateAs(r, nil, name.Owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeleteVolume(r.Context(), actor, name, purgeRequested(r)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) volumeDrives(w http.ResponseWriter, r *http.Request) {
	drives, err := h.svc.VolumeDrives(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drives": listOf(drives)})
}

func (h *Handler) kvsGet(w http.ResponseWriter, r *http.Request) {
	k, err := h.svc.KeyValueStore(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, k)
}

func (h *Handler) kvsPut(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	body, ok := h.ownerBody(w, r, name)
	if !ok {
		return
	}
	k, err := domain.Decode[domain.KeyValueStore](domain.KeyValueStoreSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if k.Name != name {
		fail(w, r, domain.InvalidFormatError{Entity: domain.EntityKeyValueStore, Field: "name", Reason: "does not match the path"})
		return
	}
	if k.Owner != nil {
		if err := h.ownedBy(r, name.Owner, *k.Owner); err != nil {
			fail(w, r, err)
			return
		}
	}
	if err := h.svc.CreateKeyValueStore(r.Context(), k); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

func (h *Handler) kvsDelete(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	if _, err := h.authenticateAs(r, nil, name.Owner); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeleteKeyValueStore(r.Context(), name); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) driveGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Drive(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) drivePut(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	body, ok := h.ownerBody(w, r, name)
	if !ok {
		return
	}
	d, err := domain.Decode[domain.Drive](domain.DriveSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if d.Name != name || d.Owner != name.Owner {
		fail(w, r, domain.InvalidFormatError{Entity: domain.EntityDrive, Field: "name", Reason: "does not match the path"})
		return
	}
	if err := h.svc.CreateDrive(r.Context(), d); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

func (h *Handler) driveDelete(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	if _, err := h.authenticateAs(r, nil, name.Owner); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeleteDrive(r.Context(), name); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// invitationPut lets the drive owner invite key, or key accept a pending
// invitation.
func (h *Handler) invitationPut(w http.ResponseWriter, r *http.Request) {
	name, key := qualified(r), mux.Vars(r)["key"]
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	signer, err := h.authenticateAs(r, body, name.Owner, key)
	if err != nil {
		fail(w, r, err)
		return
	}
	if signer != name.Owner {
		if _, err := h.svc.Confirm(r.Context(), name, key); err != nil {
			fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	inv, err := domain.Decode[domain.Invitation](domain.InvitationSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	added, err := h.svc.Invite(r.Context(), name, key, inv)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, added)
}

func (h *Handler) invitationsPut(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	body, ok := h.ownerBody(w, r, name)
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if err := decodeJSON(body, &raw); err != nil {
		fail(w, r, err)
		return
	}
	invitations := make(map[string]domain.Invitation, len(raw))
	for key, doc := range raw {
		inv, err := domain.Decode[domain.Invitation](domain.InvitationSchema, doc)
		if err != nil {
			fail(w, r, err)
			return
		}
		invitations[key] = inv
	}
	invited, err := h.svc.InviteMany(r.Context(), name, invitations)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invited": listOf(invited)})
}

// ownerBody reads the body and authenticates it as the owner of name.
func (h *Handler) ownerBody(w http.ResponseWriter, r *http.Request, name domain.QualifiedName) ([]byte, bool) {
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return nil, false
	}
	if _, err := h.authenticateAs(r, body, name.Owner); err != nil {
		fail(w, r, err)
		return nil, false
	}
	return body, true
}
