package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"peerhub/internal/auth"
	"peerhub/pkg/domain"
)

func (h *Handler) networkGet(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Network(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) networkPut(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.authenticateAs(r, body, name.Owner); err != nil {
		fail(w, r, err)
		return
	}
	n, err := domain.Decode[domain.Network](domain.NetworkSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if n.Name != name {
		fail(w, r, domain.InvalidFormatError{Entity: domain.EntityNetwork, Field: "name", Reason: "does not match the path"})
		return
	}
	if err := h.ownedBy(r, name.Owner, n.Owner); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.CreateNetwork(r.Context(), n); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

// ownedBy checks that key is the public key of the named user.
func (h *Handler) ownedBy(r *http.Request, owner string, key domain.PublicKey) error {
	u, err := h.svc.User(r.Context(), owner)
	if err != nil {
		return err
	}
	if !u.PublicKey.Equal(key) {
		return fmt.Errorf("%w: owner key is not the key of %s", domain.ErrForbidden, owner)
	}
	return nil
}

func (h *Handler) networkDelete(w http.ResponseWriter, r *http.Request) {
	name := qualified(r)
	actor, err := h.authenticateAs(r, nil, name.Owner)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeleteNetwork(r.Context(), actor, name, purgeRequested(r)); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) networkMembers(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.NetworkMembers(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": publicUsers(users)})
}

func (h *Handler) networkVolumes(w http.ResponseWriter, r *http.Request) {
	volumes, err := h.svc.NetworkVolumes(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volumes": listOf(volumes)})
}

func (h *Handler) networkDrives(w http.ResponseWriter, r *http.Request) {
	drives, err := h.svc.NetworkDrives(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drives": listOf(drives)})
}

func (h *Handler) networkKeyValueStores(w http.ResponseWriter, r *http.Request) {
	stores, err := h.svc.NetworkKeyValueStores(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kvs": listOf(stores)})
}

// passportGet is unauthenticated, like the network document that embeds
// the passport.
func (h *Handler) passportGet(w http.ResponseWriter, r *http.Request) {
	name, invitee := qualified(r), mux.Vars(r)["invitee"]
	p, err := h.svc.Passport(r.Context(), name, invitee)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// passportPut stores a passport signed by the network owner, by the
// invitee, or by the user named in the user header when that user holds a
// passport allowing to sign and certifies the new one.
func (h *Handler) passportPut(w http.ResponseWriter, r *http.Request) {
	name, invitee := qualified(r), mux.Vars(r)["invitee"]
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	ids := []auth.Identity{h.identity(r.Context(), name.Owner), h.identity(r.Context(), invitee)}
	certifier := r.Header.Get(auth.HeaderUser)
	if certifier != "" && certifier != name.Owner && certifier != invitee {
		ids = append(ids, h.identity(r.Context(), certifier))
	}
	signer, err := h.authenticate(r, body, ids...)
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := domain.Decode[domain.Passport](domain.PassportSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if signer != name.Owner && signer != invitee {
		if err := h.delegatedCertifier(r, name, signer, p); err != nil {
			fail(w, r, err)
			return
		}
	}
	if err := h.svc.PutPassport(r.Context(), name, invitee, p); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

func (h *Handler) delegatedCertifier(r *http.Request, name domain.QualifiedName, certifier string, p domain.Passport) error {
	own, err := h.svc.Passport(r.Context(), name, certifier)
	if err != nil {
		return fmt.Errorf("%w: %s holds no passport", domain.ErrForbidden, certifier)
	}
	if !own.AllowSign {
		return fmt.Errorf("%w: %s may not sign passports", domain.ErrForbidden, certifier)
	}
	u, err := h.svc.User(r.Context(), certifier)
	if err != nil {
		return err
	}
	if p.Certifier == nil || !p.Certifier.Equal(u.PublicKey) {
		return fmt.Errorf("%w: passport is not certified by %s", domain.ErrForbidden, certifier)
	}
	return nil
}

func (h *Handler) passportDelete(w http.ResponseWriter, r *http.Request) {
	name, invitee := qualified(r), mux.Vars(r)["invitee"]
	if _, err := h.authenticateAs(r, nil, name.Owner, invitee); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeletePassport(r.Context(), name, invitee); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) endpointsGet(w http.ResponseWriter, r *http.Request) {
	endpoints, err := h.svc.Endpoints(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, endpoints)
}

func (h *Handler) endpointPut(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.authenticateAs(r, body, v["user"]); err != nil {
		fail(w, r, err)
		return
	}
	e, err := domain.Decode[domain.Endpoints](domain.EndpointsSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.PutEndpoints(r.Context(), qualified(r), v["user"], v["node"], e); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}

func (h *Handler) endpointDelete(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if _, err := h.authenticateAs(r, nil, v["user"]); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.DeleteEndpoints(r.Context(), qualified(r), v["user"], v["node"]); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) statGet(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.NetworkStatistics(r.Context(), qualified(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) statPut(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.authenticateAs(r, body, v["user"]); err != nil {
		fail(w, r, err)
		return
	}
	var stats domain.Statistics
	if err := decodeJSON(body, &stats); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.PutStatistics(r.Context(), qualified(r), v["user"], v["node"], stats); err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, true)
}
