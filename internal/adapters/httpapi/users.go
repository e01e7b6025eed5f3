package httpapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gorilla/mux"

	"peerhub/pkg/domain"
)

func (h *Handler) usersList(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.Users(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": publicUsers(users)})
}

func (h *Handler) userByShortKeyHash(w http.ResponseWriter, r *http.Request) {
	hash := mux.Vars(r)["hash"]
	if !strings.HasPrefix(hash, "#") {
		hash = "#" + hash
	}
	u, err := h.svc.UserByShortKeyHash(r.Context(), hash)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, public(u))
}

func (h *Handler) usersByEmail(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.UsersByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": publicUsers(users)})
}

func (h *Handler) userByLDAPDN(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.UserByLDAPDN(r.Context(), mux.Vars(r)["dn"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, public(u))
}

func (h *Handler) userGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.User(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, public(u))
}

func (h *Handler) userPut(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	u, err := domain.Decode[domain.User](domain.UserSchema, body)
	if err != nil {
		fail(w, r, err)
		return
	}
	if u.Name != name {
		fail(w, r, domain.InvalidFormatError{Entity: domain.EntityUser, Field: "name", Reason: "does not match the path"})
		return
	}
	created, err := h.svc.CreateUser(r.Context(), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeCreated(w, created)
}

func (h *Handler) userDelete(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, name); err != nil {
		fail(w, r, err)
		return
	}
	report, err := h.svc.DeleteUser(r.Context(), name, purgeRequested(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": listOf(report.Removed)})
}

// userPrivate is readable by the delegate user only.
func (h *Handler) userPrivate(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, h.svc.Settings().DelegateUser); err != nil {
		fail(w, r, err)
		return
	}
	u, err := h.svc.User(r.Context(), name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, private(u))
}

func (h *Handler) userArchive(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticateAs(r, nil, h.svc.Settings().DelegateUser); err != nil {
		fail(w, r, err)
		return
	}
	name := mux.Vars(r)["name"]
	versions, err := h.svc.DeletedUser(r.Context(), name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "versions": versions})
}

func (h *Handler) userArchivePost(w http.ResponseWriter, r *http.Request) {
	if _, err := h.authenticateAs(r, nil, h.svc.Settings().DelegateUser); err != nil {
		fail(w, r, err)
		return
	}
	name := mux.Vars(r)["name"]
	versions, err := h.svc.ArchiveUser(r.Context(), name)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"name": name, "versions": versions})
}

// signedUser authenticates the request as the user of the path and loads
// that user.
func (h *Handler) signedUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	name := mux.Vars(r)["name"]
	if _, err := h.authenticateAs(r, nil, name); err != nil {
		fail(w, r, err)
		return domain.User{}, false
	}
	u, err := h.svc.User(r.Context(), name)
	if err != nil {
		fail(w, r, err)
		return domain.User{}, false
	}
	return u, true
}

func (h *Handler) userNetworks(w http.ResponseWriter, r *http.Request) {
	u, ok := h.signedUser(w, r)
	if !ok {
		return
	}
	networks, err := h.svc.NetworksForUser(r.Context(), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"networks": listOf(networks)})
}

func (h *Handler) userVolumes(w http.ResponseWriter, r *http.Request) {
	u, ok := h.signedUser(w, r)
	if !ok {
		return
	}
	volumes, err := h.svc.UserVolumes(r.Context(), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"volumes": listOf(volumes)})
}

func (h *Handler) userDrives(w http.ResponseWriter, r *http.Request) {
	u, ok := h.signedUser(w, r)
	if !ok {
		return
	}
	status := domain.InvitationStatus(r.URL.Query().Get("status"))
	drives, err := h.svc.UserDrives(r.Context(), u.Name, status)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"drives": listOf(drives)})
}

func (h *Handler) userKeyValueStores(w http.ResponseWriter, r *http.Request) {
	u, ok := h.signedUser(w, r)
	if !ok {
		return
	}
	stores, err := h.svc.UserKeyValueStores(r.Context(), u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kvs": listOf(stores)})
}

func (h *Handler) credentialsGet(w http.ResponseWriter, r *http.Request) {
	u, ok := h.signedUser(w, r)
	if !ok {
		return
	}
	provider := mux.Vars(r)["provider"]
	accounts := u.Accounts(provider)
	out := make([]domain.Account, 0, len(accounts))
	for _, id := range sortedIDs(accounts) {
		out = append(out, accounts[id])
	}
	writeJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

func (h *Handler) credentialsPut(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, err := h.authenticateAs(r, body, v["name"]); err != nil {
		fail(w, r, err)
		return
	}
	var account domain.Account
	if err := decodeJSON(body, &account); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.LinkAccount(r.Context(), v["name"], v["provider"], v["id"], account); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{})
}

func (h *Handler) credentialsDelete(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if _, err := h.authenticateAs(r, nil, v["name"]); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.UnlinkAccount(r.Context(), v["name"], v["provider"], v["id"]); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) emailPut(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	if _, err := h.authenticateAs(r, nil, v["name"]); err != nil {
		fail(w, r, err)
		return
	}
	if err := h.svc.AddEmail(r.Context(), v["name"], v["email"]); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) emailConfirm(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	body, err := readBody(w, r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var req struct {
		Code string `json:"confirmation_code"`
	}
	if err := decodeJSON(body, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.Code == "" {
		fail(w, r, domain.MissingFieldError{Entity: domain.EntityUser, Field: "confirmation_code"})
		return
	}
	if err := h.svc.ConfirmEmail(r.Context(), v["name"], v["email"], req.Code); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func sortedIDs(accounts map[string]domain.Account) []string {
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
