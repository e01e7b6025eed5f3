// Package httpapi exposes the hub operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"peerhub/internal/auth"
	"peerhub/internal/core"
	"peerhub/internal/metrics"
	"peerhub/pkg/domain"
)

// PairingHeader carries the passphrase hash of pairing lookups.
const PairingHeader = "infinit-pairing-passphrase-hash"

// maxBody bounds request bodies; crash reports carry minidumps.
const maxBody = 16 << 20

// Options configure the handler.
type Options struct {
	Service       *core.Service
	Authenticator *auth.Authenticator
	Logger        zerolog.Logger
	Version       string
}

// Handler routes requests to the service.
type Handler struct {
	svc     *core.Service
	auth    *auth.Authenticator
	version string
	router  *mux.Router
	root    http.Handler
}

// New builds the handler and its routes.
func New(opts Options) *Handler {
	if opts.Authenticator == nil {
		opts.Authenticator = auth.New(0, opts.Service.Now)
	}
	h := &Handler{svc: opts.Service, auth: opts.Authenticator, version: opts.Version, router: mux.NewRouter()}
	h.routes()
	h.router.Use(metrics.Middleware)

	access := hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("request")
	})
	h.root = hlog.NewHandler(opts.Logger.With().Str("component", "http").Logger())(
		hlog.RequestIDHandler("req_id", "Request-Id")(access(h.router)),
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

func (h *Handler) routes() {
	r := h.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route/not_found", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "route/method_not_allowed", "method not allowed")
	})

	r.HandleFunc("/", h.home).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/crash/report", h.crashReport).Methods(http.MethodPost, http.MethodPut)
	r.HandleFunc("/crash/report/{id}", h.crashReportFiles).Methods(http.MethodGet)

	// Lookups first: they share the /users/{name}/... shape.
	r.HandleFunc("/users", h.usersList).Methods(http.MethodGet)
	r.HandleFunc("/users/by_short_key_hash/{hash}", h.userByShortKeyHash).Methods(http.MethodGet)
	r.HandleFunc("/users/by_email/{email}", h.usersByEmail).Methods(http.MethodGet)
	r.HandleFunc("/users/by_ldap_dn/{dn}", h.userByLDAPDN).Methods(http.MethodGet)

	r.HandleFunc("/users/{name}", h.userGet).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}", h.userPut).Methods(http.MethodPut)
	r.HandleFunc("/users/{name}", h.userDelete).Methods(http.MethodDelete)
	r.HandleFunc("/users/{name}/private", h.userPrivate).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/archive", h.userArchive).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/archive", h.userArchivePost).Methods(http.MethodPost)
	r.HandleFunc("/users/{name}/networks", h.userNetworks).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/volumes", h.userVolumes).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/drives", h.userDrives).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/kvs", h.userKeyValueStores).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/credentials/{provider}", h.credentialsGet).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/credentials/{provider}/{id}", h.credentialsPut).Methods(http.MethodPut)
	r.HandleFunc("/users/{name}/credentials/{provider}/{id}", h.credentialsDelete).Methods(http.MethodDelete)
	r.HandleFunc("/users/{name}/emails/{email}", h.emailPut).Methods(http.MethodPut)
	r.HandleFunc("/users/{name}/emails/{email}/confirm", h.emailConfirm).Methods(http.MethodPost)
	r.HandleFunc("/users/{name}/pairing", h.pairingPut).Methods(http.MethodPut)
	r.HandleFunc("/users/{name}/pairing", h.pairingGet).Methods(http.MethodGet)
	r.HandleFunc("/users/{name}/pairing", h.pairingDelete).Methods(http.MethodDelete)
	r.HandleFunc("/users/{name}/pairing/status", h.pairingStatus).Methods(http.MethodGet)

	r.HandleFunc("/networks/{owner}/{name}", h.networkGet).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}", h.networkPut).Methods(http.MethodPut)
	r.HandleFunc("/networks/{owner}/{name}", h.networkDelete).Methods(http.MethodDelete)
	r.HandleFunc("/networks/{owner}/{name}/users", h.networkMembers).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/volumes", h.networkVolumes).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/drives", h.networkDrives).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/kvs", h.networkKeyValueStores).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/passports/{invitee}", h.passportGet).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/passports/{invitee}", h.passportPut).Methods(http.MethodPut)
	r.HandleFunc("/networks/{owner}/{name}/passports/{invitee}", h.passportDelete).Methods(http.MethodDelete)
	r.HandleFunc("/networks/{owner}/{name}/endpoints", h.endpointsGet).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/endpoints/{user}/{node}", h.endpointPut).Methods(http.MethodPut)
	r.HandleFunc("/networks/{owner}/{name}/endpoints/{user}/{node}", h.endpointDelete).Methods(http.MethodDelete)
	r.HandleFunc("/networks/{owner}/{name}/stat", h.statGet).Methods(http.MethodGet)
	r.HandleFunc("/networks/{owner}/{name}/stat/{user}/{node}", h.statPut).Methods(http.MethodPut)

	r.HandleFunc("/volumes/{owner}/{name}", h.volumeGet).Methods(http.MethodGet)
	r.HandleFunc("/volumes/{owner}/{name}", h.volumePut).Methods(http.MethodPut)
	r.HandleFunc("/volumes/{owner}/{name}", h.volumeDelete).Methods(http.MethodDelete)
	r.HandleFunc("/volumes/{owner}/{name}/drives", h.volumeDrives).Methods(http.MethodGet)

	r.HandleFunc("/kvs/{owner}/{name}", h.kvsGet).Methods(http.MethodGet)
	r.HandleFunc("/kvs/{owner}/{name}", h.kvsPut).Methods(http.MethodPut)
	r.HandleFunc("/kvs/{owner}/{name}", h.kvsDelete).Methods(http.MethodDelete)

	r.HandleFunc("/drives/{owner}/{name}", h.driveGet).Methods(http.MethodGet)
	r.HandleFunc("/drives/{owner}/{name}", h.drivePut).Methods(http.MethodPut)
	r.HandleFunc("/drives/{owner}/{name}", h.driveDelete).Methods(http.MethodDelete)
	r.HandleFunc("/drives/{owner}/{name}/invitations", h.invitationsPut).Methods(http.MethodPut)
	r.HandleFunc("/drives/{owner}/{name}/invitations/{key}", h.invitationPut).Methods(http.MethodPut)
}

func (h *Handler) home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": h.version})
}

// errMalformedBody reports a request body that is not the expected JSON.
var errMalformedBody = errors.New("malformed body")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return body, nil
}

func decodeJSON(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

// qualified returns the owner/name identity of the request path.
func qualified(r *http.Request) domain.QualifiedName {
	v := mux.Vars(r)
	return domain.NewQualifiedName(v["owner"], v["name"])
}

func (h *Handler) identity(ctx context.Context, name string) auth.Identity {
	return auth.Identity{Name: name, Key: func() (domain.PublicKey, error) {
		u, err := h.svc.User(ctx, name)
		if err != nil {
			return domain.PublicKey{}, err
		}
		return u.PublicKey, nil
	}}
}

// authenticate checks the request signature against the identities in
// order and returns the name that signed. Failure reasons are logged and
// never returned.
func (h *Handler) authenticate(r *http.Request, body []byte, ids ...auth.Identity) (string, error) {
	name, err := h.auth.VerifyAny(auth.FromHTTP(r, body), ids...)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("authentication failed")
		return "", domain.ErrAuthentication
	}
	return name, nil
}

// authenticateAs is authenticate with users named by the path.
func (h *Handler) authenticateAs(r *http.Request, body []byte, names ...string) (string, error) {
	ids := make([]auth.Identity, 0, len(names))
	for _, n := range names {
		ids = append(ids, h.identity(r.Context(), n))
	}
	return h.authenticate(r, body, ids...)
}

func purgeRequested(r *http.Request) bool {
	switch r.URL.Query().Get("purge") {
	case "1", "true", "yes":
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeCreated(w http.ResponseWriter, created bool) {
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{})
}
