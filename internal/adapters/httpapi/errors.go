package httpapi

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"peerhub/internal/core"
	"peerhub/pkg/domain"
)

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
	Name   string `json:"name,omitempty"`
	ID     string `json:"id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, reason string) {
	writeJSON(w, status, errorBody{Error: code, Reason: reason})
}

// fail maps a service error onto a response. Unknown errors are logged and
// answered with a generic 500.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		notFound  domain.NotFoundError
		duplicate domain.DuplicateError
		missing   domain.MissingFieldError
		invalid   domain.InvalidFormatError
		purge     core.PurgeFailure
	)
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		writeError(w, http.StatusForbidden, "user/unauthorized", "authentication error")
	case errors.Is(err, errMalformedBody):
		writeError(w, http.StatusBadRequest, "body/malformed", err.Error())
	case errors.As(err, &purge):
		writeError(w, http.StatusConflict, "purge/incomplete", err.Error())
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: notFound.Code(), Reason: notFound.Error(), Name: notFound.Name})
	case errors.As(err, &duplicate):
		writeJSON(w, http.StatusConflict, errorBody{Error: duplicate.Code(), Reason: duplicate.Error(), ID: duplicate.Name})
	case errors.As(err, &missing):
		writeError(w, http.StatusUnprocessableEntity, missing.Code(), missing.Error())
	case errors.As(err, &invalid):
		status := http.StatusUnprocessableEntity
		if invalid.Field == "body" {
			status = http.StatusBadRequest
		}
		writeError(w, status, invalid.Code(), invalid.Error())
	case errors.Is(err, domain.ErrNoLongerAvailable):
		writeError(w, http.StatusGone, "resource/gone", err.Error())
	case errors.Is(err, domain.ErrPassphraseMismatch):
		writeError(w, http.StatusForbidden, "pairing/passphrase_mismatch", err.Error())
	case errors.Is(err, domain.ErrAlreadyConfirmed):
		writeError(w, http.StatusConflict, "invitation/already_confirmed", err.Error())
	case errors.Is(err, domain.ErrNotInvited):
		writeError(w, http.StatusNotFound, "invitation/not_invited", err.Error())
	case errors.Is(err, domain.ErrPaymentRequired):
		writeError(w, http.StatusPaymentRequired, "payment/required", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "user/forbidden", err.Error())
	case errors.Is(err, domain.ErrUpdateConflict):
		writeError(w, http.StatusConflict, "update/conflict", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource/not_found", err.Error())
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}
