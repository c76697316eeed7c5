package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign-backend/internal/errors"
	"github.com/unclebandit/mailcampaign-backend/internal/logger"
	"github.com/unclebandit/mailcampaign-backend/internal/service"
)

type accountKey struct{}

// WithAccountID stores the authenticated account on the request context.
func WithAccountID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, accountKey{}, id)
}

// AccountID returns the authenticated account, if any.
func AccountID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(accountKey{}).(int)
	return id, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes and client messages.
func statusFor(err error) (int, string) {
	switch {
	case appErrors.IsCampaignNotFound(err):
		return http.StatusNotFound, "Campaign not found"
	case errors.Is(err, appErrors.ErrDatasetNotFound),
		errors.Is(err, appErrors.ErrSMTPConfigNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, appErrors.ErrCampaignAlreadySent):
		return http.StatusConflict, "Campaign not found or already sent"
	case errors.Is(err, appErrors.ErrDispatchInProgress),
		errors.Is(err, appErrors.ErrConcurrentUpdate):
		return http.StatusConflict, err.Error()
	case errors.Is(err, appErrors.ErrNoValidRecipients):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, appErrors.ErrProviderNotConfigured):
		return http.StatusPreconditionFailed, err.Error()
	case errors.Is(err, appErrors.ErrInvalidInput),
		errors.Is(err, service.ErrEmptyUpload):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.OrNop(log).Error("request failed", zap.Error(err))
	}
	writeMessage(w, status, msg)
}

// requireAccount returns the account id or writes 401.
func requireAccount(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, ok := AccountID(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Access token required")
	}
	return id, ok
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return pathID(w, r, "campaign")
}

func datasetID(w http.ResponseWriter, r *http.Request) (int, bool) {
	return pathID(w, r, "database")
}

// pathID parses the positive {id} route parameter.
func pathID(w http.ResponseWriter, r *http.Request, what string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		writeMessage(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}
