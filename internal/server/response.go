package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/me/bloodlens/pkg/model"
)

// requestID generates a unique request identifier.
func requestID() string {
	return "req_" + uuid.New().String()[:8]
}

// respondOK writes a success response with the standard envelope.
func respondOK(w http.ResponseWriter, reqID string, data any) {
	respondJSON(w, http.StatusOK, reqID, data, nil, nil)
}

// respondList writes a success response with pagination.
func respondList(w http.ResponseWriter, reqID string, data any, pg *model.Pagination) {
	respondJSON(w, http.StatusOK, reqID, data, pg, nil)
}

// respondError writes an error response with the standard envelope.
func respondError(w http.ResponseWriter, reqID string, status int, apiErr *model.APIError) {
	respondJSON(w, status, reqID, nil, nil, apiErr)
}

// respondErr writes any error with the status matching its code. Errors
// without a code are logged and reported as internal.
func respondErr(w http.ResponseWriter, logger *slog.Logger, reqID string, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		logger.Error("request failed", "request_id", reqID, "error", err)
		apiErr = &model.APIError{Code: model.ErrInternal, Message: "internal error"}
	}
	respondError(w, reqID, statusFor(apiErr.Code), apiErr)
}

// statusFor maps an error code to its HTTP status.
func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrValidation:
		return http.StatusBadRequest
	case model.ErrUnauthorized, model.ErrSessionExpired:
		return http.StatusUnauthorized
	case model.ErrNotFound:
		return http.StatusNotFound
	case model.ErrRateLimited:
		return http.StatusTooManyRequests
	case model.ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, status int, reqID string, data any, pg *model.Pagination, apiErr *model.APIError) {
	resp := model.Response{
		RequestID:  reqID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
		Pagination: pg,
		Error:      apiErr,
	}
	if apiErr != nil {
		resp.Status = "error"
	} else {
		resp.Status = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
