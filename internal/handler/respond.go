package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"club-ledger/internal/service"
	"club-ledger/internal/util"
	"club-ledger/internal/verify"
)

// Response is the standard API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		util.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	util.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode maps domain errors onto HTTP status codes.
func getStatusCode(err error) int {
	var perr *verify.ProviderError
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidPhoneFormat):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrMemberNotFound),
		errors.Is(err, service.ErrNoAccountFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDuplicateUsername):
		return http.StatusConflict
	case errors.Is(err, service.ErrProtectedMember):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCurrentPassword),
		errors.Is(err, service.ErrCodeMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrSessionInvalid):
		return http.StatusGone
	case errors.As(err, &perr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
