package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"club-ledger/internal/service"
)

// VerificationHandler serves the phone challenge endpoints. Codes travel only
// over SMS; responses carry the opaque verification id and nothing else.
type VerificationHandler struct {
	verification *service.VerificationService
	logger       *zap.Logger
}

func NewVerificationHandler(verification *service.VerificationService, logger *zap.Logger) *VerificationHandler {
	return &VerificationHandler{
		verification: verification,
		logger:       logger,
	}
}

func (h *VerificationHandler) RegisterRoutes(router chi.Router) {
	router.Route("/verification", func(r chi.Router) {
		r.Post("/request", h.RequestCode)
		r.Post("/cancel", h.Cancel)
	})
}

func (h *VerificationHandler) RequestCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Purpose     string `json:"purpose"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	verificationID, err := h.verification.RequestCode(r.Context(), req.PhoneNumber, req.Purpose)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to request verification code")
		return
	}

	respondWithJSON(w, http.StatusAccepted,
		successResponse(map[string]string{"verification_id": verificationID}, "Verification code sent"))
}

func (h *VerificationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationID string `json:"verification_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.verification.Cancel(r.Context(), req.VerificationID); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to cancel verification")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification cancelled"))
}
