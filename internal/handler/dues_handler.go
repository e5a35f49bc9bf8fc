package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"club-ledger/internal/service"
)

// DuesHandler serves the monthly ledger endpoints.
type DuesHandler struct {
	dues   *service.DuesService
	logger *zap.Logger
}

func NewDuesHandler(dues *service.DuesService, logger *zap.Logger) *DuesHandler {
	return &DuesHandler{
		dues:   dues,
		logger: logger,
	}
}

func (h *DuesHandler) RegisterRoutes(router chi.Router) {
	router.Route("/dues", func(r chi.Router) {
		r.Get("/export.csv", h.ExportCSV)
		r.Get("/{username}", h.GetMonthlyFields)
		r.Put("/{username}", h.SetMonthlyFields)
		r.Get("/{username}/due-total", h.DueTotal)
		r.Post("/{username}/selected-total", h.SelectedTotal)
		r.Post("/{username}/payment-request", h.PaymentRequest)
	})
}

func (h *DuesHandler) GetMonthlyFields(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	fields, err := h.dues.GetMonthlyFields(r.Context(), username)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get dues record")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{"paid": fields}, ""))
}

func (h *DuesHandler) SetMonthlyFields(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Paid  []int  `json:"paid"`
		Actor string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.dues.SetMonthlyFields(r.Context(), username, req.Paid, req.Actor); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to set dues record")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Dues record updated"))
}

// DueTotal returns the aggregate shortfall through the as_of month (1-12).
func (h *DuesHandler) DueTotal(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	asOf, err := strconv.Atoi(r.URL.Query().Get("as_of"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid as_of month")
		return
	}

	total, err := h.dues.DueTotalFor(r.Context(), username, asOf)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to compute due total")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"due_total": total}, ""))
}

func (h *DuesHandler) SelectedTotal(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Months []int `json:"months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	total, err := h.dues.SelectedTotalFor(r.Context(), username, req.Months)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to compute selected total")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]int{"selected_total": total}, ""))
}

func (h *DuesHandler) PaymentRequest(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var req struct {
		Months []int `json:"months"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	payment, err := h.dues.PaymentRequestFor(r.Context(), username, req.Months)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to build payment request")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(payment, ""))
}

// ExportCSV streams the full roster dues matrix as CSV.
func (h *DuesHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="dues.csv"`)

	if err := h.dues.ExportRosterCSV(r.Context(), w); err != nil {
		h.logger.Error("Dues CSV export failed", zap.Error(err))
	}
}
