package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"club-ledger/internal/models"
	"club-ledger/internal/service"
	"club-ledger/internal/util"
)

// MemberHandler serves account and directory operations.
type MemberHandler struct {
	credentials  *service.CredentialService
	directory    *service.DirectoryService
	verification *service.VerificationService
	logger       *zap.Logger
}

func NewMemberHandler(
	credentials *service.CredentialService,
	directory *service.DirectoryService,
	verification *service.VerificationService,
	logger *zap.Logger,
) *MemberHandler {
	return &MemberHandler{
		credentials:  credentials,
		directory:    directory,
		verification: verification,
		logger:       logger,
	}
}

func (h *MemberHandler) RegisterRoutes(router chi.Router) {
	router.Route("/members", func(r chi.Router) {
		// Public: admission behind the keycode gate, login, recovery.
		r.Post("/", h.Register)
		r.Post("/login", h.Login)
		r.Post("/recover-username", h.RecoverUsername)
		r.Post("/password", h.UpdatePassword)

		// Protected routes (require auth middleware in production).
		r.Group(func(r chi.Router) {
			r.Get("/candidates", h.ListCandidates)
			r.Get("/roster", h.ListRoster)
			r.Get("/search", h.SearchRoster)
			r.Post("/reorder", h.Reorder)
			r.Post("/today", h.SetToday)
			r.Post("/attendance", h.MarkAttendance)
			r.Post("/{memberID}/promote", h.Promote)
			r.Patch("/{memberID}/permit", h.UpdatePermit)
			r.Patch("/{memberID}/guest", h.SetGuestFlag)
			r.Patch("/{memberID}/recovery", h.SetRecovery)
			r.Get("/{memberID}/recovery", h.GetRecovery)
			r.Delete("/{memberID}", h.Delete)
		})
	})

	router.Route("/management", func(r chi.Router) {
		r.Get("/", h.GetManagement)
		r.Put("/", h.UpdateManagement)
	})
}

func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	member, err := h.credentials.RegisterMember(ctx, &req)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to register member")
		return
	}

	respondWithJSON(w, http.StatusCreated, successResponse(member, "Member registered"))
	h.logger.Info("Member registered via HTTP",
		util.String("member_id", member.ID),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *MemberHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	permit, ok, err := h.credentials.ValidateCredentials(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Login failed")
		return
	}

	data := map[string]interface{}{"ok": ok}
	if ok {
		data["permit"] = permit
	}
	respondWithJSON(w, http.StatusOK, successResponse(data, ""))
}

func (h *MemberHandler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username        string `json:"username"`
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.credentials.UpdatePassword(r.Context(), req.Username, req.CurrentPassword, req.NewPassword); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update password")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Password updated"))
}

func (h *MemberHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.directory.ListCandidates(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list candidates")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(candidates, ""))
}

func (h *MemberHandler) ListRoster(w http.ResponseWriter, r *http.Request) {
	roster, err := h.directory.ListRoster(r.Context(), r.URL.Query().Get("sort"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to list roster")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(roster, ""))
}

func (h *MemberHandler) SearchRoster(w http.ResponseWriter, r *http.Request) {
	results, err := h.directory.SearchRoster(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Search failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(results, ""))
}

func (h *MemberHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MemberIDs []string `json:"member_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.directory.Reorder(r.Context(), req.MemberIDs); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to reorder roster")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Roster reordered"))
}

// Promote confirms the admission code and moves the candidate onto the
// roster in one step, so the verification proof never leaves the server.
func (h *MemberHandler) Promote(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		VerificationID string `json:"verification_id"`
		Code           string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	proof, err := h.verification.ConfirmCode(r.Context(), req.VerificationID, req.Code)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Verification failed")
		return
	}

	member, err := h.directory.PromoteToSynced(r.Context(), memberID, proof)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to promote member")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(member, "Member promoted"))
}

// RecoverUsername confirms a recovery code and resolves it to a username.
func (h *MemberHandler) RecoverUsername(w http.ResponseWriter, r *http.Request) {
	var req struct {
		VerificationID string `json:"verification_id"`
		Code           string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	proof, err := h.verification.ConfirmCode(r.Context(), req.VerificationID, req.Code)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Verification failed")
		return
	}

	username, err := h.directory.RecoverUsername(r.Context(), proof)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Recovery failed")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"username": username}, ""))
}

func (h *MemberHandler) UpdatePermit(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		Permit int    `json:"permit"`
		Actor  string `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.credentials.UpdatePermit(r.Context(), memberID, req.Permit, req.Actor); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update permit")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Permit updated"))
}

func (h *MemberHandler) SetGuestFlag(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		Guest bool `json:"guest"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.directory.SetGuestFlag(r.Context(), memberID, req.Guest); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to set guest flag")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Guest flag updated"))
}

func (h *MemberHandler) SetToday(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Today    int    `json:"today"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.directory.SetToday(r.Context(), req.Username, req.Today); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to set today flag")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Today flag updated"))
}

func (h *MemberHandler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.directory.MarkAttendance(r.Context(), req.Username); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to mark attendance")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Attendance recorded"))
}

func (h *MemberHandler) SetRecovery(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	var req struct {
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	if err := h.credentials.SetRecovery(r.Context(), memberID, req.Note); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to set recovery note")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Recovery note updated"))
}

func (h *MemberHandler) GetRecovery(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")

	note, err := h.credentials.GetRecovery(r.Context(), memberID)
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to get recovery note")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(map[string]string{"note": note}, ""))
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	actor := r.URL.Query().Get("actor")

	if err := h.credentials.DeleteMember(r.Context(), memberID, actor); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to delete member")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(nil, "Member deleted"))
}

func (h *MemberHandler) GetManagement(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.credentials.FetchManagementConfig(r.Context())
	if err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to fetch management config")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(cfg, ""))
}

func (h *MemberHandler) UpdateManagement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Config *models.ManagementConfig `json:"config"`
		Actor  string                   `json:"actor"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.Config == nil {
		respondWithError(w, http.StatusBadRequest, service.ErrValidation, "Missing config payload")
		return
	}

	if err := h.credentials.UpdateManagementConfig(r.Context(), req.Config, req.Actor); err != nil {
		respondWithError(w, getStatusCode(err), err, "Failed to update management config")
		return
	}
	respondWithJSON(w, http.StatusOK, successResponse(req.Config, "Management config updated"))
}
