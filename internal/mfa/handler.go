package mfa

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clearwell/practice-platform/internal/session"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// Handler exposes the MFA lifecycle endpoints. Every route requires an
// authenticated session.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an MFA HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type codeRequest struct {
	Code string `json:"code"`
}

type backupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"`
	Message     string   `json:"message"`
}

const backupCodesMessage = "Store these backup codes somewhere safe. They will not be shown again."

// InitiateSetup handles POST /api/v1/auth/mfa/setup.
func (h *Handler) InitiateSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}

	info, err := h.service.InitiateSetup(r.Context(), userID, session.EmailFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ConfirmSetup handles PUT /api/v1/auth/mfa/setup.
func (h *Handler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	codes, err := h.service.ConfirmSetup(r.Context(), userID, req.Code)
	if err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{
		BackupCodes: codes,
		Message:     backupCodesMessage,
	})
}

// Disable handles DELETE /api/v1/auth/mfa.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.service.Disable(r.Context(), userID, req.Code); err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "two-factor authentication disabled"})
}

// RegenerateBackupCodes handles POST /api/v1/auth/mfa/backup-codes/regenerate.
func (h *Handler) RegenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	codes, err := h.service.RegenerateBackupCodes(r.Context(), userID, req.Code)
	if err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, backupCodesResponse{
		BackupCodes: codes,
		Message:     backupCodesMessage,
	})
}

// Status handles GET /api/v1/auth/mfa/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}

	info, err := h.service.Status(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// VerifyLogin handles POST /api/v1/auth/mfa/verify, the login step-up check.
func (h *Handler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.sessionUser(w, r)
	if !ok {
		return
	}
	req, ok := decodeCode(w, r)
	if !ok {
		return
	}

	if err := h.service.VerifyLogin(r.Context(), userID, req.Code); err != nil {
		h.writeServiceError(w, userID, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *Handler) sessionUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := session.UserIDFromContext(r.Context())
	if !ok {
		jsonError(w, "authentication required", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

func decodeCode(w http.ResponseWriter, r *http.Request) (codeRequest, bool) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// writeServiceError maps service errors to responses. Wrong, malformed, and
// unknown codes all share one generic message.
func (h *Handler) writeServiceError(w http.ResponseWriter, userID uuid.UUID, err error) {
	switch {
	case errors.Is(err, ErrAlreadyEnabled):
		jsonError(w, "two-factor authentication is already enabled", http.StatusBadRequest)
	case errors.Is(err, ErrNotInitialized):
		jsonError(w, "two-factor setup has not been started", http.StatusBadRequest)
	case errors.Is(err, ErrNotEnabled), errors.Is(err, ErrNotConfigured):
		jsonError(w, "two-factor authentication is not enabled", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidCode):
		jsonError(w, "invalid verification code", http.StatusBadRequest)
	case errors.Is(err, ErrLocked):
		jsonError(w, "too many failed attempts, try again later", http.StatusTooManyRequests)
	default:
		h.logger.Error("mfa request failed", "user_id", userID, "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
