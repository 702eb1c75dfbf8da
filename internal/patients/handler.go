package patients

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearwell/practice-platform/internal/tenancy"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// PatientStore is the persistence surface the handler needs.
type PatientStore interface {
	GetByID(ctx context.Context, practiceID string, id uuid.UUID) (*Patient, error)
	UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, target Status) error
}

// Handler exposes the patient status endpoint.
type Handler struct {
	store  PatientStore
	logger *logging.Logger
}

// NewHandler creates a patients HTTP handler.
func NewHandler(store PatientStore, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// UpdateStatusRequest is the PATCH body for a patient status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatusResponse is returned for both real changes and no-ops.
type UpdateStatusResponse struct {
	Patient *Patient `json:"patient"`
	Changed bool     `json:"changed"`
}

// UpdateStatus handles PATCH /api/v1/practices/{practiceID}/patients/{patientID}/status.
// A request for the status the patient already has is a no-op, not an error.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	practiceID, ok := tenancy.PracticeIDFromContext(r.Context())
	if !ok {
		practiceID = chi.URLParam(r, "practiceID")
	}
	if practiceID == "" {
		jsonError(w, "missing practice id", http.StatusBadRequest)
		return
	}
	patientID, err := uuid.Parse(chi.URLParam(r, "patientID"))
	if err != nil {
		jsonError(w, "invalid patient id", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	target, err := ParseStatus(req.Status)
	if err != nil {
		jsonError(w, "status must be one of active, inactive, archived", http.StatusBadRequest)
		return
	}

	patient, err := h.store.GetByID(r.Context(), practiceID, patientID)
	if err != nil {
		h.writeStoreError(w, patientID, err)
		return
	}

	if patient.Status == target {
		writeJSON(w, http.StatusOK, UpdateStatusResponse{Patient: patient, Changed: false})
		return
	}

	if err := h.store.UpdateStatus(r.Context(), practiceID, patientID, target); err != nil {
		h.writeStoreError(w, patientID, err)
		return
	}

	patient.Status = target
	writeJSON(w, http.StatusOK, UpdateStatusResponse{Patient: patient, Changed: true})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, patientID uuid.UUID, err error) {
	if errors.Is(err, ErrNotFound) {
		jsonError(w, "patient not found", http.StatusNotFound)
		return
	}
	h.logger.Error("patient status update failed", "patient_id", patientID, "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
