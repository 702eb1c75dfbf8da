package appointments

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clearwell/practice-platform/internal/tenancy"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// Handler exposes the appointment status endpoint.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates an appointments HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// UpdateStatusRequest is the PATCH body for a status change.
type UpdateStatusRequest struct {
	Status       string `json:"status"`
	CancelReason string `json:"cancel_reason,omitempty"`
}

// UpdateStatusResponse is returned on a successful transition.
type UpdateStatusResponse struct {
	Appointment        *Appointment `json:"appointment"`
	PreviousStatus     Status       `json:"previous_status"`
	NewStatus          Status       `json:"new_status"`
	RemindersCancelled int64        `json:"reminders_cancelled"`
	Warning            string       `json:"warning,omitempty"`
}

// transitionErrorResponse carries the diagnostic detail for an illegal
// transition so the caller can render a helpful message.
type transitionErrorResponse struct {
	Error              string   `json:"error"`
	CurrentStatus      Status   `json:"current_status"`
	AttemptedStatus    Status   `json:"attempted_status"`
	AllowedTransitions []Status `json:"allowed_transitions"`
}

// UpdateStatus handles PATCH /api/v1/practices/{practiceID}/appointments/{appointmentID}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	practiceID, ok := tenancy.PracticeIDFromContext(r.Context())
	if !ok {
		practiceID = chi.URLParam(r, "practiceID")
	}
	if practiceID == "" {
		jsonError(w, "missing practice id", http.StatusBadRequest)
		return
	}
	apptID, err := uuid.Parse(chi.URLParam(r, "appointmentID"))
	if err != nil {
		jsonError(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Transition(r.Context(), practiceID, apptID, Status(req.Status), req.CancelReason)
	if err != nil {
		h.writeTransitionError(w, apptID, err)
		return
	}

	writeJSON(w, http.StatusOK, UpdateStatusResponse{
		Appointment:        result.Appointment,
		PreviousStatus:     result.PreviousStatus,
		NewStatus:          result.NewStatus,
		RemindersCancelled: result.RemindersCancelled,
		Warning:            result.ReminderWarning,
	})
}

func (h *Handler) writeTransitionError(w http.ResponseWriter, apptID uuid.UUID, err error) {
	var invalid *InvalidTransitionError
	switch {
	case errors.Is(err, ErrInvalidStatus):
		jsonError(w, "status is required and must be a valid appointment status", http.StatusBadRequest)
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusBadRequest, transitionErrorResponse{
			Error:              invalid.Error(),
			CurrentStatus:      invalid.Current,
			AttemptedStatus:    invalid.Attempted,
			AllowedTransitions: invalid.Allowed,
		})
	case errors.Is(err, ErrNotFound):
		jsonError(w, "appointment not found", http.StatusNotFound)
	case errors.Is(err, ErrConcurrentModification):
		jsonError(w, "appointment was modified by another request, retry", http.StatusConflict)
	default:
		h.logger.Error("appointment transition failed", "appointment_id", apptID, "error", err)
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
