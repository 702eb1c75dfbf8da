package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clearwell/practice-platform/internal/observability/metrics"
	"github.com/clearwell/practice-platform/internal/security"
	"github.com/clearwell/practice-platform/pkg/logging"
)

var tracer = otel.Tracer("practice/appointments")

// DefaultCancelReason is recorded when a cancellation request carries no
// reason.
const DefaultCancelReason = "provider"

// TransitionStore is the persistence surface the service needs.
type TransitionStore interface {
	GetByID(ctx context.Context, practiceID string, id uuid.UUID) (*Appointment, error)
	UpdateStatus(ctx context.Context, practiceID string, id uuid.UUID, expected, target Status) error
	Cancel(ctx context.Context, practiceID string, id uuid.UUID, expected Status, reason string, at time.Time) error
	CancelPendingReminders(ctx context.Context, appointmentID uuid.UUID) (int64, error)
}

// TransitionResult reports the outcome of a successful transition. Callers
// use the previous/new pair for UI and notification purposes.
type TransitionResult struct {
	Appointment        *Appointment
	PreviousStatus     Status
	NewStatus          Status
	RemindersCancelled int64
	// ReminderWarning is set when the best-effort reminder cancellation
	// failed after the status change was already committed.
	ReminderWarning string
}

// Service applies appointment status transitions.
type Service struct {
	store   TransitionStore
	logger  *logging.Logger
	metrics *metrics.AppointmentMetrics
}

// NewService creates an appointments service.
func NewService(store TransitionStore, logger *logging.Logger, m *metrics.AppointmentMetrics) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, logger: logger, metrics: m}
}

// Transition validates and applies a status change for the appointment,
// scoped to the practice. Validation order: target status membership, row
// existence, then the allow-list (cancellation bypasses it). On cancellation
// all pending reminders for the appointment are cancelled best-effort.
func (s *Service) Transition(ctx context.Context, practiceID string, id uuid.UUID, target Status, cancelReason string) (*TransitionResult, error) {
	ctx, span := tracer.Start(ctx, "appointments.Transition", trace.WithAttributes(
		attribute.String("practice.id", practiceID),
		attribute.String("appointment.id", id.String()),
		attribute.String("appointment.target_status", string(target)),
	))
	defer span.End()

	start := time.Now()

	if target == "" || !target.Valid() {
		s.metrics.ObserveTransition("", string(target), "invalid_status")
		return nil, ErrInvalidStatus
	}

	appt, err := s.store.GetByID(ctx, practiceID, id)
	if err != nil {
		s.metrics.ObserveTransition("", string(target), "lookup_failed")
		return nil, err
	}

	previous := appt.Status
	span.SetAttributes(attribute.String("appointment.current_status", string(previous)))

	if target != StatusCancelled && !CanTransition(previous, target) {
		s.metrics.ObserveTransition(string(previous), string(target), "illegal")
		return nil, &InvalidTransitionError{
			Current:   previous,
			Attempted: target,
			Allowed:   AllowedTransitions(previous),
		}
	}

	result := &TransitionResult{PreviousStatus: previous, NewStatus: target}

	if target == StatusCancelled {
		reason := security.CleanText(cancelReason)
		if reason == "" {
			reason = DefaultCancelReason
		}
		now := time.Now().UTC()
		if err := s.store.Cancel(ctx, practiceID, id, previous, reason, now); err != nil {
			s.metrics.ObserveTransition(string(previous), string(target), "store_failed")
			return nil, err
		}
		appt.CancelledReason = &reason
		appt.CancelledAt = &now

		// The status change is committed; a reminder failure is reported,
		// never propagated.
		cancelled, err := s.store.CancelPendingReminders(ctx, id)
		if err != nil {
			s.logger.Error("failed to cancel pending reminders",
				"appointment_id", id, "error", err)
			result.ReminderWarning = "appointment cancelled, but pending reminders could not be cancelled"
		}
		result.RemindersCancelled = cancelled
	} else {
		if err := s.store.UpdateStatus(ctx, practiceID, id, previous, target); err != nil {
			s.metrics.ObserveTransition(string(previous), string(target), "store_failed")
			return nil, err
		}
	}

	appt.Status = target
	appt.UpdatedAt = time.Now().UTC()
	result.Appointment = appt

	s.metrics.ObserveTransition(string(previous), string(target), "ok")
	s.metrics.ObserveTransitionLatency("ok", time.Since(start).Seconds())
	s.logger.Info("appointment status changed",
		"appointment_id", id,
		"practice_id", practiceID,
		"previous_status", previous,
		"new_status", target,
	)
	return result, nil
}
