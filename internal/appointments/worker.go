package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clearwell/practice-platform/internal/notify"
	"github.com/clearwell/practice-platform/pkg/logging"
)

// ReminderStore is the persistence surface the worker needs.
type ReminderStore interface {
	ListDueReminders(ctx context.Context, asOf time.Time, limit int) ([]Reminder, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) error
	MarkReminderFailed(ctx context.Context, id uuid.UUID) error
}

// PracticeDirectory resolves a practice id to its display name for outbound
// messages.
type PracticeDirectory interface {
	PracticeName(ctx context.Context, practiceID string) (string, error)
}

// Worker delivers due appointment reminders by email.
type Worker struct {
	store     ReminderStore
	emails    notify.EmailSender
	practices PracticeDirectory
	batchSize int
	logger    *logging.Logger
}

// NewWorker creates a reminder delivery worker.
func NewWorker(store ReminderStore, emails notify.EmailSender, practices PracticeDirectory, batchSize int, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Worker{
		store:     store,
		emails:    emails,
		practices: practices,
		batchSize: batchSize,
		logger:    logger,
	}
}

// ProcessDue finds pending reminders that are due and sends them. Returns the
// number of reminders delivered. A failure on one reminder never blocks the
// rest of the batch.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	reminders, err := w.store.ListDueReminders(ctx, now, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("reminder worker: list due: %w", err)
	}

	if len(reminders) == 0 {
		return 0, nil
	}

	w.logger.Info("reminder worker: processing due reminders", "count", len(reminders))

	sent := 0
	for i := range reminders {
		r := &reminders[i]
		if err := w.processOne(ctx, r); err != nil {
			w.logger.Error("reminder worker: delivery failed",
				"reminder_id", r.ID, "appointment_id", r.AppointmentID, "error", err)
			if markErr := w.store.MarkReminderFailed(ctx, r.ID); markErr != nil {
				w.logger.Error("reminder worker: failed to mark reminder failed",
					"reminder_id", r.ID, "error", markErr)
			}
			continue
		}
		sent++
	}

	return sent, nil
}

func (w *Worker) processOne(ctx context.Context, r *Reminder) error {
	practiceName := "your clinic"
	if w.practices != nil {
		name, err := w.practices.PracticeName(ctx, r.PracticeID)
		if err != nil {
			w.logger.Warn("reminder worker: practice name lookup failed",
				"practice_id", r.PracticeID, "error", err)
		} else if name != "" {
			practiceName = name
		}
	}

	msg := notify.AppointmentReminderEmail(r.PatientEmail, r.PatientName, practiceName, r.Provider, r.StartsAt)
	if err := w.emails.Send(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	if err := w.store.MarkReminderSent(ctx, r.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	return nil
}

// Run processes due reminders on a fixed interval until the context ends.
func (w *Worker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("reminder worker started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reminder worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil {
				w.logger.Error("reminder worker: pass failed", "error", err)
			}
		}
	}
}
