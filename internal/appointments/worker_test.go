package appointments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearwell/practice-platform/internal/notify"
)

type fakeReminderStore struct {
	due []Reminder

	listErr error
	sentErr error

	sentIDs   []uuid.UUID
	failedIDs []uuid.UUID
}

func (f *fakeReminderStore) ListDueReminders(_ context.Context, _ time.Time, limit int) ([]Reminder, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if limit < len(f.due) {
		return f.due[:limit], nil
	}
	return f.due, nil
}

func (f *fakeReminderStore) MarkReminderSent(_ context.Context, id uuid.UUID) error {
	if f.sentErr != nil {
		return f.sentErr
	}
	f.sentIDs = append(f.sentIDs, id)
	return nil
}

func (f *fakeReminderStore) MarkReminderFailed(_ context.Context, id uuid.UUID) error {
	f.failedIDs = append(f.failedIDs, id)
	return nil
}

type recordingSender struct {
	sent    []notify.EmailMessage
	failFor string // recipient address that should fail
}

func (s *recordingSender) Send(_ context.Context, msg notify.EmailMessage) error {
	if s.failFor != "" && msg.To == s.failFor {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, msg)
	return nil
}

type staticDirectory struct {
	name string
	err  error
}

func (d *staticDirectory) PracticeName(_ context.Context, _ string) (string, error) {
	return d.name, d.err
}

func dueReminder(email string) Reminder {
	now := time.Now().UTC()
	return Reminder{
		ID:            uuid.New(),
		AppointmentID: uuid.New(),
		PracticeID:    "practice-1",
		PatientName:   "Pat",
		PatientEmail:  email,
		SendAt:        now.Add(-time.Minute),
		Status:        ReminderPending,
		Provider:      "Dr. Osei",
		StartsAt:      now.Add(23 * time.Hour),
	}
}

func TestWorkerProcessDue(t *testing.T) {
	store := &fakeReminderStore{due: []Reminder{
		dueReminder("a@example.com"),
		dueReminder("b@example.com"),
	}}
	sender := &recordingSender{}
	w := NewWorker(store, sender, &staticDirectory{name: "Clearwell Downtown"}, 100, nil)

	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Len(t, store.sentIDs, 2)
	assert.Empty(t, store.failedIDs)

	require.Len(t, sender.sent, 2)
	assert.Contains(t, sender.sent[0].Body, "Clearwell Downtown")
	assert.Contains(t, sender.sent[0].Body, "Dr. Osei")
}

func TestWorkerNoDueReminders(t *testing.T) {
	store := &fakeReminderStore{}
	w := NewWorker(store, &recordingSender{}, nil, 100, nil)

	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestWorkerOneFailureDoesNotBlockBatch(t *testing.T) {
	failing := dueReminder("broken@example.com")
	ok := dueReminder("ok@example.com")
	store := &fakeReminderStore{due: []Reminder{failing, ok}}
	sender := &recordingSender{failFor: "broken@example.com"}
	w := NewWorker(store, sender, nil, 100, nil)

	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, []uuid.UUID{ok.ID}, store.sentIDs)
	assert.Equal(t, []uuid.UUID{failing.ID}, store.failedIDs)
}

func TestWorkerPracticeNameFallback(t *testing.T) {
	store := &fakeReminderStore{due: []Reminder{dueReminder("a@example.com")}}
	sender := &recordingSender{}
	w := NewWorker(store, sender, &staticDirectory{err: errors.New("lookup down")}, 100, nil)

	_, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)
	assert.True(t, strings.Contains(sender.sent[0].Body, "your clinic"))
}

func TestWorkerListError(t *testing.T) {
	store := &fakeReminderStore{listErr: errors.New("db down")}
	w := NewWorker(store, &recordingSender{}, nil, 100, nil)

	_, err := w.ProcessDue(context.Background())
	assert.Error(t, err)
}

func TestWorkerRespectsBatchSize(t *testing.T) {
	store := &fakeReminderStore{due: []Reminder{
		dueReminder("a@example.com"),
		dueReminder("b@example.com"),
		dueReminder("c@example.com"),
	}}
	sender := &recordingSender{}
	w := NewWorker(store, sender, nil, 2, nil)

	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
}
