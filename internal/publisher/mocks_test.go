package publisher

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	r "github.com/fjod/go_checkout/internal/repository"
)

// MockRepository implements r.Outbox for testing
type MockRepository struct {
	OutboxEvents  []*r.OutboxEvent
	GetEventsErr  error
	MarkErr       error
	ProcessedIDs  []string
	StaleAttempts []*r.Attempt
	StaleErr      error
	StaleCutoff   time.Time
	UpdateErr     error
	UpdatedOrders []string
	UpdatedStatus []r.StatusUpdate
}

func (m *MockRepository) GetUnprocessedEvents(context.Context, int) ([]*r.OutboxEvent, error) {
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	ev := m.OutboxEvents
	m.OutboxEvents = nil
	return ev, nil
}

func (m *MockRepository) MarkEventAsProcessed(_ context.Context, id string) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, id)
	return nil
}

func (m *MockRepository) GetStaleAttempts(_ context.Context, cutoff time.Time, _ int) ([]*r.Attempt, error) {
	m.StaleCutoff = cutoff
	return m.StaleAttempts, m.StaleErr
}

func (m *MockRepository) UpdateStatus(_ context.Context, orderNumber string, u r.StatusUpdate) (*r.Attempt, error) {
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	m.UpdatedOrders = append(m.UpdatedOrders, orderNumber)
	m.UpdatedStatus = append(m.UpdatedStatus, u)
	return &r.Attempt{OrderNumber: orderNumber, Status: u.Status}, nil
}

// MockWriter records messages instead of sending them.
type MockWriter struct {
	Messages []kafka.Message
	// FailKeys makes writes for these keys fail.
	FailKeys map[string]error
	Closed   bool
}

func (w *MockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		if err := w.FailKeys[string(m.Key)]; err != nil {
			return err
		}
	}
	w.Messages = append(w.Messages, msgs...)
	return nil
}

func (w *MockWriter) Close() error {
	w.Closed = true
	return nil
}
