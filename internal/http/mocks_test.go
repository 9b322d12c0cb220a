package http

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/region"
)

type MockCheckout struct {
	mu        sync.Mutex
	submits   []checkout.SubmitRequest
	keys      []string
	confirmed []payment.Outcome
	// confirmKeys and confirmTokens hold the session key and CSRF token of
	// each Confirm call.
	confirmKeys   []string
	confirmTokens []string
	SubmitFn      func(req checkout.SubmitRequest) checkout.Result
	ConfirmErr    error
	StatusFn      func(orderNumber string) (checkout.Status, error)
}

func (m *MockCheckout) Submit(_ context.Context, key string, req checkout.SubmitRequest) checkout.Result {
	m.mu.Lock()
	m.submits = append(m.submits, req)
	m.keys = append(m.keys, key)
	m.mu.Unlock()
	if m.SubmitFn == nil {
		return checkout.Result{State: checkout.StateIdle}
	}
	return m.SubmitFn(req)
}

func (m *MockCheckout) Confirm(ctx context.Context, _ string, outcome payment.Outcome, csrfToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key, _ := checkout.SessionKeyFromContext(ctx)
	m.confirmKeys = append(m.confirmKeys, key)
	m.confirmTokens = append(m.confirmTokens, csrfToken)
	if m.ConfirmErr != nil {
		return m.ConfirmErr
	}
	m.confirmed = append(m.confirmed, outcome)
	return nil
}

func (m *MockCheckout) Status(_ context.Context, orderNumber string, _ time.Duration, _ string) (checkout.Status, error) {
	if m.StatusFn == nil {
		return checkout.Status{OrderNumber: orderNumber, Pending: true, Message: checkout.MsgPaymentPending}, nil
	}
	return m.StatusFn(orderNumber)
}

func (m *MockCheckout) Submits() []checkout.SubmitRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]checkout.SubmitRequest(nil), m.submits...)
}

type MockCatalog struct{}

func (MockCatalog) Regions(context.Context) []region.Region {
	return region.Regions
}
