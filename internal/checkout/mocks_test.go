package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/repository"
)

// MockPaymentClient implements PaymentClient for testing
type MockPaymentClient struct {
	Link          payment.Link
	Err           error
	StrategyName  string
	Calls         atomic.Int32
	LastRequest   domain.OrderRequest
	LastCSRFToken string
	// Verification is returned by Verify; VerifyCalls counts lookups.
	Verification payment.Verification
	VerifyErr    error
	VerifyCalls  atomic.Int32
	// Block, when set, holds SubmitOrder until it is closed.
	Block   chan struct{}
	Entered chan struct{}
	mu      sync.Mutex
}

func (m *MockPaymentClient) SubmitOrder(_ context.Context, req domain.OrderRequest, csrfToken string) (payment.Link, error) {
	m.Calls.Add(1)
	m.mu.Lock()
	m.LastRequest = req
	m.LastCSRFToken = csrfToken
	m.mu.Unlock()
	if m.Entered != nil {
		m.Entered <- struct{}{}
	}
	if m.Block != nil {
		<-m.Block
	}
	return m.Link, m.Err
}

func (m *MockPaymentClient) Verify(_ context.Context, _, _, _ string) (payment.Verification, error) {
	m.VerifyCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Verification, m.VerifyErr
}

// SetVerification changes what later Verify calls return.
func (m *MockPaymentClient) SetVerification(v payment.Verification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Verification = v
}

func (m *MockPaymentClient) Strategy() string {
	if m.StrategyName == "" {
		return "hosted"
	}
	return m.StrategyName
}

// MockJournal implements Journal for testing
type MockJournal struct {
	mu        sync.Mutex
	Attempts  map[string]*repository.Attempt
	Updates   []repository.StatusUpdate
	ClearAt   map[string]time.Time
	CreateErr error
	UpdateErr error
}

func NewMockJournal() *MockJournal {
	return &MockJournal{
		Attempts: make(map[string]*repository.Attempt),
		ClearAt:  make(map[string]time.Time),
	}
}

func (m *MockJournal) CreateAttempt(_ context.Context, a *repository.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	a.Status = domain.AttemptStatusInitiated
	cp := *a
	m.Attempts[a.OrderNumber] = &cp
	return nil
}

func (m *MockJournal) UpdateStatus(_ context.Context, orderNumber string, u repository.StatusUpdate) (*repository.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	a, ok := m.Attempts[orderNumber]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	if !domain.CanTransitionTo(a.Status, u.Status) {
		return nil, &repository.IllegalTransitionError{From: a.Status, To: u.Status}
	}
	a.Status = u.Status
	if u.TransactionID != "" {
		a.TransactionID = u.TransactionID
	}
	if u.Detail != "" {
		a.Detail = u.Detail
	}
	m.Updates = append(m.Updates, u)
	return a, nil
}

func (m *MockJournal) GetAttempt(_ context.Context, orderNumber string) (*repository.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[orderNumber]
	if !ok {
		return nil, repository.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockJournal) ScheduleClear(_ context.Context, orderNumber string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Attempts[orderNumber]
	if !ok {
		return repository.ErrAttemptNotFound
	}
	a.ClearAfter = &at
	m.ClearAt[orderNumber] = at
	return nil
}
