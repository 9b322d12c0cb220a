package payment

import (
	"context"
	"sync"
	"time"
)

// Outcome is the widget's final word on a payment.
type Outcome struct {
	Success       bool
	Detail        string
	TransactionID string
}

// Confirmation is resolved exactly once.
type Confirmation struct {
	mu       sync.Mutex
	done     chan struct{}
	outcome  Outcome
	resolved bool
}

func NewConfirmation() *Confirmation {
	return &Confirmation{done: make(chan struct{})}
}

func (c *Confirmation) Resolve(o Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved {
		return ErrAlreadyResolved
	}
	c.outcome = o
	c.resolved = true
	close(c.done)
	return nil
}

// Wait blocks until the confirmation is resolved or ctx ends.
func (c *Confirmation) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (c *Confirmation) Done() <-chan struct{} {
	return c.done
}

type pending struct {
	c       *Confirmation
	created time.Time
}

// Confirmations tracks open confirmations by order number.
type Confirmations struct {
	mu  sync.Mutex
	m   map[string]pending
	ttl time.Duration
	now func() time.Time
}

func NewConfirmations(ttl time.Duration) *Confirmations {
	return &Confirmations{m: make(map[string]pending), ttl: ttl, now: time.Now}
}

// Register returns the confirmation for orderNumber, creating it if needed.
func (r *Confirmations) Register(orderNumber string) *Confirmation {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.m[orderNumber]; ok {
		return p.c
	}
	c := NewConfirmation()
	r.m[orderNumber] = pending{c: c, created: r.now()}
	return c
}

func (r *Confirmations) Get(orderNumber string) (*Confirmation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[orderNumber]
	return p.c, ok
}

// Resolve resolves a registered confirmation.
func (r *Confirmations) Resolve(orderNumber string, o Outcome) error {
	c, ok := r.Get(orderNumber)
	if !ok {
		return ErrUnknownConfirmation
	}
	return c.Resolve(o)
}

// Sweep drops entries older than the ttl and returns how many were removed.
func (r *Confirmations) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for k, p := range r.m {
		if p.created.Before(cutoff) {
			delete(r.m, k)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Confirmations) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
