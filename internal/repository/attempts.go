package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	d "github.com/fjod/go_checkout/internal/domain"
)

// Attempt is one journaled submission.
type Attempt struct {
	ID            string
	OrderNumber   string
	SessionKey    string
	Status        d.AttemptStatus
	AmountMinor   int64
	Currency      string
	DeliveryMode  d.DeliveryMode
	PickupStore   string
	Strategy      string
	PaymentURL    string
	TransactionID string
	Detail        string
	ClearAfter    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// StatusUpdate moves an attempt to a new status. Empty strings keep the
// stored values.
type StatusUpdate struct {
	Status        d.AttemptStatus
	PaymentURL    string
	TransactionID string
	Detail        string
}

// IllegalTransitionError reports a status change the attempt lifecycle forbids.
type IllegalTransitionError struct {
	From, To d.AttemptStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition of checkout attempt status: %s -> %s", e.From, e.To)
}

const (
	EventAttemptInitiated = "checkout.attempt.initiated"
	EventAttemptUpdated   = "checkout.attempt.updated"
)

type eventPayload struct {
	OrderNumber   string          `json:"order_number"`
	Status        d.AttemptStatus `json:"status"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	DeliveryMode  d.DeliveryMode  `json:"delivery_mode"`
	Strategy      string          `json:"strategy"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Detail        string          `json:"detail,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CreateAttempt stores a new INITIATED attempt and its outbox event in one
// transaction. ID and timestamps are filled in when empty.
func (r *Repository) CreateAttempt(ctx context.Context, a *Attempt) error {
	now := r.now().UTC()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = d.AttemptStatusInitiated
	}
	a.CreatedAt, a.UpdatedAt = now, now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO checkout_attempts
		(id, order_number, session_key, status, amount_minor, currency, delivery_mode, pickup_store, strategy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.ExecContext(ctx, query,
		a.ID,
		a.OrderNumber,
		a.SessionKey,
		string(a.Status),
		a.AmountMinor,
		a.Currency,
		string(a.DeliveryMode),
		a.PickupStore,
		a.Strategy,
		now,
		now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrder
		}
		return fmt.Errorf("insert attempt: %w", err)
	}

	if err := r.insertEvent(ctx, tx, EventAttemptInitiated, a, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpdateStatus applies a legal status change and queues the matching event.
func (r *Repository) UpdateStatus(ctx context.Context, orderNumber string, u StatusUpdate) (*Attempt, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	a, err := getAttempt(ctx, tx, orderNumber)
	if err != nil {
		return nil, err
	}
	if !d.CanTransitionTo(a.Status, u.Status) {
		return nil, &IllegalTransitionError{From: a.Status, To: u.Status}
	}

	from := a.Status
	now := r.now().UTC()
	a.Status = u.Status
	a.UpdatedAt = now
	if u.PaymentURL != "" {
		a.PaymentURL = u.PaymentURL
	}
	if u.TransactionID != "" {
		a.TransactionID = u.TransactionID
	}
	if u.Detail != "" {
		a.Detail = u.Detail
	}

	// the status guard makes a concurrent change of the same row lose
	query := `UPDATE checkout_attempts
		SET status = $1, payment_url = $2, transaction_id = $3, detail = $4, updated_at = $5
		WHERE order_number = $6 AND status = $7`
	res, err := tx.ExecContext(ctx, query,
		string(a.Status), a.PaymentURL, a.TransactionID, a.Detail, now, orderNumber, string(from))
	if err != nil {
		return nil, fmt.Errorf("update attempt status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update attempt status: %w", err)
	}
	if n == 0 {
		current := from
		if latest, err := getAttempt(ctx, tx, orderNumber); err == nil {
			current = latest.Status
		}
		return nil, &IllegalTransitionError{From: current, To: u.Status}
	}

	if err := r.insertEvent(ctx, tx, EventAttemptUpdated, a, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return a, nil
}

func (r *Repository) GetAttempt(ctx context.Context, orderNumber string) (*Attempt, error) {
	return getAttempt(ctx, r.db, orderNumber)
}

// ScheduleClear records when the shopper's cart may be dropped.
func (r *Repository) ScheduleClear(ctx context.Context, orderNumber string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_attempts SET clear_after = $1, updated_at = $2 WHERE order_number = $3`,
		at.UTC(), r.now().UTC(), orderNumber)
	if err != nil {
		return fmt.Errorf("schedule clear: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("schedule clear: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// GetStaleAttempts returns INITIATED attempts last touched before cutoff.
// These are submissions whose outcome was never recorded.
func (r *Repository) GetStaleAttempts(ctx context.Context, cutoff time.Time, limit int) ([]*Attempt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE status = $1 AND updated_at < $2 ORDER BY updated_at LIMIT $3`,
		string(d.AttemptStatusInitiated), cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query stale attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return attempts, nil
}

const attemptColumns = `id, order_number, session_key, status, amount_minor, currency, delivery_mode,
	pickup_store, strategy, payment_url, transaction_id, detail, clear_after, created_at, updated_at`

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getAttempt(ctx context.Context, q queryer, orderNumber string) (*Attempt, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+attemptColumns+` FROM checkout_attempts WHERE order_number = $1`, orderNumber)
	a, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query attempt by order number: %w", err)
	}
	return a, nil
}

func scanAttempt(s scanner) (*Attempt, error) {
	var (
		a          Attempt
		status     string
		mode       string
		clearAfter sql.NullTime
	)
	err := s.Scan(
		&a.ID,
		&a.OrderNumber,
		&a.SessionKey,
		&status,
		&a.AmountMinor,
		&a.Currency,
		&mode,
		&a.PickupStore,
		&a.Strategy,
		&a.PaymentURL,
		&a.TransactionID,
		&a.Detail,
		&clearAfter,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Status = d.AttemptStatus(status)
	a.DeliveryMode = d.DeliveryMode(mode)
	if clearAfter.Valid {
		t := clearAfter.Time
		a.ClearAfter = &t
	}
	return &a, nil
}

func (r *Repository) insertEvent(ctx context.Context, tx *sql.Tx, eventType string, a *Attempt, now time.Time) error {
	payload, err := json.Marshal(eventPayload{
		OrderNumber:   a.OrderNumber,
		Status:        a.Status,
		AmountMinor:   a.AmountMinor,
		Currency:      a.Currency,
		DeliveryMode:  a.DeliveryMode,
		Strategy:      a.Strategy,
		TransactionID: a.TransactionID,
		Detail:        a.Detail,
		OccurredAt:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox_events (id, aggregate_id, event_type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), a.OrderNumber, eventType, string(payload), now)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
