package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/fjod/go_checkout/pkg/logger"
)

// Status is what the result page shows for an order.
type Status struct {
	OrderNumber string
	Attempt     domain.AttemptStatus
	Message     string
	// Pending is true while the payment outcome is unknown.
	Pending bool
	// ClearCart is true once the cart may be dropped.
	ClearCart bool
}

// Confirm handles the widget's report for orderNumber. Only the session that
// started the attempt may report, and the journaled outcome is the one the
// payment backend returns: a reported success the backend does not confirm
// yet records nothing and yields ErrPaymentUnverified. After a payment the
// cart clear is scheduled after the configured delay.
func (o *Orchestrator) Confirm(ctx context.Context, orderNumber string, reported payment.Outcome, csrfToken string) error {
	log := logger.With(ctx, o.log).With(zap.String("order_number", orderNumber))

	a, err := o.journal.GetAttempt(ctx, orderNumber)
	if err != nil {
		return fmt.Errorf("get attempt: %w", err)
	}
	if key, ok := SessionKeyFromContext(ctx); !ok || key != a.SessionKey {
		log.Warn("payment report from another session")
		return ErrNotOrderOwner
	}

	if o.confirmations != nil {
		if c, ok := o.confirmations.Get(orderNumber); ok {
			select {
			case <-c.Done():
				return payment.ErrAlreadyResolved
			default:
			}
		} else {
			// expired or registered on another instance; the journal decides
			log.Info("confirmation not registered locally")
		}
	}

	v, err := o.client.Verify(ctx, orderNumber, transactionID(a, reported), csrfToken)
	if err != nil {
		return fmt.Errorf("verify payment: %w", err)
	}

	outcome := reported
	if v.TransactionID != "" {
		outcome.TransactionID = v.TransactionID
	}
	switch v.State {
	case payment.LinkPaid:
		outcome.Success = true
	case payment.LinkFailed:
		outcome.Success = false
		if outcome.Detail == "" {
			outcome.Detail = v.Detail
		}
	default:
		if reported.Success {
			log.Warn("reported payment not confirmed by backend")
			return ErrPaymentUnverified
		}
	}

	if err := o.settle(ctx, orderNumber, outcome); err != nil {
		return err
	}
	log.Info("payment confirmed", zap.Bool("success", outcome.Success), zap.String("backend_state", v.State.String()))
	return nil
}

// settle journals a verified outcome and resolves any local confirmation.
func (o *Orchestrator) settle(ctx context.Context, orderNumber string, outcome payment.Outcome) error {
	status := domain.AttemptStatusPaymentFailed
	if outcome.Success {
		status = domain.AttemptStatusPaid
	}
	if _, err := o.journal.UpdateStatus(ctx, orderNumber, repository.StatusUpdate{
		Status:        status,
		TransactionID: outcome.TransactionID,
		Detail:        outcome.Detail,
	}); err != nil {
		return fmt.Errorf("record payment outcome: %w", err)
	}

	if outcome.Success {
		if err := o.journal.ScheduleClear(ctx, orderNumber, o.now().Add(o.clearDelay)); err != nil {
			return fmt.Errorf("schedule cart clear: %w", err)
		}
	}
	if o.confirmations != nil {
		err := o.confirmations.Resolve(orderNumber, outcome)
		if err != nil && !errors.Is(err, payment.ErrAlreadyResolved) && !errors.Is(err, payment.ErrUnknownConfirmation) {
			return err
		}
	}
	return nil
}

func transactionID(a *repository.Attempt, reported payment.Outcome) string {
	if a.TransactionID != "" {
		return a.TransactionID
	}
	return reported.TransactionID
}

// Status reports an order's outcome, waiting up to wait for a pending widget
// confirmation. An attempt still waiting on the provider is looked up on the
// payment backend when a CSRF token is available.
func (o *Orchestrator) Status(ctx context.Context, orderNumber string, wait time.Duration, csrfToken string) (Status, error) {
	if o.confirmations != nil && wait > 0 {
		if c, ok := o.confirmations.Get(orderNumber); ok {
			waitCtx, cancel := context.WithTimeout(ctx, wait)
			_, _ = c.Wait(waitCtx)
			cancel()
		}
	}

	a, err := o.journal.GetAttempt(ctx, orderNumber)
	if err != nil {
		return Status{}, fmt.Errorf("get attempt: %w", err)
	}
	if a.Status == domain.AttemptStatusLinkCreated && csrfToken != "" {
		a = o.refresh(ctx, a, csrfToken)
	}

	s := Status{OrderNumber: orderNumber, Attempt: a.Status}
	switch a.Status {
	case domain.AttemptStatusPaid:
		s.Message = MsgPaymentSuccess
		s.ClearCart = a.ClearAfter != nil && !o.now().Before(*a.ClearAfter)
	case domain.AttemptStatusPaymentFailed:
		s.Message = MsgPaymentFailed
	case domain.AttemptStatusRejected:
		if strings.HasPrefix(a.Detail, configurationPrefix) {
			s.Message = MsgUnavailable
			break
		}
		s.Message = UserMessage(&payment.PaymentError{Kind: payment.KindRejected, Detail: a.Detail})
	case domain.AttemptStatusTransportFailed:
		s.Message = MsgConnection
	default:
		s.Pending = true
		s.Message = MsgPaymentPending
	}
	return s, nil
}

// refresh settles an open attempt from the backend's view. Lookup failures
// leave the attempt pending.
func (o *Orchestrator) refresh(ctx context.Context, a *repository.Attempt, csrfToken string) *repository.Attempt {
	log := logger.With(ctx, o.log).With(zap.String("order_number", a.OrderNumber))

	v, err := o.client.Verify(ctx, a.OrderNumber, a.TransactionID, csrfToken)
	if err != nil {
		log.Debug("payment status lookup failed", zap.Error(err))
		return a
	}
	if v.State == payment.LinkPending {
		return a
	}

	outcome := payment.Outcome{Success: v.State == payment.LinkPaid, Detail: v.Detail, TransactionID: v.TransactionID}
	if err := o.settle(ctx, a.OrderNumber, outcome); err != nil {
		var illegal *repository.IllegalTransitionError
		if !errors.As(err, &illegal) {
			log.Warn("failed to record verified payment state", zap.Error(err))
			return a
		}
	}
	updated, err := o.journal.GetAttempt(ctx, a.OrderNumber)
	if err != nil {
		return a
	}
	return updated
}
