// Package checkout sequences a checkout submission: guard, extract, assemble,
// request a payment link and record the outcome.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/delivery"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/form"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/fjod/go_checkout/pkg/logger"
)

type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateRedirecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateRedirecting:
		return "redirecting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Assembler interface {
	Assemble(cart domain.CartSnapshot, snapshot domain.FormSnapshot, sel delivery.Selection) (domain.OrderRequest, error)
}

type PaymentClient interface {
	SubmitOrder(ctx context.Context, req domain.OrderRequest, csrfToken string) (payment.Link, error)
	Verify(ctx context.Context, orderNumber, transactionID, csrfToken string) (payment.Verification, error)
	Strategy() string
}

type Journal interface {
	CreateAttempt(ctx context.Context, a *repository.Attempt) error
	UpdateStatus(ctx context.Context, orderNumber string, u repository.StatusUpdate) (*repository.Attempt, error)
	GetAttempt(ctx context.Context, orderNumber string) (*repository.Attempt, error)
	ScheduleClear(ctx context.Context, orderNumber string, at time.Time) error
}

type SubmitRequest struct {
	Cart   domain.CartSnapshot
	Values url.Values
	// Form is marked busy for the duration of the submission. Optional.
	Form      *form.Form
	CSRFToken string
}

type Result struct {
	State       State
	RedirectURL string
	OrderNumber string
	Message     string
	Err         error
	// Snapshot and Delivery describe what was submitted, for re-rendering.
	Snapshot domain.FormSnapshot
	Delivery *delivery.Controller
}

type Orchestrator struct {
	guard         Guard
	binder        *form.Binder
	assembler     Assembler
	client        PaymentClient
	journal       Journal
	confirmations *payment.Confirmations
	deliveryCfg   delivery.Config
	clearDelay    time.Duration
	disabled      string
	log           *zap.Logger
	now           func() time.Time
}

type Option func(*Orchestrator)

// WithClearDelay sets how long after a confirmed payment the cart is kept.
func WithClearDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.clearDelay = d }
}

func WithDeliveryConfig(cfg delivery.Config) Option {
	return func(o *Orchestrator) { o.deliveryCfg = cfg }
}

// WithDisabled turns every submission into a configuration failure.
func WithDisabled(reason string) Option {
	return func(o *Orchestrator) { o.disabled = reason }
}

func WithLogger(log *zap.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.log = log
		}
	}
}

func NewOrchestrator(
	guard Guard,
	binder *form.Binder,
	assembler Assembler,
	client PaymentClient,
	journal Journal,
	confirmations *payment.Confirmations,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		guard:         guard,
		binder:        binder,
		assembler:     assembler,
		client:        client,
		journal:       journal,
		confirmations: confirmations,
		deliveryCfg:   delivery.DefaultConfig(),
		clearDelay:    3 * time.Second,
		log:           zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Submit runs one submission for the checkout identified by key. A second
// Submit for the same key while the first is running fails immediately with
// ErrSubmitInProgress and makes no backend call.
func (o *Orchestrator) Submit(ctx context.Context, key string, req SubmitRequest) Result {
	log := logger.With(ctx, o.log).With(zap.String("checkout_key", key))

	if o.disabled != "" {
		log.Warn("checkout disabled", zap.String("reason", o.disabled))
		return o.fail(ErrCheckoutDisabled, Result{})
	}

	release, err := o.guard.Acquire(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSubmitInProgress) {
			log.Info("duplicate submission ignored")
			return Result{State: StateSubmitting, Err: err, Message: UserMessage(err)}
		}
		log.Error("submit guard unavailable", zap.Error(err))
		return o.fail(err, Result{})
	}
	defer release()

	f := req.Form
	if f == nil {
		f, _, _ = form.NewForm(form.Fields)
	}

	var result Result
	if err := o.binder.WithBusy(f, func() error {
		result = o.submit(ctx, log, req)
		return result.Err
	}); err != nil {
		log.Info("submission failed", zap.String("message", result.Message), zap.Error(err))
	}
	return result
}

func (o *Orchestrator) submit(ctx context.Context, log *zap.Logger, req SubmitRequest) Result {
	snapshot := o.binder.Extract(req.Values)
	ctrl := delivery.NewController(snapshot.Get(form.FieldDeliveryMethod), o.deliveryCfg)
	if store := snapshot.Get(form.FieldPickupStore); store != "" {
		if err := ctrl.SelectStore(store); err != nil {
			log.Warn("ignoring pickup store", zap.Error(err))
		}
	}
	base := Result{Snapshot: snapshot, Delivery: ctrl}

	orderReq, err := o.assembler.Assemble(req.Cart, snapshot, ctrl.Selection())
	if err != nil {
		log.Info("order assembly failed", zap.Error(err))
		return o.fail(err, base)
	}
	base.OrderNumber = orderReq.OrderNumber
	log = log.With(zap.String("order_number", orderReq.OrderNumber))

	attempt := &repository.Attempt{
		OrderNumber:  orderReq.OrderNumber,
		SessionKey:   logger.RequestIDFromContext(ctx),
		AmountMinor:  orderReq.AmountMinor,
		Currency:     orderReq.Currency,
		DeliveryMode: orderReq.DeliveryMode,
		PickupStore:  orderReq.PickupStore,
		Strategy:     o.client.Strategy(),
	}
	if key, ok := SessionKeyFromContext(ctx); ok {
		attempt.SessionKey = key
	}
	if err := o.journal.CreateAttempt(ctx, attempt); err != nil {
		log.Error("failed to journal attempt", zap.Error(err))
	}

	link, err := o.client.SubmitOrder(ctx, orderReq, req.CSRFToken)
	if err != nil {
		o.record(ctx, log, orderReq.OrderNumber, failedUpdate(err))
		return o.fail(err, base)
	}
	if o.client.Strategy() == "widget" && o.confirmations != nil {
		o.confirmations.Register(orderReq.OrderNumber)
	}

	o.record(ctx, log, orderReq.OrderNumber, repository.StatusUpdate{
		Status:        domain.AttemptStatusLinkCreated,
		PaymentURL:    link.URL,
		TransactionID: link.TransactionID,
	})
	log.Info("payment link created", zap.Int64("amount_minor", orderReq.AmountMinor))

	base.State = StateRedirecting
	base.RedirectURL = link.URL
	base.Message = MsgPaymentRedirect
	return base
}

func (o *Orchestrator) fail(err error, r Result) Result {
	r.State = StateIdle
	r.Err = err
	r.Message = UserMessage(err)
	return r
}

func (o *Orchestrator) record(ctx context.Context, log *zap.Logger, orderNumber string, u repository.StatusUpdate) {
	if _, err := o.journal.UpdateStatus(ctx, orderNumber, u); err != nil {
		log.Error("failed to journal attempt outcome", zap.String("status", u.Status.String()), zap.Error(err))
	}
}

func failedUpdate(err error) repository.StatusUpdate {
	u := repository.StatusUpdate{Status: domain.AttemptStatusTransportFailed, Detail: err.Error()}
	var pe *payment.PaymentError
	if errors.As(err, &pe) {
		u.Detail = pe.Detail
		switch pe.Kind {
		case payment.KindRejected:
			u.Status = domain.AttemptStatusRejected
		case payment.KindConfiguration:
			u.Status = domain.AttemptStatusRejected
			u.Detail = configurationPrefix + pe.Detail
		}
	}
	return u
}

const configurationPrefix = "configuration: "

type sessionKeyCtx struct{}

// ContextWithSessionKey tags ctx with the checkout session the journal
// should file attempts under.
func ContextWithSessionKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, sessionKeyCtx{}, key)
}

// SessionKeyFromContext returns the key set by ContextWithSessionKey.
func SessionKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(sessionKeyCtx{}).(string)
	return key, ok && key != ""
}
