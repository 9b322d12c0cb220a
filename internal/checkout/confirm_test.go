package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/form"
	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/region"
)

type widgetFixture struct {
	o           *Orchestrator
	journal     *MockJournal
	client      *MockPaymentClient
	ctx         context.Context
	orderNumber string
}

// setupWidget submits one widget checkout for session "sess-1". The backend
// reports the link as paid unless the test changes it.
func setupWidget(t *testing.T, strategy string) widgetFixture {
	t.Helper()
	client := &MockPaymentClient{
		Link:         payment.Link{URL: "/checkout/widget?token=t", TransactionID: "TXN1"},
		StrategyName: strategy,
		Verification: payment.Verification{State: payment.LinkPaid, TransactionID: "TXN1"},
	}
	journal := NewMockJournal()
	o := NewOrchestrator(NewMemoryGuard(), form.NewBinder(form.Fields),
		order.NewAssembler(region.NewResolver(), nil), client, journal,
		payment.NewConfirmations(time.Hour), WithClearDelay(3*time.Second))

	ctx := ContextWithSessionKey(context.Background(), "sess-1")
	res := o.Submit(ctx, "sess-1", submitRequest(t))
	require.NoError(t, res.Err)
	return widgetFixture{o: o, journal: journal, client: client, ctx: ctx, orderNumber: res.OrderNumber}
}

func (f widgetFixture) status(t *testing.T) domain.AttemptStatus {
	t.Helper()
	a, err := f.journal.GetAttempt(context.Background(), f.orderNumber)
	require.NoError(t, err)
	return a.Status
}

func TestConfirm_VerifiedSuccessSchedulesClear(t *testing.T) {
	f := setupWidget(t, "widget")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f.o.now = func() time.Time { return now }

	require.NoError(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok"))

	assert.Equal(t, int32(1), f.client.VerifyCalls.Load())
	assert.Equal(t, now.Add(3*time.Second), f.journal.ClearAt[f.orderNumber])

	st, err := f.o.Status(f.ctx, f.orderNumber, 0, "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusPaid, st.Attempt)
	assert.Equal(t, MsgPaymentSuccess, st.Message)
	assert.False(t, st.ClearCart)

	now = now.Add(3 * time.Second)
	st, err = f.o.Status(f.ctx, f.orderNumber, 0, "tok")
	require.NoError(t, err)
	assert.True(t, st.ClearCart)
}

func TestConfirm_UnverifiedSuccessRecordsNothing(t *testing.T) {
	f := setupWidget(t, "widget")
	f.client.SetVerification(payment.Verification{State: payment.LinkPending})

	err := f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true, TransactionID: "forged"}, "tok")

	assert.ErrorIs(t, err, ErrPaymentUnverified)
	assert.Equal(t, domain.AttemptStatusLinkCreated, f.status(t))
	assert.Empty(t, f.journal.ClearAt)
	c, ok := f.o.confirmations.Get(f.orderNumber)
	require.True(t, ok)
	select {
	case <-c.Done():
		t.Fatal("confirmation resolved without a verified outcome")
	default:
	}
}

func TestConfirm_BackendFailureOverridesReportedSuccess(t *testing.T) {
	f := setupWidget(t, "widget")
	f.client.SetVerification(payment.Verification{State: payment.LinkFailed, Detail: "payment link expired"})

	require.NoError(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok"))

	assert.Equal(t, domain.AttemptStatusPaymentFailed, f.status(t))
	assert.Empty(t, f.journal.ClearAt)
}

func TestConfirm_ReportedFailure(t *testing.T) {
	f := setupWidget(t, "widget")
	f.client.SetVerification(payment.Verification{State: payment.LinkPending})

	require.NoError(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Detail: "card declined"}, "tok"))

	assert.Empty(t, f.journal.ClearAt)
	st, err := f.o.Status(f.ctx, f.orderNumber, 0, "tok")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusPaymentFailed, st.Attempt)
	assert.Equal(t, MsgPaymentFailed, st.Message)
}

func TestConfirm_OtherSessionRejected(t *testing.T) {
	f := setupWidget(t, "widget")

	tests := []struct {
		name string
		ctx  context.Context
	}{
		{"different session", ContextWithSessionKey(context.Background(), "sess-2")},
		{"no session", context.Background()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.o.Confirm(tt.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok")
			assert.ErrorIs(t, err, ErrNotOrderOwner)
		})
	}
	assert.Equal(t, int32(0), f.client.VerifyCalls.Load())
	assert.Equal(t, domain.AttemptStatusLinkCreated, f.status(t))
}

func TestConfirm_VerifyFailureRecordsNothing(t *testing.T) {
	f := setupWidget(t, "widget")
	f.client.VerifyErr = &payment.PaymentError{Kind: payment.KindTransport, Detail: "HTTP 502"}

	err := f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok")

	kind, ok := payment.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, payment.KindTransport, kind)
	assert.Equal(t, domain.AttemptStatusLinkCreated, f.status(t))
}

func TestConfirm_OnlyOnce(t *testing.T) {
	f := setupWidget(t, "widget")

	require.NoError(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok"))
	assert.ErrorIs(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{}, "tok"), payment.ErrAlreadyResolved)
}

func TestConfirm_UnknownLocallyFallsBackToJournal(t *testing.T) {
	f := setupWidget(t, "widget")
	f.o.confirmations = payment.NewConfirmations(time.Hour)

	require.NoError(t, f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok"))
	assert.Equal(t, domain.AttemptStatusPaid, f.status(t))
}

func TestConfirm_UnknownOrder(t *testing.T) {
	f := setupWidget(t, "widget")

	err := f.o.Confirm(f.ctx, "nope", payment.Outcome{Success: true}, "tok")
	assert.Error(t, err)
}

func TestStatus_WaitsForPendingConfirmation(t *testing.T) {
	f := setupWidget(t, "widget")

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = f.o.Confirm(f.ctx, f.orderNumber, payment.Outcome{Success: true}, "tok")
	}()

	st, err := f.o.Status(f.ctx, f.orderNumber, time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusPaid, st.Attempt)
	assert.False(t, st.Pending)
}

func TestStatus_PendingAfterTimeout(t *testing.T) {
	f := setupWidget(t, "widget")
	f.client.SetVerification(payment.Verification{State: payment.LinkPending})

	st, err := f.o.Status(f.ctx, f.orderNumber, 10*time.Millisecond, "tok")
	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.Equal(t, MsgPaymentPending, st.Message)
}

func TestStatus_SettlesHostedAttemptFromBackend(t *testing.T) {
	f := setupWidget(t, "hosted")

	st, err := f.o.Status(context.Background(), f.orderNumber, 0, "tok")

	require.NoError(t, err)
	assert.Equal(t, domain.AttemptStatusPaid, st.Attempt)
	assert.Contains(t, f.journal.ClearAt, f.orderNumber)
}

func TestStatus_WithoutTokenSkipsLookup(t *testing.T) {
	f := setupWidget(t, "hosted")

	st, err := f.o.Status(context.Background(), f.orderNumber, 0, "")

	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.Equal(t, int32(0), f.client.VerifyCalls.Load())
}

func TestStatus_LookupFailureStaysPending(t *testing.T) {
	f := setupWidget(t, "hosted")
	f.client.VerifyErr = &payment.PaymentError{Kind: payment.KindTransport}

	st, err := f.o.Status(context.Background(), f.orderNumber, 0, "tok")

	require.NoError(t, err)
	assert.True(t, st.Pending)
}

func TestStatus_UnknownOrder(t *testing.T) {
	f := setupWidget(t, "widget")

	_, err := f.o.Status(context.Background(), "nope", 0, "")
	assert.Error(t, err)
}
