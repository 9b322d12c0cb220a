package linkstub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/payment"
)

func setupStub(t *testing.T, cfg Config) (*httptest.Server, func()) {
	t.Helper()
	srv := httptest.NewServer(NewServer(cfg, nil).Routes())
	return srv, srv.Close
}

func order(amount int64) domain.OrderRequest {
	return domain.OrderRequest{
		OrderNumber: "ORDER-1",
		AmountMinor: amount,
		Currency:    "PEN",
		Billing:     domain.Contact{FirstName: "Ana", Email: "ana@example.pe"},
	}
}

func TestPaymentLink_WithClient(t *testing.T) {
	srv, cleanup := setupStub(t, Config{LinkBase: "https://pay.example/p"})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL, Timeout: time.Second}, srv.Client(), nil)
	require.NoError(t, err)

	link, err := client.SubmitOrder(context.Background(), order(10600), "token")

	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/p?id=xyz-ORDER-1", link.URL)
	assert.Equal(t, "izp-txn-ORDER-1", link.TransactionID)
	assert.Len(t, link.ID, 32)
}

func TestGenerateToken_WithClient(t *testing.T) {
	srv, cleanup := setupStub(t, Config{})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL, Strategy: "widget", WidgetURL: "/checkout/widget"}, srv.Client(), nil)
	require.NoError(t, err)

	link, err := client.SubmitOrder(context.Background(), order(500), "token")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/checkout/widget?"))
	assert.NotEmpty(t, link.Token)
	assert.Equal(t, "izp-txn-ORDER-1", link.TransactionID)
}

func TestPaymentLink_Rejections(t *testing.T) {
	srv, cleanup := setupStub(t, Config{MaxAmount: 1000})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = client.SubmitOrder(context.Background(), order(5000), "token")
	kind, ok := payment.KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, payment.KindRejected, kind)
	assert.Contains(t, err.Error(), "excede")

	_, err = client.SubmitOrder(context.Background(), order(0), "token")
	kind, _ = payment.KindOf(err)
	assert.Equal(t, payment.KindRejected, kind)
}

func TestPaymentLink_RequiresCSRFHeader(t *testing.T) {
	srv, cleanup := setupStub(t, Config{})
	defer cleanup()

	resp, err := http.Post(srv.URL+"/izipay/payment-link/", "application/json", strings.NewReader(`{"orderNumber":"ORDER-1","amount":100}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func postWebhook(t *testing.T, srv *httptest.Server, body string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/izipay/webhook/", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRFToken", "token")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestStatus_FollowsWebhooks(t *testing.T) {
	srv, cleanup := setupStub(t, Config{})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL, Strategy: "widget"}, srv.Client(), nil)
	require.NoError(t, err)
	link, err := client.SubmitOrder(context.Background(), order(500), "token")
	require.NoError(t, err)

	v, err := client.Verify(context.Background(), "ORDER-1", link.TransactionID, "token")
	require.NoError(t, err)
	assert.Equal(t, payment.LinkPending, v.State)

	require.Equal(t, http.StatusOK, postWebhook(t, srv, `{"transactionId":"izp-txn-ORDER-1","state":"3"}`))
	v, err = client.Verify(context.Background(), "ORDER-1", "", "token")
	require.NoError(t, err)
	assert.Equal(t, payment.LinkPaid, v.State)
	assert.Equal(t, "izp-txn-ORDER-1", v.TransactionID)

	require.Equal(t, http.StatusOK, postWebhook(t, srv, `{"transactionId":"izp-txn-ORDER-1","state":"5"}`))
	v, err = client.Verify(context.Background(), "ORDER-1", link.TransactionID, "token")
	require.NoError(t, err)
	assert.Equal(t, payment.LinkFailed, v.State)
}

func TestStatus_UnknownOrder(t *testing.T) {
	srv, cleanup := setupStub(t, Config{})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)

	_, err = client.Verify(context.Background(), "ORDER-9", "", "token")
	kind, ok := payment.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, payment.KindRejected, kind)
}

func TestStatus_AutoPay(t *testing.T) {
	srv, cleanup := setupStub(t, Config{AutoPay: true})
	defer cleanup()

	client, err := payment.New(payment.Config{BaseURL: srv.URL}, srv.Client(), nil)
	require.NoError(t, err)
	_, err = client.SubmitOrder(context.Background(), order(500), "token")
	require.NoError(t, err)

	v, err := client.Verify(context.Background(), "ORDER-1", "", "token")
	require.NoError(t, err)
	assert.Equal(t, payment.LinkPaid, v.State)
}

func TestWebhook_Validation(t *testing.T) {
	srv, cleanup := setupStub(t, Config{})
	defer cleanup()

	assert.Equal(t, http.StatusBadRequest, postWebhook(t, srv, `{"transactionId":"izp-txn-ORDER-1","state":"7"}`))
	assert.Equal(t, http.StatusNotFound, postWebhook(t, srv, `{"transactionId":"izp-txn-ORDER-1","state":"3"}`))
}
