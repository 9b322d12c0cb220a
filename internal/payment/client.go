// Package payment talks to the backend that creates provider-side payments.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/pkg/circuitbreaker"
	"github.com/fjod/go_checkout/pkg/logger"
)

const (
	DefaultCSRFHeader = "X-CSRFToken"
	DefaultTimeout    = 15 * time.Second
	maxBodyBytes      = 1 << 20
	maxDetailBytes    = 512
)

type Config struct {
	BaseURL    string
	Strategy   string // hosted or widget
	CSRFHeader string
	Timeout    time.Duration
	// WidgetURL is where the widget strategy sends the shopper.
	WidgetURL string
}

type Client struct {
	baseURL    string
	csrfHeader string
	timeout    time.Duration
	httpClient *http.Client
	strategy   Strategy
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *zap.Logger
}

// NewStrategy selects a strategy by name.
func NewStrategy(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case "", "hosted":
		return HostedLinkStrategy{}, nil
	case "widget":
		widgetURL := cfg.WidgetURL
		if widgetURL == "" {
			widgetURL = "/checkout/widget"
		}
		return EmbeddedWidgetStrategy{WidgetURL: widgetURL}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// New builds a client. A nil httpClient gets an otelhttp-instrumented one.
func New(cfg Config, httpClient *http.Client, log *zap.Logger) (*Client, error) {
	strategy, err := NewStrategy(cfg)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	if log == nil {
		log = zap.NewNop()
	}
	header := cfg.CSRFHeader
	if header == "" {
		header = DefaultCSRFHeader
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	settings := circuitbreaker.DefaultSettings("payment-backend")
	settings.IsFailure = func(err error) bool {
		kind, ok := KindOf(err)
		return !ok || kind == KindTransport
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		csrfHeader: header,
		timeout:    timeout,
		httpClient: httpClient,
		strategy:   strategy,
		breaker:    circuitbreaker.New[[]byte](settings, log),
		log:        log,
	}, nil
}

func (c *Client) Strategy() string {
	return c.strategy.Name()
}

// SubmitOrder makes exactly one backend call. Every failure is a *PaymentError.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest, csrfToken string) (Link, error) {
	body, err := c.call(ctx, c.strategy.Path(), c.strategy.Body(req), csrfToken)
	if err != nil {
		logger.With(ctx, c.log).Warn("payment request failed",
			zap.String("order_number", req.OrderNumber),
			zap.String("strategy", c.strategy.Name()),
			zap.Error(err))
		return Link{}, err
	}
	return c.strategy.Link(req, body)
}

// Verify asks the backend for the state of the payment started for
// orderNumber. It is the only source the journal trusts for a paid order.
func (c *Client) Verify(ctx context.Context, orderNumber, transactionID, csrfToken string) (Verification, error) {
	body, err := c.call(ctx, statusPath, statusRequest{OrderNumber: orderNumber, TransactionID: transactionID}, csrfToken)
	if err != nil {
		logger.With(ctx, c.log).Warn("payment status lookup failed",
			zap.String("order_number", orderNumber),
			zap.Error(err))
		return Verification{}, err
	}
	return parseVerification(body)
}

func (c *Client) call(ctx context.Context, path string, payload any, csrfToken string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, &PaymentError{Kind: KindConfiguration, Detail: errMissingBackendURL}
	}
	if strings.TrimSpace(csrfToken) == "" {
		return nil, &PaymentError{Kind: KindConfiguration, Detail: errMissingCSRFToken}
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.post(ctx, path, payload, csrfToken)
	})
	if circuitbreaker.IsOpen(err) {
		return nil, &PaymentError{Kind: KindTransport, Detail: errBackendUnavailable, Err: err}
	}
	return body, err
}

func (c *Client) post(ctx context.Context, path string, payload any, csrfToken string) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, &PaymentError{Kind: KindConfiguration, Detail: "encode request", Err: err}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, &PaymentError{Kind: KindConfiguration, Detail: "build request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(c.csrfHeader, csrfToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		detail := "request failed"
		if errors.Is(err, context.DeadlineExceeded) {
			detail = "request timed out"
		}
		return nil, &PaymentError{Kind: KindTransport, Detail: detail, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &PaymentError{Kind: KindTransport, Detail: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &PaymentError{Kind: KindTransport, Detail: statusDetail(resp.StatusCode, body)}
	}
	return body, nil
}

func statusDetail(code int, body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > maxDetailBytes {
		text = text[:maxDetailBytes]
	}
	if text == "" {
		return fmt.Sprintf("HTTP %d", code)
	}
	return fmt.Sprintf("HTTP %d: %s", code, text)
}
