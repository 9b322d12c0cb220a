// Package linkstub is a local stand-in for the payment-link backend. It
// answers the link, token and status endpoints with simulated provider data
// and accepts simulated provider webhooks to move a payment along.
package linkstub

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	// LinkBase is the simulated hosted payment page.
	LinkBase   string
	CSRFHeader string
	// MaxAmount rejects larger orders, to exercise the failure path. 0 means
	// no limit.
	MaxAmount int64
	// AutoPay reports every issued payment as paid on its first status lookup.
	AutoPay bool
}

// provider link states
const (
	StateGenerated = "1"
	StateInProcess = "2"
	StatePaid      = "3"
	StateError     = "4"
	StateExpired   = "5"
)

var validStates = map[string]bool{
	StateGenerated: true, StateInProcess: true, StatePaid: true, StateError: true, StateExpired: true,
}

type transaction struct {
	orderNumber string
	state       string
}

type Server struct {
	cfg Config
	log *zap.Logger

	mu           sync.Mutex
	transactions map[string]*transaction // by transaction id
}

func NewServer(cfg Config, log *zap.Logger) *Server {
	if cfg.LinkBase == "" {
		cfg.LinkBase = "https://pago.izipay.pe/pago"
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = "X-CSRFToken"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, log: log, transactions: make(map[string]*transaction)}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requireCSRF)

	r.Post("/izipay/payment-link/", s.paymentLink)
	r.Post("/izipay/generate-token/", s.generateToken)
	r.Post("/izipay/payment-link/status/", s.status)
	r.Post("/izipay/webhook/", s.webhook)
	return r
}

func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(r.Header.Get(s.cfg.CSRFHeader)) == "" {
			http.Error(w, "CSRF verification failed", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type orderRequest struct {
	Amount        int64  `json:"amount"`
	OrderNumber   string `json:"orderNumber"`
	CustomerEmail string `json:"customerEmail"`
	Currency      string `json:"currency"`
}

func (o *orderRequest) Bind(*http.Request) error {
	if o.OrderNumber == "" {
		return errors.New("orderNumber is required")
	}
	return nil
}

type response struct {
	Success       bool   `json:"success"`
	Error         string `json:"error,omitempty"`
	PaymentLink   string `json:"paymentLink,omitempty"`
	PaymentLinkID string `json:"paymentLinkId,omitempty"`
	Token         string `json:"token,omitempty"`
	TransactionID string `json:"transactionId,omitempty"`
	State         string `json:"state,omitempty"`
}

// decode returns false after answering with a rejection.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, req *orderRequest) bool {
	if err := render.Bind(r, req); err != nil {
		render.JSON(w, r, response{Error: err.Error()})
		return false
	}
	if req.Amount <= 0 {
		render.JSON(w, r, response{Error: "El monto debe ser mayor a cero"})
		return false
	}
	if s.cfg.MaxAmount > 0 && req.Amount > s.cfg.MaxAmount {
		render.JSON(w, r, response{Error: fmt.Sprintf("El monto excede el límite de %d", s.cfg.MaxAmount)})
		return false
	}
	return true
}

func (s *Server) paymentLink(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp := response{
		Success:       true,
		PaymentLink:   fmt.Sprintf("%s?id=xyz-%s", s.cfg.LinkBase, req.OrderNumber),
		PaymentLinkID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		TransactionID: s.issue(req.OrderNumber),
	}
	s.log.Info("payment link created",
		zap.String("order_number", req.OrderNumber),
		zap.Int64("amount", req.Amount),
		zap.String("payment_link_id", resp.PaymentLinkID))
	render.JSON(w, r, resp)
}

func (s *Server) generateToken(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decode(w, r, &req) {
		return
	}
	resp := response{
		Success:       true,
		Token:         uuid.NewString(),
		TransactionID: s.issue(req.OrderNumber),
	}
	s.log.Info("payment token issued", zap.String("order_number", req.OrderNumber), zap.Int64("amount", req.Amount))
	render.JSON(w, r, resp)
}

// issue records a generated payment for orderNumber and returns its
// transaction id.
func (s *Server) issue(orderNumber string) string {
	id := "izp-txn-" + orderNumber
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions[id] = &transaction{orderNumber: orderNumber, state: StateGenerated}
	return id
}

// lookup finds a payment by transaction id, falling back to the order number.
func (s *Server) lookup(transactionID, orderNumber string) (string, *transaction, bool) {
	if t, ok := s.transactions[transactionID]; ok {
		return transactionID, t, true
	}
	for id, t := range s.transactions {
		if orderNumber != "" && t.orderNumber == orderNumber {
			return id, t, true
		}
	}
	return "", nil, false
}

type statusRequest struct {
	OrderNumber   string `json:"orderNumber"`
	TransactionID string `json:"transactionId"`
}

func (q *statusRequest) Bind(*http.Request) error {
	if q.OrderNumber == "" && q.TransactionID == "" {
		return errors.New("orderNumber or transactionId is required")
	}
	return nil
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := render.Bind(r, &req); err != nil {
		render.JSON(w, r, response{Error: err.Error()})
		return
	}

	s.mu.Lock()
	id, t, ok := s.lookup(req.TransactionID, req.OrderNumber)
	if ok && s.cfg.AutoPay && t.state == StateGenerated {
		t.state = StatePaid
	}
	var state string
	if ok {
		state = t.state
	}
	s.mu.Unlock()

	if !ok {
		render.JSON(w, r, response{Error: "Transacción no encontrada"})
		return
	}
	render.JSON(w, r, response{Success: true, State: state, TransactionID: id})
}

type webhookRequest struct {
	TransactionID string `json:"transactionId"`
	State         string `json:"state"`
}

func (q *webhookRequest) Bind(*http.Request) error {
	if q.TransactionID == "" {
		return errors.New("transactionId is required")
	}
	if !validStates[q.State] {
		return fmt.Errorf("unknown state %q", q.State)
	}
	return nil
}

// webhook simulates the provider reporting a state change.
func (s *Server) webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := render.Bind(r, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response{Error: err.Error()})
		return
	}

	s.mu.Lock()
	t, ok := s.transactions[req.TransactionID]
	if ok {
		t.state = req.State
	}
	s.mu.Unlock()

	if !ok {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, response{Error: "Transacción no encontrada"})
		return
	}
	s.log.Info("payment state changed", zap.String("transaction_id", req.TransactionID), zap.String("state", req.State))
	render.JSON(w, r, response{Success: true, State: req.State, TransactionID: req.TransactionID})
}
