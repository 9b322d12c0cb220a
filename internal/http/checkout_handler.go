package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/fjod/go_checkout/internal/cartpayload"
	"github.com/fjod/go_checkout/internal/checkout"
	"github.com/fjod/go_checkout/internal/delivery"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/form"
	"github.com/fjod/go_checkout/internal/payment"
	"github.com/fjod/go_checkout/internal/region"
	"github.com/fjod/go_checkout/internal/repository"
	"github.com/fjod/go_checkout/pkg/logger"
)

type Checkout interface {
	Submit(ctx context.Context, key string, req checkout.SubmitRequest) checkout.Result
	Confirm(ctx context.Context, orderNumber string, outcome payment.Outcome, csrfToken string) error
	Status(ctx context.Context, orderNumber string, wait time.Duration, csrfToken string) (checkout.Status, error)
}

type RegionCatalog interface {
	Regions(ctx context.Context) []region.Region
}

type HandlerConfig struct {
	Delivery      delivery.Config
	ResultWait    time.Duration
	StorefrontURL string
	WidgetScript  string
	PublicKey     string
	// Disabled, when set, renders the page without a working submit button.
	Disabled string
}

type CheckoutHandler struct {
	checkout  Checkout
	reader    *cartpayload.Reader
	binder    *form.Binder
	catalog   RegionCatalog
	sessions  sessions.Store
	templates *Templates
	fields    []form.Descriptor
	cfg       HandlerConfig
	log       *zap.Logger
}

// NewCheckoutHandler validates the form table once. A table missing essential
// fields disables submission instead of failing startup.
func NewCheckoutHandler(
	co Checkout,
	reader *cartpayload.Reader,
	catalog RegionCatalog,
	store sessions.Store,
	templates *Templates,
	cfg HandlerConfig,
	log *zap.Logger,
) (*CheckoutHandler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	_, warn, err := form.NewForm(form.Fields)
	if err != nil {
		return nil, err
	}
	if warn != nil {
		log.Warn("checkout form misconfigured, submission disabled", zap.Strings("missing", warn.Missing))
		cfg.Disabled = warn.Error()
	}
	if cfg.StorefrontURL == "" {
		cfg.StorefrontURL = "/"
	}
	return &CheckoutHandler{
		checkout:  co,
		reader:    reader,
		binder:    form.NewBinder(form.Fields),
		catalog:   catalog,
		sessions:  store,
		templates: templates,
		fields:    form.Fields,
		cfg:       cfg,
		log:       log,
	}, nil
}

var documentTypes = []form.Option{
	{Value: "DNI", Label: "DNI"},
	{Value: "CE", Label: "Carné de extranjería"},
	{Value: "PASAPORTE", Label: "Pasaporte"},
	{Value: "RUC", Label: "RUC"},
}

type itemView struct {
	Name     string
	Quantity int
	Line     string
	ImageURL string
}

type checkoutPage struct {
	Form         *form.Form
	Items        []itemView
	Empty        bool
	Subtotal     string
	MethodLabel  string
	ShippingCost string
	Total        string
	ShowShipping bool
	ShowPickup   bool
	Stores       []delivery.Store
	Flashes      []FlashMessage
	Disabled     string
	CSRFField    template.HTML
	CSRFToken    string
	BusyLabel    string
	// CleanURL, when set, replaces the address bar URL after a cart clear.
	CleanURL string
}

// buildPage renders cart and form state. A nil snapshot means a first visit:
// the form is prefilled from the cart's customer instead of restored.
func (h *CheckoutHandler) buildPage(r *http.Request, cart domain.CartSnapshot, rawCart string, snapshot domain.FormSnapshot, ctrl *delivery.Controller) (*checkoutPage, error) {
	f, _, err := form.NewForm(h.fields)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		h.binder.Restore(f, snapshot)
	} else {
		h.binder.Prefill(f, cart.Email, cart.CustomerOrEmpty())
	}
	f.Set(form.FieldCartData, rawCart)

	regionOpts := region.Options(h.catalog.Regions(r.Context()), f.Value(form.FieldProvince), f.Value(form.FieldCity))
	opts := make([]form.Option, 0, len(regionOpts))
	for _, o := range regionOpts {
		if o.Selected {
			f.Set(form.FieldProvince, o.Value)
		}
		opts = append(opts, form.Option{Value: o.Value, Label: o.Label, Selected: o.Selected})
	}
	f.SetOptions(form.FieldProvince, opts)

	if f.Value(form.FieldDocumentType) == "" {
		f.Set(form.FieldDocumentType, "DNI")
	}
	docs := make([]form.Option, len(documentTypes))
	for i, o := range documentTypes {
		o.Selected = o.Value == f.Value(form.FieldDocumentType)
		docs[i] = o
	}
	f.SetOptions(form.FieldDocumentType, docs)

	ctrl.Apply(f)
	if email, ok := f.Field(form.FieldEmail); ok {
		email.Required = true
	}

	currency := cart.Currency
	totals := ctrl.Totals(cart.Total())
	items := make([]itemView, 0, len(cart.Items))
	for _, it := range cart.Items {
		items = append(items, itemView{
			Name:     it.Name,
			Quantity: it.Quantity,
			Line:     domain.FormatDisplay(it.LineTotal(), currency),
			ImageURL: it.ImageURL,
		})
	}

	page := &checkoutPage{
		Form:         f,
		Items:        items,
		Empty:        cart.IsEmpty(),
		Subtotal:     domain.FormatDisplay(cart.Subtotal(), currency),
		MethodLabel:  ctrl.MethodLabel(),
		ShippingCost: ctrl.CostLabel(currency),
		Total:        domain.FormatTotal(totals.Total, currency),
		ShowShipping: ctrl.ShowShipping(),
		ShowPickup:   ctrl.ShowPickup(),
		Stores:       ctrl.Stores(),
		CSRFField:    csrf.TemplateField(r),
		CSRFToken:    csrf.Token(r),
		BusyLabel:    form.BusySubmitLabel,
	}
	if h.cfg.Disabled != "" {
		page.Disabled = checkout.MsgUnavailable
	}
	return page, nil
}

// GET /checkout
func (h *CheckoutHandler) Page(w http.ResponseWriter, r *http.Request) {
	log := logger.With(r.Context(), h.log)
	s := h.session(r)
	param := h.reader.Param()
	raw := r.URL.Query().Get(param)
	cart := h.reader.ParseRaw(raw)

	var cleanURL string
	if takeCleared(s, raw) {
		log.Info("dropping cart of a paid order")
		cart.Clear()
		raw = ""
		cleanURL = cartpayload.StripParam(r.URL, param)
	}
	s.Values[checkoutPathVal] = cartpayload.StripParam(r.URL, param)

	page, err := h.buildPage(r, cart, raw, nil, delivery.NewController("", h.cfg.Delivery))
	if err != nil {
		log.Error("failed to build checkout page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	page.CleanURL = cleanURL

	page.Flashes = getFlashes(s)
	sessionKey(s)
	h.saveSession(w, r, s)
	h.render(w, r, http.StatusOK, pageCheckout, page)
}

// POST /checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	log := logger.With(r.Context(), h.log)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	s := h.session(r)
	key := sessionKey(s)

	raw := r.PostForm.Get(form.FieldCartData)
	cart := h.reader.ParseRaw(raw)
	ctx := checkout.ContextWithSessionKey(r.Context(), key)

	var res checkout.Result
	if h.cfg.Disabled != "" {
		res = checkout.Result{State: checkout.StateIdle, Err: checkout.ErrCheckoutDisabled, Message: checkout.UserMessage(checkout.ErrCheckoutDisabled)}
	} else {
		res = h.checkout.Submit(ctx, key, checkout.SubmitRequest{
			Cart:      cart,
			Values:    r.PostForm,
			CSRFToken: csrf.Token(r),
		})
	}

	if res.State == checkout.StateRedirecting {
		rememberOrder(s, res.OrderNumber, raw)
		h.saveSession(w, r, s)
		http.Redirect(w, r, res.RedirectURL, http.StatusSeeOther)
		return
	}
	h.saveSession(w, r, s)

	snapshot := res.Snapshot
	if snapshot == nil {
		snapshot = h.binder.Extract(r.PostForm)
	}
	ctrl := res.Delivery
	if ctrl == nil {
		ctrl = delivery.NewController(snapshot.Get(form.FieldDeliveryMethod), h.cfg.Delivery)
		if store := snapshot.Get(form.FieldPickupStore); store != "" {
			_ = ctrl.SelectStore(store)
		}
	}

	page, err := h.buildPage(r, cart, raw, snapshot, ctrl)
	if err != nil {
		log.Error("failed to build checkout page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	page.Form.Message = res.Message

	status := http.StatusOK
	if errors.Is(res.Err, checkout.ErrSubmitInProgress) {
		status = http.StatusConflict
		page.Form.SetBusy(true)
	} else if isTransport(res.Err) {
		status = http.StatusBadGateway
	}
	h.render(w, r, status, pageCheckout, page)
}

type deliveryResponse struct {
	Mode          domain.DeliveryMode `json:"mode"`
	Required      []string            `json:"required"`
	ShippingMinor int64               `json:"shippingMinor"`
	Shipping      string              `json:"shipping"`
	ShippingLabel string              `json:"shippingLabel"`
	TotalMinor    int64               `json:"totalMinor"`
	Total         string              `json:"total"`
	ShowShipping  bool                `json:"showShipping"`
	ShowPickup    bool                `json:"showPickup"`
}

// POST /checkout/delivery
func (h *CheckoutHandler) Delivery(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", "invalid form")
		return
	}
	cart := h.reader.ParseRaw(r.PostForm.Get(form.FieldCartData))

	ctrl := delivery.NewController("", h.cfg.Delivery)
	var resp deliveryResponse
	fill := func() {
		totals := ctrl.Totals(cart.Total())
		resp = deliveryResponse{
			Mode:          ctrl.Mode(),
			Required:      ctrl.Required(),
			ShippingMinor: ctrl.ShippingFee(),
			Shipping:      ctrl.CostLabel(cart.Currency),
			ShippingLabel: ctrl.MethodLabel(),
			TotalMinor:    totals.Total,
			Total:         domain.FormatTotal(totals.Total, cart.Currency),
			ShowShipping:  ctrl.ShowShipping(),
			ShowPickup:    ctrl.ShowPickup(),
		}
	}
	fill()
	ctrl.OnChange(func(delivery.Change) { fill() })

	mode, _ := domain.ParseDeliveryMode(r.PostForm.Get(form.FieldDeliveryMethod))
	ctrl.Select(mode)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// GET /checkout/widget
func (h *CheckoutHandler) Widget(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderNumber := q.Get("orderNumber")
	token := q.Get("token")
	if orderNumber == "" || token == "" {
		http.Error(w, "missing payment token", http.StatusBadRequest)
		return
	}
	h.render(w, r, http.StatusOK, pageWidget, map[string]any{
		"OrderNumber":   orderNumber,
		"Token":         token,
		"TransactionID": q.Get("transactionId"),
		"ScriptURL":     h.cfg.WidgetScript,
		"PublicKey":     h.cfg.PublicKey,
		"CallbackURL":   "/checkout/callback",
		"ResultURL":     "/checkout/result/" + url.PathEscape(orderNumber),
		"CSRFToken":     csrf.Token(r),
	})
}

type callbackRequest struct {
	OrderNumber   string `json:"orderNumber"`
	Success       bool   `json:"success"`
	Detail        string `json:"detail"`
	TransactionID string `json:"transactionId"`
}

func (c *callbackRequest) Bind(*http.Request) error {
	if c.OrderNumber == "" {
		return errors.New("orderNumber is required")
	}
	return nil
}

// POST /checkout/callback
func (h *CheckoutHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if err := render.Bind(r, &req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	s := h.session(r)
	ctx := checkout.ContextWithSessionKey(r.Context(), sessionString(s, sessionKeyVal))
	resultURL := "/checkout/result/" + url.PathEscape(req.OrderNumber)

	err := h.checkout.Confirm(ctx, req.OrderNumber, payment.Outcome{
		Success:       req.Success,
		Detail:        req.Detail,
		TransactionID: req.TransactionID,
	}, csrf.Token(r))
	if errors.Is(err, checkout.ErrPaymentUnverified) {
		render.Status(r, http.StatusAccepted)
		render.JSON(w, r, map[string]string{"status": "pending", "resultUrl": resultURL})
		return
	}
	if err != nil {
		h.handleConfirmError(w, r, err)
		return
	}
	if !req.Success && req.Detail != "" {
		addFlash(s, "error", "Detalle: "+req.Detail)
		h.saveSession(w, r, s)
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":    "ok",
		"resultUrl": resultURL,
	})
}

func (h *CheckoutHandler) handleConfirmError(w http.ResponseWriter, r *http.Request, err error) {
	var illegal *repository.IllegalTransitionError
	switch {
	case errors.Is(err, checkout.ErrNotOrderOwner):
		respondError(w, r, http.StatusForbidden, "forbidden", "order belongs to another checkout")
	case errors.Is(err, payment.ErrAlreadyResolved):
		respondError(w, r, http.StatusConflict, "already_resolved", "payment outcome already recorded")
	case errors.As(err, &illegal):
		respondError(w, r, http.StatusConflict, "illegal_transition", illegal.Error())
	case errors.Is(err, repository.ErrAttemptNotFound):
		respondError(w, r, http.StatusNotFound, "not_found", "unknown order")
	case isTransport(err):
		respondError(w, r, http.StatusBadGateway, "backend_unavailable", "payment status unavailable")
	default:
		logger.With(r.Context(), h.log).Error("failed to confirm payment", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

type resultPage struct {
	Status        checkout.Status
	Refresh       int
	StorefrontURL string
	// CheckoutURL is the emptied checkout, set once the cart was cleared.
	CheckoutURL string
	Flashes     []FlashMessage
}

// GET /checkout/result/{orderNumber}
func (h *CheckoutHandler) Result(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	st, err := h.checkout.Status(r.Context(), orderNumber, h.cfg.ResultWait, csrf.Token(r))
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		logger.With(r.Context(), h.log).Error("failed to load order status", zap.String("order_number", orderNumber), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	page := resultPage{Status: st, StorefrontURL: h.cfg.StorefrontURL}
	if st.Pending || (st.Attempt == domain.AttemptStatusPaid && !st.ClearCart) {
		page.Refresh = 3
	}
	s := h.session(r)
	if st.ClearCart && markCleared(s, orderNumber) {
		page.CheckoutURL = sessionString(s, checkoutPathVal)
	}
	page.Flashes = getFlashes(s)
	h.saveSession(w, r, s)
	h.render(w, r, http.StatusOK, pageResult, page)
}

func (h *CheckoutHandler) saveSession(w http.ResponseWriter, r *http.Request, s *sessions.Session) {
	if err := s.Save(r, w); err != nil {
		logger.With(r.Context(), h.log).Warn("failed to save session", zap.Error(err))
	}
}

func isTransport(err error) bool {
	kind, ok := payment.KindOf(err)
	return ok && kind == payment.KindTransport
}

func (h *CheckoutHandler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	if err := h.templates.Render(w, status, name, data); err != nil {
		logger.With(r.Context(), h.log).Error("failed to render page", zap.String("page", name), zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message, Code: code})
}
