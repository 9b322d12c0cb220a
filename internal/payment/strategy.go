package payment

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fjod/go_checkout/internal/domain"
)

// Strategy is one way of asking the backend to start a payment.
type Strategy interface {
	Name() string
	// Path is appended to the backend base URL.
	Path() string
	Body(req domain.OrderRequest) any
	// Link interprets a 2xx body. Refusals are returned as *PaymentError.
	Link(req domain.OrderRequest, body []byte) (Link, error)
}

// Link is where the shopper goes next.
type Link struct {
	URL           string
	ID            string
	TransactionID string
	Token         string
}

type billingAddress struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	PhoneNumber  string `json:"phoneNumber"`
	Street       string `json:"street"`
	Street2      string `json:"street2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	PostalCode   string `json:"postalCode"`
	DocumentType string `json:"documentType"`
	Document     string `json:"document"`
}

func toBilling(c domain.Contact) billingAddress {
	return billingAddress{
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		Email:        c.Email,
		PhoneNumber:  c.Phone,
		Street:       c.Address.Line1,
		Street2:      c.Address.Line2,
		City:         c.Address.City,
		State:        c.Address.Region,
		Country:      c.Address.Country,
		PostalCode:   c.Address.PostalCode,
		DocumentType: c.DocumentType,
		Document:     c.Document,
	}
}

type lineItem struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
	SKU       string `json:"sku,omitempty"`
}

type paymentLinkRequest struct {
	Amount        int64          `json:"amount"`
	OrderNumber   string         `json:"orderNumber"`
	CustomerEmail string         `json:"customerEmail"`
	CustomerName  string         `json:"customerName"`
	Billing       billingAddress `json:"billing"`
	Shipping      billingAddress `json:"shipping"`
	Currency      string         `json:"currency"`
	Items         []lineItem     `json:"items"`
	DeliveryMode  string         `json:"deliveryMode"`
	PickupStore   string         `json:"pickupStore,omitempty"`
	ShippingCost  int64          `json:"shippingCost"`
}

type paymentLinkResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	PaymentLink   string `json:"paymentLink"`
	PaymentLinkID string `json:"paymentLinkId"`
	TransactionID string `json:"transactionId"`
}

// HostedLinkStrategy asks the backend for a provider-hosted payment page.
type HostedLinkStrategy struct{}

func (HostedLinkStrategy) Name() string { return "hosted" }

func (HostedLinkStrategy) Path() string { return "/izipay/payment-link/" }

func (HostedLinkStrategy) Body(req domain.OrderRequest) any {
	items := make([]lineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, lineItem{ID: it.ID, Name: it.Name, Quantity: it.Quantity, UnitPrice: it.UnitPriceMinor, SKU: it.SKU})
	}
	return paymentLinkRequest{
		Amount:        req.AmountMinor,
		OrderNumber:   req.OrderNumber,
		CustomerEmail: req.Billing.Email,
		CustomerName:  req.Billing.FullName(),
		Billing:       toBilling(req.Billing),
		Shipping:      toBilling(req.Shipping),
		Currency:      req.Currency,
		Items:         items,
		DeliveryMode:  string(req.DeliveryMode),
		PickupStore:   req.PickupStore,
		ShippingCost:  req.ShippingMinor,
	}
}

func (HostedLinkStrategy) Link(_ domain.OrderRequest, body []byte) (Link, error) {
	var resp paymentLinkResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Link{}, &PaymentError{Kind: KindTransport, Detail: errUnreadableBackendMsg, Err: err}
	}
	if !resp.Success {
		return Link{}, &PaymentError{Kind: KindRejected, Detail: resp.Error}
	}
	if resp.PaymentLink == "" {
		return Link{}, &PaymentError{Kind: KindRejected, Detail: errMissingPaymentLink}
	}
	return Link{URL: resp.PaymentLink, ID: resp.PaymentLinkID, TransactionID: resp.TransactionID}, nil
}

type tokenRequest struct {
	Amount      int64  `json:"amount"`
	OrderNumber string `json:"orderNumber"`
}

type tokenResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	Token         string `json:"token"`
	TransactionID string `json:"transactionId"`
	OrderNumber   string `json:"orderNumber"`
}

// EmbeddedWidgetStrategy obtains a session token for the in-page widget. The
// returned link points at the local widget page; the payment outcome arrives
// later as a confirmation.
type EmbeddedWidgetStrategy struct {
	WidgetURL string
}

func (EmbeddedWidgetStrategy) Name() string { return "widget" }

func (EmbeddedWidgetStrategy) Path() string { return "/izipay/generate-token/" }

func (EmbeddedWidgetStrategy) Body(req domain.OrderRequest) any {
	return tokenRequest{Amount: req.AmountMinor, OrderNumber: req.OrderNumber}
}

func (s EmbeddedWidgetStrategy) Link(req domain.OrderRequest, body []byte) (Link, error) {
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Link{}, &PaymentError{Kind: KindTransport, Detail: errUnreadableBackendMsg, Err: err}
	}
	if !resp.Success {
		return Link{}, &PaymentError{Kind: KindRejected, Detail: resp.Error}
	}
	if resp.Token == "" {
		return Link{}, &PaymentError{Kind: KindRejected, Detail: errMissingPaymentToken}
	}

	orderNumber := resp.OrderNumber
	if orderNumber == "" {
		orderNumber = req.OrderNumber
	}
	q := url.Values{}
	q.Set("token", resp.Token)
	q.Set("orderNumber", orderNumber)
	q.Set("transactionId", resp.TransactionID)
	return Link{
		URL:           fmt.Sprintf("%s?%s", s.WidgetURL, q.Encode()),
		TransactionID: resp.TransactionID,
		Token:         resp.Token,
	}, nil
}
