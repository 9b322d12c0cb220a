// Package order merges the cart and the submitted form into the request sent
// to the payment backend.
package order

import (
	"fmt"
	"time"

	"github.com/fjod/go_checkout/internal/delivery"
	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/form"
)

type RegionResolver interface {
	Resolve(code string) string
}

// alwaysRequired fields fail strict assembly in every delivery mode.
var alwaysRequired = []string{form.FieldEmail}

const defaultCountry = "PE"

var contactFields = []string{
	form.FieldFirstName,
	form.FieldLastName,
	form.FieldEmail,
	form.FieldPhone,
	form.FieldAddress1,
	form.FieldAddress2,
	form.FieldCity,
	form.FieldProvince,
	form.FieldZip,
	form.FieldDocumentType,
	form.FieldDocument,
}

type Assembler struct {
	regions      RegionResolver
	placeholders Placeholders
	numbers      *NumberGenerator
}

type Option func(*Assembler)

// WithClock fixes the timestamp part of generated order numbers.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) {
		a.numbers.now = now
	}
}

func NewAssembler(regions RegionResolver, placeholders Placeholders, opts ...Option) *Assembler {
	if placeholders == nil {
		placeholders = DefaultPlaceholders()
	}
	a := &Assembler{
		regions:      regions,
		placeholders: placeholders,
		numbers:      NewNumberGenerator(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble builds a fresh OrderRequest. Each value comes from the form, then
// the cart customer, then the placeholder set.
func (a *Assembler) Assemble(cart domain.CartSnapshot, snapshot domain.FormSnapshot, sel delivery.Selection) (domain.OrderRequest, error) {
	if cart.IsEmpty() {
		return domain.OrderRequest{}, ErrEmptyCart
	}

	customer := cart.CustomerOrEmpty()
	email := cart.Email
	if email == "" {
		email = customer.Email
	}
	fallback := map[string]string{
		form.FieldFirstName: customer.FirstName,
		form.FieldLastName:  customer.LastName,
		form.FieldEmail:     email,
		form.FieldPhone:     customer.Phone,
		form.FieldAddress1:  customer.Address.Line1,
		form.FieldAddress2:  customer.Address.Line2,
		form.FieldCity:      customer.Address.City,
		form.FieldProvince:  customer.Address.Region,
		form.FieldZip:       customer.Address.PostalCode,
	}

	values := make(map[string]string, len(contactFields))
	for _, name := range contactFields {
		values[name] = a.pick(name, snapshot, fallback)
	}

	for _, required := range [][]string{alwaysRequired, sel.Required} {
		for _, name := range required {
			if values[name] == "" {
				return domain.OrderRequest{}, &MissingFieldError{Field: name}
			}
		}
	}

	country := customer.Address.Country
	if country == "" {
		country = defaultCountry
	}
	billing := domain.Contact{
		FirstName:    values[form.FieldFirstName],
		LastName:     values[form.FieldLastName],
		Email:        values[form.FieldEmail],
		Phone:        values[form.FieldPhone],
		DocumentType: values[form.FieldDocumentType],
		Document:     values[form.FieldDocument],
		Address: domain.AddressRecord{
			Line1:      values[form.FieldAddress1],
			Line2:      values[form.FieldAddress2],
			City:       values[form.FieldCity],
			Region:     a.regions.Resolve(values[form.FieldProvince]),
			PostalCode: values[form.FieldZip],
			Country:    country,
		},
	}

	number, err := a.numbers.Next()
	if err != nil {
		return domain.OrderRequest{}, fmt.Errorf("generate order number: %w", err)
	}

	currency := cart.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	items := make([]domain.OrderItem, len(cart.Items))
	copy(items, cart.Items)

	req := domain.OrderRequest{
		AmountMinor:   cart.Total() + sel.ShippingMinor,
		OrderNumber:   number,
		Currency:      currency,
		Billing:       billing,
		Shipping:      billing,
		Items:         items,
		DeliveryMode:  sel.Mode,
		ShippingMinor: sel.ShippingMinor,
	}
	if sel.Mode == domain.DeliveryPickup {
		req.PickupStore = sel.StoreID
	}
	return req, nil
}

func (a *Assembler) pick(name string, snapshot domain.FormSnapshot, fallback map[string]string) string {
	if v := snapshot.Get(name); v != "" {
		return v
	}
	if v := fallback[name]; v != "" {
		return v
	}
	return a.placeholders[name]
}
