package cartpayload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fjod/go_checkout/internal/domain"
)

const DefaultParam = "data"

// maxMinor bounds any amount read from a payload.
var maxMinor = decimal.New(1, 15)

type payload struct {
	Items      json.RawMessage  `json:"items"`
	Email      string           `json:"email"`
	Customer   *payloadCustomer `json:"customer"`
	TotalPrice *json.Number     `json:"total_price"`
	Currency   string           `json:"currency"`
}

type payloadItem struct {
	ID        any          `json:"id"`
	VariantID any          `json:"variant_id"`
	Name      string       `json:"name"`
	Title     string       `json:"title"`
	Quantity  json.Number  `json:"quantity"`
	Price     *json.Number `json:"price"`
	LinePrice *json.Number `json:"line_price"`
	SKU       string       `json:"sku"`
	Image     string       `json:"image"`
}

type payloadAddress struct {
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Province     string `json:"province"`
	ProvinceCode string `json:"province_code"`
	Zip          string `json:"zip"`
	Country      string `json:"country"`
	CountryCode  string `json:"country_code"`
}

type payloadCustomer struct {
	FirstName      string          `json:"first_name"`
	LastName       string          `json:"last_name"`
	Email          string          `json:"email"`
	Phone          string          `json:"phone"`
	Address        *payloadAddress `json:"address"`
	DefaultAddress *payloadAddress `json:"default_address"`
}

type Option func(*Reader)

// WithParam changes the query parameter carrying the payload.
func WithParam(name string) Option {
	return func(r *Reader) { r.param = name }
}

func WithCurrency(currency string) Option {
	return func(r *Reader) { r.currency = currency }
}

// OnDecodeError registers a hook called whenever a payload is replaced by an
// empty cart.
func OnDecodeError(fn func(error)) Option {
	return func(r *Reader) { r.onDecodeError = fn }
}

type Reader struct {
	param         string
	currency      string
	onDecodeError func(error)
}

func NewReader(opts ...Option) *Reader {
	r := &Reader{param: DefaultParam, currency: domain.DefaultCurrency}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Param() string {
	return r.param
}

// Parse reads the payload out of a raw query string. It never fails: any
// problem yields an empty cart and is reported to the decode hook.
func (r *Reader) Parse(rawQuery string) domain.CartSnapshot {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return r.fail(&PayloadDecodeError{Reason: "invalid query string", Err: err})
	}
	raw := values.Get(r.param)
	if raw == "" {
		return r.fail(&PayloadDecodeError{Reason: "missing", Err: ErrMissingPayload})
	}
	return r.ParseRaw(raw)
}

// ParseRaw is Parse for a payload value already taken out of the query.
func (r *Reader) ParseRaw(raw string) domain.CartSnapshot {
	snapshot, err := r.Decode(raw)
	if err != nil {
		return r.fail(err)
	}
	return snapshot
}

// Decode is the strict form of ParseRaw.
func (r *Reader) Decode(raw string) (domain.CartSnapshot, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.CartSnapshot{}, &PayloadDecodeError{Reason: "missing", Err: ErrMissingPayload}
	}
	// Storefronts sometimes percent-encode twice.
	if !strings.HasPrefix(raw, "{") {
		if unescaped, err := url.QueryUnescape(raw); err == nil {
			raw = strings.TrimSpace(unescaped)
		}
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var p payload
	if err := dec.Decode(&p); err != nil {
		return domain.CartSnapshot{}, &PayloadDecodeError{Reason: "malformed json", Err: err}
	}

	items, err := decodeItems(p.Items)
	if err != nil {
		return domain.CartSnapshot{}, err
	}

	snapshot := domain.CartSnapshot{
		Items:    items,
		Email:    strings.TrimSpace(p.Email),
		Customer: mapCustomer(p.Customer),
		Currency: strings.ToUpper(strings.TrimSpace(p.Currency)),
	}
	if snapshot.Currency == "" {
		snapshot.Currency = r.currency
	}
	if p.TotalPrice != nil {
		total, ok := toMinor(*p.TotalPrice)
		if !ok {
			return domain.CartSnapshot{}, &PayloadDecodeError{Reason: "total_price", Err: ErrPriceRange}
		}
		if total < 0 {
			return domain.CartSnapshot{}, &PayloadDecodeError{Reason: "total_price", Err: ErrNegativeTotal}
		}
		snapshot.TotalPrice = &total
	}
	return snapshot, nil
}

func (r *Reader) fail(err error) domain.CartSnapshot {
	if r.onDecodeError != nil {
		r.onDecodeError(err)
	}
	return domain.CartSnapshot{Items: []domain.OrderItem{}, Currency: r.currency}
}

func decodeItems(raw json.RawMessage) ([]domain.OrderItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &PayloadDecodeError{Reason: "items", Err: ErrItemsNotArray}
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(trimmed, &rawItems); err != nil {
		return nil, &PayloadDecodeError{Reason: "items", Err: err}
	}

	items := make([]domain.OrderItem, 0, len(rawItems))
	for _, ri := range rawItems {
		dec := json.NewDecoder(bytes.NewReader(ri))
		dec.UseNumber()
		var pi payloadItem
		if err := dec.Decode(&pi); err != nil {
			continue
		}
		item, err := mapItem(pi)
		if err != nil {
			return nil, &PayloadDecodeError{Reason: "items", Err: err}
		}
		items = append(items, item)
	}
	return items, nil
}

func mapItem(pi payloadItem) (domain.OrderItem, error) {
	quantity := 1
	if q, err := strconv.Atoi(pi.Quantity.String()); err == nil && q > 0 {
		quantity = q
	}

	// unit price comes from "price"; a lone "line_price" is treated as the unit price
	var unit int64
	price := pi.Price
	if price == nil {
		price = pi.LinePrice
	}
	if price != nil {
		v, ok := toMinor(*price)
		if !ok {
			return domain.OrderItem{}, fmt.Errorf("%w: %s", ErrPriceRange, price.String())
		}
		unit = v
	}
	if unit < 0 {
		unit = 0
	}

	name := pi.Name
	if name == "" {
		name = pi.Title
	}
	id := idString(pi.ID)
	if id == "" {
		id = idString(pi.VariantID)
	}

	return domain.OrderItem{
		ID:             id,
		Name:           name,
		Quantity:       quantity,
		UnitPriceMinor: unit,
		SKU:            pi.SKU,
		ImageURL:       pi.Image,
	}, nil
}

func mapCustomer(pc *payloadCustomer) *domain.CustomerRecord {
	if pc == nil {
		return nil
	}
	c := &domain.CustomerRecord{
		FirstName: pc.FirstName,
		LastName:  pc.LastName,
		Email:     pc.Email,
		Phone:     pc.Phone,
	}
	addr := pc.Address
	if addr == nil {
		addr = pc.DefaultAddress
	}
	if addr != nil {
		region := addr.Province
		if region == "" {
			region = addr.ProvinceCode
		}
		country := addr.CountryCode
		if country == "" {
			country = addr.Country
		}
		c.Address = domain.AddressRecord{
			Line1:      addr.Address1,
			Line2:      addr.Address2,
			City:       addr.City,
			Region:     region,
			PostalCode: addr.Zip,
			Country:    country,
		}
	}
	return c
}

// toMinor accepts integer minor units; a decimal value is taken as major units.
// Values beyond maxMinor are rejected.
func toMinor(n json.Number) (int64, bool) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, false
	}
	if _, err := n.Int64(); err != nil {
		d = d.Shift(2).Round(0)
	}
	if d.Abs().GreaterThan(maxMinor) {
		return 0, false
	}
	return d.IntPart(), true
}

func idString(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}

// StripParam returns u's path and query without the payload parameter.
func StripParam(u *url.URL, param string) string {
	if u == nil {
		return ""
	}
	q := u.Query()
	q.Del(param)
	out := url.URL{Path: u.Path, RawQuery: q.Encode()}
	return out.String()
}
