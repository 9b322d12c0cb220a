// Package delivery tracks the shipping/pickup choice of a checkout and the
// required fields and surcharge that follow from it.
package delivery

import (
	"errors"
	"fmt"

	"github.com/fjod/go_checkout/internal/domain"
	"github.com/fjod/go_checkout/internal/form"
)

const DefaultShippingFeeMinor int64 = 600

var ErrUnknownStore = errors.New("unknown pickup store")

type Store struct {
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
}

type Config struct {
	ShippingFeeMinor int64
	Stores           []Store
	// ShippingRequired are the fields required only while shipping.
	ShippingRequired []string
}

func DefaultConfig() Config {
	return Config{
		ShippingFeeMinor: DefaultShippingFeeMinor,
		Stores: []Store{
			{ID: "miraflores", Name: "Tienda Miraflores", Address: "Av. Larco 345, Miraflores"},
			{ID: "san-isidro", Name: "Tienda San Isidro", Address: "Av. Camino Real 1050, San Isidro"},
		},
		ShippingRequired: []string{
			form.FieldFirstName,
			form.FieldLastName,
			form.FieldAddress1,
			form.FieldCity,
			form.FieldZip,
			form.FieldProvince,
		},
	}
}

// Change is sent to subscribers after every mode switch.
type Change struct {
	Mode          domain.DeliveryMode
	Required      []string
	ShippingMinor int64
	Label         string
}

// Selection is the delivery state an order is assembled from.
type Selection struct {
	Mode          domain.DeliveryMode
	StoreID       string
	ShippingMinor int64
	Required      []string
}

type Totals struct {
	Subtotal int64
	Shipping int64
	Total    int64
}

// Controller holds one checkout's delivery state. It is not safe for
// concurrent use; each request builds its own.
type Controller struct {
	cfg         Config
	mode        domain.DeliveryMode
	store       string
	subscribers []func(Change)
}

// NewController starts in the mode named by the checked radio value, Shipping
// when it is empty or unknown. The first configured store is preselected.
func NewController(checked string, cfg Config) *Controller {
	mode, _ := domain.ParseDeliveryMode(checked)
	c := &Controller{cfg: cfg, mode: mode}
	if len(cfg.Stores) > 0 {
		c.store = cfg.Stores[0].ID
	}
	return c
}

func (c *Controller) Mode() domain.DeliveryMode {
	return c.mode
}

// OnChange registers fn to be called after each mode switch.
func (c *Controller) OnChange(fn func(Change)) {
	c.subscribers = append(c.subscribers, fn)
}

// Select switches mode and notifies subscribers. Selecting the current mode
// does nothing and reports false.
func (c *Controller) Select(mode domain.DeliveryMode) bool {
	if mode != domain.DeliveryPickup {
		mode = domain.DeliveryShipping
	}
	if mode == c.mode {
		return false
	}
	c.mode = mode

	change := Change{
		Mode:          c.mode,
		Required:      c.Required(),
		ShippingMinor: c.ShippingFee(),
		Label:         c.MethodLabel(),
	}
	for _, fn := range c.subscribers {
		fn(change)
	}
	return true
}

// Required returns the shipping-only fields that must be filled in the
// current mode. Empty in Pickup.
func (c *Controller) Required() []string {
	if c.mode == domain.DeliveryPickup {
		return []string{}
	}
	out := make([]string, len(c.cfg.ShippingRequired))
	copy(out, c.cfg.ShippingRequired)
	return out
}

func (c *Controller) ShowShipping() bool {
	return c.mode == domain.DeliveryShipping
}

func (c *Controller) ShowPickup() bool {
	return c.mode == domain.DeliveryPickup
}

func (c *Controller) ShippingFee() int64 {
	if c.mode == domain.DeliveryPickup {
		return 0
	}
	return c.cfg.ShippingFeeMinor
}

func (c *Controller) MethodLabel() string {
	if c.mode == domain.DeliveryPickup {
		return "Retiro en tienda"
	}
	return "Envío"
}

// CostLabel is the surcharge as shown next to the method label.
func (c *Controller) CostLabel(currency string) string {
	fee := c.ShippingFee()
	if fee == 0 {
		return "GRATIS"
	}
	return domain.FormatDisplay(fee, currency)
}

func (c *Controller) Stores() []Store {
	return c.cfg.Stores
}

// SelectStore picks the pickup location. It may be called in either mode;
// the choice only matters in Pickup.
func (c *Controller) SelectStore(id string) error {
	for _, s := range c.cfg.Stores {
		if s.ID == id {
			c.store = id
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownStore, id)
}

// Store returns the selected pickup location. ok is false outside Pickup.
func (c *Controller) Store() (Store, bool) {
	if c.mode != domain.DeliveryPickup {
		return Store{}, false
	}
	for _, s := range c.cfg.Stores {
		if s.ID == c.store {
			return s, true
		}
	}
	return Store{}, false
}

func (c *Controller) Selection() Selection {
	sel := Selection{
		Mode:          c.mode,
		ShippingMinor: c.ShippingFee(),
		Required:      c.Required(),
	}
	if store, ok := c.Store(); ok {
		sel.StoreID = store.ID
	}
	return sel
}

func (c *Controller) Totals(subtotal int64) Totals {
	shipping := c.ShippingFee()
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Total:    subtotal + shipping,
	}
}

// Apply mirrors the delivery state into the form: the radio groups and the
// required flags.
func (c *Controller) Apply(f *form.Form) {
	f.Set(form.FieldDeliveryMethod, string(c.mode))
	f.SetOptions(form.FieldDeliveryMethod, []form.Option{
		{Value: string(domain.DeliveryShipping), Label: "Envío a domicilio", Selected: c.mode == domain.DeliveryShipping},
		{Value: string(domain.DeliveryPickup), Label: "Retiro en tienda", Selected: c.mode == domain.DeliveryPickup},
	})

	f.Set(form.FieldPickupStore, c.store)
	opts := make([]form.Option, 0, len(c.cfg.Stores))
	for _, s := range c.cfg.Stores {
		opts = append(opts, form.Option{Value: s.ID, Label: s.Name, Selected: s.ID == c.store})
	}
	f.SetOptions(form.FieldPickupStore, opts)

	f.SetRequired(c.Required())
}
