package domain

type DeliveryMode string

const (
	DeliveryShipping DeliveryMode = "shipping"
	DeliveryPickup   DeliveryMode = "pickup"
)

func ParseDeliveryMode(s string) (DeliveryMode, bool) {
	switch DeliveryMode(s) {
	case DeliveryShipping:
		return DeliveryShipping, true
	case DeliveryPickup:
		return DeliveryPickup, true
	default:
		return DeliveryShipping, false
	}
}

type Contact struct {
	FirstName    string        `json:"firstName"`
	LastName     string        `json:"lastName"`
	Email        string        `json:"email"`
	Phone        string        `json:"phoneNumber"`
	DocumentType string        `json:"documentType"`
	Document     string        `json:"document"`
	Address      AddressRecord `json:"address"`
}

func (c Contact) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// OrderRequest is built fresh for every submission attempt.
type OrderRequest struct {
	AmountMinor   int64
	OrderNumber   string
	Currency      string
	Billing       Contact
	Shipping      Contact
	Items         []OrderItem
	DeliveryMode  DeliveryMode
	PickupStore   string
	ShippingMinor int64
}
