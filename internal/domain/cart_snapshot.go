package domain

// OrderItem is one cart line. Prices are in currency minor units.
type OrderItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Quantity       int    `json:"quantity"`
	UnitPriceMinor int64  `json:"unit_price"`
	SKU            string `json:"sku,omitempty"`
	ImageURL       string `json:"image,omitempty"`
}

func (i OrderItem) LineTotal() int64 {
	return i.UnitPriceMinor * int64(i.Quantity)
}

type AddressRecord struct {
	Line1      string `json:"address1"`
	Line2      string `json:"address2"`
	City       string `json:"city"`
	Region     string `json:"province"`
	PostalCode string `json:"zip"`
	Country    string `json:"country"`
}

type CustomerRecord struct {
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Address   AddressRecord `json:"address"`
}

// CartSnapshot represents the cart handed over by the storefront at checkout time
type CartSnapshot struct {
	Items    []OrderItem
	Email    string
	Customer *CustomerRecord
	// TotalPrice is authoritative when set.
	TotalPrice *int64
	Currency   string
}

// Subtotal sums line totals in minor units.
func (c CartSnapshot) Subtotal() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.LineTotal()
	}
	return total
}

// Total prefers the storefront-computed total over the line sum.
func (c CartSnapshot) Total() int64 {
	if c.TotalPrice != nil {
		return *c.TotalPrice
	}
	return c.Subtotal()
}

func (c CartSnapshot) IsEmpty() bool {
	return len(c.Items) == 0
}

// CustomerOrEmpty never returns nil so callers can read fields directly.
func (c CartSnapshot) CustomerOrEmpty() CustomerRecord {
	if c.Customer == nil {
		return CustomerRecord{}
	}
	return *c.Customer
}

// Clear drops the items; the rest of the snapshot is kept for display.
func (c *CartSnapshot) Clear() {
	c.Items = []OrderItem{}
	c.TotalPrice = nil
}
