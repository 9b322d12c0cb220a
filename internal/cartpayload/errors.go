package cartpayload

import (
	"errors"
	"fmt"
)

var (
	ErrMissingPayload = errors.New("cart payload parameter is missing")
	ErrItemsNotArray  = errors.New("cart payload items is not an array")
	ErrPriceRange     = errors.New("price is not a representable amount")
	ErrNegativeTotal  = errors.New("total_price is negative")
)

// PayloadDecodeError describes why a payload was replaced by an empty cart.
// It is reported to the decode hook and never shown to the shopper.
type PayloadDecodeError struct {
	Reason string
	Err    error
}

func (e *PayloadDecodeError) Error() string {
	if e.Err == nil {
		return "cart payload: " + e.Reason
	}
	return fmt.Sprintf("cart payload: %s: %v", e.Reason, e.Err)
}

func (e *PayloadDecodeError) Unwrap() error {
	return e.Err
}
