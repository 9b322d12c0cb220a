package order

import (
	"errors"
	"fmt"
)

var ErrEmptyCart = errors.New("cart is empty")

// MissingFieldError is returned when a required value has no form value, no
// customer value and no placeholder.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}
