package form

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFieldName     = errors.New("field name is empty")
	ErrDuplicateFieldName = errors.New("duplicate field name")
)

// ConfigurationWarning lists the essential fields missing from a form table.
// It is reported once at construction; the form stays usable but cannot submit.
type ConfigurationWarning struct {
	Missing []string
}

func (w *ConfigurationWarning) Error() string {
	return fmt.Sprintf("form is missing required fields: %s", strings.Join(w.Missing, ", "))
}
