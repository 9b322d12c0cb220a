package form

import (
	"net/url"
	"strings"

	"github.com/fjod/go_checkout/internal/domain"
)

type Binder struct {
	fields []Descriptor
}

func NewBinder(fields []Descriptor) *Binder {
	return &Binder{fields: fields}
}

// Prefill copies the customer record into the form. Only fields that exist
// and are still empty are written.
func (b *Binder) Prefill(f *Form, email string, c domain.CustomerRecord) {
	if email == "" {
		email = c.Email
	}
	values := map[string]string{
		FieldEmail:     email,
		FieldFirstName: c.FirstName,
		FieldLastName:  c.LastName,
		FieldPhone:     c.Phone,
		FieldAddress1:  c.Address.Line1,
		FieldAddress2:  c.Address.Line2,
		FieldCity:      c.Address.City,
		FieldProvince:  c.Address.Region,
		FieldZip:       c.Address.PostalCode,
	}
	for name, v := range values {
		if v == "" {
			continue
		}
		field, ok := f.Field(name)
		if !ok || strings.TrimSpace(field.Value) != "" {
			continue
		}
		field.Value = v
	}
}

// Extract reads every described field from the submitted values.
func (b *Binder) Extract(values url.Values) domain.FormSnapshot {
	snapshot := make(domain.FormSnapshot, len(b.fields))
	for _, d := range b.fields {
		snapshot[d.Name] = strings.TrimSpace(values.Get(d.Name))
	}
	return snapshot
}

// Restore writes a snapshot back into the form so a failed submission
// re-renders with what the shopper typed.
func (b *Binder) Restore(f *Form, snapshot domain.FormSnapshot) {
	for name, v := range snapshot {
		f.Set(name, v)
	}
}

// WithBusy runs fn with the submit control busy and restores it on every exit
// path, panics included.
func (b *Binder) WithBusy(f *Form, fn func() error) error {
	f.SetBusy(true)
	defer f.SetBusy(false)
	return fn()
}
