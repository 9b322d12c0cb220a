// Package form holds the checkout form view model and the binder that moves
// values between it, the customer record and submitted requests.
package form

import (
	"fmt"
	"strings"
)

const (
	DefaultSubmitLabel = "Completar pedido"
	BusySubmitLabel    = "Procesando..."
)

type Option struct {
	Value    string
	Label    string
	Selected bool
}

// Field is a rendered field: its descriptor plus current state.
type Field struct {
	Descriptor
	Value    string
	Required bool
	Options  []Option
}

type Submit struct {
	Label    string
	Disabled bool
	original string
}

// Form is the checkout form view model.
type Form struct {
	fields  []*Field
	byName  map[string]*Field
	Submit  Submit
	Message string
	// Submittable is false when essential fields are missing.
	Submittable bool
}

// NewForm validates the descriptor table. Invalid tables are an error; missing
// essential fields yield a usable, non-submittable form and a warning.
func NewForm(fields []Descriptor) (*Form, *ConfigurationWarning, error) {
	f := &Form{
		fields: make([]*Field, 0, len(fields)),
		byName: make(map[string]*Field, len(fields)),
		Submit: Submit{Label: DefaultSubmitLabel, original: DefaultSubmitLabel},
	}
	for _, d := range fields {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, nil, ErrEmptyFieldName
		}
		if _, ok := f.byName[name]; ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateFieldName, name)
		}
		d.Name = name
		field := &Field{Descriptor: d}
		f.fields = append(f.fields, field)
		f.byName[name] = field
	}

	var missing []string
	for _, name := range essential {
		if _, ok := f.byName[name]; !ok {
			missing = append(missing, name)
		}
	}
	f.Submittable = len(missing) == 0
	if len(missing) > 0 {
		return f, &ConfigurationWarning{Missing: missing}, nil
	}
	return f, nil, nil
}

func (f *Form) Fields() []*Field {
	return f.fields
}

func (f *Form) Field(name string) (*Field, bool) {
	field, ok := f.byName[name]
	return field, ok
}

// Value returns the field value, or "" for unknown fields.
func (f *Form) Value(name string) string {
	if field, ok := f.byName[name]; ok {
		return field.Value
	}
	return ""
}

// Set writes a value into an existing field. Unknown fields are ignored.
func (f *Form) Set(name, value string) bool {
	field, ok := f.byName[name]
	if !ok {
		return false
	}
	field.Value = value
	return true
}

func (f *Form) SetOptions(name string, opts []Option) {
	if field, ok := f.byName[name]; ok {
		field.Options = opts
	}
}

// SetRequired marks exactly the named fields as required.
func (f *Form) SetRequired(names []string) {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	for _, field := range f.fields {
		field.Required = want[field.Name]
	}
}

// SetBusy toggles the submit control. Calling it twice with the same value is
// a no-op.
func (f *Form) SetBusy(busy bool) {
	if busy {
		f.Submit.Disabled = true
		f.Submit.Label = BusySubmitLabel
		return
	}
	f.Submit.Disabled = false
	f.Submit.Label = f.Submit.original
}

func (f *Form) Busy() bool {
	return f.Submit.Disabled
}
