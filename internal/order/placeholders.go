package order

import "github.com/fjod/go_checkout/internal/form"

// Placeholders are the last-resort values used when neither the form nor the
// cart customer supplies a field. Keys are form field names.
type Placeholders map[string]string

// DefaultPlaceholders keep the payment provider's validation from failing on
// fields the shopper never filled.
func DefaultPlaceholders() Placeholders {
	return Placeholders{
		form.FieldFirstName:    "Test",
		form.FieldLastName:     "User",
		form.FieldEmail:        "test@example.com",
		form.FieldPhone:        "987654321",
		form.FieldAddress1:     "Av. Test 123",
		form.FieldCity:         "Lima",
		form.FieldProvince:     "Lima",
		form.FieldZip:          "15001",
		form.FieldDocumentType: "DNI",
		form.FieldDocument:     "12345678",
	}
}

// StrictPlaceholders fills nothing, so missing required values fail assembly.
func StrictPlaceholders() Placeholders {
	return Placeholders{}
}

// ParsePolicy maps a configuration value to a placeholder set.
func ParsePolicy(name string) (Placeholders, bool) {
	switch name {
	case "", "default":
		return DefaultPlaceholders(), true
	case "strict":
		return StrictPlaceholders(), true
	default:
		return nil, false
	}
}
