package form

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fjod/go_checkout/internal/domain"
)

func newTestForm(t *testing.T) *Form {
	t.Helper()
	f, warn, err := NewForm(Fields)
	require.NoError(t, err)
	require.Nil(t, warn)
	return f
}

func TestNewForm_Validation(t *testing.T) {
	_, _, err := NewForm([]Descriptor{{Name: "a"}, {Name: " "}})
	assert.ErrorIs(t, err, ErrEmptyFieldName)

	_, _, err = NewForm([]Descriptor{{Name: "a"}, {Name: "a"}})
	assert.ErrorIs(t, err, ErrDuplicateFieldName)
}

func TestNewForm_MissingEssentialFieldsWarnOnce(t *testing.T) {
	f, warn, err := NewForm([]Descriptor{{Name: FieldFirstName}})
	require.NoError(t, err)
	require.NotNil(t, warn)

	assert.Equal(t, []string{FieldEmail, FieldCartData}, warn.Missing)
	assert.Contains(t, warn.Error(), "email")
	assert.False(t, f.Submittable)
}

func TestPrefill_FillOnly(t *testing.T) {
	f := newTestForm(t)
	f.Set(FieldFirstName, "Typed")
	f.Set(FieldCity, "  ")

	customer := domain.CustomerRecord{
		FirstName: "Ana",
		LastName:  "Torres",
		Email:     "customer@example.pe",
		Address:   domain.AddressRecord{City: "Cusco", Region: "08"},
	}
	NewBinder(Fields).Prefill(f, "cart@example.pe", customer)

	assert.Equal(t, "Typed", f.Value(FieldFirstName))
	assert.Equal(t, "Torres", f.Value(FieldLastName))
	assert.Equal(t, "cart@example.pe", f.Value(FieldEmail))
	assert.Equal(t, "Cusco", f.Value(FieldCity))
	assert.Equal(t, "08", f.Value(FieldProvince))
	assert.Equal(t, "", f.Value(FieldPhone))
}

func TestPrefill_NeverOverwritesAnyPopulatedField(t *testing.T) {
	customer := domain.CustomerRecord{
		FirstName: "Ana", LastName: "Torres", Email: "a@b.pe", Phone: "999",
		Address: domain.AddressRecord{Line1: "Av. Sol", Line2: "B", City: "Cusco", Region: "08", PostalCode: "08000"},
	}
	for _, d := range Fields {
		t.Run(d.Name, func(t *testing.T) {
			f := newTestForm(t)
			f.Set(d.Name, "kept")

			NewBinder(Fields).Prefill(f, "", customer)

			assert.Equal(t, "kept", f.Value(d.Name))
		})
	}
}

func TestPrefill_SkipsMissingFields(t *testing.T) {
	f, _, err := NewForm([]Descriptor{{Name: FieldEmail}, {Name: FieldCartData}})
	require.NoError(t, err)

	NewBinder(Fields).Prefill(f, "", domain.CustomerRecord{FirstName: "Ana", Email: "a@b.pe"})

	assert.Equal(t, "a@b.pe", f.Value(FieldEmail))
	_, ok := f.Field(FieldFirstName)
	assert.False(t, ok)
}

func TestExtract(t *testing.T) {
	values := url.Values{
		FieldFirstName:      {"  Ana "},
		FieldDeliveryMethod: {"pickup"},
		"unknown":           {"x"},
	}

	snapshot := NewBinder(Fields).Extract(values)

	assert.Equal(t, "Ana", snapshot.Get(FieldFirstName))
	assert.Equal(t, "pickup", snapshot.Get(FieldDeliveryMethod))
	_, ok := snapshot[FieldZip]
	assert.True(t, ok)
	assert.False(t, snapshot.Has("unknown"))
	assert.Len(t, snapshot, len(Fields))
}

func TestSetBusy_Idempotent(t *testing.T) {
	f := newTestForm(t)

	f.SetBusy(true)
	f.SetBusy(true)
	assert.True(t, f.Busy())
	assert.Equal(t, BusySubmitLabel, f.Submit.Label)

	f.SetBusy(false)
	f.SetBusy(false)
	assert.False(t, f.Busy())
	assert.Equal(t, DefaultSubmitLabel, f.Submit.Label)
}

func TestWithBusy_RestoresOnEveryPath(t *testing.T) {
	b := NewBinder(Fields)
	f := newTestForm(t)
	boom := errors.New("boom")

	err := b.WithBusy(f, func() error {
		assert.True(t, f.Busy())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, f.Busy())

	assert.Panics(t, func() {
		_ = b.WithBusy(f, func() error { panic("unexpected") })
	})
	assert.False(t, f.Busy())
	assert.Equal(t, DefaultSubmitLabel, f.Submit.Label)
}

func TestSetRequired(t *testing.T) {
	f := newTestForm(t)
	f.SetRequired(ShippingFields(Fields))

	first, _ := f.Field(FieldFirstName)
	phone, _ := f.Field(FieldPhone)
	assert.True(t, first.Required)
	assert.False(t, phone.Required)

	f.SetRequired(nil)
	assert.False(t, first.Required)
}

func TestShippingFields(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{FieldFirstName, FieldLastName, FieldAddress1, FieldCity, FieldProvince, FieldZip},
		ShippingFields(Fields))
}
