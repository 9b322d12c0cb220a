package form

// Kind is the input control type a field is rendered with.
type Kind string

const (
	KindText   Kind = "text"
	KindEmail  Kind = "email"
	KindTel    Kind = "tel"
	KindSelect Kind = "select"
	KindRadio  Kind = "radio"
	KindHidden Kind = "hidden"
)

// Field names shared by the binder, the delivery controller and the assembler.
const (
	FieldFirstName      = "first_name"
	FieldLastName       = "last_name"
	FieldEmail          = "email"
	FieldPhone          = "phone"
	FieldAddress1       = "address1"
	FieldAddress2       = "address2"
	FieldCity           = "city"
	FieldProvince       = "province"
	FieldZip            = "zip"
	FieldDeliveryMethod = "delivery_method"
	FieldPickupStore    = "pickup_store"
	FieldDocumentType   = "document_type"
	FieldDocument       = "document"
	FieldCartData       = "cart_data"
)

// Descriptor describes one form field.
type Descriptor struct {
	Name  string
	Kind  Kind
	Label string
	// ShippingOnly fields are required in shipping mode and hidden in pickup mode.
	ShippingOnly bool
}

// Fields is the checkout form.
var Fields = []Descriptor{
	{Name: FieldEmail, Kind: KindEmail, Label: "Correo electrónico"},
	{Name: FieldFirstName, Kind: KindText, Label: "Nombre", ShippingOnly: true},
	{Name: FieldLastName, Kind: KindText, Label: "Apellidos", ShippingOnly: true},
	{Name: FieldPhone, Kind: KindTel, Label: "Teléfono"},
	{Name: FieldAddress1, Kind: KindText, Label: "Dirección", ShippingOnly: true},
	{Name: FieldAddress2, Kind: KindText, Label: "Departamento, piso, etc. (opcional)"},
	{Name: FieldCity, Kind: KindText, Label: "Ciudad", ShippingOnly: true},
	{Name: FieldProvince, Kind: KindSelect, Label: "Región", ShippingOnly: true},
	{Name: FieldZip, Kind: KindText, Label: "Código postal", ShippingOnly: true},
	{Name: FieldDeliveryMethod, Kind: KindRadio, Label: "Método de entrega"},
	{Name: FieldPickupStore, Kind: KindRadio, Label: "Tienda"},
	{Name: FieldDocumentType, Kind: KindSelect, Label: "Tipo de documento"},
	{Name: FieldDocument, Kind: KindText, Label: "Número de documento"},
	{Name: FieldCartData, Kind: KindHidden},
}

// essential fields without which a submission cannot be built.
var essential = []string{FieldEmail, FieldCartData}

// ShippingFields returns the names of the shipping-only descriptors.
func ShippingFields(fields []Descriptor) []string {
	var names []string
	for _, d := range fields {
		if d.ShippingOnly {
			names = append(names, d.Name)
		}
	}
	return names
}
