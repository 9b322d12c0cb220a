package checkout

import (
	"errors"
	"strings"

	"github.com/fjod/go_checkout/internal/order"
	"github.com/fjod/go_checkout/internal/payment"
)

var (
	ErrSubmitInProgress = errors.New("a submission for this checkout is already in progress")
	ErrCheckoutDisabled = errors.New("checkout submission is disabled")
	// ErrNotOrderOwner is returned when a session reports on an order it did
	// not start.
	ErrNotOrderOwner = errors.New("order belongs to another checkout session")
	// ErrPaymentUnverified is returned when the shopper reports success but the
	// backend does not show the payment as completed yet.
	ErrPaymentUnverified = errors.New("payment not confirmed by the backend")
)

const (
	MsgConnection      = "Error de conexión. Intenta nuevamente."
	MsgUnknownError    = "Error desconocido"
	MsgUnavailable     = "El pago no está disponible en este momento."
	MsgInProgress      = "Tu pedido ya se está procesando."
	MsgEmptyCart       = "Tu carrito está vacío."
	MsgMissingField    = "Completa el campo obligatorio: "
	MsgPaymentSuccess  = "¡Pago realizado exitosamente! Tu orden ha sido procesada."
	MsgPaymentFailed   = "Error en el pago. Por favor, intenta nuevamente."
	MsgPaymentPending  = "Estamos confirmando tu pago..."
	MsgPaymentRedirect = "Redirigiendo al pago..."
)

var fieldLabels = map[string]string{
	"first_name": "Nombre",
	"last_name":  "Apellidos",
	"email":      "Correo electrónico",
	"address1":   "Dirección",
	"city":       "Ciudad",
	"province":   "Región",
	"zip":        "Código postal",
}

// UserMessage turns any submission error into the single message shown to the
// shopper.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrSubmitInProgress) {
		return MsgInProgress
	}
	if errors.Is(err, ErrCheckoutDisabled) {
		return MsgUnavailable
	}
	if errors.Is(err, order.ErrEmptyCart) {
		return MsgEmptyCart
	}
	var missing *order.MissingFieldError
	if errors.As(err, &missing) {
		label, ok := fieldLabels[missing.Field]
		if !ok {
			label = missing.Field
		}
		return MsgMissingField + label
	}
	var pe *payment.PaymentError
	if errors.As(err, &pe) {
		switch pe.Kind {
		case payment.KindRejected:
			detail := strings.TrimSpace(pe.Detail)
			if detail == "" {
				detail = MsgUnknownError
			}
			return "Error: " + detail
		case payment.KindConfiguration:
			return MsgUnavailable
		}
	}
	return MsgConnection
}
