package payment

import (
	"errors"
	"fmt"
)

type ErrorKind int

const (
	// KindTransport covers network failures, timeouts, non-2xx answers and
	// unreadable bodies.
	KindTransport ErrorKind = iota
	// KindRejected is a well-formed refusal from the backend.
	KindRejected
	// KindConfiguration means the request could not be sent at all.
	KindConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindRejected:
		return "rejected"
	case KindConfiguration:
		return "configuration"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

type PaymentError struct {
	Kind   ErrorKind
	Detail string
	Err    error
}

func (e *PaymentError) Error() string {
	if e.Detail == "" {
		return "payment " + e.Kind.String() + " error"
	}
	return fmt.Sprintf("payment %s error: %s", e.Kind, e.Detail)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// KindOf reports the kind of a *PaymentError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return 0, false
}

var (
	ErrAlreadyResolved     = errors.New("confirmation already resolved")
	ErrUnknownConfirmation = errors.New("no pending confirmation for order")
	ErrUnknownStrategy     = errors.New("unknown payment strategy")
)

const (
	errBackendUnavailable   = "payment backend unavailable"
	errMissingCSRFToken     = "missing CSRF token"
	errMissingBackendURL    = "payment backend URL not configured"
	errMissingPaymentLink   = "backend returned no payment link"
	errMissingPaymentToken  = "backend returned no payment token"
	errUnreadableBackendMsg = "unreadable backend response"
)
