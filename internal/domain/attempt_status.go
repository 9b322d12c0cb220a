package domain

// AttemptStatus tracks one submission attempt against the payment backend.
type AttemptStatus string

const (
	AttemptStatusInitiated       AttemptStatus = "INITIATED"
	AttemptStatusLinkCreated     AttemptStatus = "LINK_CREATED"
	AttemptStatusRejected        AttemptStatus = "REJECTED"
	AttemptStatusTransportFailed AttemptStatus = "TRANSPORT_FAILED"
	AttemptStatusPaid            AttemptStatus = "PAID"
	AttemptStatusPaymentFailed   AttemptStatus = "PAYMENT_FAILED"
)

func (s AttemptStatus) IsTerminal() bool {
	switch s {
	case AttemptStatusRejected, AttemptStatusTransportFailed, AttemptStatusPaid, AttemptStatusPaymentFailed:
		return true
	default:
		return false
	}
}

// String representation (for logging)
func (s AttemptStatus) String() string {
	return string(s)
}

var validTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptStatusInitiated: {
		AttemptStatusLinkCreated,
		AttemptStatusRejected,
		AttemptStatusTransportFailed,
	},
	AttemptStatusLinkCreated: {
		AttemptStatusPaid,
		AttemptStatusPaymentFailed,
	},
}

func CanTransitionTo(from, to AttemptStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
