package payment

import (
	"encoding/json"
	"fmt"
)

const statusPath = "/izipay/payment-link/status/"

// LinkState is the provider's state for a payment link or widget token.
type LinkState int

const (
	LinkPending LinkState = iota
	LinkPaid
	LinkFailed
)

func (s LinkState) String() string {
	switch s {
	case LinkPending:
		return "pending"
	case LinkPaid:
		return "paid"
	case LinkFailed:
		return "failed"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// Verification is the backend's answer to a status lookup.
type Verification struct {
	State         LinkState
	TransactionID string
	Detail        string
}

type statusRequest struct {
	OrderNumber   string `json:"orderNumber"`
	TransactionID string `json:"transactionId,omitempty"`
}

type statusResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	State         string `json:"state"`
	TransactionID string `json:"transactionId"`
}

// provider link states: 1 generated, 2 in process, 3 paid, 4 error, 5 expired
var linkStates = map[string]Verification{
	"1": {State: LinkPending},
	"2": {State: LinkPending},
	"3": {State: LinkPaid},
	"4": {State: LinkFailed, Detail: "payment ended with an error"},
	"5": {State: LinkFailed, Detail: "payment link expired"},
}

func parseVerification(body []byte) (Verification, error) {
	var resp statusResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Verification{}, &PaymentError{Kind: KindTransport, Detail: errUnreadableBackendMsg, Err: err}
	}
	if !resp.Success {
		return Verification{}, &PaymentError{Kind: KindRejected, Detail: resp.Error}
	}
	v, ok := linkStates[resp.State]
	if !ok {
		return Verification{}, &PaymentError{Kind: KindTransport, Detail: fmt.Sprintf("unknown payment state %q", resp.State)}
	}
	v.TransactionID = resp.TransactionID
	return v, nil
}
