package models

import "github.com/shopspring/decimal"

// PaymentMetadata rides on a payment session so the settlement callback
// can recover the original contribution context without local state.
type PaymentMetadata struct {
	MemberID int64  `json:"member_id"`
	Track    string `json:"track"`
}

// PaymentSession is the processor's handle for a pending payment.
type PaymentSession struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorization_url"`
}

// PaymentStatus is the processor's answer to a verification call or the
// payload of its settlement webhook.
type PaymentStatus struct {
	Settled  bool            `json:"settled"`
	Amount   decimal.Decimal `json:"amount"`
	Metadata PaymentMetadata `json:"metadata"`
}
