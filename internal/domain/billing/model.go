// Package billing settles referral disclosure fees. A receiver unlocks a
// referral by paying from its organization's stored credit or by card
// through the external payment provider's intent handshake; the sender
// may instead prepay on the receiver's behalf. Every settlement is
// recorded as a PaymentTransaction and flips the receiver to PAID
// through the referral state machine.
package billing

import (
	"time"

	"github.com/google/uuid"
)

// BillingRecord tracks, per referral and receiver, which side already
// paid which fee. The flags prevent double charging and drive the
// sender-prepaid disclosure shortcut.
type BillingRecord struct {
	ID                  uuid.UUID `json:"id"`
	ReferralID          uuid.UUID `json:"referral_id"`
	ReceiverStatusID    uuid.UUID `json:"receiver_status_id"`
	SenderSendCharged   bool      `json:"sender_send_charged"`
	SenderUsedCredit    bool      `json:"sender_used_credit"`
	ReceiverOpenCharged bool      `json:"receiver_open_charged"`
	ReceiverUsedCredit  bool      `json:"receiver_used_credit"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// CreditBalance is an organization's stored balance in minor units.
type CreditBalance struct {
	OrganizationID uuid.UUID `json:"organization_id"`
	Balance        int64     `json:"balance"`
	Currency       string    `json:"currency"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TransactionSource distinguishes stored credit from a card charge.
type TransactionSource string

const (
	SourceCredit  TransactionSource = "credit"
	SourcePayment TransactionSource = "payment"
)

// TransactionStatus is a settlement's lifecycle position. failed is
// permanent; a new summary and confirm attempt supersedes it.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusSucceeded TransactionStatus = "succeeded"
	StatusFailed    TransactionStatus = "failed"
)

// FeeBreakdown makes the charged amount reproducible: a displayed
// summary always matches what is eventually charged.
type FeeBreakdown struct {
	PricePerReferral int64   `json:"price_per_referral"`
	ProcessingFee    int64   `json:"processing_fee"`
	FeePercent       float64 `json:"fee_percent,omitempty"`
	Total            int64   `json:"total"`
}

// PaymentTransaction is one settlement attempt. PaymentMethodID and the
// intent fields are set only for card charges.
type PaymentTransaction struct {
	ID               uuid.UUID         `json:"id"`
	ReferralID       uuid.UUID         `json:"referral_id"`
	ReceiverStatusID uuid.UUID         `json:"receiver_status_id"`
	Source           TransactionSource `json:"source"`
	PaymentMethodID  *string           `json:"payment_method_id,omitempty"`
	Amount           int64             `json:"amount"`
	Currency         string            `json:"currency"`
	Fees             FeeBreakdown      `json:"fees"`
	IntentID         *string           `json:"intent_id,omitempty"`
	ClientSecret     *string           `json:"client_secret,omitempty"`
	Status           TransactionStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PaymentMethodConfig describes a configured card method and its
// processing fee, either flat (minor units) or a percentage of the
// referral price. Exactly one of FlatFee and FeePercent is nonzero.
type PaymentMethodConfig struct {
	ID         string  `json:"id"`
	Label      string  `json:"label"`
	FlatFee    int64   `json:"flat_fee,omitempty"`
	FeePercent float64 `json:"fee_percent,omitempty"`
}

// ComputeFees derives the deterministic breakdown for a price charged
// through this method.
func (m PaymentMethodConfig) ComputeFees(price int64) FeeBreakdown {
	fee := m.FlatFee
	if m.FeePercent > 0 {
		fee = int64(float64(price) * m.FeePercent / 100)
	}
	return FeeBreakdown{
		PricePerReferral: price,
		ProcessingFee:    fee,
		FeePercent:       m.FeePercent,
		Total:            price + fee,
	}
}

// PaymentSummary is what a receiver reviews before confirming a card
// charge: the breakdown plus the pending transaction carrying the
// provider's client secret.
type PaymentSummary struct {
	Breakdown   FeeBreakdown        `json:"breakdown"`
	Transaction *PaymentTransaction `json:"transaction"`
}
