// Package referral holds the referral aggregate and the per-receiver
// lifecycle. A referral is drafted by a sender organization, then sent,
// fanning out to one status row per receiving department or guest
// organization. Each receiver moves through its own state machine
// independently of its siblings.
package referral

import (
	"time"

	"github.com/google/uuid"
)

// ContactBlock is a reusable contact snippet used for the sender and the
// optional primary care provider.
type ContactBlock struct {
	Name     string `json:"name"`
	Facility string `json:"facility,omitempty"`
	Address  string `json:"address,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Fax      string `json:"fax,omitempty"`
}

// Patient carries the fields every receiver may see before paying.
type Patient struct {
	Name          string `json:"name"`
	DOB           string `json:"dob,omitempty"`
	Gender        string `json:"gender,omitempty"`
	AddressOfCare string `json:"address_of_care,omitempty"`
}

// AdditionalPatient carries the gated fields. They are withheld from a
// receiver until the disclosure gate unlocks.
type AdditionalPatient struct {
	Phone           string `json:"phone,omitempty"`
	Language        string `json:"language,omitempty"`
	PowerOfAttorney string `json:"power_of_attorney,omitempty"`
	SSN             string `json:"ssn,omitempty"`
	OtherInfo       string `json:"other_info,omitempty"`
}

// Insurance is one coverage entry. Ref points at an uploaded card image
// or policy document and is withheld while locked.
type Insurance struct {
	Payer     string  `json:"payer"`
	Policy    string  `json:"policy,omitempty"`
	PlanGroup string  `json:"plan_group,omitempty"`
	Ref       *string `json:"ref,omitempty"`
}

// Document is a named slot (face sheet, medication list, and so on) or a
// free-form "other" attachment. Ref is the opaque storage reference.
type Document struct {
	Slot string `json:"slot"`
	Name string `json:"name"`
	Ref  string `json:"ref"`
}

// Referral is the root aggregate, owned by the sending organization.
type Referral struct {
	ID                   uuid.UUID          `json:"id"`
	SenderOrganizationID uuid.UUID          `json:"sender_organization_id"`
	SenderContact        ContactBlock       `json:"sender_contact"`
	Patient              Patient            `json:"patient"`
	AdditionalPatient    AdditionalPatient  `json:"additional_patient"`
	Insurances           []Insurance        `json:"insurances"`
	Documents            []Document         `json:"documents"`
	PrimaryCare          *ContactBlock      `json:"primary_care,omitempty"`
	Notes                string             `json:"notes,omitempty"`
	IsDraft              bool               `json:"is_draft"`
	SentAt               *time.Time         `json:"sent_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at"`
}

// State is a receiver's lifecycle position.
type State string

const (
	StatePending   State = "PENDING"
	StateAccepted  State = "ACCEPTED"
	StateRejected  State = "REJECTED"
	StatePaid      State = "PAID"
	StateCompleted State = "COMPLETED"
)

// transitions is the single authoritative transition table. Every state
// change goes through CanTransition; there are no string comparisons
// scattered elsewhere.
var transitions = map[State][]State{
	StatePending:   {StateAccepted, StateRejected, StatePaid},
	StateAccepted:  {StatePaid},
	StatePaid:      {StateCompleted},
	StateRejected:  {},
	StateCompleted: {},
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether moving from s to next is legal. The
// PENDING to PAID edge exists only for the sender-prepaid shortcut.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PaymentStatus tracks whether a receiver's disclosure fee is settled.
type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
)

// Receiver is one referral target's status row. Exactly one of
// DepartmentID and GuestOrgID is set. Guest rows are reassigned to a
// department when the guest organization claims its account; state and
// payment history survive the reassignment.
type Receiver struct {
	ID            uuid.UUID     `json:"id"`
	ReferralID    uuid.UUID     `json:"referral_id"`
	DepartmentID  *uuid.UUID    `json:"department_id,omitempty"`
	GuestOrgID    *uuid.UUID    `json:"guest_org_id,omitempty"`
	State         State         `json:"state"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	RejectReason  *string       `json:"reject_reason,omitempty"`
	IsClaimed     bool          `json:"is_claimed"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// IsGuest reports whether the receiver still points at a guest
// organization rather than a registered department.
func (r *Receiver) IsGuest() bool {
	return r.GuestOrgID != nil && r.DepartmentID == nil
}
