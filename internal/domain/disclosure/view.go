// Package disclosure decides, per receiver, which referral fields and
// documents are visible. The decision is a pure function of the
// receiver's payment state and the billing flags, recomputed on every
// read and never stored.
package disclosure

import (
	"github.com/google/uuid"

	"github.com/medref/medref/internal/domain/billing"
	"github.com/medref/medref/internal/domain/referral"
)

// RedactionMarker replaces gated text fields in a locked view.
const RedactionMarker = "[locked]"

// Unlocked reports whether the receiver may see the gated fields: either
// it paid its own disclosure fee or the sender prepaid on its behalf.
func Unlocked(rc *referral.Receiver, b *billing.BillingRecord) bool {
	if rc == nil {
		return false
	}
	if rc.PaymentStatus == referral.PaymentPaid {
		return true
	}
	return b != nil && b.SenderSendCharged
}

// InsuranceView mirrors an insurance entry with the document reference
// withheld while locked.
type InsuranceView struct {
	Payer     string  `json:"payer"`
	Policy    string  `json:"policy,omitempty"`
	PlanGroup string  `json:"plan_group,omitempty"`
	Ref       *string `json:"ref,omitempty"`
}

// DocumentView lists a document by name in every view; the storage
// reference is present only when unlocked.
type DocumentView struct {
	Slot string  `json:"slot"`
	Name string  `json:"name"`
	Ref  *string `json:"ref,omitempty"`
}

// View is a receiver's rendition of a referral. Locked views carry the
// basic patient fields and sender identity only; gated fields are
// redacted and document references withheld.
type View struct {
	ReferralID           uuid.UUID                  `json:"referral_id"`
	TargetID             uuid.UUID                  `json:"target_id"`
	SenderOrganizationID uuid.UUID                  `json:"sender_organization_id"`
	SenderContact        referral.ContactBlock      `json:"sender_contact"`
	Patient              referral.Patient           `json:"patient"`
	AdditionalPatient    referral.AdditionalPatient `json:"additional_patient"`
	Insurances           []InsuranceView            `json:"insurances"`
	Documents            []DocumentView             `json:"documents"`
	PrimaryCare          *referral.ContactBlock     `json:"primary_care,omitempty"`
	Notes                string                     `json:"notes,omitempty"`
	State                referral.State             `json:"state"`
	Locked               bool                       `json:"locked"`
}

// BuildView renders a referral for one receiver, applying the gate.
func BuildView(ref *referral.Referral, rc *referral.Receiver, b *billing.BillingRecord) *View {
	unlocked := Unlocked(rc, b)
	v := &View{
		ReferralID:           ref.ID,
		TargetID:             rc.ID,
		SenderOrganizationID: ref.SenderOrganizationID,
		SenderContact:        ref.SenderContact,
		Patient:              ref.Patient,
		State:                rc.State,
		Locked:               !unlocked,
	}

	if unlocked {
		v.AdditionalPatient = ref.AdditionalPatient
		v.PrimaryCare = ref.PrimaryCare
		v.Notes = ref.Notes
	} else {
		v.AdditionalPatient = redactAdditional(ref.AdditionalPatient)
	}

	for _, ins := range ref.Insurances {
		iv := InsuranceView{Payer: ins.Payer, Policy: ins.Policy, PlanGroup: ins.PlanGroup}
		if unlocked {
			iv.Ref = ins.Ref
		}
		v.Insurances = append(v.Insurances, iv)
	}
	for _, doc := range ref.Documents {
		dv := DocumentView{Slot: doc.Slot, Name: doc.Name}
		if unlocked {
			ref := doc.Ref
			dv.Ref = &ref
		}
		v.Documents = append(v.Documents, dv)
	}
	return v
}

// redactAdditional keeps the presence of a gated field visible while
// hiding its value, so a locked UI can show what paying reveals.
func redactAdditional(a referral.AdditionalPatient) referral.AdditionalPatient {
	out := referral.AdditionalPatient{}
	if a.Phone != "" {
		out.Phone = RedactionMarker
	}
	if a.Language != "" {
		out.Language = RedactionMarker
	}
	if a.PowerOfAttorney != "" {
		out.PowerOfAttorney = RedactionMarker
	}
	if a.SSN != "" {
		out.SSN = RedactionMarker
	}
	if a.OtherInfo != "" {
		out.OtherInfo = RedactionMarker
	}
	return out
}
