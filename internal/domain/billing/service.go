package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medref/medref/internal/domain/referral"
	"github.com/medref/medref/internal/platform/apperr"
	"github.com/medref/medref/internal/platform/auth"
	"github.com/medref/medref/internal/platform/payprovider"
)

// ReceiverMarker flips a receiver to PAID once a settlement succeeds.
// Satisfied by the referral service.
type ReceiverMarker interface {
	MarkPaid(ctx context.Context, referralID, targetID, transactionID uuid.UUID) (*referral.Receiver, error)
}

// receiverReader looks up receiver rows for settlement prechecks.
type receiverReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Receiver, error)
}

// referralReader resolves a referral's sending organization for the
// prepay authorization check.
type referralReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*referral.Referral, error)
}

// IntentClient is the external payment provider surface the engine
// needs. Satisfied by payprovider.Client.
type IntentClient interface {
	CreatePaymentMethod(ctx context.Context, cardToken string) (*payprovider.PaymentMethod, error)
	CreatePaymentIntent(ctx context.Context, req payprovider.PaymentIntentRequest) (*payprovider.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*payprovider.PaymentIntent, error)
}

// Pricing is the per-referral disclosure price in minor units.
type Pricing struct {
	PricePerReferral int64
	Currency         string
}

type Service struct {
	billing      BillingRepository
	credits      CreditRepository
	transactions TransactionRepository
	receivers    receiverReader
	referrals    referralReader
	marker       ReceiverMarker
	provider     IntentClient
	pricing      Pricing
	methods      map[string]PaymentMethodConfig
	runInTx      referral.TxRunner
	logger       zerolog.Logger
}

func NewService(
	billing BillingRepository,
	credits CreditRepository,
	transactions TransactionRepository,
	receivers receiverReader,
	referrals referralReader,
	marker ReceiverMarker,
	provider IntentClient,
	pricing Pricing,
	methods []PaymentMethodConfig,
	runInTx referral.TxRunner,
	logger zerolog.Logger,
) *Service {
	byID := make(map[string]PaymentMethodConfig, len(methods))
	for _, m := range methods {
		byID[m.ID] = m
	}
	return &Service{
		billing:      billing,
		credits:      credits,
		transactions: transactions,
		receivers:    receivers,
		referrals:    referrals,
		marker:       marker,
		provider:     provider,
		pricing:      pricing,
		methods:      byID,
		runInTx:      runInTx,
		logger:       logger,
	}
}

// -- Credit --

func (s *Service) GetCreditBalance(ctx context.Context, actor *auth.Actor) (*CreditBalance, error) {
	if actor == nil {
		return nil, apperr.Forbidden("authentication required")
	}
	return s.credits.GetBalance(ctx, actor.OrganizationID)
}

func (s *Service) AddCredit(ctx context.Context, orgID uuid.UUID, amount int64) error {
	if amount <= 0 {
		return apperr.Validation("top-up amount must be positive")
	}
	return s.credits.Add(ctx, orgID, amount, s.pricing.Currency)
}

// -- Payment methods --

func (s *Service) ListPaymentMethods() []PaymentMethodConfig {
	result := make([]PaymentMethodConfig, 0, len(s.methods))
	for _, m := range s.methods {
		result = append(result, m)
	}
	return result
}

// CreateCardMethod tokenizes a card with the external provider and
// returns its method handle for later intent creation.
func (s *Service) CreateCardMethod(ctx context.Context, cardToken string) (*payprovider.PaymentMethod, error) {
	if cardToken == "" {
		return nil, apperr.Validation("card token is required")
	}
	pm, err := s.provider.CreatePaymentMethod(ctx, cardToken)
	if err != nil {
		return nil, apperr.PaymentFailed(err, "card tokenization failed")
	}
	return pm, nil
}

// -- Billing record --

func (s *Service) GetBilling(ctx context.Context, referralID, receiverStatusID uuid.UUID) (*BillingRecord, error) {
	return s.billing.GetOrCreate(ctx, referralID, receiverStatusID)
}

func (s *Service) ListTransactions(ctx context.Context, referralID uuid.UUID) ([]*PaymentTransaction, error) {
	return s.transactions.ListByReferral(ctx, referralID)
}

// -- Settlement --

// PayWithCredit settles a receiver's disclosure fee from its
// organization's stored balance. The deduction, the succeeded
// transaction, the receiver's PAID transition, and the billing flags all
// commit in one transaction or not at all.
func (s *Service) PayWithCredit(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*PaymentTransaction, error) {
	if actor == nil {
		return nil, apperr.Forbidden("authentication required")
	}
	rc, err := s.targetFor(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if !actorOwnsReceiver(actor, rc) {
		return nil, apperr.Forbidden("actor is not authorized for this receiver")
	}
	if err := s.checkNotSettled(ctx, rc); err != nil {
		return nil, err
	}
	if err := settleableByReceiver(rc); err != nil {
		return nil, err
	}

	amount := s.pricing.PricePerReferral
	txn := &PaymentTransaction{
		ID:               uuid.New(),
		ReferralID:       referralID,
		ReceiverStatusID: targetID,
		Source:           SourceCredit,
		Amount:           amount,
		Currency:         s.pricing.Currency,
		Fees:             FeeBreakdown{PricePerReferral: amount, Total: amount},
		Status:           StatusSucceeded,
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		ok, err := s.credits.Deduct(ctx, actor.OrganizationID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientCredit("organization %s balance does not cover %d", actor.OrganizationID, amount)
		}
		if err := s.transactions.Create(ctx, txn); err != nil {
			return err
		}
		if _, err := s.marker.MarkPaid(ctx, referralID, targetID, txn.ID); err != nil {
			return err
		}
		return s.setFlags(ctx, referralID, targetID, func(b *BillingRecord) {
			b.ReceiverUsedCredit = true
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("transaction_id", txn.ID.String()).
		Str("referral_id", referralID.String()).
		Int64("amount", amount).
		Msg("credit settlement succeeded")
	return txn, nil
}

// GetPaymentSummary prices a card charge through the chosen method,
// opens a payment intent with the provider, and records the pending
// transaction. The caller confirms the charge out-of-band with the
// returned client secret, then calls ConfirmPayment.
func (s *Service) GetPaymentSummary(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID, methodID string) (*PaymentSummary, error) {
	if actor == nil {
		return nil, apperr.Forbidden("authentication required")
	}
	method, ok := s.methods[methodID]
	if !ok {
		return nil, apperr.Validation("unknown payment method %q", methodID)
	}
	rc, err := s.targetFor(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if !actorOwnsReceiver(actor, rc) {
		return nil, apperr.Forbidden("actor is not authorized for this receiver")
	}
	if err := s.checkNotSettled(ctx, rc); err != nil {
		return nil, err
	}
	if err := settleableByReceiver(rc); err != nil {
		return nil, err
	}

	fees := method.ComputeFees(s.pricing.PricePerReferral)
	txnID := uuid.New()
	intent, err := s.provider.CreatePaymentIntent(ctx, payprovider.PaymentIntentRequest{
		Amount:          fees.Total,
		Currency:        s.pricing.Currency,
		PaymentMethodID: methodID,
		Description:     fmt.Sprintf("referral disclosure %s", referralID),
		IdempotencyKey:  txnID.String(),
	})
	if err != nil {
		return nil, apperr.PaymentFailed(err, "payment intent creation failed")
	}

	txn := &PaymentTransaction{
		ID:               txnID,
		ReferralID:       referralID,
		ReceiverStatusID: targetID,
		Source:           SourcePayment,
		PaymentMethodID:  &methodID,
		Amount:           fees.Total,
		Currency:         s.pricing.Currency,
		Fees:             fees,
		IntentID:         &intent.ID,
		ClientSecret:     &intent.ClientSecret,
		Status:           StatusPending,
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, err
	}
	return &PaymentSummary{Breakdown: fees, Transaction: txn}, nil
}

// ConfirmPayment verifies a pending card transaction against the
// provider and settles or permanently fails it. Re-delivered and
// out-of-order confirmations are safe: a transaction already succeeded
// returns as-is, and a receiver settled by a different transaction
// rejects with AlreadyPaid.
func (s *Service) ConfirmPayment(ctx context.Context, transactionID uuid.UUID) (*PaymentTransaction, error) {
	txn, err := s.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, apperr.NotFound("transaction %s not found", transactionID)
	}
	switch txn.Status {
	case StatusSucceeded:
		return txn, nil
	case StatusFailed:
		return nil, apperr.PaymentFailed(nil, "transaction %s already failed; start a new payment attempt", transactionID)
	}

	rc, err := s.receivers.GetByID(ctx, txn.ReceiverStatusID)
	if err != nil {
		return nil, apperr.NotFound("receiver %s not found", txn.ReceiverStatusID)
	}
	if rc.PaymentStatus == referral.PaymentPaid {
		return nil, apperr.AlreadyPaid("receiver %s was settled by another transaction", rc.ID)
	}
	if err := settleableByReceiver(rc); err != nil {
		return nil, err
	}

	if txn.IntentID == nil {
		return nil, apperr.PaymentFailed(nil, "transaction %s has no payment intent", transactionID)
	}
	intent, err := s.provider.RetrieveIntent(ctx, *txn.IntentID)
	if err != nil {
		return nil, apperr.PaymentFailed(err, "payment intent lookup failed")
	}

	switch intent.Status {
	case payprovider.IntentStatusSucceeded:
		err = s.runInTx(ctx, func(ctx context.Context) error {
			txn.Status = StatusSucceeded
			if err := s.transactions.Update(ctx, txn); err != nil {
				return err
			}
			if _, err := s.marker.MarkPaid(ctx, txn.ReferralID, txn.ReceiverStatusID, txn.ID); err != nil {
				return err
			}
			return s.setFlags(ctx, txn.ReferralID, txn.ReceiverStatusID, func(b *BillingRecord) {
				b.ReceiverOpenCharged = true
			})
		})
		if err != nil {
			return nil, err
		}
		return txn, nil
	case payprovider.IntentStatusCanceled:
		txn.Status = StatusFailed
		if err := s.transactions.Update(ctx, txn); err != nil {
			return nil, err
		}
		return nil, apperr.PaymentFailed(nil, "payment was declined or canceled by the provider")
	default:
		// Not yet settled on the provider side. The transaction stays
		// pending so a later confirmation can land.
		return nil, apperr.PaymentFailed(nil, "payment intent is still %s", intent.Status)
	}
}

// SenderPrepay unlocks a receiver at the sender's expense: the sending
// organization's credit covers the fee, a succeeded credit transaction
// is synthesized for the audit trail, and the receiver jumps to PAID
// through the prepaid shortcut.
func (s *Service) SenderPrepay(ctx context.Context, actor *auth.Actor, referralID, targetID uuid.UUID) (*PaymentTransaction, error) {
	if actor == nil {
		return nil, apperr.Forbidden("authentication required")
	}
	ref, err := s.referrals.GetByID(ctx, referralID)
	if err != nil {
		return nil, apperr.NotFound("referral %s not found", referralID)
	}
	if ref.SenderOrganizationID != actor.OrganizationID && !actor.HasRole(auth.RoleAdmin) {
		return nil, apperr.Forbidden("only the sending organization may prepay")
	}
	rc, err := s.targetFor(ctx, referralID, targetID)
	if err != nil {
		return nil, err
	}
	if err := s.checkNotSettled(ctx, rc); err != nil {
		return nil, err
	}

	amount := s.pricing.PricePerReferral
	txn := &PaymentTransaction{
		ID:               uuid.New(),
		ReferralID:       referralID,
		ReceiverStatusID: targetID,
		Source:           SourceCredit,
		Amount:           amount,
		Currency:         s.pricing.Currency,
		Fees:             FeeBreakdown{PricePerReferral: amount, Total: amount},
		Status:           StatusSucceeded,
	}

	err = s.runInTx(ctx, func(ctx context.Context) error {
		ok, err := s.credits.Deduct(ctx, actor.OrganizationID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.InsufficientCredit("organization %s balance does not cover %d", actor.OrganizationID, amount)
		}
		if err := s.transactions.Create(ctx, txn); err != nil {
			return err
		}
		if _, err := s.marker.MarkPaid(ctx, referralID, targetID, txn.ID); err != nil {
			return err
		}
		return s.setFlags(ctx, referralID, targetID, func(b *BillingRecord) {
			b.SenderSendCharged = true
			b.SenderUsedCredit = true
		})
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// -- Helpers --

func (s *Service) targetFor(ctx context.Context, referralID, targetID uuid.UUID) (*referral.Receiver, error) {
	rc, err := s.receivers.GetByID(ctx, targetID)
	if err != nil || rc.ReferralID != referralID {
		return nil, apperr.NotFound("receiver %s not found on referral %s", targetID, referralID)
	}
	return rc, nil
}

// actorOwnsReceiver applies the same ownership rule as the referral
// service: admins pass, everyone else must be a member of the
// receiver's department.
func actorOwnsReceiver(actor *auth.Actor, rc *referral.Receiver) bool {
	if actor == nil {
		return false
	}
	if actor.HasRole(auth.RoleAdmin) {
		return true
	}
	return rc.DepartmentID != nil && actor.MemberOfDepartment(*rc.DepartmentID)
}

// settleableByReceiver requires an explicit acceptance before a
// receiver-driven settlement lands. PENDING jumps straight to PAID
// only through SenderPrepay.
func settleableByReceiver(rc *referral.Receiver) error {
	if rc.State != referral.StateAccepted {
		return apperr.InvalidStateTransition(string(rc.State), string(referral.StatePaid))
	}
	return nil
}

// checkNotSettled is the service-level half of the single-settlement
// invariant; the partial unique index is the SQL half.
func (s *Service) checkNotSettled(ctx context.Context, rc *referral.Receiver) error {
	if rc.PaymentStatus == referral.PaymentPaid {
		return apperr.AlreadyPaid("receiver %s is already paid", rc.ID)
	}
	if existing, err := s.transactions.GetSucceededByReceiver(ctx, rc.ID); err == nil && existing != nil {
		return apperr.AlreadyPaid("receiver %s already has a succeeded transaction", rc.ID)
	}
	return nil
}

func (s *Service) setFlags(ctx context.Context, referralID, receiverStatusID uuid.UUID, mutate func(*BillingRecord)) error {
	b, err := s.billing.GetOrCreate(ctx, referralID, receiverStatusID)
	if err != nil {
		return err
	}
	mutate(b)
	return s.billing.Update(ctx, b)
}
