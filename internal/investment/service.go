// Package investment is the boundary the platform calls into: onboarding,
// recording investments and the withdrawal flow.
package investment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"binary-comp-engine/internal/domain"
	"binary-comp-engine/internal/events"
	"binary-comp-engine/internal/idhash"
	"binary-comp-engine/internal/ledger"
	"binary-comp-engine/internal/matching"
	"binary-comp-engine/internal/placement"
	"binary-comp-engine/internal/storage"
	"binary-comp-engine/internal/storage/memory"
)

// Options configures a Service.
type Options struct {
	Guard  storage.PaymentRefGuard // defaults to an in-memory guard
	Events events.Publisher        // defaults to events.Noop
	Logger zerolog.Logger
	Now    func() time.Time
}

// Service records investments and withdrawals.
type Service struct {
	store     storage.Store
	ledger    *ledger.Ledger
	placement *placement.Engine
	matching  *matching.Engine
	guard     storage.PaymentRefGuard
	events    events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a new Service.
func New(store storage.Store, l *ledger.Ledger, p *placement.Engine, m *matching.Engine, opts Options) *Service {
	if opts.Guard == nil {
		opts.Guard = memory.NewPaymentRefGuard()
	}
	if opts.Events == nil {
		opts.Events = events.Noop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     store,
		ledger:    l,
		placement: p,
		matching:  m,
		guard:     opts.Guard,
		events:    opts.Events,
		log:       opts.Logger.With().Str("component", "investment").Logger(),
		now:       opts.Now,
	}
}

// OnboardRequest describes a new participant.
type OnboardRequest struct {
	ID        string // generated when empty
	Code      string
	SponsorID string // empty means the root
	Leg       domain.Leg
	Strict    bool
	AsRoot    bool
}

// Onboard creates a participant and places it in the tree in one
// transaction. A failed placement leaves no participant behind.
func (s *Service) Onboard(ctx context.Context, req OnboardRequest) (*domain.Participant, *placement.Result, error) {
	if req.Code == "" {
		return nil, nil, fmt.Errorf("onboard: empty code: %w", storage.ErrInvalidInput)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	p := &domain.Participant{
		ID:     req.ID,
		Code:   req.Code,
		Status: domain.StatusActive,
	}
	res, err := s.placement.Insert(ctx, placement.InsertRequest{
		Participant: p,
		SponsorID:   req.SponsorID,
		Leg:         req.Leg,
		AsRoot:      req.AsRoot,
		Strict:      req.Strict,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("onboard %s: %w", req.Code, err)
	}

	var stored *domain.Participant
	err = s.store.View(ctx, func(tx storage.Tx) error {
		var err error
		stored, err = tx.Participants().GetByID(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get participant: %w", err)
	}
	return stored, res, nil
}

// Request is one investment reported by the payment collaborator.
//
// The investor must be placed in the tree. Placement is optional: when set
// and ParticipantID is unknown, the participant is onboarded with it first
// (its ID is replaced by ParticipantID). Without it an unknown participant
// fails with ErrParticipantNotFound, and callers onboard with Onboard first.
// Onboarding commits on its own, so a participant placed here stays placed
// if recording the investment then fails.
type Request struct {
	ParticipantID string
	Package       domain.PackageConfig
	Amount        decimal.Decimal
	PaymentRef    string
	Placement     *OnboardRequest
}

// Result is the outcome of CreateInvestment.
type Result struct {
	Investment    *domain.Investment
	Wallets       []*domain.Wallet  // investor's wallets after the investment
	ReferralBonus decimal.Decimal   // credited to the sponsor, zero if none
	Touched       []string          // nodes that received business volume
	Placement     *placement.Result // set when the investor was onboarded by this call

	// VolumePending is set when the investment was recorded but posting its
	// volume failed. The error is logged; the volume must be re-posted.
	VolumePending bool
}

// CreateInvestment records an investment, credits the principal and the
// sponsor's referral bonus, then posts the amount as business volume to
// the investor's upline. A payment reference is accepted once.
func (s *Service) CreateInvestment(ctx context.Context, req Request) (*Result, error) {
	amount, err := validate(req)
	if err != nil {
		return nil, err
	}

	claimed, err := s.guard.Claim(ctx, req.PaymentRef)
	if err != nil {
		return nil, fmt.Errorf("claim payment ref: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, req.PaymentRef)
	}

	placed, err := s.ensurePlaced(ctx, req)
	if err != nil {
		s.releaseRef(ctx, req.PaymentRef)
		return nil, fmt.Errorf("create investment: %w", err)
	}

	var (
		inv      *domain.Investment
		node     *domain.TreeNode
		referral = decimal.Zero
	)
	err = storage.InTxRetry(ctx, s.store, s.retryLog("create_investment"), func(tx storage.Tx) error {
		var err error
		inv, node, referral, err = s.record(ctx, tx, req, amount)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicatePayment) {
			s.releaseRef(ctx, req.PaymentRef)
		}
		return nil, fmt.Errorf("create investment: %w", err)
	}

	result := &Result{Investment: inv, ReferralBonus: referral, Placement: placed}

	if node.ParentID != "" && node.Leg.IsValid() {
		touched, err := s.matching.PostVolume(ctx, node.ParentID, amount, node.Leg)
		if err != nil {
			result.VolumePending = true
			s.log.Error().Err(err).
				Str("participant_id", req.ParticipantID).
				Str("payment_ref", req.PaymentRef).
				Msg("investment recorded but volume not posted")
		}
		result.Touched = touched
	}

	s.publish(ctx, events.TypeInvestmentCreated, req.ParticipantID, map[string]string{
		"investment_id": inv.ID,
		"amount":        amount.String(),
		"package":       req.Package.ID,
		"payment_ref":   req.PaymentRef,
	})

	result.Wallets, err = s.ledger.Wallets(ctx, req.ParticipantID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("participant_id", req.ParticipantID).
		Str("investment_id", inv.ID).
		Str("amount", amount.String()).
		Str("referral_bonus", referral.String()).
		Msg("investment created")
	return result, nil
}

// ensurePlaced onboards an unknown investor when the request carries a
// placement. It returns nil when nothing was onboarded.
func (s *Service) ensurePlaced(ctx context.Context, req Request) (*placement.Result, error) {
	if req.Placement == nil {
		return nil, nil
	}

	var exists bool
	err := s.store.View(ctx, func(tx storage.Tx) error {
		_, err := tx.Participants().GetByID(ctx, req.ParticipantID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		exists = err == nil
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	if exists {
		return nil, nil
	}

	onboard := *req.Placement
	onboard.ID = req.ParticipantID
	_, res, err := s.Onboard(ctx, onboard)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) releaseRef(ctx context.Context, ref string) {
	if err := s.guard.Release(ctx, ref); err != nil {
		s.log.Warn().Err(err).Str("payment_ref", ref).Msg("release payment ref failed")
	}
}

func validate(req Request) (decimal.Decimal, error) {
	if req.ParticipantID == "" || req.PaymentRef == "" {
		return decimal.Zero, fmt.Errorf("investment: missing participant or payment ref: %w", storage.ErrInvalidInput)
	}
	amount := domain.RoundAmount(req.Amount)
	if err := domain.ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	if req.Package.MinAmount.IsPositive() && amount.LessThan(req.Package.MinAmount) {
		return decimal.Zero, fmt.Errorf("%w: %s below package minimum %s", domain.ErrInvalidAmount, amount, req.Package.MinAmount)
	}
	for _, pct := range []decimal.Decimal{req.Package.BinaryPct, req.Package.CapAmount, req.Package.ReferralPct, req.Package.RoiPct} {
		if pct.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: negative package parameter %s", domain.ErrInvalidAmount, pct)
		}
	}
	return amount, nil
}

func (s *Service) record(ctx context.Context, tx storage.Tx, req Request, amount decimal.Decimal) (*domain.Investment, *domain.TreeNode, decimal.Decimal, error) {
	participant, err := tx.Participants().GetByID(ctx, req.ParticipantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, decimal.Zero, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, req.ParticipantID)
	}
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("get participant: %w", err)
	}

	node, err := tx.Tree().GetByID(ctx, req.ParticipantID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, decimal.Zero, fmt.Errorf("%w: %s is not placed", domain.ErrParticipantNotFound, req.ParticipantID)
	}
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("get node: %w", err)
	}

	inv := &domain.Investment{
		ID:            uuid.NewString(),
		ParticipantID: req.ParticipantID,
		Package:       req.Package,
		Amount:        amount,
		PaymentRef:    req.PaymentRef,
		Status:        domain.InvestmentActive,
		CreatedAt:     s.now().UnixMilli(),
	}
	if err := tx.Investments().Insert(ctx, inv); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, nil, decimal.Zero, fmt.Errorf("%w: %s", domain.ErrDuplicatePayment, req.PaymentRef)
		}
		return nil, nil, decimal.Zero, fmt.Errorf("insert investment: %w", err)
	}

	w := s.ledger.Tx(tx)
	_, err = w.Credit(ctx, ledger.Posting{
		ParticipantID: req.ParticipantID,
		Purpose:       domain.PurposeInvestment,
		Amount:        amount,
		Reference:     idhash.InvestmentReference(req.ParticipantID, req.PaymentRef),
		Tag:           domain.TagInvestment,
		Meta:          map[string]string{"investment_id": inv.ID, "package": req.Package.ID},
	})
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("credit principal: %w", err)
	}

	referral := domain.Percent(amount, req.Package.ReferralPct)
	if participant.SponsorID == "" || !referral.IsPositive() {
		return inv, node, decimal.Zero, nil
	}
	_, err = w.Credit(ctx, ledger.Posting{
		ParticipantID: participant.SponsorID,
		Purpose:       domain.PurposeReferral,
		Amount:        referral,
		Reference:     idhash.ReferralReference(participant.SponsorID, req.PaymentRef),
		Tag:           domain.TagReferral,
		Meta:          map[string]string{"from": req.ParticipantID, "investment_id": inv.ID},
	})
	if err != nil {
		return nil, nil, decimal.Zero, fmt.Errorf("credit referral bonus: %w", err)
	}
	return inv, node, referral, nil
}

func (s *Service) publish(ctx context.Context, t events.Type, participantID string, fields map[string]string) {
	err := s.events.Publish(ctx, events.Event{
		Type:          t,
		ParticipantID: participantID,
		Fields:        fields,
		OccurredAt:    s.now().UnixMilli(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("type", string(t)).Str("participant_id", participantID).Msg("publish event failed")
	}
}
