package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
	"github.com/mdbxhq/mdbx-backend/internal/ledger"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

// ContributionRequest is one member's contribution attempt.
type ContributionRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Track         string          `json:"track,omitempty"`
	FundingMethod string          `json:"funding_method"`
	Description   string          `json:"description,omitempty"`
}

// SubmitResult is either a committed record (wallet funding) or a pending
// payment session (external funding), never both.
type SubmitResult struct {
	Track   cycle.Track            `json:"track"`
	Record  *models.Contribution   `json:"record,omitempty"`
	Pending *models.PaymentSession `json:"pending,omitempty"`
}

// ClassificationPreview answers "what would today's contribution be".
type ClassificationPreview struct {
	Track             cycle.Track `json:"track"`
	WindowDescription string      `json:"window_description"`
}

// resolveTrack applies the explicit override when given, otherwise runs
// the cycle classifier against the member's registration anchor.
func (s *Service) resolveTrack(member *models.Member, explicit string) (cycle.Track, error) {
	if explicit != "" {
		track, err := cycle.ParseTrack(explicit)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return track, nil
	}
	mode, err := cycle.ParseMode(member.ContributionMode)
	if err != nil {
		return "", fmt.Errorf("member %d has invalid contribution mode: %w", member.ID, err)
	}
	opts := cycle.Options{FeeOnDayOne: s.config.FeeOnDayOne}
	return cycle.Classify(mode, member.RegisteredAt, s.now(), opts), nil
}

// ClassifyContribution is the read-only preview of today's classification.
func (s *Service) ClassifyContribution(ctx context.Context, memberID int64, explicitTrack string) (*ClassificationPreview, error) {
	member, err := s.store.FindMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	track, err := s.resolveTrack(member, explicitTrack)
	if err != nil {
		return nil, err
	}
	preview := &ClassificationPreview{Track: track, WindowDescription: cycle.Describe(member.RegisteredAt)}
	if explicitTrack != "" {
		preview.WindowDescription = "explicit track override"
	}
	return preview, nil
}

// SubmitContribution validates and executes one contribution request.
// Wallet funding commits synchronously in one atomic ledger call; external
// funding returns a pending payment session whose metadata alone is enough
// to finish the job when settlement arrives.
func (s *Service) SubmitContribution(ctx context.Context, memberID int64, req ContributionRequest) (*SubmitResult, error) {
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if req.FundingMethod != models.FundingWallet && req.FundingMethod != models.FundingExternal {
		return nil, fmt.Errorf("%w: unknown funding method %q", ErrValidation, req.FundingMethod)
	}
	if req.Track != "" {
		if _, err := cycle.ParseTrack(req.Track); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	member, err := s.store.FindMemberByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	track, err := s.resolveTrack(member, req.Track)
	if err != nil {
		return nil, err
	}

	if req.FundingMethod == models.FundingExternal {
		session, err := s.gateway.Initialize(ctx, req.Amount, models.PaymentMetadata{
			MemberID: member.ID,
			Track:    string(track),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: initialize: %v", ErrGateway, err)
		}
		s.log.Infof("Payment session %s opened for member %d (%s, %s)",
			session.Reference, member.ID, track, req.Amount)
		return &SubmitResult{Track: track, Pending: session}, nil
	}

	var rec *models.Contribution
	date := s.now()
	switch track {
	case cycle.TrackPooled:
		rec, err = s.ledger.TransferToPool(ctx, member.ID, req.Amount, date, req.Description)
	case cycle.TrackPersonal:
		rec, err = s.ledger.TrackPersonal(ctx, member.ID, req.Amount, date, req.Description)
	case cycle.TrackFee:
		rec, err = s.ledger.TransferFee(ctx, member.ID, req.Amount, date, req.Description)
	}
	if err != nil {
		s.log.Warnf("Contribution by member %d failed: %v", member.ID, err)
		return nil, err
	}

	s.audit(ctx, member.ID, "contribution.committed",
		fmt.Sprintf("track=%s amount=%s funding=wallet", track, req.Amount))
	s.sendReceipt(member, rec)
	s.log.Infof("Contribution %d committed for member %d (%s, %s)", rec.ID, member.ID, track, req.Amount)
	return &SubmitResult{Track: track, Record: rec}, nil
}

// ReconcileSettlement finishes an externally funded contribution once the
// gateway confirms it, whether the confirmation came from a verify call or
// a webhook. Safe to call any number of times per reference.
func (s *Service) ReconcileSettlement(ctx context.Context, reference string) (*models.Contribution, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: reference is required", ErrValidation)
	}
	// A reference that already settled short-circuits before the gateway
	// round trip.
	if prior, err := s.ledger.FindByReference(ctx, reference); err == nil {
		s.log.Infof("Settlement %s already reconciled as contribution %d", reference, prior.ID)
		return prior, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	status, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: verify %s: %v", ErrGateway, reference, err)
	}
	if !status.Settled {
		s.log.Warnf("Settlement %s reported unsuccessful by gateway", reference)
		return nil, ErrSettlementNotSuccessful
	}
	if status.Metadata.MemberID == 0 {
		return nil, fmt.Errorf("settlement %s carries no member id in metadata", reference)
	}
	track, err := cycle.ParseTrack(status.Metadata.Track)
	if err != nil {
		return nil, fmt.Errorf("settlement %s metadata: %w", reference, err)
	}

	rec, duplicate, err := s.ledger.SettleExternal(ctx, status.Metadata.MemberID, track, status.Amount, reference, s.now())
	if err != nil {
		return nil, err
	}
	if duplicate {
		s.log.Infof("Settlement %s raced a concurrent reconcile; returning contribution %d", reference, rec.ID)
		return rec, nil
	}

	s.audit(ctx, rec.MemberID, "settlement.reconciled",
		fmt.Sprintf("reference=%s track=%s amount=%s", reference, track, status.Amount))
	if member, lookupErr := s.store.FindMemberByID(ctx, rec.MemberID); lookupErr == nil {
		s.sendReceipt(member, rec)
	}
	s.log.Infof("Settlement %s committed as contribution %d for member %d", reference, rec.ID, rec.MemberID)
	return rec, nil
}

func (s *Service) sendReceipt(member *models.Member, rec *models.Contribution) {
	if s.mailer == nil || member.Email == "" {
		return
	}
	if err := s.mailer.SendContributionReceipt(member.Email, rec.Track, rec.Amount, rec.Date); err != nil {
		s.log.Errorf("Failed to send receipt to member %d: %v", member.ID, err)
	}
}
