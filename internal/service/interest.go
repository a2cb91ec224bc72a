package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// ApplyInterest accrues ratePercent on every positive pooled balance.
// Each member's accrual is its own atomic unit: one failure is recorded in
// the result and the batch moves on, it never rolls back accruals already
// committed for other members. The job is deliberately not idempotent;
// invocation frequency is the scheduler's problem.
func (s *Service) ApplyInterest(ctx context.Context, ratePercent decimal.Decimal) (*models.InterestBatchResult, error) {
	if !ratePercent.IsPositive() {
		return nil, fmt.Errorf("%w: rate must be positive", ErrValidation)
	}

	balances, err := s.ledger.PooledBalances(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.InterestBatchResult{
		RatePercent:   ratePercent,
		RunAt:         s.now(),
		TotalInterest: decimal.Zero,
	}
	for _, b := range balances {
		interest := b.Balance.Mul(ratePercent).Div(hundred)
		rec, err := s.ledger.ApplyAccrual(ctx, b.MemberID, interest, s.now())
		if err != nil {
			s.log.Errorf("Interest accrual failed for member %d: %v", b.MemberID, err)
			result.Failures = append(result.Failures, models.InterestFailure{
				MemberID: b.MemberID,
				Reason:   err.Error(),
			})
			continue
		}
		result.Accruals = append(result.Accruals, models.InterestAccrual{
			MemberID:       b.MemberID,
			Balance:        b.Balance,
			Interest:       interest,
			ContributionID: rec.ID,
		})
		result.TotalInterest = result.TotalInterest.Add(interest)
		result.MembersAffected++
		s.sendInterestNotice(ctx, b.MemberID, interest, b.Balance.Add(interest))
	}

	s.audit(ctx, 0, "interest.applied",
		fmt.Sprintf("rate=%s%% members=%d total=%s failures=%d",
			ratePercent, result.MembersAffected, result.TotalInterest, len(result.Failures)))
	s.log.Infof("Interest run at %s%%: %s across %d members, %d failures",
		ratePercent, result.TotalInterest, result.MembersAffected, len(result.Failures))
	return result, nil
}

func (s *Service) sendInterestNotice(ctx context.Context, memberID int64, interest, newBalance decimal.Decimal) {
	if s.mailer == nil {
		return
	}
	member, err := s.store.FindMemberByID(ctx, memberID)
	if err != nil || member.Email == "" {
		return
	}
	if err := s.mailer.SendInterestNotice(member.Email, interest, newBalance); err != nil {
		s.log.Errorf("Failed to send interest notice to member %d: %v", memberID, err)
	}
}
