package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestAccrual records one member's share of an interest run.
type InterestAccrual struct {
	MemberID       int64           `json:"member_id"`
	Balance        decimal.Decimal `json:"balance"`
	Interest       decimal.Decimal `json:"interest"`
	ContributionID int64           `json:"contribution_id"`
}

// InterestFailure records a member whose accrual could not be committed.
type InterestFailure struct {
	MemberID int64  `json:"member_id"`
	Reason   string `json:"reason"`
}

// InterestBatchResult summarizes one interest application run. The batch
// is best-effort per member: failures are collected here, they never roll
// back accruals already committed for other members.
type InterestBatchResult struct {
	RatePercent     decimal.Decimal   `json:"rate_percent"`
	RunAt           time.Time         `json:"run_at"`
	TotalInterest   decimal.Decimal   `json:"total_interest"`
	MembersAffected int               `json:"members_affected"`
	Accruals        []InterestAccrual `json:"accruals"`
	Failures        []InterestFailure `json:"failures"`
}
