package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Member represents a cooperative member and their financial profile.
// Balances are mutated only through the ledger; members are never
// hard-deleted (GDPR erasure anonymizes identity fields only).
type Member struct {
	ID               int64           `json:"id"`
	Mobile           string          `json:"mobile"`
	Email            string          `json:"email,omitempty"`
	PasswordHash     string          `json:"-"` // Not serialized
	ContributionMode string          `json:"contribution_mode"`
	WalletBalance    decimal.Decimal `json:"wallet_balance"`
	ICABalance       decimal.Decimal `json:"ica_balance"`
	PiggyBalance     decimal.Decimal `json:"piggy_balance"`
	Anonymized       bool            `json:"-"`
	RegisteredAt     time.Time       `json:"registered_at"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BalanceSnapshot is a read-only view of one member's balances.
type BalanceSnapshot struct {
	MemberID      int64           `json:"member_id"`
	WalletBalance decimal.Decimal `json:"wallet_balance"`
	ICABalance    decimal.Decimal `json:"ica_balance"`
	PiggyBalance  decimal.Decimal `json:"piggy_balance"`
}

// PooledBalance pairs a member with their current pooled-track balance.
type PooledBalance struct {
	MemberID int64           `json:"member_id"`
	Balance  decimal.Decimal `json:"balance"`
}
