package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
)

// Contribution statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Funding methods for a contribution request.
const (
	FundingWallet   = "wallet"
	FundingExternal = "external_payment"
)

// Contribution is one append-only ledger fact. Once completed, amount and
// track never change; interest accruals are new zero-principal rows, not
// updates to history.
type Contribution struct {
	ID               int64           `json:"id"`
	MemberID         int64           `json:"member_id"`
	Track            cycle.Track     `json:"track"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	InterestEarned   decimal.Decimal `json:"interest_earned"`
	Description      string          `json:"description,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Date             time.Time       `json:"date"`
	Year             int             `json:"year"`
	Month            int             `json:"month"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
