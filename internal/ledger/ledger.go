package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

var (
	// ErrInsufficientFunds means the wallet balance was below the
	// requested amount at mutation time. Nothing was persisted.
	ErrInsufficientFunds = errors.New("insufficient wallet funds")
	// ErrPoolAccountNotConfigured means no admin/pool account id was set.
	// Pooled and fee transfers have no counterparty without it.
	ErrPoolAccountNotConfigured = errors.New("pool account not configured")
	// ErrMemberNotFound means the member row does not exist.
	ErrMemberNotFound = errors.New("member not found")
	// ErrNotFound means no contribution matched the lookup.
	ErrNotFound = errors.New("contribution not found")
)

// Ledger owns the per-member running balances and the append-only
// contribution record. Every mutating call is one atomic unit: the balance
// guard, the balance mutations and the record append commit or roll back
// together. Access is serialized per member row, so concurrent calls for
// the same member (or against the shared pool account) never lose updates.
type Ledger interface {
	// TransferToPool moves amount from the member's wallet to the pool
	// account and grows the member's pooled (ICA) balance by the same
	// amount.
	TransferToPool(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error)

	// TrackPersonal grows the member's personal (PIGGY) balance without
	// touching the wallet: the money stays spendable while being tracked
	// as committed savings. The asymmetry with the pooled track is
	// intentional.
	TrackPersonal(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error)

	// TransferFee moves amount from the member's wallet to the pool
	// account. No per-member fee balance exists; only the record remains.
	TransferFee(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error)

	// SettleExternal credits the member's wallet with externally settled
	// funds and then posts them to the given track, all in one atomic
	// unit, deduplicated by payment reference. A reference that already
	// settled returns the prior record with duplicate set.
	SettleExternal(ctx context.Context, memberID int64, track cycle.Track, amount decimal.Decimal, reference string, date time.Time) (rec *models.Contribution, duplicate bool, err error)

	// ApplyAccrual grows the member's pooled balance by interest and
	// appends a zero-principal record carrying the accrued amount.
	ApplyAccrual(ctx context.Context, memberID int64, interest decimal.Decimal, date time.Time) (*models.Contribution, error)

	// FindByReference returns the contribution settled under reference,
	// or ErrNotFound.
	FindByReference(ctx context.Context, reference string) (*models.Contribution, error)

	// PooledBalances lists every member with a pooled balance above zero.
	PooledBalances(ctx context.Context) ([]models.PooledBalance, error)

	// Balances returns one member's current balances.
	Balances(ctx context.Context, memberID int64) (*models.BalanceSnapshot, error)
}
