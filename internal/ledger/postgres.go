package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

// Postgres implements Ledger on a PostgreSQL database. Member rows are
// locked with SELECT ... FOR UPDATE inside a single transaction per call,
// which serializes concurrent mutations per member and per pool account.
type Postgres struct {
	db            *sql.DB
	poolAccountID int64
	log           *logrus.Logger
}

// NewPostgres initializes a Postgres-backed ledger. The pool account id is
// fixed at construction; passing zero leaves pooled and fee transfers
// permanently failing with ErrPoolAccountNotConfigured.
func NewPostgres(db *sql.DB, poolAccountID int64, log *logrus.Logger) *Postgres {
	return &Postgres{db: db, poolAccountID: poolAccountID, log: log}
}

// withTx runs fn inside one transaction and guarantees rollback on any
// error exit path.
func (l *Postgres) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			l.log.Errorf("Ledger rollback failed: %v", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// lockWallet locks the member row and returns the current wallet balance.
func lockWallet(tx *sql.Tx, memberID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(`
		SELECT wallet_balance
		FROM mdbx.members
		WHERE id = $1
		FOR UPDATE`, memberID).Scan(&balance)
	if err == sql.ErrNoRows {
		return decimal.Zero, ErrMemberNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock member %d: %w", memberID, err)
	}
	return balance, nil
}

func creditWallet(tx *sql.Tx, memberID int64, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE mdbx.members
		SET wallet_balance = wallet_balance + $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`, memberID, amount)
	if err != nil {
		return fmt.Errorf("credit wallet of member %d: %w", memberID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// insertContribution appends the record and fills in the generated fields.
func insertContribution(tx *sql.Tx, c *models.Contribution) error {
	var ref sql.NullString
	if c.PaymentReference != "" {
		ref = sql.NullString{String: c.PaymentReference, Valid: true}
	}
	err := tx.QueryRow(`
		INSERT INTO mdbx.contributions
			(member_id, track, amount, status, interest_earned, description,
			 payment_reference, contrib_date, year, month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`,
		c.MemberID, string(c.Track), c.Amount, c.Status, c.InterestEarned,
		c.Description, ref, c.Date, c.Year, c.Month).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("append contribution: %w", err)
	}
	return nil
}

// newRecord builds a completed contribution row for date.
func newRecord(memberID int64, track cycle.Track, amount decimal.Decimal, date time.Time, description string) *models.Contribution {
	return &models.Contribution{
		MemberID:       memberID,
		Track:          track,
		Amount:         amount,
		Status:         models.StatusCompleted,
		InterestEarned: decimal.Zero,
		Description:    description,
		Date:           date,
		Year:           date.Year(),
		Month:          int(date.Month()),
	}
}

// debitToPool moves amount from the locked member wallet to the pool
// account. Caller has already locked the member row and checked funds.
func (l *Postgres) debitToPool(tx *sql.Tx, memberID int64, amount decimal.Decimal, growICA bool) error {
	set := `wallet_balance = wallet_balance - $2, updated_at = CURRENT_TIMESTAMP`
	if growICA {
		set = `wallet_balance = wallet_balance - $2, ica_balance = ica_balance + $2, updated_at = CURRENT_TIMESTAMP`
	}
	if _, err := tx.Exec(`UPDATE mdbx.members SET `+set+` WHERE id = $1`, memberID, amount); err != nil {
		return fmt.Errorf("debit wallet of member %d: %w", memberID, err)
	}
	if _, err := lockWallet(tx, l.poolAccountID); err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			return ErrPoolAccountNotConfigured
		}
		return err
	}
	return creditWallet(tx, l.poolAccountID, amount)
}

func (l *Postgres) TransferToPool(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	return l.pooledTransfer(ctx, memberID, cycle.TrackPooled, amount, date, description)
}

func (l *Postgres) TransferFee(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	return l.pooledTransfer(ctx, memberID, cycle.TrackFee, amount, date, description)
}

// pooledTransfer is the shared wallet-to-pool mechanics behind the pooled
// and fee tracks; only the fee track skips the per-member ICA balance.
func (l *Postgres) pooledTransfer(ctx context.Context, memberID int64, track cycle.Track, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	if l.poolAccountID == 0 {
		return nil, ErrPoolAccountNotConfigured
	}
	rec := newRecord(memberID, track, amount, date, description)
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		balance, err := lockWallet(tx, memberID)
		if err != nil {
			return err
		}
		if balance.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := l.debitToPool(tx, memberID, amount, track == cycle.TrackPooled); err != nil {
			return err
		}
		return insertContribution(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Postgres) TrackPersonal(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	rec := newRecord(memberID, cycle.TrackPersonal, amount, date, description)
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		// Lock for serialization; the wallet is deliberately untouched.
		if _, err := lockWallet(tx, memberID); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			UPDATE mdbx.members
			SET piggy_balance = piggy_balance + $2, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`, memberID, amount); err != nil {
			return fmt.Errorf("grow personal balance of member %d: %w", memberID, err)
		}
		return insertContribution(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Postgres) SettleExternal(ctx context.Context, memberID int64, track cycle.Track, amount decimal.Decimal, reference string, date time.Time) (*models.Contribution, bool, error) {
	if track != cycle.TrackPersonal && l.poolAccountID == 0 {
		return nil, false, ErrPoolAccountNotConfigured
	}
	rec := newRecord(memberID, track, amount, date, "external settlement")
	rec.PaymentReference = reference
	duplicate := false
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		prior, err := findByReference(tx, reference)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if prior != nil {
			rec, duplicate = prior, true
			return nil
		}
		if _, err := lockWallet(tx, memberID); err != nil {
			return err
		}
		// Settled funds land in the wallet first, then follow the same
		// mechanics as a wallet-funded contribution.
		if err := creditWallet(tx, memberID, amount); err != nil {
			return err
		}
		switch track {
		case cycle.TrackPooled:
			if err := l.debitToPool(tx, memberID, amount, true); err != nil {
				return err
			}
		case cycle.TrackFee:
			if err := l.debitToPool(tx, memberID, amount, false); err != nil {
				return err
			}
		case cycle.TrackPersonal:
			if _, err := tx.Exec(`
				UPDATE mdbx.members
				SET piggy_balance = piggy_balance + $2, updated_at = CURRENT_TIMESTAMP
				WHERE id = $1`, memberID, amount); err != nil {
				return fmt.Errorf("grow personal balance of member %d: %w", memberID, err)
			}
		}
		return insertContribution(tx, rec)
	})
	if err != nil {
		// A concurrent settle of the same reference wins the insert race;
		// the unique index turns ours into a duplicate read.
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			prior, findErr := l.FindByReference(ctx, reference)
			if findErr != nil {
				return nil, false, findErr
			}
			return prior, true, nil
		}
		return nil, false, err
	}
	return rec, duplicate, nil
}

func (l *Postgres) ApplyAccrual(ctx context.Context, memberID int64, interest decimal.Decimal, date time.Time) (*models.Contribution, error) {
	rec := newRecord(memberID, cycle.TrackPooled, decimal.Zero, date, "interest accrual")
	rec.InterestEarned = interest
	err := l.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := lockWallet(tx, memberID); err != nil {
			return err
		}
		if _, err := tx.Exec(`
			UPDATE mdbx.members
			SET ica_balance = ica_balance + $2, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1`, memberID, interest); err != nil {
			return fmt.Errorf("accrue interest for member %d: %w", memberID, err)
		}
		return insertContribution(tx, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}

func findByReference(q rowQuerier, reference string) (*models.Contribution, error) {
	c := &models.Contribution{}
	var track string
	var ref, description sql.NullString
	err := q.QueryRow(`
		SELECT id, member_id, track, amount, status, interest_earned,
		       description, payment_reference, contrib_date, year, month,
		       created_at, updated_at
		FROM mdbx.contributions
		WHERE payment_reference = $1`, reference).
		Scan(&c.ID, &c.MemberID, &track, &c.Amount, &c.Status, &c.InterestEarned,
			&description, &ref, &c.Date, &c.Year, &c.Month, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find contribution by reference: %w", err)
	}
	c.Track = cycle.Track(track)
	c.Description = description.String
	c.PaymentReference = ref.String
	return c, nil
}

func (l *Postgres) FindByReference(ctx context.Context, reference string) (*models.Contribution, error) {
	return findByReference(l.db, reference)
}

func (l *Postgres) PooledBalances(ctx context.Context) ([]models.PooledBalance, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ica_balance
		FROM mdbx.members
		WHERE ica_balance > 0 AND id <> $1
		ORDER BY id`, l.poolAccountID)
	if err != nil {
		return nil, fmt.Errorf("list pooled balances: %w", err)
	}
	defer rows.Close()

	var balances []models.PooledBalance
	for rows.Next() {
		var b models.PooledBalance
		if err := rows.Scan(&b.MemberID, &b.Balance); err != nil {
			return nil, fmt.Errorf("scan pooled balance: %w", err)
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pooled balances: %w", err)
	}
	return balances, nil
}

func (l *Postgres) Balances(ctx context.Context, memberID int64) (*models.BalanceSnapshot, error) {
	s := &models.BalanceSnapshot{MemberID: memberID}
	err := l.db.QueryRowContext(ctx, `
		SELECT wallet_balance, ica_balance, piggy_balance
		FROM mdbx.members
		WHERE id = $1`, memberID).
		Scan(&s.WalletBalance, &s.ICABalance, &s.PiggyBalance)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read balances of member %d: %w", memberID, err)
	}
	return s, nil
}
