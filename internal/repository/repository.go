package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mdbxhq/mdbx-backend/internal/models"
)

// ErrMemberNotFound means no member row matched the lookup.
var ErrMemberNotFound = errors.New("member not found")

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateMember creates a new member in the database
func (r *Repository) CreateMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO mdbx.members
			(mobile, email, password_hash, contribution_mode,
			 wallet_balance, ica_balance, piggy_balance, registered_at,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 0, $5, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, wallet_balance, ica_balance, piggy_balance, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query,
		member.Mobile, member.Email, member.PasswordHash,
		member.ContributionMode, member.RegisteredAt).
		Scan(&member.ID, &member.WalletBalance, &member.ICABalance,
			&member.PiggyBalance, &member.CreatedAt, &member.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create member: %w", err)
	}
	return nil
}

const memberColumns = `
	id, mobile, email, password_hash, contribution_mode,
	wallet_balance, ica_balance, piggy_balance, anonymized,
	registered_at, created_at, updated_at`

func scanMember(row *sql.Row) (*models.Member, error) {
	member := &models.Member{}
	err := row.Scan(&member.ID, &member.Mobile, &member.Email,
		&member.PasswordHash, &member.ContributionMode,
		&member.WalletBalance, &member.ICABalance, &member.PiggyBalance,
		&member.Anonymized, &member.RegisteredAt,
		&member.CreatedAt, &member.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find member: %w", err)
	}
	return member, nil
}

// FindMemberByMobile retrieves a member by mobile number
func (r *Repository) FindMemberByMobile(ctx context.Context, mobile string) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM mdbx.members WHERE mobile = $1`
	return scanMember(r.db.QueryRowContext(ctx, query, mobile))
}

// FindMemberByID retrieves a member by id
func (r *Repository) FindMemberByID(ctx context.Context, id int64) (*models.Member, error) {
	query := `SELECT` + memberColumns + ` FROM mdbx.members WHERE id = $1`
	return scanMember(r.db.QueryRowContext(ctx, query, id))
}

// AnonymizeMember blanks identity fields while keeping financial rows.
// Members are never hard-deleted.
func (r *Repository) AnonymizeMember(ctx context.Context, id int64) error {
	query := `
		UPDATE mdbx.members
		SET mobile = 'erased-' || id, email = '', password_hash = '',
		    anonymized = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to anonymize member %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ContributionsByMember lists a member's full contribution history
func (r *Repository) ContributionsByMember(ctx context.Context, memberID int64) ([]models.Contribution, error) {
	query := `
		SELECT id, member_id, track, amount, status, interest_earned,
		       COALESCE(description, ''), COALESCE(payment_reference, ''),
		       contrib_date, year, month, created_at, updated_at
		FROM mdbx.contributions
		WHERE member_id = $1
		ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, query, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []models.Contribution
	for rows.Next() {
		var c models.Contribution
		if err := rows.Scan(&c.ID, &c.MemberID, &c.Track, &c.Amount, &c.Status,
			&c.InterestEarned, &c.Description, &c.PaymentReference,
			&c.Date, &c.Year, &c.Month, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		contributions = append(contributions, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contributions: %w", err)
	}
	return contributions, nil
}

// AppendAudit writes one audit-log row
func (r *Repository) AppendAudit(ctx context.Context, entry *models.AuditEntry) error {
	var memberID sql.NullInt64
	if entry.MemberID != 0 {
		memberID = sql.NullInt64{Int64: entry.MemberID, Valid: true}
	}
	query := `
		INSERT INTO mdbx.audit_log (member_id, action, detail, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRowContext(ctx, query, memberID, entry.Action, entry.Detail).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}
