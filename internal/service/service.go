package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mdbxhq/mdbx-backend/internal/config"
	"github.com/mdbxhq/mdbx-backend/internal/cycle"
	"github.com/mdbxhq/mdbx-backend/internal/ledger"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

var (
	// ErrValidation rejects a request before any I/O happens.
	ErrValidation = errors.New("validation failed")
	// ErrGateway wraps a failed or timed-out payment-gateway call.
	ErrGateway = errors.New("payment gateway error")
	// ErrSettlementNotSuccessful means the gateway reported the payment
	// as not settled. No balances were touched; the gateway owns retries.
	ErrSettlementNotSuccessful = errors.New("settlement not successful")
	// ErrInvalidCredentials hides whether the mobile or password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// MemberStore is the slice of the repository the service depends on.
type MemberStore interface {
	CreateMember(ctx context.Context, member *models.Member) error
	FindMemberByMobile(ctx context.Context, mobile string) (*models.Member, error)
	FindMemberByID(ctx context.Context, id int64) (*models.Member, error)
	AnonymizeMember(ctx context.Context, id int64) error
	ContributionsByMember(ctx context.Context, memberID int64) ([]models.Contribution, error)
	AppendAudit(ctx context.Context, entry *models.AuditEntry) error
}

// PaymentGateway is the external card/bank rail. Initialize runs strictly
// before and Verify strictly after the ledger's atomic scope; neither is
// ever called while balances are locked.
type PaymentGateway interface {
	Initialize(ctx context.Context, amount decimal.Decimal, metadata models.PaymentMetadata) (*models.PaymentSession, error)
	Verify(ctx context.Context, reference string) (*models.PaymentStatus, error)
}

// Mailer sends best-effort notifications; failures are logged, never
// propagated into the financial flow.
type Mailer interface {
	SendContributionReceipt(to string, track cycle.Track, amount decimal.Decimal, date time.Time) error
	SendInterestNotice(to string, interest, newBalance decimal.Decimal) error
}

// Service handles business logic
type Service struct {
	store   MemberStore
	ledger  ledger.Ledger
	gateway PaymentGateway
	mailer  Mailer
	log     *logrus.Logger
	config  *config.Config
	now     func() time.Time
}

// NewService initializes a new service. mailer may be nil when SMTP is
// not configured.
func NewService(store MemberStore, led ledger.Ledger, gateway PaymentGateway, mailer Mailer, cfg *config.Config, log *logrus.Logger) *Service {
	return &Service{
		store:   store,
		ledger:  led,
		gateway: gateway,
		mailer:  mailer,
		config:  cfg,
		log:     log,
		now:     time.Now,
	}
}

var mobilePattern = regexp.MustCompile(`^[0-9]{7,15}$`)

// Register creates a new member with hashed password. The registration
// timestamp anchors the member's contribution cycle from here on.
func (s *Service) Register(ctx context.Context, mobile, emailAddr, password, mode string) (*models.Member, error) {
	if !mobilePattern.MatchString(mobile) {
		return nil, fmt.Errorf("%w: mobile must be a 7-15 digit string", ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	if mode == "" {
		mode = string(cycle.ModeAuto)
	}
	if _, err := cycle.ParseMode(mode); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	member := &models.Member{
		Mobile:           mobile,
		Email:            emailAddr,
		PasswordHash:     string(hashedPassword),
		ContributionMode: mode,
		RegisteredAt:     s.now(),
	}
	if err := s.store.CreateMember(ctx, member); err != nil {
		return nil, err
	}

	s.audit(ctx, member.ID, "member.registered", "mode="+mode)
	s.log.Infof("Member registered: %s", member.Mobile)
	return member, nil
}

// Login authenticates a member and returns a JWT token
func (s *Service) Login(ctx context.Context, mobile, password string) (string, error) {
	member, err := s.store.FindMemberByMobile(ctx, mobile)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(member.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", member.ID),
		ExpiresAt: jwt.NewNumericDate(s.now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("Member logged in: %s", member.Mobile)
	return tokenString, nil
}

// Balances returns a member's current balance snapshot.
func (s *Service) Balances(ctx context.Context, memberID int64) (*models.BalanceSnapshot, error) {
	return s.ledger.Balances(ctx, memberID)
}

// audit appends an audit row; failures are logged and swallowed so
// bookkeeping never fails a financial operation.
func (s *Service) audit(ctx context.Context, memberID int64, action, detail string) {
	entry := &models.AuditEntry{MemberID: memberID, Action: action, Detail: detail}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.log.Errorf("Audit append failed for %s: %v", action, err)
	}
}
