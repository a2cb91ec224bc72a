package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
	"github.com/mdbxhq/mdbx-backend/internal/models"
)

// Memory implements Ledger in process memory with the same guard and
// atomicity semantics as the Postgres implementation. It backs the test
// suites of this package and of the service layer.
type Memory struct {
	mu            sync.Mutex
	poolAccountID int64
	balances      map[int64]*models.BalanceSnapshot
	records       []*models.Contribution
	byReference   map[string]*models.Contribution
	nextID        int64

	// failAppend, when set, makes the record append fail after the
	// balance math has been staged. Used to prove nothing leaks out of a
	// failed atomic unit.
	failAppend error
}

// NewMemory initializes an in-memory ledger with the given pool account.
func NewMemory(poolAccountID int64) *Memory {
	m := &Memory{
		poolAccountID: poolAccountID,
		balances:      make(map[int64]*models.BalanceSnapshot),
		byReference:   make(map[string]*models.Contribution),
	}
	if poolAccountID != 0 {
		m.SeedMember(poolAccountID, decimal.Zero)
	}
	return m
}

// SeedMember registers a member row with an opening wallet balance.
func (m *Memory) SeedMember(memberID int64, wallet decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[memberID]; !ok {
		m.balances[memberID] = &models.BalanceSnapshot{
			MemberID:      memberID,
			WalletBalance: wallet,
			ICABalance:    decimal.Zero,
			PiggyBalance:  decimal.Zero,
		}
	}
}

// snapshot copies a balance row so staged mutations stay private until
// the whole operation has succeeded.
func snapshot(b *models.BalanceSnapshot) *models.BalanceSnapshot {
	cp := *b
	return &cp
}

func (m *Memory) append(rec *models.Contribution) error {
	if m.failAppend != nil {
		return m.failAppend
	}
	m.nextID++
	rec.ID = m.nextID
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records = append(m.records, rec)
	if rec.PaymentReference != "" {
		m.byReference[rec.PaymentReference] = rec
	}
	return nil
}

func (m *Memory) pooledTransfer(memberID int64, track cycle.Track, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poolAccountID == 0 {
		return nil, ErrPoolAccountNotConfigured
	}
	member, ok := m.balances[memberID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	pool, ok := m.balances[m.poolAccountID]
	if !ok {
		return nil, ErrPoolAccountNotConfigured
	}
	if member.WalletBalance.LessThan(amount) {
		return nil, ErrInsufficientFunds
	}

	staged, stagedPool := snapshot(member), snapshot(pool)
	staged.WalletBalance = staged.WalletBalance.Sub(amount)
	if track == cycle.TrackPooled {
		staged.ICABalance = staged.ICABalance.Add(amount)
	}
	stagedPool.WalletBalance = stagedPool.WalletBalance.Add(amount)

	rec := newRecord(memberID, track, amount, date, description)
	if err := m.append(rec); err != nil {
		return nil, err
	}
	m.balances[memberID] = staged
	m.balances[m.poolAccountID] = stagedPool
	return rec, nil
}

func (m *Memory) TransferToPool(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	return m.pooledTransfer(memberID, cycle.TrackPooled, amount, date, description)
}

func (m *Memory) TransferFee(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	return m.pooledTransfer(memberID, cycle.TrackFee, amount, date, description)
}

func (m *Memory) TrackPersonal(ctx context.Context, memberID int64, amount decimal.Decimal, date time.Time, description string) (*models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.balances[memberID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	staged := snapshot(member)
	staged.PiggyBalance = staged.PiggyBalance.Add(amount)

	rec := newRecord(memberID, cycle.TrackPersonal, amount, date, description)
	if err := m.append(rec); err != nil {
		return nil, err
	}
	m.balances[memberID] = staged
	return rec, nil
}

func (m *Memory) SettleExternal(ctx context.Context, memberID int64, track cycle.Track, amount decimal.Decimal, reference string, date time.Time) (*models.Contribution, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prior, ok := m.byReference[reference]; ok {
		return prior, true, nil
	}
	if track != cycle.TrackPersonal && m.poolAccountID == 0 {
		return nil, false, ErrPoolAccountNotConfigured
	}
	member, ok := m.balances[memberID]
	if !ok {
		return nil, false, ErrMemberNotFound
	}

	staged := snapshot(member)
	staged.WalletBalance = staged.WalletBalance.Add(amount)
	var stagedPool *models.BalanceSnapshot
	switch track {
	case cycle.TrackPooled, cycle.TrackFee:
		pool, ok := m.balances[m.poolAccountID]
		if !ok {
			return nil, false, ErrPoolAccountNotConfigured
		}
		stagedPool = snapshot(pool)
		staged.WalletBalance = staged.WalletBalance.Sub(amount)
		stagedPool.WalletBalance = stagedPool.WalletBalance.Add(amount)
		if track == cycle.TrackPooled {
			staged.ICABalance = staged.ICABalance.Add(amount)
		}
	case cycle.TrackPersonal:
		staged.PiggyBalance = staged.PiggyBalance.Add(amount)
	}

	rec := newRecord(memberID, track, amount, date, "external settlement")
	rec.PaymentReference = reference
	if err := m.append(rec); err != nil {
		return nil, false, err
	}
	m.balances[memberID] = staged
	if stagedPool != nil {
		m.balances[m.poolAccountID] = stagedPool
	}
	return rec, false, nil
}

func (m *Memory) ApplyAccrual(ctx context.Context, memberID int64, interest decimal.Decimal, date time.Time) (*models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member, ok := m.balances[memberID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	staged := snapshot(member)
	staged.ICABalance = staged.ICABalance.Add(interest)

	rec := newRecord(memberID, cycle.TrackPooled, decimal.Zero, date, "interest accrual")
	rec.InterestEarned = interest
	if err := m.append(rec); err != nil {
		return nil, err
	}
	m.balances[memberID] = staged
	return rec, nil
}

func (m *Memory) FindByReference(ctx context.Context, reference string) (*models.Contribution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.byReference[reference]; ok {
		return rec, nil
	}
	return nil, ErrNotFound
}

func (m *Memory) PooledBalances(ctx context.Context) ([]models.PooledBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var balances []models.PooledBalance
	for id, b := range m.balances {
		if id == m.poolAccountID || !b.ICABalance.IsPositive() {
			continue
		}
		balances = append(balances, models.PooledBalance{MemberID: id, Balance: b.ICABalance})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].MemberID < balances[j].MemberID })
	return balances, nil
}

func (m *Memory) Balances(ctx context.Context, memberID int64) (*models.BalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[memberID]
	if !ok {
		return nil, ErrMemberNotFound
	}
	return snapshot(b), nil
}

// Records returns a copy of the append-only record list.
func (m *Memory) Records() []*models.Contribution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Contribution, len(m.records))
	copy(out, m.records)
	return out
}
