package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mdbxhq/mdbx-backend/internal/cycle"
)

const poolID = int64(99)

var testDate = time.Date(2024, time.March, 8, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestLedger(t *testing.T, memberID int64, wallet string) *Memory {
	t.Helper()
	m := NewMemory(poolID)
	m.SeedMember(memberID, dec(wallet))
	return m
}

func mustBalances(t *testing.T, m *Memory, memberID int64) (wallet, ica, piggy decimal.Decimal) {
	t.Helper()
	b, err := m.Balances(context.Background(), memberID)
	if err != nil {
		t.Fatalf("Balances(%d): %v", memberID, err)
	}
	return b.WalletBalance, b.ICABalance, b.PiggyBalance
}

func TestTransferToPoolConservation(t *testing.T) {
	m := newTestLedger(t, 1, "500")
	ctx := context.Background()

	rec, err := m.TransferToPool(ctx, 1, dec("200"), testDate, "monthly ICA")
	if err != nil {
		t.Fatalf("TransferToPool: %v", err)
	}
	if rec.Track != cycle.TrackPooled || rec.Status != "completed" {
		t.Fatalf("record = %s/%s, want POOLED/completed", rec.Track, rec.Status)
	}
	if rec.Year != 2024 || rec.Month != 3 {
		t.Fatalf("record denormalized date = %d/%d, want 2024/3", rec.Year, rec.Month)
	}

	wallet, ica, _ := mustBalances(t, m, 1)
	poolWallet, _, _ := mustBalances(t, m, poolID)
	if !wallet.Equal(dec("300")) {
		t.Errorf("member wallet = %s, want 300", wallet)
	}
	if !ica.Equal(dec("200")) {
		t.Errorf("member ICA = %s, want 200", ica)
	}
	if !poolWallet.Equal(dec("200")) {
		t.Errorf("pool wallet = %s, want 200", poolWallet)
	}
	// Money moved, none created: member wallet + pool wallet is unchanged.
	if total := wallet.Add(poolWallet); !total.Equal(dec("500")) {
		t.Errorf("wallet sum = %s, want 500", total)
	}
}

func TestTransferToPoolInsufficientFunds(t *testing.T) {
	m := newTestLedger(t, 1, "500")

	_, err := m.TransferToPool(context.Background(), 1, dec("1000"), testDate, "")
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	wallet, ica, piggy := mustBalances(t, m, 1)
	poolWallet, _, _ := mustBalances(t, m, poolID)
	if !wallet.Equal(dec("500")) || !ica.IsZero() || !piggy.IsZero() || !poolWallet.IsZero() {
		t.Fatalf("balances changed after rejected transfer: wallet=%s ica=%s piggy=%s pool=%s",
			wallet, ica, piggy, poolWallet)
	}
	if n := len(m.Records()); n != 0 {
		t.Fatalf("got %d records, want 0", n)
	}
}

func TestTrackPersonalLeavesWalletAlone(t *testing.T) {
	m := newTestLedger(t, 1, "500")

	rec, err := m.TrackPersonal(context.Background(), 1, dec("150"), testDate, "piggy")
	if err != nil {
		t.Fatalf("TrackPersonal: %v", err)
	}
	if rec.Track != cycle.TrackPersonal {
		t.Fatalf("track = %s, want PERSONAL", rec.Track)
	}
	wallet, ica, piggy := mustBalances(t, m, 1)
	if !wallet.Equal(dec("500")) {
		t.Errorf("wallet = %s, want unchanged 500", wallet)
	}
	if !piggy.Equal(dec("150")) {
		t.Errorf("piggy = %s, want 150", piggy)
	}
	if !ica.IsZero() {
		t.Errorf("ICA = %s, want 0", ica)
	}
}

func TestTransferFee(t *testing.T) {
	m := newTestLedger(t, 1, "500")

	rec, err := m.TransferFee(context.Background(), 1, dec("50"), testDate, "platform fee")
	if err != nil {
		t.Fatalf("TransferFee: %v", err)
	}
	if rec.Track != cycle.TrackFee {
		t.Fatalf("track = %s, want FEE", rec.Track)
	}
	wallet, ica, _ := mustBalances(t, m, 1)
	poolWallet, _, _ := mustBalances(t, m, poolID)
	if !wallet.Equal(dec("450")) || !poolWallet.Equal(dec("50")) {
		t.Errorf("wallet=%s pool=%s, want 450/50", wallet, poolWallet)
	}
	if !ica.IsZero() {
		t.Errorf("fee transfer grew ICA balance to %s", ica)
	}
}

func TestPoolAccountNotConfigured(t *testing.T) {
	m := NewMemory(0)
	m.SeedMember(1, dec("500"))

	if _, err := m.TransferToPool(context.Background(), 1, dec("10"), testDate, ""); !errors.Is(err, ErrPoolAccountNotConfigured) {
		t.Fatalf("TransferToPool err = %v, want ErrPoolAccountNotConfigured", err)
	}
	if _, err := m.TransferFee(context.Background(), 1, dec("10"), testDate, ""); !errors.Is(err, ErrPoolAccountNotConfigured) {
		t.Fatalf("TransferFee err = %v, want ErrPoolAccountNotConfigured", err)
	}
	// The personal track has no pool counterparty and still works.
	if _, err := m.TrackPersonal(context.Background(), 1, dec("10"), testDate, ""); err != nil {
		t.Fatalf("TrackPersonal: %v", err)
	}
}

func TestSettleExternalIdempotent(t *testing.T) {
	m := newTestLedger(t, 1, "0")
	ctx := context.Background()

	first, dup, err := m.SettleExternal(ctx, 1, cycle.TrackPooled, dec("300"), "ref-abc", testDate)
	if err != nil || dup {
		t.Fatalf("first settle: rec=%v dup=%v err=%v", first, dup, err)
	}
	second, dup, err := m.SettleExternal(ctx, 1, cycle.TrackPooled, dec("300"), "ref-abc", testDate)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if !dup || second.ID != first.ID {
		t.Fatalf("second settle: dup=%v id=%d, want duplicate of id=%d", dup, second.ID, first.ID)
	}
	// Exactly one credit: external funds enter the wallet then move on to
	// the pool, so the wallet nets to zero and the pool holds the amount.
	wallet, ica, _ := mustBalances(t, m, 1)
	poolWallet, _, _ := mustBalances(t, m, poolID)
	if !wallet.IsZero() || !ica.Equal(dec("300")) || !poolWallet.Equal(dec("300")) {
		t.Fatalf("balances after duplicate settle: wallet=%s ica=%s pool=%s", wallet, ica, poolWallet)
	}
	if n := len(m.Records()); n != 1 {
		t.Fatalf("got %d records, want 1", n)
	}
}

func TestSettleExternalPersonalKeepsFundsInWallet(t *testing.T) {
	m := newTestLedger(t, 1, "0")

	_, _, err := m.SettleExternal(context.Background(), 1, cycle.TrackPersonal, dec("120"), "ref-p", testDate)
	if err != nil {
		t.Fatalf("SettleExternal: %v", err)
	}
	wallet, _, piggy := mustBalances(t, m, 1)
	if !wallet.Equal(dec("120")) || !piggy.Equal(dec("120")) {
		t.Fatalf("wallet=%s piggy=%s, want 120/120", wallet, piggy)
	}
}

func TestApplyAccrual(t *testing.T) {
	m := newTestLedger(t, 1, "2000")
	ctx := context.Background()
	if _, err := m.TransferToPool(ctx, 1, dec("2000"), testDate, ""); err != nil {
		t.Fatalf("seed transfer: %v", err)
	}

	rec, err := m.ApplyAccrual(ctx, 1, dec("200"), testDate)
	if err != nil {
		t.Fatalf("ApplyAccrual: %v", err)
	}
	if !rec.Amount.IsZero() {
		t.Errorf("accrual principal = %s, want 0", rec.Amount)
	}
	if !rec.InterestEarned.Equal(dec("200")) {
		t.Errorf("interest earned = %s, want 200", rec.InterestEarned)
	}
	_, ica, _ := mustBalances(t, m, 1)
	if !ica.Equal(dec("2200")) {
		t.Errorf("ICA after accrual = %s, want 2200", ica)
	}
	// History stays append-only: the original transfer row is untouched.
	records := m.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[0].Amount.Equal(dec("2000")) || !records[0].InterestEarned.IsZero() {
		t.Fatalf("original record mutated: amount=%s interest=%s", records[0].Amount, records[0].InterestEarned)
	}
}

func TestFailedAppendLeavesBalancesUntouched(t *testing.T) {
	m := newTestLedger(t, 1, "500")
	m.failAppend = errors.New("append rejected")

	if _, err := m.TransferToPool(context.Background(), 1, dec("200"), testDate, ""); err == nil {
		t.Fatal("expected append failure to surface")
	}
	wallet, ica, _ := mustBalances(t, m, 1)
	poolWallet, _, _ := mustBalances(t, m, poolID)
	if !wallet.Equal(dec("500")) || !ica.IsZero() || !poolWallet.IsZero() {
		t.Fatalf("orphaned mutation after failed append: wallet=%s ica=%s pool=%s", wallet, ica, poolWallet)
	}

	if _, err := m.TrackPersonal(context.Background(), 1, dec("50"), testDate, ""); err == nil {
		t.Fatal("expected append failure to surface")
	}
	if _, _, piggy := mustBalances(t, m, 1); !piggy.IsZero() {
		t.Fatalf("orphaned personal mutation after failed append: piggy=%s", piggy)
	}
}

func TestPooledBalancesExcludesPoolAccount(t *testing.T) {
	m := newTestLedger(t, 1, "1000")
	m.SeedMember(2, dec("1000"))
	m.SeedMember(3, dec("1000"))
	ctx := context.Background()
	if _, err := m.TransferToPool(ctx, 1, dec("400"), testDate, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := m.TransferToPool(ctx, 3, dec("100"), testDate, ""); err != nil {
		t.Fatal(err)
	}

	balances, err := m.PooledBalances(ctx)
	if err != nil {
		t.Fatalf("PooledBalances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("got %d pooled balances, want 2", len(balances))
	}
	if balances[0].MemberID != 1 || !balances[0].Balance.Equal(dec("400")) {
		t.Errorf("balances[0] = %+v", balances[0])
	}
	if balances[1].MemberID != 3 || !balances[1].Balance.Equal(dec("100")) {
		t.Errorf("balances[1] = %+v", balances[1])
	}
}

func TestMemberNotFound(t *testing.T) {
	m := NewMemory(poolID)
	if _, err := m.TransferToPool(context.Background(), 42, dec("10"), testDate, ""); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("err = %v, want ErrMemberNotFound", err)
	}
	if _, err := m.Balances(context.Background(), 42); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("Balances err = %v, want ErrMemberNotFound", err)
	}
	if _, err := m.FindByReference(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("FindByReference err = %v, want ErrNotFound", err)
	}
}
