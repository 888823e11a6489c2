package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

var errInjected = errors.New("injected failure")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// faultyStore fails chosen operations inside InTx and records the rows
// read for update.
type faultyStore struct {
	*store.MemoryStore
	failIncrement bool
	failLabel     string

	lockedTransactions []int64
	lockedSchedulers   []int64
}

func (s *faultyStore) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	return s.MemoryStore.InTx(ctx, func(q store.Querier) error {
		return fn(&faultyQuerier{Querier: q, store: s})
	})
}

type faultyQuerier struct {
	store.Querier
	store *faultyStore
}

func (q *faultyQuerier) IncrementBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	if q.store.failIncrement {
		return errInjected
	}
	return q.Querier.IncrementBalance(ctx, accountID, delta)
}

func (q *faultyQuerier) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	if q.store.failLabel != "" && t.Label == q.store.failLabel {
		return errInjected
	}
	return q.Querier.InsertTransaction(ctx, t)
}

func (q *faultyQuerier) GetTransactionForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	q.store.lockedTransactions = append(q.store.lockedTransactions, id)
	return q.Querier.GetTransactionForUpdate(ctx, id)
}

func (q *faultyQuerier) GetSchedulerForUpdate(ctx context.Context, id int64) (*domain.Scheduler, error) {
	q.store.lockedSchedulers = append(q.store.lockedSchedulers, id)
	return q.Querier.GetSchedulerForUpdate(ctx, id)
}

type fixture struct {
	store      *faultyStore
	ledger     *LedgerService
	schedulers *SchedulerService
	accounts   *AccountService
	tags       *TagService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := &faultyStore{MemoryStore: store.NewMemoryStore()}
	ledger := NewLedgerService(s, time.Monday, nil)
	return &fixture{
		store:      s,
		ledger:     ledger,
		schedulers: NewSchedulerService(s, ledger, time.Monday, nil),
		accounts:   NewAccountService(s, nil),
		tags:       NewTagService(s),
	}
}

func (f *fixture) account(t *testing.T, initial string) *domain.Account {
	t.Helper()
	a := &domain.Account{Label: "Checking", Currency: "EUR", BalanceInitial: dec(initial)}
	if err := f.accounts.Create(context.Background(), 1, a); err != nil {
		t.Fatalf("Create account error: %v", err)
	}
	return a
}

// checkInvariant compares the stored balance with the initial balance
// plus every row that counts.
func (f *fixture) checkInvariant(t *testing.T, a *domain.Account) {
	t.Helper()
	ctx := context.Background()
	stored, err := f.store.GetAccount(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	sum, err := f.store.SumTransactions(ctx, store.TransactionQuery{
		AccountID: a.ID,
		Statuses:  domain.BalanceStatuses(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if want := stored.BalanceInitial.Add(sum); !stored.Balance.Equal(want) {
		t.Errorf("stored balance = %v, want %v", stored.Balance, want)
	}
	if !a.Balance.Equal(stored.Balance) {
		t.Errorf("in-memory balance = %v, stored %v", a.Balance, stored.Balance)
	}
}
