package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/punchamoorthee/mymoney/internal/domain"
)

// newTestPostgres connects to TEST_DB_SOURCE and resets the schema. The
// tests are skipped without it.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DB_SOURCE")
	if dsn == "" {
		t.Skip("TEST_DB_SOURCE not set")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresStore() error: %v", err)
	}
	t.Cleanup(s.Close)

	for _, table := range []string{"bank_transaction_schedulers", "bank_transactions", "bank_transaction_tags", "bank_account_owners", "bank_accounts"} {
		if _, err := s.Db.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			t.Fatalf("drop %s: %v", table, err)
		}
	}
	if err := Migrate(ctx, s.Db); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	return s
}

func TestPostgres_RunningBalances(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := &domain.Account{Label: "Checking", Currency: "EUR", Owners: []int64{1}}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	d := day(2015, 5, 19)
	var ids []int64
	for _, amount := range []string{"5", "-3", "2"} {
		tx := insert(t, s, domain.Transaction{AccountID: a.ID, Label: "row", Date: d, Amount: dec(amount), Currency: "EUR"})
		ids = append(ids, tx.ID)
	}

	rows, err := s.FindTransactions(ctx, TransactionQuery{AccountID: a.ID, WithBalances: true})
	if err != nil {
		t.Fatalf("FindTransactions() error: %v", err)
	}
	want := map[int64]string{ids[0]: "5", ids[1]: "2", ids[2]: "4"}
	for _, r := range rows {
		if r.TotalBalance == nil || !r.TotalBalance.Equal(dec(want[r.ID])) {
			t.Errorf("total_balance(%d) = %v, want %s", r.ID, r.TotalBalance, want[r.ID])
		}
		if r.ReconciledBalance != nil {
			t.Errorf("reconciled_balance(%d) = %v, want nil", r.ID, r.ReconciledBalance)
		}
	}
}

func TestPostgres_InTxRollback(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := &domain.Account{Label: "Checking", Currency: "EUR", Owners: []int64{1}}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	err := s.InTx(ctx, func(q Querier) error {
		insert(t, q, domain.Transaction{AccountID: a.ID, Label: "x", Date: day(2015, 5, 1), Amount: dec("5"), Currency: "EUR"})
		if err := q.IncrementBalance(ctx, a.ID, dec("5")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	if n, _ := s.CountTransactions(ctx, TransactionQuery{AccountID: a.ID}); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
	if b, _ := s.GetBalance(ctx, a.ID); !b.IsZero() {
		t.Errorf("balance = %v, want 0", b)
	}
}

func TestPostgres_NotFound(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	if _, err := s.GetAccount(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetAccount() error = %v, want ErrNotFound", err)
	}
	tx := domain.Transaction{AccountID: 999, Label: "x", Date: day(2015, 5, 1), Amount: dec("1"),
		Currency: "EUR", Status: domain.StatusActive, PaymentMethod: domain.PaymentCash}
	if err := s.InsertTransaction(ctx, &tx); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("InsertTransaction() error = %v, want ErrNotFound", err)
	}
}

func TestPostgres_OwnersAndOrphans(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	shared := &domain.Account{Label: "Shared", Currency: "EUR", Owners: []int64{1, 2}}
	own := &domain.Account{Label: "Own", Currency: "EUR", Owners: []int64{1}}
	for _, a := range []*domain.Account{shared, own} {
		if err := s.CreateAccount(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.GetAccount(ctx, shared.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Owners) != 2 {
		t.Errorf("owners = %v, want [1 2]", got.Owners)
	}

	if _, err := s.RemoveOwner(ctx, 1); err != nil {
		t.Fatal(err)
	}
	n, err := s.DeleteOrphanAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}

// updateAmount rewrites the amount of row id the way the ledger does: read the
// previous row, write the new one, move the balance by the difference.
func updateAmount(ctx context.Context, s *PostgresStore, accountID, id int64, amount string, hold time.Duration, locked chan<- struct{}) error {
	return s.InTx(ctx, func(q Querier) error {
		prev, err := q.GetTransactionForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if locked != nil {
			close(locked)
		}
		time.Sleep(hold)

		next := *prev
		next.Amount = dec(amount)
		if err := q.UpdateTransaction(ctx, &next); err != nil {
			return err
		}
		return q.IncrementBalance(ctx, accountID, next.Amount.Sub(prev.Amount))
	})
}

func TestPostgres_ConcurrentUpdatesSerialize(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := &domain.Account{Label: "Checking", Currency: "EUR", Owners: []int64{1}}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	tx := insert(t, s, domain.Transaction{AccountID: a.ID, Label: "row", Date: day(2015, 5, 1), Amount: dec("10"), Currency: "EUR"})
	if err := s.IncrementBalance(ctx, a.ID, dec("10")); err != nil {
		t.Fatal(err)
	}

	// The second writer starts while the first one holds the row.
	locked := make(chan struct{})
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- updateAmount(ctx, s, a.ID, tx.ID, "20", 200*time.Millisecond, locked)
	}()
	<-locked
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- updateAmount(ctx, s, a.ID, tx.ID, "30", 0, nil)
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update error: %v", err)
		}
	}

	stored, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Amount.Equal(dec("30")) {
		t.Errorf("amount = %v, want 30", stored.Amount)
	}
	balance, err := s.GetBalance(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !balance.Equal(stored.Amount) {
		t.Errorf("balance = %v, want %v", balance, stored.Amount)
	}
}

func TestPostgres_SchedulerRowLock(t *testing.T) {
	s := newTestPostgres(t)
	ctx := context.Background()

	a := &domain.Account{Label: "Checking", Currency: "EUR", Owners: []int64{1}}
	if err := s.CreateAccount(ctx, a); err != nil {
		t.Fatal(err)
	}
	sc := &domain.Scheduler{AccountID: a.ID, Label: "rent", Date: day(2015, 5, 1), Amount: dec("-600"), Currency: "EUR",
		Status: domain.StatusActive, PaymentMethod: domain.PaymentCash, Type: domain.SchedulerMonthly, State: domain.StateWaiting}
	if err := s.InsertScheduler(ctx, sc); err != nil {
		t.Fatal(err)
	}

	locked := make(chan struct{})
	done := make(chan time.Time, 1)
	go func() {
		_ = s.InTx(ctx, func(q Querier) error {
			cur, err := q.GetSchedulerForUpdate(ctx, sc.ID)
			if err != nil {
				return err
			}
			close(locked)
			time.Sleep(200 * time.Millisecond)
			cur.State = domain.StateFinished
			return q.UpdateScheduler(ctx, cur)
		})
		done <- time.Now()
	}()
	<-locked

	var state domain.SchedulerState
	err := s.InTx(ctx, func(q Querier) error {
		cur, err := q.GetSchedulerForUpdate(ctx, sc.ID)
		if err != nil {
			return err
		}
		state = cur.State
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	<-done
	if state != domain.StateFinished {
		t.Errorf("state read under lock = %q, want finished", state)
	}
}
