package service

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
)

func intPtr(n int) *int { return &n }

func (f *fixture) scheduler(t *testing.T, a *domain.Account, label, amount string, date time.Time, typ domain.SchedulerType, recurrence *int) *domain.Scheduler {
	t.Helper()
	sc := &domain.Scheduler{Label: label, Amount: dec(amount), Date: date, Type: typ, Recurrence: recurrence}
	if err := f.schedulers.Create(context.Background(), a, sc, false); err != nil {
		t.Fatalf("Create scheduler error: %v", err)
	}
	return sc
}

func TestClone_MonthlyAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2015, 5, 19, 10, 0, 0, 0, time.UTC)
	f.schedulers.SetClock(func() time.Time { return now })
	a := f.account(t, "0")

	sc := f.scheduler(t, a, "rent", "-600", day(2015, 1, 31), domain.SchedulerMonthly, nil)
	sc.Reconciled = true
	if err := f.store.UpdateScheduler(ctx, sc); err != nil {
		t.Fatal(err)
	}

	if err := f.schedulers.Clone(ctx, sc); err != nil {
		t.Fatalf("Clone() error: %v", err)
	}

	stored, err := f.store.GetScheduler(ctx, sc.ID)
	if err != nil {
		t.Fatalf("scheduler without recurrence deleted: %v", err)
	}
	if !stored.Date.Equal(day(2015, 2, 28)) {
		t.Errorf("date = %v, want 2015-02-28", stored.Date)
	}
	if stored.State != domain.StateFinished {
		t.Errorf("state = %q, want finished", stored.State)
	}
	if stored.LastAction == nil || !stored.LastAction.Equal(now) {
		t.Errorf("last_action = %v, want %v", stored.LastAction, now)
	}

	rows, _ := f.store.FindTransactions(ctx, store.TransactionQuery{AccountID: a.ID})
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	cloned := rows[0]
	if !cloned.Scheduled || cloned.Reconciled {
		t.Errorf("scheduled = %v, reconciled = %v, want true, false", cloned.Scheduled, cloned.Reconciled)
	}
	if !cloned.Date.Equal(day(2015, 2, 28)) {
		t.Errorf("clone date = %v, want 2015-02-28", cloned.Date)
	}

	a2, _ := f.store.GetAccount(ctx, a.ID)
	if !a2.Balance.Equal(dec("-600")) {
		t.Errorf("balance = %v, want -600", a2.Balance)
	}
}

func TestClone_WeeklyAdvances(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "0")
	sc := f.scheduler(t, a, "groceries", "-50", day(2015, 5, 4), domain.SchedulerWeekly, nil)
	if err := f.schedulers.Clone(context.Background(), sc); err != nil {
		t.Fatal(err)
	}
	if !sc.Date.Equal(day(2015, 5, 11)) {
		t.Errorf("date = %v, want 2015-05-11", sc.Date)
	}
}

func TestClone_RecurrenceExhaustion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "0")

	once := f.scheduler(t, a, "once", "10", day(2015, 5, 1), domain.SchedulerMonthly, intPtr(1))
	if err := f.schedulers.Clone(ctx, once); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.GetScheduler(ctx, once.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("exhausted scheduler still present: %v", err)
	}

	twice := f.scheduler(t, a, "twice", "10", day(2015, 5, 1), domain.SchedulerMonthly, intPtr(2))
	if err := f.schedulers.Clone(ctx, twice); err != nil {
		t.Fatal(err)
	}
	stored, err := f.store.GetScheduler(ctx, twice.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Recurrence == nil || *stored.Recurrence != 1 {
		t.Errorf("recurrence = %v, want 1", stored.Recurrence)
	}
}

func TestCloneAwaiting_FailureIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "0")

	first := f.scheduler(t, a, "first", "1", day(2015, 5, 1), domain.SchedulerMonthly, intPtr(5))
	second := f.scheduler(t, a, "second", "2", day(2015, 5, 2), domain.SchedulerMonthly, intPtr(5))
	third := f.scheduler(t, a, "third", "3", day(2015, 5, 3), domain.SchedulerMonthly, intPtr(5))
	f.store.failLabel = "second"

	res, err := f.schedulers.CloneAwaiting(ctx, 10)
	if err != nil {
		t.Fatalf("CloneAwaiting() error: %v", err)
	}
	if res != (CloneResult{Processed: 3, Cloned: 2, Failed: 1}) {
		t.Errorf("result = %+v, want 3 processed, 2 cloned, 1 failed", res)
	}

	for _, sc := range []*domain.Scheduler{first, third} {
		got, _ := f.store.GetScheduler(ctx, sc.ID)
		if got.State != domain.StateFinished {
			t.Errorf("%s state = %q, want finished", sc.Label, got.State)
		}
	}

	failed, _ := f.store.GetScheduler(ctx, second.ID)
	if failed.State != domain.StateFailed {
		t.Errorf("state = %q, want failed", failed.State)
	}
	if !failed.Date.Equal(second.Date) {
		t.Errorf("date = %v, want %v", failed.Date, second.Date)
	}
	if failed.Recurrence == nil || *failed.Recurrence != 5 {
		t.Errorf("recurrence = %v, want 5", failed.Recurrence)
	}

	n, _ := f.store.CountTransactions(ctx, store.TransactionQuery{AccountID: a.ID})
	if n != 2 {
		t.Errorf("transactions = %d, want 2", n)
	}
	a2, _ := f.store.GetAccount(ctx, a.ID)
	if !a2.Balance.Equal(dec("4")) {
		t.Errorf("balance = %v, want 4", a2.Balance)
	}

	// Failed templates wait for a manual reset.
	f.store.failLabel = ""
	res, _ = f.schedulers.CloneAwaiting(ctx, 10)
	if res.Processed != 0 {
		t.Errorf("processed = %d, want 0", res.Processed)
	}
	if _, err := f.schedulers.Reset(ctx, a, second.ID); err != nil {
		t.Fatal(err)
	}
	res, _ = f.schedulers.CloneAwaiting(ctx, 10)
	if res.Cloned != 1 {
		t.Errorf("cloned after reset = %d, want 1", res.Cloned)
	}
}

func TestAwaiting_ElapsedPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "0")

	f.schedulers.SetClock(func() time.Time { return time.Date(2015, 5, 19, 12, 0, 0, 0, time.UTC) })
	sc := f.scheduler(t, a, "rent", "-600", day(2015, 5, 19), domain.SchedulerMonthly, nil)
	if err := f.schedulers.Clone(ctx, sc); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		now  time.Time
		want int
	}{
		{"month elapsed", day(2015, 6, 2), 1},
		{"same month", day(2015, 5, 20), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.schedulers.SetClock(func() time.Time { return tt.now })
			got, err := f.schedulers.Awaiting(ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != tt.want {
				t.Errorf("len(awaiting) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestScheduler_UpdateKeepsLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "0")
	sc := f.scheduler(t, a, "rent", "-600", day(2015, 5, 1), domain.SchedulerMonthly, nil)
	if err := f.schedulers.Clone(ctx, sc); err != nil {
		t.Fatal(err)
	}

	edit := *sc
	edit.Label = "new rent"
	edit.State = domain.StateWaiting
	edit.LastAction = nil
	if err := f.schedulers.Update(ctx, a, &edit); err != nil {
		t.Fatal(err)
	}
	got, _ := f.store.GetScheduler(ctx, sc.ID)
	if got.Label != "new rent" || got.State != domain.StateFinished || got.LastAction == nil {
		t.Errorf("scheduler = %+v, want label changed and lifecycle kept", got)
	}
}

func TestScheduler_Summary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedulers.SetClock(func() time.Time { return time.Date(2015, 5, 19, 12, 0, 0, 0, time.UTC) })
	a := f.account(t, "0")

	f.scheduler(t, a, "salary", "2000", day(2015, 5, 1), domain.SchedulerMonthly, nil)
	f.scheduler(t, a, "rent", "-600", day(2015, 5, 1), domain.SchedulerMonthly, nil)
	f.scheduler(t, a, "food", "-50", day(2015, 5, 18), domain.SchedulerWeekly, nil)
	f.ledger.Create(ctx, a, newTx("cinema", "-20", day(2015, 5, 19)))

	summary, err := f.schedulers.Summary(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2", len(summary.Lines))
	}
	monthly := summary.Lines[0]
	if monthly.Type != domain.SchedulerMonthly {
		t.Fatalf("lines[0].Type = %q, want monthly", monthly.Type)
	}
	if !monthly.Remaining.Equal(dec("1380")) {
		t.Errorf("monthly remaining = %v, want 1380", monthly.Remaining)
	}
	weekly := summary.Lines[1]
	if !weekly.Used.Equal(dec("-20")) || !weekly.Remaining.Equal(dec("-70")) {
		t.Errorf("weekly used = %v, remaining = %v, want -20, -70", weekly.Used, weekly.Remaining)
	}
	if !summary.Total.Equal(dec("1350")) {
		t.Errorf("total = %v, want 1350", summary.Total)
	}
}

func TestClone_WorksOnLockedRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedulers.SetClock(func() time.Time { return time.Date(2015, 5, 19, 12, 0, 0, 0, time.UTC) })
	a := f.account(t, "0")

	sc := f.scheduler(t, a, "rent", "-600", day(2015, 5, 1), domain.SchedulerMonthly, nil)
	fromSweep := *sc
	fromRequest := *sc
	if err := f.schedulers.Clone(ctx, sc); err != nil {
		t.Fatal(err)
	}

	// A sweep holding the template as it was before the clone leaves it alone.
	if err := f.schedulers.clone(ctx, &fromSweep, true); !errors.Is(err, errNotDue) {
		t.Fatalf("clone(due only) error = %v, want errNotDue", err)
	}
	if n, _ := f.store.CountTransactions(ctx, store.TransactionQuery{AccountID: a.ID}); n != 1 {
		t.Errorf("transactions = %d, want 1", n)
	}

	// An explicit clone advances from the stored date, not the stale one.
	if err := f.schedulers.Clone(ctx, &fromRequest); err != nil {
		t.Fatal(err)
	}
	if !fromRequest.Date.Equal(day(2015, 7, 1)) {
		t.Errorf("date = %v, want 2015-07-01", fromRequest.Date)
	}
	rows, _ := f.store.FindTransactions(ctx, store.TransactionQuery{AccountID: a.ID, Order: store.OrderDateAsc})
	if len(rows) != 2 || !rows[0].Date.Equal(day(2015, 6, 1)) || !rows[1].Date.Equal(day(2015, 7, 1)) {
		t.Errorf("rows = %+v, want clones dated 2015-06-01 and 2015-07-01", rows)
	}
	if want := []int64{sc.ID, sc.ID, sc.ID}; !slices.Equal(f.store.lockedSchedulers, want) {
		t.Errorf("locked schedulers = %v, want %v", f.store.lockedSchedulers, want)
	}

	a2, _ := f.store.GetAccount(ctx, a.ID)
	if !a2.Balance.Equal(dec("-1200")) {
		t.Errorf("balance = %v, want -1200", a2.Balance)
	}
}

func TestCloneAwaiting_SkipsHandledTemplates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.schedulers.SetClock(func() time.Time { return time.Date(2015, 5, 19, 12, 0, 0, 0, time.UTC) })
	a := f.account(t, "0")
	sc := f.scheduler(t, a, "rent", "-600", day(2015, 5, 1), domain.SchedulerMonthly, nil)
	if err := f.schedulers.Clone(ctx, sc); err != nil {
		t.Fatal(err)
	}

	res, err := f.schedulers.CloneAwaiting(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res != (CloneResult{}) {
		t.Errorf("result = %+v, want nothing processed", res)
	}
}

func TestScheduler_CreateStartNowKeepsFailedTemplate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "0")
	f.store.failLabel = "rent"

	sc := &domain.Scheduler{Label: "rent", Amount: dec("-600"), Date: day(2015, 5, 1)}
	if err := f.schedulers.Create(ctx, a, sc, true); err != nil {
		t.Fatalf("Create() error = %v, want nil", err)
	}
	if sc.ID == 0 || sc.State != domain.StateFailed {
		t.Errorf("scheduler = %+v, want stored and failed", sc)
	}
	stored, err := f.store.GetScheduler(ctx, sc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State != domain.StateFailed {
		t.Errorf("stored state = %q, want failed", stored.State)
	}
	if n, _ := f.store.CountTransactions(ctx, store.TransactionQuery{AccountID: a.ID}); n != 0 {
		t.Errorf("transactions = %d, want 0", n)
	}
	if !a.Balance.IsZero() {
		t.Errorf("balance = %v, want 0", a.Balance)
	}
}
