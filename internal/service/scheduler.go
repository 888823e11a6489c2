package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/mymoney/internal/dates"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

var clonesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mymoney_scheduler_clones_total",
	Help: "Scheduler clones attempted, labeled by result",
}, []string{"result"})

// SchedulerService clones recurring templates into transactions.
type SchedulerService struct {
	store     store.Store
	ledger    *LedgerService
	weekStart time.Weekday
	log       *slog.Logger

	// now is replaced in tests.
	now func() time.Time
}

func NewSchedulerService(s store.Store, ledger *LedgerService, weekStart time.Weekday, logger *slog.Logger) *SchedulerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchedulerService{
		store:     s,
		ledger:    ledger,
		weekStart: weekStart,
		log:       logger,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for awaiting selection and
// last_action stamps.
func (s *SchedulerService) SetClock(now func() time.Time) {
	s.now = now
}

// advance moves d forward by one period of typ.
func advance(d time.Time, typ domain.SchedulerType) time.Time {
	if typ == domain.SchedulerWeekly {
		return dates.AddWeeks(d, 1)
	}
	return dates.AddMonths(d, 1)
}

func granularityOf(typ domain.SchedulerType) dates.Granularity {
	if typ == domain.SchedulerWeekly {
		return dates.Week
	}
	return dates.Month
}

func schedulerOf(ctx context.Context, q store.Querier, account *domain.Account, id int64) (*domain.Scheduler, error) {
	sc, err := q.GetScheduler(ctx, id)
	if err != nil {
		return nil, err
	}
	if sc.AccountID != account.ID {
		return nil, fmt.Errorf("scheduler %d: %w", id, domain.ErrNotFound)
	}
	return sc, nil
}

// Create stores a new template in the waiting state. With startNow the
// first clone runs right away. A failing first clone does not undo the
// creation: the template is kept in the failed state, reflected in sc.
func (s *SchedulerService) Create(ctx context.Context, account *domain.Account, sc *domain.Scheduler, startNow bool) error {
	sc.ApplyDefaults()
	sc.AccountID = account.ID
	sc.Currency = account.Currency
	sc.State = domain.StateWaiting
	sc.LastAction = nil
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := s.store.InsertScheduler(ctx, sc); err != nil {
		return err
	}

	if startNow {
		defer s.ledger.refresh(ctx, account)
		if err := s.Clone(ctx, sc); err != nil {
			s.log.Warn("first clone failed, scheduler kept", "scheduler_id", sc.ID, "state", sc.State)
		}
	}
	return nil
}

// Update overwrites the editable fields. The clone lifecycle (state and
// last action) is kept.
func (s *SchedulerService) Update(ctx context.Context, account *domain.Account, sc *domain.Scheduler) error {
	sc.ApplyDefaults()
	if err := sc.Validate(); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(q store.Querier) error {
		cur, err := schedulerOf(ctx, q, account, sc.ID)
		if err != nil {
			return err
		}
		sc.AccountID = account.ID
		sc.Currency = account.Currency
		sc.State = cur.State
		sc.LastAction = cur.LastAction
		return q.UpdateScheduler(ctx, sc)
	})
}

// Reset puts a template back in the waiting state so the next sweep
// picks it up. This is how a failed template is retried.
func (s *SchedulerService) Reset(ctx context.Context, account *domain.Account, id int64) (*domain.Scheduler, error) {
	var sc *domain.Scheduler
	err := s.store.InTx(ctx, func(q store.Querier) error {
		var err error
		if sc, err = schedulerOf(ctx, q, account, id); err != nil {
			return err
		}
		sc.State = domain.StateWaiting
		return q.UpdateScheduler(ctx, sc)
	})
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func (s *SchedulerService) Get(ctx context.Context, account *domain.Account, id int64) (*domain.Scheduler, error) {
	return schedulerOf(ctx, s.store, account, id)
}

func (s *SchedulerService) Delete(ctx context.Context, account *domain.Account, id int64) error {
	return s.store.InTx(ctx, func(q store.Querier) error {
		if _, err := schedulerOf(ctx, q, account, id); err != nil {
			return err
		}
		return q.DeleteScheduler(ctx, id)
	})
}

func (s *SchedulerService) List(ctx context.Context, account *domain.Account) ([]domain.Scheduler, error) {
	return s.store.ListSchedulers(ctx, account.ID)
}

// Awaiting returns the templates due for cloning, oldest date first.
// A limit of 0 returns them all.
func (s *SchedulerService) Awaiting(ctx context.Context, limit int) ([]domain.Scheduler, error) {
	now := s.now()
	monthStart, _ := dates.Range(now, dates.Month, s.weekStart)
	weekStart, _ := dates.Range(now, dates.Week, s.weekStart)
	return s.store.AwaitingSchedulers(ctx, store.AwaitingQuery{
		MonthStart: monthStart,
		WeekStart:  weekStart,
		Limit:      limit,
	})
}

// errNotDue reports a template another clone already handled.
var errNotDue = errors.New("scheduler is not due")

// Clone materializes the next transaction of sc and advances or retires
// it, atomically. On failure nothing of the clone is kept, sc is marked
// failed with a separate update and the error is returned. sc reflects
// the stored template on success.
func (s *SchedulerService) Clone(ctx context.Context, sc *domain.Scheduler) error {
	return s.clone(ctx, sc, false)
}

// clone works on the template row locked inside the transaction, never on
// the copy passed in, so two clones of one template run one after the
// other. With dueOnly a template cloned meanwhile is left alone and
// errNotDue is returned.
func (s *SchedulerService) clone(ctx context.Context, sc *domain.Scheduler, dueOnly bool) error {
	var next *domain.Scheduler
	err := s.store.InTx(ctx, func(q store.Querier) error {
		cur, err := q.GetSchedulerForUpdate(ctx, sc.ID)
		if err != nil {
			return err
		}
		if dueOnly && !s.due(cur) {
			return errNotDue
		}
		if err := s.cloneTx(ctx, q, cur); err != nil {
			return err
		}
		next = cur
		return nil
	})
	if dueOnly && (errors.Is(err, errNotDue) || errors.Is(err, domain.ErrNotFound)) {
		return errNotDue
	}
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("scheduler %d: %w", sc.ID, err)
	}
	if err != nil {
		clonesTotal.WithLabelValues("failed").Inc()
		s.log.Error("scheduler clone failed", "scheduler_id", sc.ID, "error", err)

		if markErr := s.store.MarkSchedulerFailed(ctx, sc.ID); markErr != nil {
			s.log.Warn("scheduler state update failed", "scheduler_id", sc.ID, "error", markErr)
		} else {
			sc.State = domain.StateFailed
		}
		return fmt.Errorf("scheduler %d clone failed: %w", sc.ID, err)
	}

	clonesTotal.WithLabelValues("cloned").Inc()
	*sc = *next
	return nil
}

// due reports whether sc belongs to the awaiting selection at the
// service clock.
func (s *SchedulerService) due(sc *domain.Scheduler) bool {
	switch sc.State {
	case domain.StateWaiting:
		return true
	case domain.StateFinished:
		if sc.LastAction == nil {
			return false
		}
		start, _ := dates.Range(s.now(), granularityOf(sc.Type), s.weekStart)
		return sc.LastAction.Before(start)
	}
	return false
}

func (s *SchedulerService) cloneTx(ctx context.Context, q store.Querier, sc *domain.Scheduler) error {
	account, err := q.GetAccount(ctx, sc.AccountID)
	if err != nil {
		return err
	}

	date := advance(sc.Date, sc.Type)
	t := &domain.Transaction{
		Label:         sc.Label,
		Date:          date,
		Amount:        sc.Amount,
		Status:        sc.Status,
		Reconciled:    false,
		PaymentMethod: sc.PaymentMethod,
		Memo:          sc.Memo,
		TagID:         sc.TagID,
		Scheduled:     true,
	}
	if err := applyTransactionWrite(ctx, q, account, t, nil); err != nil {
		return err
	}

	if sc.Recurrence != nil {
		*sc.Recurrence--
		if *sc.Recurrence <= 0 {
			return q.DeleteScheduler(ctx, sc.ID)
		}
	}

	now := s.now()
	sc.Date = date
	sc.LastAction = &now
	sc.State = domain.StateFinished
	return q.UpdateScheduler(ctx, sc)
}

// CloneResult counts the outcome of one sweep.
type CloneResult struct {
	Processed int `json:"processed"`
	Cloned    int `json:"cloned"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// CloneAwaiting clones at most limit awaiting templates one by one. A
// failing template does not stop the sweep.
func (s *SchedulerService) CloneAwaiting(ctx context.Context, limit int) (CloneResult, error) {
	var res CloneResult

	awaiting, err := s.Awaiting(ctx, limit)
	if err != nil {
		return res, fmt.Errorf("awaiting schedulers query failed: %w", err)
	}

	for i := range awaiting {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Processed++
		err := s.clone(ctx, &awaiting[i], true)
		switch {
		case errors.Is(err, errNotDue):
			res.Skipped++
		case err != nil:
			res.Failed++
		default:
			res.Cloned++
		}
	}

	s.log.Info("scheduler sweep done", "processed", res.Processed, "cloned", res.Cloned,
		"failed", res.Failed, "skipped", res.Skipped)
	return res, nil
}

// SummaryLine totals the templates of one type against what was already
// spent by hand during the current period.
type SummaryLine struct {
	Type      domain.SchedulerType `json:"type"`
	Credit    decimal.Decimal      `json:"credit"`
	Debit     decimal.Decimal      `json:"debit"`
	Used      decimal.Decimal      `json:"used"`
	Remaining decimal.Decimal      `json:"remaining"`
	Total     decimal.Decimal      `json:"total"`
}

type Summary struct {
	Lines []SummaryLine   `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

func (s *SchedulerService) Summary(ctx context.Context, account *domain.Account) (*Summary, error) {
	totals, err := s.store.SchedulerTotals(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &Summary{Lines: []SummaryLine{}, Total: decimal.Zero}
	for _, t := range totals {
		used, err := s.ledger.TotalUnscheduledPeriod(ctx, account, granularityOf(t.Type), now)
		if err != nil {
			return nil, err
		}
		line := SummaryLine{
			Type:      t.Type,
			Credit:    t.Credit,
			Debit:     t.Debit,
			Used:      used,
			Remaining: t.Credit.Add(t.Debit).Add(used),
			Total:     t.Credit.Add(t.Debit),
		}
		summary.Lines = append(summary.Lines, line)
		summary.Total = summary.Total.Add(line.Total)
	}
	return summary, nil
}
