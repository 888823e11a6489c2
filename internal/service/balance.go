package service

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/mymoney/internal/dates"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

const PageSize = 50

// CurrentBalance is the balance without the rows dated after today.
func (s *LedgerService) CurrentBalance(ctx context.Context, account *domain.Account, today time.Time) (decimal.Decimal, error) {
	s.refresh(ctx, account)
	future, err := s.store.SumTransactions(ctx, store.TransactionQuery{
		AccountID: account.ID,
		Statuses:  domain.BalanceStatuses(),
		DateAfter: store.Date(today),
	})
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance.Sub(future), nil
}

// ReconciledBalance is the balance without the rows not reconciled yet.
func (s *LedgerService) ReconciledBalance(ctx context.Context, account *domain.Account) (decimal.Decimal, error) {
	s.refresh(ctx, account)
	pending, err := s.store.SumTransactions(ctx, store.TransactionQuery{
		AccountID:  account.ID,
		Statuses:   domain.BalanceStatuses(),
		Reconciled: store.Bool(false),
	})
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance.Sub(pending), nil
}

// TotalUnscheduledPeriod sums the rows entered by hand during the bucket
// holding now. Inactive rows are left out, ignored rows count.
func (s *LedgerService) TotalUnscheduledPeriod(ctx context.Context, account *domain.Account, g dates.Granularity, now time.Time) (decimal.Decimal, error) {
	start, end := dates.DateRange(now, g, s.weekStart)
	return s.store.SumTransactions(ctx, store.TransactionQuery{
		AccountID: account.ID,
		Statuses:  domain.BalanceStatuses(),
		Scheduled: store.Bool(false),
		DateFrom:  store.Date(start),
		DateTo:    store.Date(end),
	})
}

// TransactionFilter holds the list view criteria. Zero fields do not filter.
type TransactionFilter struct {
	Label      string
	DateFrom   *time.Time
	DateTo     *time.Time
	AmountMin  *decimal.Decimal
	AmountMax  *decimal.Decimal
	Statuses   []domain.Status
	Reconciled *bool
	TagIDs     []int64
	Untagged   bool
}

func (f TransactionFilter) Validate() error {
	if f.DateFrom != nil && f.DateTo != nil && f.DateFrom.After(*f.DateTo) {
		return domain.Invalid("date start must be before date end")
	}
	if f.AmountMin != nil && f.AmountMax != nil && f.AmountMin.GreaterThan(*f.AmountMax) {
		return domain.Invalid("amount min must be lower than amount max")
	}
	for _, st := range f.Statuses {
		if !st.Valid() {
			return domain.Invalid("unknown status %q", st)
		}
	}
	return nil
}

func (f TransactionFilter) query(accountID int64) store.TransactionQuery {
	q := store.TransactionQuery{
		AccountID:  accountID,
		Label:      f.Label,
		AmountMin:  f.AmountMin,
		AmountMax:  f.AmountMax,
		Statuses:   f.Statuses,
		Reconciled: f.Reconciled,
		TagIDs:     f.TagIDs,
		Untagged:   f.Untagged,
	}
	if f.DateFrom != nil {
		q.DateFrom = store.Date(*f.DateFrom)
	}
	if f.DateTo != nil {
		q.DateTo = store.Date(*f.DateTo)
	}
	return q
}

type TransactionPage struct {
	Rows    []domain.TransactionRow `json:"rows"`
	Page    int                     `json:"page"`
	Pages   int                     `json:"pages"`
	Count   int                     `json:"count"`
	Balance decimal.Decimal         `json:"balance"`
}

// ListTransactions returns one page of rows, newest first, with their
// running balances computed over the whole account.
func (s *LedgerService) ListTransactions(ctx context.Context, account *domain.Account, f TransactionFilter, page int) (*TransactionPage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}

	q := f.query(account.ID)
	count, err := s.store.CountTransactions(ctx, q)
	if err != nil {
		return nil, err
	}
	pages := (count + PageSize - 1) / PageSize
	if pages == 0 {
		pages = 1
	}
	if page > pages {
		return nil, fmt.Errorf("page %d: %w", page, domain.ErrNotFound)
	}

	q.WithBalances = true
	q.Order = store.OrderDateDesc
	q.Limit = PageSize
	q.Offset = (page - 1) * PageSize
	rows, err := s.store.FindTransactions(ctx, q)
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, account)
	return &TransactionPage{Rows: rows, Page: page, Pages: pages, Count: count, Balance: account.Balance}, nil
}

const (
	EventDebit  = "event-important"
	EventCredit = "event-success"
)

// CalendarEvent is a transaction rendered for a calendar.
type CalendarEvent struct {
	ID                int64            `json:"id"`
	Date              time.Time        `json:"date"`
	Title             string           `json:"title"`
	Class             string           `json:"class"`
	Start             int64            `json:"start"`
	End               int64            `json:"end"`
	TotalBalance      *decimal.Decimal `json:"total_balance"`
	ReconciledBalance *decimal.Decimal `json:"reconciled_balance"`
}

// CalendarEvents lists the rows dated between two millisecond timestamps.
func (s *LedgerService) CalendarEvents(ctx context.Context, account *domain.Account, fromMs, toMs int64) ([]CalendarEvent, error) {
	if fromMs > toMs {
		return nil, domain.Invalid("calendar start is after its end")
	}
	from, to := time.UnixMilli(fromMs).UTC(), time.UnixMilli(toMs).UTC()

	rows, err := s.store.FindTransactions(ctx, store.TransactionQuery{
		AccountID:    account.ID,
		DateFrom:     store.Date(from),
		DateTo:       store.Date(to),
		WithBalances: true,
		Order:        store.OrderDateAsc,
	})
	if err != nil {
		return nil, err
	}

	events := make([]CalendarEvent, 0, len(rows))
	for _, r := range rows {
		class := EventCredit
		if r.Amount.IsNegative() {
			class = EventDebit
		}
		ms := r.Date.UnixMilli()
		events = append(events, CalendarEvent{
			ID:                r.ID,
			Date:              r.Date,
			Title:             fmt.Sprintf("%s, %s", r.Label, r.Amount.StringFixed(2)),
			Class:             class,
			Start:             ms,
			End:               ms,
			TotalBalance:      r.TotalBalance,
			ReconciledBalance: r.ReconciledBalance,
		})
	}
	return events, nil
}
