package report

import (
	"context"
	"fmt"
	"time"

	"github.com/punchamoorthee/mymoney/internal/dates"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/session"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

const TrendSessionKey = "trendtime"

// TrendRow is one calendar day of a trend-time report.
type TrendRow struct {
	Date       time.Time       `json:"date"`
	Count      int             `json:"count"`
	Balance    decimal.Decimal `json:"balance"`
	Delta      decimal.Decimal `json:"delta"`
	Percentage decimal.Decimal `json:"percentage"`
}

type TrendResult struct {
	Filters        TrendFilters    `json:"filters"`
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	BalanceInitial decimal.Decimal `json:"balance_initial"`
	Rows           []TrendRow      `json:"rows"`
	Page           *dates.Page     `json:"page"`
}

type TrendReport struct {
	store     store.Querier
	sessions  session.Store
	weekStart time.Weekday
}

func NewTrendReport(q store.Querier, sessions session.Store, weekStart time.Weekday) *TrendReport {
	return &TrendReport{store: q, sessions: sessions, weekStart: weekStart}
}

func (r *TrendReport) Filters(ctx context.Context, sessionID string) (TrendFilters, error) {
	values, err := r.sessions.Get(ctx, sessionID, TrendSessionKey)
	if err != nil {
		return TrendFilters{}, err
	}
	f, ok, err := DecodeTrendFilters(values)
	if err != nil {
		return TrendFilters{}, fmt.Errorf("stored trend filters: %w", err)
	}
	if !ok {
		return TrendFilters{}, domain.ErrNoFilters
	}
	return f, nil
}

func (r *TrendReport) SetFilters(ctx context.Context, sessionID string, f TrendFilters) (TrendFilters, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, r.sessions.Set(ctx, sessionID, TrendSessionKey, f.Encode())
}

func (r *TrendReport) Reset(ctx context.Context, sessionID string) error {
	return r.sessions.Delete(ctx, sessionID, TrendSessionKey)
}

func (f TrendFilters) base(accountID int64) store.TransactionQuery {
	return store.TransactionQuery{
		AccountID:  accountID,
		Statuses:   domain.BalanceStatuses(),
		Reconciled: f.Reconciled,
	}
}

// Run computes the bucket holding at, or the stored date when at is nil.
// It fails with ErrNoResult when the account has no row or at lies outside
// the buckets spanned by its rows.
func (r *TrendReport) Run(ctx context.Context, sessionID string, account *domain.Account, at *time.Time) (*TrendResult, error) {
	f, err := r.Filters(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	base := f.Date
	if at != nil {
		base = day(*at)
	}

	q := f.base(account.ID)
	first, last, ok, err := r.store.DateBounds(ctx, q)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoResult
	}

	spanStart, _ := dates.DateRange(first, f.Granularity, r.weekStart)
	_, spanEnd := dates.DateRange(last, f.Granularity, r.weekStart)
	if base.Before(spanStart) || base.After(spanEnd) {
		return nil, domain.ErrNoResult
	}
	start, end := dates.DateRange(base, f.Granularity, r.weekStart)

	before := q
	before.DateBefore = store.Date(start)
	balance, err := r.store.SumTransactions(ctx, before)
	if err != nil {
		return nil, err
	}
	balance = balance.Add(account.BalanceInitial)

	inRange := q
	inRange.DateFrom = store.Date(start)
	inRange.DateTo = store.Date(end)
	sums, err := r.store.SumByDate(ctx, inRange)
	if err != nil {
		return nil, err
	}
	byDay := make(map[time.Time]store.DateSum, len(sums))
	for _, s := range sums {
		byDay[day(s.Date)] = s
	}

	res := &TrendResult{Filters: f, Start: start, End: end, BalanceInitial: balance}
	res.Rows = []TrendRow{}
	for _, d := range dates.Days(dates.Max(first, start), dates.Min(last, end)) {
		row := TrendRow{Date: d, Balance: balance, Delta: decimal.Zero, Percentage: decimal.Zero}
		if s, ok := byDay[day(d)]; ok {
			row.Delta = s.Sum
			row.Count = s.Count
			row.Percentage = percentage(s.Sum, balance)
			balance = balance.Add(s.Sum)
			row.Balance = balance
		}
		res.Rows = append(res.Rows, row)
	}

	paginator, err := dates.NewPaginator(spanStart, spanEnd, f.Granularity, r.weekStart)
	if err != nil {
		return nil, err
	}
	if res.Page, err = paginator.Page(base); err != nil {
		return nil, err
	}
	return res, nil
}

// Day lists the rows of one day under the stored criteria.
func (r *TrendReport) Day(ctx context.Context, sessionID string, account *domain.Account, date time.Time) (*Detail, error) {
	f, err := r.Filters(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	q := f.base(account.ID)
	q.DateFrom = store.Date(date)
	q.DateTo = store.Date(date)
	q.Order = store.OrderDateAsc

	rows, err := r.store.FindTransactions(ctx, q)
	if err != nil {
		return nil, err
	}
	return detail(rows), nil
}
