// Package report builds the ratio and trend-time analytics of an account.
// Reports only read committed rows. Their criteria live in a session store
// so that a user finds the same report again on the next visit.
package report

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/session"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

const RatioSessionKey = "ratio"

var hundred = decimal.NewFromInt(100)

// percentage is part*100/total rounded to 2 places, 0 for a zero total.
func percentage(part, total decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(total, 2)
}

type RatioRow struct {
	TagID      *int64          `json:"tag_id"`
	TagName    string          `json:"tag_name"`
	Sum        decimal.Decimal `json:"sum"`
	Count      int             `json:"count"`
	Percentage decimal.Decimal `json:"percentage"`
	Color      string          `json:"color"`
	Highlight  string          `json:"highlight"`
}

// RatioResult is one ratio report. Total covers every group of the type
// and date range, SubTotal only the rows returned.
type RatioResult struct {
	Filters  RatioFilters    `json:"filters"`
	Rows     []RatioRow      `json:"rows"`
	Total    decimal.Decimal `json:"total"`
	SubTotal decimal.Decimal `json:"sub_total"`
}

// Detail lists the rows behind one report entry.
type Detail struct {
	Rows  []domain.TransactionRow `json:"rows"`
	Total decimal.Decimal         `json:"total"`
}

type RatioReport struct {
	store    store.Querier
	sessions session.Store
}

func NewRatioReport(q store.Querier, sessions session.Store) *RatioReport {
	return &RatioReport{store: q, sessions: sessions}
}

// Filters returns the stored criteria, or ErrNoFilters.
func (r *RatioReport) Filters(ctx context.Context, sessionID string) (RatioFilters, error) {
	values, err := r.sessions.Get(ctx, sessionID, RatioSessionKey)
	if err != nil {
		return RatioFilters{}, err
	}
	f, ok, err := DecodeRatioFilters(values)
	if err != nil {
		return RatioFilters{}, fmt.Errorf("stored ratio filters: %w", err)
	}
	if !ok {
		return RatioFilters{}, domain.ErrNoFilters
	}
	return f, nil
}

// SetFilters validates and stores f. Assigned colors are kept.
func (r *RatioReport) SetFilters(ctx context.Context, sessionID string, f RatioFilters) (RatioFilters, error) {
	f = f.Normalize()
	if err := f.Validate(); err != nil {
		return f, err
	}

	current, err := r.sessions.Get(ctx, sessionID, RatioSessionKey)
	if err != nil {
		return f, err
	}
	values := f.Encode()
	readColorBook(current).write(values)
	return f, r.sessions.Set(ctx, sessionID, RatioSessionKey, values)
}

// Reset drops the criteria and frees the assigned colors.
func (r *RatioReport) Reset(ctx context.Context, sessionID string) error {
	return r.sessions.Delete(ctx, sessionID, RatioSessionKey)
}

// base selects the rows of the type and date range, inactive excluded.
func (f RatioFilters) base(accountID int64) store.TransactionQuery {
	q := store.TransactionQuery{
		AccountID:  accountID,
		Statuses:   domain.BalanceStatuses(),
		DateFrom:   store.Date(f.DateStart),
		DateTo:     store.Date(f.DateEnd),
		Reconciled: f.Reconciled,
	}
	switch f.Type {
	case SingleCredit:
		q.Sign = store.Credit
	case SingleDebit:
		q.Sign = store.Debit
	}
	return q
}

func groupKey(tagID *int64) string {
	if tagID == nil {
		return "0"
	}
	return strconv.FormatInt(*tagID, 10)
}

func (f RatioFilters) keepTag(tagID *int64) bool {
	if len(f.TagIDs) == 0 {
		return true
	}
	if tagID == nil {
		return false
	}
	for _, id := range f.TagIDs {
		if id == *tagID {
			return true
		}
	}
	return false
}

func (f RatioFilters) keepSum(sum decimal.Decimal) bool {
	if f.SumMin != nil && sum.LessThan(*f.SumMin) {
		return false
	}
	if f.SumMax != nil && sum.GreaterThan(*f.SumMax) {
		return false
	}
	return true
}

// Run computes the report of account for the stored criteria.
func (r *RatioReport) Run(ctx context.Context, sessionID string, account *domain.Account) (*RatioResult, error) {
	values, err := r.sessions.Get(ctx, sessionID, RatioSessionKey)
	if err != nil {
		return nil, err
	}
	f, ok, err := DecodeRatioFilters(values)
	if err != nil {
		return nil, fmt.Errorf("stored ratio filters: %w", err)
	}
	if !ok {
		return nil, domain.ErrNoFilters
	}

	groups, err := r.store.SumByTag(ctx, f.base(account.ID))
	if err != nil {
		return nil, err
	}

	res := &RatioResult{Filters: f, Rows: []RatioRow{}, Total: decimal.Zero, SubTotal: decimal.Zero}
	var kept []store.TagSum
	for _, g := range groups {
		if f.Type == SumCredit && !g.Sum.IsPositive() {
			continue
		}
		if f.Type == SumDebit && !g.Sum.IsNegative() {
			continue
		}
		res.Total = res.Total.Add(g.Sum)
		if f.keepTag(g.TagID) && f.keepSum(g.Sum) {
			kept = append(kept, g)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Sum.Equal(kept[j].Sum) {
			return false
		}
		if f.Type.debit() {
			return kept[i].Sum.LessThan(kept[j].Sum)
		}
		return kept[i].Sum.GreaterThan(kept[j].Sum)
	})

	book := readColorBook(values)
	for _, g := range kept {
		c := book.color(groupKey(g.TagID))
		res.Rows = append(res.Rows, RatioRow{
			TagID:      g.TagID,
			TagName:    g.TagName,
			Sum:        g.Sum,
			Count:      g.Count,
			Percentage: percentage(g.Sum, res.Total),
			Color:      c.RGBA(0.7),
			Highlight:  c.RGBA(0.6),
		})
		res.SubTotal = res.SubTotal.Add(g.Sum)
	}

	if book.changed {
		book.write(values)
		if err := r.sessions.Set(ctx, sessionID, RatioSessionKey, values); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Summary lists the rows of one group of the report, oldest first. Tag 0
// is the untagged group.
func (r *RatioReport) Summary(ctx context.Context, sessionID string, account *domain.Account, tagID int64) (*Detail, error) {
	f, err := r.Filters(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	q := f.base(account.ID)
	if tagID > 0 {
		q.TagIDs = []int64{tagID}
	} else {
		q.Untagged = true
	}
	q.Order = store.OrderDateAsc

	rows, err := r.store.FindTransactions(ctx, q)
	if err != nil {
		return nil, err
	}
	return detail(rows), nil
}

func detail(rows []domain.TransactionRow) *Detail {
	d := &Detail{Rows: rows, Total: decimal.Zero}
	if d.Rows == nil {
		d.Rows = []domain.TransactionRow{}
	}
	for _, row := range rows {
		d.Total = d.Total.Add(row.Amount)
	}
	return d
}
