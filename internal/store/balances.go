package store

import (
	"sort"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

// RunningBalances fills the running balance columns of rows, which must
// hold every row of one account. Rows are accumulated in (date, id) order
// whatever their order in the slice, which is left untouched:
//
//	total(R)      = initial + sum(amount of rows up to R)
//	reconciled(R) = initial + sum(amount of reconciled rows up to R),
//	                nil while no reconciled row was met
func RunningBalances(initial decimal.Decimal, rows []domain.TransactionRow) {
	order := make([]int, len(rows))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return ledgerBefore(&rows[order[a]].Transaction, &rows[order[b]].Transaction)
	})

	total, reconciled := initial, initial
	seenReconciled := false
	for _, i := range order {
		row := &rows[i]
		total = total.Add(row.Amount)
		tb := total
		row.TotalBalance = &tb

		if row.Reconciled {
			reconciled = reconciled.Add(row.Amount)
			seenReconciled = true
		}
		row.ReconciledBalance = nil
		if seenReconciled {
			rb := reconciled
			row.ReconciledBalance = &rb
		}
	}
}

// ledgerBefore is the ledger order: date, then id.
func ledgerBefore(a, b *domain.Transaction) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.Before(b.Date)
	}
	return a.ID < b.ID
}
