package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

var balanceWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mymoney_balance_writes_total",
	Help: "Balance increments applied to accounts, labeled by operation",
}, []string{"op"})

// LedgerService writes transactions and keeps every account balance equal
// to balance_initial plus the amounts of its rows that count in balance.
type LedgerService struct {
	store     store.Store
	weekStart time.Weekday
	log       *slog.Logger
}

func NewLedgerService(s store.Store, weekStart time.Weekday, logger *slog.Logger) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{store: s, weekStart: weekStart, log: logger}
}

// contribution is what a row adds to its account balance.
func contribution(t *domain.Transaction) decimal.Decimal {
	if t == nil || !t.Status.CountsInBalance() {
		return decimal.Zero
	}
	return t.Amount
}

// applyTransactionWrite persists t and moves the account balance by the
// change of contribution between previous and t. previous is nil for a
// new row. q must be a transactional handle.
func applyTransactionWrite(ctx context.Context, q store.Querier, account *domain.Account, t, previous *domain.Transaction) error {
	t.AccountID = account.ID
	t.Currency = account.Currency

	op := "update"
	if previous == nil {
		op = "create"
		if err := q.InsertTransaction(ctx, t); err != nil {
			return fmt.Errorf("transaction insert failed: %w", err)
		}
	} else {
		t.Scheduled = previous.Scheduled
		if err := q.UpdateTransaction(ctx, t); err != nil {
			return fmt.Errorf("transaction update failed: %w", err)
		}
	}

	delta := contribution(t).Sub(contribution(previous))
	if delta.IsZero() {
		return nil
	}
	if err := q.IncrementBalance(ctx, account.ID, delta); err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	balanceWritesTotal.WithLabelValues(op).Inc()
	return nil
}

// applyTransactionDelete removes t and takes its contribution out of the
// account balance.
func applyTransactionDelete(ctx context.Context, q store.Querier, t *domain.Transaction) error {
	if err := q.DeleteTransaction(ctx, t.ID); err != nil {
		return fmt.Errorf("transaction delete failed: %w", err)
	}
	delta := contribution(t)
	if delta.IsZero() {
		return nil
	}
	if err := q.IncrementBalance(ctx, t.AccountID, delta.Neg()); err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}
	balanceWritesTotal.WithLabelValues("delete").Inc()
	return nil
}

// refresh reloads the stored balance into account. The relative increment
// is never reflected in memory otherwise.
func (s *LedgerService) refresh(ctx context.Context, account *domain.Account) {
	balance, err := s.store.GetBalance(ctx, account.ID)
	if err != nil {
		s.log.Warn("balance reload failed", "account_id", account.ID, "error", err)
		return
	}
	account.Balance = balance
}

// transactionOf loads id and checks it belongs to account.
func transactionOf(ctx context.Context, q store.Querier, account *domain.Account, id int64) (*domain.Transaction, error) {
	t, err := q.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	return belongsTo(t, account)
}

// lockedTransactionOf is transactionOf holding the row lock until q
// commits, so the previous contribution cannot be stale.
func lockedTransactionOf(ctx context.Context, q store.Querier, account *domain.Account, id int64) (*domain.Transaction, error) {
	t, err := q.GetTransactionForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	return belongsTo(t, account)
}

func belongsTo(t *domain.Transaction, account *domain.Account) (*domain.Transaction, error) {
	if t.AccountID != account.ID {
		return nil, fmt.Errorf("transaction %d: %w", t.ID, domain.ErrNotFound)
	}
	return t, nil
}

func (s *LedgerService) Create(ctx context.Context, account *domain.Account, t *domain.Transaction) error {
	t.ApplyDefaults()
	t.Scheduled = false
	if err := t.Validate(); err != nil {
		return err
	}
	defer s.refresh(ctx, account)

	return s.store.InTx(ctx, func(q store.Querier) error {
		return applyTransactionWrite(ctx, q, account, t, nil)
	})
}

// Update overwrites the editable fields of t.ID. The balance moves by the
// difference against the persisted row, read inside the same transaction.
func (s *LedgerService) Update(ctx context.Context, account *domain.Account, t *domain.Transaction) error {
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return err
	}
	defer s.refresh(ctx, account)

	return s.store.InTx(ctx, func(q store.Querier) error {
		previous, err := lockedTransactionOf(ctx, q, account, t.ID)
		if err != nil {
			return err
		}
		return applyTransactionWrite(ctx, q, account, t, previous)
	})
}

func (s *LedgerService) Get(ctx context.Context, account *domain.Account, id int64) (*domain.Transaction, error) {
	return transactionOf(ctx, s.store, account, id)
}

func (s *LedgerService) Delete(ctx context.Context, account *domain.Account, id int64) error {
	defer s.refresh(ctx, account)

	return s.store.InTx(ctx, func(q store.Querier) error {
		t, err := lockedTransactionOf(ctx, q, account, id)
		if err != nil {
			return err
		}
		return applyTransactionDelete(ctx, q, t)
	})
}

// ReconcileMany flags the selected rows of account. Rows of other accounts
// are skipped. It returns the number of rows changed.
func (s *LedgerService) ReconcileMany(ctx context.Context, account *domain.Account, ids []int64, reconciled bool) (int64, error) {
	if len(ids) == 0 {
		return 0, domain.Invalid("no transaction selected")
	}
	return s.store.SetReconciled(ctx, account.ID, ids, reconciled)
}

// DeleteMany deletes the selected rows of account in one transaction.
// Rows are locked in id order and rows deleted meanwhile are skipped.
func (s *LedgerService) DeleteMany(ctx context.Context, account *domain.Account, ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, domain.Invalid("no transaction selected")
	}
	defer s.refresh(ctx, account)

	var deleted int
	err := s.store.InTx(ctx, func(q store.Querier) error {
		deleted = 0
		rows, err := q.FindTransactions(ctx, store.TransactionQuery{AccountID: account.ID, IDs: ids})
		if err != nil {
			return err
		}
		selected := make([]int64, len(rows))
		for i, row := range rows {
			selected[i] = row.ID
		}
		slices.Sort(selected)

		for _, id := range selected {
			t, err := lockedTransactionOf(ctx, q, account, id)
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := applyTransactionDelete(ctx, q, t); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}
