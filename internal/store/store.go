// Package store persists accounts, transactions, schedulers and tags.
//
// PostgresStore is the production backend. MemoryStore keeps the same
// contract in process memory for development and tests.
package store

import (
	"context"
	"time"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

// Querier is every row operation of the store. It is implemented both by
// the store itself and by the handle passed to InTx.
type Querier interface {
	// Accounts
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id int64) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, a *domain.Account) error
	DeleteAccount(ctx context.Context, id int64) error
	IsOwner(ctx context.Context, accountID, userID int64) (bool, error)
	// IncrementBalance adds delta to the stored balance with a relative
	// update, never from a value read earlier.
	IncrementBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	RemoveOwner(ctx context.Context, userID int64) (int64, error)
	DeleteOrphanAccounts(ctx context.Context) (int64, error)

	// Transactions
	InsertTransaction(ctx context.Context, t *domain.Transaction) error
	UpdateTransaction(ctx context.Context, t *domain.Transaction) error
	GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error)
	// GetTransactionForUpdate reads the row and locks it until the end of
	// the enclosing transaction. Concurrent writers of the row wait and
	// then read the committed version.
	GetTransactionForUpdate(ctx context.Context, id int64) (*domain.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	SetReconciled(ctx context.Context, accountID int64, ids []int64, reconciled bool) (int64, error)
	FindTransactions(ctx context.Context, q TransactionQuery) ([]domain.TransactionRow, error)
	CountTransactions(ctx context.Context, q TransactionQuery) (int, error)
	SumTransactions(ctx context.Context, q TransactionQuery) (decimal.Decimal, error)
	SumByTag(ctx context.Context, q TransactionQuery) ([]TagSum, error)
	SumByDate(ctx context.Context, q TransactionQuery) ([]DateSum, error)
	DateBounds(ctx context.Context, q TransactionQuery) (first, last time.Time, ok bool, err error)

	// Schedulers
	InsertScheduler(ctx context.Context, s *domain.Scheduler) error
	UpdateScheduler(ctx context.Context, s *domain.Scheduler) error
	GetScheduler(ctx context.Context, id int64) (*domain.Scheduler, error)
	GetSchedulerForUpdate(ctx context.Context, id int64) (*domain.Scheduler, error)
	DeleteScheduler(ctx context.Context, id int64) error
	ListSchedulers(ctx context.Context, accountID int64) ([]domain.Scheduler, error)
	AwaitingSchedulers(ctx context.Context, q AwaitingQuery) ([]domain.Scheduler, error)
	MarkSchedulerFailed(ctx context.Context, id int64) error
	SchedulerTotals(ctx context.Context, accountID int64) ([]SchedulerTotal, error)

	// Tags
	InsertTag(ctx context.Context, t *domain.Tag) error
	UpdateTag(ctx context.Context, t *domain.Tag) error
	GetTag(ctx context.Context, id int64) (*domain.Tag, error)
	DeleteTag(ctx context.Context, id int64) error
	VisibleTags(ctx context.Context, userID int64) ([]domain.Tag, error)
}

// Store is a Querier able to run a function atomically. If fn returns an
// error nothing it did is committed and the error is returned unchanged.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
	Close()
}

// Sign restricts amounts to credits or debits.
type Sign int

const (
	AnySign Sign = iota
	Credit       // amount > 0
	Debit        // amount < 0
)

// Order is the row order of FindTransactions.
type Order int

const (
	OrderDateDesc Order = iota // date DESC, id DESC
	OrderDateAsc               // date ASC, id ASC
)

// TransactionQuery composes the predicates of a transaction lookup.
// Zero fields do not filter. Date bounds are calendar days.
type TransactionQuery struct {
	AccountID  int64
	IDs        []int64
	Label      string // case insensitive substring
	DateFrom   *time.Time
	DateTo     *time.Time
	DateBefore *time.Time // strictly before
	DateAfter  *time.Time // strictly after
	AmountMin  *decimal.Decimal
	AmountMax  *decimal.Decimal
	Sign       Sign
	Statuses   []domain.Status
	Reconciled *bool
	Scheduled  *bool
	TagIDs     []int64
	Untagged   bool

	// WithBalances fills the running balance columns. They are computed
	// over every row of the account before the predicates above apply.
	WithBalances bool
	Order        Order
	Limit        int
	Offset       int
}

// TagSum is one tag group of SumByTag. TagID is nil for untagged rows.
type TagSum struct {
	TagID   *int64
	TagName string
	Sum     decimal.Decimal
	Count   int
}

// DateSum is one day of SumByDate.
type DateSum struct {
	Date  time.Time
	Sum   decimal.Decimal
	Count int
}

// AwaitingQuery selects schedulers due for cloning: every waiting row, and
// finished rows whose last action predates the current bucket of their type.
type AwaitingQuery struct {
	MonthStart time.Time
	WeekStart  time.Time
	Limit      int
}

// SchedulerTotal sums the non inactive templates of one type.
type SchedulerTotal struct {
	Type   domain.SchedulerType
	Credit decimal.Decimal
	Debit  decimal.Decimal
}

// Bool returns a pointer to b, for optional query predicates.
func Bool(b bool) *bool { return &b }

// Date returns a pointer to the calendar day of t, as a UTC midnight like
// every stored date.
func Date(t time.Time) *time.Time {
	y, m, d := t.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &day
}
