package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status decides whether a row alters the account balance and whether it
// feeds budget statistics.
type Status string

const (
	StatusActive   Status = "active"
	StatusIgnored  Status = "ignored"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusIgnored, StatusInactive:
		return true
	}
	return false
}

// CountsInBalance reports whether rows with this status are part of the
// account balance. Only inactive rows are excluded.
func (s Status) CountsInBalance() bool {
	return s != StatusInactive
}

// BalanceStatuses lists the statuses that count toward the balance.
func BalanceStatuses() []Status {
	return []Status{StatusActive, StatusIgnored}
}

type PaymentMethod string

const (
	PaymentCreditCard       PaymentMethod = "credit_card"
	PaymentCash             PaymentMethod = "cash"
	PaymentTransfer         PaymentMethod = "transfer"
	PaymentTransferInternal PaymentMethod = "transfer_internal"
	PaymentCheck            PaymentMethod = "check"
)

func (p PaymentMethod) Valid() bool {
	switch p {
	case PaymentCreditCard, PaymentCash, PaymentTransfer, PaymentTransferInternal, PaymentCheck:
		return true
	}
	return false
}

// SchedulerType is the recurrence period of a scheduler.
type SchedulerType string

const (
	SchedulerMonthly SchedulerType = "monthly"
	SchedulerWeekly  SchedulerType = "weekly"
)

func (t SchedulerType) Valid() bool {
	return t == SchedulerMonthly || t == SchedulerWeekly
}

// SchedulerState tracks the clone lifecycle of a scheduler.
//
//	waiting  -> never cloned (or reset), eligible immediately
//	finished -> cloned at least once, eligible once its period elapsed
//	failed   -> last clone failed, needs manual intervention
type SchedulerState string

const (
	StateWaiting  SchedulerState = "waiting"
	StateFinished SchedulerState = "finished"
	StateFailed   SchedulerState = "failed"
)

func (s SchedulerState) Valid() bool {
	switch s {
	case StateWaiting, StateFinished, StateFailed:
		return true
	}
	return false
}

// Account is a ledger container. Balance is maintained incrementally:
// Balance == BalanceInitial + sum(amount of rows whose status counts).
type Account struct {
	ID             int64           `json:"id"`
	Label          string          `json:"label"`
	Balance        decimal.Decimal `json:"balance"`
	BalanceInitial decimal.Decimal `json:"balance_initial"`
	Currency       string          `json:"currency"`
	Owners         []int64         `json:"owners"`
	CreatedAt      time.Time       `json:"created_at"`
}

// HasOwner reports whether userID is one of the account owners.
func (a *Account) HasOwner(userID int64) bool {
	for _, id := range a.Owners {
		if id == userID {
			return true
		}
	}
	return false
}

// Tag is a user defined category attachable to transactions and schedulers.
type Tag struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
}

// Transaction is a single dated entry of an account.
// Currency is copied from the account on every write.
type Transaction struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"bankaccount_id"`
	Label         string          `json:"label"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	Reconciled    bool            `json:"reconciled"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Memo          string          `json:"memo"`
	TagID         *int64          `json:"tag_id,omitempty"`
	Scheduled     bool            `json:"scheduled"`
}

// TransactionRow is a listed transaction with its running balances.
// ReconciledBalance is nil until a reconciled row exists at or before it.
type TransactionRow struct {
	Transaction
	TagName           string           `json:"tag_name,omitempty"`
	TotalBalance      *decimal.Decimal `json:"total_balance,omitempty"`
	ReconciledBalance *decimal.Decimal `json:"reconciled_balance,omitempty"`
}

// Scheduler is a recurring template cloned into transactions.
// A nil Recurrence means the template never runs out.
type Scheduler struct {
	ID            int64           `json:"id"`
	AccountID     int64           `json:"bankaccount_id"`
	Label         string          `json:"label"`
	Date          time.Time       `json:"date"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        Status          `json:"status"`
	Reconciled    bool            `json:"reconciled"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Memo          string          `json:"memo"`
	TagID         *int64          `json:"tag_id,omitempty"`
	Type          SchedulerType   `json:"type"`
	Recurrence    *int            `json:"recurrence,omitempty"`
	LastAction    *time.Time      `json:"last_action,omitempty"`
	State         SchedulerState  `json:"state"`
}
