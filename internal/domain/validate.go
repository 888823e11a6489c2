package domain

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxLabelLength = 255

// IsCurrencyCode reports whether code looks like an ISO 4217 code.
func IsCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// IsCents reports whether d carries at most two fractional digits.
func IsCents(d decimal.Decimal) bool {
	return d.Round(2).Equal(d)
}

func validateLabel(label string) error {
	if label == "" {
		return Invalid("label is required")
	}
	if utf8.RuneCountInString(label) > maxLabelLength {
		return Invalid("label exceeds %d characters", maxLabelLength)
	}
	return nil
}

func (a *Account) Validate() error {
	if err := validateLabel(a.Label); err != nil {
		return err
	}
	if !IsCurrencyCode(a.Currency) {
		return Invalid("invalid currency %q", a.Currency)
	}
	if !IsCents(a.BalanceInitial) {
		return Invalid("initial balance has more than 2 decimal places")
	}
	return nil
}

func (t *Tag) Validate() error {
	if t.Name == "" {
		return Invalid("name is required")
	}
	if utf8.RuneCountInString(t.Name) > maxLabelLength {
		return Invalid("name exceeds %d characters", maxLabelLength)
	}
	return nil
}

func (t *Transaction) Validate() error {
	if err := validateLabel(t.Label); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return Invalid("date is required")
	}
	if !IsCents(t.Amount) {
		return Invalid("amount has more than 2 decimal places")
	}
	if !t.Status.Valid() {
		return Invalid("unknown status %q", t.Status)
	}
	if !t.PaymentMethod.Valid() {
		return Invalid("unknown payment method %q", t.PaymentMethod)
	}
	return nil
}

func (s *Scheduler) Validate() error {
	if err := validateLabel(s.Label); err != nil {
		return err
	}
	if s.Date.IsZero() {
		return Invalid("date is required")
	}
	if !IsCents(s.Amount) {
		return Invalid("amount has more than 2 decimal places")
	}
	if !s.Status.Valid() {
		return Invalid("unknown status %q", s.Status)
	}
	if !s.PaymentMethod.Valid() {
		return Invalid("unknown payment method %q", s.PaymentMethod)
	}
	if !s.Type.Valid() {
		return Invalid("unknown scheduler type %q", s.Type)
	}
	if s.Recurrence != nil && *s.Recurrence < 0 {
		return Invalid("recurrence must be positive")
	}
	return nil
}

// ApplyDefaults fills the zero values a fresh transaction starts with.
func (t *Transaction) ApplyDefaults() {
	if t.Status == "" {
		t.Status = StatusActive
	}
	if t.PaymentMethod == "" {
		t.PaymentMethod = PaymentCreditCard
	}
}

// ApplyDefaults fills the zero values a fresh scheduler starts with.
func (s *Scheduler) ApplyDefaults() {
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.PaymentMethod == "" {
		s.PaymentMethod = PaymentCreditCard
	}
	if s.Type == "" {
		s.Type = SchedulerMonthly
	}
	if s.State == "" {
		s.State = StateWaiting
	}
}
