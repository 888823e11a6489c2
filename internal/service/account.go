package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

type AccountService struct {
	store store.Store
	log   *slog.Logger
}

func NewAccountService(s store.Store, logger *slog.Logger) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{store: s, log: logger}
}

// Create stores a new account owned by userID (plus any owner already
// listed). The balance starts at the initial balance.
func (s *AccountService) Create(ctx context.Context, userID int64, a *domain.Account) error {
	if !a.HasOwner(userID) {
		a.Owners = append(a.Owners, userID)
	}
	a.Balance = a.BalanceInitial
	if err := a.Validate(); err != nil {
		return err
	}
	return s.store.CreateAccount(ctx, a)
}

// ForUser loads an account the user owns. Other accounts are forbidden.
func (s *AccountService) ForUser(ctx context.Context, userID, id int64) (*domain.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if !a.HasOwner(userID) {
		return nil, fmt.Errorf("account %d: %w", id, domain.ErrForbidden)
	}
	return a, nil
}

func (s *AccountService) List(ctx context.Context, userID int64) ([]domain.Account, error) {
	return s.store.ListAccounts(ctx, userID)
}

// AccountChanges lists the editable fields of an account. Nil fields are
// left alone.
type AccountChanges struct {
	Label          *string          `json:"label"`
	BalanceInitial *decimal.Decimal `json:"balance_initial"`
	Owners         []int64          `json:"owners"`
}

// Update applies changes to a. A new initial balance shifts the balance by
// the same difference in the same transaction.
func (s *AccountService) Update(ctx context.Context, a *domain.Account, changes AccountChanges) error {
	next := *a
	if changes.Label != nil {
		next.Label = *changes.Label
	}
	if changes.BalanceInitial != nil {
		next.BalanceInitial = *changes.BalanceInitial
	}
	if changes.Owners != nil {
		if len(changes.Owners) == 0 {
			return domain.Invalid("an account needs at least one owner")
		}
		next.Owners = changes.Owners
	}
	if err := next.Validate(); err != nil {
		return err
	}

	err := s.store.InTx(ctx, func(q store.Querier) error {
		cur, err := q.GetAccount(ctx, a.ID)
		if err != nil {
			return err
		}
		if err := q.UpdateAccount(ctx, &next); err != nil {
			return err
		}
		shift := next.BalanceInitial.Sub(cur.BalanceInitial)
		if shift.IsZero() {
			return nil
		}
		if err := q.IncrementBalance(ctx, a.ID, shift); err != nil {
			return fmt.Errorf("balance update failed: %w", err)
		}
		balanceWritesTotal.WithLabelValues("initial").Inc()
		return nil
	})
	if err != nil {
		return err
	}

	updated, err := s.store.GetAccount(ctx, a.ID)
	if err != nil {
		return err
	}
	*a = *updated
	return nil
}

// Delete removes the account with its transactions and schedulers.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	return s.store.DeleteAccount(ctx, id)
}

// DeleteOrphans removes every account left without owner.
func (s *AccountService) DeleteOrphans(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteOrphanAccounts(ctx)
	if err != nil {
		return 0, fmt.Errorf("orphan cleanup failed: %w", err)
	}
	if n > 0 {
		s.log.Info("orphan accounts deleted", "count", n)
	}
	return n, nil
}

// HandleUserDeleted drops userID from every owner set, then deletes the
// accounts nobody owns anymore. It returns the number of deleted accounts.
func (s *AccountService) HandleUserDeleted(ctx context.Context, userID int64) (int64, error) {
	var deleted int64
	err := s.store.InTx(ctx, func(q store.Querier) error {
		if _, err := q.RemoveOwner(ctx, userID); err != nil {
			return err
		}
		n, err := q.DeleteOrphanAccounts(ctx)
		deleted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("user %d cleanup failed: %w", userID, err)
	}
	s.log.Info("user removed from accounts", "user_id", userID, "orphans_deleted", deleted)
	return deleted, nil
}
