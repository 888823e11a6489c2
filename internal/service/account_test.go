package service

import (
	"context"
	"errors"
	"testing"

	"github.com/punchamoorthee/mymoney/internal/domain"
)

func TestAccount_CreateAddsCaller(t *testing.T) {
	f := newFixture(t)
	a := &domain.Account{Label: "Savings", Currency: "EUR", BalanceInitial: dec("250.50")}
	if err := f.accounts.Create(context.Background(), 7, a); err != nil {
		t.Fatal(err)
	}
	if !a.HasOwner(7) {
		t.Errorf("owners = %v, want 7 included", a.Owners)
	}
	if !a.Balance.Equal(dec("250.50")) {
		t.Errorf("balance = %v, want 250.50", a.Balance)
	}
}

func TestAccount_ForUser(t *testing.T) {
	f := newFixture(t)
	a := f.account(t, "0")
	if _, err := f.accounts.ForUser(context.Background(), 1, a.ID); err != nil {
		t.Errorf("owner access error: %v", err)
	}
	if _, err := f.accounts.ForUser(context.Background(), 2, a.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("stranger access error = %v, want ErrForbidden", err)
	}
}

func TestAccount_UpdateShiftsBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.account(t, "100")
	if err := f.ledger.Create(ctx, a, newTx("x", "-30", day(2015, 5, 1))); err != nil {
		t.Fatal(err)
	}

	initial := dec("150")
	label := "Renamed"
	if err := f.accounts.Update(ctx, a, AccountChanges{Label: &label, BalanceInitial: &initial}); err != nil {
		t.Fatal(err)
	}
	if a.Label != "Renamed" || !a.Balance.Equal(dec("120")) {
		t.Errorf("account = %s %v, want Renamed 120", a.Label, a.Balance)
	}
	f.checkInvariant(t, a)

	if err := f.accounts.Update(ctx, a, AccountChanges{Owners: []int64{}}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty owners error = %v, want ErrValidation", err)
	}
}

func TestAccount_HandleUserDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.account(t, "0")
	shared := &domain.Account{Label: "Shared", Currency: "EUR", Owners: []int64{2}}
	if err := f.accounts.Create(ctx, 1, shared); err != nil {
		t.Fatal(err)
	}

	deleted, err := f.accounts.HandleUserDeleted(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if _, err := f.store.GetAccount(ctx, own.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("own account error = %v, want ErrNotFound", err)
	}
	got, err := f.store.GetAccount(ctx, shared.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.HasOwner(1) {
		t.Errorf("owners = %v, want user 1 removed", got.Owners)
	}
}

func TestTag_OwnershipAndVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	shared := &domain.Account{Label: "Shared", Currency: "EUR", Owners: []int64{2}}
	f.accounts.Create(ctx, 1, shared)

	mine := &domain.Tag{Name: "mine"}
	partner := &domain.Tag{Name: "partner"}
	stranger := &domain.Tag{Name: "stranger"}
	f.tags.Create(ctx, 1, mine)
	f.tags.Create(ctx, 2, partner)
	f.tags.Create(ctx, 3, stranger)

	if err := f.tags.CheckVisible(ctx, 1, mine.ID, partner.ID); err != nil {
		t.Errorf("CheckVisible() error: %v", err)
	}
	if err := f.tags.CheckVisible(ctx, 1, stranger.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("CheckVisible(stranger) error = %v, want ErrForbidden", err)
	}
	partner.Name = "hijack"
	if err := f.tags.Update(ctx, 1, partner); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Update(partner tag) error = %v, want ErrForbidden", err)
	}
	if err := f.tags.Delete(ctx, 1, mine.ID); err != nil {
		t.Errorf("Delete(own tag) error: %v", err)
	}
}
