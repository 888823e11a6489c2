package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrations returns the schema statements in apply order. Amounts and
// balances are stored as integer cents.
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS bank_accounts (
			id              BIGSERIAL PRIMARY KEY,
			label           VARCHAR(255) NOT NULL,
			balance         BIGINT NOT NULL DEFAULT 0,
			balance_initial BIGINT NOT NULL DEFAULT 0,
			currency        CHAR(3) NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS bank_account_owners (
			bankaccount_id BIGINT NOT NULL REFERENCES bank_accounts(id) ON DELETE CASCADE,
			user_id        BIGINT NOT NULL,
			PRIMARY KEY (bankaccount_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_owners_user ON bank_account_owners(user_id)`,

		`CREATE TABLE IF NOT EXISTS bank_transaction_tags (
			id       BIGSERIAL PRIMARY KEY,
			name     VARCHAR(255) NOT NULL,
			owner_id BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tags_owner ON bank_transaction_tags(owner_id)`,

		`CREATE TABLE IF NOT EXISTS bank_transactions (
			id             BIGSERIAL PRIMARY KEY,
			bankaccount_id BIGINT NOT NULL REFERENCES bank_accounts(id) ON DELETE CASCADE,
			label          VARCHAR(255) NOT NULL,
			date           DATE NOT NULL,
			amount         BIGINT NOT NULL,
			currency       CHAR(3) NOT NULL,
			status         VARCHAR(32) NOT NULL DEFAULT 'active',
			reconciled     BOOLEAN NOT NULL DEFAULT FALSE,
			payment_method VARCHAR(32) NOT NULL DEFAULT 'credit_card',
			memo           TEXT NOT NULL DEFAULT '',
			tag_id         BIGINT REFERENCES bank_transaction_tags(id) ON DELETE SET NULL,
			scheduled      BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_amount ON bank_transactions(bankaccount_id, amount)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_date ON bank_transactions(bankaccount_id, date, id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_reconciled ON bank_transactions(bankaccount_id, reconciled)`,

		`CREATE TABLE IF NOT EXISTS bank_transaction_schedulers (
			id             BIGSERIAL PRIMARY KEY,
			bankaccount_id BIGINT NOT NULL REFERENCES bank_accounts(id) ON DELETE CASCADE,
			label          VARCHAR(255) NOT NULL,
			date           DATE NOT NULL,
			amount         BIGINT NOT NULL,
			currency       CHAR(3) NOT NULL,
			status         VARCHAR(32) NOT NULL DEFAULT 'active',
			reconciled     BOOLEAN NOT NULL DEFAULT FALSE,
			payment_method VARCHAR(32) NOT NULL DEFAULT 'credit_card',
			memo           TEXT NOT NULL DEFAULT '',
			tag_id         BIGINT REFERENCES bank_transaction_tags(id) ON DELETE SET NULL,
			type           VARCHAR(32) NOT NULL DEFAULT 'monthly',
			recurrence     INTEGER CHECK (recurrence >= 0),
			last_action    TIMESTAMPTZ,
			state          VARCHAR(32) NOT NULL DEFAULT 'waiting'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedulers_state ON bank_transaction_schedulers(state, last_action)`,
	}
}

// Migrate applies every schema statement. Statements are idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range Migrations() {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
