package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	*pgQueries
	Db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return NewPostgresStoreFromPool(pool), nil
}

func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgQueries: &pgQueries{db: pool}, Db: pool}
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

type pgQueries struct {
	db dbtx
}

func toCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}

// wrapErr maps missing rows and foreign key violations to domain.ErrNotFound.
func wrapErr(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("%s: referenced row missing: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func expectRows(tag pgconn.CommandTag, what string, id int64) error {
	if tag.RowsAffected() == 0 {
		return notFound(what, id)
	}
	return nil
}

// ─── Accounts ───────────────────────────────────────────────────────────────

const accountSelect = `
	SELECT a.id, a.label, a.balance, a.balance_initial, a.currency, a.created_at,
		COALESCE(array_agg(o.user_id ORDER BY o.user_id) FILTER (WHERE o.user_id IS NOT NULL), '{}')
	FROM bank_accounts a
	LEFT JOIN bank_account_owners o ON o.bankaccount_id = a.id`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	var balance, initial int64
	if err := row.Scan(&a.ID, &a.Label, &balance, &initial, &a.Currency, &a.CreatedAt, &a.Owners); err != nil {
		return nil, err
	}
	a.Balance, a.BalanceInitial = fromCents(balance), fromCents(initial)
	return &a, nil
}

func (q *pgQueries) CreateAccount(ctx context.Context, a *domain.Account) error {
	err := q.db.QueryRow(ctx,
		"INSERT INTO bank_accounts (label, balance, balance_initial, currency) VALUES ($1, $2, $3, $4) RETURNING id, created_at",
		a.Label, toCents(a.Balance), toCents(a.BalanceInitial), a.Currency,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return wrapErr(err, "account insert failed")
	}
	return q.setOwners(ctx, a.ID, a.Owners)
}

func (q *pgQueries) setOwners(ctx context.Context, accountID int64, owners []int64) error {
	if owners == nil {
		owners = []int64{}
	}
	_, err := q.db.Exec(ctx,
		"DELETE FROM bank_account_owners WHERE bankaccount_id = $1 AND user_id <> ALL($2::bigint[])",
		accountID, owners)
	if err != nil {
		return wrapErr(err, "owners cleanup failed")
	}
	_, err = q.db.Exec(ctx,
		`INSERT INTO bank_account_owners (bankaccount_id, user_id)
		 SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`,
		accountID, owners)
	if err != nil {
		return wrapErr(err, "owners insert failed")
	}
	return nil
}

func (q *pgQueries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	a, err := scanAccount(q.db.QueryRow(ctx, accountSelect+" WHERE a.id = $1 GROUP BY a.id", id))
	if err != nil {
		return nil, wrapErr(err, "account %d", id)
	}
	return a, nil
}

func (q *pgQueries) ListAccounts(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	rows, err := q.db.Query(ctx, accountSelect+`
		WHERE a.id IN (SELECT bankaccount_id FROM bank_account_owners WHERE user_id = $1)
		GROUP BY a.id
		ORDER BY a.label, a.id`, ownerID)
	if err != nil {
		return nil, wrapErr(err, "accounts query failed")
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, wrapErr(err, "account scan failed")
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (q *pgQueries) UpdateAccount(ctx context.Context, a *domain.Account) error {
	tag, err := q.db.Exec(ctx,
		"UPDATE bank_accounts SET label = $2, balance_initial = $3 WHERE id = $1",
		a.ID, a.Label, toCents(a.BalanceInitial))
	if err != nil {
		return wrapErr(err, "account %d update failed", a.ID)
	}
	if err := expectRows(tag, "account", a.ID); err != nil {
		return err
	}
	return q.setOwners(ctx, a.ID, a.Owners)
}

func (q *pgQueries) DeleteAccount(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, "DELETE FROM bank_accounts WHERE id = $1", id)
	if err != nil {
		return wrapErr(err, "account %d delete failed", id)
	}
	return expectRows(tag, "account", id)
}

func (q *pgQueries) IsOwner(ctx context.Context, accountID, userID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM bank_account_owners WHERE bankaccount_id = $1 AND user_id = $2)",
		accountID, userID).Scan(&exists)
	if err != nil {
		return false, wrapErr(err, "owner check failed")
	}
	return exists, nil
}

func (q *pgQueries) IncrementBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	tag, err := q.db.Exec(ctx, "UPDATE bank_accounts SET balance = balance + $1 WHERE id = $2", toCents(delta), accountID)
	if err != nil {
		return wrapErr(err, "balance update failed")
	}
	return expectRows(tag, "account", accountID)
}

func (q *pgQueries) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance int64
	err := q.db.QueryRow(ctx, "SELECT balance FROM bank_accounts WHERE id = $1", accountID).Scan(&balance)
	if err != nil {
		return decimal.Zero, wrapErr(err, "account %d", accountID)
	}
	return fromCents(balance), nil
}

func (q *pgQueries) RemoveOwner(ctx context.Context, userID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, "DELETE FROM bank_account_owners WHERE user_id = $1", userID)
	if err != nil {
		return 0, wrapErr(err, "owner removal failed")
	}
	return tag.RowsAffected(), nil
}

func (q *pgQueries) DeleteOrphanAccounts(ctx context.Context) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		DELETE FROM bank_accounts a
		WHERE NOT EXISTS (SELECT 1 FROM bank_account_owners o WHERE o.bankaccount_id = a.id)`)
	if err != nil {
		return 0, wrapErr(err, "orphan cleanup failed")
	}
	return tag.RowsAffected(), nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

const transactionColumns = `t.id, t.bankaccount_id, t.label, t.date, t.amount, t.currency, t.status,
	t.reconciled, t.payment_method, t.memo, t.tag_id, t.scheduled`

func scanTransaction(row pgx.Row, extra ...any) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount int64
	var status, method string
	dest := []any{&t.ID, &t.AccountID, &t.Label, &t.Date, &amount, &t.Currency, &status,
		&t.Reconciled, &method, &t.Memo, &t.TagID, &t.Scheduled}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	t.Amount = fromCents(amount)
	t.Status, t.PaymentMethod = domain.Status(status), domain.PaymentMethod(method)
	return &t, nil
}

func (q *pgQueries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO bank_transactions
			(bankaccount_id, label, date, amount, currency, status, reconciled, payment_method, memo, tag_id, scheduled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		t.AccountID, t.Label, t.Date, toCents(t.Amount), t.Currency, string(t.Status), t.Reconciled,
		string(t.PaymentMethod), t.Memo, t.TagID, t.Scheduled,
	).Scan(&t.ID)
	if err != nil {
		return wrapErr(err, "transaction insert failed")
	}
	return nil
}

func (q *pgQueries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE bank_transactions
		SET label = $2, date = $3, amount = $4, currency = $5, status = $6, reconciled = $7,
			payment_method = $8, memo = $9, tag_id = $10
		WHERE id = $1`,
		t.ID, t.Label, t.Date, toCents(t.Amount), t.Currency, string(t.Status), t.Reconciled,
		string(t.PaymentMethod), t.Memo, t.TagID)
	if err != nil {
		return wrapErr(err, "transaction %d update failed", t.ID)
	}
	return expectRows(tag, "transaction", t.ID)
}

func (q *pgQueries) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM bank_transactions t WHERE t.id = $1", id))
	if err != nil {
		return nil, wrapErr(err, "transaction %d", id)
	}
	return t, nil
}

func (q *pgQueries) GetTransactionForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM bank_transactions t WHERE t.id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, wrapErr(err, "transaction %d", id)
	}
	return t, nil
}

func (q *pgQueries) DeleteTransaction(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, "DELETE FROM bank_transactions WHERE id = $1", id)
	if err != nil {
		return wrapErr(err, "transaction %d delete failed", id)
	}
	return expectRows(tag, "transaction", id)
}

func (q *pgQueries) SetReconciled(ctx context.Context, accountID int64, ids []int64, reconciled bool) (int64, error) {
	tag, err := q.db.Exec(ctx,
		"UPDATE bank_transactions SET reconciled = $1 WHERE bankaccount_id = $2 AND id = ANY($3::bigint[])",
		reconciled, accountID, ids)
	if err != nil {
		return 0, wrapErr(err, "reconcile update failed")
	}
	return tag.RowsAffected(), nil
}

// sqlBuilder numbers positional parameters as they are bound.
type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// where renders the predicates of q against the alias "t".
func (b *sqlBuilder) where(q TransactionQuery) string {
	var conds []string
	add := func(c string) { conds = append(conds, c) }

	if q.AccountID != 0 {
		add("t.bankaccount_id = " + b.bind(q.AccountID))
	}
	if len(q.IDs) > 0 {
		add("t.id = ANY(" + b.bind(q.IDs) + "::bigint[])")
	}
	if q.Label != "" {
		add("t.label ILIKE " + b.bind("%"+likeEscaper.Replace(q.Label)+"%"))
	}
	if q.DateFrom != nil {
		add("t.date >= " + b.bind(*q.DateFrom))
	}
	if q.DateTo != nil {
		add("t.date <= " + b.bind(*q.DateTo))
	}
	if q.DateBefore != nil {
		add("t.date < " + b.bind(*q.DateBefore))
	}
	if q.DateAfter != nil {
		add("t.date > " + b.bind(*q.DateAfter))
	}
	if q.AmountMin != nil {
		add("t.amount >= " + b.bind(toCents(*q.AmountMin)))
	}
	if q.AmountMax != nil {
		add("t.amount <= " + b.bind(toCents(*q.AmountMax)))
	}
	switch q.Sign {
	case Credit:
		add("t.amount > 0")
	case Debit:
		add("t.amount < 0")
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		add("t.status = ANY(" + b.bind(statuses) + "::text[])")
	}
	if q.Reconciled != nil {
		add("t.reconciled = " + b.bind(*q.Reconciled))
	}
	if q.Scheduled != nil {
		add("t.scheduled = " + b.bind(*q.Scheduled))
	}
	switch {
	case len(q.TagIDs) > 0 && q.Untagged:
		add("(t.tag_id = ANY(" + b.bind(q.TagIDs) + "::bigint[]) OR t.tag_id IS NULL)")
	case len(q.TagIDs) > 0:
		add("t.tag_id = ANY(" + b.bind(q.TagIDs) + "::bigint[])")
	case q.Untagged:
		add("t.tag_id IS NULL")
	}

	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (q *pgQueries) FindTransactions(ctx context.Context, tq TransactionQuery) ([]domain.TransactionRow, error) {
	var b sqlBuilder
	var sql string

	if tq.WithBalances {
		if tq.AccountID == 0 {
			return nil, errors.New("running balances need an account")
		}
		// The window runs over the whole account so that display filters
		// never shift the running balances.
		account := b.bind(tq.AccountID)
		sql = `
			WITH ledger AS (
				SELECT bt.*,
					SUM(bt.amount) OVER w AS total_cents,
					SUM(CASE WHEN bt.reconciled THEN bt.amount END) OVER w AS reconciled_cents
				FROM bank_transactions bt
				WHERE bt.bankaccount_id = ` + account + `
				WINDOW w AS (ORDER BY bt.date, bt.id ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW)
			)
			SELECT ` + transactionColumns + `, COALESCE(g.name, ''),
				(a.balance_initial + t.total_cents)::bigint,
				(a.balance_initial + t.reconciled_cents)::bigint
			FROM ledger t
			JOIN bank_accounts a ON a.id = t.bankaccount_id
			LEFT JOIN bank_transaction_tags g ON g.id = t.tag_id`
	} else {
		sql = `
			SELECT ` + transactionColumns + `, COALESCE(g.name, ''), NULL::bigint, NULL::bigint
			FROM bank_transactions t
			LEFT JOIN bank_transaction_tags g ON g.id = t.tag_id`
	}
	sql += b.where(tq)

	if tq.Order == OrderDateAsc {
		sql += " ORDER BY t.date, t.id"
	} else {
		sql += " ORDER BY t.date DESC, t.id DESC"
	}
	if tq.Limit > 0 {
		sql += " LIMIT " + b.bind(tq.Limit)
	}
	if tq.Offset > 0 {
		sql += " OFFSET " + b.bind(tq.Offset)
	}

	rows, err := q.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, wrapErr(err, "transactions query failed")
	}
	defer rows.Close()

	var out []domain.TransactionRow
	for rows.Next() {
		var tagName string
		var total, reconciled *int64
		t, err := scanTransaction(rows, &tagName, &total, &reconciled)
		if err != nil {
			return nil, wrapErr(err, "transaction scan failed")
		}
		row := domain.TransactionRow{Transaction: *t, TagName: tagName}
		if total != nil {
			v := fromCents(*total)
			row.TotalBalance = &v
		}
		if reconciled != nil {
			v := fromCents(*reconciled)
			row.ReconciledBalance = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *pgQueries) CountTransactions(ctx context.Context, tq TransactionQuery) (int, error) {
	var b sqlBuilder
	var n int
	err := q.db.QueryRow(ctx, "SELECT COUNT(*) FROM bank_transactions t"+b.where(tq), b.args...).Scan(&n)
	if err != nil {
		return 0, wrapErr(err, "transactions count failed")
	}
	return n, nil
}

func (q *pgQueries) SumTransactions(ctx context.Context, tq TransactionQuery) (decimal.Decimal, error) {
	var b sqlBuilder
	var sum int64
	err := q.db.QueryRow(ctx,
		"SELECT COALESCE(SUM(t.amount), 0)::bigint FROM bank_transactions t"+b.where(tq), b.args...).Scan(&sum)
	if err != nil {
		return decimal.Zero, wrapErr(err, "transactions sum failed")
	}
	return fromCents(sum), nil
}

func (q *pgQueries) SumByTag(ctx context.Context, tq TransactionQuery) ([]TagSum, error) {
	var b sqlBuilder
	sql := `
		SELECT t.tag_id, COALESCE(g.name, ''), SUM(t.amount)::bigint, COUNT(*)
		FROM bank_transactions t
		LEFT JOIN bank_transaction_tags g ON g.id = t.tag_id` + b.where(tq) + `
		GROUP BY t.tag_id, g.name
		ORDER BY t.tag_id NULLS FIRST`

	rows, err := q.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, wrapErr(err, "tag sums query failed")
	}
	defer rows.Close()

	var out []TagSum
	for rows.Next() {
		var s TagSum
		var sum int64
		if err := rows.Scan(&s.TagID, &s.TagName, &sum, &s.Count); err != nil {
			return nil, wrapErr(err, "tag sum scan failed")
		}
		s.Sum = fromCents(sum)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *pgQueries) SumByDate(ctx context.Context, tq TransactionQuery) ([]DateSum, error) {
	var b sqlBuilder
	sql := "SELECT t.date, SUM(t.amount)::bigint, COUNT(*) FROM bank_transactions t" +
		b.where(tq) + " GROUP BY t.date ORDER BY t.date"

	rows, err := q.db.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, wrapErr(err, "date sums query failed")
	}
	defer rows.Close()

	var out []DateSum
	for rows.Next() {
		var s DateSum
		var sum int64
		if err := rows.Scan(&s.Date, &sum, &s.Count); err != nil {
			return nil, wrapErr(err, "date sum scan failed")
		}
		s.Sum = fromCents(sum)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (q *pgQueries) DateBounds(ctx context.Context, tq TransactionQuery) (first, last time.Time, ok bool, err error) {
	var b sqlBuilder
	var lo, hi *time.Time
	err = q.db.QueryRow(ctx, "SELECT MIN(t.date), MAX(t.date) FROM bank_transactions t"+b.where(tq), b.args...).Scan(&lo, &hi)
	if err != nil {
		return first, last, false, wrapErr(err, "date bounds query failed")
	}
	if lo == nil || hi == nil {
		return first, last, false, nil
	}
	return *lo, *hi, true, nil
}

// ─── Schedulers ─────────────────────────────────────────────────────────────

const schedulerColumns = `s.id, s.bankaccount_id, s.label, s.date, s.amount, s.currency, s.status,
	s.reconciled, s.payment_method, s.memo, s.tag_id, s.type, s.recurrence, s.last_action, s.state`

func scanScheduler(row pgx.Row) (*domain.Scheduler, error) {
	var s domain.Scheduler
	var amount int64
	var recurrence *int64
	var status, method, typ, state string
	err := row.Scan(&s.ID, &s.AccountID, &s.Label, &s.Date, &amount, &s.Currency, &status,
		&s.Reconciled, &method, &s.Memo, &s.TagID, &typ, &recurrence, &s.LastAction, &state)
	if err != nil {
		return nil, err
	}
	s.Amount = fromCents(amount)
	s.Status, s.PaymentMethod = domain.Status(status), domain.PaymentMethod(method)
	s.Type, s.State = domain.SchedulerType(typ), domain.SchedulerState(state)
	if recurrence != nil {
		n := int(*recurrence)
		s.Recurrence = &n
	}
	return &s, nil
}

func recurrenceArg(r *int) *int64 {
	if r == nil {
		return nil
	}
	n := int64(*r)
	return &n
}

func (q *pgQueries) InsertScheduler(ctx context.Context, s *domain.Scheduler) error {
	err := q.db.QueryRow(ctx, `
		INSERT INTO bank_transaction_schedulers
			(bankaccount_id, label, date, amount, currency, status, reconciled, payment_method, memo, tag_id,
			 type, recurrence, last_action, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		s.AccountID, s.Label, s.Date, toCents(s.Amount), s.Currency, string(s.Status), s.Reconciled,
		string(s.PaymentMethod), s.Memo, s.TagID, string(s.Type), recurrenceArg(s.Recurrence), s.LastAction, string(s.State),
	).Scan(&s.ID)
	if err != nil {
		return wrapErr(err, "scheduler insert failed")
	}
	return nil
}

func (q *pgQueries) UpdateScheduler(ctx context.Context, s *domain.Scheduler) error {
	tag, err := q.db.Exec(ctx, `
		UPDATE bank_transaction_schedulers
		SET label = $2, date = $3, amount = $4, currency = $5, status = $6, reconciled = $7,
			payment_method = $8, memo = $9, tag_id = $10, type = $11, recurrence = $12,
			last_action = $13, state = $14
		WHERE id = $1`,
		s.ID, s.Label, s.Date, toCents(s.Amount), s.Currency, string(s.Status), s.Reconciled,
		string(s.PaymentMethod), s.Memo, s.TagID, string(s.Type), recurrenceArg(s.Recurrence), s.LastAction, string(s.State))
	if err != nil {
		return wrapErr(err, "scheduler %d update failed", s.ID)
	}
	return expectRows(tag, "scheduler", s.ID)
}

func (q *pgQueries) GetScheduler(ctx context.Context, id int64) (*domain.Scheduler, error) {
	s, err := scanScheduler(q.db.QueryRow(ctx,
		"SELECT "+schedulerColumns+" FROM bank_transaction_schedulers s WHERE s.id = $1", id))
	if err != nil {
		return nil, wrapErr(err, "scheduler %d", id)
	}
	return s, nil
}

func (q *pgQueries) GetSchedulerForUpdate(ctx context.Context, id int64) (*domain.Scheduler, error) {
	s, err := scanScheduler(q.db.QueryRow(ctx,
		"SELECT "+schedulerColumns+" FROM bank_transaction_schedulers s WHERE s.id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, wrapErr(err, "scheduler %d", id)
	}
	return s, nil
}

func (q *pgQueries) DeleteScheduler(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, "DELETE FROM bank_transaction_schedulers WHERE id = $1", id)
	if err != nil {
		return wrapErr(err, "scheduler %d delete failed", id)
	}
	return expectRows(tag, "scheduler", id)
}

func (q *pgQueries) querySchedulers(ctx context.Context, sql string, args ...any) ([]domain.Scheduler, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapErr(err, "schedulers query failed")
	}
	defer rows.Close()

	var out []domain.Scheduler
	for rows.Next() {
		s, err := scanScheduler(rows)
		if err != nil {
			return nil, wrapErr(err, "scheduler scan failed")
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (q *pgQueries) ListSchedulers(ctx context.Context, accountID int64) ([]domain.Scheduler, error) {
	return q.querySchedulers(ctx, `
		SELECT `+schedulerColumns+`
		FROM bank_transaction_schedulers s
		WHERE s.bankaccount_id = $1
		ORDER BY s.last_action DESC NULLS LAST, s.id`, accountID)
}

// AwaitingSchedulers orders by date: last_action may be NULL and would sort
// last, while the oldest due template must be resolved first.
func (q *pgQueries) AwaitingSchedulers(ctx context.Context, aq AwaitingQuery) ([]domain.Scheduler, error) {
	return q.querySchedulers(ctx, `
		SELECT `+schedulerColumns+`
		FROM bank_transaction_schedulers s
		WHERE s.state = 'waiting'
			OR (s.state = 'finished' AND (
				(s.type = 'monthly' AND s.last_action < $1)
				OR (s.type = 'weekly' AND s.last_action < $2)))
		ORDER BY s.date, s.id
		LIMIT NULLIF($3::int, 0)`, aq.MonthStart, aq.WeekStart, aq.Limit)
}

func (q *pgQueries) MarkSchedulerFailed(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, "UPDATE bank_transaction_schedulers SET state = 'failed' WHERE id = $1", id)
	if err != nil {
		return wrapErr(err, "scheduler %d state update failed", id)
	}
	return expectRows(tag, "scheduler", id)
}

func (q *pgQueries) SchedulerTotals(ctx context.Context, accountID int64) ([]SchedulerTotal, error) {
	rows, err := q.db.Query(ctx, `
		SELECT type,
			COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0)::bigint,
			COALESCE(SUM(amount) FILTER (WHERE amount < 0), 0)::bigint
		FROM bank_transaction_schedulers
		WHERE bankaccount_id = $1 AND status <> 'inactive' AND amount <> 0
		GROUP BY type
		ORDER BY type`, accountID)
	if err != nil {
		return nil, wrapErr(err, "scheduler totals query failed")
	}
	defer rows.Close()

	var out []SchedulerTotal
	for rows.Next() {
		var typ string
		var credit, debit int64
		if err := rows.Scan(&typ, &credit, &debit); err != nil {
			return nil, wrapErr(err, "scheduler total scan failed")
		}
		out = append(out, SchedulerTotal{
			Type:   domain.SchedulerType(typ),
			Credit: fromCents(credit),
			Debit:  fromCents(debit),
		})
	}
	return out, rows.Err()
}

// ─── Tags ───────────────────────────────────────────────────────────────────

func (q *pgQueries) InsertTag(ctx context.Context, t *domain.Tag) error {
	err := q.db.QueryRow(ctx,
		"INSERT INTO bank_transaction_tags (name, owner_id) VALUES ($1, $2) RETURNING id",
		t.Name, t.OwnerID).Scan(&t.ID)
	if err != nil {
		return wrapErr(err, "tag insert failed")
	}
	return nil
}

func (q *pgQueries) UpdateTag(ctx context.Context, t *domain.Tag) error {
	tag, err := q.db.Exec(ctx, "UPDATE bank_transaction_tags SET name = $2 WHERE id = $1", t.ID, t.Name)
	if err != nil {
		return wrapErr(err, "tag %d update failed", t.ID)
	}
	return expectRows(tag, "tag", t.ID)
}

func (q *pgQueries) GetTag(ctx context.Context, id int64) (*domain.Tag, error) {
	var t domain.Tag
	err := q.db.QueryRow(ctx, "SELECT id, name, owner_id FROM bank_transaction_tags WHERE id = $1", id).
		Scan(&t.ID, &t.Name, &t.OwnerID)
	if err != nil {
		return nil, wrapErr(err, "tag %d", id)
	}
	return &t, nil
}

// DeleteTag relies on ON DELETE SET NULL to detach rows using the tag.
func (q *pgQueries) DeleteTag(ctx context.Context, id int64) error {
	tag, err := q.db.Exec(ctx, "DELETE FROM bank_transaction_tags WHERE id = $1", id)
	if err != nil {
		return wrapErr(err, "tag %d delete failed", id)
	}
	return expectRows(tag, "tag", id)
}

func (q *pgQueries) VisibleTags(ctx context.Context, userID int64) ([]domain.Tag, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, name, owner_id
		FROM bank_transaction_tags
		WHERE owner_id = $1 OR owner_id IN (
			SELECT o.user_id
			FROM bank_account_owners o
			JOIN bank_account_owners me ON me.bankaccount_id = o.bankaccount_id
			WHERE me.user_id = $1)
		ORDER BY name, id`, userID)
	if err != nil {
		return nil, wrapErr(err, "tags query failed")
	}
	defer rows.Close()

	var out []domain.Tag
	for rows.Next() {
		var t domain.Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.OwnerID); err != nil {
			return nil, wrapErr(err, "tag scan failed")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
