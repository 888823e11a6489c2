package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps every table in process memory. Transactions are
// serialized and roll back by restoring a snapshot taken at InTx.
type MemoryStore struct {
	*memQueries
	txMu sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{memQueries: &memQueries{mu: &sync.Mutex{}, st: newMemState()}}
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(q Querier) error) (err error) {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := m.st.clone()
	m.mu.Unlock()

	restore := func() {
		m.mu.Lock()
		*m.st = *snapshot
		m.mu.Unlock()
	}
	defer func() {
		if r := recover(); r != nil {
			restore()
			panic(r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err = fn(m.memQueries); err != nil {
		restore()
		return err
	}
	return nil
}

func (m *MemoryStore) Close() {}

type memState struct {
	accounts     map[int64]*domain.Account
	transactions map[int64]*domain.Transaction
	schedulers   map[int64]*domain.Scheduler
	tags         map[int64]*domain.Tag
	seq          map[string]int64
}

func newMemState() *memState {
	return &memState{
		accounts:     map[int64]*domain.Account{},
		transactions: map[int64]*domain.Transaction{},
		schedulers:   map[int64]*domain.Scheduler{},
		tags:         map[int64]*domain.Tag{},
		seq:          map[string]int64{},
	}
}

func (s *memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, a := range s.accounts {
		c.accounts[id] = copyAccount(a)
	}
	for id, t := range s.transactions {
		cp := *t
		c.transactions[id] = &cp
	}
	for id, sc := range s.schedulers {
		c.schedulers[id] = copyScheduler(sc)
	}
	for id, t := range s.tags {
		cp := *t
		c.tags[id] = &cp
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	return c
}

func copyAccount(a *domain.Account) *domain.Account {
	cp := *a
	cp.Owners = append([]int64(nil), a.Owners...)
	return &cp
}

// copyScheduler copies s without sharing its pointer fields.
func copyScheduler(s *domain.Scheduler) *domain.Scheduler {
	cp := *s
	if s.Recurrence != nil {
		r := *s.Recurrence
		cp.Recurrence = &r
	}
	if s.LastAction != nil {
		la := *s.LastAction
		cp.LastAction = &la
	}
	return &cp
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%s %d: %w", what, id, domain.ErrNotFound)
}

// memQueries implements Querier over memState. Every call holds mu.
type memQueries struct {
	mu *sync.Mutex
	st *memState
}

// ─── Accounts ───────────────────────────────────────────────────────────────

func (q *memQueries) CreateAccount(ctx context.Context, a *domain.Account) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	a.ID = q.st.next("accounts")
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	q.st.accounts[a.ID] = copyAccount(a)
	return nil
}

func (q *memQueries) GetAccount(ctx context.Context, id int64) (*domain.Account, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.st.accounts[id]
	if !ok {
		return nil, notFound("account", id)
	}
	return copyAccount(a), nil
}

func (q *memQueries) ListAccounts(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.Account
	for _, a := range q.st.accounts {
		if a.HasOwner(ownerID) {
			out = append(out, *copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQueries) UpdateAccount(ctx context.Context, a *domain.Account) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.st.accounts[a.ID]
	if !ok {
		return notFound("account", a.ID)
	}
	cur.Label = a.Label
	cur.BalanceInitial = a.BalanceInitial
	cur.Owners = append([]int64(nil), a.Owners...)
	return nil
}

func (q *memQueries) DeleteAccount(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.st.accounts[id]; !ok {
		return notFound("account", id)
	}
	q.st.deleteAccount(id)
	return nil
}

func (s *memState) deleteAccount(id int64) {
	delete(s.accounts, id)
	for tid, t := range s.transactions {
		if t.AccountID == id {
			delete(s.transactions, tid)
		}
	}
	for sid, sc := range s.schedulers {
		if sc.AccountID == id {
			delete(s.schedulers, sid)
		}
	}
}

func (q *memQueries) IsOwner(ctx context.Context, accountID, userID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.st.accounts[accountID]
	return ok && a.HasOwner(userID), nil
}

func (q *memQueries) IncrementBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.st.accounts[accountID]
	if !ok {
		return notFound("account", accountID)
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

func (q *memQueries) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	a, ok := q.st.accounts[accountID]
	if !ok {
		return decimal.Zero, notFound("account", accountID)
	}
	return a.Balance, nil
}

func (q *memQueries) RemoveOwner(ctx context.Context, userID int64) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, a := range q.st.accounts {
		kept := a.Owners[:0]
		for _, id := range a.Owners {
			if id == userID {
				n++
				continue
			}
			kept = append(kept, id)
		}
		a.Owners = kept
	}
	return n, nil
}

func (q *memQueries) DeleteOrphanAccounts(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for id, a := range q.st.accounts {
		if len(a.Owners) == 0 {
			q.st.deleteAccount(id)
			n++
		}
	}
	return n, nil
}

// ─── Transactions ───────────────────────────────────────────────────────────

func (q *memQueries) checkRefs(accountID int64, tagID *int64) error {
	if _, ok := q.st.accounts[accountID]; !ok {
		return notFound("account", accountID)
	}
	if tagID != nil {
		if _, ok := q.st.tags[*tagID]; !ok {
			return notFound("tag", *tagID)
		}
	}
	return nil
}

func (q *memQueries) InsertTransaction(ctx context.Context, t *domain.Transaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkRefs(t.AccountID, t.TagID); err != nil {
		return err
	}
	t.ID = q.st.next("transactions")
	cp := *t
	cp.Date = *Date(t.Date)
	q.st.transactions[t.ID] = &cp
	return nil
}

func (q *memQueries) UpdateTransaction(ctx context.Context, t *domain.Transaction) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.st.transactions[t.ID]
	if !ok {
		return notFound("transaction", t.ID)
	}
	if err := q.checkRefs(cur.AccountID, t.TagID); err != nil {
		return err
	}
	accountID, scheduled := cur.AccountID, cur.Scheduled
	*cur = *t
	cur.AccountID, cur.Scheduled = accountID, scheduled
	cur.Date = *Date(t.Date)
	return nil
}

func (q *memQueries) GetTransaction(ctx context.Context, id int64) (*domain.Transaction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.st.transactions[id]
	if !ok {
		return nil, notFound("transaction", id)
	}
	cp := *t
	return &cp, nil
}

// GetTransactionForUpdate is GetTransaction: InTx already runs one
// transaction at a time.
func (q *memQueries) GetTransactionForUpdate(ctx context.Context, id int64) (*domain.Transaction, error) {
	return q.GetTransaction(ctx, id)
}

func (q *memQueries) DeleteTransaction(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.st.transactions[id]; !ok {
		return notFound("transaction", id)
	}
	delete(q.st.transactions, id)
	return nil
}

func (q *memQueries) SetReconciled(ctx context.Context, accountID int64, ids []int64, reconciled bool) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	for _, id := range ids {
		if t, ok := q.st.transactions[id]; ok && t.AccountID == accountID {
			t.Reconciled = reconciled
			n++
		}
	}
	return n, nil
}

// matching returns the rows of q, unordered. Running balances are filled
// before filtering when asked.
func (q *memQueries) matching(tq TransactionQuery) ([]domain.TransactionRow, error) {
	if tq.WithBalances {
		a, ok := q.st.accounts[tq.AccountID]
		if !ok {
			return nil, notFound("account", tq.AccountID)
		}
		var all []domain.TransactionRow
		for _, t := range q.st.transactions {
			if t.AccountID == tq.AccountID {
				all = append(all, q.row(t))
			}
		}
		RunningBalances(a.BalanceInitial, all)

		out := all[:0]
		for _, r := range all {
			if matches(tq, &r.Transaction) {
				out = append(out, r)
			}
		}
		return out, nil
	}

	var out []domain.TransactionRow
	for _, t := range q.st.transactions {
		if matches(tq, t) {
			out = append(out, q.row(t))
		}
	}
	return out, nil
}

func (q *memQueries) row(t *domain.Transaction) domain.TransactionRow {
	r := domain.TransactionRow{Transaction: *t}
	if t.TagID != nil {
		if tag, ok := q.st.tags[*t.TagID]; ok {
			r.TagName = tag.Name
		}
	}
	return r
}

func (q *memQueries) FindTransactions(ctx context.Context, tq TransactionQuery) ([]domain.TransactionRow, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rows, err := q.matching(tq)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if tq.Order == OrderDateDesc {
			return ledgerBefore(&rows[j].Transaction, &rows[i].Transaction)
		}
		return ledgerBefore(&rows[i].Transaction, &rows[j].Transaction)
	})

	if tq.Offset > 0 {
		if tq.Offset >= len(rows) {
			return nil, nil
		}
		rows = rows[tq.Offset:]
	}
	if tq.Limit > 0 && len(rows) > tq.Limit {
		rows = rows[:tq.Limit]
	}
	return rows, nil
}

func (q *memQueries) CountTransactions(ctx context.Context, tq TransactionQuery) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq.WithBalances = false
	rows, err := q.matching(tq)
	return len(rows), err
}

func (q *memQueries) SumTransactions(ctx context.Context, tq TransactionQuery) (decimal.Decimal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq.WithBalances = false
	rows, err := q.matching(tq)
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Amount)
	}
	return sum, nil
}

func (q *memQueries) SumByTag(ctx context.Context, tq TransactionQuery) ([]TagSum, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq.WithBalances = false
	rows, err := q.matching(tq)
	if err != nil {
		return nil, err
	}

	groups := map[int64]*TagSum{} // 0 holds untagged rows
	for _, r := range rows {
		var key int64
		if r.TagID != nil {
			key = *r.TagID
		}
		g, ok := groups[key]
		if !ok {
			g = &TagSum{TagName: r.TagName, Sum: decimal.Zero}
			if r.TagID != nil {
				id := *r.TagID
				g.TagID = &id
			}
			groups[key] = g
		}
		g.Sum = g.Sum.Add(r.Amount)
		g.Count++
	}

	keys := make([]int64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]TagSum, 0, len(keys))
	for _, k := range keys {
		out = append(out, *groups[k])
	}
	return out, nil
}

func (q *memQueries) SumByDate(ctx context.Context, tq TransactionQuery) ([]DateSum, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq.WithBalances = false
	rows, err := q.matching(tq)
	if err != nil {
		return nil, err
	}

	groups := map[time.Time]*DateSum{}
	for _, r := range rows {
		g, ok := groups[r.Date]
		if !ok {
			g = &DateSum{Date: r.Date, Sum: decimal.Zero}
			groups[r.Date] = g
		}
		g.Sum = g.Sum.Add(r.Amount)
		g.Count++
	}

	out := make([]DateSum, 0, len(groups))
	for _, g := range groups {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (q *memQueries) DateBounds(ctx context.Context, tq TransactionQuery) (first, last time.Time, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	tq.WithBalances = false
	rows, err := q.matching(tq)
	if err != nil || len(rows) == 0 {
		return first, last, false, err
	}
	first, last = rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(first) {
			first = r.Date
		}
		if r.Date.After(last) {
			last = r.Date
		}
	}
	return first, last, true, nil
}

func matches(q TransactionQuery, t *domain.Transaction) bool {
	if q.AccountID != 0 && t.AccountID != q.AccountID {
		return false
	}
	if len(q.IDs) > 0 && !containsID(q.IDs, t.ID) {
		return false
	}
	if q.Label != "" && !strings.Contains(strings.ToLower(t.Label), strings.ToLower(q.Label)) {
		return false
	}
	if q.DateFrom != nil && t.Date.Before(*q.DateFrom) {
		return false
	}
	if q.DateTo != nil && t.Date.After(*q.DateTo) {
		return false
	}
	if q.DateBefore != nil && !t.Date.Before(*q.DateBefore) {
		return false
	}
	if q.DateAfter != nil && !t.Date.After(*q.DateAfter) {
		return false
	}
	if q.AmountMin != nil && t.Amount.LessThan(*q.AmountMin) {
		return false
	}
	if q.AmountMax != nil && t.Amount.GreaterThan(*q.AmountMax) {
		return false
	}
	switch q.Sign {
	case Credit:
		if !t.Amount.IsPositive() {
			return false
		}
	case Debit:
		if !t.Amount.IsNegative() {
			return false
		}
	}
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, t.Status) {
		return false
	}
	if q.Reconciled != nil && t.Reconciled != *q.Reconciled {
		return false
	}
	if q.Scheduled != nil && t.Scheduled != *q.Scheduled {
		return false
	}
	if len(q.TagIDs) > 0 || q.Untagged {
		tagged := t.TagID != nil && containsID(q.TagIDs, *t.TagID)
		if !tagged && !(q.Untagged && t.TagID == nil) {
			return false
		}
	}
	return true
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func containsStatus(statuses []domain.Status, s domain.Status) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

// ─── Schedulers ─────────────────────────────────────────────────────────────

func (q *memQueries) InsertScheduler(ctx context.Context, s *domain.Scheduler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.checkRefs(s.AccountID, s.TagID); err != nil {
		return err
	}
	s.ID = q.st.next("schedulers")
	cp := copyScheduler(s)
	cp.Date = *Date(s.Date)
	q.st.schedulers[s.ID] = cp
	return nil
}

func (q *memQueries) UpdateScheduler(ctx context.Context, s *domain.Scheduler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.st.schedulers[s.ID]
	if !ok {
		return notFound("scheduler", s.ID)
	}
	if err := q.checkRefs(cur.AccountID, s.TagID); err != nil {
		return err
	}
	accountID := cur.AccountID
	*cur = *copyScheduler(s)
	cur.AccountID = accountID
	cur.Date = *Date(s.Date)
	return nil
}

func (q *memQueries) GetScheduler(ctx context.Context, id int64) (*domain.Scheduler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.st.schedulers[id]
	if !ok {
		return nil, notFound("scheduler", id)
	}
	return copyScheduler(s), nil
}

func (q *memQueries) GetSchedulerForUpdate(ctx context.Context, id int64) (*domain.Scheduler, error) {
	return q.GetScheduler(ctx, id)
}

func (q *memQueries) DeleteScheduler(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.st.schedulers[id]; !ok {
		return notFound("scheduler", id)
	}
	delete(q.st.schedulers, id)
	return nil
}

func (q *memQueries) ListSchedulers(ctx context.Context, accountID int64) ([]domain.Scheduler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.Scheduler
	for _, s := range q.st.schedulers {
		if s.AccountID == accountID {
			out = append(out, *copyScheduler(s))
		}
	}
	// last_action DESC NULLS LAST, id
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastAction, out[j].LastAction
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (q *memQueries) AwaitingSchedulers(ctx context.Context, aq AwaitingQuery) ([]domain.Scheduler, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []domain.Scheduler
	for _, s := range q.st.schedulers {
		if awaiting(s, aq) {
			out = append(out, *copyScheduler(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	if aq.Limit > 0 && len(out) > aq.Limit {
		out = out[:aq.Limit]
	}
	return out, nil
}

func awaiting(s *domain.Scheduler, aq AwaitingQuery) bool {
	switch s.State {
	case domain.StateWaiting:
		return true
	case domain.StateFinished:
		if s.LastAction == nil {
			return false
		}
		if s.Type == domain.SchedulerMonthly {
			return s.LastAction.Before(aq.MonthStart)
		}
		if s.Type == domain.SchedulerWeekly {
			return s.LastAction.Before(aq.WeekStart)
		}
	}
	return false
}

func (q *memQueries) MarkSchedulerFailed(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.st.schedulers[id]
	if !ok {
		return notFound("scheduler", id)
	}
	s.State = domain.StateFailed
	return nil
}

func (q *memQueries) SchedulerTotals(ctx context.Context, accountID int64) ([]SchedulerTotal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	totals := map[domain.SchedulerType]*SchedulerTotal{}
	for _, s := range q.st.schedulers {
		if s.AccountID != accountID || !s.Status.CountsInBalance() || s.Amount.IsZero() {
			continue
		}
		t, ok := totals[s.Type]
		if !ok {
			t = &SchedulerTotal{Type: s.Type, Credit: decimal.Zero, Debit: decimal.Zero}
			totals[s.Type] = t
		}
		if s.Amount.IsPositive() {
			t.Credit = t.Credit.Add(s.Amount)
		} else {
			t.Debit = t.Debit.Add(s.Amount)
		}
	}

	out := make([]SchedulerTotal, 0, len(totals))
	for _, t := range totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

// ─── Tags ───────────────────────────────────────────────────────────────────

func (q *memQueries) InsertTag(ctx context.Context, t *domain.Tag) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t.ID = q.st.next("tags")
	cp := *t
	q.st.tags[t.ID] = &cp
	return nil
}

func (q *memQueries) UpdateTag(ctx context.Context, t *domain.Tag) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur, ok := q.st.tags[t.ID]
	if !ok {
		return notFound("tag", t.ID)
	}
	cur.Name = t.Name
	return nil
}

func (q *memQueries) GetTag(ctx context.Context, id int64) (*domain.Tag, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.st.tags[id]
	if !ok {
		return nil, notFound("tag", id)
	}
	cp := *t
	return &cp, nil
}

func (q *memQueries) DeleteTag(ctx context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.st.tags[id]; !ok {
		return notFound("tag", id)
	}
	delete(q.st.tags, id)
	for _, t := range q.st.transactions {
		if t.TagID != nil && *t.TagID == id {
			t.TagID = nil
		}
	}
	for _, s := range q.st.schedulers {
		if s.TagID != nil && *s.TagID == id {
			s.TagID = nil
		}
	}
	return nil
}

func (q *memQueries) VisibleTags(ctx context.Context, userID int64) ([]domain.Tag, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	owners := map[int64]bool{userID: true}
	for _, a := range q.st.accounts {
		if a.HasOwner(userID) {
			for _, id := range a.Owners {
				owners[id] = true
			}
		}
	}

	var out []domain.Tag
	for _, t := range q.st.tags {
		if owners[t.OwnerID] {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
