package api

import (
	"net/http"
	"strconv"

	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/service"
	"github.com/shopspring/decimal"
)

// ─── Accounts ───────────────────────────────────────────────────────────────

type accountRequest struct {
	Label          string          `json:"label"`
	BalanceInitial decimal.Decimal `json:"balance_initial"`
	Currency       string          `json:"currency"`
	Owners         []int64         `json:"owners"`
}

type accountView struct {
	*domain.Account
	CurrentBalance    decimal.Decimal `json:"current_balance"`
	ReconciledBalance decimal.Decimal `json:"reconciled_balance"`
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Accounts.List(r.Context(), userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAddAccount) {
		return
	}
	var req accountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if len(req.Owners) > 0 && !h.require(w, r, PermAdministerOwners) {
		return
	}

	a := &domain.Account{
		Label:          req.Label,
		BalanceInitial: req.BalanceInitial,
		Currency:       req.Currency,
		Owners:         req.Owners,
	}
	if err := h.Accounts.Create(r.Context(), userID(r), a); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+strconv.FormatInt(a.ID, 10))
	respondWithJSON(w, http.StatusCreated, a)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	current, err := h.Ledger.CurrentBalance(r.Context(), a, h.now())
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	reconciled, err := h.Ledger.ReconciledBalance(r.Context(), a)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accountView{Account: a, CurrentBalance: current, ReconciledBalance: reconciled})
}

func (h *Handler) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermChangeAccount) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	var changes service.AccountChanges
	if err := decodeJSON(r, &changes); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if changes.Owners != nil && !h.require(w, r, PermAdministerOwners) {
		return
	}
	if err := h.Accounts.Update(r.Context(), a, changes); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, a)
}

func (h *Handler) DeleteAccountHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermDeleteAccount) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	if err := h.Accounts.Delete(r.Context(), a.ID); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Transactions ───────────────────────────────────────────────────────────

type transactionRequest struct {
	Label         string               `json:"label"`
	Date          string               `json:"date"`
	Amount        decimal.Decimal      `json:"amount"`
	Status        domain.Status        `json:"status"`
	Reconciled    bool                 `json:"reconciled"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Memo          string               `json:"memo"`
	TagID         *int64               `json:"tag_id"`
}

func (req transactionRequest) transaction() (*domain.Transaction, error) {
	date, err := parseDay(req.Date)
	if err != nil {
		return nil, err
	}
	return &domain.Transaction{
		Label:         req.Label,
		Date:          date,
		Amount:        req.Amount,
		Status:        req.Status,
		Reconciled:    req.Reconciled,
		PaymentMethod: req.PaymentMethod,
		Memo:          req.Memo,
		TagID:         req.TagID,
	}, nil
}

// readTransaction decodes the body and checks the caller may use its tag.
func (h *Handler) readTransaction(r *http.Request) (*domain.Transaction, error) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	t, err := req.transaction()
	if err != nil {
		return nil, err
	}
	if t.TagID != nil {
		if err := h.Tags.CheckVisible(r.Context(), userID(r), *t.TagID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// transaction resolves the {id} transaction and its account for the caller.
func (h *Handler) transaction(w http.ResponseWriter, r *http.Request) (*domain.Account, *domain.Transaction, bool) {
	t, err := h.Store.GetTransaction(r.Context(), pathID(r, "id"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return nil, nil, false
	}
	a, err := h.Accounts.ForUser(r.Context(), userID(r), t.AccountID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return nil, nil, false
	}
	return a, t, true
}

func transactionFilter(r *http.Request) (service.TransactionFilter, int, error) {
	var f service.TransactionFilter
	q := r.URL.Query()

	f.Label = q.Get("label")
	if v := q.Get("date_start"); v != "" {
		d, err := parseDay(v)
		if err != nil {
			return f, 0, err
		}
		f.DateFrom = &d
	}
	if v := q.Get("date_end"); v != "" {
		d, err := parseDay(v)
		if err != nil {
			return f, 0, err
		}
		f.DateTo = &d
	}
	for _, p := range []struct {
		key string
		dst **decimal.Decimal
	}{{"amount_min", &f.AmountMin}, {"amount_max", &f.AmountMax}} {
		if v := q.Get(p.key); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return f, 0, domain.Invalid("invalid %s %q", p.key, v)
			}
			*p.dst = &d
		}
	}
	for _, s := range q["status"] {
		f.Statuses = append(f.Statuses, domain.Status(s))
	}
	if v := q.Get("reconciled"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, 0, domain.Invalid("invalid reconciled %q", v)
		}
		f.Reconciled = &b
	}
	tags, err := parseIDs(q["tags"])
	if err != nil {
		return f, 0, err
	}
	f.TagIDs = tags
	f.Untagged = q.Get("untagged") == "true" || q.Get("untagged") == "1"

	page := 1
	if v := q.Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil {
			return f, 0, domain.Invalid("invalid page %q", v)
		}
	}
	return f, page, nil
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	f, page, err := transactionFilter(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if err := h.Tags.CheckVisible(r.Context(), userID(r), f.TagIDs...); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	res, err := h.Ledger.ListTransactions(r.Context(), a, f, page)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAddTransaction) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	t, err := h.readTransaction(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if err := h.Ledger.Create(r.Context(), a, t); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/transactions/"+strconv.FormatInt(t.ID, 10))
	respondWithJSON(w, http.StatusCreated, t)
}

type bulkRequest struct {
	Action string  `json:"action"`
	IDs    []int64 `json:"ids"`
}

func (h *Handler) BulkTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	var req bulkRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	var (
		n   int64
		err error
	)
	switch req.Action {
	case "reconcile", "unreconcile":
		if !h.require(w, r, PermChangeTransaction) {
			return
		}
		n, err = h.Ledger.ReconcileMany(r.Context(), a, req.IDs, req.Action == "reconcile")
	case "delete":
		if !h.require(w, r, PermDeleteTransaction) {
			return
		}
		var deleted int
		deleted, err = h.Ledger.DeleteMany(r.Context(), a, req.IDs)
		n = int64(deleted)
	default:
		err = domain.Invalid("unknown action %q", req.Action)
	}
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"action": req.Action, "count": n, "balance": a.Balance})
}

func (h *Handler) CalendarHandler(w http.ResponseWriter, r *http.Request) {
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	from, errFrom := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	to, errTo := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if errFrom != nil || errTo != nil {
		respondWithError(w, http.StatusBadRequest, "from and to must be millisecond timestamps")
		return
	}
	events, err := h.Ledger.CalendarEvents(r.Context(), a, from, to)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"success": 1, "result": events})
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if _, t, ok := h.transaction(w, r); ok {
		respondWithJSON(w, http.StatusOK, t)
	}
}

func (h *Handler) UpdateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermChangeTransaction) {
		return
	}
	a, cur, ok := h.transaction(w, r)
	if !ok {
		return
	}
	t, err := h.readTransaction(r)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	t.ID = cur.ID
	if err := h.Ledger.Update(r.Context(), a, t); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTransactionHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermDeleteTransaction) {
		return
	}
	a, t, ok := h.transaction(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.Delete(r.Context(), a, t.ID); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Tags ───────────────────────────────────────────────────────────────────

type tagRequest struct {
	Name string `json:"name"`
}

func (h *Handler) ListTagsHandler(w http.ResponseWriter, r *http.Request) {
	tags, err := h.Tags.Visible(r.Context(), userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	respondWithJSON(w, http.StatusOK, tags)
}

func (h *Handler) CreateTagHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAddTag) {
		return
	}
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	t := &domain.Tag{Name: req.Name}
	if err := h.Tags.Create(r.Context(), userID(r), t); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, t)
}

func (h *Handler) UpdateTagHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermChangeTag) {
		return
	}
	var req tagRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	t := &domain.Tag{ID: pathID(r, "id"), Name: req.Name}
	if err := h.Tags.Update(r.Context(), userID(r), t); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

func (h *Handler) DeleteTagHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermDeleteTag) {
		return
	}
	if err := h.Tags.Delete(r.Context(), userID(r), pathID(r, "id")); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Hooks ──────────────────────────────────────────────────────────────────

type userDeletedRequest struct {
	UserID int64 `json:"user_id"`
}

// UserDeletedHandler is called by the identity provider once a user is gone.
func (h *Handler) UserDeletedHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermDeleteUser) {
		return
	}
	var req userDeletedRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if req.UserID <= 0 {
		h.respondWithErr(w, r, domain.Invalid("user_id is required"))
		return
	}
	n, err := h.Accounts.HandleUserDeleted(r.Context(), req.UserID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"deleted_accounts": n})
}
