package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/report"
	"github.com/punchamoorthee/mymoney/internal/service"
	"github.com/punchamoorthee/mymoney/internal/session"
	"github.com/punchamoorthee/mymoney/internal/store"
	"github.com/shopspring/decimal"
)

type testServer struct {
	router  *mux.Router
	cookies []*http.Cookie
}

func newTestServer(t *testing.T, perms Permissions) *testServer {
	t.Helper()
	s := store.NewMemoryStore()
	sessions := session.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := service.NewLedgerService(s, time.Monday, logger)

	h := NewHandler(Services{
		Store:      s,
		Accounts:   service.NewAccountService(s, logger),
		Ledger:     ledger,
		Schedulers: service.NewSchedulerService(s, ledger, time.Monday, logger),
		Tags:       service.NewTagService(s),
		Ratio:      report.NewRatioReport(s, sessions),
		Trend:      report.NewTrendReport(s, sessions, time.Monday),
	}, perms, logger)
	return &testServer{router: NewRouter(h)}
}

// do sends a request as user and keeps the session cookie it gets back.
func (ts *testServer) do(t *testing.T, method, path string, user int64, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user > 0 {
		req.Header.Set(UserHeader, strconv.FormatInt(user, 10))
	}
	for _, c := range ts.cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	ts.router.ServeHTTP(rr, req)
	if cookies := rr.Result().Cookies(); len(cookies) > 0 {
		ts.cookies = cookies
	}
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func (ts *testServer) createAccount(t *testing.T, user int64, initial string) domain.Account {
	t.Helper()
	rr := ts.do(t, "POST", "/api/v1/accounts", user, map[string]any{
		"label": "Checking", "currency": "EUR", "balance_initial": initial,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create account status = %d, want %d: %s", rr.Code, http.StatusCreated, rr.Body)
	}
	var a domain.Account
	decodeBody(t, rr, &a)
	return a
}

func (ts *testServer) createTransaction(t *testing.T, accountID int64, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.do(t, "POST", "/api/v1/accounts/"+strconv.FormatInt(accountID, 10)+"/transactions", 1, body)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	if rr := ts.do(t, "GET", "/health", 0, nil); rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestUserHeaderRequired(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	if rr := ts.do(t, "GET", "/api/v1/accounts", 0, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestAccountAccess(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "100")
	path := "/api/v1/accounts/" + strconv.FormatInt(a.ID, 10)

	tests := []struct {
		name string
		path string
		user int64
		want int
	}{
		{"owner", path, 1, http.StatusOK},
		{"stranger", path, 2, http.StatusForbidden},
		{"unknown", "/api/v1/accounts/999", 1, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := ts.do(t, "GET", tt.path, tt.user, nil); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestPermissionDenied(t *testing.T) {
	ts := newTestServer(t, HeaderPermissions{})
	rr := ts.do(t, "POST", "/api/v1/accounts", 1, map[string]any{"label": "x", "currency": "EUR"})
	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "100")

	rr := ts.createTransaction(t, a.ID, map[string]any{"label": "Groceries", "date": "2015-05-19", "amount": "-30.50"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rr.Code, rr.Body)
	}
	var tx domain.Transaction
	decodeBody(t, rr, &tx)
	if tx.Currency != "EUR" || tx.Status != domain.StatusActive {
		t.Errorf("transaction = %s %s, want EUR active", tx.Currency, tx.Status)
	}

	rr = ts.createTransaction(t, a.ID, map[string]any{"label": "Bad", "date": "19/05/2015", "amount": "1"})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}

	path := "/api/v1/transactions/" + strconv.FormatInt(tx.ID, 10)
	rr = ts.do(t, "PUT", path, 1, map[string]any{"label": "Groceries", "date": "2015-05-19", "amount": "-10", "status": "inactive"})
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rr.Code, rr.Body)
	}
	if rr := ts.do(t, "GET", path, 2, nil); rr.Code != http.StatusForbidden {
		t.Errorf("stranger read status = %d, want %d", rr.Code, http.StatusForbidden)
	}

	var view struct {
		Balance decimal.Decimal `json:"balance"`
	}
	decodeBody(t, ts.do(t, "GET", "/api/v1/accounts/"+strconv.FormatInt(a.ID, 10), 1, nil), &view)
	if !view.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance = %v, want 100", view.Balance)
	}

	if rr := ts.do(t, "DELETE", path, 1, nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestBulkAndList(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "0")
	base := "/api/v1/accounts/" + strconv.FormatInt(a.ID, 10)

	var ids []int64
	for _, amount := range []string{"10", "-4", "7"} {
		var tx domain.Transaction
		decodeBody(t, ts.createTransaction(t, a.ID, map[string]any{"label": "row", "date": "2015-05-19", "amount": amount}), &tx)
		ids = append(ids, tx.ID)
	}

	rr := ts.do(t, "POST", base+"/transactions/bulk", 1, map[string]any{"action": "delete", "ids": ids[:2]})
	if rr.Code != http.StatusOK {
		t.Fatalf("bulk status = %d: %s", rr.Code, rr.Body)
	}
	if rr := ts.do(t, "POST", base+"/transactions/bulk", 1, map[string]any{"action": "delete", "ids": []int64{}}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty selection status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}

	var page service.TransactionPage
	decodeBody(t, ts.do(t, "GET", base+"/transactions", 1, nil), &page)
	if page.Count != 1 || !page.Balance.Equal(decimal.NewFromInt(7)) {
		t.Errorf("page = %d rows, balance %v, want 1 row, 7", page.Count, page.Balance)
	}

	if rr := ts.do(t, "GET", base+"/transactions?date_start=2015-06-01&date_end=2015-05-01", 1, nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("inverted range status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
}

func TestCalendar(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "0")
	base := "/api/v1/accounts/" + strconv.FormatInt(a.ID, 10)
	ts.createTransaction(t, a.ID, map[string]any{"label": "Rent", "date": "2015-05-19", "amount": "-500"})

	from := time.Date(2015, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	to := time.Date(2015, 5, 31, 0, 0, 0, 0, time.UTC).UnixMilli()
	var body struct {
		Success int                     `json:"success"`
		Result  []service.CalendarEvent `json:"result"`
	}
	decodeBody(t, ts.do(t, "GET", base+"/calendar?from="+strconv.FormatInt(from, 10)+"&to="+strconv.FormatInt(to, 10), 1, nil), &body)
	if len(body.Result) != 1 || body.Result[0].Title != "Rent, -500.00" || body.Result[0].Class != service.EventDebit {
		t.Errorf("events = %+v, want one debit Rent event", body.Result)
	}

	if rr := ts.do(t, "GET", base+"/calendar?from=abc", 1, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestRatioAnalytics(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "0")
	base := "/api/v1/accounts/" + strconv.FormatInt(a.ID, 10) + "/analytics/ratio"
	ts.createTransaction(t, a.ID, map[string]any{"label": "Rent", "date": "2015-05-02", "amount": "-75"})
	ts.createTransaction(t, a.ID, map[string]any{"label": "Food", "date": "2015-05-03", "amount": "-25"})

	var empty analyticsView
	decodeBody(t, ts.do(t, "GET", base, 1, nil), &empty)
	if empty.Filters != nil || empty.Result != nil {
		t.Errorf("report without filters = %+v, want empty", empty)
	}

	rr := ts.do(t, "POST", base, 1, map[string]any{"type": "single_debit", "date_start": "2015-05-01", "date_end": "2015-05-31"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set filters status = %d: %s", rr.Code, rr.Body)
	}

	var view struct {
		Result report.RatioResult `json:"result"`
	}
	decodeBody(t, ts.do(t, "GET", base, 1, nil), &view)
	if len(view.Result.Rows) != 1 || !view.Result.Rows[0].Percentage.Equal(decimal.NewFromInt(100)) {
		t.Errorf("rows = %+v, want one untagged group at 100%%", view.Result.Rows)
	}

	if rr := ts.do(t, "POST", base, 1, map[string]any{"type": "single_debit", "date_start": "2015-05-31", "date_end": "2015-05-01"}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("reversed dates status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
	}
	if rr := ts.do(t, "DELETE", base, 1, nil); rr.Code != http.StatusNoContent {
		t.Errorf("reset status = %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr := ts.do(t, "GET", base+"/tags/0", 1, nil); rr.Code != http.StatusBadRequest {
		t.Errorf("summary without filters status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestTrendAnalytics(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "100")
	base := "/api/v1/accounts/" + strconv.FormatInt(a.ID, 10) + "/analytics/trendtime"
	ts.createTransaction(t, a.ID, map[string]any{"label": "Salary", "date": "2015-05-04", "amount": "50"})

	rr := ts.do(t, "POST", base, 1, map[string]any{"granularity": "month", "date": "2015-05-10"})
	if rr.Code != http.StatusOK {
		t.Fatalf("set filters status = %d: %s", rr.Code, rr.Body)
	}

	var view struct {
		Result *report.TrendResult `json:"result"`
	}
	decodeBody(t, ts.do(t, "GET", base, 1, nil), &view)
	if view.Result == nil || len(view.Result.Rows) != 1 || !view.Result.Rows[0].Percentage.Equal(decimal.NewFromInt(50)) {
		t.Errorf("result = %+v, want one day at 50%%", view.Result)
	}

	view.Result = nil
	decodeBody(t, ts.do(t, "GET", base+"?date=2015-07-01", 1, nil), &view)
	if view.Result != nil {
		t.Errorf("result outside the rows = %+v, want none", view.Result)
	}

	var detail report.Detail
	decodeBody(t, ts.do(t, "GET", base+"/days/2015-05-04", 1, nil), &detail)
	if len(detail.Rows) != 1 {
		t.Errorf("day rows = %d, want 1", len(detail.Rows))
	}
}

func TestSchedulerClone(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "0")
	rr := ts.do(t, "POST", "/api/v1/accounts/"+strconv.FormatInt(a.ID, 10)+"/schedulers", 1, map[string]any{
		"label": "Rent", "date": "2015-01-31", "amount": "-500", "type": "monthly", "recurrence": 2,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create scheduler status = %d: %s", rr.Code, rr.Body)
	}
	var sc domain.Scheduler
	decodeBody(t, rr, &sc)

	rr = ts.do(t, "POST", "/api/v1/schedulers/"+strconv.FormatInt(sc.ID, 10)+"/clone", 1, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("clone status = %d: %s", rr.Code, rr.Body)
	}
	var cloned struct {
		Scheduler domain.Scheduler `json:"scheduler"`
		Balance   decimal.Decimal  `json:"balance"`
	}
	decodeBody(t, rr, &cloned)
	if !cloned.Balance.Equal(decimal.NewFromInt(-500)) {
		t.Errorf("balance = %v, want -500", cloned.Balance)
	}
	if want := time.Date(2015, 2, 28, 0, 0, 0, 0, time.UTC); !cloned.Scheduler.Date.Equal(want) {
		t.Errorf("next date = %v, want %v", cloned.Scheduler.Date, want)
	}
	if cloned.Scheduler.State != domain.StateFinished {
		t.Errorf("state = %s, want finished", cloned.Scheduler.State)
	}
}

func TestTagVisibility(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	a := ts.createAccount(t, 1, "0")

	var tag domain.Tag
	decodeBody(t, ts.do(t, "POST", "/api/v1/tags", 2, map[string]any{"name": "foreign"}), &tag)

	rr := ts.createTransaction(t, a.ID, map[string]any{"label": "x", "date": "2015-05-01", "amount": "1", "tag_id": tag.ID})
	if rr.Code != http.StatusForbidden {
		t.Errorf("foreign tag status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestUserDeletedHook(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	ts.createAccount(t, 5, "0")

	var body map[string]int64
	decodeBody(t, ts.do(t, "POST", "/api/v1/hooks/user-deleted", 1, map[string]any{"user_id": 5}), &body)
	if body["deleted_accounts"] != 1 {
		t.Errorf("deleted_accounts = %d, want 1", body["deleted_accounts"])
	}
}

func TestSessionCookie(t *testing.T) {
	ts := newTestServer(t, AllowAll{})
	ts.do(t, "GET", "/api/v1/accounts", 1, nil)
	if len(ts.cookies) != 1 || ts.cookies[0].Name != SessionCookie {
		t.Fatalf("cookies = %v, want %s", ts.cookies, SessionCookie)
	}
	first := ts.cookies[0].Value

	rr := ts.do(t, "GET", "/api/v1/accounts", 1, nil)
	if len(rr.Result().Cookies()) != 0 {
		t.Errorf("session cookie reissued for a valid session")
	}
	if ts.cookies[0].Value != first {
		t.Errorf("session changed from %s to %s", first, ts.cookies[0].Value)
	}
}
