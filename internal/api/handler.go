package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/report"
	"github.com/punchamoorthee/mymoney/internal/service"
	"github.com/punchamoorthee/mymoney/internal/store"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mymoney_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mymoney_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

const (
	UserHeader    = "X-User-ID"
	SessionCookie = "mymoney_session"
)

// Services are the application layers served over HTTP.
type Services struct {
	Store      store.Querier
	Accounts   *service.AccountService
	Ledger     *service.LedgerService
	Schedulers *service.SchedulerService
	Tags       *service.TagService
	Ratio      *report.RatioReport
	Trend      *report.TrendReport
}

type Handler struct {
	Services
	perms Permissions
	log   *slog.Logger
	now   func() time.Time
}

func NewHandler(svc Services, perms Permissions, logger *slog.Logger) *Handler {
	return &Handler{Services: svc, perms: perms, log: logger, now: time.Now}
}

// NewRouter mounts the JSON API under /api/v1 next to /health and /metrics.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(metricsMiddleware)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(userMiddleware, sessionMiddleware)

	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods("GET")
	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.GetAccountHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.UpdateAccountHandler).Methods("PUT")
	v1.HandleFunc("/accounts/{id:[0-9]+}", h.DeleteAccountHandler).Methods("DELETE")

	v1.HandleFunc("/accounts/{id:[0-9]+}/transactions", h.ListTransactionsHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/transactions", h.CreateTransactionHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/transactions/bulk", h.BulkTransactionsHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/calendar", h.CalendarHandler).Methods("GET")
	v1.HandleFunc("/transactions/{id:[0-9]+}", h.GetTransactionHandler).Methods("GET")
	v1.HandleFunc("/transactions/{id:[0-9]+}", h.UpdateTransactionHandler).Methods("PUT")
	v1.HandleFunc("/transactions/{id:[0-9]+}", h.DeleteTransactionHandler).Methods("DELETE")

	v1.HandleFunc("/accounts/{id:[0-9]+}/schedulers", h.ListSchedulersHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/schedulers", h.CreateSchedulerHandler).Methods("POST")
	v1.HandleFunc("/schedulers/{id:[0-9]+}", h.GetSchedulerHandler).Methods("GET")
	v1.HandleFunc("/schedulers/{id:[0-9]+}", h.UpdateSchedulerHandler).Methods("PUT")
	v1.HandleFunc("/schedulers/{id:[0-9]+}", h.DeleteSchedulerHandler).Methods("DELETE")
	v1.HandleFunc("/schedulers/{id:[0-9]+}/clone", h.CloneSchedulerHandler).Methods("POST")
	v1.HandleFunc("/schedulers/{id:[0-9]+}/reset", h.ResetSchedulerHandler).Methods("POST")

	v1.HandleFunc("/tags", h.ListTagsHandler).Methods("GET")
	v1.HandleFunc("/tags", h.CreateTagHandler).Methods("POST")
	v1.HandleFunc("/tags/{id:[0-9]+}", h.UpdateTagHandler).Methods("PUT")
	v1.HandleFunc("/tags/{id:[0-9]+}", h.DeleteTagHandler).Methods("DELETE")

	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/ratio", h.RatioHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/ratio", h.SetRatioFiltersHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/ratio", h.ResetRatioHandler).Methods("DELETE")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/ratio/tags/{tag:[0-9]+}", h.RatioSummaryHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/trendtime", h.TrendHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/trendtime", h.SetTrendFiltersHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/trendtime", h.ResetTrendHandler).Methods("DELETE")
	v1.HandleFunc("/accounts/{id:[0-9]+}/analytics/trendtime/days/{date}", h.TrendDayHandler).Methods("GET")

	v1.HandleFunc("/hooks/user-deleted", h.UserDeletedHandler).Methods("POST")
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Middleware ─────────────────────────────────────────────────────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		next.ServeHTTP(rec, r)
		timer.ObserveDuration()
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

type ctxKey int

const (
	userKey ctxKey = iota
	sessionKey
)

// userMiddleware reads the identity forwarded by the authenticating proxy.
func userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			respondWithError(w, http.StatusUnauthorized, "Missing or invalid "+UserHeader+" header")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, id)))
	})
}

// sessionMiddleware keys report state by a random session cookie.
func sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var sid string
		if c, err := r.Cookie(SessionCookie); err == nil {
			if _, err := uuid.Parse(c.Value); err == nil {
				sid = c.Value
			}
		}
		if sid == "" {
			sid = uuid.NewString()
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sid,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, sid)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(userKey).(int64)
	return id
}

func sessionID(r *http.Request) string {
	sid, _ := r.Context().Value(sessionKey).(string)
	return sid
}

// ─── Request helpers ────────────────────────────────────────────────────────

func pathID(r *http.Request, name string) int64 {
	// Route patterns only match digits.
	id, _ := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("malformed JSON body: %v", err)
	}
	return nil
}

const dateLayout = "2006-01-02"

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return t, domain.Invalid("invalid date %q", s)
	}
	return t, nil
}

func parseIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, domain.Invalid("invalid id %q", part)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// account resolves the {id} account of the request for the caller.
func (h *Handler) account(w http.ResponseWriter, r *http.Request) (*domain.Account, bool) {
	a, err := h.Accounts.ForUser(r.Context(), userID(r), pathID(r, "id"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return nil, false
	}
	return a, true
}

func (h *Handler) require(w http.ResponseWriter, r *http.Request, p Permission) bool {
	if h.perms.Has(r, p) {
		return true
	}
	respondWithError(w, http.StatusForbidden, "Permission denied")
	return false
}

// ─── Responses ──────────────────────────────────────────────────────────────

func statusOf(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNoFilters), errors.Is(err, domain.ErrNoResult):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *Handler) respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondWithError(w, code, "Internal Server Error")
		return
	}
	respondWithError(w, code, err.Error())
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
