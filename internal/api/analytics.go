package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/mymoney/internal/dates"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/punchamoorthee/mymoney/internal/report"
	"github.com/shopspring/decimal"
)

// analyticsView is the body of a report GET. A report without filters, or
// without rows for them, is an empty state rather than an error.
type analyticsView struct {
	Filters any `json:"filters"`
	Result  any `json:"result"`
}

type ratioRequest struct {
	Type       report.RatioType `json:"type"`
	Chart      string           `json:"chart"`
	DateStart  string           `json:"date_start"`
	DateEnd    string           `json:"date_end"`
	Reconciled *bool            `json:"reconciled"`
	Tags       []int64          `json:"tags"`
	SumMin     *decimal.Decimal `json:"sum_min"`
	SumMax     *decimal.Decimal `json:"sum_max"`
}

func (h *Handler) RatioHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	res, err := h.Ratio.Run(r.Context(), sessionID(r), a)
	switch {
	case errors.Is(err, domain.ErrNoFilters):
		respondWithJSON(w, http.StatusOK, analyticsView{})
	case err != nil:
		h.respondWithErr(w, r, err)
	default:
		respondWithJSON(w, http.StatusOK, analyticsView{Filters: res.Filters, Result: res})
	}
}

func (h *Handler) SetRatioFiltersHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	if _, ok := h.account(w, r); !ok {
		return
	}
	var req ratioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	start, err := parseDay(req.DateStart)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	end, err := parseDay(req.DateEnd)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if err := h.Tags.CheckVisible(r.Context(), userID(r), req.Tags...); err != nil {
		h.respondWithErr(w, r, err)
		return
	}

	f, err := h.Ratio.SetFilters(r.Context(), sessionID(r), report.RatioFilters{
		Type:       req.Type,
		Chart:      req.Chart,
		DateStart:  start,
		DateEnd:    end,
		Reconciled: req.Reconciled,
		TagIDs:     req.Tags,
		SumMin:     req.SumMin,
		SumMax:     req.SumMax,
	})
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, f)
}

func (h *Handler) ResetRatioHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	if _, ok := h.account(w, r); !ok {
		return
	}
	if err := h.Ratio.Reset(r.Context(), sessionID(r)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RatioSummaryHandler lists the rows behind one ratio group. Tag 0 is the
// untagged group.
func (h *Handler) RatioSummaryHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	tagID := pathID(r, "tag")
	if tagID > 0 {
		if err := h.Tags.CheckVisible(r.Context(), userID(r), tagID); err != nil {
			h.respondWithErr(w, r, err)
			return
		}
	}
	d, err := h.Ratio.Summary(r.Context(), sessionID(r), a, tagID)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, d)
}

type trendRequest struct {
	Chart       string            `json:"chart"`
	Granularity dates.Granularity `json:"granularity"`
	Date        string            `json:"date"`
	Reconciled  *bool             `json:"reconciled"`
}

// TrendHandler runs the trend report on the stored date, or on ?date= when
// paginating.
func (h *Handler) TrendHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	var at *time.Time
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := parseDay(v)
		if err != nil {
			h.respondWithErr(w, r, err)
			return
		}
		at = &d
	}

	res, err := h.Trend.Run(r.Context(), sessionID(r), a, at)
	switch {
	case errors.Is(err, domain.ErrNoFilters):
		respondWithJSON(w, http.StatusOK, analyticsView{})
	case errors.Is(err, domain.ErrNoResult):
		f, ferr := h.Trend.Filters(r.Context(), sessionID(r))
		if ferr != nil {
			h.respondWithErr(w, r, ferr)
			return
		}
		respondWithJSON(w, http.StatusOK, analyticsView{Filters: f})
	case err != nil:
		h.respondWithErr(w, r, err)
	default:
		respondWithJSON(w, http.StatusOK, analyticsView{Filters: res.Filters, Result: res})
	}
}

func (h *Handler) SetTrendFiltersHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	if _, ok := h.account(w, r); !ok {
		return
	}
	var req trendRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	d, err := parseDay(req.Date)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	f, err := h.Trend.SetFilters(r.Context(), sessionID(r), report.TrendFilters{
		Chart:       req.Chart,
		Granularity: req.Granularity,
		Date:        d,
		Reconciled:  req.Reconciled,
	})
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, f)
}

func (h *Handler) ResetTrendHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	if _, ok := h.account(w, r); !ok {
		return
	}
	if err := h.Trend.Reset(r.Context(), sessionID(r)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TrendDayHandler(w http.ResponseWriter, r *http.Request) {
	if !h.require(w, r, PermAnalytics) {
		return
	}
	a, ok := h.account(w, r)
	if !ok {
		return
	}
	d, err := parseDay(mux.Vars(r)["date"])
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	detail, err := h.Trend.Day(r.Context(), sessionID(r), a, d)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}
