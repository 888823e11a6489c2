package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/punchamoorthee/mymoney/internal/dates"
	"github.com/punchamoorthee/mymoney/internal/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// RatioType selects the rows of a ratio report and how they are grouped.
type RatioType string

const (
	SingleCredit RatioType = "single_credit" // every credit row
	SingleDebit  RatioType = "single_debit"  // every debit row
	SumCredit    RatioType = "sum_credit"    // tag groups whose sum is positive
	SumDebit     RatioType = "sum_debit"     // tag groups whose sum is negative
)

func (t RatioType) Valid() bool {
	switch t {
	case SingleCredit, SingleDebit, SumCredit, SumDebit:
		return true
	}
	return false
}

func (t RatioType) debit() bool {
	return t == SingleDebit || t == SumDebit
}

func (t RatioType) grouped() bool {
	return t == SumCredit || t == SumDebit
}

var (
	ratioCharts = []string{"doughnut", "pie", "polar"}
	trendCharts = []string{"line", "bar", "radar"}
)

func validChart(chart string, allowed []string) bool {
	for _, c := range allowed {
		if c == chart {
			return true
		}
	}
	return false
}

// RatioFilters are the criteria of a ratio report. They are passed by
// value and Normalize returns a copy.
type RatioFilters struct {
	Type       RatioType        `json:"type"`
	Chart      string           `json:"chart"`
	DateStart  time.Time        `json:"date_start"`
	DateEnd    time.Time        `json:"date_end"`
	Reconciled *bool            `json:"reconciled,omitempty"`
	TagIDs     []int64          `json:"tags,omitempty"`
	SumMin     *decimal.Decimal `json:"sum_min,omitempty"`
	SumMax     *decimal.Decimal `json:"sum_max,omitempty"`
}

func (f RatioFilters) Validate() error {
	if !f.Type.Valid() {
		return domain.Invalid("unknown ratio type %q", f.Type)
	}
	if f.Chart != "" && !validChart(f.Chart, ratioCharts) {
		return domain.Invalid("unknown chart %q", f.Chart)
	}
	if f.DateStart.IsZero() || f.DateEnd.IsZero() {
		return domain.Invalid("date start and date end are required")
	}
	if f.DateStart.After(f.DateEnd) {
		return domain.Invalid("date start could not be greater than date end")
	}
	if f.SumMin != nil && f.SumMax != nil && f.SumMin.GreaterThan(*f.SumMax) {
		return domain.Invalid("minimum sum could not be greater than maximum sum")
	}
	return nil
}

// Normalize fills defaults and truncates dates to calendar days.
func (f RatioFilters) Normalize() RatioFilters {
	if f.Chart == "" {
		f.Chart = "doughnut"
	}
	f.DateStart = day(f.DateStart)
	f.DateEnd = day(f.DateEnd)
	f.TagIDs = append([]int64(nil), f.TagIDs...)
	return f
}

// Encode flattens f for the session store.
func (f RatioFilters) Encode() map[string]string {
	v := map[string]string{
		"type":       string(f.Type),
		"chart":      f.Chart,
		"date_start": f.DateStart.Format(dateLayout),
		"date_end":   f.DateEnd.Format(dateLayout),
	}
	if f.Reconciled != nil {
		v["reconciled"] = strconv.FormatBool(*f.Reconciled)
	}
	if len(f.TagIDs) > 0 {
		v["tags"] = joinIDs(f.TagIDs)
	}
	if f.SumMin != nil {
		v["sum_min"] = f.SumMin.String()
	}
	if f.SumMax != nil {
		v["sum_max"] = f.SumMax.String()
	}
	return v
}

// DecodeRatioFilters rebuilds filters stored by Encode. ok is false when
// v holds no filters.
func DecodeRatioFilters(v map[string]string) (f RatioFilters, ok bool, err error) {
	if v["type"] == "" {
		return f, false, nil
	}
	f.Type = RatioType(v["type"])
	f.Chart = v["chart"]
	if f.DateStart, err = parseDate(v["date_start"]); err != nil {
		return f, false, err
	}
	if f.DateEnd, err = parseDate(v["date_end"]); err != nil {
		return f, false, err
	}
	if f.Reconciled, err = parseOptBool(v["reconciled"]); err != nil {
		return f, false, err
	}
	if f.TagIDs, err = splitIDs(v["tags"]); err != nil {
		return f, false, err
	}
	if f.SumMin, err = parseOptDecimal(v["sum_min"]); err != nil {
		return f, false, err
	}
	if f.SumMax, err = parseOptDecimal(v["sum_max"]); err != nil {
		return f, false, err
	}
	return f, true, f.Validate()
}

// TrendFilters are the criteria of a trend-time report.
type TrendFilters struct {
	Chart       string            `json:"chart"`
	Granularity dates.Granularity `json:"granularity"`
	Date        time.Time         `json:"date"`
	Reconciled  *bool             `json:"reconciled,omitempty"`
}

func (f TrendFilters) Validate() error {
	if f.Chart != "" && !validChart(f.Chart, trendCharts) {
		return domain.Invalid("unknown chart %q", f.Chart)
	}
	if !f.Granularity.Valid() {
		return domain.Invalid("unknown granularity %q", f.Granularity)
	}
	if f.Date.IsZero() {
		return domain.Invalid("date is required")
	}
	return nil
}

func (f TrendFilters) Normalize() TrendFilters {
	if f.Chart == "" {
		f.Chart = "line"
	}
	if f.Granularity == "" {
		f.Granularity = dates.Month
	}
	f.Date = day(f.Date)
	return f
}

func (f TrendFilters) Encode() map[string]string {
	v := map[string]string{
		"chart":       f.Chart,
		"granularity": string(f.Granularity),
		"date":        f.Date.Format(dateLayout),
	}
	if f.Reconciled != nil {
		v["reconciled"] = strconv.FormatBool(*f.Reconciled)
	}
	return v
}

func DecodeTrendFilters(v map[string]string) (f TrendFilters, ok bool, err error) {
	if v["date"] == "" {
		return f, false, nil
	}
	f.Chart = v["chart"]
	f.Granularity = dates.Granularity(v["granularity"])
	if f.Date, err = parseDate(v["date"]); err != nil {
		return f, false, err
	}
	if f.Reconciled, err = parseOptBool(v["reconciled"]); err != nil {
		return f, false, err
	}
	return f, true, f.Validate()
}

// day is the UTC midnight of the calendar day of t.
func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return t, domain.Invalid("invalid date %q", s)
	}
	return t, nil
}

func parseOptBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil, domain.Invalid("invalid boolean %q", s)
	}
	return &b, nil
}

func parseOptDecimal(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, domain.Invalid("invalid amount %q", s)
	}
	return &d, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, domain.Invalid("invalid tag id %q", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
