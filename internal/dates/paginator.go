package dates

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange       = errors.New("date min must be before date max")
	ErrUnknownGranularity = errors.New("unknown granularity")
	ErrEmptyPage          = errors.New("date is out of range")
)

// Paginator walks bucket to bucket between two dates.
type Paginator struct {
	min, max    time.Time
	granularity Granularity
	weekStart   time.Weekday
}

func NewPaginator(min, max time.Time, g Granularity, weekStart time.Weekday) (*Paginator, error) {
	if !min.Before(max) {
		return nil, ErrInvalidRange
	}
	if !g.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGranularity, g)
	}
	return &Paginator{min: min, max: max, granularity: g, weekStart: weekStart}, nil
}

// Page is the bucket holding Date, with links to its neighbours.
type Page struct {
	Date        time.Time   `json:"date"`
	Granularity Granularity `json:"granularity"`
	Previous    time.Time   `json:"previous"`
	Next        time.Time   `json:"next"`
	HasPrevious bool        `json:"has_previous"`
	HasNext     bool        `json:"has_next"`
}

// HasOtherPages reports whether any neighbour page can be reached.
func (p *Page) HasOtherPages() bool {
	return p.HasPrevious || p.HasNext
}

// Page returns the page for base, or ErrEmptyPage outside [min, max].
func (p *Paginator) Page(base time.Time) (*Page, error) {
	if base.Before(p.min) || base.After(p.max) {
		return nil, ErrEmptyPage
	}

	page := &Page{Date: base, Granularity: p.granularity}
	if p.granularity == Month {
		y, m, _ := base.Date()
		page.Next = time.Date(y, m+1, 1, 0, 0, 0, 0, base.Location())
		page.Previous = time.Date(y, m-1, 1, 0, 0, 0, 0, base.Location())
	} else {
		start, _ := Range(base, Week, p.weekStart)
		page.Next = AddWeeks(start, 1)
		page.Previous = AddWeeks(start, -1)
	}
	page.HasNext = !page.Next.After(p.max)
	page.HasPrevious = !page.Previous.Before(p.min)
	return page, nil
}
