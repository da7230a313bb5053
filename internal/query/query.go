// Package query validates report requests and compiles them into
// aggregation plans that every storage backend executes the same way.
package query

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/fdg312/adreport/internal/schema"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
)

var (
	ErrUnknownDimension  = errors.New("unknown dimension")
	ErrUnknownMetric     = errors.New("unknown metric")
	ErrInvalidDate       = errors.New("invalid date format, use YYYY-MM-DD")
	ErrInvalidDateRange  = errors.New("start date must be before or equal to end date")
	ErrInvalidPagination = errors.New("page and limit must be positive")
)

// IsValidation reports whether err was produced by request validation
// rather than by execution.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownDimension) ||
		errors.Is(err, ErrUnknownMetric) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInvalidPagination)
}

// DateRange is an inclusive calendar range in YYYY-MM-DD form.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReportQuery is a request for one page of grouped report rows.
type ReportQuery struct {
	Dimensions []string            `json:"dimensions"`
	Metrics    []string            `json:"metrics"`
	Filters    map[string][]string `json:"filters,omitempty"`
	DateRange  *DateRange          `json:"date_range,omitempty"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
}

// Filter restricts a dimension to a set of allowed values.
type Filter struct {
	Field  string
	Values []string
}

// DerivedMetric is a requested ratio metric computed after grouping.
type DerivedMetric struct {
	Name string
	schema.Derivation
}

// Plan is the compiled, backend-neutral form of a ReportQuery:
// filter, group, derive, reshape, sort, then paginate and count in one pass.
type Plan struct {
	Dimensions []string
	Metrics    []string

	// DateFrom and DateTo are UTC midnights; both set or both nil.
	DateFrom *time.Time
	DateTo   *time.Time
	Filters  []Filter

	// Sums lists every base metric the group stage accumulates: the
	// requested base metrics plus the operands of requested derived ones.
	Sums    []string
	Derived []DerivedMetric

	Page      int
	Limit     int
	Offset    int
	Paginated bool
}

// Compile validates q and builds its plan. It has no side effects.
func Compile(q ReportQuery) (*Plan, error) {
	for _, d := range q.Dimensions {
		if !schema.IsDimension(d) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, d)
		}
	}
	for _, m := range q.Metrics {
		if !schema.IsMetric(m) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
		}
	}

	plan := &Plan{
		Dimensions: append([]string(nil), q.Dimensions...),
		Metrics:    append([]string(nil), q.Metrics...),
		Page:       q.Page,
		Limit:      q.Limit,
		Paginated:  true,
	}

	if q.DateRange != nil {
		start, err := time.Parse(schema.DateLayout, q.DateRange.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: start %q", ErrInvalidDate, q.DateRange.Start)
		}
		end, err := time.Parse(schema.DateLayout, q.DateRange.End)
		if err != nil {
			return nil, fmt.Errorf("%w: end %q", ErrInvalidDate, q.DateRange.End)
		}
		if start.After(end) {
			return nil, ErrInvalidDateRange
		}
		plan.DateFrom = &start
		plan.DateTo = &end
	}

	// Unknown filter keys are dropped, not rejected: clients send UI state along.
	keys := make([]string, 0, len(q.Filters))
	for k, values := range q.Filters {
		if schema.IsDimension(k) && len(values) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == schema.FieldDate {
			for _, v := range q.Filters[k] {
				if _, err := time.Parse(schema.DateLayout, v); err != nil {
					return nil, fmt.Errorf("%w: filter value %q", ErrInvalidDate, v)
				}
			}
		}
		plan.Filters = append(plan.Filters, Filter{Field: k, Values: append([]string(nil), q.Filters[k]...)})
	}

	if plan.Page == 0 {
		plan.Page = DefaultPage
	}
	if plan.Limit == 0 {
		plan.Limit = DefaultLimit
	}
	if plan.Page < 1 || plan.Limit < 1 {
		return nil, ErrInvalidPagination
	}
	// pages past the addressable range saturate and come back empty
	if plan.Page-1 > math.MaxInt/plan.Limit {
		plan.Offset = math.MaxInt
	} else {
		plan.Offset = (plan.Page - 1) * plan.Limit
	}

	seen := make(map[string]bool)
	addSum := func(m string) {
		if !seen[m] {
			seen[m] = true
			plan.Sums = append(plan.Sums, m)
		}
	}
	for _, m := range plan.Metrics {
		if schema.IsBase(m) {
			addSum(m)
		}
	}
	for _, m := range plan.Metrics {
		d, ok := schema.DerivationOf(m)
		if !ok {
			continue
		}
		addSum(d.Numerator)
		addSum(d.Denominator)
		plan.Derived = append(plan.Derived, DerivedMetric{Name: m, Derivation: d})
	}

	return plan, nil
}

// Unpaged returns a copy of the plan that ignores the requested page.
// A positive maxRows keeps the first maxRows rows, zero keeps them all.
func (p *Plan) Unpaged(maxRows int) *Plan {
	cp := *p
	cp.Page = 1
	cp.Offset = 0
	cp.Paginated = maxRows > 0
	if cp.Paginated {
		cp.Limit = maxRows
	}
	return &cp
}

// Columns returns the output column order: dimensions, then metrics.
func (p *Plan) Columns() []string {
	cols := make([]string, 0, len(p.Dimensions)+len(p.Metrics))
	cols = append(cols, p.Dimensions...)
	return append(cols, p.Metrics...)
}

// SortKeys returns the ordering of the sort stage. Rows are ordered by the
// first dimension; the remaining dimensions break ties so pages never overlap.
func (p *Plan) SortKeys() []string {
	return p.Dimensions
}

// Ratio computes numerator/denominator*scale with a zero guard.
func Ratio(numerator, denominator, scale float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator * scale
}

// Row is one reshaped output group keyed by field name.
type Row map[string]any

// BuildRow reshapes one group into an output row holding exactly the
// requested dimensions and metrics. sums must hold every entry of p.Sums.
func (p *Plan) BuildRow(dims []string, sums map[string]float64) Row {
	row := make(Row, len(p.Dimensions)+len(p.Metrics))
	for i, d := range p.Dimensions {
		row[d] = dims[i]
	}
	for _, m := range p.Metrics {
		if d, ok := schema.DerivationOf(m); ok {
			row[m] = Ratio(sums[d.Numerator], sums[d.Denominator], d.Scale)
			continue
		}
		row[m] = NormalizeMetric(m, sums[m])
	}
	return row
}

// NormalizeMetric converts a summed value to the metric's declared type:
// int64 for whole-number metrics, float64 otherwise.
func NormalizeMetric(name string, v float64) any {
	if kind, _ := schema.KindOf(name); kind == schema.KindInt {
		return int64(math.Round(v))
	}
	return v
}
