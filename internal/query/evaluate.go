package query

import (
	"sort"
	"strings"

	"github.com/fdg312/adreport/internal/schema"
)

// Matches reports whether r passes the plan's filter stage.
func (p *Plan) Matches(r *schema.Record) bool {
	if p.DateFrom != nil {
		d := schema.TruncateDate(r.Date)
		if d.Before(*p.DateFrom) || d.After(*p.DateTo) {
			return false
		}
	}
	for _, f := range p.Filters {
		v := r.Text(f.Field)
		found := false
		for _, allowed := range f.Values {
			if v == allowed {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type group struct {
	dims []string
	sums map[string]float64
}

// Evaluate runs the whole plan over an in-memory record set and returns the
// requested page together with the total group count of the same pass.
func (p *Plan) Evaluate(records []schema.Record) ([]Row, int) {
	index := make(map[string]*group)
	var groups []*group

	for i := range records {
		r := &records[i]
		if !p.Matches(r) {
			continue
		}
		dims := make([]string, len(p.Dimensions))
		for j, d := range p.Dimensions {
			dims[j] = r.Text(d)
		}
		key := strings.Join(dims, "\x1f")
		g, ok := index[key]
		if !ok {
			g = &group{dims: dims, sums: make(map[string]float64, len(p.Sums))}
			index[key] = g
			groups = append(groups, g)
		}
		for _, m := range p.Sums {
			g.sums[m] += r.Number(m)
		}
	}

	sort.SliceStable(groups, func(a, b int) bool {
		return lessDims(groups[a].dims, groups[b].dims)
	})

	total := len(groups)
	if p.Paginated {
		groups = window(groups, p.Offset, p.Limit)
	}

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, p.BuildRow(g.dims, g.sums))
	}
	return rows, total
}

func lessDims(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func window[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit >= 0 && limit < end-offset {
		end = offset + limit
	}
	return items[offset:end]
}
