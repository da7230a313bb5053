package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fdg312/adreport/internal/schema"
)

// RowError describes why a single source row was skipped.
type RowError struct {
	Reason string
}

func (e *RowError) Error() string {
	return e.Reason
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"Jan 2, 2006",
	"2 Jan 2006",
	"20060102",
}

// Coercer turns raw CSV rows into typed records. In tolerant mode every
// field falls back to its default; strict mode rejects unparsable
// non-empty numeric and date cells.
type Coercer struct {
	Strict bool
	Now    func() time.Time
}

func NewCoercer(strict bool) *Coercer {
	return &Coercer{Strict: strict, Now: time.Now}
}

func (c *Coercer) today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return schema.TruncateDate(now().UTC())
}

// Coerce maps one row using the resolved columns of its table.
func (c *Coercer) Coerce(columns []string, row []string) (schema.Record, error) {
	var rec schema.Record

	if len(row) != len(columns) {
		return rec, &RowError{Reason: fmt.Sprintf("expected %d fields, got %d", len(columns), len(row))}
	}

	values := make(map[string]string, len(columns))
	for i, name := range columns {
		if name == "" {
			continue
		}
		if !utf8.ValidString(row[i]) {
			return rec, &RowError{Reason: fmt.Sprintf("invalid UTF-8 in column %s", name)}
		}
		values[name] = row[i]
	}

	rec.Date = c.today()

	for _, f := range schema.Fields() {
		raw, present := values[f.Name]
		if !present {
			continue
		}

		switch f.Kind {
		case schema.KindText:
			_ = rec.SetText(f.Name, raw)

		case schema.KindDate:
			d, ok := parseDate(raw)
			if !ok && c.Strict && strings.TrimSpace(raw) != "" {
				return rec, &RowError{Reason: fmt.Sprintf("%s: unrecognised date %q", f.Name, raw)}
			}
			if ok {
				rec.Date = d
			}

		case schema.KindInt:
			v, ok := parseInt(raw)
			if !ok && c.Strict && strings.TrimSpace(raw) != "" {
				return rec, &RowError{Reason: fmt.Sprintf("%s: not a number %q", f.Name, raw)}
			}
			_ = rec.SetInt(f.Name, v)

		case schema.KindFloat:
			v, ok := parseFloat(raw)
			if !ok && c.Strict && strings.TrimSpace(raw) != "" {
				return rec, &RowError{Reason: fmt.Sprintf("%s: not a number %q", f.Name, raw)}
			}
			_ = rec.SetFloat(f.Name, v)
		}
	}

	return rec, nil
}

func cleanNumber(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimPrefix(s, "$")
}

// parseInt truncates fractional input toward zero.
func parseInt(raw string) (int64, bool) {
	s := cleanNumber(raw)
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

func parseFloat(raw string) (float64, bool) {
	s := cleanNumber(raw)
	if s == "" {
		return 0, false
	}
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if pct {
		f /= 100
	}
	return f, true
}

func parseDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return schema.TruncateDate(t), true
		}
	}
	return time.Time{}, false
}
