package postgres

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fdg312/adreport/internal/query"
	"github.com/fdg312/adreport/internal/schema"
	"github.com/jackc/pgx/v5"
)

const recordsTable = "ad_reports"

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// BuildAggregateSQL renders a plan as one statement returning the total
// group count and a JSON array holding the requested page, so both come
// from the same snapshot. Derived metrics are computed by the caller from
// the returned sums.
func BuildAggregateSQL(plan *query.Plan, generation string) (string, []any) {
	args := []any{generation}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var selects, groupBy, orderBy []string
	for i, d := range plan.Dimensions {
		col := ident(d)
		if d == schema.FieldDate {
			selects = append(selects, fmt.Sprintf("to_char(%s, 'YYYY-MM-DD') AS %s", col, col))
		} else {
			selects = append(selects, fmt.Sprintf("%s AS %s", col, col))
		}
		groupBy = append(groupBy, fmt.Sprintf("%d", i+1))
		orderBy = append(orderBy, fmt.Sprintf("p.%s COLLATE \"C\"", col))
	}
	for _, m := range plan.Sums {
		col := ident(m)
		selects = append(selects, fmt.Sprintf("COALESCE(SUM(%s), 0)::double precision AS %s", col, col))
	}
	if len(selects) == 0 {
		selects = append(selects, "COUNT(*) AS n")
	}

	where := []string{ident(schema.FieldReportID) + " = $1"}
	if plan.DateFrom != nil {
		where = append(where, fmt.Sprintf("%s BETWEEN %s AND %s", ident(schema.FieldDate), arg(*plan.DateFrom), arg(*plan.DateTo)))
	}
	for _, f := range plan.Filters {
		if f.Field == schema.FieldDate {
			days := make([]time.Time, 0, len(f.Values))
			for _, v := range f.Values {
				d, _ := time.Parse(schema.DateLayout, v)
				days = append(days, d)
			}
			where = append(where, fmt.Sprintf("%s = ANY(%s::date[])", ident(f.Field), arg(days)))
			continue
		}
		where = append(where, fmt.Sprintf("%s = ANY(%s::text[])", ident(f.Field), arg(f.Values)))
	}

	var sb strings.Builder
	sb.WriteString("WITH grouped AS (\n\tSELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString("\n\tFROM " + ident(recordsTable))
	sb.WriteString("\n\tWHERE " + strings.Join(where, " AND "))
	if len(groupBy) > 0 {
		sb.WriteString("\n\tGROUP BY " + strings.Join(groupBy, ", "))
	} else {
		// without GROUP BY an aggregate yields one row even for no input
		sb.WriteString("\n\tHAVING COUNT(*) > 0")
	}
	sb.WriteString("\n)\nSELECT\n\t(SELECT COUNT(*) FROM grouped) AS total,\n\t")

	order := ""
	if len(orderBy) > 0 {
		order = " ORDER BY " + strings.Join(orderBy, ", ")
	}
	page := ""
	if plan.Paginated {
		page = fmt.Sprintf(" LIMIT %s OFFSET %s", arg(plan.Limit), arg(plan.Offset))
	}
	fmt.Fprintf(&sb, "COALESCE((SELECT json_agg(p%s) FROM (SELECT * FROM grouped p%s%s) p), '[]'::json) AS data", order, order, page)

	return sb.String(), args
}

// decodeGroups turns the JSON page into rows through plan.BuildRow, the same
// reshaping the in-process evaluator uses.
func decodeGroups(plan *query.Plan, data []byte) ([]query.Row, error) {
	var groups []map[string]any
	if err := json.Unmarshal(data, &groups); err != nil {
		return nil, fmt.Errorf("failed to decode aggregation page: %w", err)
	}

	rows := make([]query.Row, 0, len(groups))
	for _, g := range groups {
		dims := make([]string, len(plan.Dimensions))
		for i, d := range plan.Dimensions {
			dims[i], _ = g[d].(string)
		}
		sums := make(map[string]float64, len(plan.Sums))
		for _, m := range plan.Sums {
			sums[m], _ = g[m].(float64)
		}
		rows = append(rows, plan.BuildRow(dims, sums))
	}
	return rows, nil
}
