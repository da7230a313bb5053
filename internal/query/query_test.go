package query

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/fdg312/adreport/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(app string, date string, requests, served, impressions, clicks int64, payout float64) schema.Record {
	d, _ := time.Parse(schema.DateLayout, date)
	return schema.Record{
		ReportID:        "gen-1",
		MobileAppName:   app,
		Domain:          "example.com",
		Date:            d,
		TotalRequests:   requests,
		ResponsesServed: served,
		Impressions:     impressions,
		Clicks:          clicks,
		Payout:          payout,
	}
}

func exampleRecords() []schema.Record {
	return []schema.Record{
		record("App A", "2024-01-01", 1000, 800, 700, 50, 1050.0),
		record("App B", "2024-01-01", 1500, 1200, 1000, 75, 2000.0),
		record("App C", "2024-01-02", 2000, 1600, 1400, 100, 3500.0),
	}
}

func TestCompile_AcceptsRegisteredNames(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: schema.Dimensions(),
		Metrics:    schema.Metrics(),
		Page:       1,
		Limit:      10,
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Dimensions(), plan.Dimensions)
	assert.Len(t, plan.Derived, 3)
}

func TestCompile_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		q    ReportQuery
		want error
	}{
		{"unknown dimension", ReportQuery{Dimensions: []string{"country"}, Metrics: []string{schema.FieldPayout}}, ErrUnknownDimension},
		{"unknown metric", ReportQuery{Dimensions: []string{schema.FieldAppName}, Metrics: []string{"revenue"}}, ErrUnknownMetric},
		{"dimension checked before metric", ReportQuery{Dimensions: []string{"country"}, Metrics: []string{"revenue"}}, ErrUnknownDimension},
		{"metric used as dimension", ReportQuery{Dimensions: []string{schema.FieldPayout}}, ErrUnknownDimension},
		{"inverted range", ReportQuery{DateRange: &DateRange{Start: "2024-02-01", End: "2024-01-01"}}, ErrInvalidDateRange},
		{"bad date", ReportQuery{DateRange: &DateRange{Start: "01/02/2024", End: "2024-01-01"}}, ErrInvalidDate},
		{"bad date filter", ReportQuery{Filters: map[string][]string{"date": {"yesterday"}}}, ErrInvalidDate},
		{"negative page", ReportQuery{Page: -1}, ErrInvalidPagination},
		{"negative limit", ReportQuery{Limit: -5}, ErrInvalidPagination},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.q)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestCompile_SameDayRangeIsValid(t *testing.T) {
	_, err := Compile(ReportQuery{DateRange: &DateRange{Start: "2024-01-01", End: "2024-01-01"}})
	assert.NoError(t, err)
}

func TestCompile_UnknownFilterKeysIgnored(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldPayout},
		Filters: map[string][]string{
			"selectedTab":       {"overview"},
			schema.FieldPayout:  {"1"},
			schema.FieldDomain:  {"example.com"},
			schema.FieldAppName: {},
		},
	})
	require.NoError(t, err)
	require.Len(t, plan.Filters, 1)
	assert.Equal(t, schema.FieldDomain, plan.Filters[0].Field)
}

func TestCompile_DefaultsAndOffset(t *testing.T) {
	plan, err := Compile(ReportQuery{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPage, plan.Page)
	assert.Equal(t, DefaultLimit, plan.Limit)
	assert.Equal(t, 0, plan.Offset)

	plan, err = Compile(ReportQuery{Page: 3, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, 40, plan.Offset)

	plan, err = Compile(ReportQuery{Page: 1<<62 + 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, plan.Offset)

	plan, err = Compile(ReportQuery{Page: math.MaxInt, Limit: math.MaxInt})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, plan.Offset)
}

func TestWindowBounds(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	assert.Equal(t, []int{3, 4}, window(items, 2, 2))
	assert.Equal(t, []int{4, 5}, window(items, 3, 10))
	assert.Equal(t, []int{1, 2}, window(items, -7, 2))
	assert.Equal(t, []int{5}, window(items, 4, math.MaxInt))
	assert.Nil(t, window(items, math.MaxInt, 2))
}

func TestUnpagedKeepsCap(t *testing.T) {
	plan, err := Compile(ReportQuery{Page: 4, Limit: 10})
	require.NoError(t, err)

	capped := plan.Unpaged(25)
	assert.True(t, capped.Paginated)
	assert.Equal(t, 0, capped.Offset)
	assert.Equal(t, 25, capped.Limit)

	all := plan.Unpaged(0)
	assert.False(t, all.Paginated)
	assert.Equal(t, 0, all.Offset)
	assert.Equal(t, 30, plan.Offset)
}

func TestCompile_DerivedMetricPullsOperands(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldTotalRequests, schema.FieldAverageECPM},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{schema.FieldTotalRequests, schema.FieldPayout, schema.FieldImpressions}, plan.Sums)
	require.Len(t, plan.Derived, 1)
	assert.Equal(t, schema.FieldAverageECPM, plan.Derived[0].Name)
}

func TestEvaluate_EndToEndExample(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldTotalRequests, schema.FieldAverageECPM},
		Page:       1,
		Limit:      10,
	})
	require.NoError(t, err)

	rows, total := plan.Evaluate(exampleRecords())
	require.Equal(t, 3, total)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{
		schema.FieldAppName:       "App A",
		schema.FieldTotalRequests: int64(1000),
		schema.FieldAverageECPM:   1500.0,
	}, rows[0])
	assert.Equal(t, "App B", rows[1][schema.FieldAppName])
	assert.Equal(t, 2000.0, rows[1][schema.FieldAverageECPM])
	assert.Equal(t, 2500.0, rows[2][schema.FieldAverageECPM])

	// accumulator-only fields never leak into the output
	for _, r := range rows {
		assert.NotContains(t, r, schema.FieldPayout)
		assert.NotContains(t, r, schema.FieldImpressions)
	}
}

func TestEvaluate_DerivedFromGroupedTotals(t *testing.T) {
	records := []schema.Record{
		record("App A", "2024-01-01", 100, 100, 10, 1, 0),
		record("App A", "2024-01-02", 900, 0, 990, 9, 0),
	}
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldMatchRate, schema.FieldCTR},
	})
	require.NoError(t, err)

	rows, total := plan.Evaluate(records)
	require.Equal(t, 1, total)
	// 100/1000, not the mean of the per-row rates (1.0 and 0.0)
	assert.InDelta(t, 0.1, rows[0][schema.FieldMatchRate], 1e-12)
	assert.InDelta(t, 0.01, rows[0][schema.FieldCTR], 1e-12)
}

func TestEvaluate_ZeroDenominatorIsZero(t *testing.T) {
	records := []schema.Record{record("App Z", "2024-01-01", 0, 0, 0, 0, 125.5)}
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldMatchRate, schema.FieldCTR, schema.FieldAverageECPM},
	})
	require.NoError(t, err)

	rows, _ := plan.Evaluate(records)
	require.Len(t, rows, 1)
	for _, m := range []string{schema.FieldMatchRate, schema.FieldCTR, schema.FieldAverageECPM} {
		assert.Equal(t, 0.0, rows[0][m], m)
	}
}

func TestEvaluate_FiltersAndDateRange(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldTotalRequests},
		DateRange:  &DateRange{Start: "2024-01-01", End: "2024-01-01"},
		Filters:    map[string][]string{schema.FieldAppName: {"App B", "App C"}},
	})
	require.NoError(t, err)

	rows, total := plan.Evaluate(exampleRecords())
	require.Equal(t, 1, total)
	assert.Equal(t, "App B", rows[0][schema.FieldAppName])
}

func TestEvaluate_EmptyResultIsNotAnError(t *testing.T) {
	plan, err := Compile(ReportQuery{
		Dimensions: []string{schema.FieldAppName},
		Metrics:    []string{schema.FieldTotalRequests},
		Filters:    map[string][]string{schema.FieldAppName: {"Nope"}},
	})
	require.NoError(t, err)

	rows, total := plan.Evaluate(exampleRecords())
	assert.Equal(t, 0, total)
	assert.Empty(t, rows)
}

func TestEvaluate_NoDimensionsSingleRow(t *testing.T) {
	plan, err := Compile(ReportQuery{Metrics: []string{schema.FieldImpressions, schema.FieldAverageECPM}})
	require.NoError(t, err)

	rows, total := plan.Evaluate(exampleRecords())
	require.Equal(t, 1, total)
	assert.Equal(t, int64(3100), rows[0][schema.FieldImpressions])
	assert.InDelta(t, 6550.0/3100.0*1000, rows[0][schema.FieldAverageECPM], 1e-9)

	rows, total = plan.Evaluate(nil)
	assert.Equal(t, 0, total)
	assert.Empty(t, rows)
}

func TestEvaluate_PaginationCoversFullResult(t *testing.T) {
	var records []schema.Record
	for i := 0; i < 23; i++ {
		// two dimensions with repeated first values so ordering needs the tiebreak
		r := record(fmt.Sprintf("App %02d", i%7), "2024-01-01", int64(i), 0, 0, 0, 0)
		r.Domain = fmt.Sprintf("d%02d.example", i%5)
		records = append(records, r)
	}

	base := ReportQuery{
		Dimensions: []string{schema.FieldAppName, schema.FieldDomain},
		Metrics:    []string{schema.FieldTotalRequests},
	}
	fullPlan, err := Compile(base)
	require.NoError(t, err)
	full, fullTotal := fullPlan.Unpaged(0).Evaluate(records)
	require.Equal(t, len(full), fullTotal)

	const limit = 4
	var concatenated []Row
	pages := (fullTotal + limit - 1) / limit
	for page := 1; page <= pages; page++ {
		q := base
		q.Page, q.Limit = page, limit
		plan, err := Compile(q)
		require.NoError(t, err)
		rows, total := plan.Evaluate(records)
		assert.Equal(t, fullTotal, total, "page %d", page)
		concatenated = append(concatenated, rows...)
	}
	assert.Equal(t, full, concatenated)

	q := base
	q.Page, q.Limit = pages+1, limit
	plan, err := Compile(q)
	require.NoError(t, err)
	rows, total := plan.Evaluate(records)
	assert.Empty(t, rows)
	assert.Equal(t, fullTotal, total)
}

func TestEvaluate_Idempotent(t *testing.T) {
	q := ReportQuery{
		Dimensions: []string{schema.FieldDate, schema.FieldAppName},
		Metrics:    schema.Metrics(),
		Page:       1,
		Limit:      2,
	}
	encode := func() []byte {
		plan, err := Compile(q)
		require.NoError(t, err)
		rows, total := plan.Evaluate(exampleRecords())
		b, err := json.Marshal(map[string]any{"data": rows, "total": total})
		require.NoError(t, err)
		return b
	}
	assert.Equal(t, encode(), encode())
}

func TestRatio(t *testing.T) {
	assert.Equal(t, 0.0, Ratio(5, 0, 1000))
	assert.Equal(t, 1500.0, Ratio(1050, 700, 1000))
	assert.Equal(t, 0.8, Ratio(800, 1000, 1))
}
