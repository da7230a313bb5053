package ingest

import (
	"testing"

	"github.com/fdg312/adreport/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolvesHeaders(t *testing.T) {
	src := "\xEF\xBB\xBFDate, app name ,Unknown,ad_exchange_total_requests\n2024-01-01,App A,x,10\n"

	table, err := Parse([]byte(src))
	require.NoError(t, err)

	assert.Equal(t, []string{schema.FieldDate, schema.FieldAppName, "", schema.FieldTotalRequests}, table.Columns)
	assert.Equal(t, 3, table.Recognized())
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "App A", table.Rows[0][1])
}

func TestParseKeepsRaggedRows(t *testing.T) {
	table, err := Parse([]byte("App Name,Clicks\nA,1\nB\nC,3,extra\n"))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 3)
}

func TestParseLazyQuotes(t *testing.T) {
	table, err := Parse([]byte("App Name,Clicks\nMy \"best\" app,1\n"))
	require.NoError(t, err)
	assert.Equal(t, `My "best" app`, table.Rows[0][0])
}

func TestParseFatalErrors(t *testing.T) {
	cases := map[string]string{
		"empty":        "",
		"bom only":     "\xEF\xBB\xBF",
		"duplicate":    "App Name,mobile_app_name\nA,B\n",
		"unrecognised": "foo,bar\n1,2\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			var fatalErr *FatalError
			assert.ErrorAs(t, err, &fatalErr)
		})
	}
}

func TestParseHeaderOnly(t *testing.T) {
	table, err := Parse([]byte("App Name,Clicks\n"))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}
