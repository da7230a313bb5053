// Package schema is the static field registry shared by the query compiler,
// the ingestion coercer and every storage backend.
package schema

// Kind describes how a field is typed and aggregated.
type Kind int

const (
	KindText Kind = iota
	KindDate
	KindInt
	KindFloat
)

// Registered field names.
const (
	FieldAppID         = "mobile_app_resolved_id"
	FieldAppName       = "mobile_app_name"
	FieldDomain        = "domain"
	FieldAdUnitName    = "ad_unit_name"
	FieldAdUnitID      = "ad_unit_id"
	FieldInventoryFmt  = "inventory_format_name"
	FieldOSVersion     = "operating_system_version_name"
	FieldDate          = "date"
	FieldTotalRequests = "ad_exchange_total_requests"
	FieldResponses     = "ad_exchange_responses_served"
	FieldMatchRate     = "ad_exchange_match_rate"
	FieldImpressions   = "ad_exchange_line_item_level_impressions"
	FieldClicks        = "ad_exchange_line_item_level_clicks"
	FieldCTR           = "ad_exchange_line_item_level_ctr"
	FieldAverageECPM   = "average_ecpm"
	FieldPayout        = "payout"
)

// FieldReportID tags every stored record with the import generation it
// belongs to. It is not a queryable dimension.
const FieldReportID = "report_id"

// DateLayout is the canonical rendering of the date dimension.
const DateLayout = "2006-01-02"

// Field is one registered column.
type Field struct {
	Name   string
	Header string // column header used by exported ad-network CSV files
	Kind   Kind
}

// Derivation defines a derived metric as Numerator / Denominator * Scale
// over grouped sums.
type Derivation struct {
	Numerator   string
	Denominator string
	Scale       float64
}

var dimensions = []Field{
	{Name: FieldAppID, Header: "App ID", Kind: KindText},
	{Name: FieldAppName, Header: "App Name", Kind: KindText},
	{Name: FieldDomain, Header: "Domain", Kind: KindText},
	{Name: FieldAdUnitName, Header: "Ad Unit", Kind: KindText},
	{Name: FieldAdUnitID, Header: "Ad Unit ID", Kind: KindText},
	{Name: FieldInventoryFmt, Header: "Inventory Format", Kind: KindText},
	{Name: FieldOSVersion, Header: "OS Version", Kind: KindText},
	{Name: FieldDate, Header: "Date", Kind: KindDate},
}

var metrics = []Field{
	{Name: FieldTotalRequests, Header: "Total Requests", Kind: KindInt},
	{Name: FieldResponses, Header: "Responses Served", Kind: KindInt},
	{Name: FieldMatchRate, Header: "Match Rate", Kind: KindFloat},
	{Name: FieldImpressions, Header: "Impressions", Kind: KindInt},
	{Name: FieldClicks, Header: "Clicks", Kind: KindInt},
	{Name: FieldCTR, Header: "CTR", Kind: KindFloat},
	{Name: FieldAverageECPM, Header: "Average eCPM", Kind: KindFloat},
	{Name: FieldPayout, Header: "Payout", Kind: KindFloat},
}

var derivations = map[string]Derivation{
	FieldMatchRate:   {Numerator: FieldResponses, Denominator: FieldTotalRequests, Scale: 1},
	FieldCTR:         {Numerator: FieldClicks, Denominator: FieldImpressions, Scale: 1},
	FieldAverageECPM: {Numerator: FieldPayout, Denominator: FieldImpressions, Scale: 1000},
}

var byName = func() map[string]Field {
	m := make(map[string]Field, len(dimensions)+len(metrics))
	for _, f := range dimensions {
		m[f.Name] = f
	}
	for _, f := range metrics {
		m[f.Name] = f
	}
	return m
}()

// Dimensions returns the registered dimension names in declaration order.
func Dimensions() []string {
	return names(dimensions)
}

// Metrics returns the registered metric names in declaration order.
func Metrics() []string {
	return names(metrics)
}

// Fields returns every registered field, dimensions first.
func Fields() []Field {
	out := make([]Field, 0, len(dimensions)+len(metrics))
	out = append(out, dimensions...)
	return append(out, metrics...)
}

func IsDimension(name string) bool {
	for _, f := range dimensions {
		if f.Name == name {
			return true
		}
	}
	return false
}

func IsMetric(name string) bool {
	for _, f := range metrics {
		if f.Name == name {
			return true
		}
	}
	return false
}

// IsBase reports whether metric is summable across rows.
func IsBase(metric string) bool {
	if !IsMetric(metric) {
		return false
	}
	_, derived := derivations[metric]
	return !derived
}

// DerivationOf returns how a derived metric is computed. ok is false for
// base metrics and unknown names.
func DerivationOf(metric string) (Derivation, bool) {
	d, ok := derivations[metric]
	return d, ok
}

// KindOf returns the kind of a registered field.
func KindOf(name string) (Kind, bool) {
	f, ok := byName[name]
	return f.Kind, ok
}

// Lookup returns a field by its internal name.
func Lookup(name string) (Field, bool) {
	f, ok := byName[name]
	return f, ok
}

func names(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}
