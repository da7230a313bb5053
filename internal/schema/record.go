package schema

import (
	"fmt"
	"time"
)

// Record is one stored fact row. Date is always a UTC midnight.
type Record struct {
	ReportID string `bson:"report_id" json:"report_id"`

	MobileAppResolvedID        string    `bson:"mobile_app_resolved_id" json:"mobile_app_resolved_id"`
	MobileAppName              string    `bson:"mobile_app_name" json:"mobile_app_name"`
	Domain                     string    `bson:"domain" json:"domain"`
	AdUnitName                 string    `bson:"ad_unit_name" json:"ad_unit_name"`
	AdUnitID                   string    `bson:"ad_unit_id" json:"ad_unit_id"`
	InventoryFormatName        string    `bson:"inventory_format_name" json:"inventory_format_name"`
	OperatingSystemVersionName string    `bson:"operating_system_version_name" json:"operating_system_version_name"`
	Date                       time.Time `bson:"date" json:"date"`

	TotalRequests   int64   `bson:"ad_exchange_total_requests" json:"ad_exchange_total_requests"`
	ResponsesServed int64   `bson:"ad_exchange_responses_served" json:"ad_exchange_responses_served"`
	MatchRate       float64 `bson:"ad_exchange_match_rate" json:"ad_exchange_match_rate"`
	Impressions     int64   `bson:"ad_exchange_line_item_level_impressions" json:"ad_exchange_line_item_level_impressions"`
	Clicks          int64   `bson:"ad_exchange_line_item_level_clicks" json:"ad_exchange_line_item_level_clicks"`
	CTR             float64 `bson:"ad_exchange_line_item_level_ctr" json:"ad_exchange_line_item_level_ctr"`
	AverageECPM     float64 `bson:"average_ecpm" json:"average_ecpm"`
	Payout          float64 `bson:"payout" json:"payout"`
}

// Text returns a dimension value in its canonical string form.
func (r *Record) Text(name string) string {
	switch name {
	case FieldAppID:
		return r.MobileAppResolvedID
	case FieldAppName:
		return r.MobileAppName
	case FieldDomain:
		return r.Domain
	case FieldAdUnitName:
		return r.AdUnitName
	case FieldAdUnitID:
		return r.AdUnitID
	case FieldInventoryFmt:
		return r.InventoryFormatName
	case FieldOSVersion:
		return r.OperatingSystemVersionName
	case FieldDate:
		return r.Date.UTC().Format(DateLayout)
	}
	return ""
}

// Number returns a metric value widened to float64.
func (r *Record) Number(name string) float64 {
	switch name {
	case FieldTotalRequests:
		return float64(r.TotalRequests)
	case FieldResponses:
		return float64(r.ResponsesServed)
	case FieldMatchRate:
		return r.MatchRate
	case FieldImpressions:
		return float64(r.Impressions)
	case FieldClicks:
		return float64(r.Clicks)
	case FieldCTR:
		return r.CTR
	case FieldAverageECPM:
		return r.AverageECPM
	case FieldPayout:
		return r.Payout
	}
	return 0
}

// SetText assigns a text dimension.
func (r *Record) SetText(name, value string) error {
	switch name {
	case FieldAppID:
		r.MobileAppResolvedID = value
	case FieldAppName:
		r.MobileAppName = value
	case FieldDomain:
		r.Domain = value
	case FieldAdUnitName:
		r.AdUnitName = value
	case FieldAdUnitID:
		r.AdUnitID = value
	case FieldInventoryFmt:
		r.InventoryFormatName = value
	case FieldOSVersion:
		r.OperatingSystemVersionName = value
	default:
		return fmt.Errorf("field %q is not a text dimension", name)
	}
	return nil
}

// SetInt assigns a whole-number metric.
func (r *Record) SetInt(name string, value int64) error {
	switch name {
	case FieldTotalRequests:
		r.TotalRequests = value
	case FieldResponses:
		r.ResponsesServed = value
	case FieldImpressions:
		r.Impressions = value
	case FieldClicks:
		r.Clicks = value
	default:
		return fmt.Errorf("field %q is not an integer metric", name)
	}
	return nil
}

// SetFloat assigns a fractional metric.
func (r *Record) SetFloat(name string, value float64) error {
	switch name {
	case FieldMatchRate:
		r.MatchRate = value
	case FieldCTR:
		r.CTR = value
	case FieldAverageECPM:
		r.AverageECPM = value
	case FieldPayout:
		r.Payout = value
	default:
		return fmt.Errorf("field %q is not a fractional metric", name)
	}
	return nil
}

// TruncateDate drops the clock part of t and normalizes it to UTC.
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
