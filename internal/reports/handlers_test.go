package reports

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fdg312/adreport/internal/schema"
	"github.com/fdg312/adreport/internal/storage/memory"
)

func setupTestMux(store Store) *http.ServeMux {
	h := NewHandlers(newTestService(store))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reports/dimensions", h.HandleDimensions)
	mux.HandleFunc("GET /api/reports/metrics", h.HandleMetrics)
	mux.HandleFunc("POST /api/reports/query", h.HandleQuery)
	mux.HandleFunc("POST /api/reports/export", h.HandleExport)
	mux.HandleFunc("GET /api/reports/summary", h.HandleSummary)
	mux.HandleFunc("GET /api/reports/report_ids", h.HandleReportIDs)
	mux.HandleFunc("GET /api/reports/latest_report_id", h.HandleLatestReportID)
	mux.HandleFunc("GET /api/reports/has_data", h.HandleHasData)
	mux.HandleFunc("GET /api/data/count", h.HandleCount)
	mux.HandleFunc("POST /api/reports/saved-reports", h.HandleSaveReport)
	mux.HandleFunc("GET /api/reports/saved-reports", h.HandleListSavedReports)
	mux.HandleFunc("DELETE /api/reports/saved-reports/{id}", h.HandleDeleteSavedReport)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	return resp.Error.Code
}

func TestHandleDimensionsAndMetrics(t *testing.T) {
	mux := setupTestMux(memory.New())

	rec := do(t, mux, http.MethodGet, "/api/reports/dimensions", "")
	var dims []string
	json.NewDecoder(rec.Body).Decode(&dims)
	if len(dims) != len(schema.Dimensions()) || dims[0] != schema.FieldAppID {
		t.Fatalf("unexpected dimensions: %v", dims)
	}

	rec = do(t, mux, http.MethodGet, "/api/reports/metrics", "")
	var metrics []string
	json.NewDecoder(rec.Body).Decode(&metrics)
	if len(metrics) != len(schema.Metrics()) {
		t.Fatalf("unexpected metrics: %v", metrics)
	}
}

func TestHandleQuery(t *testing.T) {
	mux := setupTestMux(seeded(t))

	rec := do(t, mux, http.MethodPost, "/api/reports/query",
		`{"dimensions":["mobile_app_name"],"metrics":["ad_exchange_total_requests","average_ecpm"],"page":1,"limit":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data  []map[string]any `json:"data"`
		Total int              `json:"total"`
		Page  int              `json:"page"`
		Limit int              `json:"limit"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Data) != 3 || resp.Page != 1 || resp.Limit != 10 {
		t.Fatalf("unexpected page: %+v", resp)
	}
	if resp.Data[0]["average_ecpm"] != 1500.0 {
		t.Fatalf("expected App A eCPM 1500, got %v", resp.Data[0]["average_ecpm"])
	}
}

func TestHandleQueryErrors(t *testing.T) {
	cases := []struct {
		name   string
		store  Store
		body   string
		status int
		code   string
	}{
		{"bad json", seeded(t), `{`, http.StatusBadRequest, "invalid_request"},
		{"unknown dimension", seeded(t), `{"dimensions":["country"],"metrics":["payout"]}`, http.StatusBadRequest, "unknown_dimension"},
		{"unknown metric", seeded(t), `{"metrics":["revenue"]}`, http.StatusBadRequest, "unknown_metric"},
		{"inverted range", seeded(t), `{"metrics":["payout"],"date_range":{"start":"2024-02-01","end":"2024-01-01"}}`, http.StatusBadRequest, "invalid_date_range"},
		{"bad date", seeded(t), `{"metrics":["payout"],"date_range":{"start":"01-01-2024","end":"2024-01-01"}}`, http.StatusBadRequest, "invalid_date"},
		{"bad page", seeded(t), `{"metrics":["payout"],"page":-2}`, http.StatusBadRequest, "invalid_pagination"},
		{"no data", memory.New(), `{"metrics":["payout"]}`, http.StatusNotFound, "no_data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, setupTestMux(tc.store), http.MethodPost, "/api/reports/query", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rec.Code)
			}
			if code := errorCode(t, rec); code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, code)
			}
		})
	}
}

func TestHandleQueryEmptyResult(t *testing.T) {
	mux := setupTestMux(seeded(t))

	rec := do(t, mux, http.MethodPost, "/api/reports/query",
		`{"dimensions":["mobile_app_name"],"metrics":["payout"],"filters":{"mobile_app_name":["Nope"]}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty data array, got %s", rec.Body.String())
	}
}

func TestHandleExport(t *testing.T) {
	mux := setupTestMux(seeded(t))
	body := `{"dimensions":["mobile_app_name"],"metrics":["ad_exchange_line_item_level_clicks"]}`

	rec := do(t, mux, http.MethodPost, "/api/reports/export", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment; filename=report.csv" {
		t.Fatalf("unexpected Content-Disposition: %s", cd)
	}
	want := "mobile_app_name,ad_exchange_line_item_level_clicks\nApp A,50\nApp B,75\nApp C,100\n"
	if rec.Body.String() != want {
		t.Fatalf("unexpected csv:\n%s", rec.Body.String())
	}

	rec = do(t, mux, http.MethodPost, "/api/reports/export?format=pdf", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("expected application/pdf, got %s", ct)
	}

	rec = do(t, mux, http.MethodPost, "/api/reports/export?format=doc", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleDatasetEndpoints(t *testing.T) {
	mux := setupTestMux(seeded(t))

	rec := do(t, mux, http.MethodGet, "/api/reports/has_data", "")
	if strings.TrimSpace(rec.Body.String()) != `{"has_data":true}` {
		t.Fatalf("unexpected has_data: %s", rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/api/data/count", "")
	if strings.TrimSpace(rec.Body.String()) != `{"count":3}` {
		t.Fatalf("unexpected count: %s", rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/api/reports/report_ids", "")
	if strings.TrimSpace(rec.Body.String()) != `{"report_ids":["gen-1"]}` {
		t.Fatalf("unexpected report_ids: %s", rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/api/reports/latest_report_id", "")
	if strings.TrimSpace(rec.Body.String()) != `{"report_id":"gen-1"}` {
		t.Fatalf("unexpected latest_report_id: %s", rec.Body.String())
	}

	rec = do(t, mux, http.MethodGet, "/api/reports/summary?report_id=gen-1", "")
	var sum map[string]float64
	json.NewDecoder(rec.Body).Decode(&sum)
	if sum["ad_exchange_total_requests"] != 4500 || sum["ad_exchange_line_item_level_clicks"] != 225 {
		t.Fatalf("unexpected summary: %v", sum)
	}
}

func TestHandleLatestReportIDEmpty(t *testing.T) {
	rec := do(t, setupTestMux(memory.New()), http.MethodGet, "/api/reports/latest_report_id", "")
	if strings.TrimSpace(rec.Body.String()) != `{"report_id":null}` {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandleSavedReports(t *testing.T) {
	mux := setupTestMux(memory.New())

	rec := do(t, mux, http.MethodPost, "/api/reports/saved-reports",
		`{"name":"Apps","dimensions":["mobile_app_name"],"metrics":["payout"]}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created SavedReportResponse
	json.NewDecoder(rec.Body).Decode(&created)
	if created.ID == "" || created.Message != "Report saved successfully" {
		t.Fatalf("unexpected response: %+v", created)
	}

	rec = do(t, mux, http.MethodGet, "/api/reports/saved-reports", "")
	var list []map[string]any
	json.NewDecoder(rec.Body).Decode(&list)
	if len(list) != 1 || list[0]["name"] != "Apps" || list[0]["id"] != created.ID {
		t.Fatalf("unexpected list: %v", list)
	}

	rec = do(t, mux, http.MethodDelete, "/api/reports/saved-reports/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	rec = do(t, mux, http.MethodDelete, "/api/reports/saved-reports/"+created.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
	if code := errorCode(t, rec); code != "report_not_found" {
		t.Fatalf("expected report_not_found, got %s", code)
	}

	rec = do(t, mux, http.MethodPost, "/api/reports/saved-reports", `{"dimensions":[],"metrics":["payout"]}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}
