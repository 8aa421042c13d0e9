package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Simplici0/importcost/internal/config"
	"github.com/Simplici0/importcost/internal/form"
	"github.com/Simplici0/importcost/internal/metrics"
)

func testConfig() config.Config {
	d := decimal.RequireFromString
	return config.Config{
		AppEnv:      "test",
		Port:        "0",
		LogLevel:    "debug",
		LogFormat:   "json",
		PercentMode: form.PercentModePercent,
		Defaults: config.Defaults{
			ExchangeRate:        d("5.56"),
			IntlFreightRateUSD:  d("7.50"),
			IntlFreightExtraUSD: d("0"),
			AdminFeeFixedUSD:    d("1.90"),
			AdminFeePercent:     d("0.005"),
			DomesticFreightUSD:  d("1.93"),
			HandlingFeeUSD:      d("10.00"),
		},
	}
}

type testServer struct {
	handler http.Handler
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, cfg config.Config) testServer {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	reg := prometheus.NewRegistry()
	srv := newServer(cfg, zap.New(core), metrics.New(reg))
	return testServer{handler: srv.routes(reg), logs: logs}
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func referenceValues() url.Values {
	return url.Values{
		"unit_price_usd":         {"200"},
		"admin_fee_fixed_usd":    {"1,90"},
		"admin_fee_percent":      {"0,5"},
		"domestic_freight_usd":   {"1.93"},
		"handling_fee_usd":       {"10"},
		"exchange_rate":          {"5,56"},
		"intl_freight_rate_usd":  {"7.50"},
		"intl_freight_extra_usd": {"0"},
		"quantity":               {"2"},
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestDefaults(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/defaults", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "percent", body["percent_mode"])
	assert.Equal(t, false, body["fill_defaults"])
	defaults := body["defaults"].(map[string]any)
	assert.Equal(t, "5.56", defaults["exchange_rate"])
	assert.Equal(t, "0.005", defaults["admin_fee_percent"])
}

func TestRecompute_ReferenceForm(t *testing.T) {
	ts := newTestServer(t, testConfig())

	values := referenceValues()
	values.Set("sale_price_unit_local", "1500")
	rec := ts.do(postForm("/recompute", values))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "213.83", body["base_cost_usd"])
	assert.Equal(t, "214.90", body["total_cost_usd"])
	assert.Equal(t, "41.70", body["freight_local"])
	assert.Equal(t, "1236.54", body["landed_cost_unit_local"])
	assert.Equal(t, "2473.08", body["landed_cost_total_local"])
	assert.Equal(t, "263.46", body["profit_unit_local"])
	assert.Equal(t, "21.31", body["margin_percent"])
}

func TestRecompute_NotSoldHasNullProfit(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postForm("/recompute", referenceValues()))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body, "profit_unit_local")
	assert.Nil(t, body["profit_unit_local"])
	assert.Nil(t, body["margin_percent"])
}

func TestRecompute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value string
	}{
		{"empty exchange rate", "exchange_rate", ""},
		{"zero exchange rate", "exchange_rate", "0"},
		{"malformed unit price", "unit_price_usd", "abc"},
		{"zero quantity", "quantity", "0"},
		{"negative handling fee", "handling_fee_usd", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig())

			values := referenceValues()
			values.Set(tt.field, tt.value)
			rec := ts.do(postForm("/recompute", values))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "invalid_input", body["error"])
			assert.Equal(t, tt.field, body["field"])
			assert.NotEmpty(t, body["reason"])
			assert.NotContains(t, body, "total_cost_usd")
		})
	}
}

func TestRecompute_FillDefaults(t *testing.T) {
	cfg := testConfig()
	cfg.FillDefaults = true
	ts := newTestServer(t, cfg)

	rec := ts.do(postForm("/recompute", url.Values{"unit_price_usd": {"200"}, "quantity": {"2"}}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1236.54", decodeBody(t, rec)["landed_cost_unit_local"])
}

func TestRecompute_LegacyPercentMode(t *testing.T) {
	cfg := testConfig()
	cfg.PercentMode = form.PercentModeLegacy
	ts := newTestServer(t, cfg)

	values := referenceValues()
	values.Set("admin_fee_percent", "0.005")
	rec := ts.do(postForm("/recompute", values))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "214.90", decodeBody(t, rec)["total_cost_usd"])
}

func TestRecompute_LogsNormalizedInputAtDebug(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postForm("/recompute", referenceValues()))
	require.Equal(t, http.StatusOK, rec.Code)

	entries := ts.logs.FilterMessage("recompute input").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "0.005", entries[0].ContextMap()["admin_fee_percent"])
}

func TestCompute_JSON(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postJSON("/api/v1/compute", `{
		"unit_price_usd": 200,
		"admin_fee_fixed_usd": "1.90",
		"admin_fee_percent": 0.005,
		"domestic_freight_usd": 1.93,
		"handling_fee_usd": "10.00",
		"exchange_rate": 5.56,
		"intl_freight_rate_usd": 7.5,
		"intl_freight_extra_usd": 0,
		"quantity": 2,
		"sale_price_unit_local": 1500
	}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "214.90", body["total_cost_usd"])
	assert.Equal(t, "526.92", body["profit_total_local"])
}

func computeBody(t *testing.T, edit func(map[string]any)) string {
	t.Helper()
	body := map[string]any{
		"unit_price_usd":         200,
		"admin_fee_fixed_usd":    "1.90",
		"admin_fee_percent":      0.005,
		"domestic_freight_usd":   1.93,
		"handling_fee_usd":       10,
		"exchange_rate":          "5.56",
		"intl_freight_rate_usd":  7.5,
		"intl_freight_extra_usd": 0,
		"quantity":               2,
	}
	if edit != nil {
		edit(body)
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return string(raw)
}

func TestCompute_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postJSON("/api/v1/compute", `{"unit_price_usd": 200`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(postJSON("/api/v1/compute", computeBody(t, func(b map[string]any) { b["exchange_rate"] = 0 })))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "exchange_rate", decodeBody(t, rec)["field"])
}

func TestCompute_RejectsMissingAndMalformedFields(t *testing.T) {
	tests := []struct {
		name   string
		edit   func(map[string]any)
		field  string
		reason string
	}{
		{"missing unit price", func(b map[string]any) { delete(b, "unit_price_usd") }, "unit_price_usd", "is required"},
		{"missing exchange rate", func(b map[string]any) { delete(b, "exchange_rate") }, "exchange_rate", "is required"},
		{"null handling fee", func(b map[string]any) { b["handling_fee_usd"] = nil }, "handling_fee_usd", "is required"},
		{"empty string freight", func(b map[string]any) { b["domestic_freight_usd"] = " " }, "domestic_freight_usd", "is required"},
		{"malformed unit price", func(b map[string]any) { b["unit_price_usd"] = "abc" }, "unit_price_usd", "must be numeric"},
		{"boolean exchange rate", func(b map[string]any) { b["exchange_rate"] = true }, "exchange_rate", "must be numeric"},
		{"fractional quantity", func(b map[string]any) { b["quantity"] = 1.5 }, "quantity", "must be a whole number"},
		{"missing quantity", func(b map[string]any) { delete(b, "quantity") }, "quantity", "is required"},
		{"malformed sale price", func(b map[string]any) { b["sale_price_unit_local"] = "1,500x" }, "sale_price_unit_local", "must be numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig())

			rec := ts.do(postJSON("/api/v1/compute", computeBody(t, tt.edit)))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, "invalid_input", body["error"])
			assert.Equal(t, tt.field, body["field"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

func TestCompute_NullSalePriceIsNotSold(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postJSON("/api/v1/compute", computeBody(t, func(b map[string]any) { b["sale_price_unit_local"] = nil })))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "2473.08", body["landed_cost_total_local"])
	assert.Nil(t, body["profit_unit_local"])
}

const reportBody = `{"lines": [
	{"id": "a", "model": "iPhone 13", "capacity_gb": 128, "grade": "A", "status": "sold",
	 "unit_price_usd": 200, "admin_fee_fixed_usd": 1.90, "admin_fee_percent": 0.005,
	 "domestic_freight_usd": 1.93, "handling_fee_usd": 10, "exchange_rate": 5.56,
	 "intl_freight_rate_usd": 7.50, "intl_freight_extra_usd": 0, "quantity": 2,
	 "sale_price_unit_local": 1500},
	{"id": "b", "model": "iPhone 12", "capacity_gb": 64, "grade": "B", "status": "planned",
	 "unit_price_usd": 150, "admin_fee_fixed_usd": 1.90, "admin_fee_percent": 0.005,
	 "domestic_freight_usd": 1.93, "handling_fee_usd": 10, "exchange_rate": 5.56,
	 "intl_freight_rate_usd": 7.50, "intl_freight_extra_usd": 0, "quantity": 1}
]}`

func TestReports(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postJSON("/api/v1/reports", reportBody))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	byModel := body["by_model"].([]any)
	require.Len(t, byModel, 2)
	assert.Equal(t, "iPhone 13", byModel[0].(map[string]any)["key"])
	summary := body["summary"].(map[string]any)
	assert.Equal(t, float64(2), summary["lines"])
	assert.Equal(t, "iPhone 13", summary["best_model"])
}

func TestReports_ErrorMapping(t *testing.T) {
	ts := newTestServer(t, testConfig())

	rec := ts.do(postJSON("/api/v1/reports", `{"lines": [`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(postJSON("/api/v1/reports", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(postJSON("/api/v1/reports", strings.Replace(reportBody, `"planned"`, `"lost"`, 1)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "b", decodeBody(t, rec)["line"])

	rec = ts.do(postJSON("/api/v1/reports", strings.Replace(reportBody, `"quantity": 1}`, `"quantity": 0}`, 1)))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "b", body["line"])
	assert.Equal(t, "quantity", body["field"])
}

func TestReports_RejectsMissingAndMalformedLineFields(t *testing.T) {
	tests := []struct {
		name   string
		old    string
		new    string
		field  string
		reason string
	}{
		{"missing fee", `"unit_price_usd": 150, "admin_fee_fixed_usd": 1.90,`, `"unit_price_usd": 150,`, "admin_fee_fixed_usd", "is required"},
		{"null unit price", `"unit_price_usd": 150`, `"unit_price_usd": null`, "unit_price_usd", "is required"},
		{"malformed unit price", `"unit_price_usd": 150`, `"unit_price_usd": "abc"`, "unit_price_usd", "must be numeric"},
		{"fractional quantity", `"quantity": 1}`, `"quantity": 1.5}`, "quantity", "must be a whole number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig())

			rec := ts.do(postJSON("/api/v1/reports", strings.Replace(reportBody, tt.old, tt.new, 1)))

			require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			body := decodeBody(t, rec)
			assert.Equal(t, "b", body["line"])
			assert.Equal(t, tt.field, body["field"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig())

	require.Equal(t, http.StatusOK, ts.do(postForm("/recompute", referenceValues())).Code)
	values := referenceValues()
	values.Set("exchange_rate", "0")
	require.Equal(t, http.StatusUnprocessableEntity, ts.do(postForm("/recompute", values)).Code)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	raw, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, `importcost_computations_total{outcome="ok",source="form"} 1`)
	assert.Contains(t, text, `importcost_computations_total{outcome="invalid",source="form"} 1`)
	assert.Contains(t, text, `importcost_invalid_input_total{field="exchange_rate"} 1`)
	assert.Contains(t, text, `importcost_http_requests_total{code="422",method="POST",path="/recompute"} 1`)
}

func TestRequestID(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := ts.do(req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	_, err := uuid.Parse(rec.Header().Get(requestIDHeader))
	assert.NoError(t, err)
}

func TestAccessLogLevels(t *testing.T) {
	ts := newTestServer(t, testConfig())

	values := referenceValues()
	values.Set("quantity", "0")
	ts.do(postForm("/recompute", values))
	ts.do(postForm("/recompute", referenceValues()))

	entries := ts.logs.FilterMessage("HTTP request completed: /recompute").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, int64(422), entries[0].ContextMap()["http_status_code"])
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.NotEmpty(t, entries[1].ContextMap()["request_id"])
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSAllowedOrigins = []string{"https://app.example"}
	ts := newTestServer(t, cfg)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := ts.do(req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
