package eodhd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetRealTimeQuote_ParsesResponse(t *testing.T) {
	ts := int64(1711670340) // 2024-03-28 23:59:00 UTC
	mockResp := map[string]interface{}{
		"code":          "AAPL.US",
		"timestamp":     ts,
		"close":         171.48,
		"previousClose": 173.31,
	}

	var capturedPath, capturedToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		capturedToken = r.URL.Query().Get("api_token")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(mockResp)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	quote, err := client.GetRealTimeQuote(context.Background(), "aapl")
	if err != nil {
		t.Fatalf("GetRealTimeQuote failed: %v", err)
	}

	if capturedPath != "/real-time/AAPL.US" {
		t.Errorf("expected path /real-time/AAPL.US, got %s", capturedPath)
	}
	if capturedToken != "test-key" {
		t.Errorf("expected api_token test-key, got %s", capturedToken)
	}
	if quote.Close != 171.48 {
		t.Errorf("expected close 171.48, got %.2f", quote.Close)
	}
	if quote.Source != "eodhd" {
		t.Errorf("expected source eodhd, got %s", quote.Source)
	}
	if !quote.Timestamp.Equal(time.Unix(ts, 0)) {
		t.Errorf("expected timestamp %v, got %v", time.Unix(ts, 0), quote.Timestamp)
	}
}

func TestGetRealTimeQuote_NAIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"GONE.US","timestamp":"NA","close":"NA","previousClose":"NA"}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.GetRealTimeQuote(context.Background(), "GONE")
	if err == nil {
		t.Fatal("expected error for NA close")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Permanent() {
		t.Errorf("expected permanent APIError, got %v", err)
	}
}

func TestGetRealTimeQuote_ExchangeSuffixPassthrough(t *testing.T) {
	var capturedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.Write([]byte(`{"code":"D05.SG","timestamp":1711670340,"close":32.1}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithDefaultExchange("LSE"))
	if _, err := client.GetRealTimeQuote(context.Background(), "D05.SG"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if capturedPath != "/real-time/D05.SG" {
		t.Errorf("expected path /real-time/D05.SG, got %s", capturedPath)
	}
}

func TestGetSplits_ParsesRatios(t *testing.T) {
	var from, to string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		from = r.URL.Query().Get("from")
		to = r.URL.Query().Get("to")
		w.Write([]byte(`[
			{"date":"2024-06-10","split":"10.000000/1.000000"},
			{"date":"2021-07-20","split":"4.000000/1.000000"},
			{"date":"bad","split":"2/1"},
			{"date":"2022-01-01","split":"junk"}
		]`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	events, err := client.GetSplits(context.Background(), "NVDA", start, end)
	if err != nil {
		t.Fatalf("GetSplits failed: %v", err)
	}

	if from != "2020-01-01" || to != "2025-01-01" {
		t.Errorf("unexpected window from=%s to=%s", from, to)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Ratio != 4 || events[1].Ratio != 10 {
		t.Errorf("expected ascending ratios [4 10], got [%v %v]", events[0].Ratio, events[1].Ratio)
	}
	if events[0].Symbol != "NVDA" {
		t.Errorf("expected symbol NVDA, got %s", events[0].Symbol)
	}
}

func TestParseSplitRatio(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"4.000000/1.000000", 4, false},
		{"1/10", 0.1, false},
		{"3/2", 1.5, false},
		{"2", 0, true},
		{"0/1", 0, true},
		{"a/b", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSplitRatio(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSplitRatio(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSplitRatio(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetFXRate_UsesForexCode(t *testing.T) {
	var capturedPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		capturedPath = r.URL.Path
		w.Write([]byte(`{"code":"SGDUSD.FOREX","timestamp":1711670000,"close":0.74}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	rate, err := client.GetFXRate(context.Background(), "sgd", "usd")
	if err != nil {
		t.Fatalf("GetFXRate failed: %v", err)
	}
	if capturedPath != "/real-time/SGDUSD.FOREX" {
		t.Errorf("expected path /real-time/SGDUSD.FOREX, got %s", capturedPath)
	}
	if rate != 0.74 {
		t.Errorf("expected 0.74, got %v", rate)
	}
}

func TestAPIError_Permanence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.GetRealTimeQuote(context.Background(), "AAPL")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", apiErr.StatusCode)
	}
	if apiErr.Permanent() {
		t.Error("429 must be retryable")
	}
	if !(&APIError{StatusCode: 404}).Permanent() {
		t.Error("404 must be permanent")
	}
	if (&APIError{StatusCode: 503}).Permanent() {
		t.Error("503 must be retryable")
	}
}
