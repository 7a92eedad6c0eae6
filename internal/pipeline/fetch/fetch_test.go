package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"polyflow/config"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(config.SourceConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	})
}

func fullPage(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"i": float64(i)}
	}
	return out
}

func TestWindowTerminatesAtPageCeiling(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		// Misbehaving source: always a full page, never a shorter one.
		json.NewEncoder(w).Encode(fullPage(5))
	}))
	defer srv.Close()

	records, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		PageSize: 5,
		MaxPages: 7,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if requests != 7 {
		t.Errorf("expected exactly 7 requests, got %d", requests)
	}
	if len(records) != 35 {
		t.Errorf("expected 35 records, got %d", len(records))
	}
}

func TestWindowFollowsCursor(t *testing.T) {
	var cursors []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cursor := r.URL.Query().Get("cursor")
		cursors = append(cursors, cursor)
		switch cursor {
		case "":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": fullPage(5), "next_cursor": "c1"})
		case "c1":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": fullPage(5), "next_cursor": "c2"})
		case "c2":
			json.NewEncoder(w).Encode(map[string]interface{}{"data": []interface{}{}})
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))
	defer srv.Close()

	records, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		PageSize: 5,
		MaxPages: 10,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(records) != 10 {
		t.Errorf("expected 10 records, got %d", len(records))
	}
	want := []string{"", "c1", "c2"}
	if len(cursors) != len(want) {
		t.Fatalf("expected %d requests, got %v", len(want), cursors)
	}
	for i, c := range want {
		if cursors[i] != c {
			t.Errorf("request %d: cursor %q, want %q", i, cursors[i], c)
		}
	}
}

func TestWindowOffsetShortPageStops(t *testing.T) {
	var offsets []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		offsets = append(offsets, offset)
		if offset == "" {
			json.NewEncoder(w).Encode(fullPage(5))
			return
		}
		// Second page is short: end of stream.
		json.NewEncoder(w).Encode(fullPage(2))
	}))
	defer srv.Close()

	records, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		PageSize: 5,
		MaxPages: 10,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(records) != 7 {
		t.Errorf("expected 7 records, got %d", len(records))
	}
	if len(offsets) != 2 || offsets[1] != "5" {
		t.Errorf("expected second request at offset 5, got %v", offsets)
	}
}

func TestWindowPropagatesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream on fire", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		PageSize: 5,
		MaxPages: 3,
	})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestWindowSendsBoundsAndQuery(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		json.NewEncoder(w).Encode([]map[string]interface{}{})
	}))
	defer srv.Close()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	_, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		Query:    url.Values{"market_id": {"m1"}},
		Start:    start,
		End:      end,
		PageSize: 100,
		MaxPages: 1,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if got.Get("start_ts") != "2024-01-01T00:00:00Z" {
		t.Errorf("start_ts = %q", got.Get("start_ts"))
	}
	if got.Get("end_ts") != "2024-01-01T01:00:00Z" {
		t.Errorf("end_ts = %q", got.Get("end_ts"))
	}
	if got.Get("limit") != "100" {
		t.Errorf("limit = %q", got.Get("limit"))
	}
	if got.Get("market_id") != "m1" {
		t.Errorf("market_id = %q", got.Get("market_id"))
	}
}

func TestWindowUnrecognizedShapeIsEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"weird": true}`))
	}))
	defer srv.Close()

	records, err := testClient(t).Window(context.Background(), Request{
		URL:      srv.URL,
		PageSize: 5,
		MaxPages: 3,
	})
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty result, got %d records", len(records))
	}
}
