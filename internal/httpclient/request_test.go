package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewInstrumentedClient(
		WithBaseURL(srv.URL),
		WithProviderName("test"),
		WithHeaders(map[string]string{"X-Default": "yes"}),
	)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestGetDecodesResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/markets" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("active") != "true" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("X-Default") != "yes" {
			t.Error("default header missing")
		}
		if r.Header.Get("X-API-Key") != "k" {
			t.Error("per-request header missing")
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{{"tokenId": "t1"}})
	})

	var result []map[string]string
	resp, err := c.NewRequest().
		SetHeader("X-API-Key", "k").
		SetQueryParam("active", "true").
		SetResult(&result).
		Get(context.Background(), "/v1/markets")
	if err != nil {
		t.Fatal(err)
	}
	if resp.IsError() {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(result) != 1 || result[0]["tokenId"] != "t1" {
		t.Errorf("result = %v", result)
	}
}

func TestPostSendsJSONBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %s", ct)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if body["strategy"] != "limit" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
	})

	resp, err := c.NewRequest().
		SetBody(map[string]string{"strategy": "limit"}).
		Post(context.Background(), "/orders")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestErrorStatusKeepsRawBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":"rate limited"}`))
	})

	var result map[string]string
	resp, err := c.NewRequest().SetResult(&result).Get(context.Background(), "/markets")
	if err != nil {
		t.Fatal(err)
	}
	if !resp.IsError() {
		t.Error("429 should be an error status")
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(result) != 0 {
		t.Errorf("result decoded from error body: %v", result)
	}
	if string(resp.Body) != `{"error":"rate limited"}` {
		t.Errorf("raw body = %q", resp.Body)
	}
}

func TestRequestBuildersAreIndependent(t *testing.T) {
	hits := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.Header.Get("X-One") != "" && hits == 2 {
			t.Error("header leaked between requests")
		}
		w.WriteHeader(http.StatusOK)
	})

	if _, err := c.NewRequest().SetHeader("X-One", "1").Get(context.Background(), "/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewRequest().Get(context.Background(), "/b"); err != nil {
		t.Fatal(err)
	}
}
