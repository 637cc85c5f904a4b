// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/sources"
)

func testClient() *httpx.Client {
	retry := config.RetryConfig{
		Attempts:     1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}
	return httpx.New(5*time.Second, "cartelera-test/1.0", retry, nil)
}

func goldConfig(endpoint string) *sources.SourceConfig {
	return &sources.SourceConfig{
		Slug:     "test-api",
		Tier:     models.TierGold,
		Endpoint: endpoint,
	}
}

func TestAPIFetchSingle(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"@graph": [{"id": 1, "title": "Uno"}, {"id": 2, "title": "Dos"}]}`)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	cfg.Pagination = sources.PaginationNone
	cfg.ItemsPath = "@graph"

	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].Item == nil || recs[0].Item["title"] != "Uno" {
		t.Errorf("first record item = %v", recs[0].Item)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1", got)
	}
}

func TestAPIFetchRootArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id": "a"}, {"id": "b"}, {"id": "c"}]`)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("got %d records, want 3 from root array", len(recs))
	}
}

func TestAPIFetchOffset(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("resource_id"); got != "ds-42" {
			t.Errorf("resource_id = %q, want baked-in param preserved", got)
		}
		if got := r.URL.Query().Get("limit"); got != "2" {
			t.Errorf("limit = %q, want 2", got)
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		n := 2
		if offset >= 4 {
			n = 1
		}
		items := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				items += ","
			}
			items += fmt.Sprintf(`{"register_id": %d}`, offset+i)
		}
		fmt.Fprintf(w, `{"result": {"records": [%s], "total": 5}}`, items)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL + "?resource_id=ds-42")
	cfg.Pagination = sources.PaginationOffset
	cfg.PageSize = 2
	cfg.ItemsPath = "result.records"
	cfg.TotalPath = "result.total"

	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 5 {
		t.Errorf("got %d records, want 5", len(recs))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestAPIFetchSocrataShortPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.URL.Query().Get("$limit"); got != "50" {
			t.Errorf("$limit = %q, want 50", got)
		}
		if got := r.URL.Query().Get("$offset"); got != "0" {
			t.Errorf("$offset = %q, want 0", got)
		}
		fmt.Fprint(w, `{"resources": [{"dc:identifier": "x"}]}`)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	cfg.Pagination = sources.PaginationSocrata
	cfg.PageSize = 50
	cfg.ItemsPath = "resources"

	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("got %d records, want 1", len(recs))
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want short page to stop pagination", got)
	}
}

func TestAPIFetchPaged(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		fmt.Fprintf(w, `{"items": [{"id": "%d-a"}, {"id": "%d-b"}], "totalPages": 2}`, page, page)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	cfg.Pagination = sources.PaginationPage
	cfg.PageSize = 2
	cfg.ItemsPath = "items"
	cfg.TotalPath = "totalPages"

	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 4 {
		t.Errorf("got %d records, want 4", len(recs))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want totalPages to stop pagination", got)
	}
	if recs[2].Item["id"] != "2-a" {
		t.Errorf("third record = %v, want from page 2", recs[2].Item)
	}
}

func TestAPIFetchMaxPagesCap(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"items": [{"id": 1}, {"id": 2}]}`)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	cfg.Pagination = sources.PaginationOffset
	cfg.PageSize = 2
	cfg.ItemsPath = "items"

	recs, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 3)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(recs) != 6 {
		t.Errorf("got %d records, want 6", len(recs))
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want maxPages to cap an endless API", got)
	}
}

func TestAPIFetchAbortsOnClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	cfg.Pagination = sources.PaginationOffset
	cfg.PageSize = 10
	cfg.ItemsPath = "items"

	_, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0)
	if err == nil {
		t.Fatal("Fetch() returned nil error on 404")
	}
	var statusErr *httpx.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		t.Errorf("error = %v, want wrapped 404", err)
	}
}

func TestAPIFetchDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer srv.Close()

	cfg := goldConfig(srv.URL)
	if _, err := NewAPI(testClient()).Fetch(context.Background(), cfg, 0); err == nil {
		t.Fatal("Fetch() returned nil error on invalid JSON")
	}
}
