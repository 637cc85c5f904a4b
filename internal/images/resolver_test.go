// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package images

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/cartelera-project/cartelera/internal/classify"
	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/models"
)

func newTestClient() *httpx.Client {
	return httpx.New(5*time.Second, "cartelera-test/1.0", config.RetryConfig{
		Attempts:     1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}, nil)
}

func testResolver(cachePath string, providers ...provider) *Resolver {
	return &Resolver{
		providers: providers,
		cache:     openUsageCache(cachePath),
		perPage:   10,
		pool:      5,
		rng:       rand.New(rand.NewSource(1)),
	}
}

// unsplashService serves an Unsplash-shaped search response for the
// given photo URLs and checks auth plus query parameters.
func unsplashService(t *testing.T, urls ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Client-ID unsplash-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("orientation"); got != "landscape" {
			t.Errorf("orientation = %q", got)
		}
		results := make([]map[string]any, len(urls))
		for i, u := range urls {
			results[i] = map[string]any{
				"urls": map[string]any{"regular": u, "small": u + "&s=1", "thumb": u + "&t=1"},
				"user": map[string]any{
					"name":  "Ana Torres",
					"links": map[string]any{"html": "https://unsplash.com/@anatorres"},
				},
				"links": map[string]any{"html": "https://unsplash.com/photos/abc"},
			}
		}
		if err := json.NewEncoder(w).Encode(map[string]any{"results": results}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pexelsService(t *testing.T, urls ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "pexels-key" {
			t.Errorf("Authorization = %q", got)
		}
		photos := make([]map[string]any, len(urls))
		for i, u := range urls {
			photos[i] = map[string]any{
				"src":          map[string]any{"large": u, "small": u + "&s=1", "tiny": u + "&t=1"},
				"photographer": "Luis Vega",
				"url":          "https://www.pexels.com/photo/123",
			}
		}
		if err := json.NewEncoder(w).Encode(map[string]any{"photos": photos}); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFillKeepsSourceImage(t *testing.T) {
	src := "https://museo.example.org/expo.jpg"
	ev := &models.Event{Title: "Exposición", SourceImageURL: &src}

	r := testResolver("")
	if err := r.Fill(context.Background(), ev, []string{"art gallery"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if ev.ImageURL == nil || *ev.ImageURL != src {
		t.Errorf("image = %v, want the source image kept", ev.ImageURL)
	}
	if ev.ImageAuthor != nil {
		t.Error("source images should carry no provider attribution")
	}
}

func TestFillFromPrimaryProvider(t *testing.T) {
	srv := unsplashService(t, "https://images.unsplash.com/photo-1?w=1200")
	r := testResolver("", &unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: srv.URL})

	ev := &models.Event{Title: "Concierto"}
	if err := r.Fill(context.Background(), ev, []string{"jazz band", "stage"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if ev.ImageURL == nil || *ev.ImageURL != "https://images.unsplash.com/photo-1?w=1200" {
		t.Errorf("image = %v", ev.ImageURL)
	}
	if ev.ImageAuthor == nil || *ev.ImageAuthor != "Ana Torres" {
		t.Errorf("author = %v", ev.ImageAuthor)
	}
	if ev.ImageSourceURL == nil || *ev.ImageSourceURL != "https://unsplash.com/photos/abc" {
		t.Errorf("source url = %v", ev.ImageSourceURL)
	}
	if !r.cache.isUsed(*ev.ImageURL) {
		t.Error("assigned URL should be marked used")
	}
}

func TestFillFallsToSecondaryProvider(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer broken.Close()
	pex := pexelsService(t, "https://images.pexels.com/photos/123/t.jpeg")

	r := testResolver("",
		&unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: broken.URL},
		&pexelsProvider{http: newTestClient(), key: "pexels-key", baseURL: pex.URL},
	)

	ev := &models.Event{Title: "Danza"}
	if err := r.Fill(context.Background(), ev, []string{"ballet dancer"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if ev.ImageURL == nil || *ev.ImageURL != "https://images.pexels.com/photos/123/t.jpeg" {
		t.Errorf("image = %v, want the secondary provider result", ev.ImageURL)
	}
	if ev.ImageAuthor == nil || *ev.ImageAuthor != "Luis Vega" {
		t.Errorf("author = %v", ev.ImageAuthor)
	}
}

func TestFillCuratedFallback(t *testing.T) {
	r := testResolver("")
	ev := &models.Event{Title: "Recital", CategorySlugs: []string{"music"}}
	if err := r.Fill(context.Background(), ev, nil); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if ev.ImageURL == nil {
		t.Fatal("curated fallback should always assign an image")
	}
	found := false
	for _, u := range curated["music"] {
		if *ev.ImageURL == u {
			found = true
		}
	}
	if !found {
		t.Errorf("image = %q, want one of the music curated set", *ev.ImageURL)
	}
}

func TestFillPrefersUnusedURLs(t *testing.T) {
	srv := unsplashService(t,
		"https://images.unsplash.com/photo-1?w=1200",
		"https://images.unsplash.com/photo-2?w=1200",
		"https://images.unsplash.com/photo-3?w=1200",
	)
	r := testResolver("", &unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: srv.URL})
	r.cache.markUsed("https://images.unsplash.com/photo-1?w=1200")
	r.cache.markUsed("https://images.unsplash.com/photo-3?w=1200")

	ev := &models.Event{Title: "Concierto"}
	if err := r.Fill(context.Background(), ev, []string{"orchestra"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if *ev.ImageURL != "https://images.unsplash.com/photo-2?w=1200" {
		t.Errorf("image = %q, want the only unused URL", *ev.ImageURL)
	}
}

func TestFillReusesWhenExhausted(t *testing.T) {
	srv := unsplashService(t, "https://images.unsplash.com/photo-1?w=1200")
	r := testResolver("", &unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: srv.URL})
	r.cache.markUsed("https://images.unsplash.com/photo-1?w=1200")

	ev := &models.Event{Title: "Concierto"}
	if err := r.Fill(context.Background(), ev, []string{"orchestra"}); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if ev.ImageURL == nil || *ev.ImageURL != "https://images.unsplash.com/photo-1?w=1200" {
		t.Errorf("image = %v, want reuse once the pool is exhausted", ev.ImageURL)
	}
}

func TestCachePersistsAcrossResolvers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	urls := []string{
		"https://images.unsplash.com/photo-1?w=1200",
		"https://images.unsplash.com/photo-2?w=1200",
	}
	srv := unsplashService(t, urls...)

	r1 := testResolver(path, &unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: srv.URL})
	ev1 := &models.Event{Title: "Concierto"}
	if err := r1.Fill(context.Background(), ev1, []string{"guitar"}); err != nil {
		t.Fatalf("first Fill: %v", err)
	}
	if err := r1.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	r2 := testResolver(path, &unsplashProvider{http: newTestClient(), key: "unsplash-key", baseURL: srv.URL})
	ev2 := &models.Event{Title: "Otro concierto"}
	if err := r2.Fill(context.Background(), ev2, []string{"guitar"}); err != nil {
		t.Fatalf("second Fill: %v", err)
	}
	if *ev2.ImageURL == *ev1.ImageURL {
		t.Errorf("both events got %q, want the persisted cache to steer to the unused URL", *ev1.ImageURL)
	}
}

func TestNewRegistersProviders(t *testing.T) {
	both := New(config.ImagesConfig{UnsplashKey: "a", PexelsKey: "b"}, newTestClient())
	if len(both.providers) != 2 || both.providers[0].name() != "unsplash" || both.providers[1].name() != "pexels" {
		t.Errorf("providers = %d, want unsplash then pexels", len(both.providers))
	}
	none := New(config.ImagesConfig{}, newTestClient())
	if len(none.providers) != 0 {
		t.Errorf("providers = %d, want none without keys", len(none.providers))
	}
}

func TestQueryKeyStable(t *testing.T) {
	a := queryKey([]string{"Jazz Band", "stage"})
	b := queryKey([]string{" stage ", "jazz band"})
	if a != b {
		t.Error("key should ignore order, case and padding")
	}
	if queryKey([]string{"flamenco"}) == a {
		t.Error("different keywords should produce different keys")
	}
}

func TestCuratedCoversVocabulary(t *testing.T) {
	for _, slug := range classify.Slugs() {
		if len(curated[slug]) == 0 {
			t.Errorf("no curated images for %q", slug)
		}
	}
}
