// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package geo

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
	"github.com/cartelera-project/cartelera/internal/models"
	"github.com/cartelera-project/cartelera/internal/parse"
)

func newTestClient() *httpx.Client {
	return httpx.New(5*time.Second, "cartelera-test/1.0", config.RetryConfig{
		Attempts:     1,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     50 * time.Millisecond,
	}, nil)
}

// nominatimStub answers /search by exact query text and records what
// it was asked, so tests can assert ladder order.
type nominatimStub struct {
	mu      sync.Mutex
	queries []string
	answers map[string][]map[string]any
}

func (s *nominatimStub) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("countrycodes"); got != "es" {
			t.Errorf("countrycodes = %q", got)
		}
		if got := r.URL.Query().Get("format"); got != "jsonv2" {
			t.Errorf("format = %q", got)
		}
		if got := r.Header.Get("User-Agent"); got != "cartelera/1.0 (test)" {
			t.Errorf("User-Agent = %q", got)
		}
		q := r.URL.Query().Get("q")
		s.mu.Lock()
		s.queries = append(s.queries, q)
		places := s.answers[q]
		s.mu.Unlock()
		if places == nil {
			places = []map[string]any{}
		}
		if err := json.NewEncoder(w).Encode(places); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func (s *nominatimStub) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

func place(lat, lon, typ string, importance float64, city, state, postcode string) map[string]any {
	return map[string]any{
		"lat":          lat,
		"lon":          lon,
		"type":         typ,
		"importance":   importance,
		"display_name": city + ", España",
		"address": map[string]any{
			"city":     city,
			"state":    state,
			"postcode": postcode,
		},
	}
}

func testGeocoder(t *testing.T, stub *nominatimStub) *Geocoder {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	return &Geocoder{
		client: &Client{
			http:    newTestClient(),
			baseURL: srv.URL,
			ua:      "cartelera/1.0 (test)",
			limiter: rate.NewLimiter(rate.Inf, 1),
		},
		cache: make(map[string][]Place),
	}
}

func strPtr(s string) *string { return &s }

func TestFillGeocodesVenue(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{
		"Teatro Real, Madrid, Madrid": {
			place("40.4180", "-3.7109", "theatre", 0.42, "Madrid", "Comunidad de Madrid", "28013"),
		},
	}}
	g := testGeocoder(t, stub)

	ev := &models.Event{
		VenueName: strPtr("Teatro Real"),
		City:      strPtr("Madrid"),
		Province:  strPtr("Madrid"),
	}
	if err := g.Fill(context.Background(), ev); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	if ev.Latitude == nil || math.Abs(*ev.Latitude-40.4180) > 1e-9 {
		t.Errorf("latitude = %v", ev.Latitude)
	}
	if ev.Longitude == nil || math.Abs(*ev.Longitude+3.7109) > 1e-9 {
		t.Errorf("longitude = %v", ev.Longitude)
	}
	if ev.GeocodeConfidence == nil || math.Abs(*ev.GeocodeConfidence-0.67) > 1e-9 {
		t.Errorf("confidence = %v, want importance plus theatre boost", ev.GeocodeConfidence)
	}
	if ev.PostalCode == nil || *ev.PostalCode != "28013" {
		t.Errorf("postal code = %v", ev.PostalCode)
	}
	if ev.Region == nil || *ev.Region != "Comunidad de Madrid" {
		t.Errorf("region = %v", ev.Region)
	}
	if got := stub.seen(); len(got) != 1 {
		t.Errorf("queries = %v, want the first ladder step to suffice", got)
	}
}

func TestFillLadderFallsThrough(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{
		"Cuenca": {place("40.0704", "-2.1374", "city", 0.55, "Cuenca", "Castilla-La Mancha", "")},
	}}
	g := testGeocoder(t, stub)

	ev := &models.Event{
		VenueName: strPtr("Sala Desconocida"),
		City:      strPtr("Cuenca"),
		Province:  strPtr("Cuenca"),
	}
	if err := g.Fill(context.Background(), ev); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	want := []string{
		"Sala Desconocida, Cuenca, Cuenca",
		"Sala Desconocida, Cuenca",
		"Cuenca, Cuenca",
		"Cuenca",
	}
	got := stub.seen()
	if len(got) != len(want) {
		t.Fatalf("queries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("queries = %v, want specific-to-general order %v", got, want)
		}
	}
	if ev.Latitude == nil {
		t.Error("city-level result should still set coordinates")
	}
}

func TestFillMemoizesLookups(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{
		"Toledo, Toledo": {place("39.8628", "-4.0273", "city", 0.6, "Toledo", "Castilla-La Mancha", "")},
	}}
	g := testGeocoder(t, stub)

	first := &models.Event{City: strPtr("Toledo")}
	if err := g.Fill(context.Background(), first); err != nil {
		t.Fatalf("first Fill: %v", err)
	}
	calls := len(stub.seen())

	second := &models.Event{City: strPtr("Toledo")}
	if err := g.Fill(context.Background(), second); err != nil {
		t.Fatalf("second Fill: %v", err)
	}
	if got := len(stub.seen()); got != calls {
		t.Errorf("requests grew from %d to %d, want the cache to answer", calls, got)
	}
	if second.Latitude == nil {
		t.Error("cached result should still fill coordinates")
	}
}

func TestFillCachesNegativeAnswers(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{}}
	g := testGeocoder(t, stub)

	first := &models.Event{City: strPtr("Ávila")}
	if err := g.Fill(context.Background(), first); err != nil {
		t.Fatalf("first Fill: %v", err)
	}
	calls := len(stub.seen())
	if calls == 0 {
		t.Fatal("expected at least one lookup")
	}

	second := &models.Event{City: strPtr("Ávila")}
	if err := g.Fill(context.Background(), second); err != nil {
		t.Fatalf("second Fill: %v", err)
	}
	if got := len(stub.seen()); got != calls {
		t.Errorf("requests grew from %d to %d, want misses cached too", calls, got)
	}
	if first.Latitude != nil || second.Latitude != nil {
		t.Error("no result should leave coordinates empty")
	}
}

func TestFillSkipsWithCoordinates(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{}}
	g := testGeocoder(t, stub)

	lat, lon := 43.2630, -2.9350
	ev := &models.Event{
		City:      strPtr("Bilbao"),
		Region:    strPtr("Cataluña"),
		Latitude:  &lat,
		Longitude: &lon,
	}
	if err := g.Fill(context.Background(), ev); err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if got := stub.seen(); len(got) != 0 {
		t.Errorf("queries = %v, want none for events with coordinates", got)
	}
	if ev.Region == nil || *ev.Region != "País Vasco" {
		t.Errorf("region = %v, want the registry to correct it", ev.Region)
	}
	if ev.Province == nil || *ev.Province != "Bizkaia" {
		t.Errorf("province = %v", ev.Province)
	}
}

func TestFillConflictDropsDeclaredHints(t *testing.T) {
	stub := &nominatimStub{answers: map[string][]map[string]any{
		"Kafe Antzokia, Bilbao": {
			place("43.2609", "-2.9334", "arts_centre", 0.35, "Bilbao", "País Vasco", "48005"),
		},
	}}
	g := testGeocoder(t, stub)

	ev := &models.Event{
		VenueName: strPtr("Kafe Antzokia"),
		City:      strPtr("Bilbao"),
		Province:  strPtr("Barcelona"),
	}
	if err := g.Fill(context.Background(), ev); err != nil {
		t.Fatalf("Fill: %v", err)
	}

	for _, q := range stub.seen() {
		if strings.Contains(q, "Barcelona") {
			t.Errorf("query %q still carries the conflicting province", q)
		}
	}
	if ev.Province == nil || *ev.Province != "Bizkaia" {
		t.Errorf("province = %v, want the registry value", ev.Province)
	}
	if ev.Region == nil || *ev.Region != "País Vasco" {
		t.Errorf("region = %v", ev.Region)
	}
	if ev.Latitude == nil {
		t.Error("conflict should not prevent geocoding")
	}
}

func TestBestPlacePrefersBoostedTypes(t *testing.T) {
	street := Place{Type: "residential", Importance: 0.50}
	theatre := Place{Type: "theatre", Importance: 0.40}
	if got := bestPlace([]Place{street, theatre}); got.Type != "theatre" {
		t.Errorf("best = %q, want the boosted venue type", got.Type)
	}

	city := Place{Type: "city", Importance: 0.80}
	if got := bestPlace([]Place{city, theatre}); got.Type != "city" {
		t.Errorf("best = %q, boost should not beat a much stronger importance", got.Type)
	}
}

func TestRegistryLookups(t *testing.T) {
	if region, ok := RegionForCity("Logroño"); !ok || region != "La Rioja" {
		t.Errorf("RegionForCity(Logroño) = %q, %v", region, ok)
	}
	if region, ok := RegionForCity("Santiago de Compostela"); !ok || region != "Galicia" {
		t.Errorf("RegionForCity(Santiago) = %q, %v", region, ok)
	}
	if province, ok := ProvinceForCity("GIJÓN"); !ok || province != "Asturias" {
		t.Errorf("ProvinceForCity(GIJÓN) = %q, %v", province, ok)
	}
	if region, ok := RegionForProvince("Gipuzkoa"); !ok || region != "País Vasco" {
		t.Errorf("RegionForProvince(Gipuzkoa) = %q, %v", region, ok)
	}
	if _, ok := RegionForCity("Villarriba de Arriba"); ok {
		t.Error("unknown municipality should miss")
	}
}

func TestRegistryKeysAreFolded(t *testing.T) {
	for key := range provinceToRegion {
		if parse.Fold(key) != key {
			t.Errorf("province key %q is not in folded form", key)
		}
	}
	for key, province := range cityToProvince {
		if parse.Fold(key) != key {
			t.Errorf("city key %q is not in folded form", key)
		}
		if _, ok := provinceToRegion[parse.Fold(province)]; !ok {
			t.Errorf("city %q points at unknown province %q", key, province)
		}
	}
}
