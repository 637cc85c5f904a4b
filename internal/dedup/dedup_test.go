// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package dedup

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/cartelera-project/cartelera/internal/models"
)

type fakeStore struct {
	candidates []*models.Event
	err        error
	calls      int
	lastDate   time.Time
}

func (f *fakeStore) FindByStartDate(_ context.Context, startDate time.Time) ([]*models.Event, error) {
	f.calls++
	f.lastDate = startDate
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type eventOpt func(*models.Event)

func event(source, externalID, title string, opts ...eventOpt) *models.Event {
	ev := &models.Event{
		ID:         uuid.New(),
		SourceSlug: source,
		ExternalID: externalID,
		Title:      title,
		StartDate:  day(2026, time.September, 12),
	}
	for _, opt := range opts {
		opt(ev)
	}
	return ev
}

func withCity(city string) eventOpt {
	return func(ev *models.Event) { ev.City = &city }
}

func withVenue(venue string) eventOpt {
	return func(ev *models.Event) { ev.VenueName = &venue }
}

func withDate(d time.Time) eventOpt {
	return func(ev *models.Event) { ev.StartDate = d }
}

func withImage(url string) eventOpt {
	return func(ev *models.Event) { ev.ImageURL = &url }
}

func withPrice(p float64) eventOpt {
	return func(ev *models.Event) { ev.Price = &p }
}

func withEndDate(d time.Time) eventOpt {
	return func(ev *models.Event) { ev.EndDate = &d }
}

func withExternalURL(url string) eventOpt {
	return func(ev *models.Event) { ev.ExternalURL = &url }
}

func withDescription(desc string) eventOpt {
	return func(ev *models.Event) { ev.Description = desc }
}

func TestCityKey(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Madrid", "madrid"},
		{"Cádiz", "cadiz"},
		{"  Pamplona y su Comarca ", "pamplona"},
		{"Gijón y área metropolitana", "gijon"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := cityKey(tc.in); got != tc.want {
			t.Errorf("cityKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTitleKey(t *testing.T) {
	got := titleKey("¡Flamenco!: Noche en vivo — Sevilla")
	want := "flamenco noche en vivo sevilla"
	if got != want {
		t.Errorf("titleKey = %q, want %q", got, want)
	}
	if titleKey("  Música   clásica  ") != "musica clasica" {
		t.Errorf("titleKey does not collapse whitespace: %q", titleKey("  Música   clásica  "))
	}
}

func TestSimilarity(t *testing.T) {
	if got := similarity("concierto", "concierto"); got != 1 {
		t.Errorf("identical strings: got %v, want 1", got)
	}
	if got := similarity("", "concierto"); got != 0 {
		t.Errorf("empty string: got %v, want 0", got)
	}
	high := similarity("concierto de primavera", "concierto de primavera ii")
	if high < 0.85 || high >= 0.95 {
		t.Fatalf("fixture similarity %v out of the intended 0.85..0.95 band", high)
	}
}

func TestQualityWeights(t *testing.T) {
	startTime := "19:30"
	endTime := "21:00"
	full := event("guia-ocio", "e1", "Concierto",
		withDescription(strings.Repeat("x", 60)),
		withImage("https://img.example/e1.jpg"),
		withPrice(12),
		withEndDate(day(2026, time.September, 14)),
		withExternalURL("https://example.org/e1"),
	)
	lat, lon := 40.4, -3.7
	full.Latitude = &lat
	full.Longitude = &lon
	full.Organizer = &models.Organizer{Name: "Ayuntamiento"}
	full.StartTime = &startTime
	full.EndTime = &endTime
	full.CategorySlugs = []string{"music"}

	if got := Quality(full); got != 50 {
		t.Errorf("full event quality = %d, want 50", got)
	}
	if got := Quality(event("guia-ocio", "e2", "Concierto")); got != 0 {
		t.Errorf("bare event quality = %d, want 0", got)
	}

	// Exactly the threshold length carries no weight.
	capped := event("guia-ocio", "e3", "Concierto", withDescription(strings.Repeat("x", 50)))
	if got := Quality(capped); got != 0 {
		t.Errorf("50-char description quality = %d, want 0", got)
	}
}

func TestResolveInsertsNewEvent(t *testing.T) {
	store := &fakeStore{}
	incoming := event("guia-ocio", "e1", "Recital de piano",
		withCity("Madrid"),
		withImage("https://img.example/p.jpg"),
	)

	res, err := New(store).Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Action != ActionInsert {
		t.Fatalf("action = %q, want insert", res.Action)
	}
	if res.Event != incoming {
		t.Error("insert should carry the incoming event")
	}
	if store.calls != 1 || !store.lastDate.Equal(incoming.StartDate) {
		t.Errorf("store queried %d times with %v", store.calls, store.lastDate)
	}

	c := res.Contribution
	if !c.IsPrimary {
		t.Error("first source should be primary")
	}
	if c.EventID != incoming.ID || c.SourceSlug != "guia-ocio" || c.ExternalID != "e1" {
		t.Errorf("contribution identity = %v/%s/%s", c.EventID, c.SourceSlug, c.ExternalID)
	}
	if !reflect.DeepEqual(c.FieldsContributed, []string{"image_url"}) {
		t.Errorf("fields contributed = %v", c.FieldsContributed)
	}
	if c.QualityScore != Quality(incoming) {
		t.Errorf("quality = %d, want %d", c.QualityScore, Quality(incoming))
	}
}

func TestResolveMergesAcrossSources(t *testing.T) {
	existing := event("madrid-datos", "m7", "Concierto de Año Nuevo", withCity("Madrid"))
	incoming := event("guia-ocio", "g3", "Concierto de año nuevo",
		withCity("MADRID"),
		withImage("https://img.example/any.jpg"),
		withPrice(25),
	)
	store := &fakeStore{candidates: []*models.Event{existing}}

	res, err := New(store).Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Action != ActionMerge {
		t.Fatalf("action = %q, want merge", res.Action)
	}
	if res.Improvement != weightImage+weightPrice {
		t.Errorf("improvement = %d, want %d", res.Improvement, weightImage+weightPrice)
	}

	merged := res.Event
	if merged.ID != existing.ID || merged.SourceSlug != "madrid-datos" || merged.ExternalID != "m7" {
		t.Error("merge must keep the existing identity")
	}
	if merged.ImageURL == nil || *merged.ImageURL != "https://img.example/any.jpg" {
		t.Error("image not carried over")
	}
	if merged.Price == nil || *merged.Price != 25 {
		t.Error("price not carried over")
	}
	if existing.ImageURL != nil {
		t.Error("merge mutated the existing event")
	}

	c := res.Contribution
	if c.IsPrimary {
		t.Error("merging source must not be primary")
	}
	if c.EventID != existing.ID {
		t.Error("contribution must credit the existing event")
	}
	if !reflect.DeepEqual(c.FieldsContributed, []string{"image_url", "price"}) {
		t.Errorf("fields contributed = %v", c.FieldsContributed)
	}
}

func TestResolveSameSourceNeverMatches(t *testing.T) {
	existing := event("guia-ocio", "e1", "Recital de piano", withCity("Madrid"))
	incoming := event("guia-ocio", "e2", "Recital de piano", withCity("Madrid"))
	store := &fakeStore{candidates: []*models.Event{existing}}

	res, err := New(store).Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Action != ActionInsert {
		t.Errorf("action = %q, want insert for same-source candidate", res.Action)
	}
}

func TestResolveIgnoresOtherDates(t *testing.T) {
	existing := event("madrid-datos", "m1", "Recital de piano",
		withCity("Madrid"),
		withDate(day(2026, time.September, 13)),
	)
	incoming := event("guia-ocio", "g1", "Recital de piano", withCity("Madrid"))
	store := &fakeStore{candidates: []*models.Event{existing}}

	res, err := New(store).Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Action != ActionInsert {
		t.Errorf("action = %q, want insert for different start date", res.Action)
	}
}

func TestMatchLocationRules(t *testing.T) {
	base := func(opts ...eventOpt) (*models.Event, *models.Event) {
		a := event("guia-ocio", "a", "Noche de jazz en directo")
		b := event("madrid-datos", "b", "Noche de jazz en directo")
		for _, opt := range opts {
			opt(a)
		}
		return a, b
	}

	t.Run("same city matches", func(t *testing.T) {
		a, b := base(withCity("Móstoles"))
		withCity("MOSTOLES")(b)
		if !match(a, b) {
			t.Error("same folded city should match")
		}
	})

	t.Run("similar venue matches despite differing city", func(t *testing.T) {
		a, b := base(withCity("Madrid"), withVenue("Teatro Principal"))
		withCity("Alcalá de Henares")(b)
		withVenue("teatro principal")(b)
		if !match(a, b) {
			t.Error("venue agreement should match on its own")
		}
	})

	t.Run("different city and venue does not match", func(t *testing.T) {
		a, b := base(withCity("Madrid"), withVenue("Teatro Principal"))
		withCity("Sevilla")(b)
		withVenue("Auditorio Nacional")(b)
		if match(a, b) {
			t.Error("disagreeing locations should not match")
		}
	})
}

func TestMatchStrictWithoutLocation(t *testing.T) {
	a := event("guia-ocio", "a", "Concierto de primavera")
	b := event("madrid-datos", "b", "Concierto de primavera II")
	if match(a, b) {
		t.Error("similar-but-not-near-identical titles need a location signal")
	}

	withCity("Madrid")(a)
	withCity("Madrid")(b)
	if !match(a, b) {
		t.Error("a shared city should relax the title requirement")
	}

	c := event("guia-ocio", "c", "Concierto de primavera")
	d := event("madrid-datos", "d", "Concierto de primavera")
	if !match(c, d) {
		t.Error("identical titles should match without location")
	}
}

func TestResolveMergeThreshold(t *testing.T) {
	t.Run("below threshold skips", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital de piano", withCity("Madrid"))
		incoming := event("guia-ocio", "g1", "Recital de piano",
			withCity("Madrid"),
			withExternalURL("https://example.org/e"),
		)
		store := &fakeStore{candidates: []*models.Event{existing}}

		res, err := New(store).Resolve(context.Background(), incoming)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Action != ActionSkip {
			t.Fatalf("action = %q, want skip", res.Action)
		}
		if res.Event != nil {
			t.Error("skip must not carry an event to persist")
		}
		if res.Existing != existing {
			t.Error("skip should report the matched event")
		}
		if res.Improvement != weightExternalURL {
			t.Errorf("improvement = %d, want %d", res.Improvement, weightExternalURL)
		}
		c := res.Contribution
		if c.FieldsContributed == nil || len(c.FieldsContributed) != 0 {
			t.Errorf("skip contribution fields = %v, want empty", c.FieldsContributed)
		}
		if c.EventID != existing.ID || c.IsPrimary {
			t.Error("skip contribution must credit the existing event as secondary")
		}
	})

	t.Run("at threshold merges", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital de piano", withCity("Madrid"))
		incoming := event("guia-ocio", "g1", "Recital de piano",
			withCity("Madrid"),
			withEndDate(day(2026, time.September, 14)),
		)
		store := &fakeStore{candidates: []*models.Event{existing}}

		res, err := New(store).Resolve(context.Background(), incoming)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Action != ActionMerge {
			t.Fatalf("action = %q, want merge", res.Action)
		}
		if res.Improvement != minImprovement {
			t.Errorf("improvement = %d, want %d", res.Improvement, minImprovement)
		}
	})
}

func TestMergeDescriptionRules(t *testing.T) {
	long := strings.Repeat("a", 100)
	longer := strings.Repeat("b", 130)
	muchLonger := strings.Repeat("c", 160)

	t.Run("fills empty", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital")
		incoming := event("guia-ocio", "g1", "Recital", withDescription(long))
		merged, improvement, added := merge(existing, incoming)
		if merged.Description != long {
			t.Error("empty description not filled")
		}
		if improvement != weightDescription {
			t.Errorf("improvement = %d, want %d", improvement, weightDescription)
		}
		if !reflect.DeepEqual(added, []string{"description"}) {
			t.Errorf("added = %v", added)
		}
	})

	t.Run("short fill is recorded but unweighted", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital")
		incoming := event("guia-ocio", "g1", "Recital", withDescription("Breve."))
		merged, improvement, added := merge(existing, incoming)
		if merged.Description != "Breve." {
			t.Error("short description not filled")
		}
		if improvement != 0 {
			t.Errorf("improvement = %d, want 0", improvement)
		}
		if !reflect.DeepEqual(added, []string{"description"}) {
			t.Errorf("added = %v", added)
		}
	})

	t.Run("slightly longer does not replace", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital", withDescription(long))
		incoming := event("guia-ocio", "g1", "Recital", withDescription(longer))
		merged, _, _ := merge(existing, incoming)
		if merged.Description != long {
			t.Error("description replaced by a marginally longer one")
		}
	})

	t.Run("much longer replaces without weight", func(t *testing.T) {
		existing := event("madrid-datos", "m1", "Recital", withDescription(long))
		incoming := event("guia-ocio", "g1", "Recital", withDescription(muchLonger))
		merged, improvement, added := merge(existing, incoming)
		if merged.Description != muchLonger {
			t.Error("substantially longer description should replace")
		}
		if improvement != 0 || len(added) != 0 {
			t.Errorf("replacement counted as new: improvement=%d added=%v", improvement, added)
		}
	})
}

func TestMergeCategoryUnion(t *testing.T) {
	existing := event("madrid-datos", "m1", "Recital")
	existing.CategorySlugs = []string{"music"}
	incoming := event("guia-ocio", "g1", "Recital")
	incoming.CategorySlugs = []string{"music", "festival"}

	merged, improvement, _ := merge(existing, incoming)
	if !reflect.DeepEqual(merged.CategorySlugs, []string{"music", "festival"}) {
		t.Errorf("union = %v", merged.CategorySlugs)
	}
	if improvement != 0 {
		t.Errorf("extending categories scored %d, want 0", improvement)
	}

	bare := event("madrid-datos", "m2", "Recital")
	merged, improvement, added := merge(bare, incoming)
	if improvement != weightCategory {
		t.Errorf("first categories scored %d, want %d", improvement, weightCategory)
	}
	if !reflect.DeepEqual(added, []string{"category_slugs"}) {
		t.Errorf("added = %v", added)
	}
	if len(merged.CategorySlugs) != 2 {
		t.Errorf("merged slugs = %v", merged.CategorySlugs)
	}
}

func TestMergeFillsLocationGaps(t *testing.T) {
	existing := event("madrid-datos", "m1", "Recital", withCity("Madrid"))
	incoming := event("guia-ocio", "g1", "Recital",
		withCity("Móstoles"),
		withVenue("Auditorio Municipal"),
	)
	addr := "Calle Mayor 1"
	incoming.Address = &addr
	incoming.Summary = "Recital de clausura."

	merged, improvement, _ := merge(existing, incoming)
	if merged.City == nil || *merged.City != "Madrid" {
		t.Error("populated city must not be overwritten")
	}
	if merged.VenueName == nil || *merged.VenueName != "Auditorio Municipal" {
		t.Error("venue gap not filled")
	}
	if merged.Address == nil || *merged.Address != "Calle Mayor 1" {
		t.Error("address gap not filled")
	}
	if merged.Summary != "Recital de clausura." {
		t.Error("summary gap not filled")
	}
	if improvement != 0 {
		t.Errorf("gap fills scored %d, want 0", improvement)
	}
}

func TestMergeSymmetric(t *testing.T) {
	longDesc := strings.Repeat("Marisco fresco na ría, polbo e concertos no porto. ", 8)
	sparse := event("ayto-vigo", "a1", "Festa do Marisco",
		withCity("Vigo"),
		withDescription("Gran festa popular no porto de Vigo con degustacións."),
	)
	sparse.StartTime = models.StrPtr("19:00")
	sparse.CategorySlugs = []string{"social"}

	rich := event("turismo-galicia", "b9", "Festa do Marisco",
		withCity("Vigo"),
		withDescription(longDesc),
		withImage("https://images.example.org/marisco.jpg"),
		withPrice(0),
		withEndDate(day(2026, time.September, 14)),
	)
	rich.Latitude = models.FloatPtr(42.2406)
	rich.Longitude = models.FloatPtr(-8.7207)
	rich.CategorySlugs = []string{"gastronomy"}

	// Whichever source arrives second, the merged content converges.
	forward, _, _ := merge(sparse, rich)
	reverse, _, _ := merge(rich, sparse)

	if forward.Description != reverse.Description || forward.Description != longDesc {
		t.Error("descriptions diverge by arrival order")
	}
	if deref(forward.ImageURL) != deref(reverse.ImageURL) {
		t.Errorf("images diverge: %v vs %v", forward.ImageURL, reverse.ImageURL)
	}
	if *forward.Latitude != *reverse.Latitude || *forward.Longitude != *reverse.Longitude {
		t.Error("coordinates diverge by arrival order")
	}
	if *forward.Price != *reverse.Price {
		t.Errorf("prices diverge: %v vs %v", *forward.Price, *reverse.Price)
	}
	if !forward.EndDate.Equal(*reverse.EndDate) {
		t.Errorf("end dates diverge: %v vs %v", forward.EndDate, reverse.EndDate)
	}
	if deref(forward.StartTime) != deref(reverse.StartTime) || deref(forward.StartTime) != "19:00" {
		t.Error("start times diverge by arrival order")
	}

	fwdSlugs := make(map[string]bool, len(forward.CategorySlugs))
	for _, s := range forward.CategorySlugs {
		fwdSlugs[s] = true
	}
	revSlugs := make(map[string]bool, len(reverse.CategorySlugs))
	for _, s := range reverse.CategorySlugs {
		revSlugs[s] = true
	}
	if !reflect.DeepEqual(fwdSlugs, revSlugs) {
		t.Errorf("category sets diverge: %v vs %v", forward.CategorySlugs, reverse.CategorySlugs)
	}
}

func TestResolveStoreError(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	_, err := New(store).Resolve(context.Background(), event("guia-ocio", "e1", "Recital"))
	if err == nil || !strings.Contains(err.Error(), "find candidates") {
		t.Fatalf("err = %v, want wrapped candidate lookup failure", err)
	}
}

func TestResolveFirstMatchWins(t *testing.T) {
	first := event("madrid-datos", "m1", "Recital de piano", withCity("Madrid"))
	second := event("bcn-agenda", "b1", "Recital de piano", withCity("Madrid"))
	incoming := event("guia-ocio", "g1", "Recital de piano",
		withCity("Madrid"),
		withEndDate(day(2026, time.September, 14)),
	)
	store := &fakeStore{candidates: []*models.Event{first, second}}

	res, err := New(store).Resolve(context.Background(), incoming)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Existing != first {
		t.Error("resolution should bind to the first candidate in store order")
	}
}
