// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/cartelera-project/cartelera/internal/models"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewWithPool(mock), mock
}

func minimalEvent(slug, externalID string) *models.Event {
	return &models.Event{
		ID:           uuid.New(),
		SourceSlug:   slug,
		SourceTier:   models.TierGold,
		ExternalID:   externalID,
		ScrapedAt:    time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC),
		StartDate:    time.Date(2026, time.September, 12, 0, 0, 0, 0, time.UTC),
		Title:        "Recital de piano",
		LocationType: models.LocationPhysical,
	}
}

func fullEvent(slug, externalID string) *models.Event {
	ev := minimalEvent(slug, externalID)
	ev.Description = "Recital de piano con obras de Albéniz y Granados."
	ev.City = models.StrPtr("Madrid")
	ev.VenueName = models.StrPtr("Teatro Real")
	ev.Latitude = models.FloatPtr(40.418)
	ev.Longitude = models.FloatPtr(-3.712)
	ev.Organizer = &models.Organizer{Name: "Teatro Real"}
	ev.CategorySlugs = []string{"music", "heritage"}
	ev.Contributions = []models.Contribution{{
		EventID:           ev.ID,
		SourceSlug:        slug,
		ExternalID:        externalID,
		FieldsContributed: []string{"coordinates", "category_slugs"},
		QualityScore:      10,
		IsPrimary:         true,
		ContributedAt:     time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC),
	}}
	return ev
}

// expectSatellites queues the satellite statements saveEvent issues
// for a full event under the given persisted id.
func expectSatellites(mock pgxmock.PgxPoolIface, id uuid.UUID, ev *models.Event) {
	mock.ExpectExec("INSERT INTO event_locations").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO event_organizers").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("DELETE FROM event_contacts").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM event_registrations").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM event_accessibility").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM event_online_details").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectExec("DELETE FROM event_categories").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	for i, slug := range ev.CategorySlugs {
		mock.ExpectExec("INSERT INTO event_categories").
			WithArgs(id, slug, i).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	for _, c := range ev.Contributions {
		mock.ExpectExec("INSERT INTO event_contributions").
			WithArgs(id, c.SourceSlug, c.ExternalID, c.FieldsContributed,
				c.QualityScore, c.IsPrimary, c.ContributedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
}

func TestSaveBatchInserts(t *testing.T) {
	s, mock := newMockStore(t)
	ev := fullEvent("guia-ocio", "e1")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(ev.ID, true))
	expectSatellites(mock, ev.ID, ev)
	mock.ExpectCommit()

	report, err := s.SaveBatch(context.Background(), []*models.Event{ev}, false)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	want := models.SaveReport{Inserted: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchUpdateFollowsPersistedID(t *testing.T) {
	s, mock := newMockStore(t)
	ev := fullEvent("guia-ocio", "e1")
	persistedID := uuid.New() // assigned on a previous run

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(persistedID, false))
	expectSatellites(mock, persistedID, ev)
	mock.ExpectCommit()

	report, err := s.SaveBatch(context.Background(), []*models.Event{ev}, false)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if report.Updated != 1 || report.Inserted != 0 {
		t.Errorf("report = %+v, want 1 update", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchSkipExistingCollision(t *testing.T) {
	s, mock := newMockStore(t)
	ev := minimalEvent("guia-ocio", "e1")

	mock.ExpectBegin()
	// DO NOTHING returns no row on conflict.
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	report, err := s.SaveBatch(context.Background(), []*models.Event{ev}, true)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if report.Skipped != 1 || report.Inserted != 0 {
		t.Errorf("report = %+v, want 1 skip", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchSkipExistingInsertsFreshRow(t *testing.T) {
	s, mock := newMockStore(t)
	ev := minimalEvent("guia-ocio", "e1")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(ev.ID))
	for _, table := range []string{
		"event_locations", "event_organizers", "event_contacts",
		"event_registrations", "event_accessibility",
		"event_online_details", "event_categories",
	} {
		mock.ExpectExec("DELETE FROM " + table).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}
	mock.ExpectCommit()

	report, err := s.SaveBatch(context.Background(), []*models.Event{ev}, true)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if report.Inserted != 1 {
		t.Errorf("report = %+v, want 1 insert", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchFailedEventDoesNotAbortSiblings(t *testing.T) {
	s, mock := newMockStore(t)
	bad := minimalEvent("guia-ocio", "bad")
	good := minimalEvent("guia-ocio", "good")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(good.ID, true))
	for _, table := range []string{
		"event_locations", "event_organizers", "event_contacts",
		"event_registrations", "event_accessibility",
		"event_online_details", "event_categories",
	} {
		mock.ExpectExec("DELETE FROM " + table).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
	}
	mock.ExpectCommit()

	report, err := s.SaveBatch(context.Background(), []*models.Event{bad, good}, false)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	want := models.SaveReport{Inserted: 1, Failed: 1}
	if report != want {
		t.Errorf("report = %+v, want %+v", report, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchRollsBackOnSatelliteFailure(t *testing.T) {
	s, mock := newMockStore(t)
	ev := fullEvent("guia-ocio", "e1")

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO events").
		WillReturnRows(pgxmock.NewRows([]string{"id", "inserted"}).AddRow(ev.ID, true))
	mock.ExpectExec("INSERT INTO event_locations").
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	report, err := s.SaveBatch(context.Background(), []*models.Event{ev}, false)
	if err != nil {
		t.Fatalf("SaveBatch: %v", err)
	}
	if report.Failed != 1 {
		t.Errorf("report = %+v, want 1 failed", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSaveBatchStopsOnCancelledContext(t *testing.T) {
	s, mock := newMockStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := s.SaveBatch(ctx, []*models.Event{minimalEvent("guia-ocio", "e1")}, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if report != (models.SaveReport{}) {
		t.Errorf("report = %+v, want empty", report)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByStartDateHydratesCandidates(t *testing.T) {
	s, mock := newMockStore(t)
	startDate := time.Date(2026, time.September, 12, 0, 0, 0, 0, time.UTC)
	scraped := time.Date(2026, time.August, 19, 8, 0, 0, 0, time.UTC)
	fullID, bareID := uuid.New(), uuid.New()

	cols := []string{
		"id", "source_slug", "external_id", "source_tier", "synthetic", "scraped_at",
		"start_date", "end_date", "start_time", "end_time", "all_day",
		"title", "description", "summary",
		"image_url", "source_image_url", "external_url", "image_author", "image_source_url",
		"is_free", "price", "price_info", "location_type",
		"venue_name", "address", "city", "province", "region", "postal_code",
		"country", "latitude", "longitude", "geocode_confidence",
		"name", "url", "email", "phone",
		"category_slugs",
	}
	rows := pgxmock.NewRows(cols).
		AddRow(
			fullID, "madrid-datos", "m7", "GOLD", false, scraped,
			startDate, (*time.Time)(nil), models.StrPtr("19:30"), (*string)(nil), false,
			"Concierto de Año Nuevo", "Gran concierto inaugural.", "Resumen.",
			models.StrPtr("https://img.example/a.jpg"), (*string)(nil), (*string)(nil),
			(*string)(nil), (*string)(nil),
			models.BoolPtr(false), models.FloatPtr(18), (*string)(nil), "physical",
			models.StrPtr("Teatro Real"), (*string)(nil), models.StrPtr("Madrid"),
			models.StrPtr("Madrid"), models.StrPtr("Comunidad de Madrid"), (*string)(nil),
			(*string)(nil), models.FloatPtr(40.418), models.FloatPtr(-3.712),
			models.FloatPtr(0.9),
			models.StrPtr("Teatro Real"), (*string)(nil), (*string)(nil), (*string)(nil),
			[]string{"music"},
		).
		AddRow(
			bareID, "guia-ocio", "g2", "SILVER", true, scraped,
			startDate, (*time.Time)(nil), (*string)(nil), (*string)(nil), true,
			"Mercadillo cultural", "", "",
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			(*bool)(nil), (*float64)(nil), (*string)(nil), "physical",
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			(*string)(nil), (*string)(nil), (*float64)(nil), (*float64)(nil), (*float64)(nil),
			(*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil),
			[]string{},
		)

	mock.ExpectQuery("SELECT e.id").WithArgs(startDate).WillReturnRows(rows)

	events, err := s.FindByStartDate(context.Background(), startDate)
	if err != nil {
		t.Fatalf("FindByStartDate: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	full := events[0]
	if full.ID != fullID || full.SourceTier != models.TierGold {
		t.Errorf("first candidate = %s tier %s", full.ID, full.SourceTier)
	}
	if full.VenueName == nil || *full.VenueName != "Teatro Real" {
		t.Error("venue not hydrated")
	}
	if full.Organizer == nil || full.Organizer.Name != "Teatro Real" {
		t.Error("organizer not hydrated")
	}
	if !reflect.DeepEqual(full.CategorySlugs, []string{"music"}) {
		t.Errorf("categories = %v", full.CategorySlugs)
	}
	if !full.HasCoordinates() || !full.HasImage() {
		t.Error("coordinates/image not hydrated")
	}

	bare := events[1]
	if bare.Organizer != nil {
		t.Error("organizer fabricated for bare candidate")
	}
	if bare.City != nil || bare.VenueName != nil {
		t.Error("location fabricated for bare candidate")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestFindByStartDateQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT e.id").WillReturnError(errors.New("relation does not exist"))

	_, err := s.FindByStartDate(context.Background(), time.Now())
	if err == nil || !strings.Contains(err.Error(), "query candidates") {
		t.Fatalf("err = %v, want wrapped query failure", err)
	}
}

func TestExists(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("guia-ocio", "e1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), "guia-ocio", "e1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("want true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestAddContribution(t *testing.T) {
	s, mock := newMockStore(t)
	c := models.Contribution{
		EventID:           uuid.New(),
		SourceSlug:        "guia-ocio",
		ExternalID:        "g9",
		FieldsContributed: []string{},
		QualityScore:      12,
		ContributedAt:     time.Date(2026, time.August, 20, 10, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO event_contributions").
		WithArgs(c.EventID, c.SourceSlug, c.ExternalID, c.FieldsContributed,
			c.QualityScore, c.IsPrimary, c.ContributedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := s.AddContribution(context.Background(), c); err != nil {
		t.Fatalf("AddContribution: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
