// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package classify

// VocabularyVersion keys the category-embedding artifact. Bump it
// whenever the slug set or any prompt text changes so stale embeddings
// are recomputed instead of reused.
const VocabularyVersion = "2026-02"

// CategoryOther is the primary slug assigned when neither the
// embedding pass nor the enricher produced a category.
const CategoryOther = "other"

// Category is one controlled-vocabulary entry. Prompt is the bilingual
// text embedded as the category's reference vector; richer than the
// slug alone so the cosine comparison has something to grab onto.
type Category struct {
	Slug   string
	Prompt string
}

// Vocabulary returns the controlled category set, primary-ordering
// preserved. Events carry at most four of these slugs.
func Vocabulary() []Category {
	return []Category{
		{"music", "Concierto, recital, festival de música, actuación musical en directo. Concert, live music performance, recital, music festival, band or orchestra."},
		{"theater", "Obra de teatro, representación escénica, comedia, drama, monólogo. Theater play, stage performance, drama, comedy show, monologue."},
		{"dance", "Espectáculo de danza, ballet, flamenco, danza contemporánea. Dance performance, ballet, flamenco show, contemporary dance."},
		{"cinema", "Proyección de cine, película, ciclo de cine, documental, cortometrajes. Film screening, movie, cinema cycle, documentary, short films."},
		{"exhibition", "Exposición de arte, pintura, escultura, fotografía, muestra en museo o galería. Art exhibition, painting, sculpture, photography show, museum or gallery display."},
		{"literature", "Presentación de libro, recital de poesía, club de lectura, encuentro con autores. Book presentation, poetry reading, literature meeting, author talk."},
		{"workshop", "Taller participativo, curso, clase práctica, actividad formativa. Hands-on workshop, course, practical class, training activity."},
		{"family", "Actividad infantil y familiar, títeres, cuentacuentos, juegos para niños. Children and family activity, puppet show, storytelling, kids games."},
		{"festival", "Festival cultural, feria, fiesta popular, verbena, celebración al aire libre. Cultural festival, fair, street party, open-air celebration."},
		{"heritage", "Visita guiada, patrimonio histórico, monumentos, jornada de puertas abiertas. Guided tour, historical heritage, monuments, open-doors day."},
		{"gastronomy", "Evento gastronómico, cata, ruta de tapas, mercado de productores. Gastronomy event, tasting, tapas route, food market."},
		{"conference", "Conferencia, charla, mesa redonda, debate, jornada divulgativa. Conference, talk, round table, debate, outreach session."},
		{"tradition", "Fiesta tradicional, procesión, romería, folclore, cultura popular. Traditional celebration, procession, pilgrimage festival, folklore."},
		{"science", "Divulgación científica, planetario, observación astronómica, feria de ciencia. Science outreach, planetarium, astronomy night, science fair."},
		{CategoryOther, "Evento cultural general, actividad diversa sin categoría clara. General cultural event, miscellaneous activity."},
	}
}

// Slugs returns the vocabulary slugs in order.
func Slugs() []string {
	cats := Vocabulary()
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.Slug
	}
	return out
}

// ValidSlug reports whether s belongs to the controlled vocabulary.
func ValidSlug(s string) bool {
	for _, c := range Vocabulary() {
		if c.Slug == s {
			return true
		}
	}
	return false
}
