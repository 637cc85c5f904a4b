// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package sources

import "github.com/cartelera-project/cartelera/internal/models"

// Catalog returns the bundled source catalog. Edits here ship with the
// binary; there is no runtime source discovery.
func Catalog() []SourceConfig {
	return []SourceConfig{
		// ---- GOLD: JSON APIs ----
		{
			Slug:       "madrid-datos",
			Name:       "Ayuntamiento de Madrid - Agenda de actividades",
			Region:     "Comunidad de Madrid",
			RegionCode: "MD",
			Tier:       models.TierGold,
			Active:     true,
			Endpoint:   "https://datos.madrid.es/egob/catalogo/206974-0-agenda-eventos-culturales-100.json",
			Pagination: PaginationNone,
			ItemsPath:  "@graph",
			Fields: map[string]string{
				FieldExternalID:  "id",
				FieldTitle:       "title",
				FieldDescription: "description",
				FieldStartDate:   "dtstart",
				FieldEndDate:     "dtend",
				FieldVenueName:   "event-location",
				FieldAddress:     "address.area.street-address",
				FieldCity:        "address.area.locality",
				FieldPostalCode:  "address.area.postal-code",
				FieldIsFree:      "free",
				FieldPriceInfo:   "price",
				FieldExternalURL: "link",
				FieldLatitude:    "location.latitude",
				FieldLongitude:   "location.longitude",
				FieldAudience:    "audience",
			},
			DateFormat: "2006-01-02 15:04:05.0",
			FreeMarker: "1",
		},
		{
			Slug:       "bcn-opendata",
			Name:       "Ajuntament de Barcelona - Agenda cultural",
			Region:     "Cataluña",
			RegionCode: "CT",
			Tier:       models.TierGold,
			Active:     true,
			Endpoint:   "https://opendata-ajuntament.barcelona.cat/data/api/action/datastore_search?resource_id=877ccf66-9106-4ae2-be51-95a9f6469e4c",
			Pagination: PaginationOffset,
			PageSize:   100,
			ItemsPath:  "result.records",
			TotalPath:  "result.total",
			Fields: map[string]string{
				FieldExternalID:  "register_id",
				FieldTitle:       "name",
				FieldDescription: "body",
				FieldStartDate:   "start_date",
				FieldEndDate:     "end_date",
				FieldVenueName:   "venue_name",
				FieldAddress:     "addresses_road_name",
				FieldCity:        "addresses_town",
				FieldPostalCode:  "addresses_zip_code",
				FieldPriceInfo:   "price_info",
				FieldExternalURL: "url",
				FieldLatitude:    "geo_epgs_4326_x",
				FieldLongitude:   "geo_epgs_4326_y",
			},
			DateFormat: "2006-01-02T15:04:05",
			FreeMarker: "gratuït",
		},
		{
			Slug:       "euskadi-kulturklik",
			Name:       "Gobierno Vasco - Kulturklik agenda",
			Region:     "País Vasco",
			RegionCode: "PV",
			Tier:       models.TierGold,
			Active:     true,
			Endpoint:   "https://api.euskadi.eus/culture/events/v1.0/events",
			Pagination: PaginationPage,
			PageSize:   50,
			ItemsPath:  "items",
			TotalPath:  "totalPages",
			Fields: map[string]string{
				FieldExternalID:  "id",
				FieldTitle:       "nameEs",
				FieldDescription: "descriptionEs",
				FieldStartDate:   "startDate",
				FieldEndDate:     "endDate",
				FieldVenueName:   "establishmentEs",
				FieldCity:        "municipalityEs",
				FieldPriceInfo:   "priceEs",
				FieldExternalURL: "urlEventEs",
				FieldImageURL:    "images.0.imageUrl",
				FieldLatitude:    "latitude",
				FieldLongitude:   "longitude",
				FieldTypeHint:    "typeEs",
			},
			DateFormat: "2006-01-02T15:04:05Z",
			FreeMarker: "gratuito",
		},
		{
			Slug:       "valencia-dades",
			Name:       "Ajuntament de València - Agenda cultural",
			Region:     "Comunidad Valenciana",
			RegionCode: "VC",
			Tier:       models.TierGold,
			Active:     true,
			Endpoint:   "https://valencia.opendatasoft.com/api/v2/catalog/datasets/agenda-cultural/records",
			Pagination: PaginationOffset,
			PageSize:   100,
			ItemsPath:  "records",
			TotalPath:  "total_count",
			Fields: map[string]string{
				FieldExternalID:  "record.id",
				FieldTitle:       "record.fields.titulo",
				FieldDescription: "record.fields.descripcion",
				FieldStartDate:   "record.fields.fecha_inicio",
				FieldEndDate:     "record.fields.fecha_fin",
				FieldVenueName:   "record.fields.lugar",
				FieldCity:        "record.fields.municipio",
				FieldPriceInfo:   "record.fields.precio",
				FieldExternalURL: "record.fields.enlace",
				FieldLatitude:    "record.fields.geo_point_2d.lat",
				FieldLongitude:   "record.fields.geo_point_2d.lon",
			},
			DateFormat: "2006-01-02",
			FreeMarker: "gratuito",
		},
		{
			Slug:       "santander-datos",
			Name:       "Ayuntamiento de Santander - Eventos culturales",
			Region:     "Cantabria",
			RegionCode: "CB",
			Tier:       models.TierGold,
			Active:     true,
			Endpoint:   "https://datos.santander.es/api/rest/datasets/eventos_culturales.json",
			Pagination: PaginationSocrata,
			PageSize:   50,
			ItemsPath:  "resources",
			TotalPath:  "summary.items",
			Fields: map[string]string{
				FieldExternalID:  "dc:identifier",
				FieldTitle:       "dc:title",
				FieldDescription: "dc:description",
				FieldStartDate:   "dc:date_start",
				FieldEndDate:     "dc:date_end",
				FieldVenueName:   "ayto:lugar",
				FieldPriceInfo:   "ayto:precio",
				FieldExternalURL: "ayto:url",
				FieldLatitude:    "ayto:latitud",
				FieldLongitude:   "ayto:longitud",
			},
			DateFormat: "02/01/2006",
			FreeMarker: "entrada gratuita",
		},

		// ---- SILVER: feeds ----
		{
			Slug:       "reinasofia-actividades",
			Name:       "Museo Reina Sofía - Actividades",
			Region:     "Comunidad de Madrid",
			RegionCode: "MD",
			Tier:       models.TierSilver,
			Active:     true,
			FeedURL:    "https://www.museoreinasofia.es/rss/actividades",
			FeedType:   FeedRSS,
		},
		{
			Slug:        "cccb-agenda",
			Name:        "CCCB - Agenda d'activitats",
			Region:      "Cataluña",
			RegionCode:  "CT",
			Tier:        models.TierSilver,
			Active:      true,
			FeedURL:     "https://www.cccb.org/rss/es/activities",
			FeedType:    FeedRSS,
			FetchDetail: true,
			DetailSelectors: map[string]string{
				FieldVenueName: ".activity-venue .name",
				FieldPriceInfo: ".activity-info .price",
				FieldImageURL:  ".activity-hero img@src",
			},
		},
		{
			Slug:       "navarra-cultura",
			Name:       "Cultura Navarra - Agenda",
			Region:     "Navarra",
			RegionCode: "NC",
			Tier:       models.TierSilver,
			Active:     true,
			FeedURL:    "https://www.culturanavarra.es/es/rss",
			FeedType:   FeedRSS,
		},
		{
			Slug:       "larioja-agenda",
			Name:       "Gobierno de La Rioja - Agenda cultural",
			Region:     "La Rioja",
			RegionCode: "RI",
			Tier:       models.TierSilver,
			Active:     true,
			FeedURL:    "https://www.larioja.org/agenda/es/rss",
			FeedType:   FeedRSS,
		},
		{
			Slug:       "matadero-madrid",
			Name:       "Matadero Madrid - Programación",
			Region:     "Comunidad de Madrid",
			RegionCode: "MD",
			Tier:       models.TierSilver,
			Active:     true,
			FeedURL:    "https://www.mataderomadrid.org/feeds/actividades.atom",
			FeedType:   FeedAtom,
		},
		{
			Slug:       "lamadraza-granada",
			Name:       "La Madraza UGR - Agenda cultural",
			Region:     "Andalucía",
			RegionCode: "AN",
			Tier:       models.TierSilver,
			Active:     true,
			FeedURL:    "https://lamadraza.ugr.es/eventos/?ical=1",
			FeedType:   FeedICal,
		},

		// ---- BRONZE: listing pages ----
		{
			Slug:         "vigocultura",
			Name:         "Vigo Cultura - Axenda",
			Region:       "Galicia",
			RegionCode:   "GA",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://vigocultura.org/axenda",
			Render:       true,
			WaitFor:      ".event-list",
			CardSelector: ".event-card",
			Selectors: map[string]string{
				FieldTitle:       ".event-title",
				FieldStartDate:   ".event-date",
				FieldVenueName:   ".event-venue",
				FieldExternalURL: "a.event-link@href",
				FieldImageURL:    "img.event-image@src",
			},
			MaxPages: 3,
		},
		{
			Slug:         "sevilla-agenda",
			Name:         "Turismo de Sevilla - Agenda",
			Region:       "Andalucía",
			RegionCode:   "AN",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://turismo.sevilla.org/agenda",
			Render:       true,
			WaitFor:      ".agenda-grid",
			CardSelector: ".agenda-item",
			Selectors: map[string]string{
				FieldTitle:       "h3.titulo",
				FieldStartDate:   ".fecha",
				FieldVenueName:   ".lugar",
				FieldDescription: ".descripcion",
				FieldExternalURL: "a@href",
				FieldImageURL:    "img@src",
			},
			MaxPages:    5,
			FetchDetail: true,
			DetailSelectors: map[string]string{
				FieldDescription: ".evento-detalle .texto",
				FieldPriceInfo:   ".evento-detalle .precio",
			},
		},
		{
			Slug:         "salamanca-agenda",
			Name:         "Ayuntamiento de Salamanca - Agenda",
			Region:       "Castilla y León",
			RegionCode:   "CL",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://www.salamanca.es/es/agenda",
			Render:       false,
			CardSelector: "article.evento",
			Selectors: map[string]string{
				FieldTitle:       "h2 a",
				FieldStartDate:   "time@datetime",
				FieldVenueName:   ".lugar",
				FieldExternalURL: "h2 a@href",
			},
			MaxPages: 4,
		},
		{
			Slug:         "bilbao-kultura",
			Name:         "Bilbao Kultura - Agenda",
			Region:       "País Vasco",
			RegionCode:   "PV",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://www.bilbao.eus/agenda",
			Render:       true,
			WaitFor:      "#agenda-resultados",
			CardSelector: ".agenda-evento",
			Selectors: map[string]string{
				FieldTitle:       ".evento-titulo",
				FieldStartDate:   ".evento-fecha",
				FieldVenueName:   ".evento-lugar",
				FieldExternalURL: "a.evento-enlace@href",
			},
			MaxPages: 3,
		},
		{
			Slug:         "santiago-axenda",
			Name:         "Santiago de Compostela - Axenda cultural",
			Region:       "Galicia",
			RegionCode:   "GA",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://www.santiagoturismo.com/axenda",
			Render:       false,
			CardSelector: ".axenda-item",
			Selectors: map[string]string{
				FieldTitle:       "h3",
				FieldStartDate:   ".data",
				FieldVenueName:   ".lugar",
				FieldExternalURL: "a@href",
				FieldImageURL:    "img@src",
			},
			MaxPages: 3,
		},
		{
			Slug:         "toledo-cultura",
			Name:         "Toledo Cultura - Agenda",
			Region:       "Castilla-La Mancha",
			RegionCode:   "CM",
			Tier:         models.TierBronze,
			Active:       true,
			ListingURL:   "https://cultura.toledo.es/agenda",
			Render:       false,
			CardSelector: ".agenda-card",
			Selectors: map[string]string{
				FieldTitle:       ".card-title",
				FieldStartDate:   ".card-date",
				FieldVenueName:   ".card-venue",
				FieldExternalURL: "a.card-link@href",
			},
			MaxPages: 2,
		},
	}
}
