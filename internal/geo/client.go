// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package geo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
)

const (
	defaultBaseURL = "https://nominatim.openstreetmap.org"
	// minInterval floors the dedicated limiter; the public Nominatim
	// usage policy caps clients at one request per second.
	minInterval = 1100 * time.Millisecond
)

// Place is one forward-geocoding result.
type Place struct {
	Latitude    float64
	Longitude   float64
	Type        string
	Importance  float64
	DisplayName string
	City        string
	Province    string
	Region      string
	PostalCode  string
}

// Client calls a Nominatim-compatible search endpoint, restricted to
// Spain, behind its own politeness limiter.
type Client struct {
	http    *httpx.Client
	baseURL string
	ua      string
	limiter *rate.Limiter
}

// NewClient builds the geocoding client. cfg.UserAgent identifies the
// caller as the endpoint's policy requires.
func NewClient(cfg config.GeocoderConfig, hc *httpx.Client) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	interval := cfg.MinInterval
	if interval < minInterval {
		interval = minInterval
	}
	return &Client{
		http:    hc,
		baseURL: base,
		ua:      cfg.UserAgent,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

type nominatimPlace struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
	DisplayName string  `json:"display_name"`
	Address     struct {
		City         string `json:"city"`
		Town         string `json:"town"`
		Village      string `json:"village"`
		Municipality string `json:"municipality"`
		Province     string `json:"province"`
		County       string `json:"county"`
		State        string `json:"state"`
		Postcode     string `json:"postcode"`
	} `json:"address"`
}

// Search geocodes one free-form query. An empty slice means the
// endpoint found nothing.
func (c *Client) Search(ctx context.Context, query string) ([]Place, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "jsonv2")
	q.Set("countrycodes", "es")
	q.Set("addressdetails", "1")
	q.Set("limit", "3")

	header := http.Header{}
	if c.ua != "" {
		header.Set("User-Agent", c.ua)
	}

	var raw []nominatimPlace
	if err := c.http.GetJSON(ctx, c.baseURL+"/search?"+q.Encode(), header, &raw); err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(raw))
	for _, p := range raw {
		lat, latErr := strconv.ParseFloat(p.Lat, 64)
		lon, lonErr := strconv.ParseFloat(p.Lon, 64)
		if latErr != nil || lonErr != nil {
			continue
		}
		city := p.Address.City
		for _, alt := range []string{p.Address.Town, p.Address.Village, p.Address.Municipality} {
			if city == "" {
				city = alt
			}
		}
		province := p.Address.Province
		if province == "" {
			province = p.Address.County
		}
		places = append(places, Place{
			Latitude:    lat,
			Longitude:   lon,
			Type:        p.Type,
			Importance:  p.Importance,
			DisplayName: p.DisplayName,
			City:        city,
			Province:    province,
			Region:      p.Address.State,
			PostalCode:  p.Address.Postcode,
		})
	}
	return places, nil
}
