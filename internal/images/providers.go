// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package images

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/cartelera-project/cartelera/internal/httpx"
)

const (
	unsplashSearchURL = "https://api.unsplash.com/search/photos"
	pexelsSearchURL   = "https://api.pexels.com/v1/search"
)

// Photo is one search result, provider differences flattened away.
type Photo struct {
	URL       string
	SmallURL  string
	ThumbURL  string
	Author    string
	SourceURL string
}

type provider interface {
	name() string
	search(ctx context.Context, query string, perPage int) ([]Photo, error)
}

type unsplashProvider struct {
	http    *httpx.Client
	key     string
	baseURL string
}

func (p *unsplashProvider) name() string { return "unsplash" }

func (p *unsplashProvider) search(ctx context.Context, query string, perPage int) ([]Photo, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("orientation", "landscape")

	header := http.Header{}
	header.Set("Authorization", "Client-ID "+p.key)

	var resp struct {
		Results []struct {
			URLs struct {
				Regular string `json:"regular"`
				Small   string `json:"small"`
				Thumb   string `json:"thumb"`
			} `json:"urls"`
			User struct {
				Name  string `json:"name"`
				Links struct {
					HTML string `json:"html"`
				} `json:"links"`
			} `json:"user"`
			Links struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"results"`
	}
	if err := p.http.GetJSON(ctx, p.baseURL+"?"+q.Encode(), header, &resp); err != nil {
		return nil, err
	}

	out := make([]Photo, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.URLs.Regular == "" {
			continue
		}
		out = append(out, Photo{
			URL:       r.URLs.Regular,
			SmallURL:  r.URLs.Small,
			ThumbURL:  r.URLs.Thumb,
			Author:    r.User.Name,
			SourceURL: r.Links.HTML,
		})
	}
	return out, nil
}

type pexelsProvider struct {
	http    *httpx.Client
	key     string
	baseURL string
}

func (p *pexelsProvider) name() string { return "pexels" }

func (p *pexelsProvider) search(ctx context.Context, query string, perPage int) ([]Photo, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("orientation", "landscape")

	header := http.Header{}
	header.Set("Authorization", p.key)

	var resp struct {
		Photos []struct {
			Src struct {
				Large string `json:"large"`
				Small string `json:"small"`
				Tiny  string `json:"tiny"`
			} `json:"src"`
			Photographer string `json:"photographer"`
			URL          string `json:"url"`
		} `json:"photos"`
	}
	if err := p.http.GetJSON(ctx, p.baseURL+"?"+q.Encode(), header, &resp); err != nil {
		return nil, err
	}

	out := make([]Photo, 0, len(resp.Photos))
	for _, r := range resp.Photos {
		if r.Src.Large == "" {
			continue
		}
		out = append(out, Photo{
			URL:       r.Src.Large,
			SmallURL:  r.Src.Small,
			ThumbURL:  r.Src.Tiny,
			Author:    r.Photographer,
			SourceURL: r.URL,
		})
	}
	return out, nil
}
