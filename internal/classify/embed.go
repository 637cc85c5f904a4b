// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package classify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
)

// ErrNotConfigured is returned when no embedding endpoint is set.
var ErrNotConfigured = errors.New("classify: embedding endpoint not configured")

// maxEmbedChars caps the text sent per embedding request.
const maxEmbedChars = 8000

// EmbedClient calls an OpenAI-compatible embeddings endpoint, one
// input per request.
type EmbedClient struct {
	http   *httpx.Client
	url    string
	apiKey string
	model  string
	dims   int
}

// NewEmbedClient builds the client. cfg.URL is the full endpoint URL.
func NewEmbedClient(cfg config.EmbedConfig, hc *httpx.Client) *EmbedClient {
	return &EmbedClient{
		http:   hc,
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		dims:   cfg.Dimensions,
	}
}

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the vector for one text, clipped to the input budget.
func (c *EmbedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}
	if runes := []rune(text); len(runes) > maxEmbedChars {
		text = string(runes[:maxEmbedChars])
	}

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req := embedRequest{Model: c.model, Input: text, Dimensions: c.dims}

	var resp embedResponse
	if err := c.http.PostJSON(ctx, c.url, header, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	vec := resp.Data[0].Embedding
	if c.dims > 0 && len(vec) != c.dims {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), c.dims)
	}
	return vec, nil
}
