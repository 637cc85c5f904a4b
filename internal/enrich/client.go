// Cartelera - Spanish Cultural Events Ingestion Pipeline
// Copyright 2026 Cartelera Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cartelera-project/cartelera

package enrich

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cartelera-project/cartelera/internal/config"
	"github.com/cartelera-project/cartelera/internal/httpx"
)

const completionsPath = "/v1/chat/completions"

// ChatClient calls an OpenAI-compatible chat-completions endpoint.
type ChatClient struct {
	http        *httpx.Client
	baseURL     string
	apiKey      string
	maxTokens   int
	temperature float64
}

// NewChatClient builds the model client. hc carries the per-call
// deadline; the endpoint sees no domain rate limiting beyond its own
// quota errors, which the retry layer already honors.
func NewChatClient(cfg config.EnrichConfig, hc *httpx.Client) *ChatClient {
	return &ChatClient{
		http:        hc,
		baseURL:     normalizeBaseURL(cfg.BaseURL),
		apiKey:      cfg.APIKey,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one chat request and returns the assistant text plus
// whether the model stopped at its token limit.
func (c *ChatClient) Complete(ctx context.Context, model, system, user string) (string, bool, error) {
	if c.baseURL == "" {
		return "", false, errors.New("enrich: no base URL configured")
	}

	messages := make([]chatMessage, 0, 2)
	if system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: user})

	req := chatRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}

	var resp chatResponse
	if err := c.http.PostJSON(ctx, c.baseURL+completionsPath, header, req, &resp); err != nil {
		return "", false, err
	}
	if resp.Error != nil && resp.Error.Message != "" {
		return "", false, fmt.Errorf("model error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", false, errors.New("empty response from model")
	}
	choice := resp.Choices[0]
	return choice.Message.Content, choice.FinishReason == "length", nil
}

// normalizeBaseURL strips trailing slashes and a trailing /v1 so the
// completions path appends uniformly whichever form the operator set.
func normalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	return strings.TrimSuffix(base, "/v1")
}
