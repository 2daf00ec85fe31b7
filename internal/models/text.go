package models

import (
	"context"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

type textRequest struct {
	Text string `json:"text"`
}

type sentimentResponse struct {
	Labels []capability.LabelScore `json:"labels"`
}

type entitiesResponse struct {
	Entities []capability.Entity `json:"entities"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Classify returns the sentiment class probabilities for text.
func (c *Client) Classify(ctx context.Context, text string) ([]capability.LabelScore, error) {
	var out sentimentResponse
	if err := c.postJSON(ctx, "/v1/sentiment", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

// Extract returns the named entities in text.
func (c *Client) Extract(ctx context.Context, text string) ([]capability.Entity, error) {
	var out entitiesResponse
	if err := c.postJSON(ctx, "/v1/entities", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Entities, nil
}

// Summarize returns an abstractive summary of text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var out summaryResponse
	if err := c.postJSON(ctx, "/v1/summarize", textRequest{Text: text}, &out); err != nil {
		return "", err
	}
	return out.Summary, nil
}

// Keywords returns salient keyphrases and topics.
func (c *Client) Keywords(ctx context.Context, text string) (capability.KeywordSet, error) {
	var out capability.KeywordSet
	if err := c.postJSON(ctx, "/v1/keywords", textRequest{Text: text}, &out); err != nil {
		return capability.KeywordSet{}, err
	}
	return out, nil
}

// Embed returns the dense embedding of text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out embeddingResponse
	if err := c.postJSON(ctx, "/v1/embeddings", textRequest{Text: text}, &out); err != nil {
		return nil, err
	}
	return out.Embedding, nil
}
