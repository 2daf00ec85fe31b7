package models

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

type transcribeResponse struct {
	Text       string   `json:"text"`
	Confidence *float64 `json:"confidence"`
	Language   string   `json:"language"`
	NoSpeech   bool     `json:"no_speech"`
}

// Transcribe uploads the audio file at path for speech-to-text. A response
// flagged no_speech, or with no text, yields capability.ErrNoSpeech.
func (c *Client) Transcribe(ctx context.Context, path string) (capability.Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return capability.Transcript{}, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	var out transcribeResponse
	if err := c.postFile(ctx, "/v1/transcribe", "file", filepath.Base(path), f, &out); err != nil {
		return capability.Transcript{}, err
	}

	text := strings.TrimSpace(out.Text)
	if out.NoSpeech || text == "" {
		return capability.Transcript{}, capability.ErrNoSpeech
	}

	t := capability.Transcript{
		Text:       text,
		Confidence: capability.PlaceholderConfidence,
		Language:   out.Language,
	}
	if out.Confidence != nil {
		t.Confidence = *out.Confidence
	}
	if t.Language == "" {
		t.Language = "en"
	}
	return t, nil
}
