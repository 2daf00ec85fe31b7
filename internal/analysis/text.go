package analysis

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

const (
	summaryMinRunes = 500
	maxKeywords     = 20
)

// TextPipeline analyzes UTF-8 text.
type TextPipeline struct {
	d *deps
}

// Analyze runs every present text capability over blob.
func (p *TextPipeline) Analyze(ctx context.Context, blob Blob) Envelope {
	return envelope(p.analyze(ctx, blob))
}

func (p *TextPipeline) analyze(ctx context.Context, blob Blob) (*TextAnalysis, error) {
	if !utf8.Valid(blob.Data) {
		return nil, &DecodeError{Media: "text", Err: errInvalidUTF8}
	}
	text := string(blob.Data)

	res := NewTextAnalysis()
	res.ExtractedText = text
	res.WordCount = len(strings.Fields(text))
	res.CharacterCount = utf8.RuneCountInString(text)
	if res.WordCount == 0 {
		// Nothing for the models to read.
		return res, nil
	}

	caps := p.d.caps
	var (
		sentiment outcome[[]capability.LabelScore]
		entities  outcome[[]capability.Entity]
		summary   outcome[string]
		keywords  outcome[capability.KeywordSet]
		embedding outcome[[]float64]
	)

	var g errgroup.Group
	if caps.Sentiment != nil {
		g.Go(func() error {
			sentiment = invoke(ctx, p.d, capability.Sentiment, func(ctx context.Context) ([]capability.LabelScore, error) {
				return caps.Sentiment.Classify(ctx, text)
			})
			return nil
		})
	}
	if caps.Entities != nil {
		g.Go(func() error {
			entities = invoke(ctx, p.d, capability.EntityExtraction, func(ctx context.Context) ([]capability.Entity, error) {
				return caps.Entities.Extract(ctx, text)
			})
			return nil
		})
	}
	if caps.Summarizer != nil && res.CharacterCount > summaryMinRunes {
		g.Go(func() error {
			summary = invoke(ctx, p.d, capability.Summarization, func(ctx context.Context) (string, error) {
				return caps.Summarizer.Summarize(ctx, text)
			})
			return nil
		})
	}
	if caps.Keywords != nil {
		g.Go(func() error {
			keywords = invoke(ctx, p.d, capability.KeywordExtraction, func(ctx context.Context) (capability.KeywordSet, error) {
				return caps.Keywords.Keywords(ctx, text)
			})
			return nil
		})
	}
	if caps.Embedder != nil {
		g.Go(func() error {
			embedding = invoke(ctx, p.d, capability.Embeddings, func(ctx context.Context) ([]float64, error) {
				return caps.Embedder.Embed(ctx, text)
			})
			return nil
		})
	}
	_ = g.Wait()

	if caps.Sentiment != nil && sentiment.ok() {
		if s, ok := pickSentiment(sentiment.value); ok {
			res.Sentiment = s
		}
	}
	if caps.Entities != nil && entities.ok() {
		for _, e := range entities.value {
			e.Type = strings.ToLower(e.Type)
			res.Entities = append(res.Entities, e)
		}
	}
	if summary.ok() {
		res.Summary = strings.TrimSpace(summary.value)
	}
	if caps.Keywords != nil && keywords.ok() {
		kws := keywords.value.Keywords
		if len(kws) > maxKeywords {
			kws = kws[:maxKeywords]
		}
		res.Keywords = append(res.Keywords, kws...)
		res.Topics = append(res.Topics, keywords.value.Topics...)
	}
	if caps.Embedder != nil && embedding.ok() && len(embedding.value) > 0 {
		res.Embeddings = embedding.value
	}
	return res, nil
}

// pickSentiment chooses the highest-scoring label. Only "positive" and
// "negative" carry a signed score; any other label scores 0.
func pickSentiment(labels []capability.LabelScore) (Sentiment, bool) {
	if len(labels) == 0 {
		return Sentiment{}, false
	}
	best := labels[0]
	for _, l := range labels[1:] {
		if l.Score > best.Score {
			best = l
		}
	}

	p := clamp01(best.Score)
	s := Sentiment{
		Label:      strings.ToLower(strings.TrimSpace(best.Label)),
		Confidence: p,
	}
	if s.Label == "" {
		return Sentiment{}, false
	}
	switch s.Label {
	case "positive":
		s.Score = p
	case "negative":
		s.Score = -p
	}
	return s, true
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
