package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

func textResult(t *testing.T, env Envelope) *TextAnalysis {
	t.Helper()
	mustSucceed(t, env)
	res, ok := env.Results.(*TextAnalysis)
	if !ok {
		t.Fatalf("results type = %T, want *TextAnalysis", env.Results)
	}
	return res
}

func TestText_NoCapabilities(t *testing.T) {
	p, _, _ := newTestProcessor(t, capability.Set{})

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("héllo  wörld\n")}))

	if res.WordCount != 2 {
		t.Errorf("WordCount = %d, want 2", res.WordCount)
	}
	if res.CharacterCount != 13 {
		t.Errorf("CharacterCount = %d, want 13", res.CharacterCount)
	}
	if res.ExtractedText != "héllo  wörld\n" {
		t.Errorf("ExtractedText = %q", res.ExtractedText)
	}
	if res.Sentiment.Label != "neutral" || res.Sentiment.Score != 0 {
		t.Errorf("Sentiment = %+v, want neutral default", res.Sentiment)
	}
	if res.Entities == nil || res.Keywords == nil || res.Topics == nil {
		t.Error("list fields must be empty, not nil")
	}
	if res.Embeddings != nil {
		t.Errorf("Embeddings = %v, want nil", res.Embeddings)
	}
	if res.Language != "en" {
		t.Errorf("Language = %q", res.Language)
	}
}

func TestText_PositiveSentiment(t *testing.T) {
	caps := capability.Set{
		Sentiment: &fakeSentiment{fn: func(ctx context.Context, text string) ([]capability.LabelScore, error) {
			if text != "I love this!" {
				t.Errorf("classified %q", text)
			}
			return []capability.LabelScore{
				{Label: "NEGATIVE", Score: 0.02},
				{Label: "POSITIVE", Score: 0.98},
			}, nil
		}},
	}
	p, _, _ := newTestProcessor(t, caps)

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("I love this!")}))

	if res.Sentiment.Label != "positive" {
		t.Errorf("Label = %q, want positive", res.Sentiment.Label)
	}
	if res.Sentiment.Score <= 0 {
		t.Errorf("Score = %v, want > 0", res.Sentiment.Score)
	}
	if res.Sentiment.Confidence != 0.98 {
		t.Errorf("Confidence = %v, want 0.98", res.Sentiment.Confidence)
	}
	if res.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", res.WordCount)
	}
}

func TestPickSentiment(t *testing.T) {
	tests := []struct {
		name   string
		labels []capability.LabelScore
		want   Sentiment
		ok     bool
	}{
		{"empty", nil, Sentiment{}, false},
		{"negative", []capability.LabelScore{{Label: "positive", Score: 0.1}, {Label: "negative", Score: 0.9}}, Sentiment{Score: -0.9, Label: "negative", Confidence: 0.9}, true},
		{"neutral scores zero", []capability.LabelScore{{Label: "Neutral", Score: 0.7}, {Label: "positive", Score: 0.3}}, Sentiment{Score: 0, Label: "neutral", Confidence: 0.7}, true},
		{"clamped", []capability.LabelScore{{Label: "positive", Score: 1.5}}, Sentiment{Score: 1, Label: "positive", Confidence: 1}, true},
		{"blank label", []capability.LabelScore{{Label: " ", Score: 0.9}}, Sentiment{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pickSentiment(tt.labels)
			if ok != tt.ok || got != tt.want {
				t.Errorf("pickSentiment = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestText_CapabilityIsolation(t *testing.T) {
	caps := capability.Set{
		Sentiment: &fakeSentiment{fn: func(ctx context.Context, text string) ([]capability.LabelScore, error) {
			return nil, errors.New("model offline")
		}},
		Entities: &fakeEntities{fn: func(ctx context.Context, text string) ([]capability.Entity, error) {
			panic("entity model crashed")
		}},
		Keywords: &fakeKeywords{fn: func(ctx context.Context, text string) (capability.KeywordSet, error) {
			return capability.KeywordSet{
				Keywords: []capability.Keyword{{Text: "heimdex", Relevance: 0.9}},
				Topics:   []string{"software"},
			}, nil
		}},
		Embedder: &fakeEmbedder{fn: func(ctx context.Context, text string) ([]float64, error) {
			return []float64{0.1, 0.2, 0.3}, nil
		}},
	}
	p, _, m := newTestProcessor(t, caps)

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("Heimdex indexes media libraries.")}))

	if res.Sentiment.Label != "neutral" {
		t.Errorf("Sentiment = %+v, want default", res.Sentiment)
	}
	if len(res.Entities) != 0 {
		t.Errorf("Entities = %v, want empty", res.Entities)
	}
	if len(res.Keywords) != 1 || res.Keywords[0].Text != "heimdex" {
		t.Errorf("Keywords = %v", res.Keywords)
	}
	if len(res.Topics) != 1 || res.Topics[0] != "software" {
		t.Errorf("Topics = %v", res.Topics)
	}
	if len(res.Embeddings) != 3 {
		t.Errorf("Embeddings = %v", res.Embeddings)
	}
	if m.failuresOf(capability.Sentiment) != 1 || m.failuresOf(capability.EntityExtraction) != 1 {
		t.Errorf("failures = %v", m.failures)
	}
}

func TestText_EntitiesLowercased(t *testing.T) {
	caps := capability.Set{
		Entities: &fakeEntities{fn: func(ctx context.Context, text string) ([]capability.Entity, error) {
			return []capability.Entity{{Text: "Seoul", Type: "LOC", Confidence: 0.93}}, nil
		}},
	}
	p, _, _ := newTestProcessor(t, caps)

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("Shot in Seoul.")}))
	if len(res.Entities) != 1 || res.Entities[0].Type != "loc" || res.Entities[0].Text != "Seoul" {
		t.Errorf("Entities = %+v", res.Entities)
	}
}

func TestText_SummaryOnlyForLongText(t *testing.T) {
	sum := &fakeSummarizer{fn: func(ctx context.Context, text string) (string, error) {
		return "  a short summary ", nil
	}}
	p, _, _ := newTestProcessor(t, capability.Set{Summarizer: sum})

	short := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte(strings.Repeat("a", 500))}))
	if short.Summary != "" || sum.calls.Load() != 0 {
		t.Errorf("500 runes: summary %q, calls %d; want none", short.Summary, sum.calls.Load())
	}

	long := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte(strings.Repeat("a", 501))}))
	if long.Summary != "a short summary" || sum.calls.Load() != 1 {
		t.Errorf("501 runes: summary %q, calls %d", long.Summary, sum.calls.Load())
	}
}

func TestText_KeywordsCapped(t *testing.T) {
	kws := make([]capability.Keyword, 30)
	for i := range kws {
		kws[i] = capability.Keyword{Text: strings.Repeat("k", i+1), Relevance: 1 - float64(i)/100}
	}
	caps := capability.Set{
		Keywords: &fakeKeywords{fn: func(ctx context.Context, text string) (capability.KeywordSet, error) {
			return capability.KeywordSet{Keywords: kws}, nil
		}},
	}
	p, _, _ := newTestProcessor(t, caps)

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("many keywords")}))
	if len(res.Keywords) != maxKeywords {
		t.Fatalf("len(Keywords) = %d, want %d", len(res.Keywords), maxKeywords)
	}
	if res.Keywords[0].Text != "k" {
		t.Errorf("first keyword = %q, want order preserved", res.Keywords[0].Text)
	}
}

func TestText_EmptyEmbeddingStaysNull(t *testing.T) {
	caps := capability.Set{
		Embedder: &fakeEmbedder{fn: func(ctx context.Context, text string) ([]float64, error) {
			return []float64{}, nil
		}},
	}
	p, _, _ := newTestProcessor(t, caps)

	res := textResult(t, p.Process(context.Background(), Text, Blob{Data: []byte("x")}))
	if res.Embeddings != nil {
		t.Errorf("Embeddings = %v, want nil", res.Embeddings)
	}
}

func TestText_BlankInputIsADefaultRecord(t *testing.T) {
	sentiment := &fakeSentiment{fn: func(ctx context.Context, text string) ([]capability.LabelScore, error) {
		t.Errorf("sentiment called for blank text %q", text)
		return nil, nil
	}}
	p, _, m := newTestProcessor(t, capability.Set{Sentiment: sentiment})

	tests := []struct {
		name  string
		data  []byte
		runes int
	}{
		{"empty", nil, 0},
		{"spaces", []byte("   "), 3},
		{"mixed whitespace", []byte(" \n\t "), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := textResult(t, p.Process(context.Background(), Text, Blob{Data: tt.data}))
			if res.WordCount != 0 || res.CharacterCount != tt.runes {
				t.Errorf("counts = %d words, %d runes", res.WordCount, res.CharacterCount)
			}
			if res.ExtractedText != string(tt.data) {
				t.Errorf("ExtractedText = %q", res.ExtractedText)
			}
			if res.Sentiment.Label != "neutral" || res.Entities == nil || res.Embeddings != nil {
				t.Errorf("record not defaulted: %+v", res)
			}
		})
	}
	if len(m.failures) != 0 {
		t.Errorf("failures = %v", m.failures)
	}
}

func TestText_RejectsInvalidUTF8(t *testing.T) {
	p, _, _ := newTestProcessor(t, capability.Set{})

	msg := mustFail(t, p.Process(context.Background(), Text, Blob{Data: []byte{0xff, 0xfe, 'a'}}))
	if !strings.Contains(msg, "invalid text data") {
		t.Errorf("error = %q", msg)
	}
}

func TestTextPipeline_Direct(t *testing.T) {
	p, _, _ := newTestProcessor(t, capability.Set{})

	env := p.text.Analyze(context.Background(), Blob{Data: []byte("one two")})
	res := textResult(t, env)
	if res.WordCount != 2 {
		t.Errorf("WordCount = %d", res.WordCount)
	}
	mustSucceed(t, p.text.Analyze(context.Background(), Blob{}))
	mustFail(t, p.text.Analyze(context.Background(), Blob{Data: []byte{0xc3}}))
}
