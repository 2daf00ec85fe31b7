package analysis

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

type fakeSentiment struct {
	fn func(ctx context.Context, text string) ([]capability.LabelScore, error)
}

func (f *fakeSentiment) Classify(ctx context.Context, text string) ([]capability.LabelScore, error) {
	return f.fn(ctx, text)
}

type fakeEntities struct {
	fn func(ctx context.Context, text string) ([]capability.Entity, error)
}

func (f *fakeEntities) Extract(ctx context.Context, text string) ([]capability.Entity, error) {
	return f.fn(ctx, text)
}

type fakeSummarizer struct {
	calls atomic.Int32
	fn    func(ctx context.Context, text string) (string, error)
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, text)
}

type fakeKeywords struct {
	fn func(ctx context.Context, text string) (capability.KeywordSet, error)
}

func (f *fakeKeywords) Keywords(ctx context.Context, text string) (capability.KeywordSet, error) {
	return f.fn(ctx, text)
}

type fakeEmbedder struct {
	fn func(ctx context.Context, text string) ([]float64, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	return f.fn(ctx, text)
}

type fakeFaces struct {
	fn func(ctx context.Context, img image.Image) ([]capability.Face, error)
}

func (f *fakeFaces) DetectFaces(ctx context.Context, img image.Image) ([]capability.Face, error) {
	return f.fn(ctx, img)
}

type fakeOCR struct {
	fn func(ctx context.Context, img image.Image) (string, error)
}

func (f *fakeOCR) Recognize(ctx context.Context, img image.Image) (string, error) {
	return f.fn(ctx, img)
}

type fakeTranscriber struct {
	mu    sync.Mutex
	paths []string
	fn    func(ctx context.Context, path string) (capability.Transcript, error)
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, path string) (capability.Transcript, error) {
	f.mu.Lock()
	f.paths = append(f.paths, path)
	f.mu.Unlock()
	return f.fn(ctx, path)
}

func (f *fakeTranscriber) seenPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

type fakeDecoder struct {
	released atomic.Int32
	fn       func(ctx context.Context, path string) (capability.Samples, error)
}

func (f *fakeDecoder) Decode(ctx context.Context, path string) (capability.Samples, func(), error) {
	s, err := f.fn(ctx, path)
	return s, func() { f.released.Add(1) }, err
}

type fakeFeatures struct {
	fn func(ctx context.Context, s capability.Samples) (capability.Features, error)
}

func (f *fakeFeatures) Features(ctx context.Context, s capability.Samples) (capability.Features, error) {
	return f.fn(ctx, s)
}

type fakeProber struct {
	fn func(ctx context.Context, path string) (capability.MediaInfo, error)
}

func (f *fakeProber) Probe(ctx context.Context, path string) (capability.MediaInfo, error) {
	return f.fn(ctx, path)
}

type fakeFrames struct {
	calls atomic.Int32
	fn    func(ctx context.Context, path string, at float64) ([]byte, error)
}

func (f *fakeFrames) ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error) {
	f.calls.Add(1)
	return f.fn(ctx, path, at)
}

type fakeAudioTrack struct {
	fn func(ctx context.Context, path, dest string) error
}

func (f *fakeAudioTrack) ExtractAudioTrack(ctx context.Context, path, dest string) error {
	return f.fn(ctx, path, dest)
}

type fakeMetrics struct {
	mu       sync.Mutex
	requests []string
	failures map[string]int
}

func (m *fakeMetrics) RequestDone(modality string, success bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status := "ok"
	if !success {
		status = "error"
	}
	m.requests = append(m.requests, modality+":"+status)
}

func (m *fakeMetrics) CapabilityFailed(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = map[string]int{}
	}
	m.failures[name]++
}

func (m *fakeMetrics) failuresOf(name capability.Name) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[string(name)]
}

func newTestPad(t *testing.T) *scratch.Pad {
	t.Helper()
	pad, err := scratch.New(filepath.Join(t.TempDir(), "scratch"), logging.Discard())
	if err != nil {
		t.Fatalf("scratch.New: %v", err)
	}
	return pad
}

func newTestProcessor(t *testing.T, caps capability.Set) (*Processor, *scratch.Pad, *fakeMetrics) {
	t.Helper()
	pad := newTestPad(t)
	m := &fakeMetrics{}
	p := New(caps, pad, Options{Logger: logging.Discard(), Metrics: m})
	return p, pad, m
}

func assertScratchEmpty(t *testing.T, pad *scratch.Pad) {
	t.Helper()
	entries, err := os.ReadDir(pad.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("scratch dir not empty: %v", names)
	}
	if n := pad.Outstanding(); n != 0 {
		t.Fatalf("Outstanding = %d, want 0", n)
	}
}

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func mustSucceed(t *testing.T, env Envelope) {
	t.Helper()
	if !env.Success || env.Error != nil || env.Results == nil {
		t.Fatalf("envelope = {success:%v error:%q results:%v}, want success", env.Success, env.ErrorMessage(), env.Results)
	}
}

func mustFail(t *testing.T, env Envelope) string {
	t.Helper()
	if env.Success || env.Error == nil || env.Results != nil {
		t.Fatalf("envelope = {success:%v error:%q results:%v}, want failure", env.Success, env.ErrorMessage(), env.Results)
	}
	if *env.Error == "" {
		t.Fatal("failed envelope has empty error")
	}
	return *env.Error
}
