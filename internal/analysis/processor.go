// Package analysis routes a content blob to the pipeline for its modality and
// assembles the result envelope.
//
// Every pipeline calls its capabilities through invoke, so one failing or
// panicking capability leaves one field at its default and never fails the
// request. Requests fail only on structural problems: empty or undecodable
// input, scratch I/O errors, an unreadable video container.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// Modality is the kind of content in a blob.
type Modality string

const (
	Text  Modality = "text"
	Image Modality = "image"
	Audio Modality = "audio"
	Video Modality = "video"
)

// Modalities lists every supported modality.
func Modalities() []Modality {
	return []Modality{Text, Image, Audio, Video}
}

// ParseModality validates a modality name.
func ParseModality(s string) (Modality, error) {
	m := Modality(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case Text, Image, Audio, Video:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedModality, s)
}

// Default limits.
const (
	DefaultMaxUploadBytes = 100 << 20
	DefaultRequestTimeout = 5 * time.Minute
)

// File extensions accepted per modality. A blob whose extension belongs to
// another modality is rejected; unknown or missing extensions pass.
var supportedExtensions = map[Modality][]string{
	Image: {".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp"},
	Audio: {".mp3", ".wav", ".ogg", ".m4a", ".flac"},
	Video: {".mp4", ".avi", ".mov", ".mkv", ".webm"},
}

// SupportedExtensions returns the accepted extensions for m.
func SupportedExtensions(m Modality) []string {
	return append([]string(nil), supportedExtensions[m]...)
}

// Blob is one piece of content to analyze. It is never persisted beyond
// the scratch files of a single request.
type Blob struct {
	Data        []byte
	Filename    string
	ContentType string
	Metadata    map[string]string
}

// Options tunes a Processor. Zero values select the defaults.
type Options struct {
	Logger         *slog.Logger
	Metrics        Metrics
	RequestTimeout time.Duration
	MaxUploadBytes int64
	FrameFanout    int
}

// Processor is the single entry point for analysis.
type Processor struct {
	d       *deps
	text    *TextPipeline
	image   *ImagePipeline
	audio   *AudioPipeline
	video   *VideoPipeline
	timeout time.Duration
	maxSize int64
}

// New builds a Processor over an immutable capability roster.
func New(caps capability.Set, pad *scratch.Pad, opts Options) *Processor {
	d := &deps{
		caps:    caps,
		pad:     pad,
		logger:  logging.WithComponent(logging.OrDiscard(opts.Logger), "analysis"),
		metrics: opts.Metrics,
		fanout:  opts.FrameFanout,
	}
	if d.metrics == nil {
		d.metrics = nopMetrics{}
	}
	if d.fanout <= 0 {
		d.fanout = defaultFrameFanout
	}

	p := &Processor{
		d:       d,
		text:    &TextPipeline{d: d},
		image:   &ImagePipeline{d: d},
		audio:   &AudioPipeline{d: d},
		timeout: opts.RequestTimeout,
		maxSize: opts.MaxUploadBytes,
	}
	p.video = &VideoPipeline{d: d, image: p.image, audio: p.audio}
	if p.timeout <= 0 {
		p.timeout = DefaultRequestTimeout
	}
	if p.maxSize <= 0 {
		p.maxSize = DefaultMaxUploadBytes
	}
	return p
}

// CapabilitiesAvailable returns the sorted names of present capabilities.
func (p *Processor) CapabilitiesAvailable() []string {
	return p.d.caps.Names()
}

// MaxUploadBytes returns the payload size limit.
func (p *Processor) MaxUploadBytes() int64 {
	return p.maxSize
}

// Process analyzes blob as modality m. It always returns an envelope; panics
// inside a pipeline are recovered and reported as an internal error.
func (p *Processor) Process(ctx context.Context, m Modality, blob Blob) (env Envelope) {
	start := time.Now()
	logger := logging.WithModality(p.d.logger, string(m))
	if id := logging.RequestIDFromContext(ctx); id != "" {
		logger = logging.WithRequestID(logger, id)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("analysis panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			env = Fail(errInternal)
		}
		p.d.metrics.RequestDone(string(m), env.Success, time.Since(start))
	}()

	if err := p.validate(m, blob); err != nil {
		logger.Info("analysis rejected", "error", err)
		return Fail(err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx = withLogger(ctx, logger)

	var (
		result any
		err    error
	)
	switch m {
	case Text:
		result, err = p.text.analyze(ctx, blob)
	case Image:
		result, err = p.image.analyze(ctx, blob.Data)
	case Audio:
		result, err = p.audio.analyze(ctx, blob)
	case Video:
		result, err = p.video.analyze(ctx, blob)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		logger.Warn("analysis failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return Fail(err)
	}

	logger.Info("analysis completed",
		"bytes", len(blob.Data),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Succeed(result)
}

func (p *Processor) validate(m Modality, blob Blob) error {
	if _, err := ParseModality(string(m)); err != nil {
		return err
	}
	if size := int64(len(blob.Data)); size > p.maxSize {
		return fmt.Errorf("%w: %s exceeds the %s limit",
			ErrPayloadTooLarge, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.maxSize)))
	}
	// Empty text is still text; binary media needs bytes to decode.
	if len(blob.Data) == 0 && m != Text {
		return ErrEmptyInput
	}
	return checkExtension(m, blob.Filename)
}

func checkExtension(m Modality, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return nil
	}
	for _, e := range supportedExtensions[m] {
		if e == ext {
			return nil
		}
	}
	for other, exts := range supportedExtensions {
		if other == m {
			continue
		}
		for _, e := range exts {
			if e == ext {
				return fmt.Errorf("%w: %s is not a supported %s format", ErrUnsupportedFormat, ext, m)
			}
		}
	}
	return nil
}

func envelope[T any](res T, err error) Envelope {
	if err != nil {
		return Fail(err)
	}
	return Succeed(res)
}
