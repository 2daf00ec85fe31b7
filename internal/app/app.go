// Package app assembles the capability roster from what this host actually
// has: media binaries on PATH and whatever the model sidecar reports ready.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/config"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/media"
	"github.com/heimdex/heimdex-analyzer/internal/models"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

const defaultSidecarWait = 30 * time.Second

// Options selects the collaborators to probe.
type Options struct {
	FFmpeg    string
	FFprobe   string
	Tesseract string

	ModelsURL     string
	ModelsToken   string
	ModelsTimeout time.Duration
	// SidecarWait bounds how long startup waits for the sidecar to answer.
	SidecarWait time.Duration
}

// OptionsFromConfig maps the service configuration onto probe options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		FFmpeg:        cfg.FFmpeg(),
		FFprobe:       cfg.FFprobe(),
		Tesseract:     cfg.Tesseract(),
		ModelsURL:     cfg.ModelsURL(),
		ModelsToken:   cfg.ModelsToken(),
		ModelsTimeout: cfg.ModelsTimeout(),
	}
}

// Runtime is the outcome of Build.
type Runtime struct {
	Caps  capability.Set
	Tools []media.ToolStatus
	// Models and Readiness are nil when no sidecar URL is configured.
	Models    *models.Client
	Readiness *models.ReadinessCache
}

// Build probes every collaborator and returns the roster. A failed probe
// leaves the capability absent and logs a warning; Build itself never fails.
func Build(ctx context.Context, opts Options, pad *scratch.Pad, logger *slog.Logger) *Runtime {
	logger = logging.WithComponent(logging.OrDiscard(logger), "app")
	rt := &Runtime{
		Tools: media.CheckTools(media.DefaultTools(opts.FFmpeg, opts.FFprobe, opts.Tesseract)),
	}
	bindTools(&rt.Caps, rt.Tools, pad, logger)

	if opts.ModelsURL == "" {
		logger.Info("no model sidecar configured, model capabilities disabled")
	} else {
		rt.Models = models.NewClient(opts.ModelsURL, opts.ModelsToken, opts.ModelsTimeout, logger)
		rt.Readiness = models.NewReadinessCache(rt.Models, logger)

		wait := opts.SidecarWait
		if wait <= 0 {
			wait = defaultSidecarWait
		}
		ready, err := models.WaitReady(ctx, rt.Models, wait, logger)
		if err != nil {
			logger.Warn("model sidecar unavailable, model capabilities disabled",
				"url", rt.Models.BaseURL(),
				"error", err,
			)
		} else {
			rt.Readiness.Seed(ready)
			bindModels(&rt.Caps, rt.Models, ready)
		}
	}

	logger.Info("capability roster built", "capabilities", rt.Caps.Names())
	return rt
}

// bindTools fills the media capabilities. Decoding and feature extraction
// are always present: without ffmpeg the decoder still reads WAV natively.
func bindTools(set *capability.Set, tools []media.ToolStatus, pad *scratch.Pad, logger *slog.Logger) {
	for _, t := range tools {
		if !t.Available {
			logger.Warn("media tool unavailable", "tool", t.Name, "detail", t.Detail)
		}
	}

	var ffmpeg *media.FFmpeg
	if st, ok := media.Lookup(tools, "ffmpeg"); ok && st.Available {
		ffmpeg = media.NewFFmpeg(st.Path, pad, logger)
		set.Frames = ffmpeg
		set.AudioTrack = ffmpeg
	}
	if st, ok := media.Lookup(tools, "ffprobe"); ok && st.Available {
		set.Prober = media.NewFFprobe(st.Path, logger)
	}
	if st, ok := media.Lookup(tools, "tesseract"); ok && st.Available {
		set.OCR = media.NewTesseract(st.Path, pad, logger)
	}
	set.AudioDecoder = media.NewDecoder(ffmpeg, pad, logger)
	set.AudioFeatures = media.NewFeatureExtractor()
}

// bindModels points every capability the sidecar reports ready at client.
func bindModels(set *capability.Set, client *models.Client, ready *models.Readiness) {
	if ready.Has(string(capability.Sentiment)) {
		set.Sentiment = client
	}
	if ready.Has(string(capability.EntityExtraction)) {
		set.Entities = client
	}
	if ready.Has(string(capability.Summarization)) {
		set.Summarizer = client
	}
	if ready.Has(string(capability.KeywordExtraction)) {
		set.Keywords = client
	}
	if ready.Has(string(capability.Embeddings)) {
		set.Embedder = client
	}
	if ready.Has(string(capability.FaceDetection)) {
		set.Faces = client
	}
	if ready.Has(string(capability.SpeechTranscription)) {
		set.Transcriber = client
	}
}
