package analysis

import (
	"context"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

const defaultAudioSuffix = ".wav"

// AudioPipeline analyzes audio files. Decoding and transcription need a
// file on disk, so the bytes go through the scratch pad.
type AudioPipeline struct {
	d *deps
}

// Analyze stages blob in the scratch pad and analyzes it.
func (p *AudioPipeline) Analyze(ctx context.Context, blob Blob) Envelope {
	return envelope(p.analyze(ctx, blob))
}

func (p *AudioPipeline) analyze(ctx context.Context, blob Blob) (*AudioAnalysis, error) {
	if len(blob.Data) == 0 {
		return nil, ErrEmptyInput
	}
	var res *AudioAnalysis
	err := p.d.pad.With(ctx, blob.Data, scratch.SuffixFor(blob.Filename, defaultAudioSuffix), func(path string) error {
		var err error
		res, err = p.analyzeFile(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// analyzeFile analyzes the audio file at path. The video pipeline calls it
// directly on the extracted track.
func (p *AudioPipeline) analyzeFile(ctx context.Context, path string) (*AudioAnalysis, error) {
	res := NewAudioAnalysis()
	caps := p.d.caps

	var samples capability.Samples
	decoded := false
	transcribePath := path
	if caps.AudioDecoder != nil {
		s, release, err := caps.AudioDecoder.Decode(ctx, path)
		if release != nil {
			defer release()
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &DecodeError{Media: "audio", Err: err}
		}
		samples, decoded = s, true
		if s.Path != "" {
			transcribePath = s.Path
		}
	}

	var (
		transcript outcome[capability.Transcript]
		features   outcome[capability.Features]
	)

	var g errgroup.Group
	if caps.Transcriber != nil {
		g.Go(func() error {
			transcript = invoke(ctx, p.d, capability.SpeechTranscription, func(ctx context.Context) (capability.Transcript, error) {
				t, err := caps.Transcriber.Transcribe(ctx, transcribePath)
				if errors.Is(err, capability.ErrNoSpeech) {
					return capability.Transcript{}, nil
				}
				return t, err
			})
			return nil
		})
	}
	if caps.AudioFeatures != nil && decoded {
		g.Go(func() error {
			features = invoke(ctx, p.d, capability.AudioFeatures, func(ctx context.Context) (capability.Features, error) {
				return caps.AudioFeatures.Features(ctx, samples)
			})
			return nil
		})
	}
	_ = g.Wait()

	if caps.Transcriber != nil && transcript.ok() && transcript.value.Text != "" {
		t := transcript.value
		res.Transcription.Text = t.Text
		res.Transcription.Confidence = clamp01(t.Confidence)
		if t.Language != "" {
			res.Transcription.Language = t.Language
		}
	}
	if caps.AudioFeatures != nil && decoded && features.ok() {
		res.AudioFeatures.Volume = finite(features.value.Volume)
		res.AudioFeatures.Pitch = finite(features.value.Pitch)
		res.AudioFeatures.Tempo = finite(features.value.Tempo)
	}
	return res, nil
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
