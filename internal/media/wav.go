package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-audio/wav"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// ErrNotWAV is returned when a file handed to the WAV reader is not a
// RIFF/WAVE PCM file.
var ErrNotWAV = errors.New("not a PCM WAV file")

// Decoder decodes audio into mono float samples. With an FFmpeg it first
// transcodes any input to 16 kHz mono WAV in the scratch pad; without one it
// only reads WAV input directly. It implements capability.AudioDecoder.
type Decoder struct {
	ffmpeg *FFmpeg
	pad    *scratch.Pad
	logger *slog.Logger
}

// NewDecoder returns a decoder. ffmpeg may be nil.
func NewDecoder(ffmpeg *FFmpeg, pad *scratch.Pad, logger *slog.Logger) *Decoder {
	return &Decoder{
		ffmpeg: ffmpeg,
		pad:    pad,
		logger: logging.WithCapability(logging.OrDiscard(logger), string(capability.AudioDecoding)),
	}
}

// Decode reads path. The release func removes the transcoded copy, if any.
func (d *Decoder) Decode(ctx context.Context, path string) (capability.Samples, func(), error) {
	noop := func() {}
	if d.ffmpeg == nil || d.pad == nil {
		samples, err := ReadWAV(path)
		if err != nil {
			return capability.Samples{}, noop, err
		}
		samples.Path = path
		return samples, noop, nil
	}

	out := d.pad.Reserve(".wav")
	if err := d.ffmpeg.Transcode(ctx, path, out.Path()); err != nil {
		out.Release()
		return capability.Samples{}, noop, err
	}
	samples, err := ReadWAV(out.Path())
	if err != nil {
		out.Release()
		return capability.Samples{}, noop, err
	}
	samples.Path = out.Path()
	d.logger.Debug("audio decoded",
		"samples", len(samples.Data),
		"sample_rate", samples.SampleRate,
	)
	return samples, out.Release, nil
}

// ReadWAV decodes a PCM WAV file, mixing all channels down to mono and
// normalising samples to [-1,1].
func ReadWAV(path string) (capability.Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return capability.Samples{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return capability.Samples{}, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return capability.Samples{}, fmt.Errorf("decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 {
		return capability.Samples{}, ErrNotWAV
	}

	channels := buf.Format.NumChannels
	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = int(dec.BitDepth)
	}
	if bitDepth <= 0 || bitDepth > 32 {
		return capability.Samples{}, fmt.Errorf("%w: unsupported bit depth %d", ErrNotWAV, bitDepth)
	}

	frames := len(buf.Data) / channels
	data := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += normalizeSample(buf.Data[i*channels+c], bitDepth)
		}
		data[i] = sum / float64(channels)
	}

	return capability.Samples{
		Data:       data,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// normalizeSample maps a PCM integer to [-1,1]. 8-bit WAV is unsigned.
func normalizeSample(v, bitDepth int) float64 {
	if bitDepth == 8 {
		return (float64(v) - 128) / 128
	}
	full := float64(int64(1) << (bitDepth - 1))
	s := float64(v) / full
	if s > 1 {
		s = 1
	} else if s < -1 {
		s = -1
	}
	return s
}
