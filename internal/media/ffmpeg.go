package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// Sample layout ffmpeg normalises audio to before decoding or transcription.
const (
	NormalizedSampleRate = 16000
	NormalizedChannels   = 1
)

// FFmpeg drives the ffmpeg binary. It implements capability.FrameSampler and
// capability.AudioTrackExtractor.
type FFmpeg struct {
	binary string
	pad    *scratch.Pad
	logger *slog.Logger
}

// NewFFmpeg returns an ffmpeg wrapper that writes intermediates into pad.
func NewFFmpeg(binary string, pad *scratch.Pad, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary: binary,
		pad:    pad,
		logger: logging.WithComponent(logging.OrDiscard(logger), "ffmpeg"),
	}
}

// ExtractFrame returns the JPEG-encoded frame shown at second `at`.
func (f *FFmpeg) ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error) {
	if at < 0 {
		at = 0
	}
	out := f.pad.Reserve(".jpg")
	defer out.Release()

	_, err := run(ctx, f.logger, "ffmpeg frame", f.binary,
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(at),
		"-i", path,
		"-frames:v", "1",
		"-q:v", "2",
		out.Path(),
	)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(out.Path())
	if err != nil {
		return nil, fmt.Errorf("ffmpeg frame: read output: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("ffmpeg frame: no frame at offset")
	}
	return data, nil
}

// ExtractAudioTrack writes the first audio track of path to dest as mono
// 16 kHz 16-bit WAV.
func (f *FFmpeg) ExtractAudioTrack(ctx context.Context, path, dest string) error {
	return f.toWAV(ctx, path, dest, "0:a:0", "ffmpeg extract")
}

// Transcode converts any audio file ffmpeg can read into the normalised WAV
// layout at dest.
func (f *FFmpeg) Transcode(ctx context.Context, path, dest string) error {
	return f.toWAV(ctx, path, dest, "0:a:0", "ffmpeg transcode")
}

func (f *FFmpeg) toWAV(ctx context.Context, source, dest, stream, op string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-map", stream,
		"-vn",
		"-sn",
		"-dn",
		"-ac", strconv.Itoa(NormalizedChannels),
		"-ar", strconv.Itoa(NormalizedSampleRate),
		"-c:a", "pcm_s16le",
		dest,
	}
	_, err := run(ctx, f.logger, op, f.binary, args...)
	return err
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
