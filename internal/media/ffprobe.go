package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
)

// probeOutput mirrors the fields of `ffprobe -of json` the analyzer reads.
type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
}

type probeFormat struct {
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// FFprobe reads container metadata. It implements capability.VideoProber.
type FFprobe struct {
	binary string
	logger *slog.Logger
}

// NewFFprobe returns a prober that runs binary.
func NewFFprobe(binary string, logger *slog.Logger) *FFprobe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &FFprobe{
		binary: binary,
		logger: logging.WithCapability(logging.OrDiscard(logger), string(capability.VideoProbe)),
	}
}

// Probe runs ffprobe against path.
func (p *FFprobe) Probe(ctx context.Context, path string) (capability.MediaInfo, error) {
	if strings.TrimSpace(path) == "" {
		return capability.MediaInfo{}, errors.New("ffprobe: empty path")
	}
	out, err := run(ctx, p.logger, "ffprobe", p.binary,
		"-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return capability.MediaInfo{}, err
	}
	return parseProbe(out)
}

func parseProbe(data []byte) (capability.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return capability.MediaInfo{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	info := capability.MediaInfo{
		Duration: finiteOrZero(parseFloat(out.Format.Duration)),
		BitRate:  int64(finiteOrZero(parseFloat(out.Format.BitRate))),
	}
	for _, s := range out.Streams {
		switch strings.ToLower(s.CodecType) {
		case "video":
			if info.HasVideo {
				continue
			}
			info.HasVideo = true
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FrameRate = parseFrameRate(s.AvgFrameRate)
			if info.FrameRate == 0 {
				info.FrameRate = parseFrameRate(s.RFrameRate)
			}
			if info.Duration == 0 {
				info.Duration = finiteOrZero(parseFloat(s.Duration))
			}
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = s.CodecName
		}
	}
	if info.BitRate < 0 {
		info.BitRate = 0
	}
	return info, nil
}

// parseFrameRate parses ffprobe rationals such as "30000/1001" or "25/1".
func parseFrameRate(value string) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	num, den, ok := strings.Cut(value, "/")
	if !ok {
		return finiteOrZero(parseFloat(value))
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 || math.IsNaN(n) || math.IsNaN(d) {
		return 0
	}
	return finiteOrZero(n / d)
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
