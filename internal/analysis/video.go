package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

const (
	maxSampledFrames   = 10
	// Seeking exactly to the end of a stream decodes nothing; the last
	// sample is pulled back by one frame interval, or this when the frame
	// rate is unknown.
	defaultSeekGuard = 0.1
	defaultVideoSuffix = ".mp4"
	defaultFrameFanout = 4
)

var errNoVideoStream = errors.New("no video stream")

// VideoPipeline analyzes a clip by composing the image pipeline over sampled
// frames with the audio pipeline over the extracted audio track.
type VideoPipeline struct {
	d     *deps
	image *ImagePipeline
	audio *AudioPipeline
}

// Analyze stages blob in the scratch pad and analyzes it.
func (p *VideoPipeline) Analyze(ctx context.Context, blob Blob) Envelope {
	return envelope(p.analyze(ctx, blob))
}

func (p *VideoPipeline) analyze(ctx context.Context, blob Blob) (*VideoAnalysis, error) {
	if len(blob.Data) == 0 {
		return nil, ErrEmptyInput
	}
	if p.d.caps.Prober == nil {
		p.d.log(ctx).Warn("no video prober available, returning default video record")
		return NewVideoAnalysis(), nil
	}

	var res *VideoAnalysis
	err := p.d.pad.With(ctx, blob.Data, scratch.SuffixFor(blob.Filename, defaultVideoSuffix), func(path string) error {
		var err error
		res, err = p.analyzeFile(ctx, path)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (p *VideoPipeline) analyzeFile(ctx context.Context, path string) (*VideoAnalysis, error) {
	caps := p.d.caps

	info, err := caps.Prober.Probe(ctx, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &DecodeError{Media: "video", Err: err}
	}
	if !info.HasVideo {
		return nil, &DecodeError{Media: "video", Err: errNoVideoStream}
	}

	res := NewVideoAnalysis()
	res.Quality = Quality{
		Resolution: fmt.Sprintf("%dx%d", info.Width, info.Height),
		FrameRate:  info.FrameRate,
		Bitrate:    info.BitRate,
	}

	var (
		audio  *AudioAnalysis
		scenes []VideoSegment
	)
	var g errgroup.Group
	if info.HasAudio && caps.AudioTrack != nil {
		g.Go(func() error {
			p.d.guard(ctx, "audio", func() {
				audio = p.audioBranch(ctx, path)
			})
			return nil
		})
	}
	g.Go(func() error {
		scenes = p.frameBranch(ctx, path, info.Duration, info.FrameRate)
		return nil
	})
	_ = g.Wait()

	res.Audio = audio
	res.Scenes = scenes
	return res, nil
}

// audioBranch extracts the audio track and runs the audio pipeline on it.
// Any failure yields nil.
func (p *VideoPipeline) audioBranch(ctx context.Context, path string) *AudioAnalysis {
	track := p.d.pad.Reserve(".wav")
	defer track.Release()

	extracted := invoke(ctx, p.d, capability.AudioTrack, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, p.d.caps.AudioTrack.ExtractAudioTrack(ctx, path, track.Path())
	})
	if !extracted.ok() {
		return nil
	}

	res, err := p.audio.analyzeFile(ctx, track.Path())
	if err != nil {
		p.d.log(ctx).Warn("video audio track analysis failed", "error", err)
		return nil
	}
	return res
}

// frameBranch analyzes one frame per sample timestamp, fanning out up to the
// configured limit. Segments are written by index so the result stays in
// timestamp order whatever the completion order.
func (p *VideoPipeline) frameBranch(ctx context.Context, path string, duration, frameRate float64) []VideoSegment {
	stamps := SampleTimestamps(duration)
	segments := make([]VideoSegment, len(stamps))
	if len(stamps) == 0 {
		return segments
	}

	span := duration / float64(len(stamps))
	for i, t := range stamps {
		segments[i] = newVideoSegment(t, t+span)
	}
	frames := p.d.caps.Frames
	if frames == nil {
		return segments
	}

	fanout := p.d.fanout
	if fanout <= 0 {
		fanout = defaultFrameFanout
	}
	lastSeek := duration - seekGuard(frameRate)
	var g errgroup.Group
	g.SetLimit(fanout)
	for i, t := range stamps {
		at := math.Max(0, math.Min(t, lastSeek))
		g.Go(func() error {
			p.d.guard(ctx, "frame", func() {
				p.analyzeFrame(ctx, frames, path, at, &segments[i])
			})
			return nil
		})
	}
	_ = g.Wait()
	return segments
}

func (p *VideoPipeline) analyzeFrame(ctx context.Context, frames capability.FrameSampler, path string, at float64, seg *VideoSegment) {
	if ctx.Err() != nil {
		return
	}
	frame := invoke(ctx, p.d, capability.FrameSampling, func(ctx context.Context) ([]byte, error) {
		return frames.ExtractFrame(ctx, path, at)
	})
	if !frame.ok() {
		return
	}
	img, err := p.image.analyze(ctx, frame.value)
	if err != nil {
		p.d.log(ctx).Warn("video frame analysis failed", "at", at, "error", err)
		return
	}
	seg.Description = img.Description
	seg.Objects = img.Objects
}

// SampleTimestamps returns min(10, floor(duration)) evenly spaced timestamps
// covering both ends of the clip: t_i = i * duration / (n-1), or just 0 when
// n is 1. Durations below one second, or not finite, yield none.
func SampleTimestamps(duration float64) []float64 {
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 1 {
		return []float64{}
	}
	n := int(math.Floor(duration))
	if n > maxSampledFrames {
		n = maxSampledFrames
	}
	stamps := make([]float64, n)
	if n == 1 {
		return stamps
	}
	for i := range stamps {
		stamps[i] = float64(i) * duration / float64(n-1)
	}
	stamps[n-1] = duration
	return stamps
}

func seekGuard(frameRate float64) float64 {
	if frameRate > 0 && !math.IsInf(frameRate, 0) {
		return 1 / frameRate
	}
	return defaultSeekGuard
}
