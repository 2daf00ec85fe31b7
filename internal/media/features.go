package media

import (
	"context"
	"errors"
	"math"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

const (
	pitchFrame     = 1024
	pitchMinHz     = 50
	pitchMaxHz     = 1000
	pitchMaxFrames = 120
	voicedRatio    = 0.1 // frames quieter than this share of the loudest are skipped
	voicedPeak     = 0.3 // normalised autocorrelation a pitched frame must reach

	onsetHop    = 512
	tempoMinBPM = 60
	tempoMaxBPM = 200
	tempoPeak   = 0.1
)

// ErrNoSamples is returned when there is nothing to measure.
var ErrNoSamples = errors.New("no audio samples")

// FeatureExtractor measures volume, pitch and tempo from decoded samples in
// process. It implements capability.AudioFeatureExtractor.
type FeatureExtractor struct{}

// NewFeatureExtractor returns the built-in extractor.
func NewFeatureExtractor() *FeatureExtractor { return &FeatureExtractor{} }

// Features computes all three descriptors. Pitch and tempo are 0 when the
// signal has no clear periodicity.
func (FeatureExtractor) Features(ctx context.Context, s capability.Samples) (capability.Features, error) {
	if len(s.Data) == 0 || s.SampleRate <= 0 {
		return capability.Features{}, ErrNoSamples
	}
	if err := ctx.Err(); err != nil {
		return capability.Features{}, err
	}
	f := capability.Features{Volume: Volume(s.Data)}
	f.Pitch = Pitch(s.Data, s.SampleRate)
	if err := ctx.Err(); err != nil {
		return capability.Features{}, err
	}
	f.Tempo = Tempo(s.Data, s.SampleRate)
	return f, nil
}

// Volume is the mean absolute amplitude.
func Volume(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += math.Abs(v)
	}
	return sum / float64(len(data))
}

// Pitch estimates the mean fundamental frequency in Hz over the voiced
// frames, using per-frame autocorrelation.
func Pitch(data []float64, sampleRate int) float64 {
	minLag := sampleRate / pitchMaxHz
	maxLag := sampleRate / pitchMinHz
	if minLag < 1 {
		minLag = 1
	}
	frame := pitchFrame
	for frame < 2*maxLag {
		frame *= 2
	}
	if len(data) < frame {
		return 0
	}

	total := (len(data) - frame) / frame
	step := 1
	if total > pitchMaxFrames {
		step = total / pitchMaxFrames
	}

	var starts []int
	var energies []float64
	var loudest float64
	for i := 0; i <= total; i += step {
		start := i * frame
		e := energy(data[start : start+frame])
		starts = append(starts, start)
		energies = append(energies, e)
		if e > loudest {
			loudest = e
		}
	}
	if loudest == 0 {
		return 0
	}

	var sum float64
	var voiced int
	for i, start := range starts {
		if energies[i] < voicedRatio*loudest {
			continue
		}
		lag, peak := bestLag(data[start:start+frame], minLag, maxLag)
		if lag == 0 || peak < voicedPeak {
			continue
		}
		sum += float64(sampleRate) / float64(lag)
		voiced++
	}
	if voiced == 0 {
		return 0
	}
	return sum / float64(voiced)
}

// Tempo estimates beats per minute from the autocorrelation of the onset
// envelope, searching 60 to 200 BPM.
func Tempo(data []float64, sampleRate int) float64 {
	n := len(data) / onsetHop
	if n < 2 {
		return 0
	}
	env := make([]float64, n-1)
	prev := energy(data[:onsetHop])
	var any bool
	for i := 1; i < n; i++ {
		e := energy(data[i*onsetHop : (i+1)*onsetHop])
		if d := e - prev; d > 0 {
			env[i-1] = d
			any = true
		}
		prev = e
	}
	if !any {
		return 0
	}

	framesPerSec := float64(sampleRate) / onsetHop
	minLag := int(math.Floor(framesPerSec * 60 / tempoMaxBPM))
	maxLag := int(math.Ceil(framesPerSec * 60 / tempoMinBPM))
	if minLag < 1 {
		minLag = 1
	}
	if len(env) < 2*maxLag {
		return 0
	}

	removeMean(env)
	lag, peak := bestLag(env, minLag, maxLag)
	if lag == 0 || peak < tempoPeak {
		return 0
	}
	bpm := 60 * framesPerSec / float64(lag)
	return math.Round(bpm*10) / 10
}

// bestLag returns the lag in [minLag,maxLag] with the highest normalised
// autocorrelation, and that correlation.
func bestLag(x []float64, minLag, maxLag int) (int, float64) {
	zero := 0.0
	for _, v := range x {
		zero += v * v
	}
	if zero == 0 {
		return 0, 0
	}
	if maxLag >= len(x) {
		maxLag = len(x) - 1
	}
	best, bestVal := 0, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		var acc float64
		for i := 0; i+lag < len(x); i++ {
			acc += x[i] * x[i+lag]
		}
		if v := acc / zero; v > bestVal {
			best, bestVal = lag, v
		}
	}
	return best, bestVal
}

func energy(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return sum / float64(len(x))
}

func removeMean(x []float64) {
	var mean float64
	for _, v := range x {
		mean += v
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}
}
