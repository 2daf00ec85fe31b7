package analysis

import (
	"context"
	"errors"
	"math"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
)

func videoResult(t *testing.T, env Envelope) *VideoAnalysis {
	t.Helper()
	mustSucceed(t, env)
	res, ok := env.Results.(*VideoAnalysis)
	if !ok {
		t.Fatalf("results type = %T, want *VideoAnalysis", env.Results)
	}
	return res
}

func probeReturning(info capability.MediaInfo) *fakeProber {
	return &fakeProber{fn: func(ctx context.Context, path string) (capability.MediaInfo, error) {
		return info, nil
	}}
}

var clipBytes = []byte("\x00\x00\x00\x18ftypmp42")

func TestSampleTimestamps(t *testing.T) {
	tests := []struct {
		duration float64
		want     []float64
	}{
		{0, []float64{}},
		{0.5, []float64{}},
		{math.NaN(), []float64{}},
		{math.Inf(1), []float64{}},
		{-3, []float64{}},
		{1, []float64{0}},
		{1.9, []float64{0}},
		{2.5, []float64{0, 2.5}},
		{7, []float64{0, 7.0 / 6, 14.0 / 6, 3.5, 28.0 / 6, 35.0 / 6, 7}},
		{27, []float64{0, 3, 6, 9, 12, 15, 18, 21, 24, 27}},
	}
	for _, tt := range tests {
		got := SampleTimestamps(tt.duration)
		if len(got) != len(tt.want) {
			t.Errorf("SampleTimestamps(%v) = %v, want %v", tt.duration, got, tt.want)
			continue
		}
		for i := range got {
			if math.Abs(got[i]-tt.want[i]) > 1e-9 {
				t.Errorf("SampleTimestamps(%v)[%d] = %v, want %v", tt.duration, i, got[i], tt.want[i])
			}
		}
	}
}

func TestSampleTimestamps_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := rapid.Float64Range(0, 10000).Draw(t, "duration")
		got := SampleTimestamps(d)

		want := int(math.Min(maxSampledFrames, math.Floor(d)))
		if len(got) != want {
			t.Fatalf("len = %d, want %d", len(got), want)
		}
		for i, ts := range got {
			if ts < 0 || ts > d {
				t.Fatalf("timestamp %v outside [0,%v]", ts, d)
			}
			if i > 0 && ts <= got[i-1] {
				t.Fatalf("timestamps not strictly increasing: %v", got)
			}
		}
		if len(got) > 0 && got[0] != 0 {
			t.Fatalf("first timestamp = %v, want 0", got[0])
		}
		if len(got) > 1 && got[len(got)-1] != d {
			t.Fatalf("last timestamp = %v, want the clip end %v", got[len(got)-1], d)
		}
	})
}

func TestVideo_NoAudioTrack(t *testing.T) {
	frameData := encodePNG(t, solidImage(8, 8, sky))
	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		return frameData, nil
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{
			Width: 1920, Height: 1080, FrameRate: 29.97, Duration: 7.4, BitRate: 4_000_000, HasVideo: true,
		}),
		Frames: frames,
		AudioTrack: &fakeAudioTrack{fn: func(ctx context.Context, path, dest string) error {
			t.Error("audio track extracted for a clip without audio")
			return nil
		}},
	}
	p, pad, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes, Filename: "clip.mp4"}))

	if res.Audio != nil {
		t.Errorf("Audio = %+v, want nil", res.Audio)
	}
	if len(res.Scenes) != 7 {
		t.Fatalf("len(Scenes) = %d, want 7", len(res.Scenes))
	}
	for i, seg := range res.Scenes {
		wantStart := float64(i) * 7.4 / 6
		if math.Abs(seg.Start-wantStart) > 1e-9 || math.Abs(seg.End-(wantStart+7.4/7)) > 1e-9 {
			t.Errorf("segment %d = [%v,%v]", i, seg.Start, seg.End)
		}
		if seg.Description != "Image with outdoor scene" {
			t.Errorf("segment %d description = %q", i, seg.Description)
		}
		if seg.Keyframes == nil || seg.Objects == nil {
			t.Errorf("segment %d has nil lists", i)
		}
	}
	if res.Quality.Resolution != "1920x1080" || res.Quality.FrameRate != 29.97 || res.Quality.Bitrate != 4_000_000 {
		t.Errorf("Quality = %+v", res.Quality)
	}
	if res.Motion.CameraMovement != "static" || len(res.Faces) != 0 {
		t.Errorf("Motion/Faces = %+v/%v", res.Motion, res.Faces)
	}
	if frames.calls.Load() != 7 {
		t.Errorf("frames extracted = %d, want 7", frames.calls.Load())
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_ScenesStayOrdered(t *testing.T) {
	skyPNG := encodePNG(t, solidImage(4, 4, sky))
	darkPNG := encodePNG(t, solidImage(4, 4, dark))
	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		i := int(at)
		// Later frames finish first.
		time.Sleep(time.Duration(10-i) * 3 * time.Millisecond)
		if i%2 == 0 {
			return skyPNG, nil
		}
		return darkPNG, nil
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Width: 4, Height: 4, Duration: 10, HasVideo: true}),
		Frames: frames,
	}
	p, _, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))

	if len(res.Scenes) != 10 {
		t.Fatalf("len(Scenes) = %d, want 10", len(res.Scenes))
	}
	for i, seg := range res.Scenes {
		want := "Image with outdoor scene"
		if i%2 == 1 {
			want = "Image with indoor scene"
		}
		wantStart := float64(i) * 10 / 9
		if math.Abs(seg.Start-wantStart) > 1e-9 || seg.Description != want {
			t.Errorf("segment %d = {start:%v description:%q}, want {start:%v description:%q}", i, seg.Start, seg.Description, wantStart, want)
		}
	}
}

func TestVideo_LastSampleSeeksBeforeEnd(t *testing.T) {
	tests := []struct {
		name      string
		frameRate float64
		wantLast  float64
	}{
		{"known frame rate", 25, 7 - 1.0/25},
		{"unknown frame rate", 0, 7 - defaultSeekGuard},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				mu  sync.Mutex
				ats []float64
			)
			frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
				mu.Lock()
				ats = append(ats, at)
				mu.Unlock()
				return nil, errors.New("no frame")
			}}
			caps := capability.Set{
				Prober: probeReturning(capability.MediaInfo{Duration: 7, FrameRate: tt.frameRate, HasVideo: true}),
				Frames: frames,
			}
			p, _, _ := newTestProcessor(t, caps)

			res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))

			if len(ats) != 7 {
				t.Fatalf("seeks = %v, want 7", ats)
			}
			sort.Float64s(ats)
			if math.Abs(ats[6]-tt.wantLast) > 1e-9 {
				t.Errorf("last seek = %v, want %v", ats[6], tt.wantLast)
			}
			if math.Abs(ats[5]-35.0/6) > 1e-9 {
				t.Errorf("second to last seek = %v, want unclamped %v", ats[5], 35.0/6)
			}
			last := res.Scenes[6]
			if last.Start != 7 || math.Abs(last.End-8) > 1e-9 {
				t.Errorf("last segment = [%v,%v], want [7,8]", last.Start, last.End)
			}
		})
	}
}

func TestVideo_FanoutLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return nil, errors.New("no frame")
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 30, HasVideo: true}),
		Frames: frames,
	}
	pad := newTestPad(t)
	p := New(caps, pad, Options{Logger: logging.Discard(), FrameFanout: 2})

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))

	if len(res.Scenes) != 10 {
		t.Errorf("len(Scenes) = %d, want 10", len(res.Scenes))
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak concurrent frame extractions = %d, want <= 2", got)
	}
}

func TestVideo_FrameFailureLeavesSegmentDefault(t *testing.T) {
	frameData := encodePNG(t, solidImage(4, 4, dark))
	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		switch int(at) {
		case 0:
			return nil, errors.New("seek past end")
		case 1:
			return []byte("corrupt jpeg"), nil
		case 2:
			panic("decoder crashed")
		}
		return frameData, nil
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 4, HasVideo: true}),
		Frames: frames,
	}
	p, pad, m := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))

	if len(res.Scenes) != 4 {
		t.Fatalf("len(Scenes) = %d, want 4", len(res.Scenes))
	}
	for i := 0; i < 3; i++ {
		if res.Scenes[i].Description != "" {
			t.Errorf("segment %d description = %q, want empty", i, res.Scenes[i].Description)
		}
	}
	if res.Scenes[3].Description != "Image with indoor scene" {
		t.Errorf("segment 3 description = %q", res.Scenes[3].Description)
	}
	if m.failuresOf(capability.FrameSampling) != 2 {
		t.Errorf("frame failures = %d, want 2", m.failuresOf(capability.FrameSampling))
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_WithoutFrameSampler(t *testing.T) {
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 3.9, HasVideo: true}),
	}
	p, _, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))
	if len(res.Scenes) != 3 {
		t.Fatalf("len(Scenes) = %d, want 3", len(res.Scenes))
	}
	for _, seg := range res.Scenes {
		if seg.Description != "" {
			t.Errorf("description = %q, want empty", seg.Description)
		}
	}
}

func TestVideo_ShortClipHasNoScenes(t *testing.T) {
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 0.5, HasVideo: true}),
		Frames: &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
			t.Error("frame extracted from a sub-second clip")
			return nil, nil
		}},
	}
	p, _, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))
	if res.Scenes == nil || len(res.Scenes) != 0 {
		t.Errorf("Scenes = %v, want empty list", res.Scenes)
	}
}

func TestVideo_AudioBranch(t *testing.T) {
	var trackPath string
	tr := &fakeTranscriber{fn: func(ctx context.Context, path string) (capability.Transcript, error) {
		return capability.Transcript{Text: "welcome back", Confidence: 0.7, Language: "en"}, nil
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 2, HasVideo: true, HasAudio: true}),
		AudioTrack: &fakeAudioTrack{fn: func(ctx context.Context, path, dest string) error {
			trackPath = dest
			return os.WriteFile(dest, riffBytes, 0600)
		}},
		Transcriber: tr,
	}
	p, pad, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes, Filename: "talk.mov"}))

	if res.Audio == nil {
		t.Fatal("Audio = nil, want a record")
	}
	if res.Audio.Transcription.Text != "welcome back" {
		t.Errorf("Transcription = %+v", res.Audio.Transcription)
	}
	if paths := tr.seenPaths(); len(paths) != 1 || paths[0] != trackPath {
		t.Errorf("transcribed %v, want the extracted track %q", paths, trackPath)
	}
	if !strings.HasSuffix(trackPath, ".wav") {
		t.Errorf("track path = %q", trackPath)
	}
	if len(res.Scenes) != 2 {
		t.Errorf("len(Scenes) = %d, want 2", len(res.Scenes))
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_AudioBranchFailure(t *testing.T) {
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 3, HasVideo: true, HasAudio: true}),
		AudioTrack: &fakeAudioTrack{fn: func(ctx context.Context, path, dest string) error {
			return errors.New("ffmpeg exited 1: Stream map '0:a:0' matches no streams")
		}},
		AudioDecoder: &fakeDecoder{fn: func(ctx context.Context, path string) (capability.Samples, error) {
			t.Error("decoder called after the track extraction failed")
			return capability.Samples{}, nil
		}},
	}
	p, pad, m := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))

	if res.Audio != nil {
		t.Errorf("Audio = %+v, want nil", res.Audio)
	}
	if len(res.Scenes) != 3 {
		t.Errorf("len(Scenes) = %d, want 3", len(res.Scenes))
	}
	if m.failuresOf(capability.AudioTrack) != 1 {
		t.Errorf("failures = %v", m.failures)
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_UndecodableTrackGivesNilAudio(t *testing.T) {
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 1, HasVideo: true, HasAudio: true}),
		AudioTrack: &fakeAudioTrack{fn: func(ctx context.Context, path, dest string) error {
			return os.WriteFile(dest, []byte("junk"), 0600)
		}},
		AudioDecoder: &fakeDecoder{fn: func(ctx context.Context, path string) (capability.Samples, error) {
			return capability.Samples{}, errors.New("bad header")
		}},
	}
	p, pad, _ := newTestProcessor(t, caps)

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))
	if res.Audio != nil {
		t.Errorf("Audio = %+v, want nil", res.Audio)
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_ProbeFailures(t *testing.T) {
	tests := []struct {
		name  string
		probe func(ctx context.Context, path string) (capability.MediaInfo, error)
		want  string
	}{
		{
			name: "unreadable container",
			probe: func(ctx context.Context, path string) (capability.MediaInfo, error) {
				return capability.MediaInfo{}, errors.New("moov atom not found")
			},
			want: "invalid video data: moov atom not found",
		},
		{
			name: "audio only",
			probe: func(ctx context.Context, path string) (capability.MediaInfo, error) {
				return capability.MediaInfo{Duration: 5, HasAudio: true}, nil
			},
			want: "invalid video data: no video stream",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, pad, _ := newTestProcessor(t, capability.Set{Prober: &fakeProber{fn: tt.probe}})

			msg := mustFail(t, p.Process(context.Background(), Video, Blob{Data: clipBytes}))
			if msg != tt.want {
				t.Errorf("error = %q, want %q", msg, tt.want)
			}
			assertScratchEmpty(t, pad)
		})
	}
}

func TestVideo_NoProberGivesDefaultRecord(t *testing.T) {
	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		t.Error("frame extracted without a prober")
		return nil, nil
	}}
	p, pad, m := newTestProcessor(t, capability.Set{Frames: frames})

	res := videoResult(t, p.Process(context.Background(), Video, Blob{Data: clipBytes, Filename: "clip.mp4"}))

	if res.Scenes == nil || len(res.Scenes) != 0 || res.Faces == nil || len(res.Faces) != 0 {
		t.Errorf("Scenes/Faces = %v/%v, want empty lists", res.Scenes, res.Faces)
	}
	if res.Audio != nil {
		t.Errorf("Audio = %+v, want nil", res.Audio)
	}
	if res.Motion.CameraMovement != "static" || res.Quality.Resolution != "" {
		t.Errorf("Motion/Quality = %+v/%+v", res.Motion, res.Quality)
	}
	if !reflect.DeepEqual(m.requests, []string{"video:ok"}) {
		t.Errorf("requests = %v", m.requests)
	}
	assertScratchEmpty(t, pad)
}

func TestVideo_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := &fakeFrames{fn: func(ctx context.Context, path string, at float64) ([]byte, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	caps := capability.Set{
		Prober: probeReturning(capability.MediaInfo{Duration: 10, HasVideo: true}),
		Frames: frames,
	}
	p, pad, _ := newTestProcessor(t, caps)

	msg := mustFail(t, p.Process(ctx, Video, Blob{Data: clipBytes}))
	if msg != context.Canceled.Error() {
		t.Errorf("error = %q, want %q", msg, context.Canceled.Error())
	}
	assertScratchEmpty(t, pad)
}
