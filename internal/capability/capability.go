// Package capability defines the roster of analyzers the analysis pipelines
// can call. Every capability is an interface value in a Set; a nil value
// means the backing model or tool was not available at startup. Absence is a
// degraded mode, never an error.
package capability

import (
	"context"
	"errors"
	"image"
	"sort"
)

// Name identifies a capability in logs, metrics and the readiness report.
type Name string

const (
	Sentiment           Name = "sentiment"
	EntityExtraction    Name = "entity-extraction"
	Summarization       Name = "summarization"
	KeywordExtraction   Name = "keyword-extraction"
	Embeddings          Name = "embeddings"
	FaceDetection       Name = "face-detection"
	OCR                 Name = "ocr"
	ColorAnalysis       Name = "color-analysis"
	SceneHeuristic      Name = "scene-heuristic"
	SpeechTranscription Name = "speech-transcription"
	AudioDecoding       Name = "audio-decoding"
	AudioFeatures       Name = "audio-feature-extraction"
	FrameSampling       Name = "frame-sampling"
	VideoProbe          Name = "video-probe"
	AudioTrack          Name = "audio-track-extraction"
)

// PlaceholderConfidence is reported where the backing engine does not
// produce a confidence of its own (Haar-style face boxes, tesseract text,
// speech APIs that return bare text). It is not a measured accuracy.
const PlaceholderConfidence = 0.8

// ErrNoSpeech is returned by a SpeechTranscriber when the audio was processed
// but nothing intelligible was recognised. It is not a request failure.
var ErrNoSpeech = errors.New("no speech recognised")

// LabelScore is one class probability from a classifier.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Entity is a named entity found in text.
type Entity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Keyword is a salient phrase with a relevance in [0,1].
type Keyword struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// KeywordSet is the keyword/topic extractor output.
type KeywordSet struct {
	Keywords []Keyword `json:"keywords"`
	Topics   []string  `json:"topics"`
}

// BoundingBox is a pixel rectangle in the analysed image.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Face is one detected face.
type Face struct {
	Confidence  float64            `json:"confidence"`
	Emotions    map[string]float64 `json:"emotions"`
	BoundingBox BoundingBox        `json:"bounding_box"`
}

// Transcript is the speech-to-text result.
type Transcript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Language   string  `json:"language"`
}

// Samples is decoded mono PCM audio normalised to [-1,1].
type Samples struct {
	Data       []float64
	SampleRate int
	// Path is a normalised WAV copy of the audio when the decoder produced
	// one. It lives as long as the Release func returned with the samples.
	Path string
}

// Features are the low-level audio descriptors.
type Features struct {
	Volume float64 `json:"volume"`
	Pitch  float64 `json:"pitch"`
	Tempo  float64 `json:"tempo"`
}

// MediaInfo is the subset of container metadata the video pipeline uses.
type MediaInfo struct {
	Width      int
	Height     int
	FrameRate  float64
	Duration   float64
	BitRate    int64
	HasVideo   bool
	HasAudio   bool
	VideoCodec string
	AudioCodec string
}

type SentimentAnalyzer interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}

type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

type KeywordExtractor interface {
	Keywords(ctx context.Context, text string) (KeywordSet, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type FaceDetector interface {
	DetectFaces(ctx context.Context, img image.Image) ([]Face, error)
}

// TextRecognizer extracts printed text from an image (OCR).
type TextRecognizer interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// SpeechTranscriber transcribes the audio file at path.
type SpeechTranscriber interface {
	Transcribe(ctx context.Context, path string) (Transcript, error)
}

// AudioDecoder decodes the audio file at path into samples. The returned
// release func removes any intermediate files and must always be called.
type AudioDecoder interface {
	Decode(ctx context.Context, path string) (Samples, func(), error)
}

type AudioFeatureExtractor interface {
	Features(ctx context.Context, samples Samples) (Features, error)
}

// VideoProber reads container metadata.
type VideoProber interface {
	Probe(ctx context.Context, path string) (MediaInfo, error)
}

// FrameSampler extracts the frame shown at the given second as encoded
// image bytes.
type FrameSampler interface {
	ExtractFrame(ctx context.Context, path string, at float64) ([]byte, error)
}

// AudioTrackExtractor writes the first audio track of a video to dest as WAV.
type AudioTrackExtractor interface {
	ExtractAudioTrack(ctx context.Context, path, dest string) error
}

// Set is the process-wide capability roster. It is built once at startup
// and treated as read-only afterwards; all members must be safe for
// concurrent use.
type Set struct {
	Sentiment     SentimentAnalyzer
	Entities      EntityExtractor
	Summarizer    Summarizer
	Keywords      KeywordExtractor
	Embedder      Embedder
	Faces         FaceDetector
	OCR           TextRecognizer
	Transcriber   SpeechTranscriber
	AudioDecoder  AudioDecoder
	AudioFeatures AudioFeatureExtractor
	Prober        VideoProber
	Frames        FrameSampler
	AudioTrack    AudioTrackExtractor
}

// All returns every capability name in roster order.
func All() []Name {
	return []Name{
		Sentiment, EntityExtraction, Summarization, KeywordExtraction, Embeddings,
		FaceDetection, OCR, ColorAnalysis, SceneHeuristic,
		SpeechTranscription, AudioDecoding, AudioFeatures,
		FrameSampling, VideoProbe, AudioTrack,
	}
}

// Names returns the sorted names of every present capability. Color analysis
// and the scene heuristic are built in and always present.
func (s Set) Names() []string {
	names := []string{string(ColorAnalysis), string(SceneHeuristic)}
	add := func(present bool, n Name) {
		if present {
			names = append(names, string(n))
		}
	}
	add(s.Sentiment != nil, Sentiment)
	add(s.Entities != nil, EntityExtraction)
	add(s.Summarizer != nil, Summarization)
	add(s.Keywords != nil, KeywordExtraction)
	add(s.Embedder != nil, Embeddings)
	add(s.Faces != nil, FaceDetection)
	add(s.OCR != nil, OCR)
	add(s.Transcriber != nil, SpeechTranscription)
	add(s.AudioDecoder != nil, AudioDecoding)
	add(s.AudioFeatures != nil, AudioFeatures)
	add(s.Prober != nil, VideoProbe)
	add(s.Frames != nil, FrameSampling)
	add(s.AudioTrack != nil, AudioTrack)
	sort.Strings(names)
	return names
}

// Has reports whether the named capability is present.
func (s Set) Has(n Name) bool {
	for _, name := range s.Names() {
		if name == string(n) {
			return true
		}
	}
	return false
}
