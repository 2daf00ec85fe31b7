package analysis

import (
	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

// Sentiment is the text sentiment. Score is signed: positive labels give
// +confidence, negative labels -confidence, anything else 0.
type Sentiment struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// TextAnalysis is the result record for text.
type TextAnalysis struct {
	ExtractedText  string               `json:"extracted_text"`
	Language       string               `json:"language"`
	WordCount      int                  `json:"word_count"`
	CharacterCount int                  `json:"character_count"`
	Sentiment      Sentiment            `json:"sentiment"`
	Entities       []capability.Entity  `json:"entities"`
	Keywords       []capability.Keyword `json:"keywords"`
	Topics         []string             `json:"topics"`
	Summary        string               `json:"summary"`
	Embeddings     []float64            `json:"embeddings"`
}

// NewTextAnalysis returns a fully defaulted text record.
func NewTextAnalysis() *TextAnalysis {
	return &TextAnalysis{
		Language:  "en",
		Sentiment: Sentiment{Label: "neutral"},
		Entities:  []capability.Entity{},
		Keywords:  []capability.Keyword{},
		Topics:    []string{},
	}
}

// Color is one dominant color.
type Color struct {
	Hex        string  `json:"hex"`
	Percentage float64 `json:"percentage"`
}

// Scene is a coarse scene label.
type Scene struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// DetectedObject is reserved for an object detector; no capability fills it.
type DetectedObject struct {
	Label       string                 `json:"label"`
	Confidence  float64                `json:"confidence"`
	BoundingBox capability.BoundingBox `json:"bounding_box"`
}

// ImageAnalysis is the result record for images and sampled video frames.
type ImageAnalysis struct {
	Objects      []DetectedObject  `json:"objects"`
	Faces        []capability.Face `json:"faces"`
	Text         string            `json:"text"`
	Scenes       []Scene           `json:"scenes"`
	Colors       []Color           `json:"colors"`
	Landmarks    []string          `json:"landmarks"`
	SafetyLabels []string          `json:"safety_labels"`
	Description  string            `json:"description"`
	Tags         []string          `json:"tags"`
}

// NewImageAnalysis returns a fully defaulted image record.
func NewImageAnalysis() *ImageAnalysis {
	return &ImageAnalysis{
		Objects:      []DetectedObject{},
		Faces:        []capability.Face{},
		Scenes:       []Scene{},
		Colors:       []Color{},
		Landmarks:    []string{},
		SafetyLabels: []string{},
		Tags:         []string{},
	}
}

// Transcription is the speech-to-text part of an audio record.
type Transcription struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Language   string   `json:"language"`
	Speakers   []string `json:"speakers"`
}

// AudioFeatures are the signal descriptors of an audio record. Genre and
// instruments have no backing capability and stay empty.
type AudioFeatures struct {
	Volume      float64  `json:"volume"`
	Pitch       float64  `json:"pitch"`
	Tempo       float64  `json:"tempo"`
	MusicGenre  string   `json:"music_genre"`
	Instruments []string `json:"instruments"`
}

// TimeRange is a span of seconds.
type TimeRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// AudioAnalysis is the result record for audio.
type AudioAnalysis struct {
	Transcription   Transcription           `json:"transcription"`
	AudioFeatures   AudioFeatures           `json:"audio_features"`
	Emotions        []capability.LabelScore `json:"emotions"`
	NoiseLevel      float64                 `json:"noise_level"`
	SilenceSegments []TimeRange             `json:"silence_segments"`
}

// NewAudioAnalysis returns a fully defaulted audio record.
func NewAudioAnalysis() *AudioAnalysis {
	return &AudioAnalysis{
		Transcription: Transcription{
			Language: "en",
			Speakers: []string{},
		},
		AudioFeatures: AudioFeatures{
			Instruments: []string{},
		},
		Emotions:        []capability.LabelScore{},
		SilenceSegments: []TimeRange{},
	}
}

// VideoSegment is the analysis of one sampled frame and the span it covers.
type VideoSegment struct {
	Start       float64          `json:"start"`
	End         float64          `json:"end"`
	Description string           `json:"description"`
	Keyframes   []string         `json:"keyframes"`
	Objects     []DetectedObject `json:"objects"`
}

func newVideoSegment(start, end float64) VideoSegment {
	return VideoSegment{
		Start:     start,
		End:       end,
		Keyframes: []string{},
		Objects:   []DetectedObject{},
	}
}

// Motion is a placeholder: no motion estimator exists, so it always carries
// these neutral defaults.
type Motion struct {
	Intensity      float64 `json:"intensity"`
	Direction      string  `json:"direction"`
	CameraMovement string  `json:"camera_movement"`
}

// Quality is whole-clip metadata. Stability is a placeholder and stays 0.
type Quality struct {
	Resolution string  `json:"resolution"`
	FrameRate  float64 `json:"frame_rate"`
	Bitrate    int64   `json:"bitrate"`
	Stability  float64 `json:"stability"`
}

// VideoAnalysis is the result record for video. Audio is nil when the clip
// has no audio track or the audio branch failed.
type VideoAnalysis struct {
	Scenes  []VideoSegment    `json:"scenes"`
	Faces   []capability.Face `json:"faces"`
	Audio   *AudioAnalysis    `json:"audio"`
	Motion  Motion            `json:"motion"`
	Quality Quality           `json:"quality"`
}

// NewVideoAnalysis returns a fully defaulted video record.
func NewVideoAnalysis() *VideoAnalysis {
	return &VideoAnalysis{
		Scenes: []VideoSegment{},
		Faces:  []capability.Face{},
		Motion: Motion{CameraMovement: "static"},
	}
}

// Envelope is the uniform response of every pipeline. Exactly one of Results
// and Error is set.
type Envelope struct {
	Success bool    `json:"success"`
	Results any     `json:"results"`
	Error   *string `json:"error"`
}

// Succeed wraps a result record.
func Succeed(results any) Envelope {
	return Envelope{Success: true, Results: results}
}

// Fail wraps a request-level error.
func Fail(err error) Envelope {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Envelope{Error: &msg}
}

// ErrorMessage returns the error text, or "" for a successful envelope.
func (e Envelope) ErrorMessage() string {
	if e.Error == nil {
		return ""
	}
	return *e.Error
}
