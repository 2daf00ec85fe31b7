package analysis

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	// WebP is not in imaging's default format set.
	_ "golang.org/x/image/webp"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

// MaxImagePixels bounds the decoded size of an image. Headers are checked
// before decoding so a small file declaring huge dimensions is rejected
// without allocating its pixel buffer.
const MaxImagePixels = 100_000_000

// ImagePipeline analyzes still images. The video pipeline reuses it for
// sampled frames.
type ImagePipeline struct {
	d *deps
}

// Analyze decodes blob and runs every present image capability.
func (p *ImagePipeline) Analyze(ctx context.Context, blob Blob) Envelope {
	return envelope(p.analyze(ctx, blob.Data))
}

func (p *ImagePipeline) analyze(ctx context.Context, data []byte) (*ImageAnalysis, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if err := checkDimensions(data); err != nil {
		return nil, &DecodeError{Media: "image", Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &DecodeError{Media: "image", Err: err}
	}
	return p.analyzeImage(ctx, img), nil
}

func checkDimensions(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxImagePixels {
		return fmt.Errorf("%dx%d exceeds the %d pixel limit", cfg.Width, cfg.Height, MaxImagePixels)
	}
	return nil
}

func (p *ImagePipeline) analyzeImage(ctx context.Context, img image.Image) *ImageAnalysis {
	res := NewImageAnalysis()
	caps := p.d.caps
	pixels := toNRGBA(img)

	var (
		faces  outcome[[]capability.Face]
		text   outcome[string]
		colors []Color
		scene  Scene
	)

	var g errgroup.Group
	if caps.Faces != nil {
		g.Go(func() error {
			faces = invoke(ctx, p.d, capability.FaceDetection, func(ctx context.Context) ([]capability.Face, error) {
				return caps.Faces.DetectFaces(ctx, pixels)
			})
			return nil
		})
	}
	if caps.OCR != nil {
		g.Go(func() error {
			text = invoke(ctx, p.d, capability.OCR, func(ctx context.Context) (string, error) {
				return caps.OCR.Recognize(ctx, pixels)
			})
			return nil
		})
	}
	g.Go(func() error {
		colors = DominantColors(pixels, dominantColorCount)
		return nil
	})
	g.Go(func() error {
		scene = ClassifyScene(pixels)
		return nil
	})
	_ = g.Wait()

	if caps.Faces != nil && faces.ok() {
		for _, f := range faces.value {
			if f.Emotions == nil {
				f.Emotions = map[string]float64{}
			}
			res.Faces = append(res.Faces, f)
		}
	}
	if caps.OCR != nil && text.ok() {
		res.Text = strings.TrimSpace(text.value)
	}
	res.Colors = colors
	res.Scenes = append(res.Scenes, scene)

	res.Description = describe(res)
	res.Tags = tags(res)
	return res
}

// describe builds the one-line summary from whichever sub-results are
// non-empty.
func describe(res *ImageAnalysis) string {
	var parts []string
	if n := len(res.Faces); n > 0 {
		parts = append(parts, fmt.Sprintf("%d face(s) detected", n))
	}
	if res.Text != "" {
		parts = append(parts, "contains text")
	}
	if len(res.Scenes) > 0 {
		parts = append(parts, res.Scenes[0].Name+" scene")
	}
	if len(parts) == 0 {
		return "Image analysis completed"
	}
	return "Image with " + strings.Join(parts, ", ")
}

func tags(res *ImageAnalysis) []string {
	set := make(map[string]struct{})
	if len(res.Faces) > 0 {
		set["people"] = struct{}{}
	}
	if res.Text != "" {
		set["text"] = struct{}{}
	}
	for _, s := range res.Scenes {
		set[s.Name] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
