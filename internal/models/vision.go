package models

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
)

// Images are downscaled to fit this box before upload; boxes are scaled back.
const maxUploadEdge = 1024

type faceJSON struct {
	Confidence  *float64               `json:"confidence"`
	Emotions    map[string]float64     `json:"emotions"`
	BoundingBox capability.BoundingBox `json:"bounding_box"`
}

type facesResponse struct {
	Faces []faceJSON `json:"faces"`
}

// DetectFaces uploads img as JPEG and returns the faces found, in the
// coordinates of img.
func (c *Client) DetectFaces(ctx context.Context, img image.Image) ([]capability.Face, error) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return []capability.Face{}, nil
	}

	upload := img
	scale := 1.0
	if b.Dx() > maxUploadEdge || b.Dy() > maxUploadEdge {
		upload = imaging.Fit(img, maxUploadEdge, maxUploadEdge, imaging.Lanczos)
		scale = float64(b.Dx()) / float64(upload.Bounds().Dx())
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, upload, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return nil, fmt.Errorf("encode face upload: %w", err)
	}

	var out facesResponse
	if err := c.postFile(ctx, "/v1/faces", "image", "frame.jpg", &buf, &out); err != nil {
		return nil, err
	}

	faces := make([]capability.Face, 0, len(out.Faces))
	for _, f := range out.Faces {
		face := capability.Face{
			Confidence:  capability.PlaceholderConfidence,
			Emotions:    f.Emotions,
			BoundingBox: scaleBox(f.BoundingBox, scale),
		}
		if f.Confidence != nil {
			face.Confidence = *f.Confidence
		}
		if face.Emotions == nil {
			face.Emotions = map[string]float64{}
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func scaleBox(box capability.BoundingBox, scale float64) capability.BoundingBox {
	if scale == 1 {
		return box
	}
	s := func(v int) int { return int(math.Round(float64(v) * scale)) }
	return capability.BoundingBox{X: s(box.X), Y: s(box.Y), Width: s(box.Width), Height: s(box.Height)}
}
