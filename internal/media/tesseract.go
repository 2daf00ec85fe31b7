package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/heimdex/heimdex-analyzer/internal/capability"
	"github.com/heimdex/heimdex-analyzer/internal/logging"
	"github.com/heimdex/heimdex-analyzer/internal/scratch"
)

// Tesseract runs the tesseract OCR CLI. It implements
// capability.TextRecognizer.
type Tesseract struct {
	binary string
	pad    *scratch.Pad
	logger *slog.Logger
}

// NewTesseract returns an OCR engine that stages images in pad.
func NewTesseract(binary string, pad *scratch.Pad, logger *slog.Logger) *Tesseract {
	if strings.TrimSpace(binary) == "" {
		binary = "tesseract"
	}
	return &Tesseract{
		binary: binary,
		pad:    pad,
		logger: logging.WithCapability(logging.OrDiscard(logger), string(capability.OCR)),
	}
}

// Recognize returns the trimmed text tesseract reads from img.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("tesseract: encode image: %w", err)
	}

	var text string
	err := t.pad.With(ctx, buf.Bytes(), ".png", func(path string) error {
		out, err := run(ctx, t.logger, "tesseract", t.binary, path, "stdout")
		if err != nil {
			return err
		}
		text = strings.TrimSpace(string(out))
		return nil
	})
	if err != nil {
		return "", err
	}
	return text, nil
}
