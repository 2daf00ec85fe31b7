package analysis

import (
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"
)

// Scene heuristic thresholds on the mean channel values (0-255). These and the
// confidences below are hand-picked placeholders for a trained classifier;
// treat the label as a low-confidence hint.
const (
	outdoorMinBlue  = 150
	outdoorMinGreen = 100
	indoorMaxMean   = 100

	outdoorConfidence = 0.7
	indoorConfidence  = 0.6
	mixedConfidence   = 0.5

	dominantColorCount = 5
)

// DominantColors returns the k most frequent exact RGB values in img, most
// frequent first. Alpha is ignored. Ties are broken by ascending packed RGB so
// the result is deterministic.
func DominantColors(img image.Image, k int) []Color {
	n := toNRGBA(img)
	b := n.Bounds()
	total := b.Dx() * b.Dy()
	if total == 0 || k <= 0 {
		return []Color{}
	}

	counts := make(map[uint32]int)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		i := n.PixOffset(b.Min.X, y)
		for x := 0; x < b.Dx(); x++ {
			px := n.Pix[i : i+3 : i+3]
			counts[uint32(px[0])<<16|uint32(px[1])<<8|uint32(px[2])]++
			i += 4
		}
	}

	type entry struct {
		rgb   uint32
		count int
	}
	entries := make([]entry, 0, len(counts))
	for rgb, c := range counts {
		entries = append(entries, entry{rgb, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].rgb < entries[j].rgb
	})
	if len(entries) > k {
		entries = entries[:k]
	}

	colors := make([]Color, len(entries))
	for i, e := range entries {
		colors[i] = Color{
			Hex:        fmt.Sprintf("#%06x", e.rgb),
			Percentage: float64(e.count) / float64(total) * 100,
		}
	}
	return colors
}

// ClassifyScene labels img outdoor, indoor or mixed from its mean color.
func ClassifyScene(img image.Image) Scene {
	r, g, b := meanRGB(toNRGBA(img))
	switch {
	case b > outdoorMinBlue && g > outdoorMinGreen:
		return Scene{Name: "outdoor", Confidence: outdoorConfidence}
	case (r+g+b)/3 < indoorMaxMean:
		return Scene{Name: "indoor", Confidence: indoorConfidence}
	default:
		return Scene{Name: "mixed", Confidence: mixedConfidence}
	}
}

func meanRGB(n *image.NRGBA) (r, g, b float64) {
	bounds := n.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0, 0, 0
	}
	var sr, sg, sb uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		i := n.PixOffset(bounds.Min.X, y)
		for x := 0; x < bounds.Dx(); x++ {
			sr += uint64(n.Pix[i])
			sg += uint64(n.Pix[i+1])
			sb += uint64(n.Pix[i+2])
			i += 4
		}
	}
	t := float64(total)
	return float64(sr) / t, float64(sg) / t, float64(sb) / t
}

func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	return imaging.Clone(img)
}
