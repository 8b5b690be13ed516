// Package motion decides whether two consecutive frames of a camera contain
// movement inside the vertical region of interest.
//
// The pipeline is frame differencing: absolute difference, grayscale, 5x5
// Gaussian blur, binary threshold, 3x3 dilation, then blob extraction. A blob
// counts as motion when its bounding box is large enough and lies entirely
// inside the ROI band, which leaves out ceiling and floor noise.
package motion

import (
	"image"

	"github.com/disintegration/gift"
)

// Thresholds are the tunable constants of the detector.
type Thresholds struct {
	NoiseFloor       uint8   // intensity at or above which a pixel counts as changed
	MinBlobArea      int     // bounding-box area below which a blob is ignored, px²
	ROIMargin        float64 // fraction of the frame height excluded at the top and at the bottom
	DilateIterations int
}

// DefaultThresholds returns the values the detector was tuned with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		NoiseFloor:       20,
		MinBlobArea:      2500,
		ROIMargin:        0.1,
		DilateIterations: 3,
	}
}

// ROI is the vertical band [Y1, Y2] considered for motion.
type ROI struct {
	Y1, Y2 int
}

// ROIFor derives the band for a frame of the given height.
func ROIFor(height int, margin float64) ROI {
	return ROI{
		Y1: int(float64(height) * margin),
		Y2: int(float64(height) * (1 - margin)),
	}
}

// Blob is a connected region of changed pixels.
type Blob struct {
	Bounds image.Rectangle
}

// Area is the bounding-box area of the blob.
func (b Blob) Area() int {
	return b.Bounds.Dx() * b.Bounds.Dy()
}

// binomial approximation of a 5x5 Gaussian, sigma ~1.1
var gaussian5x5 = []float32{
	1, 4, 6, 4, 1,
	4, 16, 24, 16, 4,
	6, 24, 36, 24, 6,
	4, 16, 24, 16, 4,
	1, 4, 6, 4, 1,
}

// Detector is safe for concurrent use; it keeps no per-call state.
type Detector struct {
	th     Thresholds
	smooth *gift.GIFT
	dilate *gift.GIFT
}

func NewDetector(th Thresholds) *Detector {
	dilations := make([]gift.Filter, 0, th.DilateIterations)
	for i := 0; i < th.DilateIterations; i++ {
		dilations = append(dilations, gift.Maximum(3, false))
	}

	return &Detector{
		th: th,
		smooth: gift.New(
			gift.Grayscale(),
			gift.Convolution(gaussian5x5, true, false, false, 0),
		),
		dilate: gift.New(dilations...),
	}
}

// ROI returns the band for frames of the given height.
func (d *Detector) ROI(height int) ROI {
	return ROIFor(height, d.th.ROIMargin)
}

// Detect reports whether curr differs from prev by a blob that is large
// enough and lies fully inside roi. Frames of different sizes never match.
func (d *Detector) Detect(prev, curr *image.RGBA, roi ROI) bool {
	if prev == nil || curr == nil || prev.Rect.Size() != curr.Rect.Size() {
		return false
	}

	mask := d.Mask(prev, curr)
	found := false
	eachBlob(mask, func(b Blob) bool {
		if b.Area() < d.th.MinBlobArea {
			return true
		}
		if b.Bounds.Min.Y > roi.Y1 && b.Bounds.Max.Y < roi.Y2 {
			found = true
			return false
		}
		return true
	})
	return found
}

// Blobs returns every outline of the changed mask: regions in scan order,
// then the holes inside them.
func (d *Detector) Blobs(prev, curr *image.RGBA) []Blob {
	var blobs []Blob
	eachBlob(d.Mask(prev, curr), func(b Blob) bool {
		blobs = append(blobs, b)
		return true
	})
	return blobs
}

// Mask returns the dilated binary change mask (0 or 255 per pixel), with
// bounds starting at the origin.
func (d *Detector) Mask(prev, curr *image.RGBA) *image.Gray {
	diff := absDiff(prev, curr)

	gray := image.NewGray(d.smooth.Bounds(diff.Bounds()))
	d.smooth.Draw(gray, diff)

	for i, v := range gray.Pix {
		if v >= d.th.NoiseFloor {
			gray.Pix[i] = 255
		} else {
			gray.Pix[i] = 0
		}
	}

	if d.th.DilateIterations == 0 {
		return gray
	}
	mask := image.NewGray(d.dilate.Bounds(gray.Bounds()))
	d.dilate.Draw(mask, gray)
	return mask
}

func absDiff(a, b *image.RGBA) *image.RGBA {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	out := image.NewRGBA(image.Rect(0, 0, w, h))

	for y := 0; y < h; y++ {
		ra := a.Pix[y*a.Stride : y*a.Stride+w*4]
		rb := b.Pix[y*b.Stride : y*b.Stride+w*4]
		ro := out.Pix[y*out.Stride : y*out.Stride+w*4]
		for i := 0; i < len(ro); i += 4 {
			ro[i] = absU8(ra[i], rb[i])
			ro[i+1] = absU8(ra[i+1], rb[i+1])
			ro[i+2] = absU8(ra[i+2], rb[i+2])
			ro[i+3] = 0xff
		}
	}
	return out
}

func absU8(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
