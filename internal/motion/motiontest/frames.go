// Package motiontest builds synthetic frames for detector tests.
package motiontest

import (
	"image"
	"image/color"
	"image/draw"
)

// Blank returns a black opaque frame.
func Blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

// WithRect returns a black frame with a white rectangle r.
func WithRect(w, h int, r image.Rectangle) *image.RGBA {
	img := Blank(w, h)
	draw.Draw(img, r, image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// Growth is how far the detector pipeline extends a sharp white rectangle on
// each side with default thresholds: one pixel of blur above the noise floor
// plus one per dilation.
const Growth = 4

// RectForBlob returns the raw rectangle whose detected blob has the bounding
// box b under default thresholds.
func RectForBlob(b image.Rectangle) image.Rectangle {
	return b.Inset(Growth)
}

// WithRing returns a black frame with a white rectangle outer whose inner
// part is left black.
func WithRing(w, h int, outer, inner image.Rectangle) *image.RGBA {
	img := WithRect(w, h, outer)
	draw.Draw(img, inner, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}
