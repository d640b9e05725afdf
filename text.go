package main

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// DrawName draws name onto canvas so that the ink bounding box of the text
// is centred on anchor in both axes. The name is drawn verbatim, on a single
// line, and may run past the canvas edges.
func DrawName(canvas *image.NRGBA, name string, anchor Point, face font.Face, col color.Color) *image.NRGBA {
	if name == "" {
		return canvas
	}

	dot := CenteredDot(face, name, anchor)
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  dot,
	}
	d.DrawString(name)
	return canvas
}

// CenteredDot returns the baseline origin that puts the middle of the text's
// ink bounds on anchor.
func CenteredDot(face font.Face, s string, anchor Point) fixed.Point26_6 {
	bounds, _ := font.BoundString(face, s)
	mid := fixed.Point26_6{
		X: (bounds.Min.X + bounds.Max.X) / 2,
		Y: (bounds.Min.Y + bounds.Max.Y) / 2,
	}
	return fixed.Point26_6{
		X: toFixed(anchor.X) - mid.X,
		Y: toFixed(anchor.Y) - mid.Y,
	}
}

func toFixed(v float64) fixed.Int26_6 {
	return fixed.Int26_6(math.Round(v * 64))
}
