package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

var ErrAspectRatioMismatch = errors.New("photo aspect ratio does not match target")

// Compositor places a photo beneath a template. Target is the photo
// rectangle in template pixel space.
type Compositor struct {
	Target         image.Rectangle
	Policy         RatioPolicy
	Tolerance      float64
	MatteThreshold uint8
}

func NewCompositor(cfg *Config) Compositor {
	return Compositor{
		Target:         cfg.Photo.Image(),
		Policy:         cfg.RatioPolicy,
		Tolerance:      cfg.RatioTolerance,
		MatteThreshold: cfg.MatteThreshold,
	}
}

// FitPhoto resizes photo to exactly size with a Lanczos filter. A photo
// whose ratio differs from size is handled according to policy. A photo
// that LockRatio leaves unchanged is as close to the ratio as whole pixels
// allow and always counts as matching.
func FitPhoto(photo image.Image, size image.Point, policy RatioPolicy, tolerance float64) (*image.NRGBA, error) {
	b := photo.Bounds()
	target := AspectRatio{W: size.X, H: size.Y}
	if target.Matches(b.Dx(), b.Dy(), tolerance) || LockRatio(b, target) == b {
		return imaging.Resize(photo, size.X, size.Y, imaging.Lanczos), nil
	}

	switch policy {
	case RatioFill:
		return imaging.Fill(photo, size.X, size.Y, imaging.Center, imaging.Lanczos), nil
	case RatioStretch:
		return imaging.Resize(photo, size.X, size.Y, imaging.Lanczos), nil
	default:
		return nil, fmt.Errorf("%w: photo %dx%d, target %s", ErrAspectRatioMismatch, b.Dx(), b.Dy(), target)
	}
}

// Compose layers photo under tpl: a transparent canvas the size of the
// template gets the fitted photo pasted opaquely at Target, then every
// template pixel whose alpha reaches MatteThreshold replaces the canvas
// pixel. Pixels below the threshold keep the photo. There is no partial
// alpha blending.
func (c Compositor) Compose(photo image.Image, tpl *image.NRGBA) (*image.NRGBA, error) {
	fitted, err := FitPhoto(photo, c.Target.Size(), c.Policy, c.Tolerance)
	if err != nil {
		return nil, err
	}

	b := tpl.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), color.NRGBA{})
	canvas = imaging.Paste(canvas, fitted, c.Target.Min.Sub(b.Min))
	matte(canvas, tpl, c.MatteThreshold)
	return canvas, nil
}

// matte copies tpl onto canvas wherever tpl's alpha is at least threshold.
// canvas is expected to have tpl's size with its origin at (0,0).
func matte(canvas, tpl *image.NRGBA, threshold uint8) {
	b := tpl.Bounds()
	for y := 0; y < b.Dy(); y++ {
		src := tpl.Pix[tpl.PixOffset(b.Min.X, b.Min.Y+y):]
		dst := canvas.Pix[canvas.PixOffset(0, y):]
		for x := 0; x < b.Dx(); x++ {
			i := x * 4
			if src[i+3] < threshold {
				continue
			}
			copy(dst[i:i+4], src[i:i+4])
		}
	}
}
