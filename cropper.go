package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnsupportedPhoto = errors.New("unsupported photo")
	ErrInvalidCrop      = errors.New("invalid crop")
)

// Crop is a crop rectangle in fractions of the photo size, origin top-left.
type Crop struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// String formats the crop the way UnmarshalText reads it.
func (c Crop) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", c.X, c.Y, c.Width, c.Height)
}

// UnmarshalText parses "x,y,w,h" so crops can come from flags and form fields.
func (c *Crop) UnmarshalText(text []byte) error {
	parts := strings.Split(string(text), ",")
	if len(parts) != 4 {
		return fmt.Errorf("%w %q: expected x,y,w,h", ErrInvalidCrop, text)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidCrop, text, err)
		}
		if f < 0 || f > 1 {
			return fmt.Errorf("%w %q: values must be within 0..1", ErrInvalidCrop, text)
		}
		v[i] = f
	}
	*c = Crop{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
	return nil
}

// Rect converts the relative crop to pixels of bounds.
func (c Crop) Rect(bounds image.Rectangle) image.Rectangle {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	x := bounds.Min.X + int(c.X*w)
	y := bounds.Min.Y + int(c.Y*h)
	return image.Rect(x, y, x+int(c.Width*w), y+int(c.Height*h))
}

// LockRatio returns the largest rectangle of the given ratio centred in r.
// This is the rule a crop tool must follow so the compositor never has to
// distort the subject.
func LockRatio(r image.Rectangle, ratio AspectRatio) image.Rectangle {
	w, h := int64(r.Dx()), int64(r.Dy())
	rw, rh := int64(ratio.W), int64(ratio.H)
	if w <= 0 || h <= 0 || rw <= 0 || rh <= 0 {
		return image.Rectangle{}
	}

	nw, nh := w, h
	if w*rh > h*rw {
		nw = (h*rw + rh/2) / rh
	} else {
		nh = (w*rh + rw/2) / rw
	}
	x := r.Min.X + int((w-nw)/2)
	y := r.Min.Y + int((h-nh)/2)
	return image.Rect(x, y, x+int(nw), y+int(nh))
}

type Cropper interface {
	Crop(ctx context.Context, r io.Reader, crop *Crop, ratio AspectRatio) (image.Image, error)
}

// ImagingCropper is an implementation of the Cropper interface
// using the disintegration/imaging library
type ImagingCropper struct{}

// Crop decodes an uploaded photo, applies the relative crop (the whole
// image when crop is nil) and locks the result to ratio.
func (c *ImagingCropper) Crop(ctx context.Context, r io.Reader, crop *Crop, ratio AspectRatio) (image.Image, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPhoto, err)
	}

	bounds := src.Bounds()
	cropRect := bounds
	if crop != nil {
		cropRect = crop.Rect(bounds)
		if cropRect.Dx() <= 0 || cropRect.Dy() <= 0 {
			return nil, fmt.Errorf("%w %s: width=%d, height=%d", ErrInvalidCrop, crop, cropRect.Dx(), cropRect.Dy())
		}
		if !cropRect.In(bounds) {
			cropRect = cropRect.Intersect(bounds)
			if cropRect.Empty() {
				return nil, fmt.Errorf("%w %s: outside the %dx%d photo", ErrInvalidCrop, crop, bounds.Dx(), bounds.Dy())
			}
		}
	}

	locked := LockRatio(cropRect, ratio)
	if locked.Empty() {
		return nil, fmt.Errorf("%w: %v is too small for ratio %s", ErrInvalidCrop, cropRect, ratio)
	}
	if locked != cropRect {
		event := log.Ctx(ctx).Debug()
		if crop != nil {
			event = event.Stringer("crop", crop)
		}
		event.
			Stringer("requested", cropRect).
			Stringer("locked", locked).
			Str("ratio", ratio.String()).
			Msg("crop adjusted to locked ratio")
	}

	return imaging.Crop(src, locked), nil
}

// NewImagingCropper creates a new instance of ImagingCropper
func NewImagingCropper() *ImagingCropper {
	return &ImagingCropper{}
}
