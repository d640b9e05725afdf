package main

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

var (
	navy  = color.NRGBA{R: 0x10, G: 0x20, B: 0x40, A: 0xff}
	red   = color.NRGBA{R: 0xff, A: 0xff}
	white = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// newTemplate returns an opaque w x h template in col with a fully
// transparent hole.
func newTemplate(w, h int, hole image.Rectangle, col color.NRGBA) *image.NRGBA {
	tpl := imaging.New(w, h, col)
	for y := hole.Min.Y; y < hole.Max.Y; y++ {
		for x := hole.Min.X; x < hole.Max.X; x++ {
			tpl.SetNRGBA(x, y, color.NRGBA{})
		}
	}
	return tpl
}

func solid(w, h int, col color.NRGBA) *image.NRGBA {
	return imaging.New(w, h, col)
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// testConfig writes a 128x72 template with a hole over its left half and
// returns a validated config pointing at it.
func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	tplPath := filepath.Join(dir, "template.png")
	writePNG(t, tplPath, newTemplate(128, 72, image.Rect(0, 0, 64, 72), navy))

	cfg := DefaultConfig()
	cfg.TemplatePath = tplPath
	cfg.FontPath = ""
	cfg.Photo = Rect{X: 0, Y: 0, Width: 64, Height: 72}
	cfg.CropRatio = cfg.Photo.Ratio()
	cfg.NameAnchor = Point{X: 96, Y: 36}
	cfg.FontSize = 12
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config is invalid: %v", err)
	}
	return cfg
}

// inkBounds returns the bounding box of the pixels of img that differ from bg.
func inkBounds(img *image.NRGBA, within image.Rectangle, bg color.NRGBA) image.Rectangle {
	var r image.Rectangle
	for y := within.Min.Y; y < within.Max.Y; y++ {
		for x := within.Min.X; x < within.Max.X; x++ {
			if img.NRGBAAt(x, y) != bg {
				r = r.Union(image.Rect(x, y, x+1, y+1))
			}
		}
	}
	return r
}

func midpoint(r image.Rectangle) (float64, float64) {
	return float64(r.Min.X+r.Max.X) / 2, float64(r.Min.Y+r.Max.Y) / 2
}
