package main

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	ErrTemplateNotFound   = errors.New("template not found")
	ErrTemplateUnreadable = errors.New("template cannot be decoded")
)

const builtinFontName = "builtin:goregular"

// LoadTemplate decodes the template at path and normalizes it to NRGBA.
func LoadTemplate(path string) (*image.NRGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, path)
		}
		return nil, fmt.Errorf("failed to open template %s: %w", path, err)
	}
	defer f.Close()

	img, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrTemplateUnreadable, path, err)
	}
	return imaging.Clone(img), nil
}

// HoleBounds returns the bounding box of the pixels the matte lets through,
// i.e. those with alpha below threshold.
func HoleBounds(tpl *image.NRGBA, threshold uint8) image.Rectangle {
	var hole image.Rectangle
	b := tpl.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if tpl.Pix[tpl.PixOffset(x, y)+3] >= threshold {
				continue
			}
			hole = hole.Union(image.Rect(x, y, x+1, y+1))
		}
	}
	return hole
}

// Font is a parsed outline font. It is safe to share between requests;
// faces are not, so every generation asks for its own Face.
type Font struct {
	// Source is the file the outlines came from, or builtinFontName.
	Source string
	// Fallback is set when the configured font could not be used.
	Fallback bool
	// Err explains why the earlier candidates were rejected.
	Err error

	parsed *opentype.Font
}

// Face returns a face at size pixels. The caller closes it.
func (f *Font) Face(size float64) font.Face {
	if f.parsed == nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f.parsed, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

type fontCandidate struct {
	name string
	load func() (*opentype.Font, error)
}

// LoadFont walks the candidate chain (exact path, alternate extension,
// built-in outlines) and never fails. If every candidate is rejected the
// font falls back to the fixed-size basicfont bitmap face.
func LoadFont(path string) *Font {
	var errs []error
	for _, c := range fontCandidates(path) {
		parsed, err := c.load()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
			continue
		}
		return &Font{
			Source:   c.name,
			Fallback: c.name == builtinFontName && path != "",
			Err:      errors.Join(errs...),
			parsed:   parsed,
		}
	}
	return &Font{Source: "builtin:basicfont", Fallback: true, Err: errors.Join(errs...)}
}

func fontCandidates(path string) []fontCandidate {
	var cs []fontCandidate
	if path != "" {
		cs = append(cs, fontCandidate{name: path, load: fontFile(path)})
		if alt := alternateFontPath(path); alt != "" {
			cs = append(cs, fontCandidate{name: alt, load: fontFile(alt)})
		}
	}
	return append(cs, fontCandidate{
		name: builtinFontName,
		load: func() (*opentype.Font, error) { return opentype.Parse(goregular.TTF) },
	})
}

func fontFile(path string) func() (*opentype.Font, error) {
	return func() (*opentype.Font, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return opentype.Parse(data)
	}
}

// alternateFontPath swaps .ttf and .otf.
func alternateFontPath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	switch strings.ToLower(ext) {
	case ".ttf":
		return base + ".otf"
	case ".otf":
		return base + ".ttf"
	}
	return ""
}
