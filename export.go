package main

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-pdf/fpdf"
)

const (
	pointsPerInch  = 72.0
	compositeImage = "composite"
)

// Artifacts are the encoded forms of one composite.
type Artifacts struct {
	// Preview is the flattened, fully opaque composite.
	Preview *image.NRGBA
	PDF     []byte
	PNG     []byte
}

// Flatten drops the alpha channel: every pixel keeps its colour and
// becomes opaque.
func Flatten(src *image.NRGBA) *image.NRGBA {
	dst := imaging.Clone(src)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

type Encoder struct {
	DPI          float64
	Title        string
	CreationDate time.Time
}

func NewEncoder(cfg ExportConfig) Encoder {
	return Encoder{
		DPI:          cfg.DPI,
		Title:        cfg.Title,
		CreationDate: cfg.CreationDate,
	}
}

// Export flattens composite and encodes it as PNG and as a single-page PDF
// whose page is the image at e.DPI.
func (e Encoder) Export(composite *image.NRGBA) (Artifacts, error) {
	rgb := Flatten(composite)

	var png bytes.Buffer
	if err := imaging.Encode(&png, rgb, imaging.PNG); err != nil {
		return Artifacts{}, fmt.Errorf("failed to encode png: %w", err)
	}

	pdf, err := e.encodePDF(rgb.Bounds().Size(), png.Bytes())
	if err != nil {
		return Artifacts{}, err
	}

	return Artifacts{Preview: rgb, PDF: pdf, PNG: png.Bytes()}, nil
}

func (e Encoder) encodePDF(size image.Point, png []byte) ([]byte, error) {
	wd := float64(size.X) * pointsPerInch / e.DPI
	ht := float64(size.Y) * pointsPerInch / e.DPI

	doc := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: wd, Ht: ht},
	})
	doc.SetCatalogSort(true)
	doc.SetMargins(0, 0, 0)
	doc.SetAutoPageBreak(false, 0)
	if e.Title != "" {
		doc.SetTitle(e.Title, true)
	}
	if !e.CreationDate.IsZero() {
		doc.SetCreationDate(e.CreationDate)
		doc.SetModificationDate(e.CreationDate)
	}
	doc.AddPage()

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	doc.RegisterImageOptionsReader(compositeImage, opts, bytes.NewReader(png))
	doc.ImageOptions(compositeImage, 0, 0, wd, ht, false, opts, 0, "")

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode pdf: %w", err)
	}
	return buf.Bytes(), nil
}
