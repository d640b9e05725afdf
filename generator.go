package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrMissingName  = errors.New("name is required")
	ErrMissingPhoto = errors.New("photo is required")
)

// Request is one generation. Photo is the already cropped photo.
type Request struct {
	Name  string
	Photo image.Image
}

// Missing returns ErrMissingPhoto or ErrMissingName when the request is
// not ready to be generated, photo first, so a caller can tell "no photo
// yet" from "photo present but no name".
func (r Request) Missing() error {
	if r.Photo == nil {
		return ErrMissingPhoto
	}
	if r.Name == "" {
		return ErrMissingName
	}
	return nil
}

// Invite is the result of one generation.
type Invite struct {
	Name string
	Artifacts
	// Warnings are non-fatal problems the user should see, such as a font
	// fallback.
	Warnings []string

	prefix string
}

func (i *Invite) PDFName() string {
	return ArtifactName(i.prefix, i.Name, "pdf")
}

func (i *Invite) PNGName() string {
	return ArtifactName(i.prefix, i.Name, "png")
}

// ArtifactName builds "<prefix><name>.<ext>" with name verbatim.
func ArtifactName(prefix, name, ext string) string {
	return prefix + name + "." + ext
}

// SafeFileName replaces path separators so an artifact name can be used
// as a single file on disk.
func SafeFileName(name string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(name)
}

type Generator struct {
	cfg        *Config
	assets     *Assets
	compositor Compositor
	encoder    Encoder
}

func NewGenerator(cfg *Config, assets *Assets) *Generator {
	return &Generator{
		cfg:        cfg,
		assets:     assets,
		compositor: NewCompositor(cfg),
		encoder:    NewEncoder(cfg.Export),
	}
}

// Generate runs photo -> template -> name -> export. A missing template
// aborts before anything is produced.
func (g *Generator) Generate(ctx context.Context, req Request) (*Invite, error) {
	if err := req.Missing(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := log.Ctx(ctx).With().Str("name", req.Name).Logger()

	tpl, fnt, err := g.assets.Load(ctx)
	if err != nil {
		return nil, err
	}

	invite := &Invite{Name: req.Name, prefix: g.cfg.Export.FilePrefix}
	if fnt.Fallback {
		invite.Warnings = append(invite.Warnings, "custom font not found, using default font")
	}

	pb := req.Photo.Bounds()
	if !g.cfg.CropRatio.Matches(pb.Dx(), pb.Dy(), g.cfg.RatioTolerance) {
		logger.Warn().
			Int("width", pb.Dx()).
			Int("height", pb.Dy()).
			Str("ratio", g.cfg.CropRatio.String()).
			Str("policy", string(g.cfg.RatioPolicy)).
			Msg("photo does not match crop ratio")
	}

	composite, err := g.compositor.Compose(req.Photo, tpl)
	if err != nil {
		return nil, err
	}

	face := fnt.Face(g.cfg.FontSize)
	defer face.Close()
	DrawName(composite, req.Name, g.cfg.NameAnchor, face, g.cfg.TextColor.NRGBA)

	invite.Artifacts, err = g.encoder.Export(composite)
	if err != nil {
		return nil, fmt.Errorf("failed to export invite: %w", err)
	}

	logger.Info().
		Dur("took", time.Since(start)).
		Int("pdf_bytes", len(invite.PDF)).
		Int("png_bytes", len(invite.PNG)).
		Msg("invite generated")
	return invite, nil
}
