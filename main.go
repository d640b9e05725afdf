package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run() error {
	var args cliArgs
	cliCtx := kong.Parse(
		&args,
		kong.Name("invitecard"),
		kong.Description("Composes a photo and a name into an invitation card."),
		kong.UsageOnError(),
	)
	if err := cliCtx.Run(&args.Globals); err != nil {
		return err
	}

	return nil
}

type Globals struct {
	Config  string `help:"YAML configuration file" env:"INVITE_CONFIG" type:"path"`
	Verbose bool   `help:"Enable verbose logging" default:"false"`
}

// setup configures logging and loads the configuration.
func (g *Globals) setup() (context.Context, context.CancelFunc, *Config, error) {
	level := zerolog.InfoLevel
	if g.Verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.NewConsoleWriter()).Level(level)
	zerolog.DefaultContextLogger = &log.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	ctx = log.Logger.WithContext(ctx)

	cfg, err := LoadConfig(g.Config)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, cfg, nil
}

type serveCmd struct {
	Addr  string `help:"Address to listen on" default:"localhost:8080"`
	Open  bool   `help:"Open the browser automatically when the server starts" default:"false"`
	Watch bool   `help:"Reload the template and font when their files change" default:"true" negatable:""`
}

func (cmd *serveCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	assets := NewAssets(cfg)
	// Report a broken deployment at startup. The server still starts and
	// answers with a clear error until the template appears.
	if _, _, err := assets.Load(ctx); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("assets are not usable yet")
	}
	if cmd.Watch && cfg.Caching() {
		go func() {
			if err := assets.Watch(ctx); err != nil {
				log.Ctx(ctx).Error().Err(err).Msg("asset watcher stopped")
			}
		}()
	}

	app := NewWebApp(WebConfig{
		Addr:      cmd.Addr,
		Settings:  cfg,
		Generator: NewGenerator(cfg, assets),
		Cropper:   NewImagingCropper(),
		OnBeforeShutdown: func() {
			log.Ctx(ctx).Info().Msg("Shutting down web application...")
		},
		OnReady: func(addr string) {
			log.Ctx(ctx).Info().Msgf("Server started at %s", addr)
			if cmd.Open {
				if err := openBrowser(addr); err != nil {
					log.Error().Err(err).Msg("Failed to open browser")
				}
			}
		},
	})

	return app.Run(ctx)
}

type renderCmd struct {
	Name   string `required:"" help:"Name drawn on the invite, used verbatim"`
	Photo  string `required:"" type:"existingfile" help:"Photo to place in the template (JPEG or PNG)"`
	Crop   Crop   `help:"Relative crop rectangle x,y,w,h; defaults to the largest centred crop of the locked ratio"`
	OutDir string `help:"Directory to write the PDF and PNG to" default:"." type:"path"`
}

func (cmd *renderCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	logger := log.Ctx(ctx).With().Str("request_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	f, err := os.Open(cmd.Photo)
	if err != nil {
		return fmt.Errorf("failed to open photo %s: %w", cmd.Photo, err)
	}
	defer f.Close()

	var crop *Crop
	if cmd.Crop != (Crop{}) {
		crop = &cmd.Crop
	}
	photo, err := NewImagingCropper().Crop(ctx, f, crop, cfg.CropRatio)
	if err != nil {
		return err
	}

	invite, err := NewGenerator(cfg, NewAssets(cfg)).Generate(ctx, Request{Name: cmd.Name, Photo: photo})
	if err != nil {
		return err
	}
	for _, w := range invite.Warnings {
		log.Ctx(ctx).Warn().Msg(w)
	}

	if err := os.MkdirAll(cmd.OutDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", cmd.OutDir, err)
	}
	outputs := []struct {
		name string
		data []byte
	}{
		{invite.PDFName(), invite.PDF},
		{invite.PNGName(), invite.PNG},
	}
	for _, o := range outputs {
		path := filepath.Join(cmd.OutDir, SafeFileName(o.name))
		if err := os.WriteFile(path, o.data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		log.Ctx(ctx).Info().Str("path", path).Int("bytes", len(o.data)).Msg("written")
	}
	return nil
}

type checkCmd struct {
	Print bool `help:"Print the effective configuration as YAML"`
}

func (cmd *checkCmd) Run(g *Globals) error {
	ctx, cancel, cfg, err := g.setup()
	if err != nil {
		return err
	}
	defer cancel()

	if cmd.Print {
		out, err := cfg.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		os.Stdout.Write(out)
	}

	_, fnt, err := NewAssets(cfg).Load(ctx)
	if err != nil {
		return err
	}
	log.Ctx(ctx).Info().
		Str("template", cfg.TemplatePath).
		Str("font", fnt.Source).
		Str("crop_ratio", cfg.CropRatio.Reduced().String()).
		Msg("configuration is usable")
	return nil
}

type cliArgs struct {
	Globals

	Serve  serveCmd  `cmd:"" default:"1" help:"Serve the invite generator over HTTP"`
	Render renderCmd `cmd:"" help:"Render one invite to files"`
	Check  checkCmd  `cmd:"" help:"Validate the configuration and assets"`
}
