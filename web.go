package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"image"
	"mime"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type WebConfig struct {
	Addr             string
	Settings         *Config
	Generator        *Generator
	Cropper          Cropper
	OnBeforeShutdown func()
	OnReady          func(addr string)
}

type WebApp struct {
	config       WebConfig
	baseCtx      context.Context
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

func NewWebApp(config WebConfig) *WebApp {
	return &WebApp{
		config:     config,
		baseCtx:    context.Background(),
		shutdownCh: make(chan struct{}),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

type fileResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

type inviteResponse struct {
	Name     string         `json:"name"`
	Width    int            `json:"width"`
	Height   int            `json:"height"`
	Files    []fileResponse `json:"files"`
	Warnings []string       `json:"warnings"`
}

// statusFor maps pipeline errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingName), errors.Is(err, ErrMissingPhoto):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAspectRatioMismatch), errors.Is(err, ErrUnsupportedPhoto),
		errors.Is(err, ErrInvalidCrop):
		return http.StatusBadRequest
	case errors.Is(err, ErrTemplateNotFound), errors.Is(err, ErrTemplateUnreadable),
		errors.Is(err, ErrPhotoOutOfBounds), errors.Is(err, ErrHoleMismatch):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (a *WebApp) newFiberApp() *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}

			status := statusFor(err)
			event := log.Ctx(c.UserContext()).Warn()
			if status >= http.StatusInternalServerError {
				event = log.Ctx(c.UserContext()).Error()
			}
			event.Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", status).
				Msg("Request failed")
			if status == http.StatusInternalServerError {
				return c.Status(status).JSON(fiber.Map{"error": "Internal Server Error"})
			}
			return c.Status(status).JSON(fiber.Map{"error": err.Error()})
		},
	})

	webapp.Use(func(c *fiber.Ctx) error {
		id := uuid.NewString()
		c.Set("X-Request-ID", id)
		logger := log.Ctx(a.baseCtx).With().Str("request_id", id).Logger()
		c.SetUserContext(logger.WithContext(a.baseCtx))
		return c.Next()
	})

	settings := a.config.Settings
	webapp.Get("/api/config", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"photo":              settings.Photo,
			"crop_ratio":         settings.CropRatio.String(),
			"crop_ratio_reduced": settings.CropRatio.Reduced().String(),
			"aspect":             settings.CropRatio.Float(),
		})
	})

	webapp.Post("/api/invite", func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		var crop *Crop
		if v := c.FormValue("crop"); v != "" {
			crop = &Crop{}
			if err := crop.UnmarshalText([]byte(v)); err != nil {
				return err
			}
		}

		var photo image.Image
		if fh, err := c.FormFile("photo"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open upload: %w", err)
			}
			defer f.Close()
			photo, err = a.config.Cropper.Crop(ctx, f, crop, settings.CropRatio)
			if err != nil {
				return err
			}
		}

		invite, err := a.config.Generator.Generate(ctx, Request{Name: c.FormValue("name"), Photo: photo})
		if err != nil {
			return err
		}
		for _, w := range invite.Warnings {
			c.Append("X-Invite-Warning", w)
		}

		switch format := c.Query("format", "png"); format {
		case "preview":
			c.Type("png")
			return c.Send(invite.PNG)
		case "png":
			attachment(c, invite.PNGName(), "png")
			return c.Send(invite.PNG)
		case "pdf":
			attachment(c, invite.PDFName(), "pdf")
			return c.Send(invite.PDF)
		case "json":
			b := invite.Preview.Bounds()
			return c.JSON(inviteResponse{
				Name:   invite.Name,
				Width:  b.Dx(),
				Height: b.Dy(),
				Files: []fileResponse{
					{Filename: invite.PDFName(), ContentType: "application/pdf", Data: invite.PDF},
					{Filename: invite.PNGName(), ContentType: "image/png", Data: invite.PNG},
				},
				Warnings: invite.Warnings,
			})
		default:
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		}
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return c.SendStatus(http.StatusNoContent)
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

// attachment marks the response as a download named filename, verbatim.
// fiber's Attachment strips directories and escapes the name, which would
// change names containing spaces, slashes or non-ASCII letters.
func attachment(c *fiber.Ctx, filename, ext string) {
	c.Type(ext)
	c.Set(fiber.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func (a *WebApp) Run(ctx context.Context) error {
	a.baseCtx = ctx
	webapp := a.newFiberApp()

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	addr := a.config.Addr
	if addr == "" {
		// Let the OS assign a random available port
		addr = "localhost:0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
