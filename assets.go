package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
)

// Assets holds the decoded template and parsed font. Both are read-only
// once loaded and shared by all generations. When caching is disabled they
// are reloaded for every request.
type Assets struct {
	cfg *Config

	mu       sync.RWMutex
	template *image.NRGBA
	font     *Font
}

func NewAssets(cfg *Config) *Assets {
	return &Assets{cfg: cfg}
}

// Load returns the template and font, loading them on first use. Template
// errors are returned and never cached, so a later request retries.
func (a *Assets) Load(ctx context.Context) (*image.NRGBA, *Font, error) {
	if a.cfg.Caching() {
		a.mu.RLock()
		tpl, fnt := a.template, a.font
		a.mu.RUnlock()
		if tpl != nil {
			return tpl, fnt, nil
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.Caching() && a.template != nil {
		return a.template, a.font, nil
	}

	tpl, fnt, err := a.load(ctx)
	if err != nil {
		return nil, nil, err
	}
	if a.cfg.Caching() {
		a.template, a.font = tpl, fnt
	}
	return tpl, fnt, nil
}

func (a *Assets) load(ctx context.Context) (*image.NRGBA, *Font, error) {
	var (
		tpl *image.NRGBA
		fnt *Font
	)
	p := pool.New().WithErrors().WithContext(ctx)
	p.Go(func(ctx context.Context) error {
		t, err := LoadTemplate(a.cfg.TemplatePath)
		if err != nil {
			return err
		}
		tpl = t
		return nil
	})
	p.Go(func(ctx context.Context) error {
		fnt = LoadFont(a.cfg.FontPath)
		return nil
	})
	if err := p.Wait(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("template", a.cfg.TemplatePath).Msg("failed to load template")
		return nil, nil, err
	}

	warnings, err := a.cfg.CheckTemplate(tpl)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range warnings {
		log.Ctx(ctx).Warn().Str("template", a.cfg.TemplatePath).Msg(w)
	}
	if fnt.Fallback {
		log.Ctx(ctx).Warn().Err(fnt.Err).Str("font", fnt.Source).Msg("custom font unavailable, using default")
	}

	log.Ctx(ctx).Debug().
		Str("template", a.cfg.TemplatePath).
		Stringer("bounds", tpl.Bounds()).
		Str("font", fnt.Source).
		Msg("assets loaded")
	return tpl, fnt, nil
}

// Invalidate drops the cached assets.
func (a *Assets) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.template, a.font = nil, nil
}

// Watch invalidates the cache whenever the template or font file changes.
// It blocks until ctx is done.
func (a *Assets) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	watched := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range a.watchedFiles() {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		watched[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	// Directories rather than files, so editors that replace the file keep
	// being seen.
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch folder %s: %w", dir, err)
		}
		log.Ctx(ctx).Debug().Str("dir", dir).Msg("watching assets")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			log.Ctx(ctx).Info().Str("file", event.Name).Str("op", event.Op.String()).Msg("asset changed, reloading on next request")
			a.Invalidate()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				a.Invalidate()
				continue
			}
			log.Ctx(ctx).Error().Err(err).Msg("asset watcher error")
		}
	}
}

func (a *Assets) watchedFiles() []string {
	files := []string{a.cfg.TemplatePath}
	if a.cfg.FontPath != "" {
		files = append(files, a.cfg.FontPath)
		if alt := alternateFontPath(a.cfg.FontPath); alt != "" {
			files = append(files, alt)
		}
	}
	return files
}
