package main

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Photo != (Rect{X: 50, Y: 120, Width: 400, Height: 500}) {
		t.Errorf("unexpected default photo rect %+v", cfg.Photo)
	}
	if cfg.CropRatio != (AspectRatio{W: 400, H: 500}) {
		t.Errorf("crop ratio should derive from photo rect, got %s", cfg.CropRatio)
	}
	if cfg.Anchor != AnchorMiddleMiddle {
		t.Errorf("expected anchor mm, got %q", cfg.Anchor)
	}
	if cfg.TextColor.NRGBA != white {
		t.Errorf("expected white text, got %v", cfg.TextColor.NRGBA)
	}
	if !cfg.Caching() {
		t.Error("assets should be cached by default")
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
template_path: "assets/template.png"
font_path: "assets/signature.ttf"
photo:
  x: 0
  y: 0
  width: 640
  height: 720
crop_ratio: "8:9"
name_anchor:
  x: 870
  y: 645
font_size: 64
text_color: "#1a2b3c"
ratio_policy: fill
hole_check: strict
cache_assets: false
export:
  dpi: 150
  file_prefix: "Convite_"
  creation_date: 2024-05-01T10:00:00Z
`
	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create test config: %v", err)
	}

	cfg, err := LoadConfig(configFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.TemplatePath != "assets/template.png" {
		t.Errorf("Expected template_path 'assets/template.png', got '%s'", cfg.TemplatePath)
	}
	if cfg.Photo != (Rect{Width: 640, Height: 720}) {
		t.Errorf("unexpected photo rect %+v", cfg.Photo)
	}
	if cfg.CropRatio != (AspectRatio{W: 8, H: 9}) {
		t.Errorf("Expected crop_ratio 8:9, got %s", cfg.CropRatio)
	}
	if cfg.NameAnchor != (Point{X: 870, Y: 645}) {
		t.Errorf("unexpected anchor %+v", cfg.NameAnchor)
	}
	if cfg.TextColor.NRGBA != (color.NRGBA{R: 0x1a, G: 0x2b, B: 0x3c, A: 0xff}) {
		t.Errorf("unexpected text color %v", cfg.TextColor.NRGBA)
	}
	if cfg.RatioPolicy != RatioFill {
		t.Errorf("Expected ratio_policy fill, got %s", cfg.RatioPolicy)
	}
	if cfg.HoleCheck != HoleCheckStrict {
		t.Errorf("Expected hole_check strict, got %s", cfg.HoleCheck)
	}
	if cfg.Caching() {
		t.Error("cache_assets: false was ignored")
	}
	if cfg.Export.DPI != 150 || cfg.Export.FilePrefix != "Convite_" {
		t.Errorf("unexpected export config %+v", cfg.Export)
	}
	if !cfg.Export.CreationDate.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected creation date %v", cfg.Export.CreationDate)
	}
	if cfg.FontSize != 64 {
		t.Errorf("Expected font_size 64, got %v", cfg.FontSize)
	}
	// Untouched fields keep their defaults.
	if cfg.MatteThreshold != 1 || cfg.Anchor != AnchorMiddleMiddle {
		t.Errorf("unexpected threshold %v or anchor %q", cfg.MatteThreshold, cfg.Anchor)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"ratio mismatch", "crop_ratio: \"3:4\"\n", "does not match photo rectangle"},
		{"bad ratio", "crop_ratio: \"3x4\"\n", "expected W:H"},
		{"anchor", "anchor: la\n", "not supported"},
		{"policy", "ratio_policy: squash\n", "unknown ratio_policy"},
		{"hole check", "hole_check: maybe\n", "unknown hole_check"},
		{"photo size", "photo: {x: 0, y: 0, width: 0, height: 10}\n", "must be positive"},
		{"negative offset", "photo: {x: -1, y: 0, width: 4, height: 5}\n", "must not be negative"},
		{"font size", "font_size: 0\n", "font_size"},
		{"threshold", "matte_threshold: 0\n", "matte_threshold"},
		{"color", "text_color: \"#12\"\n", "expected #rrggbb"},
		{"dpi", "export: {dpi: -1}\n", "export.dpi"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			_, err := LoadConfig(path)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestAspectRatio(t *testing.T) {
	tests := []struct {
		in      string
		reduced AspectRatio
	}{
		{"400:500", AspectRatio{4, 5}},
		{"640:720", AspectRatio{8, 9}},
		{"600:720", AspectRatio{5, 6}},
		{"540:720", AspectRatio{3, 4}},
		{"3:4", AspectRatio{3, 4}},
	}
	for _, tt := range tests {
		var a AspectRatio
		if err := a.UnmarshalText([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", tt.in, err)
		}
		if a.String() != tt.in {
			t.Errorf("String() = %q, want %q", a, tt.in)
		}
		if got := a.Reduced(); got != tt.reduced {
			t.Errorf("%s reduced to %s, want %s", tt.in, got, tt.reduced)
		}
	}

	r := AspectRatio{W: 640, H: 720}
	if !r.Matches(320, 360, 0) {
		t.Error("320x360 should match 640:720 exactly")
	}
	if !r.Matches(321, 360, 0.01) {
		t.Error("321x360 should match 640:720 within 1%")
	}
	if r.Matches(360, 360, 0.01) {
		t.Error("a square should not match 640:720")
	}
	if r.Matches(0, 360, 0.5) {
		t.Error("an empty size never matches")
	}

	for _, bad := range []string{"", "4", "a:b", "0:5", "-4:5"} {
		var a AspectRatio
		if err := a.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("UnmarshalText(%q) should fail", bad)
		}
	}
}

func TestHexColor(t *testing.T) {
	tests := map[string]color.NRGBA{
		"white":     white,
		"BLACK":     {A: 0xff},
		"#ff0000":   red,
		"10203f":    {R: 0x10, G: 0x20, B: 0x3f, A: 0xff},
		"#10203f80": {R: 0x10, G: 0x20, B: 0x3f, A: 0x80},
	}
	for in, want := range tests {
		var c HexColor
		if err := c.UnmarshalText([]byte(in)); err != nil {
			t.Fatalf("UnmarshalText(%q): %v", in, err)
		}
		if c.NRGBA != want {
			t.Errorf("%q parsed as %v, want %v", in, c.NRGBA, want)
		}
	}
	var c HexColor
	if err := c.UnmarshalText([]byte("#gggggg")); err == nil {
		t.Error("expected an error for non-hex digits")
	}
}

func TestConfigMarshal(t *testing.T) {
	cfg := testConfig(t)
	cfg.TextColor = HexColor{NRGBA: color.NRGBA{R: 0xff, G: 0xd7, A: 0xff}}
	cfg.CropRatio = AspectRatio{W: 8, H: 9}
	cfg.Export.CreationDate = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data, err := cfg.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "effective.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("marshalled config does not load: %v", err)
	}
	if loaded.CropRatio != cfg.CropRatio || loaded.TextColor != cfg.TextColor || loaded.Photo != cfg.Photo {
		t.Errorf("loaded %+v, want %+v", loaded, cfg)
	}
	if !loaded.Export.CreationDate.Equal(cfg.Export.CreationDate) {
		t.Errorf("creation date %v, want %v", loaded.Export.CreationDate, cfg.Export.CreationDate)
	}
}

func TestCheckTemplate(t *testing.T) {
	tpl := newTemplate(128, 72, image.Rect(0, 0, 64, 72), navy)

	t.Run("matching hole", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.HoleCheck = HoleCheckStrict
		warnings, err := cfg.CheckTemplate(tpl)
		if err != nil || len(warnings) != 0 {
			t.Fatalf("expected a clean check, got %v %v", warnings, err)
		}
	})

	t.Run("out of bounds", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Photo = Rect{X: 100, Y: 0, Width: 64, Height: 72}
		if _, err := cfg.CheckTemplate(tpl); !errors.Is(err, ErrPhotoOutOfBounds) {
			t.Fatalf("expected ErrPhotoOutOfBounds, got %v", err)
		}
	})

	shifted := func(t *testing.T, mode HoleCheck) *Config {
		cfg := testConfig(t)
		cfg.Photo = Rect{X: 8, Y: 0, Width: 56, Height: 63}
		cfg.HoleCheck = mode
		return cfg
	}

	t.Run("warn", func(t *testing.T) {
		warnings, err := shifted(t, HoleCheckWarn).CheckTemplate(tpl)
		if err != nil {
			t.Fatalf("warn mode must not fail: %v", err)
		}
		if len(warnings) != 1 {
			t.Fatalf("expected one warning, got %v", warnings)
		}
	})

	t.Run("strict", func(t *testing.T) {
		if _, err := shifted(t, HoleCheckStrict).CheckTemplate(tpl); !errors.Is(err, ErrHoleMismatch) {
			t.Fatalf("expected ErrHoleMismatch, got %v", err)
		}
	})

	t.Run("off", func(t *testing.T) {
		warnings, err := shifted(t, HoleCheckOff).CheckTemplate(tpl)
		if err != nil || len(warnings) != 0 {
			t.Fatalf("expected no findings, got %v %v", warnings, err)
		}
	})
}
