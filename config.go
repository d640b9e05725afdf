package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the deployment geometry and assets of the invitation card.
// It is loaded once at startup and never mutated afterwards.
type Config struct {
	TemplatePath   string       `yaml:"template_path"`
	FontPath       string       `yaml:"font_path"`
	Photo          Rect         `yaml:"photo"`
	CropRatio      AspectRatio  `yaml:"crop_ratio"`
	NameAnchor     Point        `yaml:"name_anchor"`
	FontSize       float64      `yaml:"font_size"`
	TextColor      HexColor     `yaml:"text_color"`
	Anchor         string       `yaml:"anchor"`
	MatteThreshold uint8        `yaml:"matte_threshold"`
	RatioPolicy    RatioPolicy  `yaml:"ratio_policy"`
	RatioTolerance float64      `yaml:"ratio_tolerance"`
	HoleCheck      HoleCheck    `yaml:"hole_check"`
	CacheAssets    *bool        `yaml:"cache_assets"`
	Export         ExportConfig `yaml:"export"`
}

type ExportConfig struct {
	DPI          float64   `yaml:"dpi"`
	FilePrefix   string    `yaml:"file_prefix"`
	Title        string    `yaml:"title"`
	CreationDate time.Time `yaml:"creation_date"`
}

// Rect is a rectangle in template pixel space.
type Rect struct {
	X      int `yaml:"x" json:"x"`
	Y      int `yaml:"y" json:"y"`
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Rect) Ratio() AspectRatio {
	return AspectRatio{W: r.Width, H: r.Height}
}

type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

const AnchorMiddleMiddle = "mm"

type RatioPolicy string

const (
	RatioReject  RatioPolicy = "reject"
	RatioFill    RatioPolicy = "fill"
	RatioStretch RatioPolicy = "stretch"
)

type HoleCheck string

const (
	HoleCheckOff    HoleCheck = "off"
	HoleCheckWarn   HoleCheck = "warn"
	HoleCheckStrict HoleCheck = "strict"
)

var (
	ErrPhotoOutOfBounds = errors.New("photo rectangle exceeds template bounds")
	ErrHoleMismatch     = errors.New("template hole does not match photo rectangle")
)

// DefaultConfig returns the geometry of the stock invitation template.
func DefaultConfig() *Config {
	cache := true
	return &Config{
		TemplatePath:   "template.png",
		FontPath:       "signature.ttf",
		Photo:          Rect{X: 50, Y: 120, Width: 400, Height: 500},
		NameAnchor:     Point{X: 1200, Y: 900},
		FontSize:       80,
		TextColor:      HexColor{NRGBA: color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}},
		Anchor:         AnchorMiddleMiddle,
		MatteThreshold: 1,
		RatioPolicy:    RatioReject,
		RatioTolerance: 0.01,
		HoleCheck:      HoleCheckWarn,
		CacheAssets:    &cache,
		Export: ExportConfig{
			DPI:        300,
			FilePrefix: "Invite_",
			Title:      "Invitation",
		},
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if cfg.CropRatio.IsZero() {
		cfg.CropRatio = cfg.Photo.Ratio()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks everything that can be checked without the template.
func (c *Config) Validate() error {
	if c.TemplatePath == "" {
		return fmt.Errorf("template_path is required")
	}
	if c.Photo.Width <= 0 || c.Photo.Height <= 0 {
		return fmt.Errorf("photo width and height must be positive, got %dx%d", c.Photo.Width, c.Photo.Height)
	}
	if c.Photo.X < 0 || c.Photo.Y < 0 {
		return fmt.Errorf("photo offset must not be negative, got (%d,%d)", c.Photo.X, c.Photo.Y)
	}
	if c.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %v", c.FontSize)
	}
	if c.Anchor != AnchorMiddleMiddle {
		return fmt.Errorf("anchor %q is not supported, only %q", c.Anchor, AnchorMiddleMiddle)
	}
	if c.MatteThreshold == 0 {
		return fmt.Errorf("matte_threshold must be at least 1")
	}
	if c.RatioTolerance < 0 || c.RatioTolerance >= 1 {
		return fmt.Errorf("ratio_tolerance must be in [0,1), got %v", c.RatioTolerance)
	}
	switch c.RatioPolicy {
	case RatioReject, RatioFill, RatioStretch:
	default:
		return fmt.Errorf("unknown ratio_policy %q", c.RatioPolicy)
	}
	switch c.HoleCheck {
	case HoleCheckOff, HoleCheckWarn, HoleCheckStrict:
	default:
		return fmt.Errorf("unknown hole_check %q", c.HoleCheck)
	}
	if c.CropRatio.IsZero() {
		return fmt.Errorf("crop_ratio is required")
	}
	if !c.CropRatio.Matches(c.Photo.Width, c.Photo.Height, c.RatioTolerance) {
		return fmt.Errorf("crop_ratio %s does not match photo rectangle %dx%d", c.CropRatio, c.Photo.Width, c.Photo.Height)
	}
	if c.Export.DPI <= 0 {
		return fmt.Errorf("export.dpi must be positive, got %v", c.Export.DPI)
	}
	return nil
}

// Marshal renders the effective configuration as YAML that LoadConfig
// reads back unchanged.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) Caching() bool {
	return c.CacheAssets == nil || *c.CacheAssets
}

// CheckTemplate validates the geometry against a decoded template. The
// returned warnings are non-fatal findings of the hole check.
func (c *Config) CheckTemplate(tpl *image.NRGBA) (warnings []string, err error) {
	if !c.Photo.Image().In(tpl.Bounds()) {
		return nil, fmt.Errorf("%w: photo %v, template %v", ErrPhotoOutOfBounds, c.Photo.Image(), tpl.Bounds())
	}
	if c.HoleCheck == HoleCheckOff {
		return nil, nil
	}

	hole := HoleBounds(tpl, c.MatteThreshold)
	if hole == c.Photo.Image() {
		return nil, nil
	}
	if c.HoleCheck == HoleCheckStrict {
		return nil, fmt.Errorf("%w: hole %v, photo %v", ErrHoleMismatch, hole, c.Photo.Image())
	}
	return []string{fmt.Sprintf("template hole %v does not match photo rectangle %v", hole, c.Photo.Image())}, nil
}

// AspectRatio is a width:height pair, written as "W:H" in config files.
type AspectRatio struct {
	W int
	H int
}

func (a AspectRatio) IsZero() bool {
	return a.W == 0 && a.H == 0
}

func (a AspectRatio) String() string {
	return fmt.Sprintf("%d:%d", a.W, a.H)
}

func (a AspectRatio) Float() float64 {
	return float64(a.W) / float64(a.H)
}

// Reduced returns the ratio in lowest terms, e.g. 640:720 -> 8:9.
func (a AspectRatio) Reduced() AspectRatio {
	g := gcd(a.W, a.H)
	if g == 0 {
		return a
	}
	return AspectRatio{W: a.W / g, H: a.H / g}
}

// Matches reports whether w:h equals the ratio within a relative tolerance.
func (a AspectRatio) Matches(w, h int, tolerance float64) bool {
	if w <= 0 || h <= 0 || a.W <= 0 || a.H <= 0 {
		return false
	}
	want := a.Float()
	got := float64(w) / float64(h)
	return math.Abs(got-want)/want <= tolerance
}

func (a AspectRatio) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AspectRatio) UnmarshalText(text []byte) error {
	w, h, ok := strings.Cut(strings.TrimSpace(string(text)), ":")
	if !ok {
		return fmt.Errorf("aspect ratio %q: expected W:H", text)
	}
	wi, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return fmt.Errorf("aspect ratio %q: %w", text, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return fmt.Errorf("aspect ratio %q: %w", text, err)
	}
	if wi <= 0 || hi <= 0 {
		return fmt.Errorf("aspect ratio %q: both terms must be positive", text)
	}
	a.W, a.H = wi, hi
	return nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// HexColor accepts "#rrggbb", "#rrggbbaa" or the names white and black.
type HexColor struct {
	color.NRGBA
}

func (c HexColor) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)), nil
}

func (c *HexColor) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	switch s {
	case "white":
		c.NRGBA = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
		return nil
	case "black":
		c.NRGBA = color.NRGBA{A: 0xff}
		return nil
	}

	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 && len(s) != 8 {
		return fmt.Errorf("color %q: expected #rrggbb or #rrggbbaa", text)
	}
	if len(s) == 6 {
		s += "ff"
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fmt.Errorf("color %q: %w", text, err)
	}
	c.NRGBA = color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}
	return nil
}
