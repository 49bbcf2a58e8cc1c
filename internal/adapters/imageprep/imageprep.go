// Package imageprep validates uploaded images and shrinks oversized ones
// before they are forwarded to the remote models.
package imageprep

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
)

// Default preparation limits.
const (
	defaultMaxBytes     = 10 << 20
	defaultMaxDimension = 1024
	defaultMaxPixels    = 40_000_000
	jpegQuality         = 90
)

// Sentinel kinds for rejected uploads.
var (
	ErrEmptyImage        = errors.New("empty image")
	ErrImageTooLarge     = errors.New("image too large")
	ErrUnsupportedFormat = errors.New("unsupported image format; expected JPEG or PNG")
)

// Prepared is an upload ready to be sent upstream.
type Prepared struct {
	Filename string
	Data     []byte
	Format   string // "jpeg" or "png"
	Width    int
	Height   int
	// OriginalWidth and OriginalHeight are the uploaded dimensions.
	OriginalWidth  int
	OriginalHeight int
	Resized        bool
}

// Option applies a configuration option to the Preparer.
type Option func(*Preparer)

// WithMaxBytes caps the accepted payload size.
func WithMaxBytes(n int64) Option {
	return func(p *Preparer) {
		if n > 0 {
			p.maxBytes = n
		}
	}
}

// WithMaxDimension sets the longest accepted side in pixels. 0 disables downscaling.
func WithMaxDimension(px int) Option {
	return func(p *Preparer) {
		if px >= 0 {
			p.maxDimension = px
		}
	}
}

// WithMaxPixels caps width*height as declared in the image header. Decoding
// allocates per pixel, so this bounds memory independently of the byte size.
func WithMaxPixels(n int64) Option {
	return func(p *Preparer) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

// Preparer checks uploads and downscales images whose longest side exceeds
// the configured bound. It holds no mutable state and is safe for concurrent use.
type Preparer struct {
	maxBytes     int64
	maxDimension int
	maxPixels    int64
}

// New creates a Preparer with defaults overridden by opts.
func New(opts ...Option) *Preparer {
	p := &Preparer{
		maxBytes:     defaultMaxBytes,
		maxDimension: defaultMaxDimension,
		maxPixels:    defaultMaxPixels,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxBytes returns the configured payload cap.
func (p *Preparer) MaxBytes() int64 { return p.maxBytes }

// Prepare validates data and returns the bytes to forward. Images within the
// size bound pass through byte-for-byte.
func (p *Preparer) Prepare(filename string, data []byte) (Prepared, error) {
	if len(data) == 0 {
		return Prepared{}, ErrEmptyImage
	}
	if int64(len(data)) > p.maxBytes {
		return Prepared{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrImageTooLarge, len(data), p.maxBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || (format != "jpeg" && format != "png") {
		return Prepared{}, ErrUnsupportedFormat
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > p.maxPixels {
		return Prepared{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrImageTooLarge, cfg.Width, cfg.Height, p.maxPixels)
	}

	out := Prepared{
		Filename:       normalizeFilename(filename, format),
		Data:           data,
		Format:         format,
		Width:          cfg.Width,
		Height:         cfg.Height,
		OriginalWidth:  cfg.Width,
		OriginalHeight: cfg.Height,
	}

	if p.maxDimension == 0 || (cfg.Width <= p.maxDimension && cfg.Height <= p.maxDimension) {
		return out, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Prepared{}, fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}

	bound := uint(p.maxDimension) //nolint:gosec // validated non-negative
	scaled := resize.Thumbnail(bound, bound, img, resize.Lanczos3)

	var buf bytes.Buffer
	switch format {
	case "png":
		err = png.Encode(&buf, scaled)
	default:
		err = jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: jpegQuality})
	}
	if err != nil {
		return Prepared{}, fmt.Errorf("encode %s: %w", format, err)
	}

	b := scaled.Bounds()
	out.Data = buf.Bytes()
	out.Width = b.Dx()
	out.Height = b.Dy()
	out.Resized = true
	return out, nil
}

// normalizeFilename keeps the client's base name and makes sure the
// extension agrees with the detected format.
func normalizeFilename(name, format string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case format == "jpeg" && (ext == ".jpg" || ext == ".jpeg"):
		return base
	case format == "png" && ext == ".png":
		return base
	}
	if format == "jpeg" {
		return strings.TrimSuffix(base, filepath.Ext(base)) + ".jpg"
	}
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
}
