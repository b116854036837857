package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/metrics"
)

const (
	// DefaultSize is the thumbnail bounding square in pixels.
	DefaultSize = 150

	// DefaultQuality is the JPEG quality of generated thumbnails.
	DefaultQuality = 85
)

// Backend names a thumbnail implementation.
type Backend string

// Backends.
const (
	BackendImaging Backend = "imaging"
	BackendVips    Backend = "vips"
)

// Generator produces a JPEG thumbnail that fits within size x size.
// Generate returns nil when the file cannot be decoded.
type Generator interface {
	Generate(path string, size int) []byte
}

// NewGenerator returns the generator for backend. Asking for vips when
// libvips cannot start falls back to imaging with a warning.
func NewGenerator(backend Backend) (Generator, error) {
	switch Backend(strings.ToLower(string(backend))) {
	case BackendImaging, "":
		return NewImagingGenerator(), nil
	case BackendVips:
		if err := InitVips(); err != nil || !IsVipsAvailable() {
			logging.Warn("libvips unavailable (%v), using imaging for thumbnails", err)
			return NewImagingGenerator(), nil
		}
		return NewVipsGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown thumbnail backend %q", backend)
	}
}

// ImagingGenerator decodes with the standard image packages and resizes
// with imaging.
type ImagingGenerator struct {
	Quality int
}

// NewImagingGenerator returns an ImagingGenerator at DefaultQuality.
func NewImagingGenerator() *ImagingGenerator {
	return &ImagingGenerator{Quality: DefaultQuality}
}

// Generate implements Generator.
func (g *ImagingGenerator) Generate(path string, size int) []byte {
	start := time.Now()
	data, err := g.generate(path, size)
	recordGeneration(BackendImaging, start, err)
	if err != nil {
		logging.Debug("Thumbnail failed for %s: %v", path, err)
		return nil
	}
	return data
}

func (g *ImagingGenerator) generate(path string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}

	format, _ := DetectFormat(path)
	metrics.ThumbnailImageDecodeByFormat.WithLabelValues(format).Inc()

	img, err := LoadImageConstrained(path, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return encodeJPEG(fit(img, size), g.Quality)
}

// fit scales img down to fit within size x size. Smaller images are
// returned unchanged.
func fit(img image.Image, size int) image.Image {
	b := img.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return img
	}
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

func recordGeneration(backend Backend, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ThumbnailGenerationsTotal.WithLabelValues(string(backend), status).Inc()
	metrics.ThumbnailGenerationDuration.WithLabelValues(string(backend)).Observe(time.Since(start).Seconds())
}

// DetectFormat sniffs the image format from the file header. It returns
// "unknown" for anything it does not recognize.
func DetectFormat(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "unknown", err
	}
	defer file.Close()

	header := make([]byte, 12)
	n, err := file.Read(header)
	if err != nil {
		return "unknown", err
	}
	return formatFromHeader(header[:n]), nil
}

func formatFromHeader(header []byte) string {
	switch {
	case len(header) >= 3 && header[0] == 0xFF && header[1] == 0xD8 && header[2] == 0xFF:
		return "jpeg"
	case len(header) >= 4 && header[0] == 0x89 && header[1] == 'P' && header[2] == 'N' && header[3] == 'G':
		return "png"
	case len(header) >= 4 && string(header[:4]) == "GIF8":
		return "gif"
	case len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WEBP":
		return "webp"
	case len(header) >= 2 && header[0] == 'B' && header[1] == 'M':
		return "bmp"
	}
	return "unknown"
}
