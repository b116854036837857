package media

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/davidbyttow/govips/v2/vips"

	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/metrics"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

var errVipsUnavailable = errors.New("libvips not available")

// InitVips initializes the libvips library. It is safe to call more than
// once; govips cannot be restarted after ShutdownVips.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// Configure vips logging before Startup so it follows the app level.
	vipsLogLevel := vips.LogLevelWarning
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	case logging.LevelError:
		vipsLogLevel = vips.LogLevelCritical
	}
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// VipsGenerator thumbnails with libvips, which shrinks JPEGs while
// decoding.
type VipsGenerator struct {
	Quality int
}

// NewVipsGenerator returns a VipsGenerator at DefaultQuality. Call
// InitVips first.
func NewVipsGenerator() *VipsGenerator {
	return &VipsGenerator{Quality: DefaultQuality}
}

// Generate implements Generator.
func (g *VipsGenerator) Generate(path string, size int) []byte {
	start := time.Now()
	data, err := g.generate(path, size)
	recordGeneration(BackendVips, start, err)
	if err != nil {
		logging.Debug("Vips thumbnail failed for %s: %v", filepath.Base(path), err)
		return nil
	}
	return data
}

func (g *VipsGenerator) generate(path string, size int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, errVipsUnavailable
	}
	if size <= 0 {
		size = DefaultSize
	}

	ref, err := vips.LoadImageFromFile(path, vips.NewImportParams())
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	metrics.ThumbnailImageDecodeByFormat.WithLabelValues(vipsFormat(ref.Format())).Inc()

	if err := ref.AutoRotate(); err != nil {
		return nil, err
	}
	if ref.Width() > size || ref.Height() > size {
		if err := ref.Thumbnail(size, size, vips.InterestingNone); err != nil {
			return nil, err
		}
	}

	quality := g.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	data, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	return data, err
}

func vipsFormat(t vips.ImageType) string {
	switch t {
	case vips.ImageTypeJPEG:
		return "jpeg"
	case vips.ImageTypePNG:
		return "png"
	case vips.ImageTypeGIF:
		return "gif"
	case vips.ImageTypeWEBP:
		return "webp"
	case vips.ImageTypeBMP:
		return "bmp"
	default:
		return "unknown"
	}
}
