package builtin

import (
	"context"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

// FileInfo reports basic file and image properties.
type FileInfo struct {
	plugin.Describe
}

// NewFileInfo returns the "File Info" general plugin.
func NewFileInfo() *FileInfo {
	return &FileInfo{Describe: plugin.Describe{
		PluginName:        "File Info",
		PluginDescription: "Reports size, modification time, dimensions and format.",
		PluginCapability:  plugin.CapabilityGeneral,
	}}
}

// Run returns size (bytes), modified (Unix seconds), extension, mime and,
// when the header decodes, width, height and format.
func (*FileInfo) Run(ctx context.Context, path string) (mediatypes.Metrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := filesystem.StatWithRetry(path, statConfig)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	out := mediatypes.Metrics{
		"size":      mediatypes.Number(float64(info.Size())),
		"modified":  mediatypes.Number(float64(info.ModTime().Unix())),
		"extension": mediatypes.Text(ext),
		"mime":      mediatypes.Text(mediatypes.GetMimeType(ext)),
	}

	f, err := filesystem.OpenWithRetry(path, statConfig)
	if err != nil {
		return out, nil
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		log.Debug("No image header for %s: %v", path, err)
		return out, nil
	}
	out["width"] = mediatypes.Number(float64(cfg.Width))
	out["height"] = mediatypes.Number(float64(cfg.Height))
	out["format"] = mediatypes.Text(format)
	return out, nil
}
