package builtin

import (
	"path/filepath"
	"strings"

	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

// FileType keeps items with one extension.
type FileType struct {
	plugin.Describe
	noRun
}

// NewFileType returns the "File Type" filter plugin.
func NewFileType() *FileType {
	return &FileType{Describe: plugin.Describe{
		PluginName:        "File Type",
		PluginDescription: "Filter images by file extension.",
		PluginCapability:  plugin.CapabilityFilter,
		PluginSchema: plugin.Schema{Parameters: []plugin.Parameter{{
			Name:    "extension",
			Label:   "Extension",
			Type:    plugin.ParamChoice,
			Default: ".jpg",
			Options: []string{".jpg", ".png", ".webp", ".gif", ".bmp"},
		}}},
	}}
}

func (*FileType) Filter(items []mediatypes.Item, params plugin.Params) ([]mediatypes.Item, error) {
	want := strings.ToLower(params.String("extension", ".jpg"))
	out := make([]mediatypes.Item, 0, len(items))
	for _, it := range items {
		ext := strings.ToLower(filepath.Ext(it.Path))
		if ext == want || (want == ".jpg" && ext == ".jpeg") {
			out = append(out, it)
		}
	}
	return out, nil
}

// FileSize keeps items whose on-disk size lies within [min_mb, max_mb].
type FileSize struct {
	plugin.Describe
	noRun
}

// NewFileSize returns the "File Size" filter plugin.
func NewFileSize() *FileSize {
	return &FileSize{Describe: plugin.Describe{
		PluginName:        "File Size",
		PluginDescription: "Filter images by file size (MB).",
		PluginCapability:  plugin.CapabilityFilter,
		PluginSchema: plugin.Schema{Parameters: []plugin.Parameter{
			{Name: "min_mb", Label: "Min Size (MB)", Type: plugin.ParamFloat, Default: 0.0, Min: plugin.Bound(0), Max: plugin.Bound(100)},
			{Name: "max_mb", Label: "Max Size (MB)", Type: plugin.ParamFloat, Default: 10.0, Min: plugin.Bound(0), Max: plugin.Bound(500)},
		}},
	}}
}

const mib = 1024 * 1024

func (*FileSize) Filter(items []mediatypes.Item, params plugin.Params) ([]mediatypes.Item, error) {
	minBytes := params.Float("min_mb", 0) * mib
	maxBytes := params.Float("max_mb", 10) * mib

	out := make([]mediatypes.Item, 0, len(items))
	for _, it := range items {
		info, err := filesystem.StatWithRetry(it.Path, statConfig)
		if err != nil {
			continue
		}
		if size := float64(info.Size()); size >= minBytes && size <= maxBytes {
			out = append(out, it)
		}
	}
	return out, nil
}

// DateRange keeps items last modified within [start_year, end_year].
type DateRange struct {
	plugin.Describe
	noRun
}

// NewDateRange returns the "Date Range" filter plugin.
func NewDateRange() *DateRange {
	return &DateRange{Describe: plugin.Describe{
		PluginName:        "Date Range",
		PluginDescription: "Filter images by their last modified date range.",
		PluginCapability:  plugin.CapabilityFilter,
		PluginSchema: plugin.Schema{Parameters: []plugin.Parameter{
			{Name: "start_year", Label: "Start Year", Type: plugin.ParamInt, Default: 2020, Min: plugin.Bound(1900), Max: plugin.Bound(2100)},
			{Name: "end_year", Label: "End Year", Type: plugin.ParamInt, Default: 2026, Min: plugin.Bound(1900), Max: plugin.Bound(2100)},
		}},
	}}
}

func (*DateRange) Filter(items []mediatypes.Item, params plugin.Params) ([]mediatypes.Item, error) {
	start := params.Int("start_year", 2020)
	end := params.Int("end_year", 2026)

	out := make([]mediatypes.Item, 0, len(items))
	for _, it := range items {
		info, err := filesystem.StatWithRetry(it.Path, statConfig)
		if err != nil {
			continue
		}
		if y := info.ModTime().Year(); y >= start && y <= end {
			out = append(out, it)
		}
	}
	return out, nil
}
