package builtin

import (
	"context"
	"time"

	"pic-analyzer/internal/filesystem"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

// UnknownDate is the bucket for items whose date cannot be determined.
const UnknownDate = "Unknown"

// DateGrouping buckets items by modification date at year, month or day
// granularity.
type DateGrouping struct {
	plugin.Describe
}

// NewDateGrouping returns the "Date Grouping" group plugin.
func NewDateGrouping() *DateGrouping {
	return &DateGrouping{Describe: plugin.Describe{
		PluginName:        "Date Grouping",
		PluginDescription: "Groups images by their modification date.",
		PluginCapability:  plugin.CapabilityGroup,
		PluginSchema: plugin.Schema{Parameters: []plugin.Parameter{{
			Name:    "granularity",
			Label:   "Granularity",
			Type:    plugin.ParamChoice,
			Default: "month",
			Options: []string{"year", "month", "day"},
		}}},
	}}
}

// Run reports the file's modification date as "date" (YYYY-MM-DD).
func (*DateGrouping) Run(_ context.Context, path string) (mediatypes.Metrics, error) {
	info, err := filesystem.StatWithRetry(path, statConfig)
	if err != nil {
		return mediatypes.Metrics{"error": mediatypes.Text("File not found")}, nil
	}
	return mediatypes.Metrics{"date": mediatypes.Text(info.ModTime().Format(time.DateOnly))}, nil
}

// TrailingKeys lists UnknownDate after the dated buckets.
func (*DateGrouping) TrailingKeys() []string { return []string{UnknownDate} }

// Group buckets items by date. The date comes from the metricKey metric
// (default "date") when the item has it, otherwise from the file itself.
func (*DateGrouping) Group(items []mediatypes.Item, metricKey string, params plugin.Params) (map[string][]mediatypes.Item, error) {
	if metricKey == "" {
		metricKey = "date"
	}
	granularity := params.String("granularity", "month")

	out := make(map[string][]mediatypes.Item)
	for _, it := range items {
		key := UnknownDate
		if it.HasMetric(metricKey) {
			if d, ok := parseDate(it.Metric(metricKey)); ok {
				key = formatDate(d, granularity)
			}
		} else if info, err := filesystem.StatWithRetry(it.Path, statConfig); err == nil {
			key = formatDate(info.ModTime(), granularity)
		}
		out[key] = append(out[key], it)
	}
	return out, nil
}

func formatDate(t time.Time, granularity string) string {
	switch granularity {
	case "year":
		return t.Format("2006")
	case "day":
		return t.Format(time.DateOnly)
	default:
		return t.Format("2006-01")
	}
}

// parseDate accepts YYYY-MM-DD, YYYY-MM, YYYY, RFC 3339 text, or a numeric
// Unix timestamp in seconds.
func parseDate(v mediatypes.Value) (time.Time, bool) {
	if !v.IsText() {
		if secs := v.Float(); secs > 0 {
			return time.Unix(int64(secs), 0), true
		}
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, "2006-01", "2006", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, v.String(), time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
