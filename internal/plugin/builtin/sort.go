package builtin

import (
	"math"
	"slices"

	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

// Ascending sorts from lowest to highest metric value.
type Ascending struct {
	plugin.Describe
	noRun
}

// NewAscending returns the "Ascending" sort plugin.
func NewAscending() *Ascending {
	return &Ascending{Describe: plugin.Describe{
		PluginName:        "Ascending",
		PluginDescription: "Sort items from lowest to highest value.",
		PluginCapability:  plugin.CapabilitySort,
	}}
}

func (*Ascending) Sort(items []mediatypes.Item, metricKey string, _ plugin.Params) ([]mediatypes.Item, error) {
	return sortByMetric(items, metricKey, false), nil
}

// Descending sorts from highest to lowest metric value.
type Descending struct {
	plugin.Describe
	noRun
}

// NewDescending returns the "Descending" sort plugin.
func NewDescending() *Descending {
	return &Descending{Describe: plugin.Describe{
		PluginName:        "Descending",
		PluginDescription: "Sort items from highest to lowest value.",
		PluginCapability:  plugin.CapabilitySort,
	}}
}

func (*Descending) Sort(items []mediatypes.Item, metricKey string, _ plugin.Params) ([]mediatypes.Item, error) {
	return sortByMetric(items, metricKey, true), nil
}

func sortByMetric(items []mediatypes.Item, key string, desc bool) []mediatypes.Item {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b mediatypes.Item) int {
		c := mediatypes.Compare(a.Metric(key), b.Metric(key))
		if desc {
			return -c
		}
		return c
	})
	return out
}

// NormalDistribution orders items by their distance from the mean, so the
// most typical values come first.
type NormalDistribution struct {
	plugin.Describe
	noRun
}

// NewNormalDistribution returns the "Normal Distribution" sort plugin.
func NewNormalDistribution() *NormalDistribution {
	return &NormalDistribution{Describe: plugin.Describe{
		PluginName:        "Normal Distribution",
		PluginDescription: "Show items closest to the mean value first.",
		PluginCapability:  plugin.CapabilitySort,
	}}
}

func (*NormalDistribution) Sort(items []mediatypes.Item, metricKey string, _ plugin.Params) ([]mediatypes.Item, error) {
	if len(items) == 0 {
		return []mediatypes.Item{}, nil
	}
	mean, _ := Stats(items, metricKey)

	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b mediatypes.Item) int {
		da := math.Abs(a.Metric(metricKey).Float() - mean)
		db := math.Abs(b.Metric(metricKey).Float() - mean)
		switch {
		case da < db:
			return -1
		case da > db:
			return 1
		}
		return 0
	})
	return out, nil
}

// Stats returns the mean and population standard deviation of metricKey
// over items. Missing metrics count as 0.
func Stats(items []mediatypes.Item, metricKey string) (mean, sigma float64) {
	if len(items) == 0 {
		return 0, 0
	}
	for _, it := range items {
		mean += it.Metric(metricKey).Float()
	}
	mean /= float64(len(items))

	var sq float64
	for _, it := range items {
		d := it.Metric(metricKey).Float() - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(items)))
}
