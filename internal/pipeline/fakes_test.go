package pipeline

import (
	"context"
	"fmt"

	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

type predicate struct {
	plugin.Describe
	keep  func(mediatypes.Item) bool
	err   error
	calls int
	seen  [][]string
}

func newPredicate(name string, keep func(mediatypes.Item) bool) *predicate {
	return &predicate{
		Describe: plugin.Describe{PluginName: name, PluginCapability: plugin.CapabilityFilter},
		keep:     keep,
	}
}

func (p *predicate) Run(context.Context, string) (mediatypes.Metrics, error) { return nil, nil }

func (p *predicate) Filter(items []mediatypes.Item, _ plugin.Params) ([]mediatypes.Item, error) {
	p.calls++
	p.seen = append(p.seen, mediatypes.Paths(items))
	if p.err != nil {
		return nil, p.err
	}
	var out []mediatypes.Item
	for _, it := range items {
		if p.keep(it) {
			out = append(out, it)
		}
	}
	return out, nil
}

// above keeps items whose metric exceeds limit.
func above(key string, limit float64) *predicate {
	return newPredicate(fmt.Sprintf("%s>%g", key, limit), func(it mediatypes.Item) bool {
		return it.Metric(key).Float() > limit
	})
}

type parity struct {
	plugin.Describe
	err error
}

func newParity() *parity {
	return &parity{Describe: plugin.Describe{PluginName: "Parity", PluginCapability: plugin.CapabilityGroup}}
}

func (*parity) Run(context.Context, string) (mediatypes.Metrics, error) { return nil, nil }

// Group lists each bucket in reverse so tests can see the pipeline restore
// input order.
func (p *parity) Group(items []mediatypes.Item, metricKey string, _ plugin.Params) (map[string][]mediatypes.Item, error) {
	if p.err != nil {
		return nil, p.err
	}
	if metricKey == "" {
		metricKey = "n"
	}
	out := map[string][]mediatypes.Item{}
	for i := len(items) - 1; i >= 0; i-- {
		key := "odd"
		if int(items[i].Metric(metricKey).Float())%2 == 0 {
			key = "even"
		}
		out[key] = append(out[key], items[i])
	}
	return out, nil
}

type failingSorter struct {
	plugin.Describe
}

func (failingSorter) Run(context.Context, string) (mediatypes.Metrics, error) { return nil, nil }

func (failingSorter) Sort([]mediatypes.Item, string, plugin.Params) ([]mediatypes.Item, error) {
	return nil, fmt.Errorf("boom")
}

// inventing returns an item that was never in its input.
type inventing struct {
	plugin.Describe
}

func (inventing) Run(context.Context, string) (mediatypes.Metrics, error) { return nil, nil }

func (inventing) Filter(items []mediatypes.Item, _ plugin.Params) ([]mediatypes.Item, error) {
	return append(items, mediatypes.NewItem("/invented", nil)), nil
}

func numbered(key string, vs ...float64) []mediatypes.Item {
	out := make([]mediatypes.Item, len(vs))
	for i, v := range vs {
		out[i] = mediatypes.NewItem(fmt.Sprintf("/img/%02d.jpg", i), nil).WithMetric(key, mediatypes.Number(v))
	}
	return out
}
