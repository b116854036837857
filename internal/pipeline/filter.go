package pipeline

import (
	"slices"
	"time"

	"pic-analyzer/internal/mediatypes"
)

// ApplyFilters runs a filter chain over items. An empty chain returns a copy
// of items.
func ApplyFilters(items []mediatypes.Item, chain []FilterStep) ([]mediatypes.Item, error) {
	if len(chain) == 0 || len(items) == 0 {
		return slices.Clone(items), nil
	}

	start := time.Now()
	var current []mediatypes.Item
	for i, step := range chain {
		input := current
		if i == 0 || step.Connector == Or {
			input = items
		}

		matched, err := invoke(StageFilter, step.Plugin.Name(), func() ([]mediatypes.Item, error) {
			return step.Plugin.Filter(slices.Clone(input), step.Params.Clone())
		})
		if err != nil {
			return nil, err
		}
		matched = restrict(matched, input)

		if i == 0 || step.Connector != Or {
			current = matched
			continue
		}
		current = union(current, matched)
	}

	observeStage(StageFilter, start, len(current))
	return current, nil
}

// restrict keeps the members of out that came from in, once each, in the
// order out lists them. The stored item is the one from in.
func restrict(out, in []mediatypes.Item) []mediatypes.Item {
	known := indexByPath(in)
	seen := make(map[string]struct{}, len(out))
	kept := make([]mediatypes.Item, 0, len(out))
	for _, it := range out {
		orig, ok := known[it.Path]
		if !ok {
			continue
		}
		if _, dup := seen[it.Path]; dup {
			continue
		}
		seen[it.Path] = struct{}{}
		kept = append(kept, orig)
	}
	return kept
}

// union appends the members of extra not already in current.
func union(current, extra []mediatypes.Item) []mediatypes.Item {
	seen := make(map[string]struct{}, len(current)+len(extra))
	out := make([]mediatypes.Item, 0, len(current)+len(extra))
	for _, it := range current {
		seen[it.Path] = struct{}{}
		out = append(out, it)
	}
	for _, it := range extra {
		if _, ok := seen[it.Path]; ok {
			continue
		}
		seen[it.Path] = struct{}{}
		out = append(out, it)
	}
	return out
}
