package pipeline

import (
	"slices"
	"time"

	"pic-analyzer/internal/mediatypes"
)

// ApplySorts runs a sort chain over items. chain[0] is the primary key; the
// steps run last to first so each earlier key wins over the later ones.
func ApplySorts(items []mediatypes.Item, chain []SortStep) ([]mediatypes.Item, error) {
	current := slices.Clone(items)
	if len(chain) == 0 || len(items) < 2 {
		return current, nil
	}

	start := time.Now()
	for _, step := range slices.Backward(chain) {
		sorted, err := invoke(StageSort, step.Plugin.Name(), func() ([]mediatypes.Item, error) {
			return step.Plugin.Sort(slices.Clone(current), step.Metric, step.Params.Clone())
		})
		if err != nil {
			return nil, err
		}
		current = permutation(sorted, current)
	}

	observeStage(StageSort, start, len(current))
	return current, nil
}

// permutation makes out a permutation of in: unknown and repeated paths are
// dropped, and items the plugin left out are appended in their previous
// order.
func permutation(out, in []mediatypes.Item) []mediatypes.Item {
	kept := restrict(out, in)
	if len(kept) == len(in) {
		return kept
	}
	log.Warn("Sort plugin returned %d of %d items; appending the rest", len(kept), len(in))
	seen := make(map[string]struct{}, len(kept))
	for _, it := range kept {
		seen[it.Path] = struct{}{}
	}
	for _, it := range in {
		if _, ok := seen[it.Path]; !ok {
			seen[it.Path] = struct{}{}
			kept = append(kept, it)
		}
	}
	return kept
}
