package pipeline

import (
	"slices"
	"strings"
	"time"

	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/plugin"
)

// DefaultGroup names the single group produced without a grouper.
const DefaultGroup = "All Images"

// Group is one named bucket of items.
type Group struct {
	Key   string
	Items []mediatypes.Item
}

// ApplyGroup partitions items with grouper. A nil grouper yields one group,
// DefaultGroup, holding items in their current order.
//
// Buckets are returned in descending key order, followed by any keys the
// grouper reports through plugin.TrailingKeys, and empty buckets are
// omitted. Membership comes from the plugin but the order inside a bucket
// is always the order of items.
func ApplyGroup(items []mediatypes.Item, grouper plugin.Grouper, metricKey string, params plugin.Params) ([]Group, error) {
	if grouper == nil {
		return []Group{{Key: DefaultGroup, Items: slices.Clone(items)}}, nil
	}

	start := time.Now()
	buckets, err := invoke(StageGroup, grouper.Name(), func() (map[string][]mediatypes.Item, error) {
		return grouper.Group(slices.Clone(items), metricKey, params.Clone())
	})
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	var trailing []string
	if t, ok := grouper.(plugin.TrailingKeys); ok {
		trailing = t.TrailingKeys()
	}
	slices.SortFunc(keys, func(a, b string) int {
		ta, tb := slices.Index(trailing, a), slices.Index(trailing, b)
		switch {
		case ta >= 0 && tb >= 0:
			return ta - tb
		case ta >= 0:
			return 1
		case tb >= 0:
			return -1
		}
		return strings.Compare(b, a)
	})

	groups := make([]Group, 0, len(keys))
	for _, k := range keys {
		members := make(map[string]struct{}, len(buckets[k]))
		for _, it := range buckets[k] {
			members[it.Path] = struct{}{}
		}
		var bucket []mediatypes.Item
		for _, it := range items {
			if _, ok := members[it.Path]; ok {
				bucket = append(bucket, it)
				// A path listed twice in items still appears once.
				delete(members, it.Path)
			}
		}
		if len(bucket) > 0 {
			groups = append(groups, Group{Key: k, Items: bucket})
		}
	}

	observeStage(StageGroup, start, len(items))
	return groups, nil
}
