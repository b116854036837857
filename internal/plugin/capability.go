package plugin

import (
	"context"
	"fmt"
	"strings"

	"pic-analyzer/internal/mediatypes"
)

// Capability determines which operation a plugin exposes.
type Capability string

// Capabilities.
const (
	CapabilityGeneral Capability = "general"
	CapabilityFilter  Capability = "filter"
	CapabilitySort    Capability = "sort"
	CapabilityGroup   Capability = "group"
)

// Capabilities lists every capability in display order.
var Capabilities = []Capability{CapabilityFilter, CapabilitySort, CapabilityGroup, CapabilityGeneral}

// ParseCapability parses a capability name. The empty string is General.
func ParseCapability(s string) (Capability, error) {
	switch c := Capability(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return CapabilityGeneral, nil
	case CapabilityGeneral, CapabilityFilter, CapabilitySort, CapabilityGroup:
		return c, nil
	default:
		return "", fmt.Errorf("unknown capability %q", s)
	}
}

// Plugin is the contract every plugin satisfies.
type Plugin interface {
	Name() string
	Description() string
	Capability() Capability
	Schema() Schema

	// Run analyzes a single file and returns metric values keyed by name.
	Run(ctx context.Context, path string) (mediatypes.Metrics, error)
}

// Filter keeps a subset of items. Implementations must not invent items;
// only items from the input are honored.
type Filter interface {
	Plugin
	Filter(items []mediatypes.Item, params Params) ([]mediatypes.Item, error)
}

// Sorter orders items by metricKey.
type Sorter interface {
	Plugin
	Sort(items []mediatypes.Item, metricKey string, params Params) ([]mediatypes.Item, error)
}

// Grouper partitions items into named buckets. metricKey may be empty,
// in which case the plugin picks its own key.
type Grouper interface {
	Plugin
	Group(items []mediatypes.Item, metricKey string, params Params) (map[string][]mediatypes.Item, error)
}

// TrailingKeys is implemented by groupers with catch-all buckets, such as
// an "Unknown" date, that are listed after every ordered key.
type TrailingKeys interface {
	TrailingKeys() []string
}

// Describe is the static half of a Plugin. Go plugins embed it to get
// Name, Description, Capability and Schema for free.
type Describe struct {
	PluginName        string
	PluginDescription string
	PluginCapability  Capability
	PluginSchema      Schema
}

func (d Describe) Name() string        { return d.PluginName }
func (d Describe) Description() string { return d.PluginDescription }
func (d Describe) Schema() Schema      { return d.PluginSchema }

func (d Describe) Capability() Capability {
	if d.PluginCapability == "" {
		return CapabilityGeneral
	}
	return d.PluginCapability
}

// checkCapability verifies that p implements the operation its capability
// promises.
func checkCapability(p Plugin) error {
	var ok bool
	switch p.Capability() {
	case CapabilityFilter:
		_, ok = p.(Filter)
	case CapabilitySort:
		_, ok = p.(Sorter)
	case CapabilityGroup:
		_, ok = p.(Grouper)
	case CapabilityGeneral:
		ok = true
	default:
		return fmt.Errorf("unknown capability %q", p.Capability())
	}
	if !ok {
		return fmt.Errorf("capability %s requires a %s operation", p.Capability(), p.Capability())
	}
	return nil
}
