package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"pic-analyzer/internal/logging"
	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/metrics"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/tracing"
)

var log = logging.For("pipeline")

// Connector joins a filter step to the result of the steps before it.
type Connector string

// Connectors.
const (
	And Connector = "AND"
	Or  Connector = "OR"
)

// ParseConnector parses "and" or "or" in any case. The empty string is And.
func ParseConnector(s string) (Connector, error) {
	switch c := Connector(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return And, nil
	case And, Or:
		return c, nil
	default:
		return "", fmt.Errorf("unknown connector %q", s)
	}
}

// FilterStep is one entry of a filter chain. Connector is ignored on the
// first step.
type FilterStep struct {
	Connector Connector
	Plugin    plugin.Filter
	Params    plugin.Params
}

// SortStep is one key of a sort chain.
type SortStep struct {
	Plugin plugin.Sorter
	Metric string
	Params plugin.Params
}

// GroupSelection picks the grouper and its parameters.
type GroupSelection struct {
	Plugin plugin.Grouper
	Metric string
	Params plugin.Params
}

// Config is a complete rule configuration. A nil Group means one implicit
// group.
type Config struct {
	Group   *GroupSelection
	Filters []FilterStep
	Sorts   []SortStep
}

// Result is the output of Apply.
type Result struct {
	// Items is the filtered and sorted collection before grouping.
	Items  []mediatypes.Item
	Groups []Group
}

// Validate checks that every step names a plugin and that connectors are
// known.
func (c Config) Validate() error {
	var errs []error
	for i, step := range c.Filters {
		if step.Plugin == nil {
			errs = append(errs, fmt.Errorf("filter step %d has no plugin", i))
		}
		if i > 0 && step.Connector != And && step.Connector != Or {
			errs = append(errs, fmt.Errorf("filter step %d: unknown connector %q", i, step.Connector))
		}
	}
	for i, step := range c.Sorts {
		if step.Plugin == nil {
			errs = append(errs, fmt.Errorf("sort step %d has no plugin", i))
		}
	}
	if c.Group != nil && c.Group.Plugin == nil {
		errs = append(errs, errors.New("group selection has no plugin"))
	}
	return errors.Join(errs...)
}

// Apply runs filters, then sorts, then grouping. The input slice and its
// items are not modified.
func Apply(ctx context.Context, items []mediatypes.Item, cfg Config) (result Result, err error) {
	ctx, span := tracing.Start(ctx, tracing.SpanPipelineApply,
		attribute.Int(tracing.AttrItemsIn, len(items)))
	defer func() { tracing.End(span, err) }()

	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid rule configuration: %w", err)
	}

	filtered, err := ApplyFilters(items, cfg.Filters)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	sorted, err := ApplySorts(filtered, cfg.Sorts)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var groups []Group
	if cfg.Group != nil {
		groups, err = ApplyGroup(sorted, cfg.Group.Plugin, cfg.Group.Metric, cfg.Group.Params)
	} else {
		groups, err = ApplyGroup(sorted, nil, "", nil)
	}
	if err != nil {
		return Result{}, err
	}

	span.SetAttributes(
		attribute.Int(tracing.AttrItemsOut, len(sorted)),
		attribute.Int(tracing.AttrGroups, len(groups)),
	)
	log.Debug("Applied %d filters, %d sorts: %d -> %d items in %d groups",
		len(cfg.Filters), len(cfg.Sorts), len(items), len(sorted), len(groups))

	return Result{Items: sorted, Groups: groups}, nil
}

// observeStage records the duration and output size of a stage.
func observeStage(stage Stage, start time.Time, out int) {
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	metrics.PipelineItems.WithLabelValues(string(stage)).Observe(float64(out))
}

// invoke runs fn and wraps its error as a *PluginError.
func invoke[T any](stage Stage, name string, fn func() (T, error)) (T, error) {
	out, err := fn()
	if err != nil {
		metrics.PluginInvocationsTotal.WithLabelValues(string(stage), "error").Inc()
		log.Warn("%s plugin %q failed: %v", stage, name, err)
		var zero T
		return zero, &PluginError{Plugin: name, Stage: stage, Err: err}
	}
	metrics.PluginInvocationsTotal.WithLabelValues(string(stage), "success").Inc()
	return out, nil
}

// indexByPath maps each path in items to its first item.
func indexByPath(items []mediatypes.Item) map[string]mediatypes.Item {
	idx := make(map[string]mediatypes.Item, len(items))
	for _, it := range items {
		if _, ok := idx[it.Path]; !ok {
			idx[it.Path] = it
		}
	}
	return idx
}
