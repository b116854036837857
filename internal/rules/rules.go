package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"pic-analyzer/internal/pipeline"
	"pic-analyzer/internal/plugin"
)

// Example is a YAML rule file using the built-in plugins.
const Example = `group:
  plugin: Date Grouping
  metric: modified
  params: {granularity: month}
filters:
  - plugin: File Type
    params: {extension: .jpg}
sorts:
  - plugin: Descending
    metric: size
`

// Format is a rule file encoding.
type Format string

// Formats.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported rule file extension %q", filepath.Ext(path))
	}
}

// Set is a serializable rule configuration.
type Set struct {
	Group   *GroupRule   `yaml:"group,omitempty" toml:"group,omitempty" json:"group,omitempty"`
	Filters []FilterRule `yaml:"filters,omitempty" toml:"filters,omitempty" json:"filters,omitempty"`
	Sorts   []SortRule   `yaml:"sorts,omitempty" toml:"sorts,omitempty" json:"sorts,omitempty"`
}

// GroupRule selects a grouper.
type GroupRule struct {
	Plugin string         `yaml:"plugin" toml:"plugin" json:"plugin"`
	Metric string         `yaml:"metric,omitempty" toml:"metric,omitempty" json:"metric,omitempty"`
	Params map[string]any `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// FilterRule is one filter step. Connector is "and" or "or" and is ignored
// on the first rule.
type FilterRule struct {
	Connector string         `yaml:"connector,omitempty" toml:"connector,omitempty" json:"connector,omitempty"`
	Plugin    string         `yaml:"plugin" toml:"plugin" json:"plugin"`
	Params    map[string]any `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// SortRule is one sort key.
type SortRule struct {
	Plugin string         `yaml:"plugin" toml:"plugin" json:"plugin"`
	Metric string         `yaml:"metric" toml:"metric" json:"metric"`
	Params map[string]any `yaml:"params,omitempty" toml:"params,omitempty" json:"params,omitempty"`
}

// ParseError reports a rule file that could not be decoded.
type ParseError struct {
	Source string
	Format Format
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s rules from %s: %v", e.Format, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Load reads a rule file, choosing the format from its extension.
func Load(path string) (*Set, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file %s: %w", path, err)
	}
	set, err := Parse(data, format)
	if err != nil {
		var perr *ParseError
		if errors.As(err, &perr) {
			perr.Source = path
		}
		return nil, err
	}
	return set, nil
}

// Parse decodes data in the given format.
func Parse(data []byte, format Format) (*Set, error) {
	var set Set
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &set)
	case FormatTOML:
		err = toml.Unmarshal(data, &set)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&set)
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
	if err != nil {
		return nil, &ParseError{Source: "<input>", Format: format, Err: err}
	}
	return &set, nil
}

// Marshal encodes the set in the given format.
func (s *Set) Marshal(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return nil, fmt.Errorf("encoding yaml rules: %w", err)
		}
		_ = enc.Close()
		return buf.Bytes(), nil
	case FormatTOML:
		return toml.Marshal(s)
	case FormatJSON:
		return json.MarshalIndent(s, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported rule format %q", format)
	}
}

// Save writes the set to path, choosing the format from its extension.
func (s *Set) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := s.Marshal(format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing rule file %s: %w", path, err)
	}
	return nil
}

// Resolve looks up every named plugin in reg and resolves its parameters
// against the plugin's schema. All problems are reported together; a name
// the registry does not know wraps plugin.ErrNotFound.
func (s *Set) Resolve(reg *plugin.Registry) (pipeline.Config, error) {
	var cfg pipeline.Config
	var errs []error

	if s.Group != nil {
		g, err := reg.Grouper(s.Group.Plugin)
		if err != nil {
			errs = append(errs, fmt.Errorf("group: %w", err))
		} else if params, err := g.Schema().Resolve(s.Group.Params); err != nil {
			errs = append(errs, fmt.Errorf("group %q: %w", g.Name(), err))
		} else {
			cfg.Group = &pipeline.GroupSelection{Plugin: g, Metric: s.Group.Metric, Params: params}
		}
	}

	for i, rule := range s.Filters {
		connector, err := pipeline.ParseConnector(rule.Connector)
		if err != nil {
			errs = append(errs, fmt.Errorf("filter %d: %w", i, err))
			continue
		}
		f, err := reg.Filter(rule.Plugin)
		if err != nil {
			errs = append(errs, fmt.Errorf("filter %d: %w", i, err))
			continue
		}
		params, err := f.Schema().Resolve(rule.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("filter %d %q: %w", i, f.Name(), err))
			continue
		}
		cfg.Filters = append(cfg.Filters, pipeline.FilterStep{Connector: connector, Plugin: f, Params: params})
	}

	for i, rule := range s.Sorts {
		srt, err := reg.Sorter(rule.Plugin)
		if err != nil {
			errs = append(errs, fmt.Errorf("sort %d: %w", i, err))
			continue
		}
		params, err := srt.Schema().Resolve(rule.Params)
		if err != nil {
			errs = append(errs, fmt.Errorf("sort %d %q: %w", i, srt.Name(), err))
			continue
		}
		cfg.Sorts = append(cfg.Sorts, pipeline.SortStep{Plugin: srt, Metric: rule.Metric, Params: params})
	}

	if err := errors.Join(errs...); err != nil {
		return pipeline.Config{}, err
	}
	return cfg, nil
}
