package rules

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pic-analyzer/internal/mediatypes"
	"pic-analyzer/internal/pipeline"
	"pic-analyzer/internal/plugin"
	"pic-analyzer/internal/plugin/builtin"
)

const yamlRules = `
group:
  plugin: Date Grouping
  params:
    granularity: year
filters:
  - plugin: File Type
    params:
      extension: .png
  - connector: or
    plugin: File Type
    params:
      extension: .webp
sorts:
  - plugin: Descending
    metric: size
  - plugin: Ascending
    metric: date
`

const tomlRules = `
[group]
plugin = "Date Grouping"

[group.params]
granularity = "day"

[[filters]]
plugin = "File Size"

[filters.params]
min_mb = 1
max_mb = 2.5

[[sorts]]
plugin = "Normal Distribution"
metric = "size"
`

func newRegistry(t *testing.T) *plugin.Registry {
	t.Helper()
	r := plugin.NewRegistry()
	require.NoError(t, builtin.Register(r))
	return r
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{
		"a.yaml": FormatYAML, "a.YML": FormatYAML, "b.toml": FormatTOML, "c.json": FormatJSON,
	} {
		got, err := FormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := FormatFromPath("rules.ini")
	assert.Error(t, err)
}

func TestParseYAML(t *testing.T) {
	set, err := Parse([]byte(yamlRules), FormatYAML)
	require.NoError(t, err)

	require.NotNil(t, set.Group)
	assert.Equal(t, "Date Grouping", set.Group.Plugin)
	assert.Equal(t, "year", set.Group.Params["granularity"])
	require.Len(t, set.Filters, 2)
	assert.Equal(t, "or", set.Filters[1].Connector)
	require.Len(t, set.Sorts, 2)
	assert.Equal(t, "size", set.Sorts[0].Metric)
}

func TestParseTOMLAndResolve(t *testing.T) {
	set, err := Parse([]byte(tomlRules), FormatTOML)
	require.NoError(t, err)

	cfg, err := set.Resolve(newRegistry(t))
	require.NoError(t, err)
	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, 1.0, cfg.Filters[0].Params.Float("min_mb", 0))
	assert.Equal(t, 2.5, cfg.Filters[0].Params.Float("max_mb", 0))
	assert.Equal(t, "day", cfg.Group.Params.String("granularity", ""))
	assert.Equal(t, "Normal Distribution", cfg.Sorts[0].Plugin.Name())
}

func TestParseJSONRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`{"sorts":[{"plugin":"Ascending","metric":"size"}]}`), FormatJSON)
	require.NoError(t, err)

	_, err = Parse([]byte(`{"sortz":[]}`), FormatJSON)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, FormatJSON, perr.Format)
}

func TestLoadReportsPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("filters: [unterminated"), 0o644))

	_, err := Load(path)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Source)
	assert.Contains(t, err.Error(), path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSaveAndLoadEachFormat(t *testing.T) {
	set, err := Parse([]byte(yamlRules), FormatYAML)
	require.NoError(t, err)
	dir := t.TempDir()

	for _, name := range []string{"rules.yaml", "rules.toml", "rules.json"} {
		path := filepath.Join(dir, name)
		require.NoError(t, set.Save(path), name)

		loaded, err := Load(path)
		require.NoError(t, err, name)
		assert.Equal(t, set.Group.Plugin, loaded.Group.Plugin, name)
		assert.Equal(t, set.Filters[1].Connector, loaded.Filters[1].Connector, name)
		assert.Equal(t, ".webp", loaded.Filters[1].Params["extension"], name)
		assert.Equal(t, set.Sorts[1].Metric, loaded.Sorts[1].Metric, name)
	}
}

func TestResolveBuildsPipelineConfig(t *testing.T) {
	set, err := Parse([]byte(yamlRules), FormatYAML)
	require.NoError(t, err)

	cfg, err := set.Resolve(newRegistry(t))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, pipeline.And, cfg.Filters[0].Connector)
	assert.Equal(t, pipeline.Or, cfg.Filters[1].Connector)
	assert.Equal(t, "Descending", cfg.Sorts[0].Plugin.Name())
	assert.Equal(t, "date", cfg.Sorts[1].Metric)

	items := []mediatypes.Item{
		mediatypes.NewItem("/a.png", nil).WithMetric("date", mediatypes.Text("2021-01-01")),
		mediatypes.NewItem("/b.jpg", nil).WithMetric("date", mediatypes.Text("2022-01-01")),
		mediatypes.NewItem("/c.webp", nil).WithMetric("date", mediatypes.Text("2022-05-01")),
	}
	res, err := pipeline.Apply(context.Background(), items, cfg)
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	assert.Equal(t, "2022", res.Groups[0].Key)
	assert.Equal(t, []string{"/c.webp"}, mediatypes.Paths(res.Groups[0].Items))
	assert.Equal(t, []string{"/a.png"}, mediatypes.Paths(res.Groups[1].Items))
}

func TestResolveReportsEveryProblem(t *testing.T) {
	set := &Set{
		Group: &GroupRule{Plugin: "Gone"},
		Filters: []FilterRule{
			{Plugin: "File Type", Params: map[string]any{"extension": ".tiff"}},
			{Connector: "xor", Plugin: "File Size"},
		},
		Sorts: []SortRule{{Plugin: "File Type", Metric: "size"}},
	}

	_, err := set.Resolve(newRegistry(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, plugin.ErrNotFound)
	msg := err.Error()
	assert.Contains(t, msg, `group "Gone"`)
	assert.Contains(t, msg, "extension")
	assert.Contains(t, msg, "unknown connector")
	assert.Contains(t, msg, `sort "File Type"`)
}

func TestExampleResolvesAgainstBuiltins(t *testing.T) {
	set, err := Parse([]byte(Example), FormatYAML)
	require.NoError(t, err)

	cfg, err := set.Resolve(newRegistry(t))
	require.NoError(t, err)

	require.NotNil(t, cfg.Group)
	assert.Equal(t, "Date Grouping", cfg.Group.Plugin.Name())
	require.Len(t, cfg.Filters, 1)
	assert.Equal(t, ".jpg", cfg.Filters[0].Params["extension"])
	require.Len(t, cfg.Sorts, 1)
	assert.Equal(t, "size", cfg.Sorts[0].Metric)
}

func TestBareExtensionIsRejected(t *testing.T) {
	set, err := Parse([]byte(`filters:
  - plugin: File Type
    params: {extension: jpg}
`), FormatYAML)
	require.NoError(t, err)

	_, err = set.Resolve(newRegistry(t))
	assert.ErrorContains(t, err, "jpg")
}
