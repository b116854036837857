/*
Package plugin defines the plugin capability model and the registry that
discovers, classifies and serves plugins.

# Capabilities

Every plugin has a name, a description, a parameter [Schema] and a
[Plugin.Run] method that analyzes a single file. Its [Capability] decides
which additional operation it must provide:

	filter   Filter(items, params) -> subset of items
	sort     Sort(items, metricKey, params) -> reordered items
	group    Group(items, metricKey, params) -> key -> items
	general  (Run only)

# Plugin units

Discover walks a directory for .lua files. Each file is a plugin unit and
runs in its own sandboxed gopher-lua interpreter with only the base, table,
string and math libraries. A unit returns either one definition table or a
list of them:

	return {
	  name = "Sharp Only",
	  description = "Keeps images whose sharpness is at least min",
	  capability = "filter",
	  parameters = {
	    { name = "min", label = "Minimum", type = "float", default = 0.5, min = 0, max = 1 },
	  },
	  run = function(self, path) return { sharpness = 0.8 } end,
	  filter = function(self, items, params)
	    local out = {}
	    for _, it in ipairs(items) do
	      if pic.metric(it, "sharpness") >= params.min then table.insert(out, it) end
	    end
	    return out
	  end,
	}

Items reach Lua as {path = ..., metrics = {...}} tables. Whatever a plugin
returns is mapped back to the original items by path; unknown paths are
dropped. Definitions marked abstract = true are skipped, and a definition
with a new function is instantiated by calling def:new().

The global pic table offers stat(path), metric(item, key) and
stable_sort(list, key_fn, descending).

Directories named __pycache__, build, dist or node_modules, hidden
directories, and test files (test_*.lua, *_test.lua, *_spec.lua) are
ignored.

# Conflicts

Names are unique across the whole registry. When a second definition with
an existing name appears, both are removed from every table and the name
stays excluded for the registry's lifetime. Go plugins added with
[Registry.Register] follow the same rule.
*/
package plugin
