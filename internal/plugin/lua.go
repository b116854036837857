package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"pic-analyzer/internal/mediatypes"
)

// luaUnit is one plugin file and the interpreter it runs in. gopher-lua
// states are not goroutine-safe, so every call into the unit holds mu.
type luaUnit struct {
	path string

	mu     sync.Mutex
	L      *lua.LState
	closed bool
}

func (u *luaUnit) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.closed {
		u.L.Close()
		u.closed = true
	}
}

// newSandboxedState opens only the base, table, string and math libraries
// and removes the functions that load code from disk or strings.
func newSandboxedState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}

	for _, name := range []string{"dofile", "loadfile", "load", "loadstring", "require", "module"} {
		L.SetGlobal(name, lua.LNil)
	}

	installHost(L)
	return L
}

// loadUnit executes the file at path and builds a plugin for every concrete
// definition it returns. A unit that fails to execute yields a single
// LoadError and no unit. Definitions that fail validation are skipped
// individually.
func loadUnit(path string) ([]Plugin, *luaUnit, []*LoadError) {
	L := newSandboxedState()
	unit := &luaUnit{path: path, L: L}

	if err := protect(func() error { return L.DoFile(path) }); err != nil {
		L.Close()
		return nil, nil, []*LoadError{{Path: path, Err: err}}
	}

	if L.GetTop() == 0 {
		L.Close()
		return nil, nil, []*LoadError{{Path: path, Err: fmt.Errorf("%w: unit returned no plugin definitions", ErrInvalidPlugin)}}
	}
	ret, ok := L.Get(-1).(*lua.LTable)
	L.SetTop(0)
	if !ok {
		L.Close()
		return nil, nil, []*LoadError{{Path: path, Err: fmt.Errorf("%w: unit must return a table", ErrInvalidPlugin)}}
	}

	var defs []*lua.LTable
	if _, single := L.GetField(ret, "name").(lua.LString); single {
		defs = []*lua.LTable{ret}
	} else {
		for i := 1; i <= ret.Len(); i++ {
			if t, ok := ret.RawGetInt(i).(*lua.LTable); ok {
				defs = append(defs, t)
			}
		}
	}

	var plugins []Plugin
	var errs []*LoadError
	for _, def := range defs {
		if lua.LVAsBool(L.GetField(def, "abstract")) {
			continue
		}
		p, err := buildLuaPlugin(unit, def)
		if err != nil {
			name, _ := L.GetField(def, "name").(lua.LString)
			errs = append(errs, &LoadError{Path: path, Name: string(name), Err: err})
			continue
		}
		plugins = append(plugins, p)
	}

	if len(plugins) == 0 {
		L.Close()
		if len(errs) == 0 {
			errs = append(errs, &LoadError{Path: path, Err: fmt.Errorf("%w: no concrete plugin definitions", ErrInvalidPlugin)})
		}
		return nil, nil, errs
	}
	return plugins, unit, errs
}

// buildLuaPlugin instantiates def (calling def:new() when present) and
// validates the instance.
func buildLuaPlugin(unit *luaUnit, def *lua.LTable) (Plugin, error) {
	L := unit.L

	self := def
	if ctor, ok := L.GetField(def, "new").(*lua.LFunction); ok {
		var inst lua.LValue
		err := protect(func() error {
			if err := L.CallByParam(lua.P{Fn: ctor, NRet: 1, Protect: true}, def); err != nil {
				return err
			}
			inst = L.Get(-1)
			L.Pop(1)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("constructor: %w", err)
		}
		t, ok := inst.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("%w: constructor returned %s, want table", ErrInvalidPlugin, inst.Type())
		}
		self = t
	}

	name, ok := L.GetField(self, "name").(lua.LString)
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalidPlugin)
	}
	desc, ok := L.GetField(self, "description").(lua.LString)
	if !ok {
		return nil, fmt.Errorf("%w: missing description", ErrInvalidPlugin)
	}

	capName := ""
	if s, ok := L.GetField(self, "capability").(lua.LString); ok {
		capName = string(s)
	} else if s, ok := L.GetField(self, "category").(lua.LString); ok {
		capName = string(s)
	}
	capability, err := ParseCapability(capName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}

	required := []string{"run"}
	if capability != CapabilityGeneral {
		required = append(required, string(capability))
	}
	for _, method := range required {
		if _, ok := L.GetField(self, method).(*lua.LFunction); !ok {
			return nil, fmt.Errorf("%w: missing %s function", ErrInvalidPlugin, method)
		}
	}

	schema, err := schemaFromLua(L, L.GetField(self, "parameters"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlugin, err)
	}

	base := &luaPlugin{
		unit: unit,
		self: self,
		Describe: Describe{
			PluginName:        string(name),
			PluginDescription: string(desc),
			PluginCapability:  capability,
			PluginSchema:      schema,
		},
	}

	switch capability {
	case CapabilityFilter:
		return &luaFilter{base}, nil
	case CapabilitySort:
		return &luaSorter{base}, nil
	case CapabilityGroup:
		return &luaGrouper{base}, nil
	default:
		return base, nil
	}
}

func schemaFromLua(L *lua.LState, v lua.LValue) (Schema, error) {
	var schema Schema
	tbl, ok := v.(*lua.LTable)
	if !ok {
		if v == lua.LNil {
			return schema, nil
		}
		return schema, fmt.Errorf("parameters must be a list")
	}

	for i := 1; i <= tbl.Len(); i++ {
		pt, ok := tbl.RawGetInt(i).(*lua.LTable)
		if !ok {
			return schema, fmt.Errorf("parameter %d is not a table", i)
		}

		name := lua.LVAsString(L.GetField(pt, "name"))
		if name == "" {
			return schema, fmt.Errorf("parameter %d has no name", i)
		}
		typ, err := ParseParamType(lua.LVAsString(L.GetField(pt, "type")))
		if err != nil {
			return schema, fmt.Errorf("parameter %s: %w", name, err)
		}

		p := Parameter{
			Name:    name,
			Label:   lua.LVAsString(L.GetField(pt, "label")),
			Type:    typ,
			Default: fromLuaScalar(L.GetField(pt, "default")),
		}
		if p.Label == "" {
			p.Label = name
		}
		if n, ok := L.GetField(pt, "min").(lua.LNumber); ok {
			p.Min = Bound(float64(n))
		}
		if n, ok := L.GetField(pt, "max").(lua.LNumber); ok {
			p.Max = Bound(float64(n))
		}
		if opts, ok := L.GetField(pt, "options").(*lua.LTable); ok {
			for j := 1; j <= opts.Len(); j++ {
				p.Options = append(p.Options, lua.LVAsString(opts.RawGetInt(j)))
			}
		}
		schema.Parameters = append(schema.Parameters, p)
	}
	return schema, nil
}

// luaPlugin is a General plugin defined in Lua. The capability-specific
// wrappers below embed it.
type luaPlugin struct {
	Describe
	unit *luaUnit
	self *lua.LTable
}

// call invokes self:method(args...) and passes the single return value to
// decode while the unit lock is held.
func (p *luaPlugin) call(ctx context.Context, method string, decode func(L *lua.LState, ret lua.LValue) error, args ...func(L *lua.LState) lua.LValue) error {
	u := p.unit
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return fmt.Errorf("plugin %s: interpreter closed", p.Name())
	}

	L := u.L
	fn, ok := L.GetField(p.self, method).(*lua.LFunction)
	if !ok {
		return fmt.Errorf("plugin %s has no %s function", p.Name(), method)
	}

	if ctx != nil {
		L.SetContext(ctx)
		defer L.RemoveContext()
	}

	argv := make([]lua.LValue, 0, len(args)+1)
	argv = append(argv, p.self)
	for _, a := range args {
		argv = append(argv, a(L))
	}

	return protect(func() error {
		defer L.SetTop(0)
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, argv...); err != nil {
			return err
		}
		return decode(L, L.Get(-1))
	})
}

func (p *luaPlugin) Run(ctx context.Context, path string) (mediatypes.Metrics, error) {
	var out mediatypes.Metrics
	err := p.call(ctx, "run", func(L *lua.LState, ret lua.LValue) error {
		out = metricsFromLua(ret)
		return nil
	}, func(*lua.LState) lua.LValue { return lua.LString(path) })
	if err != nil {
		return nil, fmt.Errorf("plugin %s run: %w", p.Name(), err)
	}
	return out, nil
}

type luaFilter struct{ *luaPlugin }

func (p *luaFilter) Filter(items []mediatypes.Item, params Params) ([]mediatypes.Item, error) {
	var out []mediatypes.Item
	err := p.call(context.Background(), "filter", func(L *lua.LState, ret lua.LValue) error {
		var err error
		out, err = itemsFromLua(ret, items)
		return err
	}, itemsArg(items), paramsArg(params))
	return out, err
}

type luaSorter struct{ *luaPlugin }

func (p *luaSorter) Sort(items []mediatypes.Item, metricKey string, params Params) ([]mediatypes.Item, error) {
	var out []mediatypes.Item
	err := p.call(context.Background(), "sort", func(L *lua.LState, ret lua.LValue) error {
		var err error
		out, err = itemsFromLua(ret, items)
		return err
	}, itemsArg(items), func(*lua.LState) lua.LValue { return lua.LString(metricKey) }, paramsArg(params))
	return out, err
}

type luaGrouper struct{ *luaPlugin }

func (p *luaGrouper) Group(items []mediatypes.Item, metricKey string, params Params) (map[string][]mediatypes.Item, error) {
	var out map[string][]mediatypes.Item
	err := p.call(context.Background(), "group", func(L *lua.LState, ret lua.LValue) error {
		tbl, ok := ret.(*lua.LTable)
		if !ok {
			return fmt.Errorf("group returned %s, want table", ret.Type())
		}
		out = make(map[string][]mediatypes.Item)
		var firstErr error
		tbl.ForEach(func(k, v lua.LValue) {
			if firstErr != nil {
				return
			}
			bucket, err := itemsFromLua(v, items)
			if err != nil {
				firstErr = fmt.Errorf("bucket %s: %w", k.String(), err)
				return
			}
			out[k.String()] = bucket
		})
		return firstErr
	}, itemsArg(items), func(*lua.LState) lua.LValue { return lua.LString(metricKey) }, paramsArg(params))
	return out, err
}

func itemsArg(items []mediatypes.Item) func(L *lua.LState) lua.LValue {
	return func(L *lua.LState) lua.LValue { return itemsToLua(L, items) }
}

func paramsArg(params Params) func(L *lua.LState) lua.LValue {
	return func(L *lua.LState) lua.LValue {
		t := L.NewTable()
		for k, v := range params {
			t.RawSetString(k, toLuaScalar(v))
		}
		return t
	}
}

// itemsToLua builds {{path=..., metrics={...}}, ...}. Thumbnails stay on the
// Go side.
func itemsToLua(L *lua.LState, items []mediatypes.Item) *lua.LTable {
	arr := L.CreateTable(len(items), 0)
	for _, it := range items {
		m := L.CreateTable(0, len(it.Metrics))
		for k, v := range it.Metrics {
			if v.IsText() {
				m.RawSetString(k, lua.LString(v.String()))
			} else {
				m.RawSetString(k, lua.LNumber(v.Float()))
			}
		}
		t := L.CreateTable(0, 2)
		t.RawSetString("path", lua.LString(it.Path))
		t.RawSetString("metrics", m)
		arr.Append(t)
	}
	return arr
}

// itemsFromLua maps a returned list back onto the input items by path.
// Entries may be item tables or bare path strings. Unknown paths are
// dropped and repeated paths are kept once.
func itemsFromLua(ret lua.LValue, inputs []mediatypes.Item) ([]mediatypes.Item, error) {
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("returned %s, want list of items", ret.Type())
	}

	byPath := make(map[string]int, len(inputs))
	for i, it := range inputs {
		byPath[it.Path] = i
	}

	out := make([]mediatypes.Item, 0, tbl.Len())
	seen := make(map[string]struct{}, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		var path string
		switch v := tbl.RawGetInt(i).(type) {
		case lua.LString:
			path = string(v)
		case *lua.LTable:
			path = lua.LVAsString(v.RawGetString("path"))
		default:
			continue
		}
		idx, ok := byPath[path]
		if !ok {
			continue
		}
		if _, dup := seen[path]; dup {
			continue
		}
		seen[path] = struct{}{}
		out = append(out, inputs[idx])
	}
	return out, nil
}

func metricsFromLua(ret lua.LValue) mediatypes.Metrics {
	out := mediatypes.Metrics{}
	tbl, ok := ret.(*lua.LTable)
	if !ok {
		return out
	}
	tbl.ForEach(func(k, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok {
			return
		}
		switch val := v.(type) {
		case lua.LNumber:
			out[string(key)] = mediatypes.Number(float64(val))
		case lua.LString:
			out[string(key)] = mediatypes.Text(string(val))
		case lua.LBool:
			if val {
				out[string(key)] = mediatypes.Number(1)
			} else {
				out[string(key)] = mediatypes.Number(0)
			}
		}
	})
	return out
}

func fromLuaScalar(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LNumber:
		f := float64(val)
		if f == float64(int64(f)) {
			return int(f)
		}
		return f
	case lua.LString:
		return string(val)
	case lua.LBool:
		return bool(val)
	default:
		return nil
	}
}

func toLuaScalar(v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	default:
		if f, err := toFloat(v); err == nil {
			return lua.LNumber(f)
		}
		return lua.LString(fmt.Sprint(v))
	}
}

// protect converts a Go panic raised inside the interpreter into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

// installHost exposes the "pic" helper table to plugin units.
func installHost(L *lua.LState) {
	L.SetGlobal("pic", L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"stat":        hostStat,
		"stable_sort": hostStableSort,
		"metric":      hostMetric,
	}))
}

// pic.stat(path) -> {size=, modified=, is_dir=} | nil, err
func hostStat(L *lua.LState) int {
	info, err := os.Stat(L.CheckString(1))
	if err != nil {
		L.Push(lua.LNil)
		if errors.Is(err, os.ErrNotExist) {
			L.Push(lua.LString("file not found"))
		} else {
			L.Push(lua.LString(err.Error()))
		}
		return 2
	}
	t := L.NewTable()
	t.RawSetString("size", lua.LNumber(info.Size()))
	t.RawSetString("modified", lua.LNumber(info.ModTime().Unix()))
	t.RawSetString("is_dir", lua.LBool(info.IsDir()))
	L.Push(t)
	return 1
}

// pic.metric(item, key) -> value, 0 when absent
func hostMetric(L *lua.LState) int {
	item := L.CheckTable(1)
	key := L.CheckString(2)
	if m, ok := item.RawGetString("metrics").(*lua.LTable); ok {
		if v := m.RawGetString(key); v != lua.LNil {
			L.Push(v)
			return 1
		}
	}
	L.Push(lua.LNumber(0))
	return 1
}

// pic.stable_sort(list, key_fn, descending) sorts a copy of list by the
// values key_fn returns, keeping ties in their original order.
func hostStableSort(L *lua.LState) int {
	list := L.CheckTable(1)
	keyFn := L.CheckFunction(2)
	desc := L.OptBool(3, false)

	type keyed struct {
		v   lua.LValue
		key mediatypes.Value
	}
	elems := make([]keyed, 0, list.Len())
	for i := 1; i <= list.Len(); i++ {
		v := list.RawGetInt(i)
		L.Push(keyFn)
		L.Push(v)
		L.Call(1, 1)
		k := L.Get(-1)
		L.Pop(1)

		var key mediatypes.Value
		switch kv := k.(type) {
		case lua.LNumber:
			key = mediatypes.Number(float64(kv))
		case lua.LString:
			key = mediatypes.Text(string(kv))
		default:
			key = mediatypes.Number(0)
		}
		elems = append(elems, keyed{v: v, key: key})
	}

	sort.SliceStable(elems, func(i, j int) bool {
		c := mediatypes.Compare(elems[i].key, elems[j].key)
		if desc {
			return c > 0
		}
		return c < 0
	})

	out := L.CreateTable(len(elems), 0)
	for _, e := range elems {
		out.Append(e.v)
	}
	L.Push(out)
	return 1
}
