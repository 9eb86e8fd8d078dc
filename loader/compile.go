// Package loader loads Lua scenario content into Go structs at load time.
// The Lua VM is discarded after loading — zero Lua at runtime.
package loader

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/ethoslab/ethoscore/engine/state"
	"github.com/ethoslab/ethoscore/types"
)

// rawKind holds a kind table before compilation.
type rawKind struct {
	name  string
	table *lua.LTable
}

// rawEntity holds an entity table before compilation.
type rawEntity struct {
	id    string
	table *lua.LTable
}

// rawAction holds an action table before compilation.
type rawAction struct {
	name  string
	table *lua.LTable
}

// rawRule holds a rule before compilation.
type rawRule struct {
	id         string
	action     string
	conditions *lua.LTable // may be nil
	opts       *lua.LTable
	order      int
}

// rawAxis holds an axis table before compilation.
type rawAxis struct {
	name  string
	table *lua.LTable
}

// getString returns a string field from a Lua table, or "" if missing.
func getString(tbl *lua.LTable, key string) string {
	v := tbl.RawGetString(key)
	if s, ok := v.(lua.LString); ok {
		return string(s)
	}
	return ""
}

// getBool returns a bool field from a Lua table, or the default if missing.
func getBool(tbl *lua.LTable, key string, def bool) bool {
	v := tbl.RawGetString(key)
	if b, ok := v.(lua.LBool); ok {
		return bool(b)
	}
	return def
}

// getNumber returns a numeric field from a Lua table, or 0 if missing.
func getNumber(tbl *lua.LTable, key string) float64 {
	v := tbl.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		return float64(n)
	}
	return 0
}

// getInt returns an int field from a Lua table, or 0 if missing.
func getInt(tbl *lua.LTable, key string) int {
	return int(getNumber(tbl, key))
}

// getFloatPtr returns a pointer to a numeric field, or nil if missing.
// Missing means unbounded; 0 is a legitimate bound.
func getFloatPtr(tbl *lua.LTable, key string) *float64 {
	v := tbl.RawGetString(key)
	if n, ok := v.(lua.LNumber); ok {
		f := float64(n)
		return &f
	}
	return nil
}

// getTable returns a table field from a Lua table, or nil if missing.
func getTable(tbl *lua.LTable, key string) *lua.LTable {
	v := tbl.RawGetString(key)
	if t, ok := v.(*lua.LTable); ok {
		return t
	}
	return nil
}

// toGoValue converts a Lua value to a Go value recursively.
func toGoValue(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		f := float64(val)
		if f == float64(int(f)) {
			return int(f)
		}
		return f
	case *lua.LNilType:
		return nil
	case lua.LString:
		return string(val)
	case *lua.LTable:
		// Array if sequential integer keys starting at 1, else map.
		maxN := val.MaxN()
		if maxN > 0 {
			arr := make([]any, 0, maxN)
			for i := 1; i <= maxN; i++ {
				arr = append(arr, toGoValue(val.RawGetInt(i)))
			}
			return arr
		}
		m := map[string]any{}
		val.ForEach(func(k, v lua.LValue) {
			if ks, ok := k.(lua.LString); ok {
				m[string(ks)] = toGoValue(v)
			}
		})
		return m
	default:
		return nil
	}
}

// tableToAnyMap converts a Lua table to a map[string]any.
func tableToAnyMap(tbl *lua.LTable) map[string]any {
	if tbl == nil {
		return nil
	}
	m := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			m[string(ks)] = toGoValue(v)
		}
	})
	return m
}

// tableToFloatMap converts a Lua table to a map[string]float64, used for
// axis delta tables.
func tableToFloatMap(tbl *lua.LTable) map[string]float64 {
	if tbl == nil {
		return nil
	}
	m := map[string]float64{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			if n, ok := v.(lua.LNumber); ok {
				m[string(ks)] = float64(n)
			}
		}
	})
	return m
}

// tableToStringSlice converts a Lua array to a []string.
func tableToStringSlice(tbl *lua.LTable) []string {
	if tbl == nil {
		return nil
	}
	var out []string
	for i := 1; i <= tbl.MaxN(); i++ {
		if s, ok := tbl.RawGetInt(i).(lua.LString); ok {
			out = append(out, string(s))
		}
	}
	return out
}

// compile converts all collected Lua data into a Defs struct.
func compile(coll *collector) (*state.Defs, error) {
	defs := &state.Defs{
		Kinds:   map[string]types.KindDef{},
		Actions: map[string]types.ActionDef{},
	}

	if coll.scenario == nil {
		return nil, fmt.Errorf("no Scenario{} definition found")
	}
	defs.Scenario = compileScenario(coll.scenario)

	for _, raw := range coll.kinds {
		kind, err := compileKind(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling kind %s: %w", raw.name, err)
		}
		defs.Kinds[kind.Name] = kind
	}

	for _, raw := range coll.entities {
		defs.Entities = append(defs.Entities, compileEntity(raw))
	}

	for _, raw := range coll.actions {
		action, err := compileAction(raw)
		if err != nil {
			return nil, fmt.Errorf("compiling action %s: %w", raw.name, err)
		}
		defs.Actions[action.Name] = action
	}

	for _, raw := range coll.rules {
		defs.Rules = append(defs.Rules, compileRule(raw))
	}

	for _, raw := range coll.axes {
		defs.Axes = append(defs.Axes, types.AxisDef{
			Name:        raw.name,
			Description: getString(raw.table, "description"),
		})
	}

	if coll.score != nil {
		defs.Score = compileScore(coll.score)
	}

	for _, tbl := range coll.decay {
		defs.Decay = append(defs.Decay, types.DecayDef{
			Kind:   getString(tbl, "kind"),
			Field:  getString(tbl, "field"),
			Delta:  getNumber(tbl, "delta"),
			Status: getString(tbl, "status"),
		})
	}

	for _, tbl := range coll.deadlines {
		defs.Deadlines = append(defs.Deadlines, types.DeadlineDef{
			Kind:       getString(tbl, "kind"),
			Status:     getString(tbl, "status"),
			AfterSteps: getInt(tbl, "after_steps"),
			EscalateTo: getString(tbl, "escalate_to"),
			Note:       getString(tbl, "note"),
			Axes:       tableToFloatMap(getTable(tbl, "axes")),
		})
	}

	if coll.endWhen != nil {
		defs.EndWhen = compileConditions(coll.endWhen)
	}

	return defs, nil
}

func compileScenario(tbl *lua.LTable) state.ScenarioDef {
	return state.ScenarioDef{
		ID:          getString(tbl, "id"),
		Title:       getString(tbl, "title"),
		Author:      getString(tbl, "author"),
		Version:     getString(tbl, "version"),
		Description: getString(tbl, "description"),
		MaxSteps:    getInt(tbl, "max_steps"),
	}
}

func compileKind(raw rawKind) (types.KindDef, error) {
	tbl := raw.table
	kind := types.KindDef{
		Name:        raw.name,
		Fields:      map[string]types.FieldDef{},
		Statuses:    tableToStringSlice(getTable(tbl, "statuses")),
		Initial:     getString(tbl, "initial"),
		Transitions: map[string][]string{},
	}

	if transTbl := getTable(tbl, "transitions"); transTbl != nil {
		transTbl.ForEach(func(k, v lua.LValue) {
			from, ok := k.(lua.LString)
			if !ok {
				return
			}
			if toTbl, ok := v.(*lua.LTable); ok {
				kind.Transitions[string(from)] = tableToStringSlice(toTbl)
			}
		})
	}

	if fieldsTbl := getTable(tbl, "fields"); fieldsTbl != nil {
		var ferr error
		fieldsTbl.ForEach(func(k, v lua.LValue) {
			name, ok := k.(lua.LString)
			if !ok {
				return
			}
			fieldTbl, ok := v.(*lua.LTable)
			if !ok {
				ferr = fmt.Errorf("field %s must be a table", name)
				return
			}
			kind.Fields[string(name)] = types.FieldDef{
				Name: string(name),
				Type: getString(fieldTbl, "type"),
				Min:  getFloatPtr(fieldTbl, "min"),
				Max:  getFloatPtr(fieldTbl, "max"),
				Enum: tableToStringSlice(getTable(fieldTbl, "values")),
			}
		})
		if ferr != nil {
			return kind, ferr
		}
	}

	return kind, nil
}

func compileEntity(raw rawEntity) types.EntityDef {
	tbl := raw.table
	return types.EntityDef{
		ID:     raw.id,
		Kind:   getString(tbl, "kind"),
		Status: getString(tbl, "status"),
		Fields: tableToAnyMap(getTable(tbl, "fields")),
	}
}

func compileAction(raw rawAction) (types.ActionDef, error) {
	tbl := raw.table
	action := types.ActionDef{
		Name:        raw.name,
		Description: getString(tbl, "description"),
		Axes:        tableToFloatMap(getTable(tbl, "axes")),
	}

	if argsTbl := getTable(tbl, "args"); argsTbl != nil {
		for i := 1; i <= argsTbl.MaxN(); i++ {
			argTbl, ok := argsTbl.RawGetInt(i).(*lua.LTable)
			if !ok {
				return action, fmt.Errorf("arg %d must be a table", i)
			}
			arg := types.ArgDef{
				Name:     getString(argTbl, "name"),
				Type:     getString(argTbl, "type"),
				Required: getBool(argTbl, "required", false),
				Enum:     tableToStringSlice(getTable(argTbl, "values")),
				Kind:     getString(argTbl, "kind"),
			}
			if arg.Name == "" {
				return action, fmt.Errorf("arg %d has no name", i)
			}
			action.Args = append(action.Args, arg)
		}
	}

	if effTbl := getTable(tbl, "effects"); effTbl != nil {
		action.Effects = compileEffects(effTbl)
	}

	return action, nil
}

func compileRule(raw rawRule) types.RuleDef {
	rule := types.RuleDef{
		ID:          raw.id,
		Action:      raw.action,
		Message:     getString(raw.opts, "message"),
		Penalty:     tableToFloatMap(getTable(raw.opts, "penalty")),
		SourceOrder: raw.order,
	}
	if raw.conditions != nil {
		rule.Conditions = compileConditions(raw.conditions)
	}
	return rule
}

func compileScore(tbl *lua.LTable) types.ScoreDef {
	score := types.ScoreDef{
		Base: getNumber(tbl, "base"),
		Min:  getFloatPtr(tbl, "min"),
		Max:  getFloatPtr(tbl, "max"),
	}
	if termsTbl := getTable(tbl, "terms"); termsTbl != nil {
		for i := 1; i <= termsTbl.MaxN(); i++ {
			termTbl, ok := termsTbl.RawGetInt(i).(*lua.LTable)
			if !ok {
				continue
			}
			score.Terms = append(score.Terms, types.ScoreTerm{
				Counter:   getString(termTbl, "counter"),
				Kind:      getString(termTbl, "kind"),
				Field:     getString(termTbl, "field"),
				Aggregate: getString(termTbl, "aggregate"),
				Status:    getString(termTbl, "status"),
				Weight:    getNumber(termTbl, "weight"),
			})
		}
	}
	return score
}

func compileConditions(tbl *lua.LTable) []types.Condition {
	var conditions []types.Condition
	tbl.ForEach(func(k, v lua.LValue) {
		// Only process integer-keyed entries (array elements).
		if _, ok := k.(lua.LNumber); !ok {
			return
		}
		if condTbl, ok := v.(*lua.LTable); ok {
			conditions = append(conditions, compileCondition(condTbl))
		}
	})
	return conditions
}

func compileCondition(tbl *lua.LTable) types.Condition {
	condType := getString(tbl, "type")

	if condType == "not" {
		if innerTbl := getTable(tbl, "inner"); innerTbl != nil {
			inner := compileCondition(innerTbl)
			return types.Condition{Type: "not", Inner: &inner}
		}
	}

	params := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			key := string(ks)
			if key != "type" {
				params[key] = toGoValue(v)
			}
		}
	})

	return types.Condition{Type: condType, Params: params}
}

func compileEffects(tbl *lua.LTable) []types.Effect {
	var effects []types.Effect
	tbl.ForEach(func(k, v lua.LValue) {
		if _, ok := k.(lua.LNumber); !ok {
			return
		}
		if effTbl, ok := v.(*lua.LTable); ok {
			effects = append(effects, compileEffect(effTbl))
		}
	})
	return effects
}

func compileEffect(tbl *lua.LTable) types.Effect {
	effType := getString(tbl, "type")
	params := map[string]any{}
	tbl.ForEach(func(k, v lua.LValue) {
		if ks, ok := k.(lua.LString); ok {
			key := string(ks)
			if key != "type" {
				params[key] = toGoValue(v)
			}
		}
	})
	return types.Effect{Type: effType, Params: params}
}
