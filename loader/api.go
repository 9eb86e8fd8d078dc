package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerConditionHelpers(L)
	registerEffectHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Scenario { id = "...", title = "...", max_steps = n, ... }
	L.SetGlobal("Scenario", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.scenario = tbl
		return 0
	}))

	// Kind "name" { statuses, initial, transitions, fields } — curried:
	// Kind("name") returns a function that takes a table.
	L.SetGlobal("Kind", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.kinds = append(coll.kinds, rawKind{name: name, table: tbl})
			return 0
		}))
		return 1
	}))

	// Entity "id" { kind = "...", status = "...", fields = {...} } — curried.
	L.SetGlobal("Entity", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.entities = append(coll.entities, rawEntity{id: id, table: tbl})
			return 0
		}))
		return 1
	}))

	// Action "name" { args, effects, axes, description } — curried.
	L.SetGlobal("Action", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.actions = append(coll.actions, rawAction{name: name, table: tbl})
			return 0
		}))
		return 1
	}))

	// Rule("id", "action", conditions, { message, penalty })
	// conditions may be nil: Rule("id", "action", { message = ... }).
	L.SetGlobal("Rule", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		action := L.CheckString(2)

		var conditions *lua.LTable
		var opts *lua.LTable
		if arg4 := L.Get(4); arg4 != lua.LNil {
			// 4-arg form: Rule(id, action, conditions, opts)
			if t, ok := L.Get(3).(*lua.LTable); ok {
				conditions = t
			}
			opts = L.CheckTable(4)
		} else {
			// 3-arg form: Rule(id, action, opts)
			opts = L.CheckTable(3)
		}

		coll.rules = append(coll.rules, rawRule{
			id:         id,
			action:     action,
			conditions: conditions,
			opts:       opts,
			order:      coll.nextSourceOrder(),
		})
		return 0
	}))

	// Axis "name" { description = "..." } — curried.
	L.SetGlobal("Axis", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			tbl := L.CheckTable(1)
			coll.axes = append(coll.axes, rawAxis{name: name, table: tbl})
			return 0
		}))
		return 1
	}))

	// Score { base, min, max, terms = {...} }
	L.SetGlobal("Score", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.score = tbl
		return 0
	}))

	// Decay { kind, field, delta, status }
	L.SetGlobal("Decay", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.decay = append(coll.decay, tbl)
		return 0
	}))

	// Deadline { kind, status, after_steps, escalate_to, note, axes }
	L.SetGlobal("Deadline", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.deadlines = append(coll.deadlines, tbl)
		return 0
	}))

	// EndWhen { condition1, condition2, ... } — AND semantics.
	L.SetGlobal("EndWhen", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		coll.endWhen = tbl
		return 0
	}))
}

// condTable builds a condition table with type plus string pairs.
func condTable(L *lua.LState, condType string, pairs ...[2]string) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(condType))
	for _, p := range pairs {
		tbl.RawSetString(p[0], lua.LString(p[1]))
	}
	return tbl
}

func registerConditionHelpers(L *lua.LState) {
	// StatusIs("entity_or_{arg:ref}", "status")
	L.SetGlobal("StatusIs", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		status := L.CheckString(2)
		L.Push(condTable(L, "status_is", [2]string{"entity", entity}, [2]string{"status", status}))
		return 1
	}))

	// FieldIs("entity", "field", value)
	L.SetGlobal("FieldIs", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		field := L.CheckString(2)
		value := L.Get(3)
		tbl := condTable(L, "field_is", [2]string{"entity", entity}, [2]string{"field", field})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// FieldGt("entity", "field", threshold)
	L.SetGlobal("FieldGt", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		field := L.CheckString(2)
		value := L.CheckNumber(3)
		tbl := condTable(L, "field_gt", [2]string{"entity", entity}, [2]string{"field", field})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// FieldLt("entity", "field", threshold)
	L.SetGlobal("FieldLt", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		field := L.CheckString(2)
		value := L.CheckNumber(3)
		tbl := condTable(L, "field_lt", [2]string{"entity", entity}, [2]string{"field", field})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// CounterGt("counter", value)
	L.SetGlobal("CounterGt", L.NewFunction(func(L *lua.LState) int {
		counter := L.CheckString(1)
		value := L.CheckNumber(2)
		tbl := condTable(L, "counter_gt", [2]string{"counter", counter})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// CounterLt("counter", value)
	L.SetGlobal("CounterLt", L.NewFunction(func(L *lua.LState) int {
		counter := L.CheckString(1)
		value := L.CheckNumber(2)
		tbl := condTable(L, "counter_lt", [2]string{"counter", counter})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// FlagSet("flag")
	L.SetGlobal("FlagSet", L.NewFunction(func(L *lua.LState) int {
		flag := L.CheckString(1)
		L.Push(condTable(L, "flag_set", [2]string{"flag", flag}))
		return 1
	}))

	// FlagNot("flag")
	L.SetGlobal("FlagNot", L.NewFunction(func(L *lua.LState) int {
		flag := L.CheckString(1)
		L.Push(condTable(L, "flag_not", [2]string{"flag", flag}))
		return 1
	}))

	// ArgIs("arg", value)
	L.SetGlobal("ArgIs", L.NewFunction(func(L *lua.LState) int {
		arg := L.CheckString(1)
		value := L.Get(2)
		tbl := condTable(L, "arg_is", [2]string{"arg", arg})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// StepGt(n)
	L.SetGlobal("StepGt", L.NewFunction(func(L *lua.LState) int {
		value := L.CheckNumber(1)
		tbl := condTable(L, "step_gt")
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// StepLt(n)
	L.SetGlobal("StepLt", L.NewFunction(func(L *lua.LState) int {
		value := L.CheckNumber(1)
		tbl := condTable(L, "step_lt")
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// Exists("kind") or Exists("kind", "status")
	L.SetGlobal("Exists", L.NewFunction(func(L *lua.LState) int {
		kind := L.CheckString(1)
		status := L.OptString(2, "")
		L.Push(condTable(L, "exists", [2]string{"kind", kind}, [2]string{"status", status}))
		return 1
	}))

	// Not(condition)
	L.SetGlobal("Not", L.NewFunction(func(L *lua.LState) int {
		inner := L.CheckTable(1)
		tbl := condTable(L, "not")
		tbl.RawSetString("inner", inner)
		L.Push(tbl)
		return 1
	}))
}

// effTable builds an effect table with type plus string pairs.
func effTable(L *lua.LState, effType string, pairs ...[2]string) *lua.LTable {
	tbl := L.NewTable()
	tbl.RawSetString("type", lua.LString(effType))
	for _, p := range pairs {
		tbl.RawSetString(p[0], lua.LString(p[1]))
	}
	return tbl
}

func registerEffectHelpers(L *lua.LState) {
	// Note("text with {arg:x} templates")
	L.SetGlobal("Note", L.NewFunction(func(L *lua.LState) int {
		text := L.CheckString(1)
		L.Push(effTable(L, "note", [2]string{"text", text}))
		return 1
	}))

	// SetField("entity", "field", value)
	L.SetGlobal("SetField", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		field := L.CheckString(2)
		value := L.Get(3)
		tbl := effTable(L, "set_field", [2]string{"entity", entity}, [2]string{"field", field})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// AdjustField("entity", "field", delta)
	L.SetGlobal("AdjustField", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		field := L.CheckString(2)
		delta := L.CheckNumber(3)
		tbl := effTable(L, "adjust_field", [2]string{"entity", entity}, [2]string{"field", field})
		tbl.RawSetString("delta", delta)
		L.Push(tbl)
		return 1
	}))

	// SetStatus("entity", "status")
	L.SetGlobal("SetStatus", L.NewFunction(func(L *lua.LState) int {
		entity := L.CheckString(1)
		status := L.CheckString(2)
		L.Push(effTable(L, "set_status", [2]string{"entity", entity}, [2]string{"status", status}))
		return 1
	}))

	// Spawn("id", "kind", { status = "...", fields = {...} })
	L.SetGlobal("Spawn", L.NewFunction(func(L *lua.LState) int {
		id := L.CheckString(1)
		kind := L.CheckString(2)
		tbl := effTable(L, "spawn", [2]string{"id", id}, [2]string{"kind", kind})
		if opts, ok := L.Get(3).(*lua.LTable); ok {
			tbl.RawSetString("status", opts.RawGetString("status"))
			tbl.RawSetString("fields", opts.RawGetString("fields"))
		}
		L.Push(tbl)
		return 1
	}))

	// IncCounter("counter", amount)
	L.SetGlobal("IncCounter", L.NewFunction(func(L *lua.LState) int {
		counter := L.CheckString(1)
		amount := L.CheckNumber(2)
		tbl := effTable(L, "inc_counter", [2]string{"counter", counter})
		tbl.RawSetString("amount", amount)
		L.Push(tbl)
		return 1
	}))

	// SetCounter("counter", value)
	L.SetGlobal("SetCounter", L.NewFunction(func(L *lua.LState) int {
		counter := L.CheckString(1)
		value := L.CheckNumber(2)
		tbl := effTable(L, "set_counter", [2]string{"counter", counter})
		tbl.RawSetString("value", value)
		L.Push(tbl)
		return 1
	}))

	// SetFlag("flag", value)
	L.SetGlobal("SetFlag", L.NewFunction(func(L *lua.LState) int {
		flag := L.CheckString(1)
		value := L.CheckBool(2)
		tbl := effTable(L, "set_flag", [2]string{"flag", flag})
		tbl.RawSetString("value", lua.LBool(value))
		L.Push(tbl)
		return 1
	}))

	// EndSession()
	L.SetGlobal("EndSession", L.NewFunction(func(L *lua.LState) int {
		L.Push(effTable(L, "end_session"))
		return 1
	}))
}
