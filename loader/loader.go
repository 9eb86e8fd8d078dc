package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ethoslab/ethoscore/engine/events"
	"github.com/ethoslab/ethoscore/engine/state"
)

// collector accumulates Lua definitions during file execution.
type collector struct {
	scenario  *lua.LTable
	kinds     []rawKind
	entities  []rawEntity
	actions   []rawAction
	rules     []rawRule
	axes      []rawAxis
	score     *lua.LTable
	decay     []*lua.LTable
	deadlines []*lua.LTable
	endWhen   *lua.LTable
	order     int
}

func (c *collector) nextSourceOrder() int {
	c.order++
	return c.order
}

// Load reads all .lua files from dir, compiles them into scenario
// definitions, validates references, and returns the immutable Defs.
// The Lua VM is discarded after loading. An events.yaml next to the
// Lua files becomes the scenario's injected-event table.
func Load(dir string) (*state.Defs, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory %s: %w", dir, err)
	}

	var luaFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".lua") {
			luaFiles = append(luaFiles, e.Name())
		}
	}
	if len(luaFiles) == 0 {
		return nil, fmt.Errorf("no .lua files found in %s", dir)
	}

	// Sort: scenario.lua first, rest alphabetical.
	luaFiles = sortedLuaFiles(luaFiles)

	// Create sandboxed VM.
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	openSafeLibs(L)
	sandbox(L)

	coll := &collector{}
	registerAPI(L, coll)

	for _, f := range luaFiles {
		path := filepath.Join(dir, f)
		if err := L.DoFile(path); err != nil {
			return nil, fmt.Errorf("executing %s: %w", f, err)
		}
	}

	defs, err := compile(coll)
	if err != nil {
		return nil, fmt.Errorf("compiling scenario data: %w", err)
	}

	// Optional environment-event table.
	eventsPath := filepath.Join(dir, "events.yaml")
	if _, err := os.Stat(eventsPath); err == nil {
		table, err := events.Load(eventsPath)
		if err != nil {
			return nil, fmt.Errorf("loading events.yaml: %w", err)
		}
		defs.Events = table
	}

	if err := validate(defs); err != nil {
		return nil, err
	}

	return defs, nil
}

// openSafeLibs opens only the safe subset of Lua standard libraries.
func openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// sandbox removes dangerous globals and functions.
func sandbox(L *lua.LState) {
	dangerous := []string{
		"dofile", "loadfile", "load", "loadstring",
		"rawset", "rawget", "rawequal",
		"collectgarbage",
	}
	for _, name := range dangerous {
		L.SetGlobal(name, lua.LNil)
	}

	// Remove math.randomseed to preserve determinism.
	if mathTbl := L.GetGlobal("math"); mathTbl != lua.LNil {
		if tbl, ok := mathTbl.(*lua.LTable); ok {
			tbl.RawSetString("randomseed", lua.LNil)
		}
	}
}

// sortedLuaFiles returns .lua files with scenario.lua first and the rest
// sorted alphabetically.
func sortedLuaFiles(files []string) []string {
	var scenarioFile string
	var others []string
	for _, f := range files {
		if f == "scenario.lua" {
			scenarioFile = f
		} else {
			others = append(others, f)
		}
	}
	sort.Strings(others)
	if scenarioFile != "" {
		return append([]string{scenarioFile}, others...)
	}
	return others
}
