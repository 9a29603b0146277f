package lua

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// ErrAborted is returned when a script calls abort().
var ErrAborted = errors.New("plan aborted")

// Checker is the system state a script may query while building its plan.
type Checker interface {
	PackageInstalled(pkg string) bool
	FlatpakInstalled(ref string) bool
	ServiceEnabled(service string) bool
	ServiceActive(service string) bool
	CommandAvailable(command string) bool
	PackagesMatching(pattern string) []string
}

// Runtime evaluates Lua plan scripts in a sandboxed environment.
//
// A script describes itself with a global table
//
//	meta = { name = "...", title = "...", description = "..." }
//
// and defines plan(), which adds steps with normal(), privileged() and aur().
// packages_matching(pattern) returns the installed package names whose
// "name version" line contains pattern.
type Runtime struct {
	checker Checker
	logger  *slog.Logger
}

func NewRuntime(checker Checker) *Runtime {
	return &Runtime{
		checker: checker,
		logger:  slog.With("component", "lua"),
	}
}

// build is the state of one script evaluation.
type build struct {
	path    string
	plan    *models.Plan
	aborted bool
	reason  string
}

// IsScript checks if a file is a Lua plan.
func (r *Runtime) IsScript(path string) bool {
	return filepath.Ext(path) == ".lua"
}

// Describe loads the script and reads its metadata without calling plan().
func (r *Runtime) Describe(path string) (*models.Plan, error) {
	L, b, err := r.load(path)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	return b.plan, nil
}

// Build loads the script and calls plan() to collect the steps.
func (r *Runtime) Build(path string) (*models.Plan, error) {
	L, b, err := r.load(path)
	if err != nil {
		return nil, err
	}
	defer L.Close()

	fn, ok := L.GetGlobal("plan").(*lua.LFunction)
	if !ok {
		return nil, fmt.Errorf("script must define a 'plan' function")
	}

	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		if b.aborted {
			return nil, fmt.Errorf("%w: %s", ErrAborted, b.reason)
		}
		return nil, fmt.Errorf("plan execution failed: %w", err)
	}

	r.logger.Debug("Built plan.", "path", path, "steps", len(b.plan.Steps))
	return b.plan, nil
}

func (r *Runtime) load(path string) (*lua.LState, *build, error) {
	script, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read script: %w", err)
	}

	b := &build{path: path, plan: &models.Plan{Source: path}}

	L := lua.NewState(lua.Options{
		SkipOpenLibs: true, // Don't load any libraries by default
	})
	r.openSafeLibs(L)
	r.registerAPI(L, b)

	if err := L.DoString(string(script)); err != nil {
		L.Close()
		if b.aborted {
			return nil, nil, fmt.Errorf("%w: %s", ErrAborted, b.reason)
		}
		return nil, nil, fmt.Errorf("failed to load script: %w", err)
	}

	if meta, ok := L.GetGlobal("meta").(*lua.LTable); ok {
		b.plan.Name = lua.LVAsString(meta.RawGetString("name"))
		b.plan.Title = lua.LVAsString(meta.RawGetString("title"))
		b.plan.Description = lua.LVAsString(meta.RawGetString("description"))
	}
	if b.plan.Name == "" {
		b.plan.Name = strings.TrimSuffix(filepath.Base(path), ".lua")
	}
	if b.plan.Title == "" {
		b.plan.Title = b.plan.Name
	}

	return L, b, nil
}

// openSafeLibs loads only the safe standard libraries
func (r *Runtime) openSafeLibs(L *lua.LState) {
	lua.OpenBase(L)

	// Remove dangerous base functions
	L.SetGlobal("loadfile", lua.LNil)
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("load", lua.LNil)
	L.SetGlobal("loadstring", lua.LNil)
	L.SetGlobal("print", lua.LNil) // Use log() instead

	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func (r *Runtime) registerAPI(L *lua.LState, b *build) {
	L.SetGlobal("normal", L.NewFunction(func(L *lua.LState) int {
		return r.luaCommand(L, b, models.CommandNormal)
	}))
	L.SetGlobal("privileged", L.NewFunction(func(L *lua.LState) int {
		return r.luaCommand(L, b, models.CommandPrivileged)
	}))
	L.SetGlobal("aur", L.NewFunction(func(L *lua.LState) int {
		return r.luaAur(L, b)
	}))
	L.SetGlobal("title", L.NewFunction(func(L *lua.LState) int {
		b.plan.Title = L.CheckString(1)
		return 0
	}))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		r.logger.Info(L.CheckString(1), "script", b.path)
		return 0
	}))
	L.SetGlobal("abort", L.NewFunction(func(L *lua.LState) int {
		b.reason = L.OptString(1, "aborted by script")
		b.aborted = true
		// Raise an error to stop execution
		L.RaiseError("abort: %s", b.reason)
		return 0
	}))

	r.registerCheck(L, "installed", r.checker.PackageInstalled)
	r.registerCheck(L, "flatpak_installed", r.checker.FlatpakInstalled)
	r.registerCheck(L, "service_enabled", r.checker.ServiceEnabled)
	r.registerCheck(L, "service_active", r.checker.ServiceActive)
	r.registerCheck(L, "command_available", r.checker.CommandAvailable)
	L.SetGlobal("packages_matching", L.NewFunction(func(L *lua.LState) int {
		tbl := L.NewTable()
		for _, name := range r.checker.PackagesMatching(L.CheckString(1)) {
			tbl.Append(lua.LString(name))
		}
		L.Push(tbl)
		return 1
	}))
}

func (r *Runtime) registerCheck(L *lua.LState, name string, check func(string) bool) {
	L.SetGlobal(name, L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(check(L.CheckString(1))))
		return 1
	}))
}

// luaCommand implements normal(cmd, args, name) and privileged(cmd, args, name).
func (r *Runtime) luaCommand(L *lua.LState, b *build, t models.CommandType) int {
	command := L.CheckString(1)
	args := r.stringList(L, 2)
	name := L.CheckString(3)

	b.plan.Steps = append(b.plan.Steps, models.NewStep(t, command, args, name))
	return 0
}

// luaAur implements aur(args, name).
func (r *Runtime) luaAur(L *lua.LState, b *build) int {
	args := r.stringList(L, 1)
	name := L.CheckString(2)

	b.plan.Steps = append(b.plan.Steps, models.Aur(args, name))
	return 0
}

// stringList reads an optional array of strings at stack position n.
func (r *Runtime) stringList(L *lua.LState, n int) []string {
	tbl := L.OptTable(n, nil)
	if tbl == nil {
		return nil
	}

	list := make([]string, 0, tbl.Len())
	for i := 1; i <= tbl.Len(); i++ {
		switch v := tbl.RawGetInt(i).(type) {
		case lua.LString:
			list = append(list, string(v))
		case lua.LNumber:
			list = append(list, v.String())
		default:
			L.ArgError(n, fmt.Sprintf("argument %d must be a string, got %s", i, v.Type()))
		}
	}
	return list
}
