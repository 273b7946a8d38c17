package worker

import (
	"fmt"
	"strconv"

	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/octerr"
	lua "github.com/yuin/gopher-lua"
)

// execEvalLocked runs cmd.Script as a supplemental EVAL command
// (SPEC_FULL.md §3.1). The script runs to completion inside this single
// Execute call — no suspension, consistent with spec.md §5 — against a KV
// global table backed by closures over this context's own store/ttl maps.
// Exactly the commands GET/SET/INCR/DEL are exposed; list/set operations
// are deliberately not, since EVAL is meant for small read-modify-write
// scripts rather than a full command surface.
func (c *Context) execEvalLocked(cmd command.Command) (Result, error) {
	L := c.ensureLuaStateLocked()

	keys := L.NewTable()
	for i, k := range cmd.Keys {
		L.RawSetInt(keys, i+1, lua.LString(k))
	}
	L.SetGlobal("KEYS", keys)

	kv := L.NewTable()
	L.SetField(kv, "get", L.NewFunction(c.luaGet))
	L.SetField(kv, "set", L.NewFunction(c.luaSet))
	L.SetField(kv, "incr", L.NewFunction(c.luaIncr))
	L.SetField(kv, "del", L.NewFunction(c.luaDel))
	L.SetGlobal("KV", kv)

	if err := L.DoString(cmd.Script); err != nil {
		return Result{}, &octerr.OperationFailed{Cause: err}
	}

	ret := L.Get(-1)
	L.Pop(L.GetTop())
	if ret == lua.LNil {
		return Result{StringIsNull: true}, nil
	}
	return Result{String: ret.String()}, nil
}

func (c *Context) ensureLuaStateLocked() *lua.LState {
	if c.luaState == nil {
		c.luaState = lua.NewState(lua.Options{SkipOpenLibs: false})
	}
	return c.luaState
}

func (c *Context) luaGet(L *lua.LState) int {
	key := L.CheckString(1)
	c.expireIfDueLocked(key)
	v, ok := c.store[key]
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(v.AsDisplayString()))
	return 1
}

func (c *Context) luaSet(L *lua.LState) int {
	key := L.CheckString(1)
	value := L.CheckString(2)
	c.store[key] = command.NewString(value)
	c.clearTTLLocked(key)
	L.Push(lua.LString("OK"))
	return 1
}

func (c *Context) luaIncr(L *lua.LState) int {
	key := L.CheckString(1)
	v, ok := c.store[key]
	if !ok {
		v = command.NewInt(0)
	} else if n, err := strconv.ParseInt(v.Str, 10, 64); v.Kind == command.VString && err == nil {
		v = command.NewInt(n)
	} else if v.Kind != command.VInt {
		L.RaiseError("%s", fmt.Sprintf("KV.incr: %v", octerr.ErrNotInteger))
		return 0
	}
	v.Int++
	v.Kind = command.VInt
	c.store[key] = v
	L.Push(lua.LNumber(v.Int))
	return 1
}

func (c *Context) luaDel(L *lua.LState) int {
	key := L.CheckString(1)
	_, existed := c.store[key]
	if existed {
		c.removeKeyLocked(key)
	}
	if existed {
		L.Push(lua.LNumber(1))
	} else {
		L.Push(lua.LNumber(0))
	}
	return 1
}
