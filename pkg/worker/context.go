// Package worker implements the execution context of spec.md §4.E,
// Component E: an isolated key-value store and TTL map, executing exactly
// one command at a time under a per-context mutex.
package worker

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/octerr"
	lua "github.com/yuin/gopher-lua"
)

// Result is the outcome of a successfully executed command; which field is
// meaningful depends on the command kind, mirroring the table of return
// shapes in spec.md §4.E. Failures are returned as a separate error.
type Result struct {
	// String holds a string-typed result ("OK", a value, a stringified
	// integer). Null results (e.g. GET on a missing key) are represented
	// by StringIsNull.
	String       string
	StringIsNull bool

	// Int holds integer-typed results (DEL, EXISTS, INCR/DECR's numeric
	// counterpart is carried in String per spec, list/set cardinalities,
	// EXPIRE/PERSIST/TTL).
	Int int64

	// Members holds SMEMBERS' result array.
	Members []string
}

// ttlEntry tracks a key's absolute expiration deadline and the eager
// removal timer backing it (spec.md §3 TTL record, I5).
type ttlEntry struct {
	deadline time.Time
	timer    *time.Timer
}

// Context is an execution context: a private store and TTL map, with
// commands executed one at a time under mu. No other context touches
// this store/ttl — that isolation is what lets the
// pool run many contexts in parallel without a shared lock on command
// execution itself (spec.md §5).
type Context struct {
	ID uint32

	// mu guards store/ttl against the rare cross-goroutine touch: the
	// eager-expiry timer callback runs on its own goroutine and must
	// delete expired keys even if the context is mid-command. Regular
	// command execution also takes mu, so within a single context there
	// is no unsynchronized access, but it is never held across a
	// suspension point.
	mu    sync.Mutex
	store map[string]command.Value
	ttl   map[string]*ttlEntry

	luaState *lua.LState
}

// New constructs an execution context with the given id and an empty
// store.
func New(id uint32) *Context {
	return &Context{
		ID:    id,
		store: make(map[string]command.Value),
		ttl:   make(map[string]*ttlEntry),
	}
}

// Close releases the context's Lua VM, if one was lazily created by EVAL.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.luaState != nil {
		c.luaState.Close()
		c.luaState = nil
	}
	for _, e := range c.ttl {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
}

// Execute runs cmd to completion against this context's store. It may be
// called from any goroutine; it holds c.mu for the whole command, so
// commands on one context never overlap (spec.md §5: "no suspension
// occurs inside a command handler").
func (c *Context) Execute(cmd command.Command) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch cmd.Kind {
	case command.Set:
		return c.execSetLocked(cmd)
	case command.Get:
		return c.execGetLocked(cmd)
	case command.Del:
		return c.execDelLocked(cmd)
	case command.Exists:
		return c.execExistsLocked(cmd)
	case command.Incr:
		return c.execIncrDecrLocked(cmd, 1)
	case command.Decr:
		return c.execIncrDecrLocked(cmd, -1)
	case command.Expire:
		return c.execExpireLocked(cmd)
	case command.TTL:
		return c.execTTLLocked(cmd)
	case command.Persist:
		return c.execPersistLocked(cmd)
	case command.LPush:
		return c.execPushLocked(cmd, true)
	case command.RPush:
		return c.execPushLocked(cmd, false)
	case command.LPop:
		return c.execPopLocked(cmd, true)
	case command.RPop:
		return c.execPopLocked(cmd, false)
	case command.SAdd:
		return c.execSAddLocked(cmd)
	case command.SRem:
		return c.execSRemLocked(cmd)
	case command.SMembers:
		return c.execSMembersLocked(cmd)
	case command.Eval:
		return c.execEvalLocked(cmd)
	default:
		return Result{}, fmt.Errorf("worker: unknown command kind %v", cmd.Kind)
	}
}

// expireIfDueLocked implements the lazy-expiry read-path check required
// before get/exists (spec.md §4.E): if ttl[k] has passed, the entry and its
// TTL record are removed before the caller proceeds.
func (c *Context) expireIfDueLocked(key string) {
	e, ok := c.ttl[key]
	if !ok {
		return
	}
	if !time.Now().After(e.deadline) {
		return
	}
	c.removeKeyLocked(key)
}

// removeKeyLocked deletes key from both store and ttl, stopping any
// pending eager-expiry timer.
func (c *Context) removeKeyLocked(key string) {
	delete(c.store, key)
	if e, ok := c.ttl[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.ttl, key)
	}
}

func (c *Context) execSetLocked(cmd command.Command) (Result, error) {
	c.store[cmd.Key] = command.NewString(cmd.Value)
	c.clearTTLLocked(cmd.Key)
	return Result{String: "OK"}, nil
}

func (c *Context) execGetLocked(cmd command.Command) (Result, error) {
	c.expireIfDueLocked(cmd.Key)
	v, ok := c.store[cmd.Key]
	if !ok {
		return Result{StringIsNull: true}, nil
	}
	if v.Kind != command.VString && v.Kind != command.VInt {
		return Result{}, octerr.ErrWrongType
	}
	return Result{String: v.AsDisplayString()}, nil
}

func (c *Context) execDelLocked(cmd command.Command) (Result, error) {
	if _, ok := c.store[cmd.Key]; !ok {
		return Result{Int: 0}, nil
	}
	c.removeKeyLocked(cmd.Key)
	return Result{Int: 1}, nil
}

func (c *Context) execExistsLocked(cmd command.Command) (Result, error) {
	c.expireIfDueLocked(cmd.Key)
	if _, ok := c.store[cmd.Key]; ok {
		return Result{Int: 1}, nil
	}
	return Result{Int: 0}, nil
}

func (c *Context) execIncrDecrLocked(cmd command.Command, delta int64) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		v = command.NewInt(0)
	} else if v.Kind == command.VString {
		n, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return Result{}, octerr.ErrNotInteger
		}
		v = command.NewInt(n)
	} else if v.Kind != command.VInt {
		return Result{}, octerr.ErrNotInteger
	}
	v.Int += delta
	v.Kind = command.VInt
	c.store[cmd.Key] = v
	return Result{String: v.AsDisplayString()}, nil
}

func (c *Context) execExpireLocked(cmd command.Command) (Result, error) {
	if _, ok := c.store[cmd.Key]; !ok {
		return Result{Int: 0}, nil
	}
	deadline := time.Now().Add(time.Duration(cmd.TTLSeconds) * time.Second)
	c.scheduleExpiryLocked(cmd.Key, deadline)
	return Result{Int: 1}, nil
}

func (c *Context) execTTLLocked(cmd command.Command) (Result, error) {
	e, ok := c.ttl[cmd.Key]
	if !ok {
		return Result{Int: -1}, nil
	}
	remaining := time.Until(e.deadline)
	if remaining <= 0 {
		return Result{Int: -1}, nil
	}
	seconds := int64((remaining + time.Second - time.Nanosecond) / time.Second)
	return Result{Int: seconds}, nil
}

func (c *Context) execPersistLocked(cmd command.Command) (Result, error) {
	if _, ok := c.ttl[cmd.Key]; !ok {
		return Result{Int: 0}, nil
	}
	c.clearTTLLocked(cmd.Key)
	return Result{Int: 1}, nil
}

// clearTTLLocked cancels any pending expiration for key without touching
// the stored value (used by SET and PERSIST).
func (c *Context) clearTTLLocked(key string) {
	if e, ok := c.ttl[key]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(c.ttl, key)
	}
}

// scheduleExpiryLocked installs (replacing any prior) the TTL deadline and
// an eager-removal timer for key (spec.md §3 TTL record: "eager (a
// scheduled callback removes the entry when the deadline fires)").
//
// The timer callback only ever deletes; it never races with command
// execution on this context because both take c.mu.
func (c *Context) scheduleExpiryLocked(key string, deadline time.Time) {
	c.clearTTLLocked(key)
	wait := time.Until(deadline)
	if wait < 0 {
		wait = 0
	}
	timer := time.AfterFunc(wait, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if e, ok := c.ttl[key]; ok && !time.Now().Before(e.deadline) {
			c.removeKeyLocked(key)
		}
	})
	c.ttl[key] = &ttlEntry{deadline: deadline, timer: timer}
}

func (c *Context) execPushLocked(cmd command.Command, left bool) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		v = command.Value{Kind: command.VList}
	} else if v.Kind != command.VList {
		return Result{}, octerr.ErrWrongType
	}
	if left {
		v.List = append([]string{cmd.Value}, v.List...)
	} else {
		v.List = append(v.List, cmd.Value)
	}
	c.store[cmd.Key] = v
	return Result{Int: int64(len(v.List))}, nil
}

func (c *Context) execPopLocked(cmd command.Command, left bool) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		return Result{StringIsNull: true}, nil
	}
	if v.Kind != command.VList {
		return Result{}, octerr.ErrWrongType
	}
	if len(v.List) == 0 {
		return Result{StringIsNull: true}, nil
	}

	var popped string
	if left {
		popped, v.List = v.List[0], v.List[1:]
	} else {
		last := len(v.List) - 1
		popped, v.List = v.List[last], v.List[:last]
	}

	if len(v.List) == 0 {
		c.removeKeyLocked(cmd.Key)
	} else {
		c.store[cmd.Key] = v
	}
	return Result{String: popped}, nil
}

func (c *Context) execSAddLocked(cmd command.Command) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		v = command.Value{Kind: command.VSet, Set: make(map[string]struct{})}
	} else if v.Kind != command.VSet {
		return Result{}, octerr.ErrWrongType
	}
	v.Set[cmd.Value] = struct{}{}
	c.store[cmd.Key] = v
	return Result{Int: int64(len(v.Set))}, nil
}

func (c *Context) execSRemLocked(cmd command.Command) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		return Result{Int: 0}, nil
	}
	if v.Kind != command.VSet {
		return Result{}, octerr.ErrWrongType
	}
	if _, present := v.Set[cmd.Value]; !present {
		return Result{Int: 0}, nil
	}
	delete(v.Set, cmd.Value)
	if len(v.Set) == 0 {
		c.removeKeyLocked(cmd.Key)
	}
	return Result{Int: 1}, nil
}

func (c *Context) execSMembersLocked(cmd command.Command) (Result, error) {
	v, ok := c.store[cmd.Key]
	if !ok {
		return Result{Members: []string{}}, nil
	}
	if v.Kind != command.VSet {
		return Result{}, octerr.ErrWrongType
	}
	members := make([]string, 0, len(v.Set))
	for m := range v.Set {
		members = append(members, m)
	}
	return Result{Members: members}, nil
}
