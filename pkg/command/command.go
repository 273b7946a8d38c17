// Package command defines the tagged command and value variants that flow
// through OctopusDB's dispatch path, plus the stable structural digest used
// by the task queue to deduplicate identical pending submissions.
package command

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Kind enumerates every operation OctopusDB's execution contexts know how
// to run. It mirrors the command table in spec.md §4.E, plus the
// supplemental EVAL kind described in SPEC_FULL.md §3.1.
type Kind int

const (
	Set Kind = iota
	Get
	Del
	Exists
	Incr
	Decr
	Expire
	TTL
	Persist
	LPush
	RPush
	LPop
	RPop
	SAdd
	SRem
	SMembers
	Eval
)

// String renders the kind for logs and digest encoding.
func (k Kind) String() string {
	switch k {
	case Set:
		return "SET"
	case Get:
		return "GET"
	case Del:
		return "DEL"
	case Exists:
		return "EXISTS"
	case Incr:
		return "INCR"
	case Decr:
		return "DECR"
	case Expire:
		return "EXPIRE"
	case TTL:
		return "TTL"
	case Persist:
		return "PERSIST"
	case LPush:
		return "LPUSH"
	case RPush:
		return "RPUSH"
	case LPop:
		return "LPOP"
	case RPop:
		return "RPOP"
	case SAdd:
		return "SADD"
	case SRem:
		return "SREM"
	case SMembers:
		return "SMEMBERS"
	case Eval:
		return "EVAL"
	default:
		return "UNKNOWN"
	}
}

// Command is the tagged variant submitted by callers through the façade and
// shuttled by the pool and task queue down to an execution context.
//
// Only the fields relevant to Kind are populated; the façade is responsible
// for constructing well-formed commands, the execution context trusts them.
type Command struct {
	Kind       Kind
	Key        string
	Value      string
	TTLSeconds int64

	// Script and Keys are populated for Kind == Eval (SPEC_FULL.md §3.1).
	Script string
	Keys   []string
}

// Digest returns a stable structural hash of the command, used by the task
// queue as the dedup identity (spec.md I1). Two commands that are
// field-for-field equal always hash identically; the encoding is a simple
// delimited concatenation, not meant for anything beyond in-process
// equality comparison.
func (c Command) Digest() uint64 {
	h := xxhash.New()
	fmt.Fprintf(h, "%d|%s|%s|%d|%s|", c.Kind, c.Key, c.Value, c.TTLSeconds, c.Script)
	for _, k := range c.Keys {
		fmt.Fprintf(h, "%s,", k)
	}
	return h.Sum64()
}

// ValueKind tags the variant stored for a key (spec.md §3 Key-value entry).
type ValueKind int

const (
	VString ValueKind = iota
	VInt
	VList
	VSet
)

// Value is the tagged union stored per key in an execution context.
type Value struct {
	Kind ValueKind
	Str  string
	Int  int64
	List []string
	Set  map[string]struct{}
}

// NewString constructs a string-tagged value.
func NewString(s string) Value { return Value{Kind: VString, Str: s} }

// NewInt constructs an integer-tagged value (counter semantics).
func NewInt(i int64) Value { return Value{Kind: VInt, Int: i} }

// AsDisplayString renders a value the way GET/LPOP/etc. return it to a
// caller: integers render as their base-10 string form, matching the
// spec's "new value as string" result for incr/decr.
func (v Value) AsDisplayString() string {
	switch v.Kind {
	case VInt:
		return strconv.FormatInt(v.Int, 10)
	default:
		return v.Str
	}
}
