package worker

import (
	"errors"
	"testing"
	"time"

	"github.com/octopusdb/octopusdb/pkg/command"
	"github.com/octopusdb/octopusdb/pkg/octerr"
)

func mustExec(t *testing.T, c *Context, cmd command.Command) Result {
	t.Helper()
	res, err := c.Execute(cmd)
	if err != nil {
		t.Fatalf("execute %v: %v", cmd.Kind, err)
	}
	return res
}

func TestStringLifecycle(t *testing.T) {
	c := New(1)
	defer c.Close()

	res := mustExec(t, c, command.Command{Kind: command.Set, Key: "name", Value: "Alice"})
	if res.String != "OK" {
		t.Fatalf("expected OK, got %q", res.String)
	}

	res = mustExec(t, c, command.Command{Kind: command.Get, Key: "name"})
	if res.StringIsNull || res.String != "Alice" {
		t.Fatalf("expected Alice, got %+v", res)
	}

	res = mustExec(t, c, command.Command{Kind: command.Del, Key: "name"})
	if res.Int != 1 {
		t.Fatalf("expected del=1, got %d", res.Int)
	}

	res = mustExec(t, c, command.Command{Kind: command.Get, Key: "name"})
	if !res.StringIsNull {
		t.Fatalf("expected null after del, got %+v", res)
	}

	res = mustExec(t, c, command.Command{Kind: command.Exists, Key: "name"})
	if res.Int != 0 {
		t.Fatalf("expected exists=0, got %d", res.Int)
	}
}

func TestCounterAndExpire(t *testing.T) {
	c := New(1)
	defer c.Close()

	mustExec(t, c, command.Command{Kind: command.Set, Key: "c", Value: "10"})
	res := mustExec(t, c, command.Command{Kind: command.Incr, Key: "c"})
	if res.String != "11" {
		t.Fatalf("expected 11, got %s", res.String)
	}
	res = mustExec(t, c, command.Command{Kind: command.Decr, Key: "c"})
	if res.String != "10" {
		t.Fatalf("expected 10, got %s", res.String)
	}

	res = mustExec(t, c, command.Command{Kind: command.Expire, Key: "c", TTLSeconds: 1})
	if res.Int != 1 {
		t.Fatalf("expected expire=1, got %d", res.Int)
	}

	res = mustExec(t, c, command.Command{Kind: command.TTL, Key: "c"})
	if res.Int <= 0 {
		t.Fatalf("expected positive ttl, got %d", res.Int)
	}

	time.Sleep(1200 * time.Millisecond)

	res = mustExec(t, c, command.Command{Kind: command.TTL, Key: "c"})
	if res.Int != -1 {
		t.Fatalf("expected ttl=-1 after expiry, got %d", res.Int)
	}

	res = mustExec(t, c, command.Command{Kind: command.Get, Key: "c"})
	if !res.StringIsNull {
		t.Fatalf("expected nil get after expiry, got %+v", res)
	}
}

func TestIncrOnNonIntegerFails(t *testing.T) {
	c := New(1)
	defer c.Close()

	mustExec(t, c, command.Command{Kind: command.Set, Key: "s", Value: "not-a-number"})
	_, err := c.Execute(command.Command{Kind: command.Incr, Key: "s"})
	if !errors.Is(err, octerr.ErrNotInteger) {
		t.Fatalf("expected ErrNotInteger, got %v", err)
	}
}

func TestPersistCancelsExpiry(t *testing.T) {
	c := New(1)
	defer c.Close()

	mustExec(t, c, command.Command{Kind: command.Set, Key: "k", Value: "v"})
	mustExec(t, c, command.Command{Kind: command.Expire, Key: "k", TTLSeconds: 1})

	res := mustExec(t, c, command.Command{Kind: command.Persist, Key: "k"})
	if res.Int != 1 {
		t.Fatalf("expected persist=1, got %d", res.Int)
	}

	res = mustExec(t, c, command.Command{Kind: command.TTL, Key: "k"})
	if res.Int != -1 {
		t.Fatalf("expected ttl=-1 after persist, got %d", res.Int)
	}
}

func TestListPushPop(t *testing.T) {
	c := New(1)
	defer c.Close()

	res := mustExec(t, c, command.Command{Kind: command.RPush, Key: "L", Value: "x"})
	if res.Int != 1 {
		t.Fatalf("expected len 1, got %d", res.Int)
	}
	res = mustExec(t, c, command.Command{Kind: command.RPush, Key: "L", Value: "y"})
	if res.Int != 2 {
		t.Fatalf("expected len 2, got %d", res.Int)
	}
	res = mustExec(t, c, command.Command{Kind: command.LPop, Key: "L"})
	if res.String != "x" {
		t.Fatalf("expected x, got %s", res.String)
	}
	res = mustExec(t, c, command.Command{Kind: command.RPop, Key: "L"})
	if res.String != "y" {
		t.Fatalf("expected y, got %s", res.String)
	}
	res = mustExec(t, c, command.Command{Kind: command.LPop, Key: "L"})
	if !res.StringIsNull {
		t.Fatalf("expected null on empty list, got %+v", res)
	}
}

func TestSetOps(t *testing.T) {
	c := New(1)
	defer c.Close()

	res := mustExec(t, c, command.Command{Kind: command.SAdd, Key: "s", Value: "a"})
	if res.Int != 1 {
		t.Fatalf("expected cardinality 1, got %d", res.Int)
	}
	res = mustExec(t, c, command.Command{Kind: command.SAdd, Key: "s", Value: "a"})
	if res.Int != 1 {
		t.Fatalf("expected cardinality unchanged at 1, got %d", res.Int)
	}
	res = mustExec(t, c, command.Command{Kind: command.SAdd, Key: "s", Value: "b"})
	if res.Int != 2 {
		t.Fatalf("expected cardinality 2, got %d", res.Int)
	}

	res = mustExec(t, c, command.Command{Kind: command.SMembers, Key: "s"})
	members := map[string]bool{}
	for _, m := range res.Members {
		members[m] = true
	}
	if !members["a"] || !members["b"] || len(members) != 2 {
		t.Fatalf("expected {a,b}, got %v", res.Members)
	}
}

func TestWrongTypeErrors(t *testing.T) {
	c := New(1)
	defer c.Close()

	mustExec(t, c, command.Command{Kind: command.Set, Key: "s", Value: "str"})
	_, err := c.Execute(command.Command{Kind: command.LPush, Key: "s", Value: "x"})
	if !errors.Is(err, octerr.ErrWrongType) {
		t.Fatalf("expected ErrWrongType on LPUSH over string, got %v", err)
	}

	_, err = c.Execute(command.Command{Kind: command.SAdd, Key: "s", Value: "x"})
	if !errors.Is(err, octerr.ErrWrongType) {
		t.Fatalf("expected ErrWrongType on SADD over string, got %v", err)
	}
}

func TestEvalScript(t *testing.T) {
	c := New(1)
	defer c.Close()

	mustExec(t, c, command.Command{Kind: command.Set, Key: "counter", Value: "41"})
	res := mustExec(t, c, command.Command{
		Kind:   command.Eval,
		Script: `return KV.incr(KEYS[1])`,
		Keys:   []string{"counter"},
	})
	if res.String != "42" {
		t.Fatalf("expected 42, got %q", res.String)
	}
}
