package command

import "testing"

func TestDigestStableForEqualCommands(t *testing.T) {
	a := Command{Kind: Set, Key: "k", Value: "v"}
	b := Command{Kind: Set, Key: "k", Value: "v"}
	if a.Digest() != b.Digest() {
		t.Fatalf("expected equal commands to produce equal digests")
	}
}

func TestDigestDiffersOnKeyOrValue(t *testing.T) {
	base := Command{Kind: Set, Key: "k", Value: "v"}
	variants := []Command{
		{Kind: Set, Key: "k2", Value: "v"},
		{Kind: Set, Key: "k", Value: "v2"},
		{Kind: Get, Key: "k", Value: "v"},
	}
	for _, v := range variants {
		if base.Digest() == v.Digest() {
			t.Fatalf("expected %+v to differ from %+v", base, v)
		}
	}
}

func TestDigestIncludesKeysSlice(t *testing.T) {
	a := Command{Kind: Eval, Script: "return 1", Keys: []string{"a", "b"}}
	b := Command{Kind: Eval, Script: "return 1", Keys: []string{"a", "c"}}
	if a.Digest() == b.Digest() {
		t.Fatalf("expected differing Keys to change the digest")
	}
}

func TestAsDisplayString(t *testing.T) {
	if got := NewString("hello").AsDisplayString(); got != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
	if got := NewInt(42).AsDisplayString(); got != "42" {
		t.Fatalf("got %q, want 42", got)
	}
	if got := NewInt(-7).AsDisplayString(); got != "-7" {
		t.Fatalf("got %q, want -7", got)
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		Set: "SET", Get: "GET", Del: "DEL", Exists: "EXISTS",
		Incr: "INCR", Decr: "DECR", Expire: "EXPIRE", TTL: "TTL",
		Persist: "PERSIST", LPush: "LPUSH", RPush: "RPUSH",
		LPop: "LPOP", RPop: "RPOP", SAdd: "SADD", SRem: "SREM",
		SMembers: "SMEMBERS", Eval: "EVAL",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
