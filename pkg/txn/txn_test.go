package txn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/octopusdb/octopusdb/pkg/octerr"
)

func TestCommitRunsOpsInOrder(t *testing.T) {
	m := NewManager()
	tx := m.Start()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		if err := tx.Add(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		}); err != nil {
			t.Fatalf("add %d: %v", i, err)
		}
	}

	if err := m.Commit(context.Background(), tx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestCommitStopsOnFirstError(t *testing.T) {
	m := NewManager()
	tx := m.Start()

	ran := 0
	boom := errors.New("boom")
	tx.Add(func(ctx context.Context) error { ran++; return nil })
	tx.Add(func(ctx context.Context) error { ran++; return boom })
	tx.Add(func(ctx context.Context) error { ran++; return nil })

	err := m.Commit(context.Background(), tx.ID)
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if ran != 2 {
		t.Fatalf("expected 2 ops to have run, got %d", ran)
	}
}

func TestAddAfterCommitFails(t *testing.T) {
	m := NewManager()
	tx := m.Start()
	if err := m.Commit(context.Background(), tx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := tx.Add(func(ctx context.Context) error { return nil }); !errors.Is(err, octerr.ErrAlreadyCommitted) {
		t.Fatalf("expected ErrAlreadyCommitted, got %v", err)
	}
}

func TestRollbackClearsOpsAndReleasesLock(t *testing.T) {
	m := NewManager()
	tx := m.Start()
	ran := false
	tx.Add(func(ctx context.Context) error { ran = true; return nil })

	if err := m.Rollback(tx.ID); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if ran {
		t.Fatalf("rolled-back op should not have run")
	}
	if err := m.Commit(context.Background(), tx.ID); !errors.Is(err, octerr.ErrNotFound) {
		t.Fatalf("committing a rolled-back transaction should be ErrNotFound, got %v", err)
	}
}

func TestRollbackAfterCommitIsRejected(t *testing.T) {
	m := NewManager()
	tx := m.Start()
	if err := m.Commit(context.Background(), tx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := m.Rollback(tx.ID); !errors.Is(err, octerr.ErrNotFound) {
		t.Fatalf("rolling back an already-committed (and deregistered) transaction should be ErrNotFound, got %v", err)
	}
}

// TestSecondStartBlocksUntilFirstEnds grounds spec.md §8 scenario 6: a
// second concurrent transaction serializes behind the first via the
// internal reentrant mutex, rather than running interleaved.
func TestSecondStartBlocksUntilFirstEnds(t *testing.T) {
	m := NewManager()
	tx1 := m.Start()

	var mu sync.Mutex
	var order []string
	started := make(chan struct{})

	go func() {
		close(started)
		tx2 := m.Start() // blocks until tx1 ends, since Start locks immediately
		mu.Lock()
		order = append(order, "tx2-started")
		mu.Unlock()
		m.Commit(context.Background(), tx2.ID)
	}()

	<-started
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	order = append(order, "tx1-committing")
	mu.Unlock()
	if err := m.Commit(context.Background(), tx1.ID); err != nil {
		t.Fatalf("commit tx1: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("tx2 never observed starting after tx1 committed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if order[0] != "tx1-committing" || order[1] != "tx2-started" {
		t.Fatalf("expected tx1 to commit before tx2 started, got %v", order)
	}
}
