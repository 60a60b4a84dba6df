// Package storetest checks that a docstore backend honours the contract the
// wallet layer relies on.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"moneymate/internal/docstore"
)

// Run exercises store. Each subtest uses its own document id so backends
// may be shared across subtests.
func Run(t *testing.T, store docstore.Store) {
	t.Helper()
	var seq atomic.Int64
	id := func() string {
		return fmt.Sprintf("wallet_storetest_%d_%d", time.Now().UnixNano(), seq.Add(1))
	}
	const coll = "wallets"

	t.Run("absent document", func(t *testing.T) {
		snap, err := store.Get(context.Background(), coll, id())
		if err != nil || snap.Exists {
			t.Fatalf("expected absent, got %+v err=%v", snap, err)
		}
	})

	t.Run("create if absent", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := store.Create(ctx, coll, doc, docstore.Document{"createdAt": float64(i), "months": map[string]any{}})
				if err != nil {
					t.Error(err)
				}
				if ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		if wins.Load() != 1 {
			t.Fatalf("expected one creator, got %d", wins.Load())
		}
	})

	t.Run("merge isolation", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		mustCreate(t, store, coll, doc)
		var wg sync.WaitGroup
		for _, m := range []string{"January 2025", "February 2025", "March 2025", "April 2025"} {
			wg.Add(1)
			go func(m string) {
				defer wg.Done()
				patch := docstore.Document{"months": map[string]any{m: map[string]any{"income": 1.0}}}
				if err := store.Set(ctx, coll, doc, patch, docstore.SetOptions{Merge: true}); err != nil {
					t.Error(err)
				}
			}(m)
		}
		wg.Wait()
		snap, _ := store.Get(ctx, coll, doc)
		months, _ := snap.Data["months"].(map[string]any)
		if len(months) != 4 || snap.Data["createdAt"] != 1.0 {
			t.Fatalf("lost concurrent months: %v", snap.Data)
		}
	})

	t.Run("merge delete sentinel", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		mustCreate(t, store, coll, doc)
		set(t, store, coll, doc, docstore.Document{"months": map[string]any{"A": 1.0, "B": 2.0}})
		set(t, store, coll, doc, docstore.Document{"months": map[string]any{"A": docstore.Delete, "C": 3.0}})
		snap, _ := store.Get(ctx, coll, doc)
		want := map[string]any{"B": 2.0, "C": 3.0}
		if !reflect.DeepEqual(snap.Data["months"], want) {
			t.Fatalf("got %v", snap.Data["months"])
		}
	})

	t.Run("field delete scope", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		mustCreate(t, store, coll, doc)
		set(t, store, coll, doc, docstore.Document{"months": map[string]any{"A": 1.0, "B": 2.0}})
		if err := store.DeleteField(ctx, coll, doc, "months", "A"); err != nil {
			t.Fatal(err)
		}
		snap, _ := store.Get(ctx, coll, doc)
		if !reflect.DeepEqual(snap.Data["months"], map[string]any{"B": 2.0}) || snap.Data["createdAt"] != 1.0 {
			t.Fatalf("got %v", snap.Data)
		}
		if err := store.DeleteField(ctx, coll, id(), "months", "A"); !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("expected ErrNotFound on absent document, got %v", err)
		}
	})

	t.Run("subscription replay and order", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		mustCreate(t, store, coll, doc)
		set(t, store, coll, doc, docstore.Document{"n": 0.0})

		got := make(chan float64, 16)
		cancel, err := store.Subscribe(ctx, coll, doc, func(s docstore.Snapshot) {
			if n, ok := s.Data["n"].(float64); ok && s.Exists {
				got <- n
			}
		})
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		for i := 1; i <= 3; i++ {
			set(t, store, coll, doc, docstore.Document{"n": float64(i)})
		}
		last := -1.0
		for last < 3 {
			select {
			case n := <-got:
				if n < last {
					t.Fatalf("out of order: %v after %v", n, last)
				}
				last = n
			case <-time.After(5 * time.Second):
				t.Fatalf("timed out at %v", last)
			}
		}
	})

	t.Run("unsubscribe finality", func(t *testing.T) {
		ctx, doc := context.Background(), id()
		mustCreate(t, store, coll, doc)
		var count atomic.Int32
		cancel, err := store.Subscribe(ctx, coll, doc, func(docstore.Snapshot) { count.Add(1) })
		if err != nil {
			t.Fatal(err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for count.Load() == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
		before := count.Load()
		set(t, store, coll, doc, docstore.Document{"n": 1.0})
		time.Sleep(100 * time.Millisecond)
		if after := count.Load(); after != before {
			t.Fatalf("delivered after cancel: %d -> %d", before, after)
		}
	})
}

func mustCreate(t *testing.T, store docstore.Store, coll, id string) {
	t.Helper()
	if _, err := store.Create(context.Background(), coll, id, docstore.Document{"createdAt": 1.0, "months": map[string]any{}}); err != nil {
		t.Fatal(err)
	}
}

func set(t *testing.T, store docstore.Store, coll, id string, patch docstore.Document) {
	t.Helper()
	if err := store.Set(context.Background(), coll, id, patch, docstore.SetOptions{Merge: true}); err != nil {
		t.Fatal(err)
	}
}
