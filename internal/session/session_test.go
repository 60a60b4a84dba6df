package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/docstore/memory"
)

// countingStore counts Create calls that actually created a document.
type countingStore struct {
	*memory.Store
	mu      sync.Mutex
	creates int
}

func (c *countingStore) Create(ctx context.Context, coll, id string, data docstore.Document) (bool, error) {
	ok, err := c.Store.Create(ctx, coll, id, data)
	if ok {
		c.mu.Lock()
		c.creates++
		c.mu.Unlock()
	}
	return ok, err
}

func fixedClock() time.Time { return time.UnixMilli(1700000000000) }

func TestEnsureActiveWalletCreatesOnce(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	kv := NewMemoryKV()
	m := NewManager(kv, store, WithClock(fixedClock))
	ctx := context.Background()

	first, err := m.EnsureActiveWallet(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Validate(); err != nil {
		t.Fatalf("generated id invalid: %v", err)
	}
	second, err := m.EnsureActiveWallet(ctx)
	if err != nil || second != first {
		t.Fatalf("expected %q, got %q (err=%v)", first, second, err)
	}
	if store.creates != 1 {
		t.Fatalf("expected one document, got %d creates", store.creates)
	}

	snap, _ := store.Get(ctx, DefaultCollection, string(first))
	w, err := core.DecodeWallet(snap.Data)
	if err != nil || w.CreatedAt != 1700000000000 || len(w.Months) != 0 {
		t.Fatalf("unexpected document: %+v err=%v", w, err)
	}
}

func TestEnsureActiveWalletConcurrent(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	m := NewManager(NewMemoryKV(), store)

	var wg sync.WaitGroup
	ids := make([]core.WalletID, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.EnsureActiveWallet(context.Background())
			if err != nil {
				t.Error(err)
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()
	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("callers disagree: %v", ids)
		}
	}
	if store.creates != 1 {
		t.Fatalf("expected one document, got %d", store.creates)
	}
}

// gatedKV holds reads until gate is closed and fails those whose context
// was cancelled meanwhile.
type gatedKV struct {
	*MemoryKV
	entered chan struct{}
	once    sync.Once
	gate    chan struct{}
}

func (g *gatedKV) GetValue(ctx context.Context, key string) (string, bool, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.gate
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	return g.MemoryKV.GetValue(ctx, key)
}

func TestEnsureActiveWalletSurvivesCancelledFirstCaller(t *testing.T) {
	kv := &gatedKV{MemoryKV: NewMemoryKV(), entered: make(chan struct{}), gate: make(chan struct{})}
	store := memory.New()
	defer store.Close()
	m := NewManager(kv, store, WithClock(fixedClock))

	type result struct {
		id  core.WalletID
		err error
	}
	first, second := make(chan result, 1), make(chan result, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		id, err := m.EnsureActiveWallet(ctx)
		first <- result{id, err}
	}()
	<-kv.entered
	go func() {
		id, err := m.EnsureActiveWallet(context.Background())
		second <- result{id, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	close(kv.gate)

	r := <-second
	if r.err != nil {
		t.Fatalf("second caller failed: %v", r.err)
	}
	if err := r.id.Validate(); err != nil {
		t.Fatalf("invalid id %q: %v", r.id, err)
	}
	<-first
	if got, ok, _ := kv.MemoryKV.GetValue(context.Background(), WalletKey); !ok || got != string(r.id) {
		t.Fatalf("pointer = %q, want %q", got, r.id)
	}
}

func TestEnsureActiveWalletTrustsPointer(t *testing.T) {
	store := &countingStore{Store: memory.New()}
	kv := NewMemoryKV()
	_ = kv.SetValue(context.Background(), WalletKey, "wallet_existing")
	m := NewManager(kv, store)

	id, err := m.EnsureActiveWallet(context.Background())
	if err != nil || id != "wallet_existing" {
		t.Fatalf("got %q err=%v", id, err)
	}
	if store.creates != 0 {
		t.Fatal("existing pointer must not trigger a remote write")
	}
}

func TestSwitchToWallet(t *testing.T) {
	store := memory.New()
	kv := NewMemoryKV()
	m := NewManager(kv, store, WithClock(fixedClock))
	ctx := context.Background()

	target := core.WalletID("wallet_lz0abc123def")
	_, _ = store.Create(ctx, DefaultCollection, string(target), docstore.Document{
		"createdAt": 1.0,
		"months":    map[string]any{"March 2025": map[string]any{"income": 5.0}},
	})

	if err := m.SwitchToWallet(ctx, target); err != nil {
		t.Fatal(err)
	}
	got, ok, _ := m.CurrentWalletID(ctx)
	if !ok || got != target {
		t.Fatalf("pointer not switched: %q", got)
	}
	snap, _ := store.Get(ctx, DefaultCollection, string(target))
	if _, ok := snap.Data["months"].(map[string]any)["March 2025"]; !ok {
		t.Fatal("switching must not overwrite an existing wallet")
	}
}

func TestSwitchToWalletRejectsInvalid(t *testing.T) {
	kv := NewMemoryKV()
	m := NewManager(kv, memory.New())
	if err := m.SwitchToWallet(context.Background(), "nope"); !errors.Is(err, core.ErrInvalidWalletID) {
		t.Fatalf("expected ErrInvalidWalletID, got %v", err)
	}
	if _, ok, _ := m.CurrentWalletID(context.Background()); ok {
		t.Fatal("invalid id must not be persisted")
	}
}

func TestSwitchToWalletRemoteFailureKeepsPointer(t *testing.T) {
	store := memory.New()
	store.FailWith(errors.New("offline"))
	m := NewManager(NewMemoryKV(), store)

	err := m.SwitchToWallet(context.Background(), "wallet_abc")
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if id, ok, _ := m.CurrentWalletID(context.Background()); !ok || id != "wallet_abc" {
		t.Fatalf("pointer should have moved, got %q", id)
	}
}

func TestCurrentWalletIDIgnoresGarbage(t *testing.T) {
	kv := NewMemoryKV()
	_ = kv.SetValue(context.Background(), WalletKey, "not a wallet")
	m := NewManager(kv, memory.New())
	if _, ok, err := m.CurrentWalletID(context.Background()); ok || err != nil {
		t.Fatalf("expected absent, ok=%v err=%v", ok, err)
	}
}

func TestHandle(t *testing.T) {
	m := NewManager(NewMemoryKV(), memory.New(), WithCollection("shared"),
		WithIDGenerator(func(time.Time) core.WalletID { return "wallet_fixed" }))
	h, err := m.Handle(context.Background())
	if err != nil || h.WalletID != "wallet_fixed" || h.Collection != "shared" {
		t.Fatalf("unexpected handle %+v err=%v", h, err)
	}
}
