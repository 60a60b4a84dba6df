// Package session owns the device's notion of which wallet is active.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
)

// WalletKey is the device-local key holding the active wallet id.
const WalletKey = "CURRENT_WALLET_ID"

// DefaultCollection is where wallet documents live.
const DefaultCollection = "wallets"

// KV is the device-local key/value store.
type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	SetValue(ctx context.Context, key, value string) error
}

// Handle identifies the wallet a call operates on. It is resolved once per
// operation and passed down instead of read from ambient state.
type Handle struct {
	WalletID   core.WalletID
	Collection string
}

type Manager struct {
	kv         KV
	store      docstore.Writer
	collection string
	now        func() time.Time
	newID      func(time.Time) core.WalletID
	group      singleflight.Group
}

type Option func(*Manager)

func WithCollection(c string) Option {
	return func(m *Manager) {
		if c != "" {
			m.collection = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(fn func(time.Time) core.WalletID) Option {
	return func(m *Manager) { m.newID = fn }
}

func NewManager(kv KV, store docstore.Writer, opts ...Option) *Manager {
	m := &Manager{
		kv:         kv,
		store:      store,
		collection: DefaultCollection,
		now:        time.Now,
		newID:      core.NewWalletID,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Collection returns the document collection holding wallets.
func (m *Manager) Collection() string { return m.collection }

// EnsureActiveWallet returns the active wallet id, creating one on first use.
// An existing pointer is returned without checking the remote document.
// Concurrent callers share one creation.
func (m *Manager) EnsureActiveWallet(ctx context.Context) (core.WalletID, error) {
	v, err, _ := m.group.Do("ensure", func() (any, error) {
		// Shared by every concurrent caller, so one caller's cancellation
		// must not fail the others.
		ctx := context.WithoutCancel(ctx)
		id, ok, err := m.CurrentWalletID(ctx)
		if err != nil {
			return core.WalletID(""), err
		}
		if ok {
			return id, nil
		}

		now := m.now()
		id = m.newID(now)
		if err := m.createIfAbsent(ctx, id, now); err != nil {
			return core.WalletID(""), err
		}
		if err := m.kv.SetValue(ctx, WalletKey, string(id)); err != nil {
			return core.WalletID(""), fmt.Errorf("persist wallet id: %w", err)
		}
		slog.InfoContext(ctx, "Wallet created", "wallet_id", id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(core.WalletID), nil
}

// SwitchToWallet makes id the active wallet. The local pointer is the commit
// point: if the remote create fails afterwards the pointer already moved and
// the error is returned.
func (m *Manager) SwitchToWallet(ctx context.Context, id core.WalletID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := m.kv.SetValue(ctx, WalletKey, string(id)); err != nil {
		return fmt.Errorf("persist wallet id: %w", err)
	}
	if err := m.createIfAbsent(ctx, id, m.now()); err != nil {
		slog.WarnContext(ctx, "Switched wallet but remote create failed", "wallet_id", id, "error", err)
		return err
	}
	slog.InfoContext(ctx, "Switched wallet", "wallet_id", id)
	return nil
}

// CurrentWalletID reads the pointer without mutating anything. A stored
// value that is not a valid id is treated as absent.
func (m *Manager) CurrentWalletID(ctx context.Context) (core.WalletID, bool, error) {
	v, ok, err := m.kv.GetValue(ctx, WalletKey)
	if err != nil {
		return "", false, fmt.Errorf("read wallet id: %w", err)
	}
	if !ok || v == "" {
		return "", false, nil
	}
	id := core.WalletID(v)
	if err := id.Validate(); err != nil {
		slog.WarnContext(ctx, "Ignoring invalid stored wallet id", "value", v)
		return "", false, nil
	}
	return id, true, nil
}

// Handle resolves the active wallet, creating it when needed.
func (m *Manager) Handle(ctx context.Context) (Handle, error) {
	id, err := m.EnsureActiveWallet(ctx)
	if err != nil {
		return Handle{}, err
	}
	return Handle{WalletID: id, Collection: m.collection}, nil
}

func (m *Manager) createIfAbsent(ctx context.Context, id core.WalletID, now time.Time) error {
	doc, err := core.ToDocument(core.NewWallet(now))
	if err != nil {
		return fmt.Errorf("encode wallet: %w", err)
	}
	if _, err := m.store.Create(ctx, m.collection, string(id), doc); err != nil {
		return fmt.Errorf("create wallet %s: %w", id, err)
	}
	return nil
}

// MemoryKV is a KV for tests and ephemeral devices.
type MemoryKV struct {
	mu sync.Mutex
	m  map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: map[string]string{}}
}

func (k *MemoryKV) GetValue(_ context.Context, key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.m[key]
	return v, ok, nil
}

func (k *MemoryKV) SetValue(_ context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	return nil
}
