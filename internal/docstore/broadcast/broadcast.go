// Package broadcast adds cross-process change notification to a docstore
// backend that only notifies within one process. Every successful write is
// announced on a bus; every announcement, local or remote, triggers a re-read
// that subscribers receive.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneymate/internal/amqp"
	"moneymate/internal/docstore"
)

// Bus carries change notifications between processes.
type Bus interface {
	PublishWalletChanged(ctx context.Context, msg *amqp.WalletChangedMessage) error
	ConsumeWalletChanged(ctx context.Context, handler func(*amqp.WalletChangedMessage) error) error
}

// Reconnector is implemented by buses that can recover a dead connection.
type Reconnector interface {
	Reconnect() error
}

type Store struct {
	inner  docstore.Store
	bus    Bus
	origin string
	hub    *docstore.Hub

	// refreshMu orders re-reads so subscribers see snapshots in read order.
	refreshMu sync.Mutex
}

func New(inner docstore.Store, bus Bus) *Store {
	return &Store{
		inner:  inner,
		bus:    bus,
		origin: uuid.NewString(),
		hub:    docstore.NewHub(),
	}
}

// Origin identifies this process on the bus.
func (s *Store) Origin() string { return s.origin }

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	return s.inner.Get(ctx, collection, id)
}

func (s *Store) Create(ctx context.Context, collection, id string, data docstore.Document) (bool, error) {
	created, err := s.inner.Create(ctx, collection, id, data)
	if err == nil && created {
		s.changed(ctx, collection, id)
	}
	return created, err
}

func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document, opts docstore.SetOptions) error {
	if err := s.inner.Set(ctx, collection, id, data, opts); err != nil {
		return err
	}
	s.changed(ctx, collection, id)
	return nil
}

func (s *Store) DeleteField(ctx context.Context, collection, id string, path ...string) error {
	if err := s.inner.DeleteField(ctx, collection, id, path...); err != nil {
		return err
	}
	s.changed(ctx, collection, id)
	return nil
}

// Subscribe delivers changes made by this process and by any other process
// on the bus.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.Listener) (docstore.CancelFunc, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	snap, err := s.inner.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var initial *docstore.Snapshot
	if snap.Exists {
		initial = &snap
	}
	return s.hub.Add(docstore.Key(collection, id), initial, fn), nil
}

// Run consumes remote notifications until ctx is done, reconnecting with
// backoff when the bus drops.
func (s *Store) Run(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := s.bus.ConsumeWalletChanged(ctx, s.handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := amqp.Backoff(attempt)
		slog.WarnContext(ctx, "Change feed interrupted", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if r, ok := s.bus.(Reconnector); ok {
			if err := r.Reconnect(); err != nil {
				slog.WarnContext(ctx, "Reconnect failed", "error", err)
				continue
			}
			attempt = -1
		}
	}
}

// Close drops local subscriptions.
func (s *Store) Close() {
	s.hub.Close()
}

func (s *Store) handle(msg *amqp.WalletChangedMessage) error {
	if msg.Origin == s.origin {
		return nil
	}
	return s.refresh(context.Background(), msg.Collection, msg.ID)
}

func (s *Store) changed(ctx context.Context, collection, id string) {
	if err := s.refresh(ctx, collection, id); err != nil {
		slog.WarnContext(ctx, "Refresh after write failed", "collection", collection, "id", id, "error", err)
	}
	msg := amqp.NewWalletChangedMessage(collection, id, s.origin)
	if err := s.bus.PublishWalletChanged(context.WithoutCancel(ctx), msg); err != nil {
		slog.WarnContext(ctx, "Failed to announce change", "collection", collection, "id", id, "error", err)
	}
}

func (s *Store) refresh(ctx context.Context, collection, id string) error {
	key := docstore.Key(collection, id)
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.hub.Len(key) == 0 {
		return nil
	}
	snap, err := s.inner.Get(context.WithoutCancel(ctx), collection, id)
	if err != nil {
		return err
	}
	s.hub.Publish(key, snap)
	return nil
}
