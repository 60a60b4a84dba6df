// Package memory is an in-process docstore backend. It keeps documents in a
// map and is what tests and single-device runs use.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"moneymate/internal/docstore"
)

type Store struct {
	mu   sync.Mutex
	docs map[string]docstore.Document
	at   map[string]time.Time
	hub  *docstore.Hub
	now  func() time.Time
	fail error
}

func New() *Store {
	return &Store{
		docs: map[string]docstore.Document{},
		at:   map[string]time.Time{},
		hub:  docstore.NewHub(),
		now:  time.Now,
	}
}

// FailWith makes every subsequent call return err wrapped in
// docstore.ErrUnavailable. Pass nil to recover.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.fail != nil {
		return fmt.Errorf("%w: %v", docstore.ErrUnavailable, s.fail)
	}
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return docstore.Snapshot{}, err
	}
	return s.snapshotLocked(docstore.Key(collection, id)), nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data docstore.Document) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return false, err
	}
	key := docstore.Key(collection, id)
	if _, ok := s.docs[key]; ok {
		return false, nil
	}
	s.commitLocked(key, docstore.Replace(data))
	return true, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document, opts docstore.SetOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	key := docstore.Key(collection, id)
	var next docstore.Document
	if opts.Merge {
		next = docstore.Merge(docstore.CloneDocument(s.docs[key]), data)
	} else {
		next = docstore.Replace(data)
	}
	s.commitLocked(key, next)
	return nil
}

func (s *Store) DeleteField(ctx context.Context, collection, id string, path ...string) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return err
	}
	key := docstore.Key(collection, id)
	cur, ok := s.docs[key]
	if !ok {
		return fmt.Errorf("delete %v in %s: %w", path, key, docstore.ErrNotFound)
	}
	next := docstore.CloneDocument(cur)
	if err := docstore.DeletePath(next, path); err != nil {
		return err
	}
	s.commitLocked(key, next)
	return nil
}

// Subscribe registers fn while holding the write lock, so the initial
// snapshot and later changes form one gap-free sequence.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.Listener) (docstore.CancelFunc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	key := docstore.Key(collection, id)
	var initial *docstore.Snapshot
	if snap := s.snapshotLocked(key); snap.Exists {
		initial = &snap
	}
	return s.hub.Add(key, initial, fn), nil
}

// Close drops every subscription.
func (s *Store) Close() {
	s.hub.Close()
}

func (s *Store) snapshotLocked(key string) docstore.Snapshot {
	doc, ok := s.docs[key]
	if !ok {
		return docstore.Snapshot{}
	}
	return docstore.Snapshot{Exists: true, Data: docstore.CloneDocument(doc), UpdatedAt: s.at[key]}
}

func (s *Store) commitLocked(key string, doc docstore.Document) {
	s.docs[key] = doc
	s.at[key] = s.now()
	s.hub.Publish(key, s.snapshotLocked(key))
}
