// Package postgres is a docstore backend on PostgreSQL. Documents live in a
// JSONB column; every write notifies a channel that subscribers LISTEN on.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"moneymate/internal/docstore"
)

// NotifyChannel carries "<collection>/<id>" for every committed write.
const NotifyChannel = "moneymate_documents"

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
	hub  *docstore.Hub

	// refreshMu orders reads that feed the hub.
	refreshMu sync.Mutex

	listenMu sync.Mutex
	ready    chan struct{}
	stop     context.CancelFunc
	done     chan struct{}
}

// Open connects, runs migrations and returns a ready store.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, hub: docstore.NewHub(), ready: make(chan struct{}), done: make(chan struct{})}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Close() {
	s.listenMu.Lock()
	stop := s.stop
	s.listenMu.Unlock()
	if stop != nil {
		stop()
		<-s.done
	}
	s.hub.Close()
	s.pool.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, docstore.ErrUnavailable, err)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	return get(ctx, s.pool, collection, id, false)
}

func get(ctx context.Context, q queryRower, collection, id string, lock bool) (docstore.Snapshot, error) {
	sql := `SELECT data, updated_at FROM documents WHERE collection = $1 AND id = $2`
	if lock {
		sql += ` FOR UPDATE`
	}
	var (
		raw []byte
		at  time.Time
	)
	err := q.QueryRow(ctx, sql, collection, id).Scan(&raw, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Snapshot{}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, unavailable("get document", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("decode document %s: %w", docstore.Key(collection, id), err)
	}
	if doc == nil {
		doc = docstore.Document{}
	}
	return docstore.Snapshot{Exists: true, Data: doc, UpdatedAt: at}, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data docstore.Document) (bool, error) {
	raw, err := json.Marshal(docstore.Replace(data))
	if err != nil {
		return false, fmt.Errorf("encode document: %w", err)
	}
	created := false
	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
			 ON CONFLICT (collection, id) DO NOTHING`,
			collection, id, raw)
		if err != nil {
			return unavailable("insert document", err)
		}
		if created = tag.RowsAffected() == 1; created {
			return notify(ctx, tx, collection, id)
		}
		return nil
	})
	return created, err
}

// Set locks the row, applies data and writes it back in one transaction. A
// missing row is inserted empty first so concurrent merges serialize on it.
func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document, opts docstore.SetOptions) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO documents (collection, id) VALUES ($1, $2) ON CONFLICT (collection, id) DO NOTHING`,
			collection, id); err != nil {
			return unavailable("reserve document", err)
		}
		cur, err := get(ctx, tx, collection, id, true)
		if err != nil {
			return err
		}

		var next docstore.Document
		if opts.Merge {
			next = docstore.Merge(cur.Data, data)
		} else {
			next = docstore.Replace(data)
		}
		raw, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`UPDATE documents SET data = $3, version = version + 1, updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			collection, id, raw); err != nil {
			return unavailable("update document", err)
		}
		return notify(ctx, tx, collection, id)
	})
}

// DeleteField removes the path with the JSONB #- operator.
func (s *Store) DeleteField(ctx context.Context, collection, id string, path ...string) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE documents SET data = data #- $3::text[], version = version + 1, updated_at = now()
			 WHERE collection = $1 AND id = $2`,
			collection, id, path)
		if err != nil {
			return unavailable("delete field", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete %v in %s: %w", path, docstore.Key(collection, id), docstore.ErrNotFound)
		}
		return notify(ctx, tx, collection, id)
	})
}

func notify(ctx context.Context, tx pgx.Tx, collection, id string) error {
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, docstore.Key(collection, id)); err != nil {
		return unavailable("notify", err)
	}
	return nil
}

// Subscribe starts the shared LISTEN connection on first use, then reads the
// document, so no notification between the two is missed.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.Listener) (docstore.CancelFunc, error) {
	if err := s.startListener(ctx); err != nil {
		return nil, err
	}

	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	snap, err := s.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var initial *docstore.Snapshot
	if snap.Exists {
		initial = &snap
	}
	return s.hub.Add(docstore.Key(collection, id), initial, fn), nil
}

func (s *Store) startListener(ctx context.Context) error {
	s.listenMu.Lock()
	if s.stop == nil {
		lctx, cancel := context.WithCancel(context.Background())
		s.stop = cancel
		go s.listen(lctx)
	}
	s.listenMu.Unlock()

	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) listen(ctx context.Context) {
	defer close(s.done)
	var readyOnce sync.Once
	for attempt := 0; ; attempt++ {
		err := s.listenConn(ctx, func() {
			attempt = 0
			readyOnce.Do(func() { close(s.ready) })
		})
		if ctx.Err() != nil {
			return
		}
		wait := time.Duration(1<<min(attempt, 5)) * time.Second
		slog.WarnContext(ctx, "Postgres listener interrupted", "error", err, "retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// listenConn holds one connection in LISTEN until it fails. After every
// (re)connect all watched documents are re-read to cover the gap.
func (s *Store) listenConn(ctx context.Context, onReady func()) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	if _, err := conn.Exec(ctx, "LISTEN "+NotifyChannel); err != nil {
		return err
	}
	onReady()
	s.refreshAll(ctx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		collection, id, ok := strings.Cut(n.Payload, "/")
		if !ok {
			continue
		}
		if err := s.refresh(ctx, collection, id); err != nil {
			slog.WarnContext(ctx, "Refresh after notification failed", "key", n.Payload, "error", err)
		}
	}
}

func (s *Store) refresh(ctx context.Context, collection, id string) error {
	key := docstore.Key(collection, id)
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.hub.Len(key) == 0 {
		return nil
	}
	snap, err := s.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	s.hub.Publish(key, snap)
	return nil
}

func (s *Store) refreshAll(ctx context.Context) {
	for _, key := range s.hub.Keys() {
		collection, id, _ := strings.Cut(key, "/")
		if err := s.refresh(ctx, collection, id); err != nil {
			slog.WarnContext(ctx, "Refresh after reconnect failed", "key", key, "error", err)
		}
	}
}
