// Package storage is the SQLite backend. One database file holds both the
// device identity key/value table and a document table that implements
// docstore.Store for single-host deployments.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"moneymate/internal/docstore"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB

	// writeMu orders commits so hub deliveries follow commit order.
	writeMu sync.Mutex
	hub     *docstore.Hub
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, hub: docstore.NewHub(), now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	r.hub.Close()
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database file is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, docstore.ErrUnavailable, err)
}

// Get implements docstore.Reader.
func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	return r.get(ctx, r.db, collection, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLiteRepository) get(ctx context.Context, q querier, collection, id string) (docstore.Snapshot, error) {
	var (
		raw string
		at  int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT data, updated_at FROM documents WHERE collection = ? AND id = ?`,
		collection, id).Scan(&raw, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, unavailable("get document", err)
	}
	var doc docstore.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return docstore.Snapshot{}, fmt.Errorf("decode document %s: %w", docstore.Key(collection, id), err)
	}
	if doc == nil {
		doc = docstore.Document{}
	}
	return docstore.Snapshot{Exists: true, Data: doc, UpdatedAt: time.UnixMilli(at)}, nil
}

// Create implements docstore.Writer.
func (r *SQLiteRepository) Create(ctx context.Context, collection, id string, data docstore.Document) (bool, error) {
	created := false
	err := r.write(ctx, collection, id, func(tx *sql.Tx, cur docstore.Snapshot) (docstore.Document, error) {
		if cur.Exists {
			return nil, nil
		}
		created = true
		return docstore.Replace(data), nil
	})
	if err != nil {
		return false, err
	}
	if created {
		slog.InfoContext(ctx, "Document created", "collection", collection, "id", id)
	}
	return created, nil
}

// Set implements docstore.Writer.
func (r *SQLiteRepository) Set(ctx context.Context, collection, id string, data docstore.Document, opts docstore.SetOptions) error {
	return r.write(ctx, collection, id, func(_ *sql.Tx, cur docstore.Snapshot) (docstore.Document, error) {
		if opts.Merge {
			return docstore.Merge(cur.Data, data), nil
		}
		return docstore.Replace(data), nil
	})
}

// DeleteField implements docstore.Writer.
func (r *SQLiteRepository) DeleteField(ctx context.Context, collection, id string, path ...string) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	return r.write(ctx, collection, id, func(_ *sql.Tx, cur docstore.Snapshot) (docstore.Document, error) {
		if !cur.Exists {
			return nil, fmt.Errorf("delete %v in %s: %w", path, docstore.Key(collection, id), docstore.ErrNotFound)
		}
		if err := docstore.DeletePath(cur.Data, path); err != nil {
			return nil, err
		}
		return cur.Data, nil
	})
}

// write runs read-modify-write in one transaction. A nil document from fn
// means nothing to write.
func (r *SQLiteRepository) write(ctx context.Context, collection, id string, fn func(*sql.Tx, docstore.Snapshot) (docstore.Document, error)) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	cur, err := r.get(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	next, err := fn(tx, cur)
	if err != nil || next == nil {
		return err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	at := r.now()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		collection, id, string(raw), at.UnixMilli()); err != nil {
		return unavailable("write document", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("commit document", err)
	}

	r.hub.Publish(docstore.Key(collection, id), docstore.Snapshot{Exists: true, Data: next, UpdatedAt: at})
	return nil
}

// Subscribe implements docstore.Subscriber. Changes are seen only when they
// are written through this repository.
func (r *SQLiteRepository) Subscribe(ctx context.Context, collection, id string, fn docstore.Listener) (docstore.CancelFunc, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	cur, err := r.get(ctx, r.db, collection, id)
	if err != nil {
		return nil, err
	}
	var initial *docstore.Snapshot
	if cur.Exists {
		initial = &cur
	}
	return r.hub.Add(docstore.Key(collection, id), initial, fn), nil
}
