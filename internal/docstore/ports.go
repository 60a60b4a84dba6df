// Package docstore defines the remote document store the wallet layer talks
// to, plus the pieces every backend shares: merge semantics and the
// in-process subscription hub.
package docstore

import (
	"context"
	"errors"
	"time"
)

// Document is a JSON-shaped value: nested maps, strings, numbers, bools,
// arrays and nil.
type Document = map[string]any

type (
	// Snapshot is the state of one document at a point in time.
	Snapshot struct {
		Exists    bool
		Data      Document
		UpdatedAt time.Time
	}

	// SetOptions controls Set. With Merge, maps in data are merged into the
	// stored document recursively and Delete removes fields; without it the
	// document is replaced.
	SetOptions struct {
		Merge bool
	}

	// Listener receives snapshots in commit order.
	Listener func(Snapshot)

	// CancelFunc stops a subscription. Once it returns the listener is not
	// running and will not be called again; called from inside the listener
	// it returns without waiting for that call. It is safe to call more than
	// once and from any goroutine.
	CancelFunc func()
)

// Ports for document backends.
type (
	Reader interface {
		Get(ctx context.Context, collection, id string) (Snapshot, error)
	}

	Writer interface {
		// Create stores data only if the document does not exist yet and
		// reports whether it did so. It never touches an existing document.
		Create(ctx context.Context, collection, id string, data Document) (created bool, err error)
		// Set writes data atomically: the write applies fully or not at all.
		Set(ctx context.Context, collection, id string, data Document, opts SetOptions) error
		// DeleteField removes exactly the field at path, leaving siblings alone.
		DeleteField(ctx context.Context, collection, id string, path ...string) error
	}

	Subscriber interface {
		// Subscribe delivers the current snapshot first when the document
		// exists, then one snapshot per committed change.
		Subscribe(ctx context.Context, collection, id string, fn Listener) (CancelFunc, error)
	}

	Store interface {
		Reader
		Writer
		Subscriber
	}
)

var (
	// ErrUnavailable marks failures of the backing store (network, auth,
	// driver). Callers decide whether to retry.
	ErrUnavailable = errors.New("document store unavailable")
	ErrInvalidPath = errors.New("invalid field path")
	ErrNotFound    = errors.New("document not found")
)

// Key joins collection and id for backends that need a flat key.
func Key(collection, id string) string {
	return collection + "/" + id
}
