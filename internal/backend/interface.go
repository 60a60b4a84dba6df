// Package backend assembles the document store, the device key/value store
// and the optional change broadcast from configuration.
package backend

import (
	"context"

	"moneymate/internal/docstore"
	"moneymate/internal/session"
)

// Pinger reports whether the store can currently be reached.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CleanupFunc releases backend resources.
type CleanupFunc func(ctx context.Context) error

// BackendResult is everything a binary needs from the storage layer.
type BackendResult struct {
	Store docstore.Store
	KV    session.KV
	// Health is nil when the store cannot fail independently of the process.
	Health Pinger
	// Background runs the change broadcast consumer, when one is configured.
	// It returns when ctx is done.
	Background func(ctx context.Context) error
	Cleanup    CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type Config struct {
	Type BackendType

	// SQLiteDBPath holds the device key/value table for every type, and the
	// documents too when Type is sqlite.
	SQLiteDBPath string

	MongoURI string
	MongoDB  string

	PostgresURL string

	AMQPURL      string
	AMQPExchange string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	MongoBackend    BackendType = "mongo"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, MongoBackend, PostgresBackend:
		return true
	default:
		return false
	}
}
