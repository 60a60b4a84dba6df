// Package mongo is a docstore backend on MongoDB. Documents are stored as
// {_id, data, version, updatedAt}; writes are compare-and-swap on version and
// subscriptions follow a change stream, which needs a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"moneymate/internal/docstore"
)

// maxCASRetries bounds optimistic retries of one write under contention.
const maxCASRetries = 16

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	hub    *docstore.Hub

	mu       sync.Mutex
	watchers map[string]*watcher
}

type record struct {
	ID        string    `bson:"_id"`
	Data      bson.M    `bson:"data"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type watcher struct {
	refs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Connect dials uri and pings it before returning.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	slog.InfoContext(ctx, "Connected to MongoDB", "database", dbName)
	return &Store{
		client:   client,
		db:       client.Database(dbName),
		hub:      docstore.NewHub(),
		watchers: map[string]*watcher{},
	}, nil
}

// Close stops every change stream and disconnects.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = map[string]*watcher{}
	s.mu.Unlock()
	for _, w := range watchers {
		w.cancel()
		<-w.done
	}
	s.hub.Close()
	return s.client.Disconnect(ctx)
}

// Ping reports whether the server is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, docstore.ErrUnavailable, err)
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	rec, ok, err := s.find(ctx, collection, id)
	if err != nil || !ok {
		return docstore.Snapshot{}, err
	}
	return rec.snapshot(), nil
}

func (s *Store) find(ctx context.Context, collection, id string) (record, bool, error) {
	var rec record
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return record{}, false, nil
	}
	if err != nil {
		return record{}, false, unavailable("find document", err)
	}
	return rec, true, nil
}

func (r record) snapshot() docstore.Snapshot {
	data, _ := normalize(r.Data).(docstore.Document)
	if data == nil {
		data = docstore.Document{}
	}
	return docstore.Snapshot{Exists: true, Data: data, UpdatedAt: r.UpdatedAt}
}

func (s *Store) Create(ctx context.Context, collection, id string, data docstore.Document) (bool, error) {
	_, err := s.db.Collection(collection).InsertOne(ctx, record{
		ID:        id,
		Data:      bson.M(docstore.Replace(data)),
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("insert document", err)
	}
	return true, nil
}

// Set reads the document, applies data in memory, and swaps it in only if no
// other writer got there first, retrying otherwise.
func (s *Store) Set(ctx context.Context, collection, id string, data docstore.Document, opts docstore.SetOptions) error {
	coll := s.db.Collection(collection)
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		rec, exists, err := s.find(ctx, collection, id)
		if err != nil {
			return err
		}

		var next docstore.Document
		if opts.Merge {
			next = docstore.Merge(rec.snapshot().Data, data)
		} else {
			next = docstore.Replace(data)
		}
		now := time.Now().UTC()

		if !exists {
			_, err := coll.InsertOne(ctx, record{ID: id, Data: bson.M(next), Version: 1, UpdatedAt: now})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return unavailable("insert document", err)
			}
			return nil
		}

		res, err := coll.UpdateOne(ctx,
			bson.M{"_id": id, "version": rec.Version},
			bson.M{"$set": bson.M{"data": bson.M(next), "version": rec.Version + 1, "updatedAt": now}})
		if err != nil {
			return unavailable("update document", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("write %s: %w: too much contention", docstore.Key(collection, id), docstore.ErrUnavailable)
}

func (s *Store) DeleteField(ctx context.Context, collection, id string, path ...string) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}
	field := "data"
	for _, p := range path {
		field += "." + p
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$unset": bson.M{field: ""},
			"$inc":   bson.M{"version": 1},
			"$set":   bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return unavailable("unset field", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("delete %v in %s: %w", path, docstore.Key(collection, id), docstore.ErrNotFound)
	}
	return nil
}

// Subscribe opens (or joins) the change stream for the document before
// reading it, so no change between the read and the stream is lost.
func (s *Store) Subscribe(ctx context.Context, collection, id string, fn docstore.Listener) (docstore.CancelFunc, error) {
	key := docstore.Key(collection, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.watchers[key]
	if !ok {
		var err error
		w, err = s.startWatch(collection, id)
		if err != nil {
			return nil, err
		}
		s.watchers[key] = w
	}

	snap, err := s.Get(ctx, collection, id)
	if err != nil {
		if !ok {
			w.cancel()
			delete(s.watchers, key)
		}
		return nil, err
	}
	var initial *docstore.Snapshot
	if snap.Exists {
		initial = &snap
	}
	w.refs++
	cancel := s.hub.Add(key, initial, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.mu.Lock()
			defer s.mu.Unlock()
			w.refs--
			if w.refs == 0 && s.watchers[key] == w {
				w.cancel()
				delete(s.watchers, key)
			}
		})
	}, nil
}

func (s *Store) startWatch(collection, id string) (*watcher, error) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.openStream(ctx, collection, id, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	w := &watcher{cancel: cancel, done: make(chan struct{})}
	go s.follow(ctx, w, stream, collection, id)
	return w, nil
}

func (s *Store) openStream(ctx context.Context, collection, id string, resume bson.Raw) (*mongo.ChangeStream, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": id}}}}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resume != nil {
		opts.SetResumeAfter(resume)
	}
	stream, err := s.db.Collection(collection).Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, unavailable("watch collection", err)
	}
	return stream, nil
}

type changeEvent struct {
	OperationType string  `bson:"operationType"`
	FullDocument  *record `bson:"fullDocument"`
}

func (s *Store) follow(ctx context.Context, w *watcher, stream *mongo.ChangeStream, collection, id string) {
	defer close(w.done)
	key := docstore.Key(collection, id)
	attempt := 0
	for {
		for stream.Next(ctx) {
			attempt = 0
			var ev changeEvent
			if err := stream.Decode(&ev); err != nil {
				slog.WarnContext(ctx, "Undecodable change event", "key", key, "error", err)
				continue
			}
			switch {
			case ev.OperationType == "delete":
				s.hub.Publish(key, docstore.Snapshot{})
			case ev.FullDocument != nil:
				s.hub.Publish(key, ev.FullDocument.snapshot())
			}
		}
		resume := stream.ResumeToken()
		err := stream.Err()
		_ = stream.Close(context.Background())

		for {
			if ctx.Err() != nil {
				return
			}
			wait := time.Duration(1<<min(attempt, 5)) * time.Second
			slog.WarnContext(ctx, "Change stream interrupted", "key", key, "error", err, "retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			attempt++
			next, openErr := s.openStream(ctx, collection, id, resume)
			if openErr == nil {
				stream = next
				break
			}
			err = openErr
		}
	}
}

// normalize converts driver container types into plain JSON-shaped values.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(docstore.Document, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(docstore.Document, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(docstore.Document, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case int:
		return float64(t)
	case primitive.DateTime:
		return float64(t)
	default:
		return v
	}
}
