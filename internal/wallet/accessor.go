// Package wallet reads, mutates and observes the active wallet document.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moneymate/internal/core"
	"moneymate/internal/docstore"
	"moneymate/internal/session"
)

var (
	ErrMonthNotFound       = errors.New("month not found")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// HandleSource resolves which wallet an operation targets.
type HandleSource interface {
	Handle(ctx context.Context) (session.Handle, error)
}

// Fixed returns a HandleSource that always resolves to h. Callers use it to
// pin one handle across several calls.
func Fixed(h session.Handle) HandleSource { return fixedHandle(h) }

type fixedHandle session.Handle

func (f fixedHandle) Handle(context.Context) (session.Handle, error) { return session.Handle(f), nil }

// Updater derives the next wallet from the current one. It receives a
// private copy and may modify it. Returning an error aborts the write.
type Updater func(core.Wallet) (core.Wallet, error)

// Unsubscribe stops a callback subscription. After it returns onChange is
// not running and is never called again, except that a call from inside
// onChange does not wait for itself.
type Unsubscribe func()

type Accessor struct {
	store   docstore.Store
	handles HandleSource
	now     func() time.Time
}

func NewAccessor(store docstore.Store, handles HandleSource) *Accessor {
	return &Accessor{store: store, handles: handles, now: time.Now}
}

// ReadOnce returns the current wallet, or the empty wallet when the document
// does not exist. It never writes.
func (a *Accessor) ReadOnce(ctx context.Context) (core.Wallet, error) {
	h, err := a.handles.Handle(ctx)
	if err != nil {
		return core.Wallet{}, err
	}
	w, _, err := a.read(ctx, h)
	return w, err
}

func (a *Accessor) read(ctx context.Context, h session.Handle) (core.Wallet, bool, error) {
	snap, err := a.store.Get(ctx, h.Collection, string(h.WalletID))
	if err != nil {
		return core.Wallet{}, false, fmt.Errorf("read wallet %s: %w", h.WalletID, err)
	}
	if !snap.Exists {
		return core.EmptyWallet(), false, nil
	}
	return a.decode(ctx, h, snap), true, nil
}

func (a *Accessor) decode(ctx context.Context, h session.Handle, snap docstore.Snapshot) core.Wallet {
	w, err := core.DecodeWallet(snap.Data)
	if err != nil {
		slog.WarnContext(ctx, "Wallet document partly unreadable", "wallet_id", h.WalletID, "error", err)
	}
	return w
}

// Mutate applies update to the current wallet and writes the result as a
// single merge: months that changed are set whole, months that disappeared
// are deleted, and untouched months are not sent. Concurrent writers of the
// same month resolve last-write-wins.
func (a *Accessor) Mutate(ctx context.Context, update Updater) (core.Wallet, error) {
	h, err := a.handles.Handle(ctx)
	if err != nil {
		return core.Wallet{}, err
	}
	cur, exists, err := a.read(ctx, h)
	if err != nil {
		return core.Wallet{}, err
	}

	next, err := update(cur.Clone())
	if err != nil {
		return core.Wallet{}, err
	}
	next = next.Normalize()

	patch, changed, err := a.diff(cur, next, exists)
	if err != nil {
		return core.Wallet{}, err
	}
	if !changed {
		return next, nil
	}
	if err := a.store.Set(ctx, h.Collection, string(h.WalletID), patch, docstore.SetOptions{Merge: true}); err != nil {
		return core.Wallet{}, fmt.Errorf("write wallet %s: %w", h.WalletID, err)
	}
	return next, nil
}

func (a *Accessor) diff(cur, next core.Wallet, exists bool) (docstore.Document, bool, error) {
	months := docstore.Document{}
	for k, m := range next.Months {
		if old, ok := cur.Months[k]; ok && old.Equal(m) {
			continue
		}
		if err := k.Validate(); err != nil {
			return nil, false, err
		}
		if err := m.Validate(); err != nil {
			return nil, false, fmt.Errorf("month %s: %w", k, err)
		}
		doc, err := core.ToDocument(m)
		if err != nil {
			return nil, false, fmt.Errorf("encode month %s: %w", k, err)
		}
		months[string(k)] = doc
	}
	for k := range cur.Months {
		if _, ok := next.Months[k]; !ok {
			months[string(k)] = docstore.Delete
		}
	}

	patch := docstore.Document{}
	if len(months) > 0 || !exists {
		patch["months"] = months
	}
	if !exists {
		created := next.CreatedAt
		if created == 0 {
			created = a.now().UnixMilli()
		}
		patch["createdAt"] = created
	}
	return patch, len(patch) > 0, nil
}

// DeleteMonth removes exactly one month. Other months and fields are not
// touched. Deleting from a wallet that has no document is a no-op.
func (a *Accessor) DeleteMonth(ctx context.Context, key core.MonthKey) error {
	if err := docstore.ValidatePath([]string{"months", string(key)}); err != nil {
		return err
	}
	h, err := a.handles.Handle(ctx)
	if err != nil {
		return err
	}
	err = a.store.DeleteField(ctx, h.Collection, string(h.WalletID), "months", string(key))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete month %s: %w", key, err)
	}
	return nil
}

// Subscribe calls onChange with the current wallet when its document exists
// and then once per committed change, in order. Deliveries run on a goroutine
// owned by this subscription.
func (a *Accessor) Subscribe(ctx context.Context, onChange func(core.Wallet)) (Unsubscribe, error) {
	h, err := a.handles.Handle(ctx)
	if err != nil {
		return nil, err
	}
	logCtx := context.WithoutCancel(ctx)
	cancel, err := a.store.Subscribe(ctx, h.Collection, string(h.WalletID), func(snap docstore.Snapshot) {
		if !snap.Exists {
			return
		}
		onChange(a.decode(logCtx, h, snap))
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe wallet %s: %w", h.WalletID, err)
	}
	return Unsubscribe(cancel), nil
}
