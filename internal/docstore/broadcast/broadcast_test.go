package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"moneymate/internal/amqp"
	"moneymate/internal/docstore"
	"moneymate/internal/docstore/memory"
)

// loopBus is an in-process fanout: every published message reaches every
// consumer, including the publisher's own.
type loopBus struct {
	mu       sync.Mutex
	handlers []func(*amqp.WalletChangedMessage) error
	sent     []*amqp.WalletChangedMessage
}

type busClient struct{ bus *loopBus }

func (c busClient) PublishWalletChanged(_ context.Context, msg *amqp.WalletChangedMessage) error {
	c.bus.mu.Lock()
	c.bus.sent = append(c.bus.sent, msg)
	hs := append([]func(*amqp.WalletChangedMessage) error(nil), c.bus.handlers...)
	c.bus.mu.Unlock()
	for _, h := range hs {
		_ = h(msg)
	}
	return nil
}

func (c busClient) ConsumeWalletChanged(ctx context.Context, h func(*amqp.WalletChangedMessage) error) error {
	c.bus.mu.Lock()
	c.bus.handlers = append(c.bus.handlers, h)
	c.bus.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (b *loopBus) consumers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}

func TestRemoteWriteReachesOtherProcess(t *testing.T) {
	shared := memory.New()
	bus := &loopBus{}
	a := New(shared, busClient{bus})
	b := New(shared, busClient{bus})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go a.Run(ctx)
	go b.Run(ctx)
	for bus.consumers() < 2 {
		time.Sleep(time.Millisecond)
	}

	got := make(chan float64, 4)
	stop, err := b.Subscribe(ctx, "wallets", "w", func(s docstore.Snapshot) { got <- s.Data["n"].(float64) })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := a.Set(ctx, "wallets", "w", docstore.Document{"n": 1.0}, docstore.SetOptions{Merge: true}); err != nil {
		t.Fatal(err)
	}
	select {
	case n := <-got:
		if n != 1 {
			t.Fatalf("got %v", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("remote change not delivered")
	}
}

func TestLocalWriteDeliveredOnceAndAnnounced(t *testing.T) {
	bus := &loopBus{}
	s := New(memory.New(), busClient{bus})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)
	for bus.consumers() < 1 {
		time.Sleep(time.Millisecond)
	}

	got := make(chan docstore.Snapshot, 4)
	stop, _ := s.Subscribe(ctx, "wallets", "w", func(snap docstore.Snapshot) { got <- snap })
	defer stop()

	created, err := s.Create(ctx, "wallets", "w", docstore.Document{"n": 1.0})
	if err != nil || !created {
		t.Fatalf("create: %v %v", created, err)
	}
	<-got
	select {
	case snap := <-got:
		t.Fatalf("own announcement delivered twice: %+v", snap)
	case <-time.After(30 * time.Millisecond):
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	if len(bus.sent) != 1 || bus.sent[0].Origin != s.Origin() || bus.sent[0].ID != "w" {
		t.Fatalf("unexpected announcements: %+v", bus.sent)
	}
}

func TestFailedWriteNotAnnounced(t *testing.T) {
	bus := &loopBus{}
	inner := memory.New()
	inner.FailWith(errors.New("offline"))
	s := New(inner, busClient{bus})

	err := s.Set(context.Background(), "wallets", "w", docstore.Document{}, docstore.SetOptions{})
	if !errors.Is(err, docstore.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if len(bus.sent) != 0 {
		t.Fatal("failed write was announced")
	}
}
