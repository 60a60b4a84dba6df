package wallet

import (
	"context"
	"sync"

	"moneymate/internal/core"
)

// Subscription is a channel view of the wallet. Values arrive on C in commit
// order. After Cancel returns, C is closed and yields nothing more.
type Subscription struct {
	c    chan core.Wallet
	done chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	once     sync.Once
	stop     Unsubscribe
}

// Stream opens a Subscription. It is cancelled when ctx is done or Cancel is
// called, whichever comes first.
func (a *Accessor) Stream(ctx context.Context) (*Subscription, error) {
	s := &Subscription{
		c:    make(chan core.Wallet),
		done: make(chan struct{}),
	}
	stop, err := a.Subscribe(ctx, s.deliver)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
	return s, nil
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan core.Wallet { return s.c }

// Done is closed once Cancel has started.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) deliver(w core.Wallet) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.c <- w:
	case <-s.done:
	}
}

// Cancel stops deliveries and closes C. It is idempotent and safe to call
// from the goroutine reading C.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.done)
		stop := s.stop
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		s.inflight.Wait()
		close(s.c)
	})
}
