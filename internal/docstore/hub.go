package docstore

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Hub fans snapshots out to in-process listeners. Each listener owns an
// ordered mailbox drained by its own goroutine, so a slow listener never
// blocks publishers or other listeners.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*mailbox]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: map[string]map[*mailbox]struct{}{}}
}

type mailbox struct {
	fn     Listener
	mu     sync.Mutex
	queue  []Snapshot
	closed bool
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once

	// deliver is held across each listener call; runner is the goroutine
	// making those calls.
	deliver sync.Mutex
	runner  atomic.Int64
}

// Add registers fn under key. When initial is non-nil it is queued before
// anything published afterwards. Callers that need a gap-free handover
// should hold their own write lock across reading initial and calling Add.
func (h *Hub) Add(key string, initial *Snapshot, fn Listener) CancelFunc {
	mb := &mailbox{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	if initial != nil {
		mb.push(*initial)
	}

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = map[*mailbox]struct{}{}
		h.subs[key] = set
	}
	set[mb] = struct{}{}
	h.mu.Unlock()

	go mb.run()

	return func() {
		mb.once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[key]; ok {
				delete(set, mb)
				if len(set) == 0 {
					delete(h.subs, key)
				}
			}
			h.mu.Unlock()
		})
		mb.close(true)
	}
}

// Publish queues snap for every listener of key. It never blocks on a
// listener.
func (h *Hub) Publish(key string, snap Snapshot) {
	h.mu.Lock()
	targets := make([]*mailbox, 0, len(h.subs[key]))
	for mb := range h.subs[key] {
		targets = append(targets, mb)
	}
	h.mu.Unlock()

	for _, mb := range targets {
		mb.push(snap)
	}
}

// Len reports how many listeners are registered for key.
func (h *Hub) Len(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[key])
}

// Keys lists the keys that have at least one listener.
func (h *Hub) Keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]string, 0, len(h.subs))
	for k := range h.subs {
		keys = append(keys, k)
	}
	return keys
}

// Close cancels every listener. Unlike a CancelFunc it does not wait for
// listener calls in progress.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.subs
	h.subs = map[string]map[*mailbox]struct{}{}
	h.mu.Unlock()

	for _, set := range all {
		for mb := range set {
			mb.close(false)
		}
	}
}

// close stops the mailbox. With wait it also waits for a listener call in
// progress, unless called from inside that listener.
func (m *mailbox) close(wait bool) {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		m.queue = nil
		close(m.done)
	}
	m.mu.Unlock()

	if !wait || m.runner.Load() == goroutineID() {
		return
	}
	m.deliver.Lock()
	m.deliver.Unlock()
}

func (m *mailbox) push(s Snapshot) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, s)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest snapshot. ok is false once the mailbox is closed.
func (m *mailbox) next() (Snapshot, bool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Snapshot{}, false, false
	}
	if len(m.queue) == 0 {
		return Snapshot{}, false, true
	}
	s := m.queue[0]
	m.queue[0] = Snapshot{}
	m.queue = m.queue[1:]
	return s, true, true
}

func (m *mailbox) run() {
	m.runner.Store(goroutineID())
	for {
		s, got, open := m.next()
		if !open {
			return
		}
		if got {
			s.Data = CloneDocument(s.Data)
			if !m.call(s) {
				return
			}
			continue
		}
		select {
		case <-m.wake:
		case <-m.done:
			return
		}
	}
}

// call runs the listener unless the mailbox closed after s was popped.
func (m *mailbox) call(s Snapshot) bool {
	m.deliver.Lock()
	defer m.deliver.Unlock()
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return false
	}
	m.fn(s)
	return true
}

// goroutineID parses the current goroutine's id from its stack header.
func goroutineID() int64 {
	var buf [64]byte
	line := strings.TrimPrefix(string(buf[:runtime.Stack(buf[:], false)]), "goroutine ")
	if i := strings.IndexByte(line, ' '); i > 0 {
		id, _ := strconv.ParseInt(line[:i], 10, 64)
		return id
	}
	return 0
}
