package capture

import (
	"sync"
	"sync/atomic"
)

// Inbox is a bounded hand-off between the capture loop and the processing
// loop. Put never blocks: when the inbox is full the oldest item is dropped,
// so the consumer always works on the freshest frames.
type Inbox[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	size   int
	closed bool
	drops  atomic.Uint64
	onDrop func(T)
}

// NewInbox creates an inbox holding at most size items (minimum 1).
// onDrop, if non-nil, is called for every item that is overwritten or left
// behind on Close, so resources such as Mats can be released.
func NewInbox[T any](size int, onDrop func(T)) *Inbox[T] {
	if size < 1 {
		size = 1
	}
	in := &Inbox[T]{
		items:  make([]T, 0, size),
		size:   size,
		onDrop: onDrop,
	}
	in.cond = sync.NewCond(&in.mu)
	return in
}

// Put adds an item, evicting the oldest when full. Items put after Close are
// dropped immediately.
func (in *Inbox[T]) Put(item T) {
	in.mu.Lock()

	if in.closed {
		in.mu.Unlock()
		in.drop(item)
		return
	}

	var evicted []T
	if len(in.items) == in.size {
		evicted = append(evicted, in.items[0])
		copy(in.items, in.items[1:])
		in.items = in.items[:in.size-1]
	}
	in.items = append(in.items, item)
	in.cond.Signal()

	in.mu.Unlock()

	for _, e := range evicted {
		in.drop(e)
	}
}

// Take blocks until an item is available or the inbox is closed. ok is false
// once the inbox is closed.
func (in *Inbox[T]) Take() (item T, ok bool) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for len(in.items) == 0 && !in.closed {
		in.cond.Wait()
	}
	if in.closed {
		return item, false
	}

	item = in.items[0]
	copy(in.items, in.items[1:])
	var zero T
	in.items[len(in.items)-1] = zero
	in.items = in.items[:len(in.items)-1]
	return item, true
}

// Close wakes any waiting Take and drops pending items. It is idempotent.
func (in *Inbox[T]) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	pending := in.items
	in.items = nil
	in.cond.Broadcast()
	in.mu.Unlock()

	for _, p := range pending {
		in.drop(p)
	}
}

// Len returns the number of queued items.
func (in *Inbox[T]) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.items)
}

// Drops returns how many items were discarded without being taken.
func (in *Inbox[T]) Drops() uint64 {
	return in.drops.Load()
}

func (in *Inbox[T]) drop(item T) {
	in.drops.Add(1)
	if in.onDrop != nil {
		in.onDrop(item)
	}
}
