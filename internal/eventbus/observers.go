package eventbus

import (
	"slices"
	"sync"
)

// Observers is a set of callbacks for values of type T.
type Observers[T any] struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]func(T)
}

// Subscribe registers fn and returns a function that removes it. The
// returned function is idempotent.
func (o *Observers[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	o.mu.Lock()
	if o.subs == nil {
		o.subs = make(map[uint64]func(T))
	}
	o.next++
	id := o.next
	o.subs[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.subs, id)
		o.mu.Unlock()
	}
}

// Notify calls every subscriber in subscription order. The lock is not held
// during callbacks, so a callback may subscribe or unsubscribe.
func (o *Observers[T]) Notify(v T) {
	o.mu.RLock()
	ids := make([]uint64, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	fns := make(map[uint64]func(T), len(o.subs))
	for id, fn := range o.subs {
		fns[id] = fn
	}
	o.mu.RUnlock()

	slices.Sort(ids)
	for _, id := range ids {
		fns[id](v)
	}
}

// Len returns the number of subscribers.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs)
}
