package async

import "sync"

// Fuse is an atomic boolean condition that starts false and may later
// be triggered exactly once. Listeners registered before or after the
// trigger both observe the same stored result (spec §4.D).
type Fuse struct {
	mu        sync.Mutex
	triggered bool
	value     interface{}
	err       error
	listeners map[*Future]struct{}
}

// NewFuse returns an untriggered fuse.
func NewFuse() *Fuse {
	return &Fuse{listeners: make(map[*Future]struct{})}
}

// Listen registers fut to be completed when the fuse triggers. If the
// fuse has already triggered, fut is completed immediately with the
// stored result.
func (f *Fuse) Listen(fut *Future) {
	f.mu.Lock()
	if f.triggered {
		value, err := f.value, f.err
		f.mu.Unlock()
		fut.Complete(value, err)
		return
	}
	f.listeners[fut] = struct{}{}
	f.mu.Unlock()
}

// Unlisten removes fut from the listener set. Idempotent.
func (f *Fuse) Unlisten(fut *Future) {
	f.mu.Lock()
	delete(f.listeners, fut)
	f.mu.Unlock()
}

// Trigger sets the fuse's result and completes every registered
// listener. Second and later calls are no-ops.
func (f *Fuse) Trigger(value interface{}, err error) {
	f.mu.Lock()
	if f.triggered {
		f.mu.Unlock()
		return
	}
	f.triggered = true
	f.value, f.err = value, err
	listeners := f.listeners
	f.listeners = make(map[*Future]struct{})
	f.mu.Unlock()

	for fut := range listeners {
		fut.Complete(value, err)
	}
}

// Triggered is an optimistic, lock-protected read of the fuse state.
func (f *Fuse) Triggered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggered
}

// Register acquires a fresh future, listens for it on the fuse, and
// returns a cancel function that unregisters it. Callers should defer
// the cancel function so the registration is removed on scope exit
// regardless of outcome (spec §4.D's "scoped listener-registration
// helper").
func (f *Fuse) Register() (*Future, func()) {
	fut := NewFuture()
	f.Listen(fut)
	return fut, func() { f.Unlisten(fut) }
}
