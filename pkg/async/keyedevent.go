package async

import "sync"

// KeyedEvent is a multimap of listening futures keyed by an arbitrary
// string (the central manager uses peripheral UUID strings). Trigger
// completes every listener currently registered for a key without
// removing them from the map; callers remove their own registration
// via Register's cancel function (spec §4.D).
type KeyedEvent struct {
	mu        sync.Mutex
	listeners map[string]map[*Future]struct{}
}

// NewKeyedEvent returns an empty keyed event.
func NewKeyedEvent() *KeyedEvent {
	return &KeyedEvent{listeners: make(map[string]map[*Future]struct{})}
}

// Trigger completes every future currently listening on key.
func (k *KeyedEvent) Trigger(key string, value interface{}, err error) {
	k.mu.Lock()
	set := k.listeners[key]
	k.mu.Unlock()
	for fut := range set {
		fut.Complete(value, err)
	}
}

// Listen registers fut against key.
func (k *KeyedEvent) Listen(key string, fut *Future) {
	k.mu.Lock()
	defer k.mu.Unlock()
	set, ok := k.listeners[key]
	if !ok {
		set = make(map[*Future]struct{})
		k.listeners[key] = set
	}
	set[fut] = struct{}{}
}

// Unlisten removes fut from key's listener set.
func (k *KeyedEvent) Unlisten(key string, fut *Future) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if set, ok := k.listeners[key]; ok {
		delete(set, fut)
	}
}

// Register acquires a fresh future listening on key and returns a
// cancel function that unregisters it.
func (k *KeyedEvent) Register(key string) (*Future, func()) {
	fut := NewFuture()
	k.Listen(key, fut)
	return fut, func() { k.Unlisten(key, fut) }
}
