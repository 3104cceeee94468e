package feature

import (
	"sync"

	"go.uber.org/zap"
)

// ChangeHandler is called when a feature value changes
type ChangeHandler func(name, oldValue, newValue string)

// Subscription allows unsubscribing from feature changes
type Subscription interface {
	Unsubscribe()
}

// subscriberEntry holds a handler with its unique subscription ID
type subscriberEntry struct {
	subID   int
	handler ChangeHandler
}

// Registry is the feature side-channel: the stable named-value contract
// external readers depend on, decoupled from raw payload shape. Writers
// push normalized values; readers query or subscribe to changes.
type Registry struct {
	logger *zap.Logger

	mu     sync.RWMutex
	values map[string]string

	subsMu      sync.RWMutex
	subscribers map[string][]subscriberEntry
	allSubs     []subscriberEntry
	nextSubID   int
	nextSubMu   sync.Mutex
}

// NewRegistry creates an empty feature registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:      logger.Named("features"),
		values:      make(map[string]string),
		subscribers: make(map[string][]subscriberEntry),
	}
}

// UpdateFeature stores a normalized feature value and notifies
// subscribers when it changed.
func (r *Registry) UpdateFeature(name, value string) {
	r.mu.Lock()
	old, existed := r.values[name]
	if existed && old == value {
		r.mu.Unlock()
		return
	}
	r.values[name] = value
	r.mu.Unlock()

	r.logger.Debug("Feature updated",
		zap.String("feature", name),
		zap.String("value", value))
	r.notify(name, old, value)
}

// Get returns the current value of a feature
func (r *Registry) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[name]
	return value, ok
}

// All returns a copy of every known feature value
func (r *Registry) All() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.values))
	for name, value := range r.values {
		out[name] = value
	}
	return out
}

// Subscribe registers a handler for changes to a single feature
func (r *Registry) Subscribe(name string, handler ChangeHandler) Subscription {
	subID := r.allocSubID()

	r.subsMu.Lock()
	r.subscribers[name] = append(r.subscribers[name], subscriberEntry{subID: subID, handler: handler})
	r.subsMu.Unlock()

	return &registrySubscription{registry: r, name: name, subID: subID}
}

// SubscribeAll registers a handler for changes to every feature
func (r *Registry) SubscribeAll(handler ChangeHandler) Subscription {
	subID := r.allocSubID()

	r.subsMu.Lock()
	r.allSubs = append(r.allSubs, subscriberEntry{subID: subID, handler: handler})
	r.subsMu.Unlock()

	return &registrySubscription{registry: r, subID: subID, all: true}
}

func (r *Registry) allocSubID() int {
	r.nextSubMu.Lock()
	defer r.nextSubMu.Unlock()
	r.nextSubID++
	return r.nextSubID
}

// notify invokes handlers outside the value lock so handlers may read
// back from the registry.
func (r *Registry) notify(name, oldValue, newValue string) {
	r.subsMu.RLock()
	handlers := make([]ChangeHandler, 0, len(r.subscribers[name])+len(r.allSubs))
	for _, entry := range r.subscribers[name] {
		handlers = append(handlers, entry.handler)
	}
	for _, entry := range r.allSubs {
		handlers = append(handlers, entry.handler)
	}
	r.subsMu.RUnlock()

	for _, handler := range handlers {
		handler(name, oldValue, newValue)
	}
}

func (r *Registry) unsubscribe(name string, subID int, all bool) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()

	if all {
		for i, entry := range r.allSubs {
			if entry.subID == subID {
				r.allSubs = append(r.allSubs[:i], r.allSubs[i+1:]...)
				return
			}
		}
		return
	}

	entries := r.subscribers[name]
	for i, entry := range entries {
		if entry.subID == subID {
			r.subscribers[name] = append(entries[:i], entries[i+1:]...)
			return
		}
	}
}

// registrySubscription implements Subscription
type registrySubscription struct {
	registry *Registry
	name     string
	subID    int
	all      bool
}

func (s *registrySubscription) Unsubscribe() {
	s.registry.unsubscribe(s.name, s.subID, s.all)
}
