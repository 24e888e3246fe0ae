// Package subscriptions keeps the bidirectional index of which client listens
// to which event type, and the single handler each (client, event type) pair holds.
//
// The index is made of three maps:
//   - event type -> set of client ids (broadcast fan-out)
//   - client id -> set of event types (teardown)
//   - Key{client, event type} -> handler
//
// Sets keep insertion order so that broadcast fan-out starts handlers in a
// deterministic order. Empty sets are pruned so the index stays sparse.
package subscriptions

import (
	"sync"

	"github.com/casualjim/courier/events"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Key identifies a single subscription.
type Key struct {
	ClientID  string
	EventType string
}

type set = orderedmap.OrderedMap[string, struct{}]

func newSet() *set {
	return orderedmap.New[string, struct{}]()
}

func keys(s *set) []string {
	result := make([]string, 0, s.Len())
	for pair := s.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Key)
	}
	return result
}

// Index is safe for concurrent use.
type Index struct {
	mu            sync.RWMutex
	recipients    *orderedmap.OrderedMap[string, *set]
	subscriptions *orderedmap.OrderedMap[string, *set]
	handlers      map[Key]events.Handler
}

// New creates an empty index.
func New() *Index {
	return &Index{
		recipients:    orderedmap.New[string, *set](),
		subscriptions: orderedmap.New[string, *set](),
		handlers:      make(map[Key]events.Handler),
	}
}

// Subscribe records that clientID listens to eventType with handler.
// Subscribing an existing pair again replaces its handler.
func (x *Index) Subscribe(clientID, eventType string, handler events.Handler) {
	x.mu.Lock()
	defer x.mu.Unlock()

	clients, ok := x.recipients.Get(eventType)
	if !ok {
		clients = newSet()
		x.recipients.Set(eventType, clients)
	}
	clients.Set(clientID, struct{}{})

	types, ok := x.subscriptions.Get(clientID)
	if !ok {
		types = newSet()
		x.subscriptions.Set(clientID, types)
	}
	types.Set(eventType, struct{}{})

	x.handlers[Key{ClientID: clientID, EventType: eventType}] = handler
}

// Unsubscribe removes a single subscription and reports whether it existed.
func (x *Index) Unsubscribe(clientID, eventType string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	key := Key{ClientID: clientID, EventType: eventType}
	_, existed := x.handlers[key]
	delete(x.handlers, key)

	x.removeRecipient(eventType, clientID)

	if types, ok := x.subscriptions.Get(clientID); ok {
		types.Delete(eventType)
		if types.Len() == 0 {
			x.subscriptions.Delete(clientID)
		}
	}
	return existed
}

// UnregisterClient drops every subscription owned by clientID and returns how many there were.
// The cost is proportional to the client's own subscriptions.
func (x *Index) UnregisterClient(clientID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	types, ok := x.subscriptions.Get(clientID)
	if !ok {
		return 0
	}
	for pair := types.Oldest(); pair != nil; pair = pair.Next() {
		x.removeRecipient(pair.Key, clientID)
		delete(x.handlers, Key{ClientID: clientID, EventType: pair.Key})
	}
	x.subscriptions.Delete(clientID)
	return types.Len()
}

// removeRecipient must be called with the write lock held.
func (x *Index) removeRecipient(eventType, clientID string) {
	clients, ok := x.recipients.Get(eventType)
	if !ok {
		return
	}
	clients.Delete(clientID)
	if clients.Len() == 0 {
		x.recipients.Delete(eventType)
	}
}

// IsSubscribed reports whether clientID listens to eventType.
func (x *Index) IsSubscribed(clientID, eventType string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.handlers[Key{ClientID: clientID, EventType: eventType}]
	return ok
}

// Handler returns the handler registered for the pair.
func (x *Index) Handler(clientID, eventType string) (events.Handler, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	h, ok := x.handlers[Key{ClientID: clientID, EventType: eventType}]
	return h, ok
}

// SubscribersExcept returns the subscribers of eventType in subscription order, minus exclude.
func (x *Index) SubscribersExcept(eventType, exclude string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	clients, ok := x.recipients.Get(eventType)
	if !ok {
		return nil
	}
	result := make([]string, 0, clients.Len())
	for pair := clients.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != exclude {
			result = append(result, pair.Key)
		}
	}
	return result
}

// Clients returns every client holding at least one subscription.
func (x *Index) Clients() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	result := make([]string, 0, x.subscriptions.Len())
	for pair := x.subscriptions.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Key)
	}
	return result
}

// Subscriptions returns a snapshot of event type -> subscribed client ids.
func (x *Index) Subscriptions() map[string][]string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	result := make(map[string][]string, x.recipients.Len())
	for pair := x.recipients.Oldest(); pair != nil; pair = pair.Next() {
		result[pair.Key] = keys(pair.Value)
	}
	return result
}

// ClientSubscriptions returns the event types clientID listens to.
func (x *Index) ClientSubscriptions(clientID string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	types, ok := x.subscriptions.Get(clientID)
	if !ok {
		return nil
	}
	return keys(types)
}

// Len returns the number of active subscriptions.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.handlers)
}

// Clear empties the index.
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.recipients = orderedmap.New[string, *set]()
	x.subscriptions = orderedmap.New[string, *set]()
	x.handlers = make(map[Key]events.Handler)
}
