package hooks

import "sync"

// Token identifies one registration in a List.
type Token uint64

type entry[F any] struct {
	token Token
	fn    F
}

// List is an ordered collection of listeners of one shape.
// Each Add hands out a Token; removing a token only ever removes that entry,
// so independent registrations can not disturb each other's teardown.
type List[F any] struct {
	mu      sync.RWMutex
	next    Token
	entries []entry[F]
}

// Add appends fn and returns its token.
func (l *List[F]) Add(fn F) Token {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.entries = append(l.entries, entry[F]{token: l.next, fn: fn})
	return l.next
}

// Remove drops the entry registered under t. It reports false when t is unknown,
// which makes repeated removal harmless.
func (l *List[F]) Remove(t Token) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, e := range l.entries {
		if e.token == t {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Snapshot returns the listeners in registration order.
func (l *List[F]) Snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]F, len(l.entries))
	for i, e := range l.entries {
		result[i] = e.fn
	}
	return result
}

// Len returns the number of listeners.
func (l *List[F]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// register adds all fns and returns a cleanup removing exactly those.
func register[F any](l *List[F], fns []F) func() {
	tokens := make([]Token, 0, len(fns))
	for _, fn := range fns {
		tokens = append(tokens, l.Add(fn))
	}
	return once(func() {
		for _, t := range tokens {
			l.Remove(t)
		}
	})
}

func once(fn func()) func() {
	var o sync.Once
	return func() { o.Do(fn) }
}
