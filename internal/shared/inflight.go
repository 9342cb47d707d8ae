package shared

import "sync"

// InFlight tracks keys that have an operation in progress. It is the server
// side of a disabled submit button: a second Acquire for the same key fails
// until the first caller releases it. The zero value is ready to use.
type InFlight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// Acquire marks key as busy. It returns a release func and true on success,
// or nil and false when key is already busy.
func (f *InFlight) Acquire(key string) (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.busy == nil {
		f.busy = make(map[string]struct{})
	}
	if _, ok := f.busy[key]; ok {
		return nil, false
	}
	f.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.busy, key)
			f.mu.Unlock()
		})
	}, true
}
