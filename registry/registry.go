// Package registry keeps the append-only list of shared objects the target
// has loaded, in load order. Entries are never removed: the list answers
// "has this process ever loaded something matching X", which is all the
// symbol resolver needs to locate versioned sonames.
package registry

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/sliverarmory/chronohook/logging"
)

const DefaultMemoSize = 64

type Registry struct {
	mu   sync.RWMutex
	libs []string
	// memo maps a substring to its first match. The list only grows, so a
	// first match never changes once found; misses are not memoized.
	memo *lru.Cache
	log  *logging.Logger
}

type Option func(*Registry)

// WithMemo sets the size of the find memo; zero disables it.
func WithMemo(size int) Option {
	return func(r *Registry) {
		if size <= 0 {
			r.memo = nil
			return
		}
		r.memo, _ = lru.New(size)
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.log = l
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{log: logging.Discard()}
	r.memo, _ = lru.New(DefaultMemoSize)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends path. Duplicates are kept.
func (r *Registry) Record(path string) {
	r.mu.Lock()
	r.libs = append(r.libs, path)
	var snapshot []string
	if r.log.Enabled(logging.Registry) {
		snapshot = append(snapshot, r.libs...)
	}
	r.mu.Unlock()

	r.log.Debug(logging.Hook|logging.Registry, "recorded library ", path)
	for _, lib := range snapshot {
		r.log.Debug(logging.Registry, "  ", lib)
	}
}

// Find returns the first recorded library containing sub.
func (r *Registry) Find(sub string) (string, bool) {
	if r.memo != nil {
		if v, ok := r.memo.Get(sub); ok {
			return v.(string), true
		}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, lib := range r.libs {
		if strings.Contains(lib, sub) {
			if r.memo != nil {
				r.memo.Add(sub, lib)
			}
			return lib, true
		}
	}
	return "", false
}

// Libraries returns a copy of the recorded list in load order.
func (r *Registry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.libs))
	copy(out, r.libs)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.libs)
}
