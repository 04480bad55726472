package batch

import (
	"context"
	"sync"

	"github.com/starford/pfdl/internal/storage"
)

// Root is one storage location. Its batch names are listed once and cached.
type Root struct {
	backend storage.Backend

	once  sync.Once
	names []string
	err   error

	mu      sync.Mutex
	batches map[string]*Batch
}

// NewRoot wraps an opened backend.
func NewRoot(b storage.Backend) *Root {
	return &Root{backend: b, batches: make(map[string]*Batch)}
}

// Location returns the root as it was configured.
func (r *Root) Location() string { return r.backend.Root() }

// Backend returns the storage backend of the root.
func (r *Root) Backend() storage.Backend { return r.backend }

// BatchNames lists the batches under the root.
func (r *Root) BatchNames(ctx context.Context) ([]string, error) {
	r.once.Do(func() {
		r.names, r.err = r.backend.ListBatches(ctx)
	})
	return r.names, r.err
}

// Batch returns the batch with the given name, creating it on first use.
func (r *Root) Batch(name string) *Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[name]
	if !ok {
		b = &Batch{root: r, name: name}
		r.batches[name] = b
	}
	return b
}
