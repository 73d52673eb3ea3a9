package source

import (
	"context"
	"sort"
	"sync"

	"github.com/lucidrx/fusion/fuserr"
)

// RegistryStore persists registry snapshots. The badger-backed store
// implements it; tests use an in-memory variant.
type RegistryStore interface {
	// PutRegistry persists the full set of source states.
	PutRegistry(ctx context.Context, states []State) error

	// GetRegistry loads the persisted source states. An empty store returns
	// an empty slice, not an error.
	GetRegistry(ctx context.Context) ([]State, error)
}

// Registry holds the configured data sources. Sources are created on
// registration, mutated by the scheduler after refresh attempts, and removed
// only by explicit deregistration.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]*DataSource
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{sources: make(map[string]*DataSource)}
}

// Register validates the configuration, compiles its transformation rules,
// and adds the source. Duplicate ids are rejected with DUPLICATE_SOURCE;
// invalid configurations with INVALID_CONFIG.
func (r *Registry) Register(cfg Config) (*DataSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fuserr.New(cfg.ID, "registry.Register", fuserr.CodeInvalidConfig,
			"invalid source configuration").WithCause(err)
	}

	src, err := newDataSource(cfg)
	if err != nil {
		return nil, fuserr.New(cfg.ID, "registry.Register", fuserr.CodeInvalidConfig,
			"invalid source configuration").WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[cfg.ID]; exists {
		return nil, fuserr.New(cfg.ID, "registry.Register", fuserr.CodeDuplicateSource,
			"source id already registered")
	}
	r.sources[cfg.ID] = src
	return src, nil
}

// Deregister removes a source. Returns SOURCE_NOT_FOUND for unknown ids.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sources[id]; !exists {
		return fuserr.New(id, "registry.Deregister", fuserr.CodeSourceNotFound, "no such source")
	}
	delete(r.sources, id)
	return nil
}

// Get returns the source with the given id.
func (r *Registry) Get(id string) (*DataSource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, exists := r.sources[id]
	if !exists {
		return nil, fuserr.New(id, "registry.Get", fuserr.CodeSourceNotFound, "no such source")
	}
	return src, nil
}

// List returns all registered sources sorted by id.
func (r *Registry) List() []*DataSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*DataSource, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot persists the current source states through the given store.
func (r *Registry) Snapshot(ctx context.Context, store RegistryStore) error {
	states := make([]State, 0)
	for _, src := range r.List() {
		states = append(states, src.snapshot())
	}
	if err := store.PutRegistry(ctx, states); err != nil {
		return fuserr.New("", "registry.Snapshot", fuserr.CodePersistenceFailed,
			"failed to persist registry").WithCause(err)
	}
	return nil
}

// Restore loads persisted source states into the registry. Sources whose
// configuration no longer compiles are skipped; already-registered ids are
// left untouched.
func (r *Registry) Restore(ctx context.Context, store RegistryStore) error {
	states, err := store.GetRegistry(ctx)
	if err != nil {
		return fuserr.New("", "registry.Restore", fuserr.CodePersistenceFailed,
			"failed to load registry").WithCause(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range states {
		if _, exists := r.sources[st.Config.ID]; exists {
			continue
		}
		src, err := newDataSource(st.Config)
		if err != nil {
			continue
		}
		src.restore(st)
		r.sources[st.Config.ID] = src
	}
	return nil
}
