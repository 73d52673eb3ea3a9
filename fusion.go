package fusion

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/event"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/graph/query"
	"github.com/lucidrx/fusion/integrator"
	"github.com/lucidrx/fusion/source"
	"github.com/lucidrx/fusion/store"
)

// Framework is the main entry point to the fusion toolkit. It wires the
// source registry, refresh scheduler, extraction agents, graph integrator,
// and snapshot store into a single coordinated pipeline.
//
// A Framework is safe for concurrent use once Start has returned.
type Framework struct {
	logger    *slog.Logger
	store     store.Store
	bus       event.Bus
	registry  *source.Registry
	scheduler *source.Scheduler
	pool      *agent.Pool
	builder   *integrator.Builder
	engine    *query.Engine
	watcher   *source.Watcher
	announcer *source.Announcer

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
}

// New creates a Framework with the given options. The framework owns the
// store it opens itself (via WithStorePath or the in-memory default) and
// closes it on Shutdown; a store injected with WithStore stays the
// caller's to close.
func New(opts ...Option) (*Framework, error) {
	cfg := &config{
		logger:         slog.Default(),
		httpClient:     http.DefaultClient,
		strategy:       graph.MergeOverwrite,
		refreshTimeout: source.DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	ownStore := false
	if cfg.store == nil {
		s, err := store.Open(cfg.storePath, cfg.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot store: %w", err)
		}
		cfg.store = s
		ownStore = true
	}

	bus := cfg.bus
	if cfg.redisURL != "" {
		rb, err := event.NewRedisBus(event.RedisOptions{URL: cfg.redisURL})
		if err != nil {
			if ownStore {
				cfg.store.Close()
			}
			return nil, fmt.Errorf("failed to connect event bus: %w", err)
		}
		bus = rb
	}
	if bus == nil {
		bus = event.NewMemoryBus()
	}

	registry := source.NewRegistry()
	fetcher := source.NewFetcher(cfg.httpClient, cfg.refreshTimeout)
	scheduler := source.NewScheduler(registry, fetcher, bus, cfg.logger)
	pool := agent.NewPool()
	builder := integrator.NewBuilder(pool,
		integrator.WithBus(bus),
		integrator.WithLogger(cfg.logger),
		integrator.WithSnapshotter(cfg.store),
		integrator.WithParallelism(cfg.parallelism),
		integrator.WithMergeStrategy(cfg.strategy),
	)

	f := &Framework{
		logger:    cfg.logger.With("component", "fusion"),
		store:     cfg.store,
		bus:       bus,
		registry:  registry,
		scheduler: scheduler,
		pool:      pool,
		builder:   builder,
		engine:    query.NewEngine(),
	}

	if cfg.watchDir != "" {
		w, err := source.NewWatcher(cfg.watchDir, scheduler, registry, cfg.logger)
		if err != nil {
			if ownStore {
				cfg.store.Close()
			}
			return nil, fmt.Errorf("failed to watch upload directory: %w", err)
		}
		f.watcher = w
	}

	if len(cfg.etcdEndpoints) > 0 {
		a, err := source.NewAnnouncer(source.AnnouncerConfig{Endpoints: cfg.etcdEndpoints}, cfg.logger)
		if err != nil {
			if ownStore {
				cfg.store.Close()
			}
			return nil, fmt.Errorf("failed to connect announcer: %w", err)
		}
		f.announcer = a
	}

	return f, nil
}

// Start restores persisted registry state and begins scheduling source
// refreshes. It must be called before registering sources.
func (f *Framework) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return fmt.Errorf("framework already started")
	}

	if err := f.registry.Restore(ctx, f.store); err != nil {
		return fmt.Errorf("failed to restore source registry: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.scheduler.Start(runCtx)
	if f.watcher != nil {
		go f.watcher.Run(runCtx)
	}
	if f.announcer != nil {
		for _, src := range f.registry.List() {
			if err := f.announcer.Announce(ctx, src); err != nil {
				f.logger.Warn("failed to announce source", "source", src.ID, "error", err)
			}
		}
	}

	f.started = true
	f.logger.Info("framework started", "sources", len(f.registry.List()))
	return nil
}

// Shutdown stops scheduling, persists registry state, and releases the
// store. In-flight refreshes are cancelled.
func (f *Framework) Shutdown(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}
	f.started = false

	f.cancel()
	f.scheduler.Stop()
	if f.announcer != nil {
		if err := f.announcer.Close(); err != nil {
			f.logger.Warn("failed to close announcer", "error", err)
		}
	}

	var firstErr error
	if err := f.registry.Snapshot(ctx, f.store); err != nil {
		firstErr = fmt.Errorf("failed to persist source registry: %w", err)
	}
	if err := f.store.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close snapshot store: %w", err)
	}

	f.logger.Info("framework stopped")
	return firstErr
}

// RegisterSource validates and registers a data source, performs its
// initial refresh, and schedules recurring refreshes for API sources.
//
// The initial refresh is best-effort: a failing upstream leaves the source
// registered in error status rather than failing registration, matching
// the stale-but-available policy of scheduled refreshes.
func (f *Framework) RegisterSource(ctx context.Context, cfg source.Config) (*source.DataSource, error) {
	src, err := f.registry.Register(cfg)
	if err != nil {
		return nil, err
	}

	f.bus.Publish(ctx, event.SourceRegistered(src.ID))

	if err := f.scheduler.Refresh(ctx, src.ID); err != nil {
		f.logger.Warn("initial refresh failed", "source", src.ID, "error", err)
	}
	f.scheduler.Track(src)
	if f.announcer != nil {
		if err := f.announcer.Announce(ctx, src); err != nil {
			f.logger.Warn("failed to announce source", "source", src.ID, "error", err)
		}
	}

	if err := f.registry.Snapshot(ctx, f.store); err != nil {
		f.logger.Warn("failed to persist source registry", "error", err)
	}
	return src, nil
}

// RegisterSourcesFromFile registers every source declared in a YAML
// configuration file. Registration stops at the first invalid entry.
func (f *Framework) RegisterSourcesFromFile(ctx context.Context, path string) error {
	configs, err := source.LoadConfigs(path)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		if _, err := f.RegisterSource(ctx, cfg); err != nil {
			return fmt.Errorf("failed to register source %q: %w", cfg.ID, err)
		}
	}
	return nil
}

// DeregisterSource removes a source from the registry and stops its
// scheduled refreshes. Graphs already built from the source keep its data.
func (f *Framework) DeregisterSource(ctx context.Context, id string) error {
	f.scheduler.Untrack(id)
	if err := f.registry.Deregister(id); err != nil {
		return err
	}
	if f.announcer != nil {
		if err := f.announcer.Withdraw(ctx, id); err != nil {
			f.logger.Warn("failed to withdraw source announcement", "source", id, "error", err)
		}
	}
	if err := f.registry.Snapshot(ctx, f.store); err != nil {
		f.logger.Warn("failed to persist source registry", "error", err)
	}
	return nil
}

// Source returns a registered data source by id.
func (f *Framework) Source(id string) (*source.DataSource, error) {
	return f.registry.Get(id)
}

// Sources returns all registered data sources sorted by id.
func (f *Framework) Sources() []*source.DataSource {
	return f.registry.List()
}

// RefreshSource forces an immediate refresh of the source, outside its
// schedule. A refresh already in flight makes this a no-op.
func (f *Framework) RefreshSource(ctx context.Context, id string) error {
	return f.scheduler.Refresh(ctx, id)
}

// UploadFile ingests a local data file into a file-kind source, replacing
// its cached records with the file's validated contents.
func (f *Framework) UploadFile(ctx context.Context, id, path string) (source.UploadResult, error) {
	return f.scheduler.Upload(ctx, id, path)
}

// BuildGraph constructs a knowledge graph from the cached records of the
// named sources and persists the snapshot. With no sourceIDs it builds from
// every registered source. Sources without data are skipped; failing agents
// degrade the graph without aborting the build.
func (f *Framework) BuildGraph(ctx context.Context, sourceIDs ...string) (*graph.KnowledgeGraph, error) {
	var sources []*source.DataSource
	if len(sourceIDs) == 0 {
		sources = f.registry.List()
		if len(sources) == 0 {
			return nil, fuserr.New("", "fusion.BuildGraph", fuserr.CodeSourceNotFound,
				"no data sources registered")
		}
	} else {
		for _, id := range sourceIDs {
			src, err := f.registry.Get(id)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		}
	}
	return f.builder.Build(ctx, sources...)
}

// GetGraph loads a persisted graph snapshot by id.
func (f *Framework) GetGraph(ctx context.Context, id string) (*graph.KnowledgeGraph, error) {
	return f.store.GetGraph(ctx, id)
}

// ListGraphs returns the ids of all persisted graph snapshots.
func (f *Framework) ListGraphs(ctx context.Context) ([]string, error) {
	return f.store.ListGraphIDs(ctx)
}

// ExportGraph loads a persisted graph and serializes it in the requested
// format.
func (f *Framework) ExportGraph(ctx context.Context, id string, format graph.ExportFormat) ([]byte, error) {
	g, err := f.store.GetGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return graph.Export(g, format)
}

// QueryGraph evaluates a query against a persisted graph snapshot.
func (f *Framework) QueryGraph(ctx context.Context, id string, q *query.Query) (*query.Result, error) {
	g, err := f.store.GetGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.engine.Evaluate(ctx, g, q)
}

// Agents returns the built-in extraction agent pool.
func (f *Framework) Agents() *agent.Pool {
	return f.pool
}

// WaitForRefresh blocks until the source completes a refresh attempt or the
// timeout expires. Intended for tests and CLI flows that need fresh data
// immediately after registration.
func (f *Framework) WaitForRefresh(ctx context.Context, id string, timeout time.Duration) error {
	src, err := f.registry.Get(id)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !src.LastRefreshAt().IsZero() || src.LastError() != "" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return fmt.Errorf("source %q did not refresh within %s", id, timeout)
}
