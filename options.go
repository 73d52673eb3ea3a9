package fusion

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/lucidrx/fusion/event"
	"github.com/lucidrx/fusion/graph"
	"github.com/lucidrx/fusion/store"
)

// Option configures a Framework during construction.
type Option func(*config)

type config struct {
	logger         *slog.Logger
	store          store.Store
	storePath      string
	bus            event.Bus
	redisURL       string
	httpClient     *http.Client
	parallelism    int
	strategy       graph.MergeStrategy
	refreshTimeout time.Duration
	watchDir       string
	etcdEndpoints  []string
}

// WithLogger sets the structured logger used by all components.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithStore sets a pre-opened snapshot store. Takes precedence over
// WithStorePath.
func WithStore(s store.Store) Option {
	return func(c *config) { c.store = s }
}

// WithStorePath opens a BadgerDB snapshot store at the given directory.
// Without a store option the framework runs on an in-memory store.
func WithStorePath(path string) Option {
	return func(c *config) { c.storePath = path }
}

// WithBus sets the lifecycle event bus. Defaults to an in-process bus.
func WithBus(bus event.Bus) Option {
	return func(c *config) { c.bus = bus }
}

// WithRedisBus publishes lifecycle events to Redis at the given URL
// (redis://host:port/db). Takes precedence over WithBus.
func WithRedisBus(url string) Option {
	return func(c *config) { c.redisURL = url }
}

// WithHTTPClient sets the HTTP client used to fetch API sources.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.httpClient = client }
}

// WithParallelism sets how many extraction agents run concurrently per
// source during graph construction. Defaults to sequential execution.
func WithParallelism(n int) Option {
	return func(c *config) { c.parallelism = n }
}

// WithMergeStrategy sets the entity property merge strategy for graph
// construction. Defaults to graph.MergeOverwrite.
func WithMergeStrategy(s graph.MergeStrategy) Option {
	return func(c *config) { c.strategy = s }
}

// WithRefreshTimeout bounds individual source refresh attempts.
// Defaults to source.DefaultRefreshTimeout.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *config) { c.refreshTimeout = d }
}

// WithAnnouncer announces registered sources to an etcd cluster so sibling
// deployments can discover which feeds this instance serves. Announcements
// are lease-backed and expire if the instance dies.
func WithAnnouncer(endpoints ...string) Option {
	return func(c *config) { c.etcdEndpoints = endpoints }
}

// WithWatchDir watches a directory for dropped data files. Files named
// <sourceID>.csv or <sourceID>.json are ingested into the matching file
// source as they appear.
func WithWatchDir(dir string) Option {
	return func(c *config) { c.watchDir = dir }
}
