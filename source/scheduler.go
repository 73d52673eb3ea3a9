package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/lucidrx/fusion/event"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/record"
)

// instrumentation scope for the scheduler's traces and metrics.
const otelScope = "github.com/lucidrx/fusion/source"

// UploadResult reports how a file upload was validated.
type UploadResult struct {
	// Accepted is the number of records that passed schema validation.
	Accepted int

	// Rejected is the number of records silently dropped.
	Rejected int
}

// Scheduler performs scheduled refresh of API sources and on-demand
// processing of file sources.
//
// Each API source gets one independent timer. Timers rearm after each
// attempt completes, success or failure, rather than firing at a fixed
// rate, so a slow refresh cannot overlap the next run of the same source.
// A per-source in-flight flag additionally guarantees that two concurrent
// Refresh calls for one source never execute simultaneously; refreshes of
// different sources proceed independently.
type Scheduler struct {
	registry *Registry
	fetcher  *Fetcher
	bus      event.Bus
	logger   *slog.Logger
	tracer   trace.Tracer

	recordsAccepted metric.Int64Counter
	recordsRejected metric.Int64Counter

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler over the given registry. A nil bus
// disables events; a nil logger falls back to slog.Default.
func NewScheduler(registry *Registry, fetcher *Fetcher, bus event.Bus, logger *slog.Logger) *Scheduler {
	if bus == nil {
		bus = event.NopBus{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		registry: registry,
		fetcher:  fetcher,
		bus:      bus,
		logger:   logger.With("component", "scheduler"),
		tracer:   otel.Tracer(otelScope),
		timers:   make(map[string]*time.Timer),
	}

	meter := otel.Meter(otelScope)
	if c, err := meter.Int64Counter("fusion.records.accepted",
		metric.WithDescription("Records accepted by schema validation")); err == nil {
		s.recordsAccepted = c
	}
	if c, err := meter.Int64Counter("fusion.records.rejected",
		metric.WithDescription("Records dropped by schema validation")); err == nil {
		s.recordsRejected = c
	}
	return s
}

// Start arms a timer for every registered API source and begins scheduled
// refreshing. Start is idempotent.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	for _, src := range s.registry.List() {
		if src.Kind == KindAPI {
			s.arm(src, s.initialDelay(src))
		}
	}
	s.logger.Info("scheduler started")
}

// Stop cancels all timers and waits for in-flight refreshes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Track arms a timer for a newly registered API source if the scheduler is
// running. File sources are ignored: they refresh on upload only.
func (s *Scheduler) Track(src *DataSource) {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running && src.Kind == KindAPI {
		s.arm(src, s.initialDelay(src))
	}
}

// Untrack stops the timer of a deregistered source.
func (s *Scheduler) Untrack(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// initialDelay honors a restored nextRefreshAt when it is still in the
// future; otherwise the source refreshes immediately.
func (s *Scheduler) initialDelay(src *DataSource) time.Duration {
	if next := src.NextRefreshAt(); !next.IsZero() {
		if d := time.Until(next); d > 0 {
			return d
		}
	}
	return 0
}

// arm schedules a one-shot timer for the source. The timer callback runs the
// refresh and rearms afterward, so runs of one source never overlap.
func (s *Scheduler) arm(src *DataSource, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	if t, ok := s.timers[src.ID]; ok {
		t.Stop()
	}
	s.timers[src.ID] = time.AfterFunc(delay, func() {
		// Register with the wait group under mu so Stop either observes
		// this run before Wait or the callback sees running=false and
		// bails. A fired timer is otherwise invisible to Stop.
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			return
		}
		s.wg.Add(1)
		s.mu.Unlock()
		defer s.wg.Done()

		if err := s.Refresh(s.ctx, src.ID); err != nil {
			s.logger.Warn("scheduled refresh failed", "source", src.ID, "error", err)
		}
		if s.ctx.Err() == nil {
			if _, err := s.registry.Get(src.ID); err == nil {
				s.arm(src, src.RefreshInterval)
			}
		}
	})
}

// Refresh refreshes a source by id. For API sources it fetches the endpoint
// and installs the validated record set; failures degrade the source but
// keep its cached records. For file sources it re-reads the configured path.
// A refresh already in flight for the same source makes the call a no-op.
func (s *Scheduler) Refresh(ctx context.Context, id string) error {
	src, err := s.registry.Get(id)
	if err != nil {
		return err
	}
	if !src.tryAcquire() {
		s.logger.Debug("refresh already in flight", "source", id)
		return nil
	}
	defer src.release()

	ctx, span := s.tracer.Start(ctx, "source.refresh",
		trace.WithAttributes(
			attribute.String("source.id", src.ID),
			attribute.String("source.kind", src.Kind.String()),
		))
	defer span.End()

	switch src.Kind {
	case KindAPI:
		return s.refreshAPI(ctx, src)
	case KindFile:
		if src.Endpoint == "" {
			return fuserr.New(id, "scheduler.Refresh", fuserr.CodeUpstreamUnavailable,
				"file source has no path to reprocess")
		}
		_, err := s.upload(ctx, src, src.Endpoint)
		return err
	default:
		return fuserr.New(id, "scheduler.Refresh", fuserr.CodeInvalidConfig,
			"unknown source kind")
	}
}

func (s *Scheduler) refreshAPI(ctx context.Context, src *DataSource) error {
	raw, err := s.fetcher.Fetch(ctx, src)
	if err != nil {
		now := time.Now().UTC()
		src.applyFailure(err.Error(), now)
		s.logger.Warn("refresh failed, keeping cached records",
			"source", src.ID, "records", src.RecordCount(), "error", err)
		return err
	}

	accepted, res := s.process(ctx, src, raw)
	src.applySuccess(accepted, time.Now().UTC())
	s.logger.Info("source refreshed",
		"source", src.ID, "accepted", res.Accepted, "rejected", res.Rejected)

	s.bus.Publish(ctx, event.DataRefreshed(src.ID, res.Accepted))
	return nil
}

// Upload processes an uploaded file for a file source: parse by extension,
// validate against the source schema, transform, and install as the source's
// record set. It is invoked synchronously on upload, never by a timer.
func (s *Scheduler) Upload(ctx context.Context, id, path string) (UploadResult, error) {
	src, err := s.registry.Get(id)
	if err != nil {
		return UploadResult{}, err
	}
	if !src.tryAcquire() {
		return UploadResult{}, fuserr.New(id, "scheduler.Upload", fuserr.CodeUpstreamUnavailable,
			"a refresh of this source is already in flight")
	}
	defer src.release()

	ctx, span := s.tracer.Start(ctx, "source.upload",
		trace.WithAttributes(attribute.String("source.id", id)))
	defer span.End()

	return s.upload(ctx, src, path)
}

func (s *Scheduler) upload(ctx context.Context, src *DataSource, path string) (UploadResult, error) {
	raw, err := record.ParseFile(path)
	if err != nil {
		src.applyFailure(err.Error(), time.Now().UTC())
		return UploadResult{}, err
	}

	accepted, res := s.process(ctx, src, raw)
	src.applySuccess(accepted, time.Now().UTC())
	s.logger.Info("file processed",
		"source", src.ID, "path", path, "accepted", res.Accepted, "rejected", res.Rejected)

	s.bus.Publish(ctx, event.DataRefreshed(src.ID, res.Accepted))
	return UploadResult{Accepted: res.Accepted, Rejected: res.Rejected}, nil
}

// process validates raw records against the source schema and applies its
// transformation rules. Rejected records are counted, never retried.
func (s *Scheduler) process(ctx context.Context, src *DataSource, raw []record.Record) ([]record.Record, record.ValidationResult) {
	accepted, res := record.Validate(raw, src.Schema, src.ID)
	accepted = src.rules.Apply(accepted)

	attrs := metric.WithAttributes(attribute.String("source.id", src.ID))
	if s.recordsAccepted != nil {
		s.recordsAccepted.Add(ctx, int64(res.Accepted), attrs)
	}
	if s.recordsRejected != nil {
		s.recordsRejected.Add(ctx, int64(res.Rejected), attrs)
	}
	return accepted, res
}
