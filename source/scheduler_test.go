package source_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/event"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/record"
	"github.com/lucidrx/fusion/source"
)

func newScheduler(t *testing.T, reg *source.Registry, bus event.Bus) *source.Scheduler {
	t.Helper()
	if bus == nil {
		bus = event.NopBus{}
	}
	fetcher := source.NewFetcher(nil, 5*time.Second)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return source.NewScheduler(reg, fetcher, bus, logger)
}

func TestRefreshAPISuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tkn", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"nct_id": "NCT001", "phase": "Phase 2"},
			{"nct_id": "NCT002", "phase": "Phase 3"}
		]`))
	}))
	defer srv.Close()

	reg := source.NewRegistry()
	cfg := apiConfig("trials")
	cfg.Endpoint = srv.URL
	cfg.Credentials = "tkn"
	src, err := reg.Register(cfg)
	require.NoError(t, err)

	bus := event.NewMemoryBus()
	sub := bus.Subscribe()
	sched := newScheduler(t, reg, bus)

	before := time.Now().UTC()
	require.NoError(t, sched.Refresh(context.Background(), "trials"))

	assert.Equal(t, source.StatusActive, src.Status())
	assert.Equal(t, source.QualityVerified, src.Quality())
	assert.Equal(t, 2, src.RecordCount())
	assert.Empty(t, src.LastError())
	assert.False(t, src.LastRefreshAt().Before(before))
	assert.True(t, src.NextRefreshAt().After(src.LastRefreshAt()))

	records := src.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "NCT001", records[0]["nct_id"])

	select {
	case e := <-sub:
		assert.Equal(t, event.TypeDataRefreshed, e.Type)
		assert.Equal(t, "trials", e.SourceID)
		assert.Equal(t, 2, e.RecordCount)
	case <-time.After(time.Second):
		t.Fatal("no refresh event published")
	}
}

func TestRefreshAPIFailureKeepsCachedRecords(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`[{"nct_id": "NCT001"}]`))
	}))
	defer srv.Close()

	reg := source.NewRegistry()
	cfg := apiConfig("trials")
	cfg.Endpoint = srv.URL
	src, err := reg.Register(cfg)
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)
	require.NoError(t, sched.Refresh(context.Background(), "trials"))
	require.Equal(t, 1, src.RecordCount())

	fail.Store(true)
	err = sched.Refresh(context.Background(), "trials")
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeUpstreamUnavailable))

	// The source is degraded but its last good record set survives.
	assert.Equal(t, source.StatusError, src.Status())
	assert.Equal(t, source.QualityError, src.Quality())
	assert.Equal(t, 1, src.RecordCount())
	assert.Len(t, src.Records(), 1)
	assert.Contains(t, src.LastError(), "500")
	assert.True(t, src.NextRefreshAt().After(time.Now().UTC()))
}

func TestRefreshInFlightIsNoOp(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte(`[{"nct_id": "NCT001"}]`))
	}))
	defer srv.Close()

	reg := source.NewRegistry()
	cfg := apiConfig("trials")
	cfg.Endpoint = srv.URL
	src, err := reg.Register(cfg)
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)

	done := make(chan error, 1)
	go func() { done <- sched.Refresh(context.Background(), "trials") }()

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)

	// The overlapping call returns immediately without a second fetch.
	require.NoError(t, sched.Refresh(context.Background(), "trials"))
	assert.Equal(t, int32(1), hits.Load())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, src.RecordCount())
}

func TestRefreshUnknownSource(t *testing.T) {
	sched := newScheduler(t, source.NewRegistry(), nil)
	err := sched.Refresh(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))
}

func TestRefreshFileSourceWithoutPath(t *testing.T) {
	reg := source.NewRegistry()
	_, err := reg.Register(source.Config{
		ID:       "uploads",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)
	err = sched.Refresh(context.Background(), "uploads")
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeUpstreamUnavailable))
}

func TestUploadValidatesAndTransforms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patents.csv")
	csv := "patent_number,assignee\nUS-1,Acme Pharma\nUS-2,Beta Labs\n,Orphan Co\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	reg := source.NewRegistry()
	src, err := reg.Register(source.Config{
		ID:       "uspto",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
		Schema: record.Schema{
			"patent_number": {Type: record.TypeString, Required: true},
		},
		Transformations: []record.Rule{
			{Kind: record.RuleFormat, Field: "assignee", Style: "uppercase"},
		},
	})
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)
	res, err := sched.Upload(context.Background(), "uspto", path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Rejected)

	records := src.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "ACME PHARMA", records[0]["assignee"])
	assert.Equal(t, source.QualityVerified, src.Quality())
}

func TestUploadUnreadableFile(t *testing.T) {
	reg := source.NewRegistry()
	src, err := reg.Register(source.Config{
		ID:       "uspto",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)
	_, err = sched.Upload(context.Background(), "uspto", filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, source.StatusError, src.Status())
}

func TestStartArmsAPISources(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"nct_id": "NCT001"}]`))
	}))
	defer srv.Close()

	reg := source.NewRegistry()
	cfg := apiConfig("trials")
	cfg.Endpoint = srv.URL
	cfg.RefreshInterval = 20 * time.Millisecond
	src, err := reg.Register(cfg)
	require.NoError(t, err)

	sched := newScheduler(t, reg, nil)
	sched.Start(context.Background())
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return hits.Load() >= 2 && src.RecordCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	sched.Stop()
	settled := hits.Load()
	time.Sleep(100 * time.Millisecond)
	// Stop waits for in-flight refreshes, so no request may land after it
	// returns even if a timer had already fired.
	assert.Equal(t, settled, hits.Load())
}
