// Package source manages data source configuration, the source registry, and
// the refresh scheduler that keeps API-backed sources current.
//
// Each API source refreshes on its own timer, rearmed after every attempt so
// a slow upstream can never cause overlapping runs of the same source. File
// sources refresh only when a file is uploaded. Refresh failures degrade the
// source to an error status while its previously cached records stay
// available to graph builds.
package source

import (
	"fmt"
	"sync"
	"time"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/record"
)

// Kind distinguishes polled API sources from uploaded file sources.
type Kind string

const (
	// KindAPI is a source refreshed from an HTTP endpoint on a timer.
	KindAPI Kind = "api"

	// KindFile is a source refreshed synchronously when a file is uploaded.
	KindFile Kind = "file"
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// IsValid checks if the kind is a recognized value.
func (k Kind) IsValid() bool {
	return k == KindAPI || k == KindFile
}

// Status is the operational state of a data source.
type Status string

const (
	// StatusActive indicates the last refresh attempt succeeded (or none ran yet).
	StatusActive Status = "active"

	// StatusError indicates the last refresh attempt failed. Cached records
	// from the previous success remain available.
	StatusError Status = "error"
)

// DataQuality grades the trustworthiness of a source's cached records.
type DataQuality string

const (
	// QualityUnknown means no refresh has validated the source's data yet.
	QualityUnknown DataQuality = "unknown"

	// QualityVerified means the latest refresh passed schema validation.
	QualityVerified DataQuality = "verified"

	// QualityError means the latest refresh failed.
	QualityError DataQuality = "error"
)

// Config is the registration-time declaration of a data source.
type Config struct {
	// ID uniquely identifies the source. Registration rejects duplicates.
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable source name.
	Name string `json:"name" yaml:"name"`

	// Kind selects API polling or file upload.
	Kind Kind `json:"kind" yaml:"kind"`

	// Endpoint is the HTTP URL for API sources or the file path for file
	// sources (optional for file sources fed purely by uploads).
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// Credentials is an opaque bearer token sent on API refreshes. Never logged.
	Credentials string `json:"credentials,omitempty" yaml:"credentials,omitempty"`

	// DataType routes the source's records to the accepting agents.
	DataType agent.DataType `json:"data_type" yaml:"data_type"`

	// RefreshInterval is the polling interval for API sources.
	RefreshInterval time.Duration `json:"refresh_interval,omitempty" yaml:"-"`

	// Schema validates incoming records; failing records are dropped.
	Schema record.Schema `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Transformations run in declaration order after validation.
	Transformations []record.Rule `json:"transformations,omitempty" yaml:"transformations,omitempty"`
}

// Validate checks the configuration for registration.
func (c Config) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("source id is required")
	}
	if !c.Kind.IsValid() {
		return fmt.Errorf("unknown source kind %q", c.Kind)
	}
	if !c.DataType.IsValid() || c.DataType == agent.DataTypeAll {
		return fmt.Errorf("unknown data type %q", c.DataType)
	}
	if c.Kind == KindAPI {
		if c.Endpoint == "" {
			return fmt.Errorf("api source requires an endpoint")
		}
		if c.RefreshInterval <= 0 {
			return fmt.Errorf("api source requires a positive refresh interval")
		}
	}
	for field, spec := range c.Schema {
		if spec.Type != "" && !spec.Type.IsValid() {
			return fmt.Errorf("schema field %q has unknown type %q", field, spec.Type)
		}
	}
	return nil
}

// DataSource is a registered source with its refresh bookkeeping and cached
// record set. All mutation goes through the registry and scheduler; callers
// read state via the accessor methods, which are safe for concurrent use.
type DataSource struct {
	Config

	mu            sync.Mutex
	status        Status
	quality       DataQuality
	lastRefreshAt time.Time
	nextRefreshAt time.Time
	lastError     string
	recordCount   int
	records       []record.Record

	rules *record.RuleSet

	// inFlight guards against overlapping refreshes of the same source.
	inFlight bool
}

// newDataSource creates a registered source in the active/unknown state with
// its transformation rules compiled.
func newDataSource(cfg Config) (*DataSource, error) {
	rules, err := record.CompileRules(cfg.Transformations)
	if err != nil {
		return nil, fmt.Errorf("invalid transformations: %w", err)
	}
	return &DataSource{
		Config:  cfg,
		status:  StatusActive,
		quality: QualityUnknown,
		rules:   rules,
	}, nil
}

// Status returns the operational state.
func (s *DataSource) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Quality returns the data quality grade.
func (s *DataSource) Quality() DataQuality {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quality
}

// LastError returns the message of the last failed refresh, or "".
func (s *DataSource) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// RecordCount returns the number of currently cached, accepted records.
func (s *DataSource) RecordCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordCount
}

// LastRefreshAt returns when the source last refreshed successfully.
func (s *DataSource) LastRefreshAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefreshAt
}

// NextRefreshAt returns when the next refresh attempt is scheduled.
func (s *DataSource) NextRefreshAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRefreshAt
}

// Records returns the cached record set from the last successful refresh or
// upload. The slice is copied; the records themselves are not mutated after
// validation, so sharing them is safe.
func (s *DataSource) Records() []record.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]record.Record, len(s.records))
	copy(out, s.records)
	return out
}

// tryAcquire atomically marks a refresh in flight. It returns false when a
// refresh of this source is already running.
func (s *DataSource) tryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

// release clears the in-flight flag.
func (s *DataSource) release() {
	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}

// applySuccess installs a fresh record set and updates bookkeeping after a
// successful refresh or upload.
func (s *DataSource) applySuccess(records []record.Record, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = records
	s.recordCount = len(records)
	s.status = StatusActive
	s.quality = QualityVerified
	s.lastError = ""
	s.lastRefreshAt = now
	if s.Kind == KindAPI {
		s.nextRefreshAt = now.Add(s.RefreshInterval)
	}
}

// applyFailure records a failed refresh. Cached records and the record count
// stay untouched: the source serves stale-but-available data until the next
// successful refresh.
func (s *DataSource) applyFailure(msg string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusError
	s.quality = QualityError
	s.lastError = msg
	if s.Kind == KindAPI {
		s.nextRefreshAt = now.Add(s.RefreshInterval)
	}
}

// State is the serializable snapshot of a source's bookkeeping, persisted
// with the registry. Cached records are deliberately excluded: they are
// re-fetched on the next refresh.
type State struct {
	Config        Config      `json:"config"`
	Status        Status      `json:"status"`
	Quality       DataQuality `json:"quality"`
	LastRefreshAt time.Time   `json:"last_refresh_at,omitzero"`
	NextRefreshAt time.Time   `json:"next_refresh_at,omitzero"`
	LastError     string      `json:"last_error,omitempty"`
	RecordCount   int         `json:"record_count"`
}

// snapshot captures the source's current state.
func (s *DataSource) snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Config:        s.Config,
		Status:        s.status,
		Quality:       s.quality,
		LastRefreshAt: s.lastRefreshAt,
		NextRefreshAt: s.nextRefreshAt,
		LastError:     s.lastError,
		RecordCount:   s.recordCount,
	}
}

// restore applies a persisted state onto a freshly constructed source.
func (s *DataSource) restore(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st.Status
	s.quality = st.Quality
	s.lastRefreshAt = st.LastRefreshAt
	s.nextRefreshAt = st.NextRefreshAt
	s.lastError = st.LastError
	// recordCount intentionally not restored: it must reflect the cached
	// record set, which is empty until the next refresh or upload.
}
