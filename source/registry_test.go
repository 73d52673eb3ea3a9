package source_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/fuserr"
	"github.com/lucidrx/fusion/record"
	"github.com/lucidrx/fusion/source"
)

func apiConfig(id string) source.Config {
	return source.Config{
		ID:              id,
		Name:            "Trial feed",
		Kind:            source.KindAPI,
		Endpoint:        "https://api.example.com/trials",
		DataType:        agent.DataTypeClinicalTrials,
		RefreshInterval: 30 * time.Minute,
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := source.NewRegistry()

	src, err := reg.Register(apiConfig("ct1"))
	require.NoError(t, err)
	assert.Equal(t, source.StatusActive, src.Status())
	assert.Equal(t, source.QualityUnknown, src.Quality())

	got, err := reg.Get("ct1")
	require.NoError(t, err)
	assert.Same(t, src, got)
}

func TestRegisterDuplicate(t *testing.T) {
	reg := source.NewRegistry()

	_, err := reg.Register(apiConfig("ct1"))
	require.NoError(t, err)

	_, err = reg.Register(apiConfig("ct1"))
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeDuplicateSource))
}

func TestRegisterInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*source.Config)
	}{
		{
			name:   "empty id",
			mutate: func(c *source.Config) { c.ID = "" },
		},
		{
			name:   "unknown kind",
			mutate: func(c *source.Config) { c.Kind = "ftp" },
		},
		{
			name:   "unknown data type",
			mutate: func(c *source.Config) { c.DataType = "weather" },
		},
		{
			name:   "wildcard data type",
			mutate: func(c *source.Config) { c.DataType = agent.DataTypeAll },
		},
		{
			name:   "api without endpoint",
			mutate: func(c *source.Config) { c.Endpoint = "" },
		},
		{
			name:   "api without interval",
			mutate: func(c *source.Config) { c.RefreshInterval = 0 },
		},
		{
			name: "malformed derive expression",
			mutate: func(c *source.Config) {
				c.Transformations = []record.Rule{{Kind: record.RuleDerive, Field: "x", Expr: "fields. +"}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := apiConfig("ct1")
			tt.mutate(&cfg)

			reg := source.NewRegistry()
			_, err := reg.Register(cfg)
			require.Error(t, err)
			assert.True(t, fuserr.IsCode(err, fuserr.CodeInvalidConfig))
		})
	}
}

func TestDeregister(t *testing.T) {
	reg := source.NewRegistry()
	_, err := reg.Register(apiConfig("ct1"))
	require.NoError(t, err)

	require.NoError(t, reg.Deregister("ct1"))

	_, err = reg.Get("ct1")
	require.Error(t, err)
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))

	err = reg.Deregister("ct1")
	assert.True(t, fuserr.IsCode(err, fuserr.CodeSourceNotFound))
}

func TestListSorted(t *testing.T) {
	reg := source.NewRegistry()
	for _, id := range []string{"zeta", "alpha", "mid"} {
		_, err := reg.Register(apiConfig(id))
		require.NoError(t, err)
	}

	var ids []string
	for _, src := range reg.List() {
		ids = append(ids, src.ID)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, ids)
}

// fakeStore is an in-memory RegistryStore.
type fakeStore struct {
	states []source.State
}

func (f *fakeStore) PutRegistry(ctx context.Context, states []source.State) error {
	f.states = states
	return nil
}

func (f *fakeStore) GetRegistry(ctx context.Context) ([]source.State, error) {
	return f.states, nil
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}

	reg := source.NewRegistry()
	_, err := reg.Register(apiConfig("ct1"))
	require.NoError(t, err)
	_, err = reg.Register(source.Config{
		ID:       "uploads",
		Kind:     source.KindFile,
		DataType: agent.DataTypePatents,
	})
	require.NoError(t, err)

	require.NoError(t, reg.Snapshot(ctx, store))
	require.Len(t, store.states, 2)

	restored := source.NewRegistry()
	require.NoError(t, restored.Restore(ctx, store))
	require.Len(t, restored.List(), 2)

	src, err := restored.Get("ct1")
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/trials", src.Endpoint)
	assert.Equal(t, 30*time.Minute, src.RefreshInterval)

	// Cached records are not persisted, so the count resets.
	assert.Equal(t, 0, src.RecordCount())
}
