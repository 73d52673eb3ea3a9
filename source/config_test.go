package source_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/agent"
	"github.com/lucidrx/fusion/record"
	"github.com/lucidrx/fusion/source"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestLoadConfigs(t *testing.T) {
	path := writeConfig(t, `
sources:
  - id: ct1
    name: Trial registry feed
    kind: api
    endpoint: https://api.example.com/trials
    data_type: clinical_trials
    refresh_interval: 30m
    schema:
      nct_id: {type: string, required: true}
      enrollment: {type: number}
    transformations:
      - {kind: rename, from: lead_sponsor, to: sponsor}
      - {kind: format, field: sponsor, style: uppercase}
  - id: uspto
    name: Patent uploads
    kind: file
    data_type: patents
`)

	configs, err := source.LoadConfigs(path)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	ct := configs[0]
	assert.Equal(t, "ct1", ct.ID)
	assert.Equal(t, source.KindAPI, ct.Kind)
	assert.Equal(t, agent.DataTypeClinicalTrials, ct.DataType)
	assert.Equal(t, 30*time.Minute, ct.RefreshInterval)
	assert.True(t, ct.Schema["nct_id"].Required)
	assert.Equal(t, record.TypeNumber, ct.Schema["enrollment"].Type)
	require.Len(t, ct.Transformations, 2)
	assert.Equal(t, record.RuleRename, ct.Transformations[0].Kind)
	assert.Equal(t, "sponsor", ct.Transformations[0].To)

	assert.Equal(t, source.KindFile, configs[1].Kind)
	assert.Zero(t, configs[1].RefreshInterval)
}

func TestLoadConfigsBadDuration(t *testing.T) {
	path := writeConfig(t, `
sources:
  - id: ct1
    kind: api
    endpoint: https://api.example.com/trials
    data_type: clinical_trials
    refresh_interval: soon
`)

	_, err := source.LoadConfigs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid refresh_interval")
	assert.Contains(t, err.Error(), "ct1")
}

func TestLoadConfigsInvalidEntryFailsFast(t *testing.T) {
	path := writeConfig(t, `
sources:
  - id: good
    kind: file
    data_type: patents
  - id: bad
    kind: api
    data_type: clinical_trials
    refresh_interval: 15m
`)

	_, err := source.LoadConfigs(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source 1 (bad)")
	assert.Contains(t, err.Error(), "endpoint")
}

func TestLoadConfigsMissingFile(t *testing.T) {
	_, err := source.LoadConfigs(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "sources: [\n")
	_, err := source.LoadConfigs(path)
	require.Error(t, err)
}
