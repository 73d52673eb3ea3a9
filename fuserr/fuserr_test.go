package fuserr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lucidrx/fusion/fuserr"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *fuserr.Error
		expected string
	}{
		{
			name:     "source op code message",
			err:      fuserr.New("ct1", "registry.Register", fuserr.CodeDuplicateSource, "source id already registered"),
			expected: "ct1 [registry.Register/DUPLICATE_SOURCE]: source id already registered",
		},
		{
			name:     "no source",
			err:      fuserr.New("", "export", fuserr.CodeUnsupportedFormat, "unknown format"),
			expected: "[export/UNSUPPORTED_FORMAT]: unknown format",
		},
		{
			name: "with cause",
			err: fuserr.New("pat1", "scheduler.refresh", fuserr.CodeUpstreamUnavailable, "refresh failed").
				WithCause(errors.New("connection refused")),
			expected: "pat1 [scheduler.refresh/UPSTREAM_UNAVAILABLE]: refresh failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := fuserr.New("g1", "store.PutGraph", fuserr.CodePersistenceFailed, "snapshot write failed").
		WithCause(cause)

	assert.True(t, errors.Is(err, cause))

	wrapped := fmt.Errorf("build: %w", err)
	var fe *fuserr.Error
	require.True(t, errors.As(wrapped, &fe))
	assert.Equal(t, fuserr.CodePersistenceFailed, fe.Code)
}

func TestIsMatchesByCode(t *testing.T) {
	err := fuserr.New("ct1", "registry.Get", fuserr.CodeSourceNotFound, "no such source")

	assert.True(t, errors.Is(err, &fuserr.Error{Code: fuserr.CodeSourceNotFound}))
	assert.False(t, errors.Is(err, &fuserr.Error{Code: fuserr.CodeGraphNotFound}))
	assert.True(t, errors.Is(err, &fuserr.Error{Source: "ct1", Code: fuserr.CodeSourceNotFound}))
	assert.False(t, errors.Is(err, &fuserr.Error{Source: "other", Code: fuserr.CodeSourceNotFound}))
}

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", fuserr.New("", "parse", fuserr.CodeUnsupportedFormat, "xml not supported"))

	assert.True(t, fuserr.IsCode(err, fuserr.CodeUnsupportedFormat))
	assert.False(t, fuserr.IsCode(err, fuserr.CodeValidationFailed))
	assert.False(t, fuserr.IsCode(errors.New("plain"), fuserr.CodeValidationFailed))
}
