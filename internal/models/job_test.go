package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Predicates(t *testing.T) {
	tests := []struct {
		s         JobStatus
		resumable bool
		terminal  bool
	}{
		{JobInitiated, true, false},
		{JobInProgress, true, false},
		{JobCompleting, false, false},
		{JobCompleted, false, true},
		{JobAborted, false, true},
		{JobFailed, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			assert.Equal(t, tt.resumable, tt.s.Resumable())
			assert.Equal(t, tt.terminal, tt.s.Terminal())
		})
	}
}

func TestJob_Plan(t *testing.T) {
	j := &Job{TotalSize: 10_000_000, ChunkSize: 4 << 20}
	p, err := j.Plan()
	require.NoError(t, err)
	assert.Equal(t, 3, p.Count())
}
