package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient part error", fmt.Errorf("part 3: %w", ErrRemotePart), true},
		{"rejected part", fmt.Errorf("part 3: %w", ErrRemoteRejected), false},
		{"rejected wrapped as part", fmt.Errorf("%w: %w", ErrRemotePart, ErrRemoteRejected), false},
		{"unrelated", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
