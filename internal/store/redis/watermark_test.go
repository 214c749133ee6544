package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanjulaonline/algorand-live-pool-Monitor/internal/domain/model"
)

func TestParseRound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expected  model.Round
		expectErr bool
	}{
		{name: "zero", input: "0", expected: 0},
		{name: "round", input: "36000500", expected: 36_000_500},
		{name: "whitespace trimmed", input: " 42 ", expected: 42},
		{name: "negative", input: "-5", expectErr: true},
		{name: "non-numeric", input: "abc", expectErr: true},
		{name: "empty", input: "", expectErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRound("dex-monitor", tt.input)
			if tt.expectErr {
				assert.ErrorIs(t, err, model.ErrCorruptWatermark)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestNewWithClient_DefaultKey(t *testing.T) {
	s := NewWithClient(nil, "")
	assert.Equal(t, DefaultKey, s.key)

	s = NewWithClient(nil, "custom:wm")
	assert.Equal(t, "custom:wm", s.key)
}
