package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/scout/pkg/types"
)

func TestWarmLoadsEmbeddedEncoding(t *testing.T) {
	require.NoError(t, Warm())
	assert.Equal(t, 1, CountTokens("Hello"))
	assert.Equal(t, 2, CountTokens("Hello world"))
}

func TestCountTokens(t *testing.T) {
	tests := []struct {
		name string
		text string
		min  int
		max  int
	}{
		{"empty string", "", 0, 0},
		{"short text", "Hello", 1, 2},
		{"sentence", "This is a test of token counting functionality", 8, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count := CountTokens(tt.text)
			assert.GreaterOrEqual(t, count, tt.min)
			assert.LessOrEqual(t, count, tt.max)
		})
	}
}

func TestCountMessagesIncludesOverhead(t *testing.T) {
	msgs := []*types.Message{
		types.NewSystemMessage("You are a helpful assistant."),
		types.NewUserMessage("Hello"),
	}
	total := CountMessages(msgs)
	assert.Greater(t, total, CountTokens("You are a helpful assistant.")+CountTokens("Hello"))
	assert.Equal(t, 2, CountMessages(nil))
}
