package ids

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Length(t *testing.T) {
	id := New()
	assert.Len(t, id, EntityIDLength)
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New()
		require.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
	}
}

func TestNewToken_Format(t *testing.T) {
	tok := NewToken()
	assert.Len(t, tok, len(TokenPrefix)+TokenRandomLength)
	assert.True(t, IsTokenID(tok))
}

func TestIsTokenID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid", NewToken(), true},
		{"empty", "", false},
		{"missing prefix", "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQ", false},
		{"wrong prefix", "mcpx_" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"too short", TokenPrefix + "abc", false},
		{"too long", TokenPrefix + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"invalid characters", TokenPrefix + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa!b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTokenID(tt.input))
		})
	}
}
