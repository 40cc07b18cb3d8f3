package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsInfiniteGeneration_NonRepeatingNeverFlags(t *testing.T) {
	g := New(Config{SafeTokenThreshold: 0, MaxRepeats: 5, WindowSize: 5, TokenCheckInterval: 5})
	tokens := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n", "o", "p", "q", "r", "s", "t", "u", "v", "w", "x", "y"}
	for _, tok := range tokens {
		g.AccumulateTokens(tok)
	}
	assert.False(t, g.IsInfiniteGeneration())
}

func TestIsInfiniteGeneration_RepeatingSequenceTripsAtCheckInterval(t *testing.T) {
	g := New(Config{SafeTokenThreshold: 0, TokenCheckInterval: 5, MaxRepeats: 5, WindowSize: 5})
	seq := []string{"a", "b", "c", "d", "e"}
	tripped := false
	for i := 0; i < 5; i++ {
		for _, tok := range seq {
			g.AccumulateTokens(tok)
		}
		if g.IsInfiniteGeneration() {
			tripped = true
		}
	}
	assert.True(t, tripped)
}

func TestThinkContentSwitch_ClearsRingOnTransition(t *testing.T) {
	g := New(Config{SafeTokenThreshold: 0, TokenCheckInterval: 1, MaxRepeats: 2, WindowSize: 1})
	g.AccumulateTokens("a")
	g.AccumulateTokens("a")
	assert.NotEmpty(t, g.ring)

	g.ThinkContentSwitch("thinking-text", "")
	assert.Empty(t, g.ring)
}

func TestDisabledWhenNonPositive(t *testing.T) {
	g := New(Config{MaxRepeats: 0, WindowSize: 0, TokenCheckInterval: 0})
	for i := 0; i < 100; i++ {
		g.AccumulateTokens("a")
	}
	assert.False(t, g.IsInfiniteGeneration())
}
