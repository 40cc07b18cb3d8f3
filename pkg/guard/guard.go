// Package guard implements the Generation Guard (spec.md §4.8): a streaming
// watchdog that detects pathological token repetition in a model's output.
package guard

// Config carries the guard's four thresholds; any non-positive field
// disables the corresponding behavior, matching the Python original's
// "-1 disables" convention.
type Config struct {
	SafeTokenThreshold int
	MaxRepeats         int
	WindowSize         int
	TokenCheckInterval int
}

// Guard tracks a single streaming generation's token history to detect
// infinite loops. Not safe for concurrent use; one Guard per in-flight
// stream.
type Guard struct {
	cfg Config

	tokenCount   int
	ring         []string
	inThinking   bool
}

// New constructs a Guard from cfg. from_settings in the Python original is
// just this constructor plus a config struct, so there is no separate
// factory here.
func New(cfg Config) *Guard {
	return &Guard{cfg: cfg}
}

// ThinkContentSwitch clears the token ring when the stream transitions
// between "thinking" output and normal content — a phase transition is
// evidence of progress, not a loop. thinkingToken and contentToken are the
// two slots of the most recent stream event; exactly one is expected to be
// non-empty on any given call when a transition occurs.
func (g *Guard) ThinkContentSwitch(thinkingToken, contentToken string) {
	wasThinking := g.inThinking
	if thinkingToken != "" {
		g.inThinking = true
	} else if contentToken != "" {
		g.inThinking = false
	}
	if wasThinking != g.inThinking {
		g.ring = g.ring[:0]
	}
}

// AccumulateTokens records one emitted token. Below SafeTokenThreshold,
// tokens are counted but not added to the repetition ring.
func (g *Guard) AccumulateTokens(t string) {
	g.tokenCount++
	if g.cfg.SafeTokenThreshold > 0 && g.tokenCount <= g.cfg.SafeTokenThreshold {
		return
	}
	g.ring = append(g.ring, t)
}

// isCheckInterval reports whether the current token count lands on a
// token_check_interval boundary.
func (g *Guard) isCheckInterval() bool {
	if g.cfg.TokenCheckInterval <= 0 {
		return false
	}
	return g.tokenCount%g.cfg.TokenCheckInterval == 0
}

// IsInfiniteGeneration implements the sliding-window repetition check: false
// unless the ring is long enough and the token count lands on a check-
// interval boundary; otherwise counts every length-WindowSize contiguous
// subsequence and reports true iff any recurs at least MaxRepeats times.
func (g *Guard) IsInfiniteGeneration() bool {
	if g.cfg.WindowSize <= 0 || g.cfg.MaxRepeats <= 0 {
		return false
	}
	if len(g.ring) < g.cfg.WindowSize*g.cfg.MaxRepeats {
		return false
	}
	if !g.isCheckInterval() {
		return false
	}

	counts := make(map[string]int)
	for i := 0; i+g.cfg.WindowSize <= len(g.ring); i++ {
		key := sequenceKey(g.ring[i : i+g.cfg.WindowSize])
		counts[key]++
		if counts[key] >= g.cfg.MaxRepeats {
			return true
		}
	}
	return false
}

// sequenceKey joins a window of tokens into a map key using a separator
// unlikely to appear inside a token, so distinct windows never collide.
func sequenceKey(window []string) string {
	const sep = "\x1f"
	out := ""
	for i, t := range window {
		if i > 0 {
			out += sep
		}
		out += t
	}
	return out
}

// MessageInfiniteLoop returns the canned notice appended to assistant text
// when a loop is detected, naming whether it happened during the model's
// thinking phase or its regular content.
func (g *Guard) MessageInfiniteLoop() string {
	phase := "content"
	if g.inThinking {
		phase = "thinking"
	}
	return "\n\n[Generation stopped: repetitive output detected during " + phase + " phase]"
}
