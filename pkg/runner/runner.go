// Package runner implements the Runner component (spec.md §4.4): a uniform
// interface over model backends (list/install models, streaming completion,
// embedding, thinking-capability probe), with a composite Runner dispatching
// by "which backend has this model".
package runner

import (
	"context"
	"fmt"

	"github.com/ragocore/ragocore/pkg/guard"
)

// Message mirrors the wire shape {role, content, images?} (§4.4).
type Message struct {
	Role    string
	Content string
	// Images carries base64-encoded image payloads for multimodal turns.
	Images []string
}

// Options carries the tunables a backend may or may not honor; unsupported
// keys are silently dropped per backend (e.g. a hosted API with no seed).
type Options struct {
	Seed        *int
	Temperature *float64
	NumPredict  *int
}

// ProgressStatus is the status field of a streaming progress update.
type ProgressStatus string

const (
	StatusGenerating ProgressStatus = "generating"
	StatusFinished   ProgressStatus = "finished"
	StatusError      ProgressStatus = "error"
)

// Progress is one streaming update (§4.4 Streaming contract step b). The
// Ollama and OpenAI backends emit a generating update for every content
// event after the first; DebugRunner emits one for every token.
type Progress struct {
	Status               ProgressStatus
	NewTokens             string
	DurationSeconds       float64
	TotalResponseTokens   int
	Message               string
}

// ProgressFunc receives streaming progress updates; it must be side-effect
// only and non-blocking beyond a single publish (§5 Ordering guarantees).
type ProgressFunc func(Progress)

// IsStoppedFunc reports cooperative cancellation, polled between stream
// events.
type IsStoppedFunc func() bool

// Result is the outcome of a streaming completion (§4.4 Streaming contract).
// Err carries the underlying cause for a Failed result when one exists (a
// transient backend error, an empty response); it is nil for guard trips and
// cooperative cancellation, which are not errors in that sense.
type Result struct {
	Text   string
	Failed bool
	Err    error
}

// Backend is the contract every concrete model-runner implementation
// satisfies.
type Backend interface {
	Name() string
	ListChatModels(ctx context.Context) ([]string, error)
	IsModelInstalled(ctx context.Context, model string) bool
	PullModel(ctx context.Context, model string) error
	RemoveModel(ctx context.Context, model string) error
	RunTextCompletionStreaming(ctx context.Context, model string, messages []Message, isStopped IsStoppedFunc, g *guard.Guard, onProgress ProgressFunc, opts Options) Result
	RunTextCompletionSimple(ctx context.Context, model string, messages []Message, opts Options) (string, error)
	GetEmbedding(ctx context.Context, model string, text string) ([]float64, error)
	// SupportsThinking returns nil when the backend cannot determine
	// thinking support for model (tri-state probe, §4.4).
	SupportsThinking(ctx context.Context, model string) *bool
}

// infiniteLoopFailure builds the canned Result for a guard trip.
func infiniteLoopFailure(text string, g *guard.Guard) Result {
	return Result{Text: text + g.MessageInfiniteLoop(), Failed: true}
}

// cancelledFailure builds the canned Result for cooperative cancellation
// (§4.4 terminal outcome table).
func cancelledFailure(text string) Result {
	return Result{Text: text + "[STOP]", Failed: true}
}

// emptyResponseFailure builds the canned Result for a backend that streamed
// zero tokens; unlike a guard trip or a cancellation it carries a genuine
// error (ollama_runner.py raises ValueError on an empty response).
func emptyResponseFailure(name string) Result {
	err := fmt.Errorf("%s: empty response", name)
	return Result{Text: fmt.Sprintf("Error: %v", err), Failed: true, Err: err}
}

// backendErrorFailure builds the canned Result for a transient backend
// error, appending a formatted error note when text is non-empty (§7).
func backendErrorFailure(text string, err error) Result {
	if text == "" {
		return Result{Text: fmt.Sprintf("Error: %v", err), Failed: true, Err: err}
	}
	return Result{Text: text + fmt.Sprintf("\n\n[Error: %v]", err), Failed: true, Err: err}
}
