package convertor

import (
	"context"

	"github.com/ragocore/ragocore/pkg/guard"
	"github.com/ragocore/ragocore/pkg/runner"
)

// stubBackend is a minimal runner.Backend double for exercising the
// LLM-dependent convertor dialects without a real model backend.
type stubBackend struct {
	reply       string
	lastMessage runner.Message
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) ListChatModels(ctx context.Context) ([]string, error) { return nil, nil }

func (s *stubBackend) IsModelInstalled(ctx context.Context, model string) bool { return true }

func (s *stubBackend) PullModel(ctx context.Context, model string) error { return nil }

func (s *stubBackend) RemoveModel(ctx context.Context, model string) error { return nil }

func (s *stubBackend) RunTextCompletionStreaming(ctx context.Context, model string, messages []runner.Message, isStopped runner.IsStoppedFunc, g *guard.Guard, onProgress runner.ProgressFunc, opts runner.Options) runner.Result {
	return runner.Result{Text: s.reply}
}

func (s *stubBackend) RunTextCompletionSimple(ctx context.Context, model string, messages []runner.Message, opts runner.Options) (string, error) {
	if len(messages) > 0 {
		s.lastMessage = messages[len(messages)-1]
	}
	return s.reply, nil
}

func (s *stubBackend) GetEmbedding(ctx context.Context, model string, text string) ([]float64, error) {
	return []float64{1, 2, 3}, nil
}

func (s *stubBackend) SupportsThinking(ctx context.Context, model string) *bool { return nil }

var _ runner.Backend = (*stubBackend)(nil)
