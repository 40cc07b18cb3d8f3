package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/ragocore/ragocore/pkg/guard"
)

// DebugRunner is a deterministic in-process Backend for tests and local
// smoke runs: it "installs" a fixed set of models and echoes the last
// user message back token-by-token instead of calling out to a real LLM.
type DebugRunner struct {
	name      string
	installed map[string]bool
	thinking  map[string]bool
}

// NewDebug builds a DebugRunner with the given installed model set.
// thinkingModels names the subset that reports thinking support; unlike
// the Python original's `capabilities is not None` check (which reported
// true for every installed model because the dict was never empty),
// SupportsThinking here answers only for models actually listed.
func NewDebug(name string, installedModels []string, thinkingModels []string) *DebugRunner {
	installed := make(map[string]bool, len(installedModels))
	for _, m := range installedModels {
		installed[m] = true
	}
	thinking := make(map[string]bool, len(thinkingModels))
	for _, m := range thinkingModels {
		thinking[m] = true
	}
	return &DebugRunner{name: name, installed: installed, thinking: thinking}
}

func (d *DebugRunner) Name() string { return d.name }

func (d *DebugRunner) ListChatModels(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(d.installed))
	for m := range d.installed {
		names = append(names, m)
	}
	return names, nil
}

func (d *DebugRunner) IsModelInstalled(ctx context.Context, model string) bool {
	return d.installed[model]
}

func (d *DebugRunner) PullModel(ctx context.Context, model string) error {
	d.installed[model] = true
	return nil
}

func (d *DebugRunner) RemoveModel(ctx context.Context, model string) error {
	delete(d.installed, model)
	return nil
}

func lastUserMessage(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

func (d *DebugRunner) RunTextCompletionStreaming(ctx context.Context, model string, messages []Message, isStopped IsStoppedFunc, g *guard.Guard, onProgress ProgressFunc, opts Options) Result {
	if !d.installed[model] {
		return backendErrorFailure("", errModelNotInstalled(model))
	}
	if g == nil {
		g = guard.New(guard.Config{})
	}

	reply := fmt.Sprintf("echo: %s", lastUserMessage(messages))
	tokens := strings.Fields(reply)

	var assistantText strings.Builder
	for i, tok := range tokens {
		if isStopped != nil && isStopped() {
			assistantText.WriteString("[STOP]")
			return Result{Text: assistantText.String(), Failed: true}
		}
		piece := tok
		if i > 0 {
			piece = " " + piece
		}
		g.ThinkContentSwitch("", piece)
		g.AccumulateTokens(piece)
		assistantText.WriteString(piece)
		if onProgress != nil {
			onProgress(Progress{Status: StatusGenerating, NewTokens: piece, TotalResponseTokens: i + 1})
		}
		if g.IsInfiniteGeneration() {
			return infiniteLoopFailure(assistantText.String(), g)
		}
	}
	return Result{Text: assistantText.String(), Failed: false}
}

func (d *DebugRunner) RunTextCompletionSimple(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	if !d.installed[model] {
		return "", errModelNotInstalled(model)
	}
	return fmt.Sprintf("echo: %s", lastUserMessage(messages)), nil
}

func (d *DebugRunner) GetEmbedding(ctx context.Context, model string, text string) ([]float64, error) {
	if !d.installed[model] {
		return nil, errModelNotInstalled(model)
	}
	vec := make([]float64, 8)
	for i, r := range text {
		vec[i%8] += float64(r % 97)
	}
	return vec, nil
}

func (d *DebugRunner) SupportsThinking(ctx context.Context, model string) *bool {
	if !d.installed[model] {
		return nil
	}
	v := d.thinking[model]
	return &v
}

var _ Backend = (*DebugRunner)(nil)
