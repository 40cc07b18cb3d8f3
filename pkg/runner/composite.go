package runner

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/ragocore/ragocore/pkg/guard"
	"github.com/ragocore/ragocore/pkg/log"
)

// CompositeRunner holds an ordered list of backends and dispatches every
// model-bound call to the first backend where IsModelInstalled holds,
// grounded on the Python SuperRunner (§4.4 "Composite runner", §9
// "polymorphic composites").
type CompositeRunner struct {
	backends    []Backend
	embedProbes singleflight.Group
}

// NewComposite builds a CompositeRunner over backends, tried in order.
func NewComposite(backends []Backend) *CompositeRunner {
	return &CompositeRunner{backends: backends}
}

func (c *CompositeRunner) Name() string { return "composite" }

// ListChatModels concatenates every backend's list; duplicate model names
// across backends are not deduplicated (§9 Open Questions: first backend
// wins at call time, by list order). A backend's own failure is logged and
// skipped rather than aborting the whole listing.
func (c *CompositeRunner) ListChatModels(ctx context.Context) ([]string, error) {
	var all []string
	for _, b := range c.backends {
		models, err := b.ListChatModels(ctx)
		if err != nil {
			log.Warnf("runner: backend %s failed to list models: %v", b.Name(), err)
			continue
		}
		all = append(all, models...)
	}
	return all, nil
}

func (c *CompositeRunner) firstFor(model string) Backend {
	for _, b := range c.backends {
		if b.IsModelInstalled(context.Background(), model) {
			return b
		}
	}
	return nil
}

func (c *CompositeRunner) IsModelInstalled(ctx context.Context, model string) bool {
	for _, b := range c.backends {
		if b.IsModelInstalled(ctx, model) {
			return true
		}
	}
	return false
}

// PullModel tries each backend in order until one succeeds.
func (c *CompositeRunner) PullModel(ctx context.Context, model string) error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.PullModel(ctx, model); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

// RemoveModel tries every backend, matching the Python original's "tries
// all" semantics rather than stopping at the first success.
func (c *CompositeRunner) RemoveModel(ctx context.Context, model string) error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.RemoveModel(ctx, model); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func (c *CompositeRunner) RunTextCompletionStreaming(ctx context.Context, model string, messages []Message, isStopped IsStoppedFunc, g *guard.Guard, onProgress ProgressFunc, opts Options) Result {
	b := c.firstFor(model)
	if b == nil {
		err := errModelNotInstalled(model)
		return Result{Text: fmt.Sprintf("Error: %v", err), Failed: true, Err: err}
	}
	return b.RunTextCompletionStreaming(ctx, model, messages, isStopped, g, onProgress, opts)
}

func (c *CompositeRunner) RunTextCompletionSimple(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	b := c.firstFor(model)
	if b == nil {
		return "", errModelNotInstalled(model)
	}
	return b.RunTextCompletionSimple(ctx, model, messages, opts)
}

// GetEmbedding probes backends in order until one returns a non-nil result.
// Concurrent calls for the same (model, text) pair - e.g. duplicate chunks
// embedded by the Ingestion Service's concurrent per-document workers -
// collapse into a single backend round trip via embedProbes.
func (c *CompositeRunner) GetEmbedding(ctx context.Context, model string, text string) ([]float64, error) {
	v, err, _ := c.embedProbes.Do(model+"\x00"+text, func() (interface{}, error) {
		var lastErr error
		for _, b := range c.backends {
			vec, err := b.GetEmbedding(ctx, model, text)
			if err == nil && vec != nil {
				return vec, nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, errModelNotInstalled(model)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float64), nil
}

// SupportsThinking returns the first non-nil probe result in backend order.
func (c *CompositeRunner) SupportsThinking(ctx context.Context, model string) *bool {
	for _, b := range c.backends {
		if v := b.SupportsThinking(ctx, model); v != nil {
			return v
		}
	}
	return nil
}

var _ Backend = (*CompositeRunner)(nil)
