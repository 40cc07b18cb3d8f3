package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/ragocore/ragocore/pkg/guard"
)

// OpenAIRunner wraps the OpenAI Chat Completions API as a Backend.
// Hosted models have no local install/remove lifecycle and no separate
// thinking channel on Chat Completions, so those calls are no-ops or
// conservative "unknown" answers rather than hard errors.
type OpenAIRunner struct {
	name   string
	client openai.Client
}

// NewOpenAI builds an OpenAIRunner. baseURL may be empty to use the
// default OpenAI endpoint (a non-default baseURL lets this same backend
// front any OpenAI-compatible gateway).
func NewOpenAI(name, apiKey, baseURL string) *OpenAIRunner {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIRunner{name: name, client: openai.NewClient(opts...)}
}

func (o *OpenAIRunner) Name() string { return o.name }

func (o *OpenAIRunner) ListChatModels(ctx context.Context) ([]string, error) {
	page, err := o.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for page != nil {
		for _, m := range page.Data {
			names = append(names, m.ID)
		}
		page, err = page.GetNextPage()
		if err != nil {
			break
		}
	}
	return names, nil
}

func (o *OpenAIRunner) IsModelInstalled(ctx context.Context, model string) bool {
	if model == "" {
		return false
	}
	names, err := o.ListChatModels(ctx)
	if err != nil {
		return false
	}
	return contains(names, model)
}

// PullModel is a no-op: hosted models need no local download step.
func (o *OpenAIRunner) PullModel(ctx context.Context, model string) error { return nil }

// RemoveModel is a no-op for the same reason PullModel is.
func (o *OpenAIRunner) RemoveModel(ctx context.Context, model string) error { return nil }

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := []openai.ChatCompletionContentPartUnionParam{
				{OfText: &openai.ChatCompletionContentPartTextParam{Text: m.Content}},
			}
			for _, img := range m.Images {
				parts = append(parts, openai.ChatCompletionContentPartUnionParam{
					OfImageURL: &openai.ChatCompletionContentPartImageParam{
						ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: img},
					},
				})
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

func toOpenAIParams(model string, messages []Message, opts Options) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}
	if opts.NumPredict != nil {
		params.MaxTokens = openai.Int(int64(*opts.NumPredict))
	}
	return params
}

func (o *OpenAIRunner) RunTextCompletionStreaming(ctx context.Context, model string, messages []Message, isStopped IsStoppedFunc, g *guard.Guard, onProgress ProgressFunc, opts Options) Result {
	if g == nil {
		g = guard.New(guard.Config{})
	}

	params := toOpenAIParams(model, messages, opts)
	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var assistantText strings.Builder
	numChunks := 0
	started := false

	for stream.Next() {
		if isStopped != nil && isStopped() {
			assistantText.WriteString("[STOP]")
			if onProgress != nil {
				onProgress(Progress{Status: StatusError, TotalResponseTokens: numChunks, Message: "LLM model has been stopped"})
			}
			return Result{Text: assistantText.String(), Failed: true}
		}

		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}

		g.ThinkContentSwitch("", delta)
		numChunks++
		g.AccumulateTokens(delta)
		assistantText.WriteString(delta)

		if started && onProgress != nil {
			onProgress(Progress{Status: StatusGenerating, NewTokens: delta, TotalResponseTokens: numChunks})
		}
		started = true

		if g.IsInfiniteGeneration() {
			if onProgress != nil {
				onProgress(Progress{Status: StatusError, TotalResponseTokens: numChunks, Message: "LLM model has entered an infinite loop and response generation has been stopped. Please try another prompt or model."})
			}
			return infiniteLoopFailure(assistantText.String(), g)
		}
	}
	if err := stream.Err(); err != nil {
		return handleStreamError(assistantText.String(), numChunks, onProgress, err)
	}

	if assistantText.Len() == 0 {
		return emptyResponseFailure(o.name)
	}
	return Result{Text: assistantText.String(), Failed: false}
}

func (o *OpenAIRunner) RunTextCompletionSimple(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	params := toOpenAIParams(model, messages, opts)
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai runner %s: empty response", o.name)
	}
	return completion.Choices[0].Message.Content, nil
}

func (o *OpenAIRunner) GetEmbedding(ctx context.Context, model string, text string) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Model: model,
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: []string{text}},
	}
	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	return resp.Data[0].Embedding, nil
}

// SupportsThinking always returns nil: Chat Completions exposes no
// capability metadata to probe for a reasoning channel.
func (o *OpenAIRunner) SupportsThinking(ctx context.Context, model string) *bool { return nil }

var _ Backend = (*OpenAIRunner)(nil)
