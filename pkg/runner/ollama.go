package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ragocore/ragocore/pkg/guard"
	"github.com/ragocore/ragocore/pkg/log"
)

// RandomSeed and MaxTokensLimit mirror the Python original's RANDOM_SEED/
// MAX_TOKENS_LIMIT defaults applied when a caller doesn't override them.
const (
	RandomSeed     = 42
	MaxTokensLimit = 32000
)

// OllamaRunner talks to a local Ollama-compatible `/api/chat` endpoint,
// grounded on spec.md §6 dialect 1 and the Python OllamaRunner.
type OllamaRunner struct {
	name string
	host string
	http *http.Client
}

// NewOllama builds an OllamaRunner against host (trailing slash trimmed).
func NewOllama(name, host string) *OllamaRunner {
	return &OllamaRunner{
		name: name,
		host: strings.TrimSuffix(host, "/"),
		http: &http.Client{},
	}
}

func (o *OllamaRunner) Name() string { return o.name }

type tagsResponse struct {
	Models []struct {
		Model string `json:"model"`
	} `json:"models"`
}

func (o *OllamaRunner) listInstalledModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Model)
	}
	return names, nil
}

// ListChatModels returns every installed model whose capabilities include
// "completion", probing /api/show once per model.
func (o *OllamaRunner) ListChatModels(ctx context.Context) ([]string, error) {
	names, err := o.listInstalledModels(ctx)
	if err != nil {
		return nil, err
	}
	var completionModels []string
	for _, name := range names {
		caps, err := o.modelCapabilities(ctx, name)
		if err != nil {
			log.Warnf("ollama runner %s: failed to probe capabilities of %s: %v", o.name, name, err)
			continue
		}
		if contains(caps, "completion") {
			completionModels = append(completionModels, name)
		}
	}
	return completionModels, nil
}

type showResponse struct {
	Capabilities []string `json:"capabilities"`
}

func (o *OllamaRunner) modelCapabilities(ctx context.Context, model string) ([]string, error) {
	body, _ := json.Marshal(map[string]string{"model": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/show", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var show showResponse
	if err := json.NewDecoder(resp.Body).Decode(&show); err != nil {
		return nil, err
	}
	return show.Capabilities, nil
}

func (o *OllamaRunner) IsModelInstalled(ctx context.Context, model string) bool {
	if model == "" {
		return false
	}
	names, err := o.listInstalledModels(ctx)
	if err != nil {
		return false
	}
	return contains(names, model)
}

func (o *OllamaRunner) SupportsThinking(ctx context.Context, model string) *bool {
	if !o.IsModelInstalled(ctx, model) {
		return nil
	}
	caps, err := o.modelCapabilities(ctx, model)
	if err != nil {
		return nil
	}
	v := contains(caps, "thinking")
	return &v
}

type chatMessage struct {
	Role     string   `json:"role"`
	Content  string   `json:"content"`
	Thinking string   `json:"thinking,omitempty"`
	Images   []string `json:"images,omitempty"`
}

type chatOptions struct {
	Seed        int      `json:"seed"`
	NumPredict  int      `json:"num_predict"`
	Temperature *float64 `json:"temperature,omitempty"`
}

func toChatOptions(opts Options) chatOptions {
	co := chatOptions{Seed: RandomSeed, NumPredict: MaxTokensLimit}
	if opts.Seed != nil {
		co.Seed = *opts.Seed
	}
	if opts.NumPredict != nil {
		co.NumPredict = *opts.NumPredict
	}
	if opts.Temperature != nil {
		co.Temperature = opts.Temperature
	}
	return co
}

func toChatMessages(messages []Message) []chatMessage {
	out := make([]chatMessage, len(messages))
	for i, m := range messages {
		out[i] = chatMessage{Role: m.Role, Content: m.Content, Images: m.Images}
	}
	return out
}

type chatChunk struct {
	Done    bool        `json:"done"`
	Error   string      `json:"error"`
	Message chatMessage `json:"message"`
}

func (o *OllamaRunner) RunTextCompletionStreaming(ctx context.Context, model string, messages []Message, isStopped IsStoppedFunc, g *guard.Guard, onProgress ProgressFunc, opts Options) Result {
	if g == nil {
		g = guard.New(guard.Config{})
	}

	payload := map[string]interface{}{
		"model":    model,
		"messages": toChatMessages(messages),
		"stream":   true,
		"options":  toChatOptions(opts),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return backendErrorFailure("", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return backendErrorFailure("", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return backendErrorFailure("", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return backendErrorFailure("", fmt.Errorf("ollama runner %s: status %d", o.name, resp.StatusCode))
	}

	var assistantText strings.Builder
	numChunks := 0
	var lastTimestamp time.Time

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if isStopped != nil && isStopped() {
			assistantText.WriteString("[STOP]")
			if onProgress != nil {
				onProgress(Progress{Status: StatusError, TotalResponseTokens: numChunks, Message: "LLM model has been stopped"})
			}
			return Result{Text: assistantText.String(), Failed: true}
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		now := time.Now()
		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Done {
			break
		}
		if chunk.Error != "" {
			return handleStreamError(assistantText.String(), numChunks, onProgress, fmt.Errorf("%s", chunk.Error))
		}

		g.ThinkContentSwitch(chunk.Message.Thinking, chunk.Message.Content)
		tokenText := chunk.Message.Content
		if tokenText == "" {
			tokenText = chunk.Message.Thinking
		}
		numChunks++
		g.AccumulateTokens(tokenText)
		assistantText.WriteString(tokenText)

		if !lastTimestamp.IsZero() && onProgress != nil {
			onProgress(Progress{
				Status:              StatusGenerating,
				NewTokens:           tokenText,
				DurationSeconds:     now.Sub(lastTimestamp).Seconds(),
				TotalResponseTokens: numChunks,
			})
		}

		if g.IsInfiniteGeneration() {
			if onProgress != nil {
				onProgress(Progress{Status: StatusError, TotalResponseTokens: numChunks, Message: "LLM model has entered an infinite loop and response generation has been stopped. Please try another prompt or model."})
			}
			return infiniteLoopFailure(assistantText.String(), g)
		}
		lastTimestamp = now
	}
	if err := scanner.Err(); err != nil {
		return handleStreamError(assistantText.String(), numChunks, onProgress, err)
	}

	if assistantText.Len() == 0 {
		return emptyResponseFailure(o.name)
	}
	return Result{Text: assistantText.String(), Failed: false}
}

func handleStreamError(partial string, numChunks int, onProgress ProgressFunc, err error) Result {
	if onProgress != nil {
		onProgress(Progress{Status: StatusError, TotalResponseTokens: numChunks, Message: err.Error()})
	}
	log.Errf("ollama runner: error occurred while generating response: %v", err)
	if partial != "" {
		return backendErrorFailure(partial, err)
	}
	return Result{Text: "", Failed: true}
}

func (o *OllamaRunner) RunTextCompletionSimple(ctx context.Context, model string, messages []Message, opts Options) (string, error) {
	payload := map[string]interface{}{
		"model":    model,
		"messages": toChatMessages(messages),
		"stream":   false,
		"options":  toChatOptions(opts),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var chunk chatChunk
	if err := json.NewDecoder(resp.Body).Decode(&chunk); err != nil {
		return "", err
	}
	return chunk.Message.Content, nil
}

// GetEmbedding calls Ollama's /api/embeddings endpoint.
func (o *OllamaRunner) GetEmbedding(ctx context.Context, model string, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]string{"model": model, "prompt": text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, nil
	}
	return out.Embedding, nil
}

func (o *OllamaRunner) PullModel(ctx context.Context, model string) error {
	body, _ := json.Marshal(map[string]interface{}{"name": model, "stream": false})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	if _, hasErr := out["error"]; hasErr {
		return fmt.Errorf("ollama runner %s: pull failed: %v", o.name, out["error"])
	}
	return nil
}

func (o *OllamaRunner) RemoveModel(ctx context.Context, model string) error {
	body, _ := json.Marshal(map[string]string{"name": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, o.host+"/api/delete", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if json.NewDecoder(resp.Body).Decode(&out) == nil {
		if _, hasErr := out["error"]; hasErr {
			return fmt.Errorf("ollama runner %s: remove failed: %v", o.name, out["error"])
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

var _ Backend = (*OllamaRunner)(nil)
