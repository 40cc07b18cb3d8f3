package chat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragocore/ragocore/pkg/config"
	"github.com/ragocore/ragocore/pkg/docsource"
	"github.com/ragocore/ragocore/pkg/guard"
	"github.com/ragocore/ragocore/pkg/ingest"
	"github.com/ragocore/ragocore/pkg/kb"
	"github.com/ragocore/ragocore/pkg/runner"
)

// newBoundKB ingests one document into a fresh KB and returns the bound
// *kb.KnowledgeBase alongside the backend it was embedded with.
func newBoundKB(t *testing.T) (*kb.KnowledgeBase, runner.Backend) {
	t.Helper()

	srcDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("ragocore supports sqlite and qdrant vector stores"), 0o644))
	source, err := docsource.NewLocalFS("docs", srcDir, filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	store := kb.NewFileKBStore(config.KBStoreConfig{Name: "local", Type: "sqlite", Path: t.TempDir()})
	require.NoError(t, store.Refresh())
	_, err = store.Upsert(kb.Descriptor{
		Name:       "k1",
		Selection:  []string{"docs/*.txt"},
		Convertors: []kb.ConvertorConfig{{Conversion: "raw"}},
		Embedding:  kb.EmbeddingConfig{Model: "embed-model"},
	})
	require.NoError(t, err)

	backend := runner.NewDebug("debug", []string{"chat-model", "embed-model"}, nil)
	svc := ingest.New(source, store, backend, config.RAGSettings{ChunkSize: 50, ChunkOverlap: 5})
	require.Equal(t, ingest.ResultDone, svc.RunSync())

	return store.Get("k1"), backend
}

func baseInput(t *testing.T, boundKB *kb.KnowledgeBase) Input {
	t.Helper()
	return Input{
		LLMModel:     "chat-model",
		SystemPrompt: "You are a helpful assistant.",
		KB:           boundKB,
		RAGSettings: config.RAGSettings{
			TopK:                               5,
			CosineDistanceIrrelevanceThreshold: 1e9,
			ScoreMargin:                        1e9,
			SimilarityScoreThreshold:           -1.0,
		},
		RoomState: newRoomState("room-1"),
		UserInput: "what vector stores does ragocore support?",
		Guard:     guard.New(guard.Config{}),
	}
}

func TestRun_NoHistoryAssemblesSystemAndUserMessages(t *testing.T) {
	boundKB, backend := newBoundKB(t)
	in := baseInput(t, boundKB)

	out, err := Run(context.Background(), backend, backend, in)
	require.NoError(t, err)

	assert.False(t, out.Failed)
	assert.Contains(t, out.SystemText, in.SystemPrompt)
	assert.Contains(t, out.SystemText, ragInstruct)
	assert.NotEqual(t, "", out.RAGSourcesJSON)

	var sources []ragSource
	require.NoError(t, json.Unmarshal([]byte(out.RAGSourcesJSON), &sources))
	assert.NotEmpty(t, sources, "a relevant document should have been retrieved and survived reranking")

	assert.Contains(t, out.AssistantText, ragTagStart)
}

func TestRun_NoKBBoundSkipsRetrieval(t *testing.T) {
	_, backend := newBoundKB(t)
	in := baseInput(t, nil)

	out, err := Run(context.Background(), backend, backend, in)
	require.NoError(t, err)

	assert.False(t, out.Failed)
	assert.Equal(t, in.SystemPrompt, out.SystemText, "no KB means no rag_instruct suffix")
	assert.Equal(t, "", out.RAGSourcesJSON)
	assert.NotContains(t, out.AssistantText, ragTagStart)
}

func TestRun_ReplaysHistoryWithItsOwnStoredRagSources(t *testing.T) {
	boundKB, backend := newBoundKB(t)
	in := baseInput(t, boundKB)

	priorSources := `[{"content":"earlier retrieved passage","similarity_score":0.1}]`
	in.History = []Message{
		{Role: "user", Content: "an earlier question"},
		{Role: "assistant", Content: "an earlier answer", RAGSources: &priorSources},
	}

	out, err := Run(context.Background(), backend, backend, in)
	require.NoError(t, err)
	assert.False(t, out.Failed)
	// DebugRunner echoes only the last user message, so the history replay
	// itself is only observable through system-text selection and the
	// absence of a crash when unmarshalling stored rag sources; both are
	// exercised by reaching this point without error.
	assert.NotEqual(t, "", out.AssistantText)
}

func TestRun_FirstNonFailedSystemMessageOverridesSystemPrompt(t *testing.T) {
	boundKB, backend := newBoundKB(t)
	in := baseInput(t, boundKB)

	in.History = []Message{
		{Role: "system", Content: "failed system text", Failed: true},
		{Role: "system", Content: "the real pinned system text"},
		{Role: "user", Content: "previous question"},
		{Role: "assistant", Content: "previous answer"},
	}

	out, err := Run(context.Background(), backend, backend, in)
	require.NoError(t, err)
	assert.Equal(t, "the real pinned system text", out.SystemText)
}

func TestRun_UnknownModelReturnsError(t *testing.T) {
	boundKB, backend := newBoundKB(t)
	in := baseInput(t, boundKB)
	in.LLMModel = "does-not-exist"

	_, err := Run(context.Background(), backend, backend, in)
	assert.Error(t, err)
}

func TestRun_FailedGenerationStopsTheRoom(t *testing.T) {
	boundKB, backend := newBoundKB(t)
	in := baseInput(t, boundKB)
	in.RoomState.Stop() // pre-stopped room: DebugRunner observes isStopped immediately

	out, err := Run(context.Background(), backend, backend, in)
	require.NoError(t, err)
	assert.True(t, out.Failed)
	assert.True(t, in.RoomState.IsStopped())
}

func TestAssembleMessages_NoHistoryIsSystemThenUser(t *testing.T) {
	messages := assembleMessages("sys", nil, "hello")
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].Role)
	assert.Equal(t, "sys", messages[0].Content)
	assert.Equal(t, "user", messages[1].Role)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestAssembleMessages_EmptyStoredSourcesInjectsNoRagSentinel(t *testing.T) {
	empty := "[]"
	history := []Message{{Role: "assistant", Content: "answer", RAGSources: &empty}}

	messages := assembleMessages("sys", history, "hello")
	require.Len(t, messages, 2)
	assert.Contains(t, messages[0].Content, contextTextNoRag)
}

func TestRagContextBuilder_WrapsEachPassageInTags(t *testing.T) {
	out := ragContextBuilder([]ragSource{{Content: "one"}, {Content: "two"}})
	assert.Contains(t, out, ragTagStart+"one"+ragTagEnd)
	assert.Contains(t, out, ragTagStart+"two"+ragTagEnd)
}
