package convertor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragocore/ragocore/pkg/docfile"
)

func TestOCRLLMConvertor_ProofreadsTesseractOutputAndStripsTags(t *testing.T) {
	withStubTesseract(t, "raw ocr text with a typo")

	backend := &stubBackend{reply: "<text>raw ocr text with a typo, fixed</text>"}
	conv := NewOCRLLM(backend, "gpt-4.1-mini")
	assert.Equal(t, "ocr_llm_gpt-4.1-mini", conv.outputFolderName)

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("fake-png"), 0o644))
	doc, err := docfile.New("src", dir, path, "", time.Now(), 8)
	require.NoError(t, err)

	result, err := conv.Convert(doc, DocumentContext{})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Pages, 1)

	content, err := os.ReadFile(result.Pages[0])
	require.NoError(t, err)
	assert.Equal(t, "raw ocr text with a typo, fixed", string(content))
	assert.Contains(t, backend.lastMessage.Content, "<text>raw ocr text with a typo")
}
