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

func newTextDoc(t *testing.T, root, name, content string) *docfile.DocumentFile {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	doc, err := docfile.New("src", root, path, "", time.Now(), int64(len(content)))
	require.NoError(t, err)
	require.NotNil(t, doc)
	return doc
}

func TestFromConfig_DispatchesByConversionTag(t *testing.T) {
	c, err := FromConfig(Config{Conversion: "raw"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &RawConvertor{}, c)

	c, err = FromConfig(Config{Conversion: "ocr"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &OCRConvertor{}, c)

	_, err = FromConfig(Config{Conversion: "bogus"}, nil)
	assert.Error(t, err)
}

func TestRawConvertor_RejectsImageDocuments(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("fake-png"), 0o644))
	doc, err := docfile.New("src", dir, path, "", time.Now(), 8)
	require.NoError(t, err)

	result, err := NewRaw().Convert(doc, DocumentContext{})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRawConvertor_ConvertsPlainTextAndCaches(t *testing.T) {
	dir := t.TempDir()
	doc := newTextDoc(t, dir, "notes.txt", "hello world")

	rc := NewRaw()
	result, err := rc.Convert(doc, DocumentContext{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Pages, 1)
	assert.Equal(t, "raw", result.ConversionType)
	firstHash := result.ResultHash
	require.NotEmpty(t, firstHash)

	result2, err := rc.Convert(doc, DocumentContext{})
	require.NoError(t, err)
	assert.Equal(t, firstHash, result2.ResultHash)
}

func TestCleanName_StripsSpecialCharacters(t *testing.T) {
	assert.Equal(t, "gpt-4.1mini", cleanName("gpt-4.1@mini!"))
}

func TestBase_OutputFolderName_IncludesCleanedModelWhenPresent(t *testing.T) {
	b := newBase("llm", "gpt-4.1@mini")
	assert.Equal(t, "llm_gpt-4.1mini", b.outputFolderName)

	b2 := newBase("raw", "")
	assert.Equal(t, "raw", b2.outputFolderName)
}

func withStubTesseract(t *testing.T, output string) {
	t.Helper()
	dir := t.TempDir()
	stub := filepath.Join(dir, "tesseract-stub.sh")
	script := "#!/bin/sh\ncat <<'EOF'\n" + output + "\nEOF\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	old := TesseractBinary
	TesseractBinary = stub
	t.Cleanup(func() { TesseractBinary = old })
}

func TestTesseractConvert_RunsConfiguredBinary(t *testing.T) {
	withStubTesseract(t, "stubbed ocr text")

	text, err := TesseractConvert("/some/image.png", []string{"eng"})
	require.NoError(t, err)
	assert.Equal(t, "stubbed ocr text\n", text)
}

func TestTesseractConvert_DefaultsToEnglish(t *testing.T) {
	withStubTesseract(t, "ok")
	_, err := TesseractConvert("/some/image.png", nil)
	assert.NoError(t, err)
}

func TestOCRConvertor_ConvertsImageDocument(t *testing.T) {
	withStubTesseract(t, "page text")

	dir := t.TempDir()
	path := filepath.Join(dir, "scan.png")
	require.NoError(t, os.WriteFile(path, []byte("fake-png-bytes"), 0o644))
	doc, err := docfile.New("src", dir, path, "", time.Now(), 14)
	require.NoError(t, err)

	result, err := NewOCR().Convert(doc, DocumentContext{CharacterSets: []string{"eng"}})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Len(t, result.Pages, 1)
	content, err := os.ReadFile(result.Pages[0])
	require.NoError(t, err)
	assert.Equal(t, "page text\n", string(content))
}
