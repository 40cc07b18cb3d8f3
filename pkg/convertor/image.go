package convertor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/hashcache"
	"github.com/ragocore/ragocore/pkg/log"
)

// imageToTextFunc converts one rasterized page image to text, given the KB's
// OCR language set.
type imageToTextFunc func(imagePath string, ctx DocumentContext) (string, error)

// imageConvertor is the shared machinery behind every image-based dialect
// (OCR, OCR+LLM, vision-LLM): rasterize the document to page images, run
// imageToText over each page, fold the pages back into the document's
// processed output and sidecar metadata (§4.3 image-based convertors).
type imageConvertor struct {
	base
	imageToText imageToTextFunc
}

func newImageConvertor(conversionType, model string, imageToText imageToTextFunc) imageConvertor {
	return imageConvertor{base: newBase(conversionType, model), imageToText: imageToText}
}

func (c *imageConvertor) Convert(doc *docfile.DocumentFile, ctx DocumentContext) (*Result, error) {
	result, err := c.getOrInitConversion(doc)
	if err != nil {
		return nil, err
	}
	if len(result.Pages) > 0 {
		return result, nil
	}
	return c.convertImageDocument(doc, result.DocumentMetadata, ctx)
}

func (c *imageConvertor) convertImageDocument(doc *docfile.DocumentFile, metadata *docfile.Metadata, ctx DocumentContext) (*Result, error) {
	if !doc.ImageBased {
		log.Infof("[%s] document %s does not support image conversion", c.conversionType, doc.FilePath)
		return nil, nil
	}

	tempDir := filepath.Join(os.TempDir(), "ragocore-pages-"+doc.FileHash)
	images, err := doc.ConvertToImages(tempDir)
	if err != nil {
		log.Errf("convertor %s: image conversion failed for %s: %v", c.conversionType, doc.FileName, err)
		return nil, nil
	}
	if doc.Type != docfile.TypeImage {
		defer os.RemoveAll(tempDir)
	}
	if len(images) == 0 {
		log.Errf("convertor %s: image conversion failed for %s", c.conversionType, doc.FileName)
		return nil, nil
	}

	log.Infof("doing %s", c.conversionType)
	outputPath := c.outputPath(doc)
	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return nil, err
	}

	for _, imagePath := range images {
		log.Infof("%s - %s", c.conversionType, imagePath)
		stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
		text, err := c.imageToText(imagePath, ctx)
		if err != nil {
			log.Errf("convertor %s: failed!: %v", c.conversionType, err)
			return nil, nil
		}
		outFile := filepath.Join(outputPath, stem+".txt")
		if err := os.WriteFile(outFile, []byte(text), 0o644); err != nil {
			return nil, err
		}
	}

	var extra []string
	if c.conversionType == "ocr_llm" || c.conversionType == "llm" {
		extra = []string{c.model}
	}
	resultHash, err := hashcache.FolderHash(outputPath, extra...)
	if err != nil {
		return nil, err
	}
	metadata.Conversions = append(metadata.Conversions, c.conversionMetadataEntry(resultHash))
	if err := doc.WriteMetadata(metadata); err != nil {
		return nil, err
	}

	pages, err := listFiles(outputPath)
	if err != nil {
		return nil, err
	}
	return &Result{
		Pages:            pages,
		DocumentMetadata: metadata,
		ConversionType:   c.conversionType,
		Model:            c.modelPtr(),
		OutputFolderName: c.outputFolderName,
		OutputPath:       outputPath,
		ResultHash:       resultHash,
		DocumentPath:     doc.DocumentPath(),
	}, nil
}

// TesseractBinary is the tesseract CLI path, overridable for tests and for
// deployments where it isn't on PATH (mirrors TESSERACT_PATH in the Python
// original).
var TesseractBinary = "tesseract"

// TesseractConvert OCRs one image via the tesseract CLI, restricted to the
// given character sets (defaulting to "eng"), matching
// DocumentImageConvertor.tesseract_convert.
func TesseractConvert(imagePath string, characterSets []string) (string, error) {
	if len(characterSets) == 0 {
		characterSets = []string{"eng"}
	}
	args := []string{"-l", strings.Join(characterSets, "+"), imagePath, "stdout"}
	cmd := exec.Command(TesseractBinary, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("tesseract ocr failed for %s: %w", imagePath, err)
	}
	return string(out), nil
}

// GetTesseractLangs lists the language packs the local tesseract install
// supports, matching DocumentImageConvertor.get_tesseract_langs.
func GetTesseractLangs() ([]string, error) {
	cmd := exec.Command(TesseractBinary, "--list-langs")
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var langs []string
	for _, line := range strings.Split(string(out), "\n") {
		if line == "" || line == "osd" || strings.HasPrefix(line, "List of available languages") {
			continue
		}
		langs = append(langs, line)
	}
	return langs, nil
}
