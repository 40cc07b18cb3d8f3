package convertor

import (
	"fmt"

	"github.com/ragocore/ragocore/pkg/docfile"
	"github.com/ragocore/ragocore/pkg/hashcache"
	"github.com/ragocore/ragocore/pkg/log"
)

// RawConvertor dumps a document's own text verbatim (§4.3 "raw" dialect):
// extracted PDF text per page, or a copy of a plain-text file. It has no
// model and supports no image-type documents, matching the Python
// RawConvertor's rejection of document_type == "image".
type RawConvertor struct {
	base
}

func NewRaw() *RawConvertor {
	return &RawConvertor{base: newBase("raw", "")}
}

func (c *RawConvertor) Convert(doc *docfile.DocumentFile, ctx DocumentContext) (*Result, error) {
	if isDocTypeImage(doc) {
		log.Warnf("convertor: cannot [raw] convert an image file: %s", doc.FilePath)
		return nil, nil
	}

	result, err := c.getOrInitConversion(doc)
	if err != nil {
		return nil, err
	}
	if len(result.Pages) > 0 {
		return result, nil
	}
	return c.convertRawDocument(doc, result.DocumentMetadata)
}

func (c *RawConvertor) convertRawDocument(doc *docfile.DocumentFile, metadata *docfile.Metadata) (*Result, error) {
	outputPath := c.outputPath(doc)
	if err := doc.RawDump(outputPath); err != nil {
		return nil, fmt.Errorf("convertor raw: %w", err)
	}

	resultHash, err := hashcache.FolderHash(outputPath)
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

var _ Convertor = (*RawConvertor)(nil)
