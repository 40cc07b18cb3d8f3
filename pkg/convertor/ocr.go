package convertor

import "github.com/ragocore/ragocore/pkg/docfile"

// OCRConvertor runs tesseract directly over each page image (§4.3 "ocr").
type OCRConvertor struct {
	imageConvertor
}

func NewOCR() *OCRConvertor {
	c := &OCRConvertor{}
	c.imageConvertor = newImageConvertor("ocr", "", c.imageToText)
	return c
}

func (c *OCRConvertor) imageToText(imagePath string, ctx DocumentContext) (string, error) {
	return TesseractConvert(imagePath, ctx.CharacterSets)
}

func (c *OCRConvertor) Convert(doc *docfile.DocumentFile, ctx DocumentContext) (*Result, error) {
	return c.imageConvertor.Convert(doc, ctx)
}

var _ Convertor = (*OCRConvertor)(nil)
