package docfile

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/dslipak/pdf"
	"github.com/ragocore/ragocore/pkg/log"
)

// RawDump writes the document's plain-text content, one file per page, into
// outputDir (§4.2/§4.3 raw convertor output). Image-type documents have no
// text of their own and are rejected, matching the Python raw convertor's
// exclusion of "image" document types.
func (d *DocumentFile) RawDump(outputDir string) error {
	if d.Type == TypeImage {
		return fmt.Errorf("docfile: raw dump unsupported for image documents")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	switch d.Type {
	case TypePDF:
		return dumpPDFText(d.FilePath, outputDir)
	case TypeText:
		return dumpPlainText(d.FilePath, outputDir)
	default:
		return fmt.Errorf("docfile: unsupported document type %q", d.Type)
	}
}

func dumpPDFText(path, outputDir string) error {
	r, err := pdf.Open(path)
	if err != nil {
		return err
	}

	total := r.NumPage()
	width := len(strconv.Itoa(total))
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("docfile: page %d text extraction failed for %s: %v", i, path, err)
			text = ""
		}
		name := fmt.Sprintf("%0*d.txt", width, i)
		if err := os.WriteFile(filepath.Join(outputDir, name), []byte(text), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func dumpPlainText(path, outputDir string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(filepath.Join(outputDir, "1.txt"))
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// RasterizePoppler is the path to the poppler pdftoppm binary, overridable
// for tests.
var RasterizePoppler = "pdftoppm"

// ConvertToImages returns the page images an image-based convertor should
// read: for an already-image document it is just the file itself (mirroring
// the Python ImageDocumentFile.convert_document_to_images), for a PDF it
// rasterizes each page to a PNG in dir via poppler's pdftoppm, the same way
// the Python original shells out to poppler via pdf2image. Returns the page
// image paths in order.
func (d *DocumentFile) ConvertToImages(dir string) ([]string, error) {
	if d.Type == TypeImage {
		return []string{d.FilePath}, nil
	}
	if d.Type != TypePDF {
		return nil, fmt.Errorf("docfile: image rasterization only supported for PDF and image documents")
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.Command(RasterizePoppler, "-png", "-r", "300", d.FilePath, prefix)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Errf("docfile: pdftoppm failed for %s: %v (%s)", d.FilePath, err, string(out))
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
