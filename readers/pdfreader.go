package readers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"code.sajari.com/docconv/v2"
)

// Document is the text extracted from a PDF.
type Document struct {
	Text  string
	Pages int
}

type PdfFileReader struct {
	// TempDir holds uploaded files while they are converted. Empty means os.TempDir().
	TempDir string

	convert func(path string) (*docconv.Response, error)
}

func (r *PdfFileReader) CanRead(path string) bool {
	ext := filepath.Ext(path)
	return strings.EqualFold(ext, ".pdf")
}

func (r *PdfFileReader) ReadText(path string) (string, error) {
	doc, err := r.readDocument(path)
	if err != nil {
		return "", err
	}

	return doc.Text, nil
}

// Extract converts an in-memory PDF. The bytes are staged in a temporary file
// which is removed before Extract returns.
func (r *PdfFileReader) Extract(ctx context.Context, data []byte) (doc Document, err error) {
	if err = ctx.Err(); err != nil {
		return Document{}, err
	}

	f, err := os.CreateTemp(r.TempDir, "upload-*.pdf")
	if err != nil {
		return Document{}, fmt.Errorf("failed to stage pdf document: %w", err)
	}
	defer func() {
		_ = f.Close()
		if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("failed to remove staged pdf document: %w", rmErr)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return Document{}, fmt.Errorf("failed to stage pdf document: %w", err)
	}
	if err = f.Close(); err != nil {
		return Document{}, fmt.Errorf("failed to stage pdf document: %w", err)
	}

	return r.readDocument(f.Name())
}

func (r *PdfFileReader) readDocument(path string) (Document, error) {
	convert := r.convert
	if convert == nil {
		convert = docconv.ConvertPath
	}

	res, err := convert(path)
	if err != nil {
		return Document{}, fmt.Errorf("failed to read pdf document: %w", err)
	}

	return Document{
		Text:  joinPages(res.Body),
		Pages: pageCount(res),
	}, nil
}

// joinPages turns form feed page breaks into the newline separator used between pages.
func joinPages(body string) string {
	return strings.ReplaceAll(body, "\f", "\n")
}

func pageCount(res *docconv.Response) int {
	if n, err := strconv.Atoi(strings.TrimSpace(res.Meta["Pages"])); err == nil && n > 0 {
		return n
	}
	if strings.TrimSpace(res.Body) == "" {
		return 0
	}

	return len(strings.Split(strings.TrimRight(res.Body, "\f"), "\f"))
}
