// Package docinspect sniffs uploaded documents before they enter the pipeline.
package docinspect

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/bryanwahyu/medcoder/internal/domain/documents"
)

const (
	MediaTypePDF  = "application/pdf"
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
)

var (
	ErrUnsupportedMediaType = documents.ErrUnsupportedMediaType
	ErrInvalidDocument      = documents.ErrInvalidDocument
	ErrTooManyPages         = documents.ErrTooManyPages
)

// Info describes an accepted upload.
type Info = documents.FileInfo

var _ documents.Inspector = Inspector{}

// Inspector checks media type and page count. MaxPages <= 0 disables the page limit.
type Inspector struct {
	MaxPages int
}

// Inspect reads the file at path. Images count as one page.
func (in Inspector) Inspect(path string) (Info, error) {
	mt, err := sniff(path)
	if err != nil {
		return Info{}, err
	}
	switch mt {
	case MediaTypePNG, MediaTypeJPEG:
		return Info{MediaType: mt, PageCount: 1}, nil
	case MediaTypePDF:
	default:
		return Info{MediaType: mt}, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt)
	}

	pages, err := api.PageCountFile(path)
	if err != nil {
		return Info{MediaType: mt}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	info := Info{MediaType: mt, PageCount: pages}
	if in.MaxPages > 0 && pages > in.MaxPages {
		return info, fmt.Errorf("%w: %d pages, limit %d", ErrTooManyPages, pages, in.MaxPages)
	}
	return info, nil
}

func sniff(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidDocument)
	}
	mt := http.DetectContentType(head[:n])
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt, nil
}
