// Package document resolves document references into raw bytes.
package document

import (
	"bytes"
	"errors"
	"strings"
)

var (
	// ErrFetch is returned when a document reference cannot be resolved.
	ErrFetch = errors.New("failed to fetch document")
	// ErrDocumentTooLarge is returned when a document exceeds the size ceiling.
	ErrDocumentTooLarge = errors.New("document too large")
)

// Format is the coarse kind of a fetched document.
type Format int

const (
	// FormatImage is a single raster image.
	FormatImage Format = iota
	// FormatPDF is a paginated PDF document.
	FormatPDF
)

func (f Format) String() string {
	if f == FormatPDF {
		return "pdf"
	}
	return "image"
}

// Raw is a fetched document. It lives for a single request.
type Raw struct {
	Data      []byte
	Format    Format
	MediaType string
	Source    string
}

// IsPDF reports whether the document must be rasterized page by page.
func (r *Raw) IsPDF() bool {
	return r.Format == FormatPDF
}

// sniff classifies data. A document is a PDF when its bytes start with the
// PDF magic, its media type says so, or a non-inline reference ends in .pdf.
func sniff(data []byte, mediaType, ref string) Format {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF
	case strings.EqualFold(mediaType, "application/pdf"):
		return FormatPDF
	case !strings.HasPrefix(ref, "data:") && strings.HasSuffix(strings.ToLower(ref), ".pdf"):
		return FormatPDF
	}
	return FormatImage
}
