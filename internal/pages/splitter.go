// Package pages turns a fetched document into an ordered list of page images.
package pages

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"

	"github.com/zombor/bill-extractor/internal/document"
	"github.com/zombor/bill-extractor/internal/imaging"
)

var (
	// ErrPdfConversion is returned when a PDF cannot be rasterized.
	ErrPdfConversion = errors.New("pdf conversion failed")
	// ErrPageEncoding is returned when a rasterized page cannot be encoded.
	ErrPageEncoding = errors.New("page encoding failed")
)

// Page is a single page image. Number starts at 1.
type Page struct {
	Number int
	Data   []byte
	Width  int
	Height int
}

// Rasterizer renders the pages of a PDF in order, calling emit once per page
// with its zero-based index.
type Rasterizer interface {
	Rasterize(data []byte, dpi float64, emit func(index int, img image.Image) error) error
}

// Splitter splits documents into pages.
type Splitter struct {
	rasterizer Rasterizer
	dpi        float64
	maxDim     int
	logger     *slog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithDPI sets the rasterization resolution.
func WithDPI(dpi float64) Option {
	return func(s *Splitter) { s.dpi = dpi }
}

// WithMaxDimension sets the longest allowed page side in pixels.
func WithMaxDimension(px int) Option {
	return func(s *Splitter) { s.maxDim = px }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Splitter) { s.logger = l }
}

// NewSplitter creates a Splitter rendering at 300 DPI with pages capped at
// 4096 pixels. A nil rasterizer makes every PDF fail with ErrPdfConversion.
func NewSplitter(r Rasterizer, opts ...Option) *Splitter {
	s := &Splitter{
		rasterizer: r,
		dpi:        300,
		maxDim:     4096,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Split returns the pages of raw in document order, numbered from 1.
// Single images become one page.
func (s *Splitter) Split(raw *document.Raw) ([]Page, error) {
	if !raw.IsPDF() {
		s.logger.Info("single image detected")
		w, h, _ := imaging.Dimensions(raw.Data)
		return []Page{{Number: 1, Data: raw.Data, Width: w, Height: h}}, nil
	}

	if s.rasterizer == nil {
		return nil, fmt.Errorf("%w: no rasterizer available", ErrPdfConversion)
	}

	s.logger.Info("converting PDF pages", "bytes", len(raw.Data), "dpi", s.dpi)
	var pages []Page
	err := s.rasterizer.Rasterize(raw.Data, s.dpi, func(index int, img image.Image) error {
		page, err := s.encode(index+1, img)
		if err != nil {
			return err
		}
		pages = append(pages, page)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPageEncoding) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPdfConversion, err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no pages found in PDF", ErrPdfConversion)
	}

	s.logger.Info("all pages converted", "pages", len(pages))
	return pages, nil
}

func (s *Splitter) encode(number int, img image.Image) (Page, error) {
	b := img.Bounds()
	if max(b.Dx(), b.Dy()) > s.maxDim {
		img = imaging.Downscale(img, s.maxDim)
		s.logger.Info("resized page", "page", number, "from", b.Size(), "to", img.Bounds().Size())
	}

	data, err := imaging.EncodePNG(img, png.BestCompression)
	if err != nil {
		return Page{}, fmt.Errorf("%w: page %d: %w", ErrPageEncoding, number, err)
	}
	if !imaging.IsPNG(data) {
		return Page{}, fmt.Errorf("%w: page %d: invalid PNG generated", ErrPageEncoding, number)
	}

	s.logger.Debug("page converted", "page", number, "bytes", len(data))
	return Page{
		Number: number,
		Data:   data,
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}
