package pages

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRasterizer renders PDF pages with MuPDF.
type FitzRasterizer struct{}

// Rasterize renders every page of the PDF at dpi.
func (FitzRasterizer) Rasterize(data []byte, dpi float64, emit func(int, image.Image) error) error {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	for i := range doc.NumPage() {
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			return fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		if err := emit(i, img); err != nil {
			return err
		}
	}
	return nil
}
