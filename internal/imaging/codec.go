package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/heic"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/tiff" // Register TIFF decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// IsPNG reports whether data starts with the PNG file signature.
func IsPNG(data []byte) bool {
	return bytes.HasPrefix(data, pngSignature)
}

// Decode decodes a raster image. HEIC/HEIF is handled separately because
// the standard image package doesn't support it.
func Decode(data []byte, mimeType string) (image.Image, error) {
	if isHEICFormat(data) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, fmt.Errorf("unsupported image format. Supported formats: PNG, JPEG, GIF, WebP, BMP, TIFF, HEIC, HEIF: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// Dimensions returns the pixel size of an encoded image, reading only the
// header when the format allows it.
func Dimensions(data []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err == nil {
		return cfg.Width, cfg.Height, nil
	}
	img, decErr := Decode(data, "")
	if decErr != nil {
		return 0, 0, fmt.Errorf("reading image dimensions: %w", decErr)
	}
	b := img.Bounds()
	return b.Dx(), b.Dy(), nil
}

// EncodePNG encodes img as PNG with the given compression level.
func EncodePNG(img image.Image, level png.CompressionLevel) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: level}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// ToPNG converts any supported image to PNG. PNG input is returned as-is.
// The boolean reports whether a conversion happened.
func ToPNG(data []byte, mimeType string) ([]byte, bool, error) {
	if IsPNG(data) {
		return data, false, nil
	}
	img, err := Decode(data, mimeType)
	if err != nil {
		return nil, false, err
	}
	out, err := EncodePNG(img, png.DefaultCompression)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

// Recompress re-encodes a PNG with the best lossless compression available.
func Recompress(data []byte) ([]byte, error) {
	img, err := Decode(data, "image/png")
	if err != nil {
		return nil, err
	}
	return EncodePNG(img, png.BestCompression)
}

// toGray converts img to an 8-bit grayscale image anchored at the origin.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

// toRGBA converts img to RGBA anchored at the origin.
func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return rgba
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	brand := string(data[8:12])
	return brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1"
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

// isPDF reports whether data or its declared media type denote a PDF.
func isPDF(data []byte, mimeType string) bool {
	return bytes.HasPrefix(data, []byte("%PDF")) ||
		strings.EqualFold(strings.TrimSpace(mimeType), "application/pdf")
}
