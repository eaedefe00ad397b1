package imaging

import (
	"image"
	"image/png"
	"log/slog"
	"math"
)

// Enhancer prepares a single page for the extraction service. The steps run
// in a fixed order: sharpen, contrast, brightness, deskew.
type Enhancer struct {
	sharpness       float64
	contrast        float64
	brightness      float64
	deskewThreshold float64
	logger          *slog.Logger
}

// EnhancerOption configures an Enhancer.
type EnhancerOption func(*Enhancer)

// WithDeskewThreshold sets the minimum detected skew, in degrees, that
// triggers a rotation.
func WithDeskewThreshold(deg float64) EnhancerOption {
	return func(e *Enhancer) { e.deskewThreshold = deg }
}

// NewEnhancer creates an Enhancer with sharpness 2.0, contrast 1.8,
// brightness 1.1 and a 1 degree deskew threshold.
func NewEnhancer(logger *slog.Logger, opts ...EnhancerOption) *Enhancer {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Enhancer{
		sharpness:       2.0,
		contrast:        1.8,
		brightness:      1.1,
		deskewThreshold: 1.0,
		logger:          logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enhance returns an enhanced PNG of the page. Steps that fail are skipped;
// if the page cannot be decoded or re-encoded it is returned unchanged.
func (e *Enhancer) Enhance(data []byte) []byte {
	return Try(e.logger, ErrEnhancement, "enhance", data, func(in []byte) ([]byte, error) {
		img, err := Decode(in, "")
		if err != nil {
			return nil, err
		}
		rgba := toRGBA(img)
		rgba = Try(e.logger, ErrEnhancement, "sharpen", rgba, func(m *image.RGBA) (*image.RGBA, error) {
			return Sharpen(m, e.sharpness), nil
		})
		rgba = Try(e.logger, ErrEnhancement, "contrast", rgba, func(m *image.RGBA) (*image.RGBA, error) {
			return AdjustContrast(m, e.contrast), nil
		})
		rgba = Try(e.logger, ErrEnhancement, "brightness", rgba, func(m *image.RGBA) (*image.RGBA, error) {
			return AdjustBrightness(m, e.brightness), nil
		})
		rgba = Try(e.logger, ErrEnhancement, "deskew", rgba, e.deskew)
		return EncodePNG(rgba, png.DefaultCompression)
	})
}

func (e *Enhancer) deskew(m *image.RGBA) (*image.RGBA, error) {
	angle, ok := DetectSkew(m)
	if !ok || math.Abs(angle) <= e.deskewThreshold {
		return m, nil
	}
	e.logger.Debug("correcting skew", "angle", angle)
	return Rotate(m, -angle), nil
}

// Sharpen blends the image away from its 3x3 smoothed version by factor.
// A factor of 1 leaves the image unchanged.
func Sharpen(src *image.RGBA, factor float64) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	copy(dst.Pix, src.Pix)
	if w < 3 || h < 3 {
		return dst
	}
	kernel := [3][3]float64{{1, 1, 1}, {1, 5, 1}, {1, 1, 1}}
	// Border pixels keep their original values.
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*src.Stride + x*4
			for c := range 3 {
				var smooth float64
				for ky := range 3 {
					for kx := range 3 {
						smooth += kernel[ky][kx] * float64(src.Pix[(y+ky-1)*src.Stride+(x+kx-1)*4+c])
					}
				}
				smooth /= 13
				v := float64(src.Pix[i+c])
				dst.Pix[i+c] = clamp8(smooth + factor*(v-smooth))
			}
		}
	}
	return dst
}

// AdjustContrast scales every channel away from the mean luminance by factor.
func AdjustContrast(src *image.RGBA, factor float64) *image.RGBA {
	b := src.Bounds()
	n := b.Dx() * b.Dy()
	if n == 0 {
		return src
	}
	var sum float64
	for y := range b.Dy() {
		row := src.Pix[y*src.Stride:]
		for x := range b.Dx() {
			p := row[x*4 : x*4+3]
			sum += 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		}
	}
	mean := math.Floor(sum/float64(n) + 0.5)
	return mapChannels(src, func(v float64) float64 { return mean + factor*(v-mean) })
}

// AdjustBrightness multiplies every channel by factor.
func AdjustBrightness(src *image.RGBA, factor float64) *image.RGBA {
	return mapChannels(src, func(v float64) float64 { return v * factor })
}

// mapChannels applies f to the color channels through a lookup table.
func mapChannels(src *image.RGBA, f func(float64) float64) *image.RGBA {
	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp8(f(float64(i)))
	}
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		s := src.Pix[y*src.Stride : y*src.Stride+b.Dx()*4]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+b.Dx()*4]
		for i := 0; i < len(s); i += 4 {
			d[i] = lut[s[i]]
			d[i+1] = lut[s[i+1]]
			d[i+2] = lut[s[i+2]]
			d[i+3] = s[i+3]
		}
	}
	return dst
}
