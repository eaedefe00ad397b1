package imaging

import (
	"image"
	"image/png"
	"log/slog"
	"math"
)

// Normalizer applies document-wide legibility enhancement to a single raster
// image before it is split into pages: adaptive contrast equalization,
// edge-preserving denoising and automatic binarization.
type Normalizer struct {
	clipLimit  float64
	tileGrid   int
	rangeSigma float64
	logger     *slog.Logger
}

// NewNormalizer creates a Normalizer with CLAHE clip limit 2.0 on an 8x8 tile grid.
func NewNormalizer(logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		clipLimit:  2.0,
		tileGrid:   8,
		rangeSigma: 25,
		logger:     logger,
	}
}

// Normalize returns an enhanced, binarized PNG of data. PDFs and anything that
// cannot be processed are returned unchanged.
func (n *Normalizer) Normalize(data []byte, mimeType string) []byte {
	if isPDF(data, mimeType) {
		n.logger.Info("paginated document, deferring enhancement to page level")
		return data
	}

	return Try(n.logger, ErrNormalization, "normalize", data, func(in []byte) ([]byte, error) {
		img, err := Decode(in, mimeType)
		if err != nil {
			return nil, err
		}
		gray := toGray(img)
		gray = EqualizeAdaptive(gray, n.clipLimit, n.tileGrid)
		gray = Denoise(gray, n.rangeSigma)
		gray = Binarize(gray, OtsuThreshold(gray))
		out, err := EncodePNG(gray, png.DefaultCompression)
		if err != nil {
			return nil, err
		}
		n.logger.Info("normalization complete", "input_bytes", len(in), "output_bytes", len(out))
		return out, nil
	})
}

// EqualizeAdaptive performs contrast limited adaptive histogram equalization.
// The image is divided into a grid of tiles, each tile gets its own clipped
// equalization map, and pixels blend the maps of the four nearest tile centers.
func EqualizeAdaptive(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 || grid < 1 {
		return src
	}
	tilesX, tilesY := min(grid, w), min(grid, h)

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := range tilesY {
		y0, y1 := ty*h/tilesY, (ty+1)*h/tilesY
		for tx := range tilesX {
			x0, x1 := tx*w/tilesX, (tx+1)*w/tilesX
			luts[ty*tilesX+tx] = tileMap(src, x0, y0, x1, y1, clipLimit)
		}
	}

	tileW := float64(w) / float64(tilesX)
	tileH := float64(h) / float64(tilesY)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := range h {
		ty0, ty1, ay := neighbours(float64(y), tileH, tilesY)
		for x := range w {
			tx0, tx1, ax := neighbours(float64(x), tileW, tilesX)
			v := src.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			top := (1-ax)*float64(luts[ty0*tilesX+tx0][v]) + ax*float64(luts[ty0*tilesX+tx1][v])
			bottom := (1-ax)*float64(luts[ty1*tilesX+tx0][v]) + ax*float64(luts[ty1*tilesX+tx1][v])
			dst.Pix[y*dst.Stride+x] = clamp8((1-ay)*top + ay*bottom)
		}
	}
	return dst
}

// neighbours returns the two tile indices surrounding pos along one axis and
// the interpolation weight of the second.
func neighbours(pos, tileSize float64, tiles int) (int, int, float64) {
	f := (pos+0.5)/tileSize - 0.5
	if f <= 0 {
		return 0, 0, 0
	}
	i := int(f)
	if i >= tiles-1 {
		return tiles - 1, tiles - 1, 0
	}
	return i, i + 1, f - float64(i)
}

// tileMap builds the clipped equalization map of one tile.
func tileMap(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	b := src.Bounds()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			hist[src.GrayAt(b.Min.X+x, b.Min.Y+y).Y]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	limit := max(1, int(clipLimit*float64(area)/256))
	excess := 0
	for i, c := range hist {
		if c > limit {
			excess += c - limit
			hist[i] = limit
		}
	}
	bonus, rest := excess/256, excess%256
	for i := range hist {
		hist[i] += bonus
	}
	if rest > 0 {
		step := max(1, 256/rest)
		for i := 0; i < 256 && rest > 0; i += step {
			hist[i]++
			rest--
		}
	}

	var lut [256]uint8
	scale := 255 / float64(area)
	cdf := 0
	for i, c := range hist {
		cdf += c
		lut[i] = clamp8(float64(cdf) * scale)
	}
	return lut
}

// Denoise applies a 3x3 bilateral filter. Neighbours are weighted by both
// distance and intensity difference, so flat paper noise is smoothed while
// stroke edges keep their contrast.
func Denoise(src *image.Gray, rangeSigma float64) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	if w == 0 || h == 0 {
		return dst
	}

	var rangeW [256]float64
	for d := range rangeW {
		rangeW[d] = math.Exp(-float64(d*d) / (2 * rangeSigma * rangeSigma))
	}
	spatial := [3]float64{1, math.Exp(-0.5), math.Exp(-1)}

	at := func(x, y int) int {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return int(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}

	for y := range h {
		for x := range w {
			c := at(x, y)
			var sum, norm float64
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					v := at(x+dx, y+dy)
					d := v - c
					if d < 0 {
						d = -d
					}
					wgt := spatial[dx*dx+dy*dy] * rangeW[d]
					sum += wgt * float64(v)
					norm += wgt
				}
			}
			dst.Pix[y*dst.Stride+x] = clamp8(sum / norm)
		}
	}
	return dst
}

// OtsuThreshold picks the global threshold that maximizes the between-class
// variance of the image histogram.
func OtsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	b := src.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			hist[src.GrayAt(x, y).Y]++
		}
	}
	total := b.Dx() * b.Dy()
	if total == 0 {
		return 127
	}

	var sumAll float64
	for i, c := range hist {
		sumAll += float64(i * c)
	}

	var (
		sumBack float64
		wBack   int
		best    float64 = -1
		thresh  int
	)
	for t := range 256 {
		wBack += hist[t]
		if wBack == 0 {
			continue
		}
		wFore := total - wBack
		if wFore == 0 {
			break
		}
		sumBack += float64(t * hist[t])
		meanBack := sumBack / float64(wBack)
		meanFore := (sumAll - sumBack) / float64(wFore)
		between := float64(wBack) * float64(wFore) * (meanBack - meanFore) * (meanBack - meanFore)
		if between > best {
			best = between
			thresh = t
		}
	}
	return uint8(thresh)
}

// Binarize maps pixels above t to white and the rest to black.
func Binarize(src *image.Gray, t uint8) *image.Gray {
	b := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := range b.Dy() {
		for x := range b.Dx() {
			if src.GrayAt(b.Min.X+x, b.Min.Y+y).Y > t {
				dst.Pix[y*dst.Stride+x] = 255
			}
		}
	}
	return dst
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
