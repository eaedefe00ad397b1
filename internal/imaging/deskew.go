package imaging

import (
	"image"
	"image/color"
	"math"
	"slices"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

type point struct{ x, y float64 }

// DetectSkew estimates the tilt of the ink on a page in degrees, normalized to
// (-45, 45]. Ink is every pixel at or below the Otsu threshold. The angle is
// the orientation of the minimum-area rectangle enclosing the ink. ok is false
// when there is not enough ink to measure.
func DetectSkew(img image.Image) (angle float64, ok bool) {
	gray := toGray(img)
	hull := convexHull(inkExtremes(gray, OtsuThreshold(gray)))
	if len(hull) < 3 {
		return 0, false
	}
	return normalizeAngle(minAreaRectAngle(hull)), true
}

// inkExtremes returns the leftmost and rightmost ink pixel corners of every
// row. The convex hull of these points equals the hull of all ink pixels.
func inkExtremes(gray *image.Gray, t uint8) []point {
	b := gray.Bounds()
	var pts []point
	for y := range b.Dy() {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+b.Dx()]
		left, right := -1, -1
		for x, v := range row {
			if v <= t {
				if left < 0 {
					left = x
				}
				right = x
			}
		}
		if left < 0 {
			continue
		}
		fy := float64(y)
		pts = append(pts,
			point{float64(left), fy}, point{float64(left), fy + 1},
			point{float64(right + 1), fy}, point{float64(right + 1), fy + 1},
		)
	}
	// A page where every row is ink edge to edge has nothing to measure.
	if len(pts) > 0 && len(pts) == 4*b.Dy() {
		full := true
		for i := 0; i < len(pts); i += 4 {
			if pts[i].x != 0 || pts[i+2].x != float64(b.Dx()) {
				full = false
				break
			}
		}
		if full {
			return nil
		}
	}
	return pts
}

// convexHull computes the hull with Andrew's monotone chain, dropping
// collinear points. The result is counter-clockwise in a y-up frame.
func convexHull(pts []point) []point {
	if len(pts) < 3 {
		return pts
	}
	pts = slices.Clone(pts)
	slices.SortFunc(pts, func(a, b point) int {
		if a.x != b.x {
			if a.x < b.x {
				return -1
			}
			return 1
		}
		switch {
		case a.y < b.y:
			return -1
		case a.y > b.y:
			return 1
		}
		return 0
	})
	pts = slices.Compact(pts)
	if len(pts) < 3 {
		return pts
	}

	cross := func(o, a, b point) float64 {
		return (a.x-o.x)*(b.y-o.y) - (a.y-o.y)*(b.x-o.x)
	}
	hull := make([]point, 0, 2*len(pts))
	for _, p := range pts {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(pts) - 2; i >= 0; i-- {
		p := pts[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// minAreaRectAngle returns the direction, in degrees, of the hull edge that
// supports the minimum-area enclosing rectangle.
func minAreaRectAngle(hull []point) float64 {
	bestArea := math.Inf(1)
	bestAngle := 0.0
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		dx, dy := b.x-a.x, b.y-a.y
		length := math.Hypot(dx, dy)
		if length == 0 {
			continue
		}
		ux, uy := dx/length, dy/length
		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			u := p.x*ux + p.y*uy
			v := -p.x*uy + p.y*ux
			minU, maxU = min(minU, u), max(maxU, u)
			minV, maxV = min(minV, v), max(maxV, v)
		}
		if area := (maxU - minU) * (maxV - minV); area < bestArea {
			bestArea = area
			bestAngle = math.Atan2(dy, dx) * 180 / math.Pi
		}
	}
	return bestAngle
}

// normalizeAngle wraps a rectangle orientation into (-45, 45] using the fact
// that a rectangle looks the same every 90 degrees.
func normalizeAngle(deg float64) float64 {
	a := math.Mod(deg, 90)
	if a < 0 {
		a += 90
	}
	if a > 45 {
		a -= 90
	}
	return a
}

// Rotate turns img by deg degrees (clockwise on screen for positive values)
// around its center onto a white canvas large enough to hold the result.
func Rotate(img image.Image, deg float64) *image.RGBA {
	src := toRGBA(img)
	w, h := float64(src.Bounds().Dx()), float64(src.Bounds().Dy())
	rad := deg * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)

	dw := int(math.Ceil(math.Abs(w*cos) + math.Abs(h*sin)))
	dh := int(math.Ceil(math.Abs(w*sin) + math.Abs(h*cos)))
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	cx, cy := w/2, h/2
	dcx, dcy := float64(dw)/2, float64(dh)/2
	s2d := f64.Aff3{
		cos, -sin, dcx - (cos*cx - sin*cy),
		sin, cos, dcy - (sin*cx + cos*cy),
	}
	draw.BiLinear.Transform(dst, s2d, src, src.Bounds(), draw.Over, nil)
	return dst
}
