package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// whitePage returns a white RGBA canvas.
func whitePage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return img
}

// band draws a black bar of the given thickness through (cx, cy) at deg
// degrees, measured clockwise on screen.
func band(img *image.RGBA, cx, cy, length, thickness, deg float64) {
	rad := deg * math.Pi / 180
	ux, uy := math.Cos(rad), math.Sin(rad)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			px, py := float64(x)+0.5-cx, float64(y)+0.5-cy
			along := px*ux + py*uy
			across := -px*uy + py*ux
			if math.Abs(along) <= length/2 && math.Abs(across) <= thickness/2 {
				img.Set(x, y, color.Black)
			}
		}
	}
}

var _ = Describe("DetectSkew", func() {
	When("the ink is tilted by 5 degrees", func() {
		It("should report an angle close to 5", func() {
			img := whitePage(400, 300)
			band(img, 200, 150, 300, 40, 5)
			angle, ok := DetectSkew(img)
			Expect(ok).To(BeTrue())
			Expect(angle).To(BeNumerically("~", 5, 0.75))
		})
	})

	When("the ink is tilted the other way", func() {
		It("should report a negative angle", func() {
			img := whitePage(400, 300)
			band(img, 200, 150, 300, 40, -7)
			angle, ok := DetectSkew(img)
			Expect(ok).To(BeTrue())
			Expect(angle).To(BeNumerically("~", -7, 0.75))
		})
	})

	When("the ink is an upright rectangle", func() {
		It("should report no skew", func() {
			img := whitePage(200, 200)
			draw.Draw(img, image.Rect(40, 60, 160, 120), image.NewUniform(color.Black), image.Point{}, draw.Src)
			angle, ok := DetectSkew(img)
			Expect(ok).To(BeTrue())
			Expect(angle).To(BeNumerically("~", 0, 0.01))
		})
	})

	When("the page is blank", func() {
		It("should report that nothing can be measured", func() {
			_, ok := DetectSkew(whitePage(50, 50))
			Expect(ok).To(BeFalse())
		})
	})
})

var _ = Describe("normalizeAngle", func() {
	It("should fold orientations into (-45, 45]", func() {
		Expect(normalizeAngle(95)).To(BeNumerically("~", 5, 1e-9))
		Expect(normalizeAngle(-85)).To(BeNumerically("~", 5, 1e-9))
		Expect(normalizeAngle(180)).To(BeNumerically("~", 0, 1e-9))
		Expect(normalizeAngle(60)).To(BeNumerically("~", -30, 1e-9))
		Expect(normalizeAngle(45)).To(BeNumerically("~", 45, 1e-9))
	})
})

var _ = Describe("Rotate", func() {
	It("should expand the canvas to hold the rotated image", func() {
		out := Rotate(whitePage(100, 50), 90)
		Expect(out.Bounds().Dx()).To(BeNumerically("~", 50, 1))
		Expect(out.Bounds().Dy()).To(BeNumerically("~", 100, 1))
	})

	It("should fill uncovered corners with white", func() {
		img := image.NewRGBA(image.Rect(0, 0, 100, 100))
		draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
		out := Rotate(img, 30)
		Expect(out.RGBAAt(0, 0)).To(Equal(color.RGBA{R: 255, G: 255, B: 255, A: 255}))
	})
})

var _ = Describe("Downscale", func() {
	It("should shrink the longer side to the limit", func() {
		out := Downscale(image.NewGray(image.Rect(0, 0, 8000, 100)), 4096)
		Expect(out.Bounds().Dx()).To(Equal(4096))
		Expect(out.Bounds().Dy()).To(Equal(51))
	})

	It("should leave small images alone", func() {
		img := image.NewGray(image.Rect(0, 0, 300, 200))
		Expect(Downscale(img, 4096)).To(BeIdenticalTo(img))
	})
})

var _ = Describe("Enhancer", func() {
	var (
		enhancer *Enhancer
		input    []byte
		output   []byte
	)

	BeforeEach(func() {
		enhancer = NewEnhancer(nil)
	})

	JustBeforeEach(func() {
		output = enhancer.Enhance(input)
	})

	When("the page is straight", func() {
		BeforeEach(func() {
			img := whitePage(200, 120)
			draw.Draw(img, image.Rect(20, 40, 180, 80), image.NewUniform(color.Black), image.Point{}, draw.Src)
			input = mustPNG(img)
		})

		It("should keep the page size", func() {
			Expect(IsPNG(output)).To(BeTrue())
			w, h, err := Dimensions(output)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(Equal(200))
			Expect(h).To(Equal(120))
		})
	})

	When("the page is skewed beyond the threshold", func() {
		BeforeEach(func() {
			img := whitePage(400, 300)
			band(img, 200, 150, 300, 40, 5)
			input = mustPNG(img)
		})

		It("should rotate onto a larger canvas", func() {
			w, h, err := Dimensions(output)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(BeNumerically(">", 400))
			Expect(h).To(BeNumerically(">", 300))
		})
	})

	When("the skew is below a raised threshold", func() {
		BeforeEach(func() {
			enhancer = NewEnhancer(nil, WithDeskewThreshold(10))
			img := whitePage(400, 300)
			band(img, 200, 150, 300, 40, 5)
			input = mustPNG(img)
		})

		It("should not rotate", func() {
			w, h, err := Dimensions(output)
			Expect(err).NotTo(HaveOccurred())
			Expect(w).To(Equal(400))
			Expect(h).To(Equal(300))
		})
	})

	When("the page cannot be decoded", func() {
		BeforeEach(func() {
			input = []byte("garbage page")
		})

		It("should return the page unchanged", func() {
			Expect(bytes.Equal(output, input)).To(BeTrue())
		})
	})
})

var _ = Describe("pixel adjustments", func() {
	It("should brighten every channel", func() {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.SetRGBA(0, 0, color.RGBA{R: 100, G: 200, B: 250, A: 255})
		out := AdjustBrightness(img, 1.1)
		Expect(out.RGBAAt(0, 0)).To(Equal(color.RGBA{R: 110, G: 220, B: 255, A: 255}))
	})

	It("should push values away from the mean", func() {
		img := image.NewRGBA(image.Rect(0, 0, 2, 1))
		img.SetRGBA(0, 0, color.RGBA{R: 100, G: 100, B: 100, A: 255})
		img.SetRGBA(1, 0, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		out := AdjustContrast(img, 1.8)
		Expect(out.RGBAAt(0, 0).R).To(BeNumerically("<", 100))
		Expect(out.RGBAAt(1, 0).R).To(BeNumerically(">", 200))
	})

	It("should leave a flat image untouched when sharpening", func() {
		img := whitePage(5, 5)
		out := Sharpen(img, 2.0)
		Expect(out.Pix).To(Equal(img.Pix))
	})
})
