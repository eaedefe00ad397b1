package scanning

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/bill-extractor/internal/imaging"
)

// mockScanner is a mock implementation of Scanner
type mockScanner struct {
	mu           sync.Mutex
	response     string
	err          error
	panicWith    any
	block        bool
	ignoreCtx    chan struct{}
	calls        int
	lastImage    []byte
	lastMimeType string
	lastPrompt   string
}

func (m *mockScanner) Scan(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	m.mu.Lock()
	m.calls++
	m.lastImage = image
	m.lastMimeType = mimeType
	m.lastPrompt = instruction
	m.mu.Unlock()

	if m.panicWith != nil {
		panic(m.panicWith)
	}
	if m.ignoreCtx != nil {
		<-m.ignoreCtx
	}
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.response, m.err
}

func (m *mockScanner) Close() error {
	return nil
}

func testPNG() []byte {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

const onePage = `{"page_type": "Bill Detail", "bill_items": [{"item_name": "Consultation", "item_quantity": 1, "item_rate": 500, "item_amount": 500}]}`

var _ = Describe("Invoker", func() {
	var (
		scanner *mockScanner
		opts    []InvokerOption
		invoker *Invoker
		ctx     context.Context
		page    []byte
		result  PageScan
	)

	BeforeEach(func() {
		scanner = &mockScanner{response: onePage}
		opts = nil
		ctx = context.Background()
		page = testPNG()
	})

	JustBeforeEach(func() {
		invoker = NewInvoker(scanner, opts...)
		result = invoker.Invoke(ctx, 1, page)
	})

	When("the service returns items", func() {
		It("should return the items", func() {
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.PageType).To(Equal("Bill Detail"))
			Expect(result.Items).To(Equal([]Item{{Name: "Consultation", Quantity: 1, Rate: 500, Amount: 500}}))
		})

		It("should send the fixed instruction with a PNG", func() {
			Expect(scanner.lastPrompt).To(Equal(Instruction))
			Expect(scanner.lastMimeType).To(Equal("image/png"))
			Expect(scanner.lastImage).To(Equal(page))
		})

		It("should estimate usage from word counts", func() {
			expected := EstimateUsage(Instruction, onePage)
			Expect(result.Usage).To(Equal(expected))
			Expect(result.Usage.Total()).To(Equal(result.Usage.Input + result.Usage.Output))
		})
	})

	When("the page is a JPEG", func() {
		BeforeEach(func() {
			var buf bytes.Buffer
			img := image.NewRGBA(image.Rect(0, 0, 8, 8))
			img.Set(1, 1, color.White)
			Expect(jpeg.Encode(&buf, img, nil)).To(Succeed())
			page = buf.Bytes()
		})

		It("should convert it to PNG before sending", func() {
			Expect(imaging.IsPNG(scanner.lastImage)).To(BeTrue())
		})
	})

	When("the page is over the size threshold", func() {
		BeforeEach(func() {
			opts = []InvokerOption{WithMaxPageSize(10)}
		})

		It("should recompress the page", func() {
			Expect(imaging.IsPNG(scanner.lastImage)).To(BeTrue())
			Expect(result.Items).To(HaveLen(1))
		})
	})

	When("the service fails", func() {
		BeforeEach(func() {
			scanner.err = errors.New("quota exceeded")
		})

		It("should return an empty default page with zero usage", func() {
			Expect(errors.Is(result.Err, ErrExtractionService)).To(BeTrue())
			Expect(result.PageType).To(Equal(DefaultPageType))
			Expect(result.Items).To(BeEmpty())
			Expect(result.Usage).To(Equal(Usage{}))
		})
	})

	When("the scanner panics", func() {
		BeforeEach(func() {
			scanner.panicWith = "nil map"
		})

		It("should degrade the page", func() {
			Expect(errors.Is(result.Err, ErrExtractionService)).To(BeTrue())
			Expect(result.Items).To(BeEmpty())
		})
	})

	When("the call exceeds the timeout", func() {
		BeforeEach(func() {
			scanner.block = true
			opts = []InvokerOption{WithTimeout(20 * time.Millisecond)}
		})

		It("should degrade the page", func() {
			Expect(errors.Is(result.Err, ErrExtractionService)).To(BeTrue())
			Expect(errors.Is(result.Err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	When("the scanner ignores its context", func() {
		BeforeEach(func() {
			scanner.ignoreCtx = make(chan struct{})
			opts = []InvokerOption{WithTimeout(20 * time.Millisecond)}
		})

		AfterEach(func() {
			close(scanner.ignoreCtx)
		})

		It("should abandon the call at the deadline", func() {
			Expect(errors.Is(result.Err, context.DeadlineExceeded)).To(BeTrue())
		})
	})

	When("the document context is already canceled", func() {
		BeforeEach(func() {
			c, cancel := context.WithCancel(context.Background())
			cancel()
			ctx = c
			scanner.block = true
		})

		It("should degrade the page with the cancellation", func() {
			Expect(errors.Is(result.Err, context.Canceled)).To(BeTrue())
		})
	})

	When("the response cannot be parsed", func() {
		BeforeEach(func() {
			scanner.response = "no json here"
		})

		It("should return an empty page with zero usage", func() {
			Expect(errors.Is(result.Err, ErrParse)).To(BeTrue())
			Expect(result.PageType).To(Equal(DefaultPageType))
			Expect(result.Items).To(BeEmpty())
			Expect(result.Usage).To(Equal(Usage{}))
		})
	})

	When("the response has no items", func() {
		BeforeEach(func() {
			scanner.response = `{"page_type": "Cover", "bill_items": []}`
		})

		It("should return an empty page without an error", func() {
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.PageType).To(Equal(DefaultPageType))
			Expect(result.Usage).To(Equal(Usage{}))
		})
	})

	When("a rate limit is configured", func() {
		BeforeEach(func() {
			opts = []InvokerOption{WithRateLimit(1000)}
		})

		It("should still call the scanner", func() {
			Expect(scanner.calls).To(Equal(1))
			Expect(result.Items).To(HaveLen(1))
		})
	})
})
