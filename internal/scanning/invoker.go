// Package scanning talks to the vision-capable extraction service and turns
// its free-text responses into bill line items.
package scanning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zombor/bill-extractor/internal/imaging"
)

// DefaultPageType labels pages the service returned nothing usable for.
const DefaultPageType = "Bill Detail"

var (
	// ErrExtractionService marks a failed call to the extraction service.
	ErrExtractionService = errors.New("extraction service failed")
	// ErrParse marks a response with no recoverable items array.
	ErrParse = errors.New("unparseable extraction response")
)

// PageScan is the extraction outcome for one page. Err is set when the page
// degraded to an empty result; it is informational, never fatal.
type PageScan struct {
	PageType string
	Items    []Item
	Usage    Usage
	Err      error
}

// Invoker sends pages to a Scanner one call at a time.
type Invoker struct {
	scanner     Scanner
	instruction string
	timeout     time.Duration
	maxPageSize int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithTimeout bounds every Scanner call.
func WithTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.timeout = d }
}

// WithMaxPageSize sets the size in bytes above which pages are recompressed.
func WithMaxPageSize(n int) InvokerOption {
	return func(i *Invoker) { i.maxPageSize = n }
}

// WithRateLimit limits Scanner calls to perSecond calls per second.
// Zero or less means unlimited.
func WithRateLimit(perSecond float64) InvokerOption {
	return func(i *Invoker) {
		if perSecond > 0 {
			i.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			i.limiter = nil
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) { i.logger = l }
}

// NewInvoker creates an Invoker with a 30 second timeout and a 5 MB page
// size threshold.
func NewInvoker(s Scanner, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		scanner:     s,
		instruction: Instruction,
		timeout:     30 * time.Second,
		maxPageSize: 5 * 1024 * 1024,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.logger == nil {
		i.logger = slog.Default()
	}
	return i
}

// Invoke extracts the line items of one page. Failures never escape: a failed
// call or an unusable response yields an empty page with zero usage.
func (i *Invoker) Invoke(ctx context.Context, pageNo int, image []byte) PageScan {
	logger := i.logger.With("page", pageNo)
	logger.Info("extracting page", "bytes", len(image))

	data, mimeType := i.prepare(logger, image)

	text, err := i.scan(ctx, data, mimeType)
	if err != nil {
		err = fmt.Errorf("%w: page %d: %w", ErrExtractionService, pageNo, err)
		logger.Error("extraction service call failed", "error", err)
		return PageScan{PageType: DefaultPageType, Items: []Item{}, Err: err}
	}
	logger.Info("extraction response received", "chars", len(text))

	outcome := Recover(text)
	pageType, items := Resolve(outcome)
	switch o := outcome.(type) {
	case Unparseable:
		logger.Warn("response could not be parsed", "error", o.Err)
		return PageScan{PageType: pageType, Items: items, Err: o.Err}
	case Parsed:
		if o.Dropped > 0 {
			logger.Warn("dropped malformed items", "dropped", o.Dropped)
		}
	}
	if len(items) == 0 {
		logger.Warn("no items extracted")
		return PageScan{PageType: pageType, Items: items}
	}

	logger.Info("page extracted", "items", len(items))
	return PageScan{
		PageType: pageType,
		Items:    items,
		Usage:    EstimateUsage(i.instruction, text),
	}
}

// prepare converts the page to PNG when possible and recompresses pages over
// the size threshold.
func (i *Invoker) prepare(logger *slog.Logger, image []byte) ([]byte, string) {
	data := image
	if !imaging.IsPNG(data) {
		converted, _, err := imaging.ToPNG(data, "")
		if err != nil {
			logger.Warn("page is not a decodable image, sending as-is", "error", err)
			return data, http.DetectContentType(data)
		}
		data = converted
	}

	if i.maxPageSize > 0 && len(data) > i.maxPageSize {
		logger.Info("page over size threshold, compressing", "bytes", len(data))
		compressed, err := imaging.Recompress(data)
		if err != nil {
			logger.Warn("recompression failed, sending original", "error", err)
		} else {
			data = compressed
			logger.Info("page compressed", "bytes", len(data))
		}
	}
	return data, "image/png"
}

type scanResult struct {
	text string
	err  error
}

// scan calls the Scanner under the per-call timeout. A Scanner that ignores
// its context is abandoned once the deadline passes.
func (i *Invoker) scan(ctx context.Context, image []byte, mimeType string) (string, error) {
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	done := make(chan scanResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- scanResult{err: fmt.Errorf("scanner panic: %v", r)}
			}
		}()
		text, err := i.scanner.Scan(ctx, image, mimeType, i.instruction)
		done <- scanResult{text: text, err: err}
	}()

	select {
	case r := <-done:
		return r.text, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("scanner call abandoned: %w", ctx.Err())
	}
}
