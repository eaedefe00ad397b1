package bill

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/zombor/bill-extractor/internal/document"
	"github.com/zombor/bill-extractor/internal/imaging"
	"github.com/zombor/bill-extractor/internal/pages"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// Fetcher resolves a document reference.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*document.Raw, error)
}

// PageSplitter turns a document into pages.
type PageSplitter interface {
	Split(raw *document.Raw) ([]pages.Page, error)
}

// PageScanner extracts the items of one page. It never fails; degraded pages
// come back empty.
type PageScanner interface {
	Invoke(ctx context.Context, pageNo int, image []byte) scanning.PageScan
}

// IDGenerator generates request IDs
type IDGenerator interface {
	Generate() string
}

type uuidGenerator struct{}

func (uuidGenerator) Generate() string {
	return uuid.NewString()
}

// Service runs the extraction pipeline for one document at a time.
type Service struct {
	fetcher     Fetcher
	normalizer  *imaging.Normalizer
	splitter    PageSplitter
	enhancer    *imaging.Enhancer
	scanner     PageScanner
	dedup       *Deduplicator
	workers     int
	idGenerator IDGenerator
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWorkers sets how many pages are processed concurrently.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// WithDeduplicator replaces the default deduplication thresholds.
func WithDeduplicator(d *Deduplicator) ServiceOption {
	return func(s *Service) { s.dedup = d }
}

// WithEnhancer replaces the default page enhancer.
func WithEnhancer(e *imaging.Enhancer) ServiceOption {
	return func(s *Service) { s.enhancer = e }
}

// WithIDGenerator replaces the request ID generator.
func WithIDGenerator(g IDGenerator) ServiceOption {
	return func(s *Service) { s.idGenerator = g }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service with four workers and default enhancement
// and deduplication settings.
func NewService(fetcher Fetcher, splitter PageSplitter, scanner PageScanner, opts ...ServiceOption) *Service {
	s := &Service{
		fetcher:     fetcher,
		splitter:    splitter,
		scanner:     scanner,
		workers:     4,
		idGenerator: uuidGenerator{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.workers < 1 {
		s.workers = 1
	}
	if s.normalizer == nil {
		s.normalizer = imaging.NewNormalizer(s.logger)
	}
	if s.enhancer == nil {
		s.enhancer = imaging.NewEnhancer(s.logger)
	}
	if s.dedup == nil {
		s.dedup = NewDeduplicator(DefaultFuzzyThreshold, DefaultAmountDiffRatio)
	}
	return s
}

// Extract runs the whole pipeline for ref. The response is always non-nil.
// The error is non-nil only for fatal failures (fetch, PDF conversion, page
// encoding, cancellation), in which case the response describes the failure.
// Single pages that fail are reported as empty pages.
func (s *Service) Extract(ctx context.Context, ref string) (*ExtractionResponse, error) {
	start := time.Now()
	logger := s.logger.With("req_id", s.idGenerator.Generate())
	logger.Info("extraction started", "document", describeRef(ref))

	raw, err := s.fetcher.Fetch(ctx, ref)
	if err != nil {
		return s.fail(logger, err)
	}

	if !raw.IsPDF() {
		raw.Data = s.normalizer.Normalize(raw.Data, raw.MediaType)
		if imaging.IsPNG(raw.Data) {
			raw.MediaType = "image/png"
		}
	}

	pageList, err := s.splitter.Split(raw)
	if err != nil {
		return s.fail(logger, err)
	}
	logger.Info("document split", "pages", len(pageList))

	results := make([]scanning.PageScan, len(pageList))
	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, page := range pageList {
		g.Go(func() error {
			results[i] = s.processPage(ctx, logger, page)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return s.fail(logger, fmt.Errorf("extraction canceled: %w", err))
	}

	var usage scanning.Usage
	pageItems := make([]PageLineItems, len(pageList))
	for i, r := range results {
		items := make([]LineItem, len(r.Items))
		for j, it := range r.Items {
			items[j] = LineItem(it)
		}
		pageItems[i] = PageLineItems{
			PageNo:    strconv.Itoa(pageList[i].Number),
			PageType:  r.PageType,
			BillItems: items,
		}
		usage = usage.Add(r.Usage)
	}

	deduped := s.dedup.Deduplicate(pageItems)
	resp := newSuccess(deduped, TokenUsage{
		TotalTokens:  usage.Total(),
		InputTokens:  usage.Input,
		OutputTokens: usage.Output,
	})

	logger.Info("extraction complete",
		"pages", len(deduped),
		"items", resp.Data.TotalItemCount,
		"total_tokens", usage.Total(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func (s *Service) processPage(ctx context.Context, logger *slog.Logger, page pages.Page) scanning.PageScan {
	data := s.enhancer.Enhance(page.Data)
	if w, h, err := imaging.Dimensions(data); err == nil {
		page.Width, page.Height = w, h
	}
	logger.Debug("page enhanced", "page", page.Number, "width", page.Width, "height", page.Height, "bytes", len(data))
	return s.scanner.Invoke(ctx, page.Number, data)
}

func (s *Service) fail(logger *slog.Logger, err error) (*ExtractionResponse, error) {
	logger.Error("extraction failed", "error", err)
	return newFailure(err.Error()), err
}

// describeRef shortens inline documents for logging to at most 100 bytes,
// cutting on a rune boundary.
func describeRef(ref string) string {
	if len(ref) <= 100 {
		return ref
	}
	cut := 100
	for cut > 0 && !utf8.RuneStart(ref[cut]) {
		cut--
	}
	return ref[:cut] + "..."
}
