// Package config binds the command line and environment settings shared by
// the bill-extractor commands and builds the pipeline from them.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"

	"github.com/zombor/bill-extractor/internal/bill"
	"github.com/zombor/bill-extractor/internal/document"
	"github.com/zombor/bill-extractor/internal/imaging"
	"github.com/zombor/bill-extractor/internal/pages"
	"github.com/zombor/bill-extractor/internal/scanning"
)

// EnvVarPrefix prefixes every flag's environment variable, so --port is also
// read from BILL_EXTRACTOR_PORT.
const EnvVarPrefix = "BILL_EXTRACTOR"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the resolved settings.
type Config struct {
	Port int

	Scanner     string
	GeminiKey   string
	GeminiModel string
	OllamaURL   string
	OllamaModel string

	FuzzyThreshold  float64
	AmountDiffRatio float64

	RequestTimeout   time.Duration
	MaxDocumentSize  int
	MaxPageSize      int
	MaxPageDimension int
	DPI              float64
	DeskewThreshold  float64
	Workers          int
	RateLimit        float64
	SamplePrefixes   []string

	S3 document.S3Config

	AuthUser string
	AuthPass string

	LogLevel  string
	LogFormat string
}

// Flags holds the flag values bound to a flag set until they are resolved
// with Config.
type Flags struct {
	port             *int
	scanner          *string
	geminiKey        *string
	geminiModel      *string
	ollamaURL        *string
	ollamaModel      *string
	fuzzyThreshold   *float64
	amountDiffRatio  *float64
	requestTimeout   *time.Duration
	maxDocumentSize  *int
	maxPageSize      *int
	maxPageDimension *int
	dpi              *float64
	deskewThreshold  *float64
	workers          *int
	rateLimit        *float64
	samplePrefixes   *string
	s3Endpoint       *string
	s3Region         *string
	s3AccessKey      *string
	s3SecretKey      *string
	authUser         *string
	authPass         *string
	logLevel         *string
	logFormat        *string
}

// Bind registers the shared flags on fs.
func Bind(fs *ff.FlagSet) *Flags {
	return &Flags{
		port:             fs.IntLong("port", 5000, "HTTP server port"),
		scanner:          fs.StringLong("scanner", "gemini", "Scanner type: 'gemini' or 'ollama'"),
		geminiKey:        fs.StringLong("gemini-key", "", "Google Gemini API key (or set GOOGLE_API_KEY / GEMINI_API_KEY)"),
		geminiModel:      fs.StringLong("gemini-model", scanning.DefaultGeminiModel, "Google Gemini model name"),
		ollamaURL:        fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel:      fs.StringLong("ollama-model", "llava", "Ollama model name"),
		fuzzyThreshold:   fs.Float64Long("fuzzy-threshold", bill.DefaultFuzzyThreshold, "Name similarity above which two items may be duplicates"),
		amountDiffRatio:  fs.Float64Long("amount-diff-ratio", bill.DefaultAmountDiffRatio, "Relative amount difference below which two items may be duplicates"),
		requestTimeout:   fs.DurationLong("request-timeout", 30*time.Second, "Timeout for fetching a document and for each page scan"),
		maxDocumentSize:  fs.IntLong("max-document-size", 50*1024*1024, "Largest accepted document in bytes"),
		maxPageSize:      fs.IntLong("max-page-size", 5*1024*1024, "Page images above this many bytes are recompressed"),
		maxPageDimension: fs.IntLong("max-page-dimension", 4096, "Pages are downscaled to fit this many pixels"),
		dpi:              fs.Float64Long("dpi", 300, "PDF rasterization DPI"),
		deskewThreshold:  fs.Float64Long("deskew-threshold", 1.0, "Skew in degrees at or below which pages are not rotated"),
		workers:          fs.IntLong("workers", 4, "Pages scanned concurrently per document"),
		rateLimit:        fs.Float64Long("rate-limit", 0, "Scanner calls per second across all requests (0 = unlimited)"),
		samplePrefixes:   fs.StringLong("sample-prefixes", strings.Join(document.DefaultSamplePrefixes, ","), "Comma separated prefixes of references read from local disk"),
		s3Endpoint:       fs.StringLong("s3-endpoint", "", "S3-compatible endpoint URL (optional)"),
		s3Region:         fs.StringLong("s3-region", "", "S3 region (optional)"),
		s3AccessKey:      fs.StringLong("s3-access-key", "", "S3 access key (optional)"),
		s3SecretKey:      fs.StringLong("s3-secret-key", "", "S3 secret key (optional)"),
		authUser:         fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:         fs.StringLong("auth-pass", "", "Basic auth password (optional)"),
		logLevel:         fs.StringLong("log-level", "info", "Log level: debug, info, warn or error"),
		logFormat:        fs.StringLong("log-format", "text", "Log format: 'text' or 'json'"),
	}
}

// Parse loads a .env file when present and parses args and the environment
// into fs.
func Parse(fs *ff.FlagSet, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return ff.Parse(fs, args, ff.WithEnvVarPrefix(EnvVarPrefix))
}

// Config resolves the parsed flags and validates them.
func (f *Flags) Config() (*Config, error) {
	c := &Config{
		Port:             *f.port,
		Scanner:          *f.scanner,
		GeminiKey:        *f.geminiKey,
		GeminiModel:      *f.geminiModel,
		OllamaURL:        *f.ollamaURL,
		OllamaModel:      *f.ollamaModel,
		FuzzyThreshold:   *f.fuzzyThreshold,
		AmountDiffRatio:  *f.amountDiffRatio,
		RequestTimeout:   *f.requestTimeout,
		MaxDocumentSize:  *f.maxDocumentSize,
		MaxPageSize:      *f.maxPageSize,
		MaxPageDimension: *f.maxPageDimension,
		DPI:              *f.dpi,
		DeskewThreshold:  *f.deskewThreshold,
		Workers:          *f.workers,
		RateLimit:        *f.rateLimit,
		SamplePrefixes:   splitList(*f.samplePrefixes),
		S3: document.S3Config{
			Endpoint:  *f.s3Endpoint,
			Region:    *f.s3Region,
			AccessKey: *f.s3AccessKey,
			SecretKey: *f.s3SecretKey,
		},
		AuthUser:  *f.authUser,
		AuthPass:  *f.authPass,
		LogLevel:  *f.logLevel,
		LogFormat: *f.logFormat,
	}
	if c.GeminiKey == "" {
		c.GeminiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.GeminiKey == "" {
		c.GeminiKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects out of range settings.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.Port > 0 && c.Port < 65536, "port %d out of range", c.Port)
	check(c.Scanner == "gemini" || c.Scanner == "ollama", "scanner %q, want gemini or ollama", c.Scanner)
	check(c.Scanner != "gemini" || c.GeminiKey != "", "gemini scanner needs --gemini-key, GOOGLE_API_KEY or GEMINI_API_KEY")
	check(c.FuzzyThreshold > 0 && c.FuzzyThreshold <= 1, "fuzzy-threshold %v not in (0, 1]", c.FuzzyThreshold)
	check(c.AmountDiffRatio > 0 && c.AmountDiffRatio <= 1, "amount-diff-ratio %v not in (0, 1]", c.AmountDiffRatio)
	check(c.RequestTimeout > 0, "request-timeout must be positive")
	check(c.MaxDocumentSize > 0, "max-document-size must be positive")
	check(c.MaxPageSize > 0, "max-page-size must be positive")
	check(c.MaxPageDimension > 0, "max-page-dimension must be positive")
	check(c.DPI > 0, "dpi must be positive")
	check(c.DeskewThreshold >= 0, "deskew-threshold must not be negative")
	check(c.Workers > 0, "workers must be positive")
	check(c.RateLimit >= 0, "rate-limit must not be negative")
	check(c.LogFormat == "text" || c.LogFormat == "json", "log-format %q, want text or json", c.LogFormat)
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrInvalid, err))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log-level %q: %w", s, err)
	}
	return level, nil
}

// NewLogger builds the logger described by LogLevel and LogFormat.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewScanner creates the configured vision model client.
func (c *Config) NewScanner() (scanning.Scanner, error) {
	switch c.Scanner {
	case "gemini":
		slog.Info("Initializing Gemini scanner...", "model", c.GeminiModel)
		s, err := scanning.NewGemini(c.GeminiKey, c.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing gemini: %w", err)
		}
		return s, nil
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", c.OllamaURL, "model", c.OllamaModel)
		s, err := scanning.NewOllama(c.OllamaURL, c.OllamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing ollama: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: scanner %q", ErrInvalid, c.Scanner)
	}
}

// UseS3 reports whether any object store setting was given.
func (c *Config) UseS3() bool {
	return c.S3 != (document.S3Config{})
}

// NewFetcher creates the document fetcher, with s3:// support when an object
// store is configured.
func (c *Config) NewFetcher(ctx context.Context, logger *slog.Logger) (*document.Fetcher, error) {
	opts := []document.Option{
		document.WithTimeout(c.RequestTimeout),
		document.WithMaxSize(int64(c.MaxDocumentSize)),
		document.WithSamplePrefixes(c.SamplePrefixes...),
		document.WithLogger(logger),
	}
	if c.UseS3() {
		store, err := document.NewS3Store(ctx, c.S3)
		if err != nil {
			return nil, fmt.Errorf("initializing object store: %w", err)
		}
		opts = append(opts, document.WithObjectStore(store))
	}
	return document.NewFetcher(opts...), nil
}

// NewService wires the extraction pipeline around scanner.
func (c *Config) NewService(ctx context.Context, scanner scanning.Scanner, logger *slog.Logger) (*bill.Service, error) {
	fetcher, err := c.NewFetcher(ctx, logger)
	if err != nil {
		return nil, err
	}

	splitter := pages.NewSplitter(pages.FitzRasterizer{},
		pages.WithDPI(c.DPI),
		pages.WithMaxDimension(c.MaxPageDimension),
		pages.WithLogger(logger),
	)

	invoker := scanning.NewInvoker(scanner,
		scanning.WithTimeout(c.RequestTimeout),
		scanning.WithMaxPageSize(c.MaxPageSize),
		scanning.WithRateLimit(c.RateLimit),
		scanning.WithLogger(logger),
	)

	return bill.NewService(fetcher, splitter, invoker,
		bill.WithWorkers(c.Workers),
		bill.WithDeduplicator(bill.NewDeduplicator(c.FuzzyThreshold, c.AmountDiffRatio)),
		bill.WithEnhancer(imaging.NewEnhancer(logger, imaging.WithDeskewThreshold(c.DeskewThreshold))),
		bill.WithLogger(logger),
	), nil
}
