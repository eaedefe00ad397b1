package document

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	defaultMaxSize = 50 * 1024 * 1024
)

// DefaultSamplePrefixes are the reference prefixes treated as local paths.
var DefaultSamplePrefixes = []string{"TRAINING_SAMPLES/", "./"}

// Fetcher resolves document references. A reference is one of:
//   - an inline data URL (data:<mediatype>;base64,<payload>)
//   - a local path starting with one of the sample prefixes
//   - an s3://bucket/key object reference, when an object store is configured
//   - anything else, fetched as a remote URL with HTTP GET
type Fetcher struct {
	client   *http.Client
	timeout  time.Duration
	maxSize  int64
	prefixes []string
	local    *LocalFiles
	store    ObjectStore
	logger   *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets the client used for remote URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout bounds remote and object store fetches.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) { f.timeout = d }
}

// WithMaxSize sets the document size ceiling in bytes.
func WithMaxSize(n int64) Option {
	return func(f *Fetcher) { f.maxSize = n }
}

// WithSamplePrefixes replaces the prefixes that mark a reference as local.
func WithSamplePrefixes(prefixes ...string) Option {
	return func(f *Fetcher) { f.prefixes = prefixes }
}

// WithLocalFiles sets where local references are read from.
func WithLocalFiles(l *LocalFiles) Option {
	return func(f *Fetcher) { f.local = l }
}

// WithObjectStore enables s3:// references.
func WithObjectStore(s ObjectStore) Option {
	return func(f *Fetcher) { f.store = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher with a 30 second timeout and a 50 MB ceiling.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:   http.DefaultClient,
		timeout:  defaultTimeout,
		maxSize:  defaultMaxSize,
		prefixes: DefaultSamplePrefixes,
		local:    NewLocalFiles(""),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch resolves ref into a Raw document. Errors wrap ErrFetch or
// ErrDocumentTooLarge.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Raw, error) {
	var (
		data      []byte
		mediaType string
		err       error
		kind      string
	)
	switch {
	case strings.HasPrefix(ref, "data:"):
		kind = "data_url"
		data, mediaType, err = f.fetchDataURL(ref)
	case f.isLocal(ref):
		kind = "local"
		data, err = f.local.Get(ref, f.maxSize)
		mediaType = mime.TypeByExtension(filepath.Ext(ref))
	case strings.HasPrefix(ref, "s3://"):
		kind = "s3"
		data, err = f.fetchObject(ctx, ref)
		mediaType = mime.TypeByExtension(filepath.Ext(ref))
	default:
		kind = "http"
		data, mediaType, err = f.fetchHTTP(ctx, ref)
	}
	if err != nil {
		f.logger.Error("fetching document", "source", kind, "error", err)
		return nil, err
	}

	raw := &Raw{
		Data:      data,
		Format:    sniff(data, mediaType, ref),
		MediaType: mediaType,
		Source:    ref,
	}
	f.logger.Info("document fetched", "source", kind, "bytes", len(data), "format", raw.Format)
	return raw, nil
}

func (f *Fetcher) isLocal(ref string) bool {
	for _, p := range f.prefixes {
		if p != "" && strings.HasPrefix(ref, p) {
			return true
		}
	}
	return false
}

// fetchDataURL decodes a base64 data URL. Payload whitespace is ignored and
// missing padding is tolerated.
func (f *Fetcher) fetchDataURL(ref string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data url", ErrFetch)
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("%w: data url is not base64 encoded", ErrFetch)
	}

	payload = strings.Join(strings.Fields(payload), "")
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, "", fmt.Errorf("%w: decoding base64: %w", ErrFetch, err)
		}
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty data url payload", ErrFetch)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, "", fmt.Errorf("%w: %d bytes exceeds %d", ErrDocumentTooLarge, len(data), f.maxSize)
	}
	return data, mediaType, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, ref string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: creating request: %w", ErrFetch, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: GET %s: %w", ErrFetch, ref, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: GET %s: status %d", ErrFetch, ref, resp.StatusCode)
	}

	data, err := f.readLimited(resp.Body)
	if err != nil {
		return nil, "", err
	}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return data, mediaType, nil
}

func (f *Fetcher) fetchObject(ctx context.Context, ref string) ([]byte, error) {
	if f.store == nil {
		return nil, fmt.Errorf("%w: no object store configured for %s", ErrFetch, ref)
	}
	bucket, key, err := parseS3Ref(ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.store.Open(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer body.Close()
	return f.readLimited(body)
}

// readLimited reads at most maxSize+1 bytes so an oversized body is detected
// without buffering all of it.
func (f *Fetcher) readLimited(r io.Reader) ([]byte, error) {
	if f.maxSize > 0 {
		r = io.LimitReader(r, f.maxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: timed out reading body: %w", ErrFetch, err)
		}
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrDocumentTooLarge, f.maxSize)
	}
	return data, nil
}
