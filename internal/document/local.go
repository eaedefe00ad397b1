package document

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFiles reads documents from the local filesystem relative to basePath.
type LocalFiles struct {
	basePath string
}

// NewLocalFiles creates a LocalFiles rooted at basePath. An empty basePath
// means the working directory.
func NewLocalFiles(basePath string) *LocalFiles {
	if basePath == "" {
		basePath = "."
	}
	return &LocalFiles{basePath: basePath}
}

// Get reads the file at path, refusing paths that escape basePath and files
// larger than maxSize bytes.
func (l *LocalFiles) Get(path string, maxSize int64) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(path))
	if !filepath.IsLocal(clean) {
		return nil, fmt.Errorf("%w: path %q escapes %s", ErrFetch, path, l.basePath)
	}
	fullPath := filepath.Join(l.basePath, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("%w: stat file: %w", ErrFetch, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFetch, path)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrDocumentTooLarge, info.Size(), maxSize)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading file: %w", ErrFetch, err)
	}
	return data, nil
}
