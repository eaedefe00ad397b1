// Package imaging prepares bill images for the extraction service: document-wide
// normalization before page splitting and per-page enhancement after it.
//
// Every transformation here is best-effort. A failing step logs and hands back
// its input unchanged so that enhancement never decides whether a document can
// be extracted.
package imaging

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrNormalization marks a failed document-wide normalization pass.
	ErrNormalization = errors.New("normalization failed")
	// ErrEnhancement marks a failed per-page enhancement step.
	ErrEnhancement = errors.New("enhancement failed")
)

// Try runs step on in. If the step returns an error or panics, the failure is
// logged under kind and in is returned unchanged.
func Try[T any](logger *slog.Logger, kind error, name string, in T, step func(T) (T, error)) T {
	out, err := guard(in, step)
	if err != nil {
		logger.Warn("image step skipped", "step", name, "error", fmt.Errorf("%w: %s: %w", kind, name, err))
		return in
	}
	return out
}

func guard[T any](in T, step func(T) (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step(in)
}
