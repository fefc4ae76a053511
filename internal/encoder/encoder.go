// Package encoder turns a document's bytes into the base64 text that is
// embedded in the summarization request body.
package encoder

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dharsanguruparan/pdfsummarizer/internal/model"
)

var (
	// ErrTruncated means fewer bytes were read than the document declared.
	ErrTruncated = errors.New("truncated read")
	// ErrTooLarge means the document exceeds the configured byte limit.
	ErrTooLarge = errors.New("document exceeds size limit")
)

// EncodeError wraps any failure to read the source bytes.
type EncodeError struct {
	Name string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Name, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// Encoder produces standard base64 (no data-URL prefix). A maxSize of zero
// disables the size limit.
type Encoder struct {
	maxSize int64
}

// New creates an Encoder.
func New(maxSize int64) *Encoder {
	return &Encoder{maxSize: maxSize}
}

// Encode reads the whole document and returns its base64 encoding.
func (e *Encoder) Encode(doc model.Document) (string, error) {
	fail := func(err error) (string, error) {
		return "", &EncodeError{Name: doc.Name, Err: err}
	}
	if doc.Source == nil {
		return fail(errors.New("document has no source"))
	}
	if e.maxSize > 0 && doc.Size > e.maxSize {
		return fail(fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, doc.Size, e.maxSize))
	}
	rc, err := doc.Source.Open()
	if err != nil {
		return fail(fmt.Errorf("open source: %w", err))
	}
	defer rc.Close()

	var src io.Reader = rc
	if e.maxSize > 0 {
		// One extra byte lets us tell "exactly at the limit" from "over it".
		src = io.LimitReader(rc, e.maxSize+1)
	}
	var out strings.Builder
	if doc.Size > 0 {
		out.Grow(base64.StdEncoding.EncodedLen(int(doc.Size)))
	}
	enc := base64.NewEncoder(base64.StdEncoding, &out)
	n, err := io.Copy(enc, src)
	if err != nil {
		return fail(fmt.Errorf("read source: %w", err))
	}
	if err := enc.Close(); err != nil {
		return fail(fmt.Errorf("flush encoder: %w", err))
	}
	if e.maxSize > 0 && n > e.maxSize {
		return fail(fmt.Errorf("%w: more than %d bytes", ErrTooLarge, e.maxSize))
	}
	if doc.Size > 0 && n != doc.Size {
		return fail(fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, doc.Size))
	}
	return out.String(), nil
}
