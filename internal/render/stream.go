// Package render hands the revealed prefix to an output. It writes only the
// newly revealed tail of each frame, so the reader sees the summary grow.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dharsanguruparan/pdfsummarizer/internal/reveal"
)

// ErrReplaced is returned when a new summary replaces the one being written.
var ErrReplaced = errors.New("summary replaced")

// Options tunes Stream.
type Options struct {
	// Accept, when set, skips frames until it returns true. Writing starts at
	// the first accepted frame and follows its generation only.
	Accept func(reveal.Frame) bool
	// Flush is called after each write, e.g. http.Flusher.Flush.
	Flush func()
}

// Stream copies frames to w until the reveal completes, the summary is
// replaced, frames closes, or ctx ends. It never writes characters from two
// different summaries.
func Stream(ctx context.Context, w io.Writer, frames <-chan reveal.Frame, opts Options) error {
	var (
		gen     uint64
		started bool
		written int
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if !started {
				if opts.Accept != nil && !opts.Accept(f) {
					continue
				}
				gen = f.Generation
				started = true
			} else if f.Generation != gen {
				return ErrReplaced
			}
			if len(f.Prefix) > written {
				if _, err := io.WriteString(w, f.Prefix[written:]); err != nil {
					return fmt.Errorf("write summary: %w", err)
				}
				written = len(f.Prefix)
				if opts.Flush != nil {
					opts.Flush()
				}
			}
			if f.Done() {
				return nil
			}
		}
	}
}
