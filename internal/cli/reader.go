package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// ErrInputCanceled is returned when a read is abandoned because the
// context ended first.
var ErrInputCanceled = errors.New("input canceled")

// LineReader reads lines from a terminal while honoring context
// cancellation, so a prompt blocked on stdin unwinds cleanly on ^C.
type LineReader struct {
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewLineReader wraps r for line-oriented reading.
func NewLineReader(r io.Reader) *LineReader {
	if r == nil {
		panic("reader cannot be nil")
	}
	return &LineReader{
		reader: bufio.NewReader(r),
	}
}

// ReadLine reads one line, trimmed of surrounding whitespace. A final
// line without a trailing newline still counts. When the context ends
// before a line arrives it returns ErrInputCanceled; the underlying read
// keeps running until it completes, but the caller gets control back
// immediately.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCanceled
	}

	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()

		value, err := r.reader.ReadString('\n')
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCanceled
	case res := <-resultCh:
		if res.err != nil && res.value == "" {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}
