package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// InterruptHandler turns SIGINT/SIGTERM into context cancellation with a
// friendly message instead of a bare ^C.
type InterruptHandler struct {
	writer      io.Writer
	stop        func()
	interrupted bool
	showHint    bool
	mu          sync.Mutex
}

// NewInterruptHandler creates a handler writing to the given writer, or
// stdout when nil.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{
		writer: writer,
	}
}

// HandleInterrupts starts signal handling and returns a context that will
// be canceled on interrupt or when the parent context ends. Callers must
// call Stop once the guarded work completes, so that a normal shutdown is
// not reported as an interrupt.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, showHint bool) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	h.showHint = showHint

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	h.stop = func() {
		signal.Stop(sigChan)
		close(done)
	}

	go func() {
		select {
		case <-done:
			return
		case <-sigChan:
		case <-ctx.Done():
		}
		h.mu.Lock()
		if !h.interrupted {
			h.interrupted = true
			h.showInterruptMessage()
		}
		h.mu.Unlock()
		cancel()
	}()

	return ctx
}

// Stop ends signal handling without treating it as an interrupt.
func (h *InterruptHandler) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

// showInterruptMessage displays a friendly interrupt message.
func (h *InterruptHandler) showInterruptMessage() {
	msg := "\n\n" + FormatWarning("Detection interrupted!")

	if h.showHint {
		msg += "\n" + FormatInfo("Nothing was written. Re-run lockbox detect for a fresh pass.")
	}

	msg += "\n" + FormatInfo("Locking up! 🔑") + "\n"

	if _, err := fmt.Fprint(h.writer, msg); err != nil {
		// Best effort - we're shutting down anyway
		fmt.Fprintf(os.Stderr, "Failed to write interrupt message: %v\n", err)
	}
}

// WasInterrupted reports whether the run was cut short before Stop.
func (h *InterruptHandler) WasInterrupted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interrupted
}
