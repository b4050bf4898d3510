package feedback

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed reports use of a closed output.
var ErrClosed = errors.New("audio output closed")

// BufferOutput keeps the last played clip in memory so it can be served to
// the browser. It starts suspended.
type BufferOutput struct {
	mu        sync.Mutex
	suspended bool
	closed    bool
	last      *Clip
	plays     int
}

// NewBufferOutput creates a suspended in-memory output.
func NewBufferOutput() *BufferOutput {
	return &BufferOutput{suspended: true}
}

// Suspended reports whether the output still needs a Resume.
func (o *BufferOutput) Suspended() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.suspended
}

// Resume wakes the output.
func (o *BufferOutput) Resume(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	o.suspended = false
	return nil
}

// Play records clip as the last played clip.
func (o *BufferOutput) Play(ctx context.Context, clip Clip) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrClosed
	}
	if o.suspended {
		return errors.New("audio output suspended")
	}
	o.last = &clip
	o.plays++
	return nil
}

// Close releases the buffered clip.
func (o *BufferOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.last = nil
	return nil
}

// playCount returns how many clips were played, the unlock clip included.
func (o *BufferOutput) playCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.plays
}
