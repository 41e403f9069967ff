package audio

import (
	"bytes"
	"context"
	"sync"
)

// defaultMaxCaptureBytes bounds a single recording. Ten minutes of 128 kbit/s
// opus is roughly 10 MB.
const defaultMaxCaptureBytes = 10 << 20

// CaptureOption configures a [BufferCapture].
type CaptureOption func(*BufferCapture)

// WithMaxBytes caps the number of bytes a capture accepts. Once the cap is
// reached the capture ends itself.
func WithMaxBytes(n int) CaptureOption {
	return func(c *BufferCapture) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithStopFunc sets a hook that asks the remote recorder to stop. It is
// called once, from Finish or Release. When set, Finish waits for [BufferCapture.End]
// so that the trailing chunks flushed by the recorder are included.
func WithStopFunc(fn func()) CaptureOption {
	return func(c *BufferCapture) {
		c.stop = fn
	}
}

// BufferCapture is a [Capture] that accumulates pushed chunks in memory. The
// transport writes recorder output into it with Write and signals the end of
// the stream with End.
type BufferCapture struct {
	limit int
	stop  func()

	mu       sync.Mutex
	buf      bytes.Buffer
	mime     string
	released bool
	finished bool
	failure  error

	ended    chan struct{}
	endOnce  sync.Once
	stopOnce sync.Once
}

var _ Capture = (*BufferCapture)(nil)

// NewBufferCapture returns an empty capture for audio of the given MIME type.
func NewBufferCapture(mimeType string, opts ...CaptureOption) *BufferCapture {
	c := &BufferCapture{
		limit: defaultMaxCaptureBytes,
		mime:  mimeType,
		ended: make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Write appends a chunk. Chunks that arrive after Release are rejected with
// [ErrReleased]; chunks that would exceed the size cap end the capture and
// are dropped.
func (c *BufferCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	if c.released || c.finished {
		c.mu.Unlock()
		return 0, ErrReleased
	}
	if c.buf.Len()+len(p) > c.limit {
		c.mu.Unlock()
		c.End()
		return 0, nil
	}
	n, err := c.buf.Write(p)
	c.mu.Unlock()
	return n, err
}

// SetMIMEType records the container type once the recorder reports it.
func (c *BufferCapture) SetMIMEType(mimeType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if mimeType != "" {
		c.mime = mimeType
	}
}

// Len returns the number of buffered bytes.
func (c *BufferCapture) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Len()
}

// End marks the source stream as complete. Safe to call more than once.
func (c *BufferCapture) End() {
	c.endOnce.Do(func() { close(c.ended) })
}

// Fail ends the capture with err, e.g. when the browser denied microphone
// access after the capture was opened. Finish then returns err.
func (c *BufferCapture) Fail(err error) {
	c.mu.Lock()
	if c.failure == nil {
		c.failure = err
	}
	c.mu.Unlock()
	c.End()
}

// Ended implements [Capture].
func (c *BufferCapture) Ended() <-chan struct{} { return c.ended }

// Finish implements [Capture]. With a stop hook configured it asks the
// recorder to stop and waits for End or ctx, whichever comes first; whatever
// has been buffered by then is returned.
func (c *BufferCapture) Finish(ctx context.Context) (Blob, error) {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return Blob{}, ErrReleased
	}
	c.mu.Unlock()

	if c.stop != nil {
		c.stopOnce.Do(c.stop)
		select {
		case <-c.ended:
		case <-ctx.Done():
		}
	} else {
		c.End()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.released {
		return Blob{}, ErrReleased
	}
	c.finished = true
	if c.failure != nil {
		return Blob{}, c.failure
	}
	data := make([]byte, c.buf.Len())
	copy(data, c.buf.Bytes())
	return Blob{Data: data, MIMEType: c.mime}, nil
}

// Release implements [Resource]. The buffered audio is discarded.
func (c *BufferCapture) Release() {
	c.mu.Lock()
	if c.released {
		c.mu.Unlock()
		return
	}
	c.released = true
	c.buf.Reset()
	c.mu.Unlock()

	if c.stop != nil {
		c.stopOnce.Do(c.stop)
	}
	c.End()
}
