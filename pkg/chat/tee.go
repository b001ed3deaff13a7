package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"Charla/pkg/llm"
)

// Tee reads a provider stream exactly once and lets any number of cursors
// replay it independently. Chunks are appended to a shared buffer by a single
// pump goroutine; every cursor sees the same chunks in the same order.
type Tee struct {
	mu      sync.Mutex
	chunks  []string
	done    bool
	err     error
	changed chan struct{}
}

// NewTee starts pumping src. The pump owns src and closes it when the stream
// ends; it never stops because a reader went away.
func NewTee(src llm.Stream) *Tee {
	t := &Tee{changed: make(chan struct{})}
	go t.pump(src)
	return t
}

func (t *Tee) pump(src llm.Stream) {
	defer src.Close()
	for {
		chunk, err := src.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			t.finish(err)
			return
		}
		t.mu.Lock()
		t.chunks = append(t.chunks, chunk)
		t.notifyLocked()
		t.mu.Unlock()
	}
}

func (t *Tee) finish(err error) {
	t.mu.Lock()
	t.done = true
	t.err = err
	t.notifyLocked()
	t.mu.Unlock()
}

// notifyLocked wakes every waiting cursor. Caller must hold t.mu.
func (t *Tee) notifyLocked() {
	close(t.changed)
	t.changed = make(chan struct{})
}

// Cursor returns a new reader positioned at the first chunk.
func (t *Tee) Cursor() *Cursor {
	return &Cursor{tee: t}
}

// Cursor is an independent read position over a Tee.
type Cursor struct {
	tee *Tee
	pos int
}

// Next blocks until the next chunk is available. It returns io.EOF after the
// last chunk, the provider error if the stream failed, or ctx.Err() when ctx
// is cancelled first. Cancelling one cursor has no effect on the others.
func (c *Cursor) Next(ctx context.Context) (string, error) {
	for {
		c.tee.mu.Lock()
		if c.pos < len(c.tee.chunks) {
			chunk := c.tee.chunks[c.pos]
			c.pos++
			c.tee.mu.Unlock()
			return chunk, nil
		}
		if c.tee.done {
			err := c.tee.err
			c.tee.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return "", err
		}
		wait := c.tee.changed
		c.tee.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// ReadAll drains the cursor and returns the concatenated text.
func (c *Cursor) ReadAll(ctx context.Context) (string, error) {
	var b strings.Builder
	for {
		chunk, err := c.Next(ctx)
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), err
		}
		b.WriteString(chunk)
	}
}

// Source is what the live branch reads from: a tee cursor or a bare stream.
type Source interface {
	Next(ctx context.Context) (string, error)
}

// StreamSource adapts a provider stream read by a single consumer.
type StreamSource struct {
	Stream llm.Stream
	once   sync.Once
}

func (s *StreamSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		s.Close()
		return "", err
	}
	chunk, err := s.Stream.Recv()
	if err != nil {
		s.Close()
	}
	return chunk, err
}

func (s *StreamSource) Close() {
	s.once.Do(func() { _ = s.Stream.Close() })
}
