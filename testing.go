package jrpc

import (
	"context"
	"sync"
)

// WithTestConnection returns a context carrying a minimal [Conn] with the
// given ID. The connection has no functioning transport and is intended
// exclusively for use in tests.
func WithTestConnection(ctx context.Context, id uint64) context.Context {
	return withConnection(ctx, &Conn{id: id})
}

// FrameRecorder is a Sink that keeps every frame sent to it. It is intended
// for tests that drive an Engine without a transport.
type FrameRecorder struct {
	mu     sync.Mutex
	frames [][]byte
	notify chan struct{}
	// Err, when set, is returned by Send and the frame is not kept.
	Err error
}

// NewFrameRecorder returns an empty recorder.
func NewFrameRecorder() *FrameRecorder {
	return &FrameRecorder{notify: make(chan struct{}, 1)}
}

// Send records a copy of data.
func (r *FrameRecorder) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.frames = append(r.frames, append([]byte(nil), data...))
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Frames returns the frames recorded so far.
func (r *FrameRecorder) Frames() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.frames...)
}

// Last returns the most recent frame, or nil.
func (r *FrameRecorder) Last() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// Wait blocks until at least n frames have been recorded or ctx ends.
func (r *FrameRecorder) Wait(ctx context.Context, n int) ([][]byte, error) {
	for {
		if frames := r.Frames(); len(frames) >= n {
			return frames, nil
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return r.Frames(), ctx.Err()
		}
	}
}

// Reset discards the recorded frames.
func (r *FrameRecorder) Reset() {
	r.mu.Lock()
	r.frames = nil
	r.mu.Unlock()
}

// Pipe returns two engines whose sinks feed each other. Every frame is
// delivered on its own goroutine, like a transport read loop would.
func Pipe(opts ...Options) (a, b *Engine) {
	var ea, eb *Engine
	ea = New(SinkFunc(func(data []byte) error {
		frame := append([]byte(nil), data...)
		go eb.HandleIncoming(context.Background(), frame)
		return nil
	}), opts...)
	eb = New(SinkFunc(func(data []byte) error {
		frame := append([]byte(nil), data...)
		go ea.HandleIncoming(context.Background(), frame)
		return nil
	}), opts...)
	return ea, eb
}
