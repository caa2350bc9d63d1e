package domain

import (
	"context"
	"sync"
)

// ChunkStream is a pull-based iterator over streaming response chunks,
// shaped after the SSE stream iterators of the provider SDKs. A stream is
// finite, consumed exactly once and never restartable.
//
//	for stream.Next() {
//	    chunk := stream.Current()
//	    ...
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Close cancels production and releases any buffering; it is safe to call
// more than once and after the stream has ended.
type ChunkStream interface {
	Next() bool
	Current() CanonicalChunk
	Err() error
	Close() error
}

// StreamProducer is the write side of a chunk stream pipe. Producers call
// Send for each chunk and finish with exactly one Close or Fail.
type StreamProducer struct {
	p *pipe
}

type streamItem struct {
	chunk CanonicalChunk
	err   error
}

type pipe struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     chan streamItem

	closeOnce sync.Once

	cur  CanonicalChunk
	err  error
	done bool
}

// NewStreamPipe returns the consumer and producer halves of a chunk stream.
// The producer side unblocks as soon as the consumer closes the stream or
// ctx is canceled.
func NewStreamPipe(ctx context.Context) (ChunkStream, *StreamProducer) {
	ctx, cancel := context.WithCancel(ctx)
	p := &pipe{
		ctx:    ctx,
		cancel: cancel,
		ch:     make(chan streamItem),
	}
	return p, &StreamProducer{p: p}
}

// Send delivers one chunk to the consumer. It returns the context error if
// the consumer has gone away.
func (w *StreamProducer) Send(chunk CanonicalChunk) error {
	select {
	case w.p.ch <- streamItem{chunk: chunk}:
		return nil
	case <-w.p.ctx.Done():
		return w.p.ctx.Err()
	}
}

// Fail terminates the stream with err. The consumer observes it from Err
// after Next returns false.
func (w *StreamProducer) Fail(err error) {
	select {
	case w.p.ch <- streamItem{err: err}:
	case <-w.p.ctx.Done():
	}
	w.close()
}

// Close terminates the stream normally.
func (w *StreamProducer) Close() {
	w.close()
}

// Done is closed when the consumer cancels the stream.
func (w *StreamProducer) Done() <-chan struct{} {
	return w.p.ctx.Done()
}

func (w *StreamProducer) close() {
	w.p.closeOnce.Do(func() {
		close(w.p.ch)
	})
}

func (p *pipe) Next() bool {
	if p.done {
		return false
	}
	select {
	case it, ok := <-p.ch:
		if !ok {
			p.done = true
			return false
		}
		if it.err != nil {
			p.err = it.err
			p.done = true
			return false
		}
		p.cur = it.chunk
		return true
	case <-p.ctx.Done():
		p.err = p.ctx.Err()
		p.done = true
		return false
	}
}

func (p *pipe) Current() CanonicalChunk { return p.cur }

func (p *pipe) Err() error { return p.err }

func (p *pipe) Close() error {
	p.cancel()
	p.done = true
	return nil
}
