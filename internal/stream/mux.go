// Package stream relays backend chunk sequences to the caller in canonical
// order. Backends may deliver chunks out of order; the multiplexer buffers
// and reorders inside a bounded window and guarantees that the emitted
// sequence either ends with a final-flagged chunk or carries a terminal
// error.
package stream

import (
	"context"
	"fmt"

	"github.com/vtuber-plan/purifly/internal/domain"
)

const defaultReorderWindow = 32

// Reorder consumes the adapter's chunk stream and re-emits it with strictly
// increasing indices starting at zero. Out-of-order chunks are buffered up
// to window pending entries; exceeding the window fails the stream with
// ErrStreamReorderOverflow. A source that ends (or fails) before its final
// chunk yields ErrStreamInterrupted. Canceling ctx or closing the returned
// stream stops the pump and drops any buffered chunks.
func Reorder(ctx context.Context, source domain.ChunkStream, window int) domain.ChunkStream {
	if window <= 0 {
		window = defaultReorderWindow
	}

	out, producer := domain.NewStreamPipe(ctx)
	go pump(source, producer, window)
	return out
}

func pump(source domain.ChunkStream, w *domain.StreamProducer, window int) {
	defer source.Close()

	pending := make(map[int]domain.CanonicalChunk)
	next := 0

	for source.Next() {
		chunk := source.Current()
		if chunk.Index < next {
			// Duplicate of an already-emitted index; drop it.
			continue
		}
		pending[chunk.Index] = chunk
		if len(pending) > window {
			w.Fail(domain.ErrStreamReorderOverflow)
			return
		}

		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if err := w.Send(ready); err != nil {
				// Consumer went away.
				return
			}
			next++
			if ready.Final {
				w.Close()
				return
			}
		}
	}

	if err := source.Err(); err != nil {
		w.Fail(fmt.Errorf("%w: %w", domain.ErrStreamInterrupted, err))
		return
	}
	// Source ended cleanly but never delivered a final chunk.
	w.Fail(domain.ErrStreamInterrupted)
}
