package stream_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vtuber-plan/purifly/internal/domain"
	"github.com/vtuber-plan/purifly/internal/stream"
)

func textChunk(index int, text string, final bool) domain.CanonicalChunk {
	return domain.CanonicalChunk{
		Index:   index,
		Payload: domain.Part{Modality: domain.ModalityText, Text: text},
		Final:   final,
	}
}

// sourceStream feeds scripted chunks (and an optional terminal error) into
// the multiplexer.
func sourceStream(ctx context.Context, failWith error, chunks ...domain.CanonicalChunk) domain.ChunkStream {
	out, producer := domain.NewStreamPipe(ctx)
	go func() {
		for _, c := range chunks {
			if err := producer.Send(c); err != nil {
				return
			}
		}
		if failWith != nil {
			producer.Fail(failWith)
			return
		}
		producer.Close()
	}()
	return out
}

func collect(t *testing.T, s domain.ChunkStream) []domain.CanonicalChunk {
	t.Helper()
	var out []domain.CanonicalChunk
	for s.Next() {
		out = append(out, s.Current())
	}
	return out
}

func TestReorder_InOrderPassthrough(t *testing.T) {
	ctx := context.Background()
	src := sourceStream(ctx, nil,
		textChunk(0, "a", false),
		textChunk(1, "b", false),
		textChunk(2, "c", true),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.NoError(t, out.Err())
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		require.Equal(t, i, c.Index)
		require.Equal(t, i == 2, c.Final)
	}
}

func TestReorder_OutOfOrderDelivery(t *testing.T) {
	ctx := context.Background()
	src := sourceStream(ctx, nil,
		textChunk(1, "b", false),
		textChunk(0, "a", false),
		textChunk(2, "c", true),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.NoError(t, out.Err())
	require.Len(t, chunks, 3)
	require.Equal(t, "a", chunks[0].Payload.Text)
	require.Equal(t, "b", chunks[1].Payload.Text)
	require.Equal(t, "c", chunks[2].Payload.Text)
	require.True(t, chunks[2].Final)
}

func TestReorder_WindowOverflow(t *testing.T) {
	ctx := context.Background()
	// Chunk 0 never arrives, so nothing can be emitted and the pending
	// buffer grows past the window.
	src := sourceStream(ctx, nil,
		textChunk(1, "b", false),
		textChunk(2, "c", false),
		textChunk(3, "d", false),
	)

	out := stream.Reorder(ctx, src, 2)
	chunks := collect(t, out)

	require.Empty(t, chunks)
	require.ErrorIs(t, out.Err(), domain.ErrStreamReorderOverflow)
}

func TestReorder_InterruptedAfterPartialDelivery(t *testing.T) {
	ctx := context.Background()
	backendErr := &domain.TransportError{Cause: errors.New("connection reset")}
	src := sourceStream(ctx, backendErr,
		textChunk(0, "a", false),
		textChunk(1, "b", false),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.Len(t, chunks, 2)
	require.Equal(t, "a", chunks[0].Payload.Text)
	require.Equal(t, "b", chunks[1].Payload.Text)
	require.ErrorIs(t, out.Err(), domain.ErrStreamInterrupted)
}

func TestReorder_CleanEndWithoutFinalIsInterrupted(t *testing.T) {
	ctx := context.Background()
	src := sourceStream(ctx, nil,
		textChunk(0, "a", false),
		textChunk(1, "b", false),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.Len(t, chunks, 2)
	require.ErrorIs(t, out.Err(), domain.ErrStreamInterrupted)
}

func TestReorder_DropsDuplicateIndices(t *testing.T) {
	ctx := context.Background()
	src := sourceStream(ctx, nil,
		textChunk(0, "a", false),
		textChunk(0, "a-again", false),
		textChunk(1, "b", true),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.NoError(t, out.Err())
	require.Len(t, chunks, 2)
	require.Equal(t, "a", chunks[0].Payload.Text)
	require.Equal(t, "b", chunks[1].Payload.Text)
}

func TestReorder_IgnoresChunksAfterFinal(t *testing.T) {
	ctx := context.Background()
	src := sourceStream(ctx, nil,
		textChunk(0, "a", false),
		textChunk(1, "b", true),
		textChunk(2, "late", false),
	)

	out := stream.Reorder(ctx, src, 4)
	chunks := collect(t, out)

	require.NoError(t, out.Err())
	require.Len(t, chunks, 2)
	require.True(t, chunks[1].Final)
}

func TestReorder_CloseStopsProduction(t *testing.T) {
	ctx := context.Background()
	srcOut, producer := domain.NewStreamPipe(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		i := 0
		for {
			if err := producer.Send(textChunk(i, "x", false)); err != nil {
				return
			}
			i++
		}
	}()

	out := stream.Reorder(ctx, srcOut, 100)

	require.True(t, out.Next())
	require.NoError(t, out.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("producer was not released after Close")
	}
}
