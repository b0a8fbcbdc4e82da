package transfer

import (
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
)

type streamItem struct {
	chunk *api.Chunk
	err   error
}

// ChunkStream is an ordered, finite stream of chunks produced by a
// background worker. The consumer iterates with MoveNext/Current; the
// worker owns all fetch state and exits when the stream completes, fails,
// or is aborted.
type ChunkStream struct {
	items     chan streamItem
	abort     chan struct{}
	abortOnce sync.Once
	done      chan struct{}

	current *api.Chunk
	err     error
}

func newChunkStream() *ChunkStream {
	return &ChunkStream{
		items: make(chan streamItem),
		abort: make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// MoveNext advances to the next chunk. It returns false once the stream is
// exhausted; a failed stream yields one final item whose Current returns
// the error.
func (s *ChunkStream) MoveNext() bool {
	item, ok := <-s.items
	if !ok {
		return false
	}
	s.current, s.err = item.chunk, item.err
	return true
}

func (s *ChunkStream) Current() (*api.Chunk, error) {
	return s.current, s.err
}

func (s *ChunkStream) Dispose() {
	s.Abort()
}

// Abort cancels the stream and blocks until the worker has exited, so no
// chunk is delivered after Abort returns. Idempotent and safe to race with
// natural completion.
func (s *ChunkStream) Abort() {
	s.abortOnce.Do(func() {
		close(s.abort)
	})
	<-s.done
}

// emit hands one item downstream, giving up if the stream is aborted.
func (s *ChunkStream) emit(item streamItem) bool {
	select {
	case s.items <- item:
		return true
	case <-s.abort:
		return false
	}
}
