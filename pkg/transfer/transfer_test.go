package transfer

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/fgrzl/gridkit/pkg/bus"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, opts *Options) (*bus.Bus, *Provider) {
	t.Helper()
	b := bus.New(uuid.New(), nil)
	return b, NewProvider(b, opts)
}

func writeTempFile(t *testing.T, size int) (string, []byte) {
	t.Helper()
	content := make([]byte, size)
	_, err := rand.Read(content)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path, content
}

func TestParseURL(t *testing.T) {
	node := uuid.New()
	u, err := ParseURL("grid://" + node.String() + "/abc123")
	require.NoError(t, err)
	require.Equal(t, node, u.Node)
	require.Equal(t, "abc123", u.Token)
	require.Equal(t, "grid://"+node.String()+"/abc123", u.String())

	_, err = ParseURL("http://" + node.String() + "/abc123")
	require.Error(t, err)

	_, err = ParseURL("grid://not-a-node/abc123")
	require.Error(t, err)

	_, err = ParseURL("grid://" + node.String() + "/")
	require.Error(t, err)
}

func TestDownloadReconstructsBytes(t *testing.T) {
	_, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 3})

	path, content := writeTempFile(t, 10000)
	share, err := provider.Share(path)
	require.NoError(t, err)
	defer share.Close()

	var out bytes.Buffer
	require.NoError(t, provider.Download(context.Background(), share.URL(), &out))
	require.Equal(t, content, out.Bytes())
}

func TestOpenEmitsExpectedChunks(t *testing.T) {
	_, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 3})

	path, _ := writeTempFile(t, 10000)
	share, err := provider.Share(path)
	require.NoError(t, err)
	defer share.Close()

	stream, err := provider.Open(context.Background(), share.URL())
	require.NoError(t, err)
	defer stream.Abort()

	var offsets []uint64
	var sizes []int
	for stream.MoveNext() {
		chunk, err := stream.Current()
		require.NoError(t, err)
		offsets = append(offsets, chunk.Offset)
		sizes = append(sizes, len(chunk.Content))
	}

	require.Equal(t, []uint64{0, 4096, 8192}, offsets)
	require.Equal(t, []int{4096, 4096, 1808}, sizes)
}

func TestEmissionOrderDespiteCompletionOrder(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: 3})
	node := b.NodeID()

	// Chunk 0 is the slowest, chunk 2 the fastest; emission must still be
	// 0, 1, 2.
	delays := map[uint64]time.Duration{0: 60 * time.Millisecond, 10: 30 * time.Millisecond, 20: 0}
	require.NoError(t, b.Bind(api.TransferAddress("ordered"), func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		switch m := msg.(type) {
		case *api.GetMetadata:
			return &api.Metadata{Size: 30}, nil
		case *api.GetChunk:
			time.Sleep(delays[m.Offset])
			return &api.Chunk{Offset: m.Offset, Content: bytes.Repeat([]byte{byte(m.Offset)}, int(m.Size))}, nil
		}
		return nil, nil
	}))

	u := &URL{Node: node, Token: "ordered"}
	stream, err := provider.Open(context.Background(), u.String())
	require.NoError(t, err)
	defer stream.Abort()

	var offsets []uint64
	for stream.MoveNext() {
		chunk, err := stream.Current()
		require.NoError(t, err)
		offsets = append(offsets, chunk.Offset)
	}
	require.Equal(t, []uint64{0, 10, 20}, offsets)
}

func TestPrefetchWindowBound(t *testing.T) {
	const window = 3
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: window})

	var inflight, peak atomic.Int32
	require.NoError(t, b.Bind(api.TransferAddress("bounded"), func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		switch m := msg.(type) {
		case *api.GetMetadata:
			return &api.Metadata{Size: 200}, nil
		case *api.GetChunk:
			n := inflight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return &api.Chunk{Offset: m.Offset, Content: make([]byte, m.Size)}, nil
		}
		return nil, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "bounded"}
	var out bytes.Buffer
	require.NoError(t, provider.Download(context.Background(), u.String(), &out))
	require.Equal(t, 200, out.Len())
	require.LessOrEqual(t, peak.Load(), int32(window))
}

func TestNegativeMetadataSizeRejected(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: 2})

	require.NoError(t, b.Bind(api.TransferAddress("hostile"), func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		if _, ok := msg.(*api.GetMetadata); ok {
			return &api.Metadata{Size: -1}, nil
		}
		t.Error("no chunk may be requested for an invalid size")
		return nil, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "hostile"}
	_, err := provider.Open(context.Background(), u.String())
	require.Error(t, err)
	require.True(t, api.IsTransport(err))
	require.ErrorContains(t, err, "invalid metadata size")
}

func TestChunkFetchFailurePropagatesFirstError(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: 2})

	require.NoError(t, b.Bind(api.TransferAddress("broken"), func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		switch m := msg.(type) {
		case *api.GetMetadata:
			return &api.Metadata{Size: 50}, nil
		case *api.GetChunk:
			if m.Offset >= 20 {
				return nil, &api.RemoteError{Message: "disk gone"}
			}
			return &api.Chunk{Offset: m.Offset, Content: make([]byte, m.Size)}, nil
		}
		return nil, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "broken"}
	var out bytes.Buffer
	err := provider.Download(context.Background(), u.String(), &out)
	require.ErrorContains(t, err, "disk gone")
	require.Equal(t, 20, out.Len())
}

func TestAbortJoinsWorkerAndStopsDelivery(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: 2})

	release := make(chan struct{})
	require.NoError(t, b.Bind(api.TransferAddress("stalled"), func(ctx context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		switch m := msg.(type) {
		case *api.GetMetadata:
			return &api.Metadata{Size: 100}, nil
		case *api.GetChunk:
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &api.Chunk{Offset: m.Offset, Content: make([]byte, m.Size)}, nil
		}
		return nil, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "stalled"}
	stream, err := provider.Open(context.Background(), u.String())
	require.NoError(t, err)

	aborted := make(chan struct{})
	go func() {
		stream.Abort()
		close(aborted)
	}()

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not join the worker")
	}

	close(release)
	require.False(t, stream.MoveNext(), "no chunk may be delivered after abort")
}

func TestUploadSequentialOffsets(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 3})

	var mu sync.Mutex
	var offsets []uint64
	var total int
	finished := false
	require.NoError(t, b.Bind(api.TransferAddress("upload"), func(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		switch m := msg.(type) {
		case *api.UploadChunk:
			offsets = append(offsets, m.Chunk.Offset)
			total += len(m.Chunk.Content)
		case *api.UploadFinished:
			finished = true
		}
		return &api.Ack{}, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "upload"}
	content := make([]byte, 10000)
	require.NoError(t, provider.Upload(context.Background(), u.String(), bytes.NewReader(content)))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []uint64{0, 4096, 8192}, offsets)
	require.Equal(t, 10000, total)
	require.True(t, finished)
}

func TestUploadRoundtripThroughShare(t *testing.T) {
	_, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 3})

	dest := filepath.Join(t.TempDir(), "received.bin")
	upload, err := provider.ShareUpload(dest)
	require.NoError(t, err)
	defer upload.Close()

	content := make([]byte, 10000)
	_, err = rand.Read(content)
	require.NoError(t, err)

	require.NoError(t, provider.Upload(context.Background(), upload.URL(), bytes.NewReader(content)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, upload.Wait(ctx))
	require.Equal(t, int64(10000), upload.Received())
	require.NoError(t, upload.Close())

	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, content, written)
}

func TestSinkAbortResolvesAborted(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 10, Window: 2})

	release := make(chan struct{})
	require.NoError(t, b.Bind(api.TransferAddress("slow-upload"), func(ctx context.Context, _ uuid.UUID, _ api.Message) (any, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &api.Ack{}, nil
	}))

	u := &URL{Node: b.NodeID(), Token: "slow-upload"}
	sink, err := provider.NewSink(context.Background(), u.String())
	require.NoError(t, err)

	_, err = sink.Write(make([]byte, 10))
	require.NoError(t, err)

	aborted := make(chan struct{})
	go func() {
		sink.Abort()
		close(aborted)
	}()

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("abort did not join the worker")
	}
	close(release)
	require.ErrorIs(t, sink.Close(), api.ErrAborted)
}

func TestUploadHashMismatchRejected(t *testing.T) {
	b, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 2})

	dest := filepath.Join(t.TempDir(), "received.bin")
	upload, err := provider.ShareUpload(dest)
	require.NoError(t, err)
	defer upload.Close()

	u, err := ParseURL(upload.URL())
	require.NoError(t, err)
	endpoint := b.Endpoint(u.Node, api.TransferAddress(u.Token))

	_, err = bus.Call[*api.Ack](context.Background(), endpoint, &api.UploadChunk{Chunk: api.Chunk{Offset: 0, Content: []byte("payload")}})
	require.NoError(t, err)

	_, err = bus.Call[*api.Ack](context.Background(), endpoint, &api.UploadFinished{Hash: "not-the-digest"})
	require.ErrorContains(t, err, "hash mismatch")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.ErrorContains(t, upload.Wait(ctx), "hash mismatch")
}

func TestEmptyResourceTransfersZeroChunks(t *testing.T) {
	_, provider := newTestProvider(t, &Options{ChunkSize: 4096, Window: 3})

	path, _ := writeTempFile(t, 0)
	share, err := provider.Share(path)
	require.NoError(t, err)
	defer share.Close()

	stream, err := provider.Open(context.Background(), share.URL())
	require.NoError(t, err)
	defer stream.Abort()

	require.False(t, stream.MoveNext())
}
