package transfer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fgrzl/gridkit/pkg/api"
	"github.com/google/uuid"
)

// Share publishes a local file for chunked download. The file stays bound
// at its per-transfer address until Close.
type Share struct {
	provider *Provider
	url      *URL
	file     *os.File
	meta     *api.Metadata

	closeOnce sync.Once
	closeErr  error
}

// Share publishes the file at path and returns the handle peers download
// through. Each share gets a fresh resource token, so sharing the same file
// twice yields two independent addresses.
func (p *Provider) Share(path string) (*Share, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	hash, err := hashFile(file)
	if err != nil {
		file.Close()
		return nil, err
	}

	s := &Share{
		provider: p,
		url:      &URL{Node: p.bus.NodeID(), Token: uuid.NewString()},
		file:     file,
		meta: &api.Metadata{
			Size: info.Size(),
			Name: filepath.Base(path),
			Hash: hash,
		},
	}

	if err := p.bus.Bind(api.TransferAddress(s.url.Token), s.handle); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *Share) URL() string {
	return s.url.String()
}

// Close unbinds the share. In-flight chunk calls run to completion.
func (s *Share) Close() error {
	s.closeOnce.Do(func() {
		s.provider.bus.Unbind(api.TransferAddress(s.url.Token))
		s.closeErr = s.file.Close()
	})
	return s.closeErr
}

func (s *Share) handle(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
	switch m := msg.(type) {
	case *api.GetMetadata:
		return s.meta, nil
	case *api.GetChunk:
		buf := make([]byte, m.Size)
		n, err := s.file.ReadAt(buf, int64(m.Offset))
		if err != nil && err != io.EOF {
			return nil, err
		}
		return &api.Chunk{Offset: m.Offset, Content: buf[:n]}, nil
	default:
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: fmt.Sprintf("unexpected message: %s", msg.GetDiscriminator())}
	}
}

// UploadShare accepts a chunked upload into a local file. The receiver
// trusts chunk offsets; senders are sequential so the file assembles in
// order.
type UploadShare struct {
	provider *Provider
	url      *URL
	file     *os.File

	mu       sync.Mutex
	received int64
	finished chan error

	closeOnce sync.Once
	closeErr  error
}

// ShareUpload creates path and returns a handle peers upload into. Wait
// blocks until the sender signals completion.
func (p *Provider) ShareUpload(path string) (*UploadShare, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	u := &UploadShare{
		provider: p,
		url:      &URL{Node: p.bus.NodeID(), Token: uuid.NewString()},
		file:     file,
		finished: make(chan error, 1),
	}

	if err := p.bus.Bind(api.TransferAddress(u.url.Token), u.handle); err != nil {
		file.Close()
		return nil, err
	}
	return u, nil
}

func (u *UploadShare) URL() string {
	return u.url.String()
}

// Wait blocks until the sender finishes the upload or ctx expires.
func (u *UploadShare) Wait(ctx context.Context) error {
	select {
	case err := <-u.finished:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Received reports how many bytes have landed so far.
func (u *UploadShare) Received() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.received
}

func (u *UploadShare) Close() error {
	u.closeOnce.Do(func() {
		u.provider.bus.Unbind(api.TransferAddress(u.url.Token))
		u.closeErr = u.file.Close()
	})
	return u.closeErr
}

func (u *UploadShare) handle(_ context.Context, _ uuid.UUID, msg api.Message) (any, error) {
	switch m := msg.(type) {
	case *api.UploadChunk:
		if _, err := u.file.WriteAt(m.Chunk.Content, int64(m.Chunk.Offset)); err != nil {
			return nil, err
		}
		u.mu.Lock()
		u.received += int64(len(m.Chunk.Content))
		u.mu.Unlock()
		return &api.Ack{}, nil
	case *api.UploadFinished:
		if err := u.file.Sync(); err != nil {
			return nil, err
		}
		var result error
		if m.Hash != "" {
			computed, err := hashFile(u.file)
			if err != nil {
				return nil, err
			}
			if computed != m.Hash {
				result = &api.RemoteError{Message: fmt.Sprintf("upload hash mismatch: got %s, want %s", computed, m.Hash)}
			}
		}
		select {
		case u.finished <- result:
		default:
		}
		if result != nil {
			return nil, result
		}
		return &api.Ack{}, nil
	default:
		return nil, &api.RemoteError{Code: api.CodeBadRequest, Message: fmt.Sprintf("unexpected message: %s", msg.GetDiscriminator())}
	}
}

func hashFile(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
