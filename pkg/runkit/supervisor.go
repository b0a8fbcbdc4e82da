package runkit

import (
	"context"
	"log/slog"
	"sync"
)

// Supervisor tracks started children and tears them down in reverse start
// order, so dependents stop before the services they rely on.
type Supervisor struct {
	mu       sync.Mutex
	children []*Child
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Start launches a child under supervision.
func (s *Supervisor) Start(options *ChildOptions) (*Child, error) {
	child, err := Start(options)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.children = append(s.children, child)
	s.mu.Unlock()
	return child, nil
}

// StopAll stops every child, newest first.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	children := s.children
	s.children = nil
	s.mu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Stop(ctx); err != nil {
			slog.Warn("failed to stop child", "name", children[i].Name(), "error", err)
		}
	}
}

// Run blocks until the context is cancelled, then stops all children.
func (s *Supervisor) Run(ctx context.Context) {
	<-ctx.Done()
	s.StopAll(context.Background())
}
