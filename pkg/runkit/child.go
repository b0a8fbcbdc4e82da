package runkit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// State describes where a child process is in its lifecycle.
type State string

const (
	StateRunning     State = "Running"
	StateTerminating State = "Terminating"
	StateExited      State = "Exited"
	StateKilled      State = "Killed"
)

// DefaultGracePeriod bounds how long Stop waits between SIGTERM and SIGKILL.
const DefaultGracePeriod = 2 * time.Second

// ChildOptions configures a supervised process.
type ChildOptions struct {
	Name        string
	Command     string
	Args        []string
	Dir         string
	Env         []string
	GracePeriod time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
}

// Child is a supervised OS process. Stop asks politely first, then kills
// when the grace period expires.
type Child struct {
	name  string
	grace time.Duration
	cmd   *exec.Cmd

	killed atomic.Bool
	done   chan struct{}

	mu      sync.Mutex
	state   State
	waitErr error
}

// Start launches the process and begins reaping it.
func Start(options *ChildOptions) (*Child, error) {
	if options == nil || options.Command == "" {
		return nil, fmt.Errorf("a command is required")
	}

	grace := options.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	name := options.Name
	if name == "" {
		name = options.Command
	}

	cmd := exec.Command(options.Command, options.Args...)
	cmd.Dir = options.Dir
	cmd.Env = options.Env
	cmd.Stdout = options.Stdout
	cmd.Stderr = options.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	c := &Child{
		name:  name,
		grace: grace,
		cmd:   cmd,
		done:  make(chan struct{}),
		state: StateRunning,
	}
	go c.reap()

	slog.Debug("child started", "name", name, "pid", cmd.Process.Pid)
	return c, nil
}

func (c *Child) Name() string {
	return c.name
}

func (c *Child) Pid() int {
	return c.cmd.Process.Pid
}

func (c *Child) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Wait blocks until the process exits or the context is done. The process
// exit error, if any, is returned once reaped.
func (c *Child) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.waitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop terminates the process: SIGTERM, then SIGKILL once the grace period
// expires. It returns after the process has been reaped. Stopping an
// already-exited child is a no-op.
func (c *Child) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateExited, StateKilled:
		c.mu.Unlock()
		return nil
	case StateRunning:
		c.state = StateTerminating
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			slog.Warn("failed to signal child", "name", c.name, "error", err)
		}
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	select {
	case <-c.done:
	case <-timer.C:
		c.kill()
		<-c.done
	case <-ctx.Done():
		c.kill()
		<-c.done
	}

	slog.Debug("child stopped", "name", c.name, "state", c.State())
	return nil
}

func (c *Child) kill() {
	c.killed.Store(true)
	if err := c.cmd.Process.Kill(); err != nil {
		slog.Warn("failed to kill child", "name", c.name, "error", err)
	}
}

func (c *Child) reap() {
	err := c.cmd.Wait()

	c.mu.Lock()
	c.waitErr = err
	if c.killed.Load() {
		c.state = StateKilled
	} else {
		c.state = StateExited
	}
	c.mu.Unlock()

	close(c.done)
}
