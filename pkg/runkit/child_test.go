package runkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChildExitsOnItsOwn(t *testing.T) {
	child, err := Start(&ChildOptions{Command: "true"})
	require.NoError(t, err)

	require.NoError(t, child.Wait(context.Background()))
	require.Equal(t, StateExited, child.State())
}

func TestStopTerminatesGracefully(t *testing.T) {
	child, err := Start(&ChildOptions{
		Command:     "sleep",
		Args:        []string{"30"},
		GracePeriod: 5 * time.Second,
	})
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, child.Stop(context.Background()))

	// sleep honors SIGTERM, so the grace timer never fires.
	require.Less(t, time.Since(start), 3*time.Second)
	require.Equal(t, StateExited, child.State())
}

func TestStopKillsAfterGracePeriod(t *testing.T) {
	child, err := Start(&ChildOptions{
		Name:        "stubborn",
		Command:     "sh",
		Args:        []string{"-c", `trap "" TERM; sleep 30`},
		GracePeriod: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, child.Stop(context.Background()))
	require.Equal(t, StateKilled, child.State())
}

func TestStopIsIdempotent(t *testing.T) {
	child, err := Start(&ChildOptions{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	require.NoError(t, child.Stop(context.Background()))
	require.NoError(t, child.Stop(context.Background()))
}

func TestWaitHonorsContext(t *testing.T) {
	child, err := Start(&ChildOptions{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = child.Stop(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, child.Wait(ctx), context.DeadlineExceeded)
}

func TestSupervisorStopsInReverseOrder(t *testing.T) {
	supervisor := NewSupervisor()

	first, err := supervisor.Start(&ChildOptions{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)
	second, err := supervisor.Start(&ChildOptions{Command: "sleep", Args: []string{"30"}})
	require.NoError(t, err)

	supervisor.StopAll(context.Background())

	require.Equal(t, StateExited, first.State())
	require.Equal(t, StateExited, second.State())
}
