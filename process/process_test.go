package process_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/exitest/exitest/logger"
	"github.com/exitest/exitest/process"
	"github.com/exitest/exitest/termination"
	"github.com/exitest/exitest/waiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func childEnv(mode string) []string {
	return append(os.Environ(), "TEST_MAIN="+mode)
}

func TestProcessSpawnsAndReportsExitStatus(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path: os.Args[0],
		Env:  childEnv("exit-2"),
	})

	require.NoError(t, p.Start())
	assert.Equal(t, process.Running, p.State())
	assert.NotZero(t, p.Pid())

	select {
	case <-p.Started():
	default:
		t.Fatal("expected Started() to be closed after Start")
	}

	st, err := waiter.New(logger.Discard).Await(context.Background(), p)
	require.NoError(t, err)

	assert.True(t, termination.Exit(2).Equal(st), "got %s", st)
	assert.Equal(t, process.Terminated, p.State())
	assert.True(t, termination.Exit(2).Equal(p.Status()))

	select {
	case <-p.Done():
	default:
		t.Fatal("expected Done() to be closed after the waiter finished")
	}
}

func TestProcessCapturesOutput(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path:          os.Args[0],
		Env:           childEnv("output"),
		CaptureStdout: true,
		CaptureStderr: true,
	})

	require.NoError(t, p.Start())

	st, err := waiter.New(logger.Discard).Await(context.Background(), p)
	require.NoError(t, err)
	require.True(t, termination.Exit(0).Equal(st), "got %s", st)

	assert.Equal(t, "llamas\n", string(p.Stdout()))
	assert.Equal(t, "alpacas\n", string(p.Stderr()))
}

func TestProcessDiscardsOutputByDefault(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path: os.Args[0],
		Env:  childEnv("output"),
	})

	require.NoError(t, p.Start())

	_, err := waiter.New(logger.Discard).Await(context.Background(), p)
	require.NoError(t, err)

	assert.Empty(t, p.Stdout())
	assert.Empty(t, p.Stderr())
}

func TestProcessSpawnFailure(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path: "/nonexistent/path/to/no/such/binary",
	})

	err := p.Start()
	require.Error(t, err)

	var spawnErr *process.SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, "/nonexistent/path/to/no/such/binary", spawnErr.Path)
	assert.Equal(t, process.Failed, p.State())
}

func TestProcessCannotStartTwice(t *testing.T) {
	p := process.New(logger.Discard, process.Config{
		Path: os.Args[0],
		Env:  childEnv("exit-0"),
	})

	require.NoError(t, p.Start())
	assert.Error(t, p.Start())

	_, err := waiter.New(logger.Discard).Await(context.Background(), p)
	require.NoError(t, err)
}

// Two children awaited concurrently must each resume with their own status,
// even when they terminate around the same time.
func TestConcurrentAwaitsDoNotCross(t *testing.T) {
	w := waiter.New(logger.Discard)

	modes := map[string]termination.Status{
		"exit-0":      termination.Exit(0),
		"exit-2":      termination.Exit(2),
		"slow-exit-3": termination.Exit(3),
	}

	var wg sync.WaitGroup
	for mode, want := range modes {
		mode, want := mode, want
		wg.Add(1)
		go func() {
			defer wg.Done()

			p := process.New(logger.Discard, process.Config{
				Path: os.Args[0],
				Env:  childEnv(mode),
			})
			if err := p.Start(); err != nil {
				t.Errorf("%s: %v", mode, err)
				return
			}

			st, err := w.Await(context.Background(), p)
			if err != nil {
				t.Errorf("%s: %v", mode, err)
				return
			}
			if !want.Equal(st) {
				t.Errorf("%s: expected %s, got %s", mode, want, st)
			}
		}()
	}
	wg.Wait()
}
