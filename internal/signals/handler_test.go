package signals

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/apcore/apcore/internal/testutil"
)

func TestRunningAsInit(t *testing.T) {
	if RunningAsInit() {
		t.Fatal("test process should not be PID 1")
	}
}

func TestSweepNoChildren(t *testing.T) {
	r := NewReaper(time.Second, nil)
	r.wait = func(pid int, ws *syscall.WaitStatus, opts int, ru *syscall.Rusage) (int, error) {
		return 0, errors.New("no child processes")
	}
	if n := r.sweep(); n != 0 {
		t.Fatalf("sweep reaped %d, want 0", n)
	}
}

func TestSweepCollectsAllWaitable(t *testing.T) {
	pending := []int{101, 102, 103}
	r := NewReaper(time.Second, nil)
	r.wait = func(pid int, ws *syscall.WaitStatus, opts int, ru *syscall.Rusage) (int, error) {
		if opts&syscall.WNOHANG == 0 {
			t.Fatal("sweep must use WNOHANG")
		}
		if len(pending) == 0 {
			return 0, nil
		}
		p := pending[0]
		pending = pending[1:]
		return p, nil
	}
	if n := r.sweep(); n != 3 {
		t.Fatalf("sweep reaped %d, want 3", n)
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	r := NewReaper(10*time.Millisecond, nil)
	r.wait = func(pid int, ws *syscall.WaitStatus, opts int, ru *syscall.Rusage) (int, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return 0, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	testutil.Eventually(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, "at least two sweeps")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
