// Package testutil holds small polling helpers shared by tests that
// assert on state the supervisor reaches asynchronously.
package testutil

import (
	"testing"
	"time"
)

// Eventually polls cond every few milliseconds and fails the test if it
// has not become true within timeout.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out after %v waiting for %s", timeout, what)
}

// Never asserts cond stays false for the whole of window, for checking
// that something (a restart, a timer) does not happen.
func Never(t *testing.T, window time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(window)
	for time.Now().Before(deadline) {
		if cond() {
			t.Fatalf("%s happened within %v", what, window)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
