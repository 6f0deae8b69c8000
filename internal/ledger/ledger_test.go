package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "appRebootFault")
	return New(path, nil), path
}

func TestWriteAndIsFor(t *testing.T) {
	l, path := newTestLedger(t)

	if l.IsFor("A", "P") {
		t.Fatalf("expected no record before Write")
	}

	if err := l.Write("A", "P"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer l.Stop()

	if !l.IsFor("A", "P") {
		t.Errorf("expected IsFor(A,P) true after Write")
	}
	if l.IsFor("A", "Q") {
		t.Errorf("expected IsFor(A,Q) false")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "A/P\x00" {
		t.Errorf("unexpected file content: %q", data)
	}
}

func TestGraceTimerExpiry(t *testing.T) {
	l, path := newTestLedger(t)
	if err := l.Write("A", "P"); err != nil {
		t.Fatalf("Write: %v", err)
	}

	l.mu.Lock()
	l.timer.Stop()
	l.timer = time.AfterFunc(20*time.Millisecond, l.expireGrace)
	l.mu.Unlock()

	time.Sleep(100 * time.Millisecond)

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected ledger file removed after grace expiry, stat err = %v", err)
	}
	if l.IsFor("A", "P") {
		t.Errorf("expected IsFor false after grace expiry")
	}
}

func TestWriteRearmsTimer(t *testing.T) {
	l, _ := newTestLedger(t)
	if err := l.Write("A", "P"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := l.Write("A", "Q"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	defer l.Stop()

	if l.IsFor("A", "P") {
		t.Errorf("expected second Write to overwrite first record")
	}
	if !l.IsFor("A", "Q") {
		t.Errorf("expected second Write's record present")
	}
}
