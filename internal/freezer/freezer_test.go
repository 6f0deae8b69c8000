package freezer

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestFreezer(t *testing.T, appName string) *CgroupFreezer {
	t.Helper()
	root := t.TempDir()
	f := &CgroupFreezer{Root: root, Group: "apcore"}
	if err := os.MkdirAll(f.path(appName), 0o755); err != nil {
		t.Fatalf("mkdir cgroup: %v", err)
	}
	// A real cgroup directory always carries its control files.
	if err := os.WriteFile(filepath.Join(f.path(appName), "cgroup.procs"), nil, 0o644); err != nil {
		t.Fatalf("seed cgroup.procs: %v", err)
	}
	return f
}

func TestFreezeThawState(t *testing.T) {
	f := newTestFreezer(t, "myapp")

	if err := f.Freeze("myapp"); err != nil {
		t.Fatalf("Freeze: %v", err)
	}
	state, err := f.State("myapp")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != Frozen {
		t.Errorf("expected Frozen, got %s", state)
	}

	if err := f.Thaw("myapp"); err != nil {
		t.Fatalf("Thaw: %v", err)
	}
	state, err = f.State("myapp")
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state != Thawed {
		t.Errorf("expected Thawed, got %s", state)
	}
}

func TestIsEmpty(t *testing.T) {
	f := newTestFreezer(t, "myapp")

	empty, err := f.IsEmpty("myapp")
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if !empty {
		t.Errorf("expected empty cgroup before any pid added")
	}

	procsPath := filepath.Join(f.path("myapp"), "cgroup.procs")
	if err := os.WriteFile(procsPath, []byte("1234\n5678\n"), 0o644); err != nil {
		t.Fatalf("seed cgroup.procs: %v", err)
	}

	pids, err := f.pids("myapp")
	if err != nil {
		t.Fatalf("pids: %v", err)
	}
	if len(pids) != 2 || pids[0] != 1234 || pids[1] != 5678 {
		t.Errorf("unexpected pids: %v", pids)
	}

	empty, err = f.IsEmpty("myapp")
	if err != nil {
		t.Fatalf("IsEmpty: %v", err)
	}
	if empty {
		t.Errorf("expected non-empty cgroup after seeding procs")
	}
}
