package configtree

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tree.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleYAML = `
apps:
  myapp:
    sandboxed: true
    groups:
      audio: {}
      video: {}
    procs:
      worker:
        watchdogAction: restart
    bindings:
      svc1:
        app: server1
`

func TestLoadAndNavigate(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	tree, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	txn, err := tree.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	defer txn.Release()

	n, err := txn.Node("apps/myapp/sandboxed")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if !n.Bool(false) {
		t.Errorf("expected sandboxed=true")
	}

	groups, err := txn.Node("apps/myapp/groups")
	if err != nil {
		t.Fatalf("Node groups: %v", err)
	}
	children := groups.Children()
	if len(children) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(children))
	}
	if children[0].Name() != "audio" || children[1].Name() != "video" {
		t.Errorf("unexpected group names: %q, %q", children[0].Name(), children[1].Name())
	}
}

func TestNodeNotFound(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	tree, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	txn, _ := tree.Read()
	defer txn.Release()

	if _, err := txn.Node("apps/does-not-exist"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestReload(t *testing.T) {
	path := writeTemp(t, sampleYAML)
	tree, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("apps:\n  myapp:\n    sandboxed: false\n"), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if err := tree.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	txn, _ := tree.Read()
	defer txn.Release()
	n, err := txn.Node("apps/myapp/sandboxed")
	if err != nil {
		t.Fatalf("Node: %v", err)
	}
	if n.Bool(true) {
		t.Errorf("expected sandboxed=false after reload")
	}
}
