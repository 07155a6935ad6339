package selections

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zeroinstall/zeroinstall/manifest"
)

func buildTree(t *testing.T, src string, files map[string]string) *manifest.Tree {
	t.Helper()
	b := manifest.NewBuilder(manifest.SHA256New)
	for path, content := range files {
		full := filepath.Join(src, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if err := b.AddFile(path, strings.NewReader(content), 0, false); err != nil {
			t.Fatalf("AddFile(%q): %v", path, err)
		}
	}
	return b.Tree()
}

func TestDeployDirectoryCopiesFilesIntoPlace(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	tree := buildTree(t, src, map[string]string{
		"bin/run":     "#!/bin/sh\necho hi\n",
		"share/notes": "hello",
	})

	if err := DeployDirectory(context.Background(), tree, src, dst, nil, nil); err != nil {
		t.Fatalf("DeployDirectory() = %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dst, "share", "notes"))
	if err != nil {
		t.Fatalf("ReadFile(share/notes): %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("share/notes = %q, want %q", got, "hello")
	}
	if _, err := os.Stat(filepath.Join(dst, "bin", "run")); err != nil {
		t.Errorf("bin/run missing after deploy: %v", err)
	}

	// No leftover staging files.
	entries, _ := os.ReadDir(filepath.Join(dst, "share"))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp") {
			t.Errorf("leftover staging file %s", e.Name())
		}
	}
}

func TestClearDirectoryRemovesOnlyManifestEntries(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	tree := buildTree(t, src, map[string]string{"share/notes": "hello"})

	if err := DeployDirectory(context.Background(), tree, src, dst, nil, nil); err != nil {
		t.Fatalf("DeployDirectory() = %v", err)
	}
	extra := filepath.Join(dst, "share", "extra")
	if err := os.WriteFile(extra, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("WriteFile(extra): %v", err)
	}

	if err := ClearDirectory(context.Background(), tree, dst, nil, nil); err != nil {
		t.Fatalf("ClearDirectory() = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "share", "notes")); !os.IsNotExist(err) {
		t.Errorf("share/notes still present after ClearDirectory: err=%v", err)
	}
	if _, err := os.Stat(extra); err != nil {
		t.Errorf("unlisted file share/extra was removed: %v", err)
	}
}
