package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeroinstall/zeroinstall/manifest"
)

func TestAddDirectoryRoundTrip(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "store"))
	if err := s.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot() = %v", err)
	}

	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatalf("MkdirAll() = %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	tree, err := scanDirectory(src, "sha256new")
	if err != nil {
		t.Fatalf("scanDirectory() = %v", err)
	}
	digestStr := manifest.SHA256New.Digest(manifest.Render(tree))
	digest := map[string]string{"sha256new": digestStr}

	path, err := s.AddDirectory(context.Background(), src, digest)
	if err != nil {
		t.Fatalf("AddDirectory() = %v", err)
	}
	if !s.Contains(digest) {
		t.Errorf("Contains() = false after AddDirectory")
	}
	if got, ok := s.Path(digest); !ok || got != path {
		t.Errorf("Path() = %q, %v; want %q, true", got, ok, path)
	}
	if err := s.Verify(digest); err != nil {
		t.Errorf("Verify() = %v", err)
	}
}

func TestAddDirectoryRejectsWrongDigest(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "store"))
	s.EnsureRoot()

	src := filepath.Join(root, "src")
	os.MkdirAll(src, 0o755)
	os.WriteFile(filepath.Join(src, "f.txt"), []byte("data"), 0o644)

	digest := map[string]string{"sha256new": "wrongdigestvalue"}
	if _, err := s.AddDirectory(context.Background(), src, digest); err == nil {
		t.Errorf("expected DigestMismatch for wrong declared digest")
	}
}

func TestConcurrentAddSameDigestFirstWins(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "store"))
	s.EnsureRoot()

	src := filepath.Join(root, "src")
	os.MkdirAll(src, 0o755)
	os.WriteFile(filepath.Join(src, "f.txt"), []byte("data"), 0o644)

	tree, _ := scanDirectory(src, "sha256new")
	digestStr := manifest.SHA256New.Digest(manifest.Render(tree))
	digest := map[string]string{"sha256new": digestStr}

	p1, err := s.AddDirectory(context.Background(), src, digest)
	if err != nil {
		t.Fatalf("first AddDirectory() = %v", err)
	}
	p2, err := s.AddDirectory(context.Background(), src, digest)
	if err != nil {
		t.Fatalf("second AddDirectory() = %v", err)
	}
	if p1 != p2 {
		t.Errorf("expected both adds to resolve to the same path, got %q and %q", p1, p2)
	}
}

func TestReapStagingRemovesOrphans(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "store"))
	s.EnsureRoot()
	orphan := filepath.Join(s.Root, ".staging.orphan123")
	os.MkdirAll(orphan, 0o755)

	if err := s.ReapStaging(context.Background()); err != nil {
		t.Fatalf("ReapStaging() = %v", err)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("expected orphaned staging dir to be removed")
	}
}

func TestSearchPathFlushClearsNegativeCache(t *testing.T) {
	root := t.TempDir()
	s := New(filepath.Join(root, "store"))
	s.EnsureRoot()
	sp := NewSearchPath(s)

	digest := map[string]string{"sha256new": "somedigest"}
	if sp.Contains(digest) {
		t.Fatalf("expected digest absent before any write")
	}

	src := filepath.Join(root, "src")
	os.MkdirAll(src, 0o755)
	os.WriteFile(filepath.Join(src, "f.txt"), []byte("x"), 0o644)
	tree, _ := scanDirectory(src, "sha256new")
	digestStr := manifest.SHA256New.Digest(manifest.Render(tree))
	realDigest := map[string]string{"sha256new": digestStr}

	if _, err := s.AddDirectory(context.Background(), src, realDigest); err != nil {
		t.Fatalf("AddDirectory() = %v", err)
	}
	sp.Flush()
	if !sp.Contains(realDigest) {
		t.Errorf("expected digest present after Flush + add")
	}
}
