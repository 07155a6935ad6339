package archive

import (
	"archive/tar"
	"bytes"
	"testing"

	"github.com/zeroinstall/zeroinstall/manifest"
)

func TestTarExtractorAddsFilesAndDirs(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	mustWriteTarFile(t, tw, "bin/", tar.TypeDir, "", 0o755)
	mustWriteTarFile(t, tw, "bin/run.sh", tar.TypeReg, "#!/bin/sh\n", 0o755)
	if err := tw.Close(); err != nil {
		t.Fatalf("tw.Close() = %v", err)
	}

	builder := manifest.NewBuilder(manifest.SHA256New)
	if err := Extract("application/x-tar", &buf, builder, ""); err != nil {
		t.Fatalf("Extract() = %v", err)
	}

	rendered := manifest.Render(builder.Tree())
	if !bytes.Contains([]byte(rendered), []byte("run.sh")) {
		t.Errorf("rendered manifest missing run.sh: %q", rendered)
	}
}

func TestStripSubDir(t *testing.T) {
	if _, ok := stripSubDir("pkg/file.txt", "pkg"); !ok {
		t.Errorf("expected pkg/file.txt to match sub_dir pkg")
	}
	if path, _ := stripSubDir("pkg/file.txt", "pkg"); path != "file.txt" {
		t.Errorf("stripSubDir() = %q, want file.txt", path)
	}
	if _, ok := stripSubDir("other/file.txt", "pkg"); ok {
		t.Errorf("expected other/file.txt to be excluded by sub_dir pkg")
	}
}

func TestUnsupportedMimeType(t *testing.T) {
	if _, err := Lookup("application/x-bogus"); err == nil {
		t.Errorf("expected error for unregistered MIME type")
	}
}

func mustWriteTarFile(t *testing.T, tw *tar.Writer, name string, typ byte, content string, mode int64) {
	t.Helper()
	hdr := &tar.Header{Name: name, Typeflag: typ, Mode: mode, Size: int64(len(content))}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatalf("WriteHeader(%q) = %v", name, err)
	}
	if content != "" {
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%q) = %v", name, err)
		}
	}
}
