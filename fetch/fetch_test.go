package fetch

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeroinstall/zeroinstall/manifest"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/store"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		// mtime 0 matches the mtime digestOf hashes each file with.
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: time.Unix(0, 0)})
		if err != nil {
			t.Fatalf("zw.Create() = %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zw.Write() = %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close() = %v", err)
	}
	return buf.Bytes()
}

func digestOf(t *testing.T, files map[string]string) model.ManifestDigest {
	t.Helper()
	builder := manifest.NewBuilder(manifest.SHA256New)
	for name, content := range files {
		if err := builder.AddFile(name, bytes.NewReader([]byte(content)), 0, false); err != nil {
			t.Fatalf("AddFile() = %v", err)
		}
	}
	return model.ManifestDigest{"sha256new": builder.Digest()}
}

func newSearchPath(t *testing.T) *store.SearchPath {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "store"))
	if err := s.EnsureRoot(); err != nil {
		t.Fatalf("EnsureRoot() = %v", err)
	}
	return store.NewSearchPath(s)
}

func TestFetchArchiveFastPath(t *testing.T) {
	files := map[string]string{"run.sh": "#!/bin/sh\necho hi\n"}
	archiveBytes := zipArchive(t, files)
	digest := digestOf(t, files)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	}))
	defer srv.Close()

	sp := newSearchPath(t)
	f := New(sp, srv.Client())

	impl := model.Implementation{
		ID:             "sha256new=" + digest["sha256new"],
		ManifestDigest: digest,
		RetrievalMethods: []model.RetrievalMethod{
			model.Archive{Href: srv.URL, MimeType: "application/zip", Size: int64(len(archiveBytes))},
		},
	}

	path, err := f.Fetch(context.Background(), nil, impl)
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(path, "run.sh"))
	if err != nil {
		t.Fatalf("read extracted file: %v", err)
	}
	if string(data) != files["run.sh"] {
		t.Errorf("extracted content = %q, want %q", data, files["run.sh"])
	}
	if !sp.Contains(digest) {
		t.Errorf("expected store to contain digest after fetch")
	}
}

func TestFetchSkipsBrokenRetrievalMethods(t *testing.T) {
	files := map[string]string{"ok.txt": "fine"}
	archiveBytes := zipArchive(t, files)
	digest := digestOf(t, files)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/wrong-size":
			w.Write(archiveBytes)
		case "/good":
			w.Write(archiveBytes)
		}
	}))
	defer srv.Close()

	sp := newSearchPath(t)
	f := New(sp, srv.Client())

	impl := model.Implementation{
		ID:             "sha256new=" + digest["sha256new"],
		ManifestDigest: digest,
		RetrievalMethods: []model.RetrievalMethod{
			// wrong declared size -> DigestMismatch, tried first as the smaller of two "archives"
			model.Archive{Href: srv.URL + "/wrong-size", MimeType: "application/zip", Size: 1},
			model.Archive{Href: srv.URL + "/good", MimeType: "application/zip", Size: int64(len(archiveBytes))},
		},
	}

	path, err := f.Fetch(context.Background(), nil, impl)
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "ok.txt")); err != nil {
		t.Errorf("expected ok.txt in committed directory: %v", err)
	}
}

func TestFetchReturnsCachedPathWithoutNetwork(t *testing.T) {
	files := map[string]string{"a": "b"}
	digest := digestOf(t, files)

	sp := newSearchPath(t)
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "a"), []byte("b"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	if err := os.Chtimes(filepath.Join(src, "a"), time.Unix(0, 0), time.Unix(0, 0)); err != nil {
		t.Fatalf("Chtimes() = %v", err)
	}
	if _, err := sp.AddDirectory(context.Background(), src, digest); err != nil {
		t.Fatalf("AddDirectory() = %v", err)
	}

	f := New(sp, http.DefaultClient)
	impl := model.Implementation{
		ManifestDigest: digest,
		RetrievalMethods: []model.RetrievalMethod{
			model.Archive{Href: "http://unreachable.invalid/should-not-be-fetched.zip", MimeType: "application/zip"},
		},
	}
	if _, err := f.Fetch(context.Background(), nil, impl); err != nil {
		t.Fatalf("Fetch() = %v, want cache hit with no network call", err)
	}
}

func TestFetchRecipeRenameAndRemove(t *testing.T) {
	files := map[string]string{"old.txt": "content", "gone.txt": "delete me"}
	archiveBytes := zipArchive(t, files)

	finalFiles := map[string]string{"new.txt": "content"}
	finalDigest := digestOf(t, finalFiles)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archiveBytes)
	}))
	defer srv.Close()

	sp := newSearchPath(t)
	f := New(sp, srv.Client())

	impl := model.Implementation{
		ManifestDigest: finalDigest,
		RetrievalMethods: []model.RetrievalMethod{
			model.Recipe{Steps: []model.Step{
				model.Archive{Href: srv.URL, MimeType: "application/zip", Size: int64(len(archiveBytes))},
				model.RenameStep{Src: "old.txt", Dst: "new.txt"},
				model.RemoveStep{Path: "gone.txt"},
			}},
		},
	}

	path, err := f.Fetch(context.Background(), nil, impl)
	if err != nil {
		t.Fatalf("Fetch() = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(path, "new.txt"))
	if err != nil {
		t.Fatalf("read renamed file: %v", err)
	}
	if string(data) != "content" {
		t.Errorf("renamed file content = %q", data)
	}
	if _, err := os.Stat(filepath.Join(path, "gone.txt")); !os.IsNotExist(err) {
		t.Errorf("expected gone.txt to be removed, stat err = %v", err)
	}
}

func TestRankRetrievalMethodsOrdersDownloadsFirst(t *testing.T) {
	methods := []model.RetrievalMethod{
		model.Recipe{Steps: []model.Step{model.RemoveStep{Path: "x"}, model.RemoveStep{Path: "y"}}},
		model.Archive{Href: "big", Size: 100},
		model.Archive{Href: "small", Size: 10},
		model.Recipe{Steps: []model.Step{model.RemoveStep{Path: "x"}}},
	}
	ranked := rankRetrievalMethods(methods)
	a0, ok := ranked[0].(model.Archive)
	if !ok || a0.Href != "small" {
		t.Fatalf("ranked[0] = %#v, want smaller archive first", ranked[0])
	}
	a1, ok := ranked[1].(model.Archive)
	if !ok || a1.Href != "big" {
		t.Fatalf("ranked[1] = %#v, want larger archive second", ranked[1])
	}
	r2, ok := ranked[2].(model.Recipe)
	if !ok || len(r2.Steps) != 1 {
		t.Fatalf("ranked[2] = %#v, want shorter recipe before longer one", ranked[2])
	}
}

func TestMirrorURLForBuildsExpectedLayout(t *testing.T) {
	got, err := mirrorURLFor("https://mirror.example/feeds", "http://origin.example/path/to/file.tgz")
	if err != nil {
		t.Fatalf("mirrorURLFor() = %v", err)
	}
	want := "https://mirror.example/feeds/archive/http/origin.example/path%2Fto%2Ffile.tgz"
	if got != want {
		t.Errorf("mirrorURLFor() = %q, want %q", got, want)
	}
}

func TestIsLoopbackHost(t *testing.T) {
	if !isLoopbackHost("127.0.0.1") || !isLoopbackHost("localhost") {
		t.Errorf("expected loopback hosts to be detected")
	}
	if isLoopbackHost("example.com") {
		t.Errorf("did not expect example.com to be loopback")
	}
}

func TestDownloadDedupSharesInFlightCall(t *testing.T) {
	var calls int
	var d downloadDedup
	done := make(chan struct{})
	results := make(chan []byte, 2)

	fn := func() ([]byte, error) {
		calls++
		<-done
		return []byte("result"), nil
	}

	go func() {
		data, _ := d.do("key", fn)
		results <- data
	}()
	go func() {
		data, _ := d.do("key", fn)
		results <- data
	}()

	close(done)
	r1 := <-results
	r2 := <-results
	if string(r1) != "result" || string(r2) != "result" {
		t.Errorf("expected both callers to see the shared result")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (deduplicated)", calls)
	}
}
