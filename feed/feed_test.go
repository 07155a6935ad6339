package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/zeroinstall/zeroinstall/model"
)

const sampleFeed = `<?xml version="1.0"?>
<interface xmlns="http://zero-install.sourceforge.net/2004/injector/interface">
  <name>Example</name>
  <summary>an example program</summary>
  <description>Longer description.</description>
  <homepage>https://example.com/</homepage>
  <group arch="Linux-*" license="GPL">
    <implementation id="sha256new=AAAA" version="1.0" released="2020-01-01">
      <manifest-digest sha256new="AAAA"/>
      <archive href="https://example.com/example-1.0.tar.gz" type="application/x-compressed-tar" size="1234"/>
      <requires interface="http://example.com/lib.xml">
        <environment name="LIB_PATH" insert="lib"/>
      </requires>
    </implementation>
  </group>
</interface>
`

func TestParseBasicFeed(t *testing.T) {
	f, err := Parse([]byte(sampleFeed))
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	if f.Name != "Example" {
		t.Errorf("Name = %q", f.Name)
	}
	if f.Summaries["en"] != "an example program" {
		t.Errorf("Summaries[en] = %q", f.Summaries["en"])
	}
	if len(f.Implementations) != 1 {
		t.Fatalf("len(Implementations) = %d, want 1", len(f.Implementations))
	}
	impl := f.Implementations[0]
	if impl.ID != "sha256new=AAAA" {
		t.Errorf("ID = %q", impl.ID)
	}
	if impl.Architecture.OS != "Linux" {
		t.Errorf("Architecture inherited from group = %+v", impl.Architecture)
	}
	if impl.ManifestDigest["sha256new"] != "AAAA" {
		t.Errorf("ManifestDigest = %+v", impl.ManifestDigest)
	}
	if len(impl.RetrievalMethods) != 1 {
		t.Fatalf("len(RetrievalMethods) = %d", len(impl.RetrievalMethods))
	}
	if _, ok := impl.RetrievalMethods[0].(model.Archive); !ok {
		t.Errorf("RetrievalMethods[0] type = %T", impl.RetrievalMethods[0])
	}
	if len(impl.Dependencies) != 1 || len(impl.Dependencies[0].Bindings) != 1 {
		t.Fatalf("Dependencies = %+v", impl.Dependencies)
	}
	if impl.Dependencies[0].Bindings[0].Value != "lib" {
		t.Errorf("binding value = %q", impl.Dependencies[0].Bindings[0].Value)
	}
}

func TestCacheAddRawGetFeedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	uri, _ := model.NewFeedURI("http://example.com/example.xml")

	if err := c.Add(context.Background(), uri, []byte(sampleFeed)); err != nil {
		t.Fatalf("Add() = %v", err)
	}
	if !c.Contains(uri) {
		t.Fatalf("expected cache to contain uri after Add")
	}

	got, ok := c.GetFeed(context.Background(), uri)
	if !ok {
		t.Fatalf("GetFeed() ok = false")
	}
	if got.Name != "Example" {
		t.Errorf("round-tripped Name = %q", got.Name)
	}
	if !got.URI.Equal(uri) {
		t.Errorf("round-tripped URI = %v, want %v", got.URI, uri)
	}
}

func TestCacheGetFeedToleratesCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	uri, _ := model.NewFeedURI("http://example.com/broken.xml")
	p, err := c.path(uri)
	if err != nil {
		t.Fatalf("path() = %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("MkdirAll() = %v", err)
	}
	if err := os.WriteFile(p, []byte("not xml at all"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}

	if _, ok := c.GetFeed(context.Background(), uri); ok {
		t.Fatalf("expected GetFeed to report not-found for corrupt cache entry")
	}
}

func TestCacheFilenameFallsBackForLongURIs(t *testing.T) {
	dir := t.TempDir()
	c := New(dir)
	long := "http://example.com/" + stringOfLength(300) + ".xml"
	uri, err := model.NewFeedURI(long)
	if err != nil {
		t.Fatalf("NewFeedURI() = %v", err)
	}
	name, err := c.filename(uri)
	if err != nil {
		t.Fatalf("filename() = %v", err)
	}
	if len(name) > maxFilenameLength {
		t.Errorf("filename %q exceeds max length", name)
	}
	idx := c.sidecar()
	m, err := idx.load()
	if err != nil {
		t.Fatalf("sidecar load() = %v", err)
	}
	if m[name] == "" {
		t.Errorf("expected sidecar to record mapping for %q", name)
	}
}

func stringOfLength(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = 'a'
	}
	return string(b)
}
