package chunkcache

import (
	"testing"

	digest "github.com/opencontainers/go-digest"
)

func TestChunksOfExactMultiple(t *testing.T) {
	data := make([]byte, WindowSize*3)
	chunks := ChunksOf(data)
	if len(chunks) != 3 {
		t.Fatalf("ChunksOf() returned %d chunks, want 3", len(chunks))
	}
}

func TestChunksOfPartialTail(t *testing.T) {
	data := make([]byte, WindowSize*2+17)
	chunks := ChunksOf(data)
	if len(chunks) != 3 {
		t.Fatalf("ChunksOf() returned %d chunks, want 3", len(chunks))
	}
}

func TestNilPoolIsPermanentMiss(t *testing.T) {
	c := New(nil)
	d := digest.FromString("anything")

	if err := c.Put(d, []byte("data")); err != nil {
		t.Fatalf("Put() with nil pool = %v, want nil", err)
	}
	if _, err := c.Get(d); err != ErrNotCached {
		t.Fatalf("Get() with nil pool = %v, want ErrNotCached", err)
	}
	got, err := c.GetMany([]digest.Digest{d})
	if err != nil {
		t.Fatalf("GetMany() with nil pool = %v, want nil", err)
	}
	if len(got) != 0 {
		t.Fatalf("GetMany() with nil pool = %v, want empty", got)
	}
}
