package fetch

import (
	"context"
	"testing"
)

func TestArchiveRetentionRoundTrip(t *testing.T) {
	r := NewArchiveRetention()
	data := []byte("archive contents")

	c, err := r.Retain(context.Background(), data)
	if err != nil {
		t.Fatalf("Retain() = %v", err)
	}

	got, ok := r.Fetch(context.Background(), c)
	if !ok {
		t.Fatalf("Fetch() = false, want retained block present")
	}
	if string(got) != string(data) {
		t.Errorf("Fetch() = %q, want %q", got, data)
	}

	r.Release(context.Background(), c)
	if _, ok := r.Fetch(context.Background(), c); ok {
		t.Errorf("expected block gone after Release")
	}
}

func TestArchiveRetentionIsContentAddressed(t *testing.T) {
	r := NewArchiveRetention()
	c1, err := r.Retain(context.Background(), []byte("same bytes"))
	if err != nil {
		t.Fatalf("Retain() = %v", err)
	}
	c2, err := r.Retain(context.Background(), []byte("same bytes"))
	if err != nil {
		t.Fatalf("Retain() = %v", err)
	}
	if !c1.Equals(c2) {
		t.Errorf("expected identical content to produce the same CID")
	}
}
