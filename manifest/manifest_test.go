package manifest

import (
	"strings"
	"testing"
)

func TestRenderEmptyTree(t *testing.T) {
	tree := NewTree()
	if got := Render(tree); got != "D /\n" {
		t.Errorf("Render(empty) = %q, want %q", got, "D /\n")
	}
}

func TestAddFileThenRender(t *testing.T) {
	b := NewBuilder(SHA256New)
	if err := b.AddFile("hello.txt", strings.NewReader("hi"), 1000, false); err != nil {
		t.Fatalf("AddFile() = %v", err)
	}
	out := Render(b.Tree())
	if !strings.Contains(out, "F ") || !strings.Contains(out, "hello.txt") {
		t.Errorf("Render() missing file line: %q", out)
	}
}

func TestDigestDeterministic(t *testing.T) {
	build := func() *Builder {
		b := NewBuilder(SHA256New)
		b.AddDirectory("sub")
		b.AddFile("sub/a.txt", strings.NewReader("aaa"), 100, false)
		b.AddFile("b.txt", strings.NewReader("bbb"), 200, true)
		b.AddSymlink("link", "target")
		return b
	}
	d1 := build().Digest()
	d2 := build().Digest()
	if d1 != d2 {
		t.Errorf("digest not deterministic: %q vs %q", d1, d2)
	}
}

func TestOrdinalOrderingUppercaseBeforeLowercase(t *testing.T) {
	b := NewBuilder(SHA1New)
	b.AddFile("b.txt", strings.NewReader("x"), 0, false)
	b.AddFile("A.txt", strings.NewReader("x"), 0, false)
	out := Render(b.Tree())
	if strings.Index(out, "A.txt") > strings.Index(out, "b.txt") {
		t.Errorf("expected A.txt (uppercase) before b.txt, got %q", out)
	}
}

func TestHardlinkRequiresExistingSource(t *testing.T) {
	b := NewBuilder(SHA256New)
	if err := b.AddHardlink("dest.txt", "missing.txt"); err == nil {
		t.Errorf("expected error for hardlink to missing source")
	}
}

func TestHardlinkCopiesMetadata(t *testing.T) {
	b := NewBuilder(SHA256New)
	b.AddFile("orig.txt", strings.NewReader("content"), 42, false)
	if err := b.AddHardlink("dup.txt", "orig.txt"); err != nil {
		t.Fatalf("AddHardlink() = %v", err)
	}
	orig, err := b.lookupFile("orig.txt")
	if err != nil {
		t.Fatalf("lookupFile(orig) = %v", err)
	}
	dup, err := b.lookupFile("dup.txt")
	if err != nil {
		t.Fatalf("lookupFile(dup) = %v", err)
	}
	if orig.Digest != dup.Digest || orig.Size != dup.Size {
		t.Errorf("hardlink metadata mismatch: %+v vs %+v", orig, dup)
	}
}

func TestRenameDirectoryIsRecursive(t *testing.T) {
	b := NewBuilder(SHA256New)
	b.AddFile("olddir/a.txt", strings.NewReader("x"), 0, false)
	if err := b.Rename("olddir", "newdir"); err != nil {
		t.Fatalf("Rename() = %v", err)
	}
	if _, err := b.lookupFile("newdir/a.txt"); err != nil {
		t.Errorf("expected newdir/a.txt to exist after rename: %v", err)
	}
	if _, err := b.lookupFile("olddir/a.txt"); err == nil {
		t.Errorf("expected olddir/a.txt to be gone after rename")
	}
}

func TestTimeOffsetShiftsEveryFile(t *testing.T) {
	b := NewBuilder(SHA256New)
	b.AddFile("a.txt", strings.NewReader("x"), 1000, false)
	b.AddFile("sub/b.txt", strings.NewReader("y"), 2000, false)
	b.TimeOffset(3600)

	a, _ := b.lookupFile("a.txt")
	sb, _ := b.lookupFile("sub/b.txt")
	if a.MTime != 4600 || sb.MTime != 5600 {
		t.Errorf("TimeOffset did not shift both files: %d, %d", a.MTime, sb.MTime)
	}
}

func TestReservedNameRejected(t *testing.T) {
	b := NewBuilder(SHA256New)
	if err := b.AddFile(".manifest", strings.NewReader("x"), 0, false); err == nil {
		t.Errorf("expected rejection of reserved name .manifest")
	}
}

func TestFormatEncodings(t *testing.T) {
	if ParseFormat1, err := ParseFormat("sha1new"); err != nil || ParseFormat1.name != "sha1new" {
		t.Errorf("ParseFormat(sha1new) = %v, %v", ParseFormat1, err)
	}
	if _, err := ParseFormat("bogus"); err == nil {
		t.Errorf("expected error for unknown format")
	}
}
