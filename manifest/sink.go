package manifest

import "io"

// Sink is the mutation surface an archive Extractor (C5) drives. *Builder
// implements it directly (hash-only, in memory); store.DiskSink
// implements it by writing real files so the Fetcher can materialize an
// archive straight onto disk while overlaying several archives in order.
type Sink interface {
	AddDirectory(path string) error
	AddFile(path string, r io.Reader, mtime int64, executable bool) error
	AddSymlink(path, target string) error
	AddHardlink(dest, existing string) error
}

// PrefixSink wraps a Sink, prepending Prefix to every path before
// delegating — used to apply an Archive step's destination= attribute
// without the extractor itself knowing about nesting.
type PrefixSink struct {
	Prefix string
	Sink   Sink
}

func (p PrefixSink) join(path string) string {
	if p.Prefix == "" {
		return path
	}
	if path == "" {
		return p.Prefix
	}
	return p.Prefix + "/" + path
}

func (p PrefixSink) AddDirectory(path string) error { return p.Sink.AddDirectory(p.join(path)) }

func (p PrefixSink) AddFile(path string, r io.Reader, mtime int64, executable bool) error {
	return p.Sink.AddFile(p.join(path), r, mtime, executable)
}

func (p PrefixSink) AddSymlink(path, target string) error {
	return p.Sink.AddSymlink(p.join(path), target)
}

func (p PrefixSink) AddHardlink(dest, existing string) error {
	return p.Sink.AddHardlink(p.join(dest), p.join(existing))
}
