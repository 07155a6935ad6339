package archive

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"io"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/manifest"
)

// tarExtractor implements Extractor for "application/x-tar" and its
// compressed variants; decompress is nil for plain tar.
type tarExtractor struct {
	decompress func(io.Reader) (io.Reader, error)
}

func init() {
	Register("application/x-tar", tarExtractor{})
	Register("application/x-compressed-tar", tarExtractor{decompress: gunzip})
	Register("application/x-bzip-compressed-tar", tarExtractor{decompress: bunzip2})
}

func gunzip(r io.Reader) (io.Reader, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errcode.Wrap(errcode.ParseError, err, "open gzip stream")
	}
	return gz, nil
}

func bunzip2(r io.Reader) (io.Reader, error) {
	return bzip2.NewReader(r), nil
}

func (e tarExtractor) Extract(r io.Reader, builder manifest.Sink, subDir string) error {
	stream := r
	if e.decompress != nil {
		s, err := e.decompress(r)
		if err != nil {
			return err
		}
		stream = s
	}
	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errcode.Wrap(errcode.ParseError, err, "read tar entry")
		}
		path, ok := stripSubDir(hdr.Name, subDir)
		if !ok {
			continue
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := builder.AddDirectory(path); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := builder.AddSymlink(path, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeLink:
			if err := builder.AddHardlink(path, hdr.Linkname); err != nil {
				return err
			}
		case tar.TypeReg, tar.TypeRegA:
			executable := hdr.Mode&0o111 != 0
			if err := builder.AddFile(path, tr, hdr.ModTime.Unix(), executable); err != nil {
				return err
			}
		}
	}
}
