package feed

import (
	"context"
	"os"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/internal/dcontext"
	"github.com/zeroinstall/zeroinstall/model"
	"github.com/zeroinstall/zeroinstall/trust"
)

// Add writes raw bytes for uri atomically (temp file + rename), rejecting
// input that does not parse as well-formed feed XML (after stripping any
// signature trailer).
func (c *Cache) Add(ctx context.Context, uri model.FeedURI, raw []byte) error {
	payload, _, err := trust.SplitPayload(raw)
	if err != nil {
		return err
	}
	if _, err := Parse(payload); err != nil {
		return err
	}

	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create feed cache directory")
	}
	p, err := c.path(uri)
	if err != nil {
		return err
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errcode.Wrap(errcode.IO, err, "write feed cache temp file for %s", uri)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return errcode.Wrap(errcode.IO, err, "commit feed cache entry for %s", uri)
	}
	dcontext.GetLogger(ctx).Infof("feed: cached %s", uri)
	return nil
}

// Remove deletes the cached copy of uri, if any.
func (c *Cache) Remove(uri model.FeedURI) error {
	p, err := c.path(uri)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return errcode.Wrap(errcode.IO, err, "remove cached feed %s", uri)
	}
	return nil
}

// ListAll returns every FeedURI currently cached.
func (c *Cache) ListAll() ([]model.FeedURI, error) {
	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errcode.Wrap(errcode.IO, err, "list feed cache directory")
	}
	var out []model.FeedURI
	for _, e := range entries {
		if e.IsDir() || e.Name() == ".index.json" {
			continue
		}
		name := e.Name()
		if len(name) > 7 && name[:7] == "sha256-" {
			idx := c.sidecar()
			m, err := idx.load()
			if err != nil {
				continue
			}
			if escaped, ok := m[name]; ok {
				name = escaped
			}
		}
		uri, err := model.UnescapeFeedURI(name)
		if err != nil {
			continue // skip unrecognized files rather than fail the whole listing
		}
		out = append(out, uri)
	}
	return out, nil
}
