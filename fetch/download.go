package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/model"
)

// downloadDedup ensures at most one download per (digest, href) tuple is
// active process-wide; callers racing on the same key await the in-flight
// attempt and share its result. Shaped after the teacher's TTL scheduler's
// single shared, mutex-guarded entry map (registry/proxy/scheduler/
// scheduler.go), here tracking in-flight calls instead of expiries.
type downloadDedup struct {
	mu    sync.Mutex
	calls map[string]*dedupCall
}

type dedupCall struct {
	wg   sync.WaitGroup
	data []byte
	err  error
}

func (d *downloadDedup) do(key string, fn func() ([]byte, error)) ([]byte, error) {
	d.mu.Lock()
	if d.calls == nil {
		d.calls = make(map[string]*dedupCall)
	}
	if c, ok := d.calls[key]; ok {
		d.mu.Unlock()
		c.wg.Wait()
		return c.data, c.err
	}
	c := &dedupCall{}
	c.wg.Add(1)
	d.calls[key] = c
	d.mu.Unlock()

	c.data, c.err = fn()
	c.wg.Done()

	d.mu.Lock()
	delete(d.calls, key)
	d.mu.Unlock()
	return c.data, c.err
}

// download fetches href, deduplicating concurrent requests for the same
// (digest, href) pair, consulting any configured peer Discovery before
// HTTP, and retrying against the configured mirror on a qualifying
// network failure.
func (f *Fetcher) download(ctx context.Context, d model.ManifestDigest, href string, wantSize int64) ([]byte, error) {
	name, _ := d.DirName()
	key := name + "|" + href
	return f.dedup.do(key, func() ([]byte, error) {
		if f.Discovery != nil {
			if data, ok := f.tryPeers(ctx, d, wantSize); ok {
				return data, nil
			}
		}
		return f.downloadWithMirror(ctx, href, wantSize)
	})
}

// tryPeers consults the Discovery peer table for an implementation's
// manifest digest, addressed the same way the retention cache addresses
// archive content, before falling back to the feed's declared href.
func (f *Fetcher) tryPeers(ctx context.Context, d model.ManifestDigest, wantSize int64) ([]byte, bool) {
	c, err := cidFromDigest(d)
	if err != nil {
		return nil, false
	}
	peerAddr, ok := f.Discovery.PeerFor(c)
	if !ok {
		return nil, false
	}
	data, err := f.httpGet(ctx, archiveURL(peerAddr, c), wantSize)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (f *Fetcher) downloadWithMirror(ctx context.Context, href string, wantSize int64) ([]byte, error) {
	data, err := f.httpGet(ctx, href, wantSize)
	if err == nil {
		return data, nil
	}
	if !f.shouldTryMirror(err, href) {
		return nil, err
	}
	mirrorURL, mErr := mirrorURLFor(f.Mirror, href)
	if mErr != nil {
		return nil, err
	}
	mirrorData, mErr := f.httpGet(ctx, mirrorURL, wantSize)
	if mErr != nil {
		return nil, err
	}
	return mirrorData, nil
}

// shouldTryMirror reports whether err from fetching href is eligible for
// a one-shot mirror retry: a Network-kind error that isn't 401/403, and
// href names a non-loopback http/https URL (a mirror redirect for a local
// file: source makes no sense).
func (f *Fetcher) shouldTryMirror(err error, href string) bool {
	if f.Mirror == "" || !errcode.IsNetwork(err) {
		return false
	}
	if status, ok := httpStatusOf(err); ok && (status == http.StatusUnauthorized || status == http.StatusForbidden) {
		return false
	}
	u, parseErr := url.Parse(href)
	if parseErr != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if isLoopbackHost(u.Hostname()) {
		return false
	}
	return true
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// mirrorURLFor builds "<mirror>/archive/<scheme>/<host>/<escaped-path>"
// per spec §4.6.
func mirrorURLFor(mirror, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	escaped := url.QueryEscape(strings.TrimPrefix(u.Path, "/"))
	if u.RawQuery != "" {
		escaped += "%3F" + url.QueryEscape(u.RawQuery)
	}
	return fmt.Sprintf("%s/archive/%s/%s/%s", strings.TrimSuffix(mirror, "/"), u.Scheme, u.Host, escaped), nil
}

type statusError struct {
	status int
	url    string
}

func (e *statusError) Error() string { return fmt.Sprintf("fetch: %s: HTTP %d", e.url, e.status) }

func httpStatusOf(err error) (int, bool) {
	var se *statusError
	if errors.As(err, &se) {
		return se.status, true
	}
	return 0, false
}

func (f *Fetcher) httpGet(ctx context.Context, rawURL string, wantSize int64) ([]byte, error) {
	if strings.HasPrefix(rawURL, "file://") || strings.HasPrefix(rawURL, "/") {
		return f.readLocal(rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errcode.Wrap(errcode.Network, err, "build request for %s", rawURL)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, errcode.Wrap(errcode.Network, err, "fetch %s", rawURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errcode.Wrap(errcode.Network, &statusError{status: resp.StatusCode, url: rawURL}, "fetch %s", rawURL)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errcode.Wrap(errcode.Network, err, "read body from %s", rawURL)
	}
	if wantSize > 0 && int64(len(data)) != wantSize {
		return nil, errcode.New(errcode.DigestMismatch, "download from %s is %d bytes, expected %d", rawURL, len(data), wantSize)
	}
	return data, nil
}

func (f *Fetcher) readLocal(rawURL string) ([]byte, error) {
	path := strings.TrimPrefix(rawURL, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errcode.Wrap(errcode.IO, err, "read local source %s", path)
	}
	return data, nil
}
