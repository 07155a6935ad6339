package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	cid "github.com/ipfs/go-cid"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/zeroinstall/zeroinstall/internal/dcontext"
)

// announcePort is the UDP port peers broadcast and listen for store
// announcements on; chosen in the ephemeral-but-documented range so it
// doesn't collide with a well-known service.
const announcePort = 53317

// announceInterval is how often a Discovery re-broadcasts its known CIDs.
const announceInterval = 30 * time.Second

// announcement is the wire payload of one UDP broadcast: the sender's
// HTTP archive-serving address and the CIDs it currently holds.
type announcement struct {
	HTTPAddr string   `json:"http_addr"`
	CIDs     []string `json:"cids"`
}

// Discovery implements the ImplementationDiscovery helper (spec §4.6): it
// listens on a local UDP port for peer-announced archive stores and
// serves its own retained archives over HTTP at "/<cid>.zip", following
// the teacher's gorilla/mux routing idiom (registry/handlers) rather than
// a bare http.ServeMux.
type Discovery struct {
	retention *ArchiveRetention
	httpAddr  string

	mu    sync.RWMutex
	peers map[string]string // cid string -> peer http address
	held  map[string]bool   // cid string -> retained locally, advertised to peers

	conn *net.UDPConn
}

// NewDiscovery returns a Discovery that serves archives retained in
// retention, advertising itself at httpAddr (e.g. "10.0.0.5:8721", the
// address its HTTP handler is actually reachable on).
func NewDiscovery(retention *ArchiveRetention, httpAddr string) *Discovery {
	return &Discovery{
		retention: retention,
		httpAddr:  httpAddr,
		peers:     make(map[string]string),
		held:      make(map[string]bool),
	}
}

// Announce records that this node now holds c, so the next broadcast
// advertises it to peers.
func (d *Discovery) Announce(c cid.Cid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.held[c.String()] = true
}

// Forget stops advertising c, once it has been released from retention.
func (d *Discovery) Forget(c cid.Cid) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.held, c.String())
}

// Handler returns the mux.Router serving retained archives at
// "/<cid>.zip", for the caller to mount on an HTTP listener. Every
// request is wrapped in a gorilla/handlers Apache Common Log Format
// line, since this server has no other caller-visible audit trail of
// which peers pulled which archives.
func (d *Discovery) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/{cid}.zip", d.serveArchive).Methods(http.MethodGet)
	return handlers.LoggingHandler(logrus.StandardLogger().Writer(), r)
}

func (d *Discovery) serveArchive(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	c, err := cid.Decode(vars["cid"])
	if err != nil {
		http.Error(w, "invalid cid", http.StatusBadRequest)
		return
	}
	data, ok := d.retention.Fetch(r.Context(), c)
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}

// Listen starts the UDP announce/listen loop; it returns once ctx is
// canceled or the socket fails to bind.
func (d *Discovery) Listen(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf(":%d", announcePort))
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return err
	}
	d.conn = conn
	defer conn.Close()

	go d.announceLoop(ctx)

	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		d.handleAnnouncement(ctx, buf[:n])
	}
}

func (d *Discovery) handleAnnouncement(ctx context.Context, raw []byte) {
	var a announcement
	if err := json.Unmarshal(raw, &a); err != nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range a.CIDs {
		d.peers[c] = a.HTTPAddr
	}
	dcontext.GetLogger(ctx).Debugf("fetch: discovery learned %d cid(s) from peer %s", len(a.CIDs), a.HTTPAddr)
}

func (d *Discovery) announceLoop(ctx context.Context) {
	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()
	broadcast := &net.UDPAddr{IP: net.IPv4bcast, Port: announcePort}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			payload, err := json.Marshal(announcement{HTTPAddr: d.httpAddr, CIDs: d.knownCIDs()})
			if err != nil {
				continue
			}
			if d.conn != nil {
				d.conn.WriteToUDP(payload, broadcast)
			}
		}
	}
}

func (d *Discovery) knownCIDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.held))
	for c := range d.held {
		out = append(out, c)
	}
	return out
}

// PeerFor returns the HTTP address of a peer known to hold c, if any.
func (d *Discovery) PeerFor(c cid.Cid) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	addr, ok := d.peers[c.String()]
	return addr, ok
}

// archiveURL builds the URL to fetch c from peer, for Fetcher.download to
// try before falling back to the feed's declared href.
func archiveURL(peerAddr string, c cid.Cid) string {
	host := peerAddr
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s/%s.zip", strings.TrimSuffix(host, "/"), c.String())
}
