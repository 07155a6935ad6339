// Package trust implements the Trust Subsystem (spec component C3):
// deciding whether a signed feed is acceptable for a given domain, and
// persisting the fingerprint-to-domain trust relationships an operator
// has approved. The persistence shape (load-modify-save against an XML
// file, guarded by a single mutex) is grounded on the teacher's
// docker/libtrust key-trust bookkeeping used by manifest/schema1/sign.go
// before this repository's manifest formats were replaced; signature
// verification itself is done with golang.org/x/crypto/openpgp, which the
// teacher already vendors for its own JWS/libtrust code paths.
package trust

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/zeroinstall/zeroinstall/errcode"
)

// DomainSet is a case-insensitive set of DNS domain names a fingerprint
// is trusted for.
type DomainSet map[string]struct{}

func newDomainSet(domains ...string) DomainSet {
	s := make(DomainSet, len(domains))
	for _, d := range domains {
		s[normalizeDomain(d)] = struct{}{}
	}
	return s
}

func normalizeDomain(d string) string { return strings.ToLower(strings.TrimSpace(d)) }

// Contains reports whether domain is a member, case-insensitively.
func (s DomainSet) Contains(domain string) bool {
	_, ok := s[normalizeDomain(domain)]
	return ok
}

// sorted returns the domain set's members in stable order, for
// deterministic XML output.
func (s DomainSet) sorted() []string {
	out := make([]string, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DB is a persisted fingerprint -> DomainSet mapping, guarded by a single
// mutex for the load-modify-save critical sections spec §5 calls for.
type DB struct {
	path string

	mu      sync.Mutex
	byKey   map[string]DomainSet // fingerprint -> domains
}

// xmlDoc / xmlKey mirror the on-disk <trusted-keys> XML schema.
type xmlDoc struct {
	XMLName xml.Name `xml:"trusted-keys"`
	Keys    []xmlKey `xml:"key"`
}

type xmlKey struct {
	Fingerprint string   `xml:"fingerprint,attr"`
	Domains     []string `xml:"domain"`
}

// Open loads the trust database from path, or returns an empty DB if the
// file does not yet exist.
func Open(path string) (*DB, error) {
	db := &DB{path: path, byKey: make(map[string]DomainSet)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return db, nil
		}
		return nil, errcode.Wrap(errcode.IO, err, "read trust db %s", path)
	}
	var doc xmlDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errcode.Wrap(errcode.ParseError, err, "parse trust db %s", path)
	}
	for _, k := range doc.Keys {
		db.byKey[k.Fingerprint] = newDomainSet(k.Domains...)
	}
	return db, nil
}

// IsTrusted reports whether fingerprint is trusted for domain.
func (db *DB) IsTrusted(fingerprint, domain string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	set, ok := db.byKey[fingerprint]
	return ok && set.Contains(domain)
}

// Trust records that fingerprint is trusted for domain and persists the
// database atomically (temp file + rename).
func (db *DB) Trust(fingerprint, domain string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	set, ok := db.byKey[fingerprint]
	if !ok {
		set = newDomainSet()
		db.byKey[fingerprint] = set
	}
	set[normalizeDomain(domain)] = struct{}{}
	return db.saveLocked()
}

// Untrust removes the (fingerprint, domain) relationship, if present.
func (db *DB) Untrust(fingerprint, domain string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	set, ok := db.byKey[fingerprint]
	if !ok {
		return nil
	}
	delete(set, normalizeDomain(domain))
	if len(set) == 0 {
		delete(db.byKey, fingerprint)
	}
	return db.saveLocked()
}

func (db *DB) saveLocked() error {
	var doc xmlDoc
	fingerprints := make([]string, 0, len(db.byKey))
	for fp := range db.byKey {
		fingerprints = append(fingerprints, fp)
	}
	sort.Strings(fingerprints)
	for _, fp := range fingerprints {
		doc.Keys = append(doc.Keys, xmlKey{Fingerprint: fp, Domains: db.byKey[fp].sorted()})
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errcode.Wrap(errcode.IO, err, "marshal trust db")
	}

	if err := os.MkdirAll(filepath.Dir(db.path), 0o755); err != nil {
		return errcode.Wrap(errcode.IO, err, "create trust db directory")
	}
	tmp := db.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errcode.Wrap(errcode.IO, err, "write trust db temp file")
	}
	if err := os.Rename(tmp, db.path); err != nil {
		os.Remove(tmp)
		return errcode.Wrap(errcode.IO, err, "commit trust db %s", db.path)
	}
	return nil
}
