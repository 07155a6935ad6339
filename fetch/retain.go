package fetch

import (
	"context"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	cid "github.com/ipfs/go-cid"
	datastore "github.com/ipfs/go-datastore"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	"github.com/multiformats/go-multihash"

	"github.com/zeroinstall/zeroinstall/errcode"
	"github.com/zeroinstall/zeroinstall/model"
)

// ArchiveRetention holds archive bytes that a caller hands to Retain, for
// Discovery to serve to peers. The Fetcher does not call Retain: a
// Recipe keeps its downloaded files in its working directory until the
// store commit instead. It is content-addressed the way the wider Zero
// Install P2P discovery protocol addresses archives, backed by an
// IPFS-style blockstore so an on-disk or peer-shared implementation is a
// matter of swapping the datastore, not the retention API.
type ArchiveRetention struct {
	mu    sync.Mutex
	store blockstore.Blockstore
}

// NewArchiveRetention returns a retention cache backed by an in-memory
// datastore; a retained archive stays held until Release is called for
// its CID.
func NewArchiveRetention() *ArchiveRetention {
	return &ArchiveRetention{store: blockstore.NewBlockstore(datastore.NewMapDatastore())}
}

// cidFor derives a raw-codec CIDv1 from an archive's content, the same
// addressing scheme the discovery protocol's peer announcements use.
func cidFor(data []byte) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, errcode.Wrap(errcode.IO, err, "hash archive content")
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// cidFromDigest derives the same raw-codec CIDv1 addressing scheme from
// an implementation's manifest digest, so peer discovery can be
// consulted before a digest's archive has even been downloaded.
func cidFromDigest(d model.ManifestDigest) (cid.Cid, error) {
	_, want, ok := d.Best()
	if !ok {
		return cid.Cid{}, errcode.New(errcode.NotSupported, "manifest digest has no supported algorithm")
	}
	mh, err := multihash.Sum([]byte(want), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Cid{}, errcode.Wrap(errcode.IO, err, "derive cid from digest %s", want)
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

// Retain stores data, keyed by its content hash, and returns the CID
// other steps of the same recipe (or a peer's discovery announcement)
// can use to reference it.
func (r *ArchiveRetention) Retain(ctx context.Context, data []byte) (cid.Cid, error) {
	c, err := cidFor(data)
	if err != nil {
		return cid.Cid{}, err
	}
	block, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return cid.Cid{}, errcode.Wrap(errcode.IO, err, "wrap retained archive block")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.store.Put(ctx, block); err != nil {
		return cid.Cid{}, errcode.Wrap(errcode.IO, err, "retain archive block %s", c)
	}
	return c, nil
}

// Fetch returns previously retained archive bytes for c, if still held.
func (r *ArchiveRetention) Fetch(ctx context.Context, c cid.Cid) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, err := r.store.Get(ctx, c)
	if err != nil {
		return nil, false
	}
	return block.RawData(), true
}

// Release drops c from retention once the recipe it belonged to has
// committed or failed.
func (r *ArchiveRetention) Release(ctx context.Context, c cid.Cid) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.store.DeleteBlock(ctx, c)
}
