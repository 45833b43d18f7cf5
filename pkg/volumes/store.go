// Package volumes implements the page-addressing contract the buffer pool
// (pkg/buffer) fixes pages through, plus a durable volume/device registry
// that backs the checkpoint manager's chkpt_dev_tab records.
//
// Per spec.md §1, volume/file layout specifics beyond the page-addressing
// contract are out of scope; this package intentionally stops at "a Volume
// is something you can read/write fixed-size pages from by page number",
// backed here by a single bbolt database for the single-process case.
package volumes

import "fmt"

// VolumeID identifies a mounted volume. Zero is never a live volume id.
type VolumeID uint32

// PageID is the (volume, store, page-number) tuple that identifies a page,
// per spec.md §3's Page data model.
type PageID struct {
	Volume VolumeID
	Store  uint32
	Page   uint32
}

func (p PageID) String() string {
	return fmt.Sprintf("%d.%d.%d", p.Volume, p.Store, p.Page)
}

// IsNull reports whether p is the zero PageID, used as a sentinel in BCB
// slots that do not currently hold a live page.
func (p PageID) IsNull() bool {
	return p.Volume == 0
}

// DeviceInfo is the durable metadata describing a mounted volume: the
// chkpt_dev_tab source of truth the checkpoint manager emits on every
// checkpoint (spec.md §4.7 step 7).
type DeviceInfo struct {
	ID       VolumeID
	Path     string
	PageSize uint32
	NumPages uint32
}

// Volume is the page-addressing contract the buffer pool depends on: fixed
// size pages, addressed by page number, with an explicit Sync boundary the
// page cleaner calls after writing a run of dirty pages (spec.md §4.6).
type Volume interface {
	ID() VolumeID
	PageSize() uint32
	NumPages() uint32
	ReadPage(page uint32) ([]byte, error)
	WritePage(page uint32, data []byte) error
	Sync() error
}

// Registry mounts/unmounts volumes and is the durable source of truth for
// chkpt_dev_tab. Implemented by BoltStore.
type Registry interface {
	// Mount registers (or re-opens) a volume described by info and returns
	// a handle the buffer pool can fix pages through.
	Mount(info DeviceInfo) (Volume, error)
	// Unmount detaches a volume; it does not delete its on-disk pages.
	Unmount(id VolumeID) error
	// Volume returns an already-mounted volume's handle.
	Volume(id VolumeID) (Volume, bool)
	// ListDevices returns the durable device table, ordered by volume id.
	ListDevices() ([]DeviceInfo, error)
	Close() error
}
