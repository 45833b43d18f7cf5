/*
Package volumes provides the page-addressing contract the buffer pool
fixes pages through, and a BoltDB-backed volume/device registry durable
across restarts.

# Architecture

	┌──────────────────── VOLUME REGISTRY ─────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            BoltStore                        │          │
	│  │  - File: <dataDir>/ember.db                 │          │
	│  │  - Format: B+tree with MVCC                 │          │
	│  │  - Transactions: ACID with fsync            │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Bucket Structure                │          │
	│  │  ┌────────────────────────────┐             │          │
	│  │  │ devices        (VolumeID)  │  <- chkpt_dev_tab source │
	│  │  │ pages_<id>     (page num)  │  one bucket per mounted volume │
	│  │  └────────────────────────────┘             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │        Transaction Management                │          │
	│  │  - Read: db.View()  - concurrent reads       │          │
	│  │  - Write: db.Update() - serialized, fsync'd  │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Volume abstraction

A Volume is the narrow contract the buffer pool depends on (spec.md §1:
"Volume/file layout specifics beyond the page-addressing contract used by
the buffer pool" are out of scope here): fixed-size pages addressed by
page number, read and written as whole blocks, with an explicit Sync
boundary the page cleaner calls after a run of writes.

# Registry

Registry.Mount durably records a DeviceInfo (id, path, page size, page
count) in the devices bucket and returns a live Volume handle backed by a
per-volume page bucket. ListDevices returns that same durable table — it
is the chkpt_dev_tab source of truth the checkpoint manager reads on every
checkpoint cycle.

# Usage

	reg, err := volumes.NewBoltStore(dataDir)
	vol, err := reg.Mount(volumes.DeviceInfo{ID: 1, Path: "main", PageSize: 8192, NumPages: 1 << 20})
	page, err := vol.ReadPage(42)
	err = vol.WritePage(42, buf)
	err = vol.Sync()
*/
package volumes
