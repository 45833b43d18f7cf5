package lockmgr

import (
	"testing"

	"github.com/cuemby/ember/pkg/emberr"
	"github.com/cuemby/ember/pkg/wal"
)

func TestLILTableGrantsCompatibleModes(t *testing.T) {
	tbl := NewLILTable()
	if _, err := tbl.Request(LILIS); err != nil {
		t.Fatalf("IS should be granted immediately: %v", err)
	}
	if _, err := tbl.Request(LILIS); err != nil {
		t.Fatalf("second IS should be granted immediately: %v", err)
	}
	if _, err := tbl.Request(LILS); err != nil {
		t.Fatalf("S should be compatible with IS: %v", err)
	}
}

func TestLILTableBlocksIncompatibleMode(t *testing.T) {
	tbl := NewLILTable()
	if _, err := tbl.Request(LILX); err != nil {
		t.Fatalf("uncontended X should be granted: %v", err)
	}
	_, err := tbl.Request(LILIS)
	if emberr.Of(err) != emberr.KindLockTimeout {
		t.Fatalf("expected KindLockTimeout, got %v (err=%v)", emberr.Of(err), err)
	}
}

func TestLILTableReleaseUnblocksWaiters(t *testing.T) {
	tbl := NewLILTable()
	if _, err := tbl.Request(LILX); err != nil {
		t.Fatalf("X grant failed: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		_, err := tbl.Request(LILS)
		done <- err
	}()

	tbl.Release(LILX, wal.Null)

	if err := <-done; err != nil {
		t.Fatalf("S request should succeed once X is released: %v", err)
	}
}

func TestLILTableReleaseRecordsXLockTag(t *testing.T) {
	tbl := NewLILTable()
	if _, err := tbl.Request(LILX); err != nil {
		t.Fatalf("X grant failed: %v", err)
	}
	commitLSN := wal.LSN{Partition: 1, Offset: 100}
	tbl.Release(LILX, commitLSN)

	got, err := tbl.Request(LILIS)
	if err != nil {
		t.Fatalf("IS grant failed: %v", err)
	}
	if got != commitLSN {
		t.Fatalf("xLockTag = %v, want %v", got, commitLSN)
	}
}

func TestVolTableLazilyCreatesStoreTables(t *testing.T) {
	v := NewVolTable()
	a := v.Store(1)
	b := v.Store(1)
	if a != b {
		t.Fatal("Store should return the same table for the same store id")
	}
	c := v.Store(2)
	if a == c {
		t.Fatal("Store should return distinct tables for distinct store ids")
	}
}
