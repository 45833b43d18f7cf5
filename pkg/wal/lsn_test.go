package wal

import "testing"

func TestLSNPackUnpackRoundTrip(t *testing.T) {
	lsn := LSN{Partition: 7, Offset: 123456}
	got := Unpack(lsn.Pack())
	if got != lsn {
		t.Fatalf("round trip mismatch: got %v want %v", got, lsn)
	}
}

func TestLSNOrdering(t *testing.T) {
	a := LSN{Partition: 1, Offset: 100}
	b := LSN{Partition: 1, Offset: 200}
	c := LSN{Partition: 2, Offset: 0}

	if !a.Less(b) {
		t.Fatal("expected a < b within same partition")
	}
	if !b.Less(c) {
		t.Fatal("expected b < c across partitions")
	}
	if a.Less(a) {
		t.Fatal("LSN must not be less than itself")
	}
	if !a.LessEqual(a) {
		t.Fatal("LessEqual must hold for equal LSNs")
	}
}

func TestLSNNullAndMax(t *testing.T) {
	if !Null.IsNull() {
		t.Fatal("Null.IsNull() must be true")
	}
	if (LSN{Partition: 1}).IsNull() {
		t.Fatal("non-zero LSN must not report IsNull")
	}
	if !(LSN{Partition: 5, Offset: 5}).Less(Max) {
		t.Fatal("Max must sort after any real LSN")
	}
}

func TestLSNMin(t *testing.T) {
	a := LSN{Partition: 3, Offset: 10}
	b := LSN{Partition: 2, Offset: 99999}
	if Min(a, b) != b {
		t.Fatalf("Min(%v, %v) = wrong value", a, b)
	}
	if Min(b, a) != b {
		t.Fatal("Min must be symmetric")
	}
}
