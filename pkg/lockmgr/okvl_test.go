package lockmgr

import "testing"

func TestBaseCompatibilityMatrixSymmetricCases(t *testing.T) {
	cases := []struct {
		held, requested BaseMode
		want            bool
	}{
		{N, X, true},
		{IS, IS, true},
		{IS, X, false},
		{IX, IX, true},
		{IX, S, false},
		{S, S, true},
		{S, X, false},
		{X, N, true},
		{X, IS, false},
	}
	for _, c := range cases {
		if got := baseCompatible(c.held, c.requested); got != c.want {
			t.Errorf("baseCompatible(%v,%v) = %v, want %v", c.held, c.requested, got, c.want)
		}
	}
}

func TestBaseSupremumIXAndSMakesSIX(t *testing.T) {
	if got := baseSupremum(IX, S); got != SIX {
		t.Fatalf("baseSupremum(IX,S) = %v, want SIX", got)
	}
	if got := baseSupremum(S, IX); got != SIX {
		t.Fatalf("baseSupremum(S,IX) = %v, want SIX", got)
	}
}

func TestBaseSupremumSameModeIsIdempotent(t *testing.T) {
	for m := N; m < numBaseModes; m++ {
		if got := baseSupremum(m, m); got != m {
			t.Errorf("baseSupremum(%v,%v) = %v, want %v", m, m, got, m)
		}
	}
}

func TestModeCompatibleChecksKeyAndGapIndependently(t *testing.T) {
	granted := Mode{Key: S, Gap: N}
	if !Compatible(granted, Mode{Key: S, Gap: X}) {
		t.Fatal("S key with N gap should allow a concurrent S-key/X-gap request")
	}
	if Compatible(granted, Mode{Key: X, Gap: N}) {
		t.Fatal("S key should not be compatible with a concurrent X-key request")
	}
}

func TestCoversRequiresBothComponents(t *testing.T) {
	have := Mode{Key: X, Gap: S}
	if !Covers(have, Mode{Key: S, Gap: S}) {
		t.Fatal("holding X/S should cover a request for S/S")
	}
	if Covers(have, Mode{Key: X, Gap: X}) {
		t.Fatal("holding X/S should not cover a request for X/X")
	}
}

func TestCoversTreatsSAndIXAsIncomparable(t *testing.T) {
	s := Mode{Key: S, Gap: S}
	ix := Mode{Key: IX, Gap: IX}
	if Covers(s, ix) {
		t.Fatal("holding S should not cover a request for IX; they sit on separate branches of the lattice")
	}
	if Covers(ix, s) {
		t.Fatal("holding IX should not cover a request for S")
	}
	six := Mode{Key: SIX, Gap: SIX}
	if !Covers(six, s) {
		t.Fatal("holding SIX should cover a request for S")
	}
	if !Covers(six, ix) {
		t.Fatal("holding SIX should cover a request for IX")
	}
}

func TestSupremumOfDistinctCompositeModes(t *testing.T) {
	got := Supremum(Mode{Key: IX, Gap: N}, Mode{Key: S, Gap: S})
	want := Mode{Key: SIX, Gap: S}
	if got != want {
		t.Fatalf("Supremum = %v, want %v", got, want)
	}
}

func TestModeStringRoundTripsComponents(t *testing.T) {
	if got := ModeX.String(); got != "XX" {
		t.Fatalf("ModeX.String() = %q, want %q", got, "XX")
	}
	if !ModeN.IsNull() {
		t.Fatal("ModeN should be null")
	}
	if ModeX.IsNull() {
		t.Fatal("ModeX should not be null")
	}
}
