package transport

import "testing"

func spans(r *rangeSet) []span {
	return r.ranges
}

func TestRangeSetAddMerge(t *testing.T) {
	var r rangeSet
	r.add(10, 20)
	r.add(30, 40)
	if got := spans(&r); len(got) != 2 {
		t.Fatalf("expected 2 ranges, got %v", got)
	}
	r.add(20, 30) // bridges the gap exactly
	got := spans(&r)
	if len(got) != 1 || got[0] != (span{10, 40}) {
		t.Fatalf("expected merged [10,40), got %v", got)
	}
}

func TestRangeSetAddOverlap(t *testing.T) {
	var r rangeSet
	r.add(0, 10)
	r.add(5, 15)
	got := spans(&r)
	if len(got) != 1 || got[0] != (span{0, 15}) {
		t.Fatalf("expected [0,15), got %v", got)
	}
}

func TestRangeSetAddDisjoint(t *testing.T) {
	var r rangeSet
	r.add(100, 200)
	r.add(0, 10)
	got := spans(&r)
	if len(got) != 2 || got[0] != (span{0, 10}) || got[1] != (span{100, 200}) {
		t.Fatalf("unexpected ranges %v", got)
	}
}

func TestRangeSetRemovePrefix(t *testing.T) {
	var r rangeSet
	r.add(0, 10)
	r.add(20, 30)
	r.removePrefix(25)
	got := spans(&r)
	if len(got) != 1 || got[0] != (span{25, 30}) {
		t.Fatalf("expected [25,30), got %v", got)
	}
}

func TestRangeSetContains(t *testing.T) {
	var r rangeSet
	r.add(10, 20)
	if !r.contains(15) {
		t.Fatal("expected 15 to be contained")
	}
	if r.contains(20) {
		t.Fatal("did not expect 20 (exclusive end) to be contained")
	}
	if r.contains(9) {
		t.Fatal("did not expect 9 to be contained")
	}
}

func TestRangeSetShrink(t *testing.T) {
	var r rangeSet
	r.add(0, 1)
	r.add(2, 3)
	r.add(4, 5)
	r.shrink(1)
	if got := spans(&r); len(got) != 1 {
		t.Fatalf("expected 1 range after shrink, got %v", got)
	}
}

func TestRangeSetFirstLastEmpty(t *testing.T) {
	var r rangeSet
	if _, ok := r.first(); ok {
		t.Fatal("expected empty set")
	}
	if _, ok := r.last(); ok {
		t.Fatal("expected empty set")
	}
}
