package canon

import "testing"

func TestExpandShorthand(t *testing.T) {
	got := ExpandShorthand("8/5(2) 6/3*(2)")
	want := []Token{
		{From: 8, To: 5},
		{From: 8, To: 5},
		{From: 6, To: 3, Hit: true},
		{From: 6, To: 3},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEqualIgnoresOrderAndShorthand(t *testing.T) {
	if !Equal("8/5(2) 6/3*(2)", "6/3* 8/5 6/3 8/5") {
		t.Fatal("expected canonically equal move texts to compare equal")
	}
}

func TestEqualDetectsDifference(t *testing.T) {
	if Equal("8/5 6/3", "8/5 6/4") {
		t.Fatal("expected different destinations to compare unequal")
	}
}

func TestBarAndOffNotation(t *testing.T) {
	a := Canonical("bar/19* 24/18 6/off")
	b := Canonical("25/19* 24/18 6/0")
	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("expected 3 tokens each, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bar/off notation did not normalize identically: %v vs %v", a, b)
		}
	}
}

func TestEqualParts(t *testing.T) {
	a := []Part{{From: 25, To: 19, Hit: true}, {From: 24, To: 18}}
	b := []Part{{From: 24, To: 18}, {From: 25, To: 19, Hit: true}}
	if !EqualParts(a, b) {
		t.Fatal("expected reordered identical parts to be canonically equal")
	}
}
