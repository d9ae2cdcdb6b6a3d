package board

import "testing"

func TestStartingPositionInvariants(t *testing.T) {
	b := StartingPosition()
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("starting position violates invariants: %v", err)
	}
	if b.CheckerSum(P1) != 15 || b.CheckerSum(P2) != 15 {
		t.Fatalf("expected 15 checkers per side, got %d/%d", b.CheckerSum(P1), b.CheckerSum(P2))
	}
}

func TestApplyMovePartsPreservesCheckerCount(t *testing.T) {
	b := StartingPosition()
	b.Turn = P1
	b.ApplyMoveParts(P1, []Part{
		{From: 8, To: 5, Hit: false},
		{From: 6, To: 5, Hit: false},
	})
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("after move, invariants violated: %v", err)
	}
	if b.CheckerSum(P1) != 15 {
		t.Fatalf("P1 checker count changed: got %d", b.CheckerSum(P1))
	}
}

func TestApplyMovePartsHitSendsOpponentToBar(t *testing.T) {
	var b Board
	b.CubeValue = 1
	b.Checkers[0][24] = 1 // P1 checker on point 24
	b.Checkers[1][1] = 1  // P2 checker on their point 1 == P1's point 24... use distinct slot
	// Put a lone P2 checker on P1's point 18 (P2's own-perspective slot differs;
	// for this unit test we only exercise the hit bookkeeping on the shared slot index).
	b.Checkers[1][18] = 1
	b.ApplyMoveParts(P1, []Part{{From: 24, To: 18, Hit: true}})

	if b.Checkers[0][18] != 1 {
		t.Fatalf("expected P1 checker to land on 18, got %d", b.Checkers[0][18])
	}
	if b.Checkers[1][18] != 0 {
		t.Fatalf("expected P2 checker removed from 18, got %d", b.Checkers[1][18])
	}
	if b.Checkers[1][25] != 1 {
		t.Fatalf("expected hit P2 checker sent to bar, got %d", b.Checkers[1][25])
	}
}

func TestApplyMovePartsSkipsEmptySource(t *testing.T) {
	b := StartingPosition()
	before := b
	b.ApplyMoveParts(P1, []Part{{From: 1, To: 0, Hit: false}}) // point 1 is empty at start
	if b != before {
		t.Fatalf("move from empty source should be a no-op")
	}
}

func TestApplyMovePartsSkipsOutOfRange(t *testing.T) {
	b := StartingPosition()
	before := b
	b.ApplyMoveParts(P1, []Part{{From: 99, To: 3, Hit: false}})
	if b != before {
		t.Fatalf("out-of-range move should be a no-op")
	}
}

func TestCheckInvariantsRejectsBadCube(t *testing.T) {
	b := StartingPosition()
	b.CubeValue = 3
	if err := b.CheckInvariants(); err == nil {
		t.Fatalf("expected error for non-power-of-two cube value")
	}
}

func TestPlayerOther(t *testing.T) {
	if P1.Other() != P2 || P2.Other() != P1 {
		t.Fatalf("Other() did not swap players correctly")
	}
}
