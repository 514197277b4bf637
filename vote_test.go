package kaiku

import "testing"

func TestApplyVoteToggleTable(t *testing.T) {
	cases := []struct {
		current   VoteDirection
		requested VoteDirection
		wantVote  VoteDirection
		wantDelta int
	}{
		{VoteNone, VoteUp, VoteUp, 1},
		{VoteNone, VoteDown, VoteDown, -1},
		{VoteUp, VoteUp, VoteNone, -1},
		{VoteDown, VoteDown, VoteNone, 1},
		{VoteUp, VoteDown, VoteDown, -2},
		{VoteDown, VoteUp, VoteUp, 2},
	}

	for _, tc := range cases {
		gotVote, gotDelta := ApplyVote(tc.current, tc.requested)
		if gotVote != tc.wantVote || gotDelta != tc.wantDelta {
			t.Errorf("ApplyVote(%s, %s) = (%s, %d), want (%s, %d)",
				tc.current, tc.requested, gotVote, gotDelta, tc.wantVote, tc.wantDelta)
		}
	}
}

func TestApplyVoteIsIdempotentPair(t *testing.T) {
	// The same (current, requested) pair always yields the same delta.
	for _, current := range []VoteDirection{VoteNone, VoteUp, VoteDown} {
		for _, requested := range []VoteDirection{VoteUp, VoteDown} {
			v1, d1 := ApplyVote(current, requested)
			v2, d2 := ApplyVote(current, requested)
			if v1 != v2 || d1 != d2 {
				t.Errorf("ApplyVote(%s, %s) not deterministic", current, requested)
			}
		}
	}
}

func TestDoubleVoteTogglesOff(t *testing.T) {
	// up then up again from none: back to none with net delta 0.
	vote, d1 := ApplyVote(VoteNone, VoteUp)
	vote, d2 := ApplyVote(vote, VoteUp)
	if vote != VoteNone {
		t.Errorf("double up-vote should return to none, got %s", vote)
	}
	if d1+d2 != 0 {
		t.Errorf("net delta of a toggle should be 0, got %d", d1+d2)
	}
}

func TestVoteLedgerCast(t *testing.T) {
	l := NewVoteLedger()
	actor := ActorID("sanna")
	msg := MessageID("m1")

	if vote, delta := l.Cast(actor, msg, VoteUp); vote != VoteUp || delta != 1 {
		t.Errorf("first up-vote: got (%s, %d)", vote, delta)
	}
	if l.Current(actor, msg) != VoteUp {
		t.Errorf("ledger should remember the standing vote")
	}

	// Flip to down: two-point swing.
	if vote, delta := l.Cast(actor, msg, VoteDown); vote != VoteDown || delta != -2 {
		t.Errorf("flip to down: got (%s, %d)", vote, delta)
	}

	// Toggle off.
	if vote, delta := l.Cast(actor, msg, VoteDown); vote != VoteNone || delta != 1 {
		t.Errorf("toggle off: got (%s, %d)", vote, delta)
	}
	if l.Current(actor, msg) != VoteNone {
		t.Errorf("record should be cleared after toggle off")
	}
}

func TestVoteLedgerIsPerActorAndMessage(t *testing.T) {
	l := NewVoteLedger()

	l.Cast("a", "m1", VoteUp)
	if l.Current("b", "m1") != VoteNone {
		t.Errorf("votes must not leak across actors")
	}
	if l.Current("a", "m2") != VoteNone {
		t.Errorf("votes must not leak across messages")
	}
}
