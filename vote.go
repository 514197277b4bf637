package kaiku

import "sync"

// ApplyVote implements the idempotent up/down toggle. Requesting the
// current direction toggles the vote off; requesting the opposite flips
// it with a two-point swing. The same (current, requested) pair always
// yields the same delta.
func ApplyVote(current, requested VoteDirection) (VoteDirection, int) {
	if requested == VoteNone || current == requested {
		// Toggle off (or a no-op request): undo the current vote.
		return VoteNone, -voteValue(current)
	}
	return requested, voteValue(requested) - voteValue(current)
}

func voteValue(d VoteDirection) int {
	switch d {
	case VoteUp:
		return 1
	case VoteDown:
		return -1
	default:
		return 0
	}
}

type voteKey struct {
	Actor   ActorID
	Message MessageID
}

// VoteLedger holds the local vote records keyed by actor+message. Records
// are created on first vote, mutated on toggle, and live as long as local
// state does. Each call is a single read-modify-write under the lock.
type VoteLedger struct {
	mu    sync.Mutex
	votes map[voteKey]VoteDirection
}

func NewVoteLedger() *VoteLedger {
	return &VoteLedger{votes: make(map[voteKey]VoteDirection)}
}

// Cast applies a vote request and returns the new direction plus the score
// delta the canonical collection should absorb.
func (l *VoteLedger) Cast(actor ActorID, message MessageID, requested VoteDirection) (VoteDirection, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.votes[voteKey{actor, message}]
	newVote, delta := ApplyVote(current, requested)
	if newVote == VoteNone {
		delete(l.votes, voteKey{actor, message})
	} else {
		l.votes[voteKey{actor, message}] = newVote
	}
	return newVote, delta
}

// Current returns the actor's standing vote on a message.
func (l *VoteLedger) Current(actor ActorID, message MessageID) VoteDirection {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.votes[voteKey{actor, message}]
}
