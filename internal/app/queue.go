package app

import "zetaduel-service/internal/domain"

// Pairing is two participants matched in arrival order.
type Pairing [2]*Participant

// MatchmakingQueue is a strict FIFO waiting list. It is not safe for concurrent
// use; SessionRegistry serializes access.
type MatchmakingQueue struct {
	waiting []*Participant
	busy    func(participantID string) bool
}

// NewMatchmakingQueue builds a queue. busy reports participants already in a duel
// and may be nil.
func NewMatchmakingQueue(busy func(participantID string) bool) *MatchmakingQueue {
	if busy == nil {
		busy = func(string) bool { return false }
	}
	return &MatchmakingQueue{busy: busy}
}

// Enqueue appends p and returns its 1-based position.
func (q *MatchmakingQueue) Enqueue(p *Participant) (int, error) {
	if q.Contains(p.ID) {
		return 0, domain.ErrAlreadyQueued
	}
	if q.busy(p.ID) {
		return 0, domain.ErrAlreadyInDuel
	}
	q.waiting = append(q.waiting, p)
	return len(q.waiting), nil
}

// Dequeue removes a waiting participant and reports whether it was queued.
func (q *MatchmakingQueue) Dequeue(participantID string) bool {
	for i, p := range q.waiting {
		if p.ID == participantID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return true
		}
	}
	return false
}

func (q *MatchmakingQueue) Contains(participantID string) bool {
	for _, p := range q.waiting {
		if p.ID == participantID {
			return true
		}
	}
	return false
}

func (q *MatchmakingQueue) Len() int {
	return len(q.waiting)
}

// TryMatch pops the two earliest arrivals while at least two are waiting.
func (q *MatchmakingQueue) TryMatch() []Pairing {
	var pairs []Pairing
	for len(q.waiting) >= 2 {
		pairs = append(pairs, Pairing{q.waiting[0], q.waiting[1]})
		q.waiting[0], q.waiting[1] = nil, nil
		q.waiting = q.waiting[2:]
	}
	return pairs
}
