package domain

import "errors"

var (
	// ErrAlreadyQueued is returned when a participant joins the queue twice.
	ErrAlreadyQueued = errors.New("already in queue")
	// ErrAlreadyInDuel is returned when a participant in an active duel tries to queue.
	ErrAlreadyInDuel = errors.New("already in a duel")
	// ErrSessionNotFound is returned when no duel is routed for a participant.
	ErrSessionNotFound = errors.New("duel session not found")
	// ErrParticipantNotFound is returned when a participant is not part of a duel.
	ErrParticipantNotFound = errors.New("participant not found in duel")
	// ErrDuelNotActive marks requests that arrive before start or after the end of a duel.
	ErrDuelNotActive = errors.New("duel is not active")
	// ErrDuelNotPending is returned when Start is called twice.
	ErrDuelNotPending = errors.New("duel already started")
	// ErrNoPendingChallenge is returned when an answer arrives with nothing to answer.
	ErrNoPendingChallenge = errors.New("no pending challenge")
	// ErrMalformedChallenge indicates a generated challenge whose answer does not match its question.
	ErrMalformedChallenge = errors.New("malformed challenge")
	// ErrUnknownOperator indicates an operator outside add, subtract, multiply, divide.
	ErrUnknownOperator = errors.New("unknown operator")
	// ErrInvalidRange indicates generator bounds that cannot produce a challenge.
	ErrInvalidRange = errors.New("invalid operand range")
)
