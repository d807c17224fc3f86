package app

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/domain"
)

// SessionStore abstracts where active duels are tracked (in-memory, Redis, etc).
// Implementations keep the session and participant indexes consistent: Remove drops
// the session and the routes of all its participants together.
type SessionStore interface {
	Add(session *DuelSession)
	Get(sessionID string) (*DuelSession, bool)
	ForParticipant(participantID string) (*DuelSession, bool)
	Remove(sessionID string) bool
	Count() int
}

// OutcomePublisher announces finished duels to external observers.
type OutcomePublisher interface {
	PublishOutcome(outcome domain.DuelOutcome) error
}

// RegistryOptions tunes duel creation. Zero values fall back to defaults.
type RegistryOptions struct {
	Clock        clockwork.Clock
	Generator    *ChallengeGenerator
	Publisher    OutcomePublisher
	NewID        func() string
	TimeLimit    int // seconds
	Challenges   int
	TickInterval time.Duration
}

// Stats is the operational snapshot exposed on /stats.
type Stats struct {
	QueueLength    int `json:"queueLength"`
	ActiveSessions int `json:"activeSessions"`
}

// SessionRegistry routes participant events to the matchmaking queue or to the
// participant's active duel and reclaims duels when they end.
type SessionRegistry struct {
	mu       sync.Mutex
	queue    *MatchmakingQueue
	sessions SessionStore
	rooms    Broadcaster
	opts     RegistryOptions
}

func NewSessionRegistry(store SessionStore, rooms Broadcaster, opts RegistryOptions) *SessionRegistry {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Generator == nil {
		opts.Generator = NewChallengeGenerator()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = DefaultTimeLimit
	}
	if opts.Challenges <= 0 {
		opts.Challenges = DefaultSequenceLength
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}

	r := &SessionRegistry{
		sessions: store,
		rooms:    rooms,
		opts:     opts,
	}
	// An ended duel awaiting reclaim no longer holds its participants.
	r.queue = NewMatchmakingQueue(func(id string) bool {
		session, ok := store.ForParticipant(id)
		return ok && session.Status() == StatusActive
	})
	return r
}

// JoinQueue queues p and starts a duel for every pair that becomes available.
// Rejected joins are reported to the participant as an error message.
func (r *SessionRegistry) JoinQueue(p *Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	position, err := r.queue.Enqueue(p)
	if err != nil {
		log.Debug().Err(err).Str("participant_id", p.ID).Msg("join rejected")
		p.Send(domain.NewError("Already in queue or in duel"))
		return err
	}
	p.Send(domain.Message{Type: domain.MsgQueueJoined, Payload: domain.QueueJoined{Position: position}})
	log.Info().Str("participant_id", p.ID).Int("queue_size", r.queue.Len()).Msg("participant joined queue")

	for _, pair := range r.queue.TryMatch() {
		r.startDuelLocked(pair)
	}
	return nil
}

// LeaveQueue removes a waiting participant. Active duels are unaffected.
func (r *SessionRegistry) LeaveQueue(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.queue.Dequeue(participantID) {
		log.Info().Str("participant_id", participantID).Int("queue_size", r.queue.Len()).Msg("participant left queue")
	}
}

// SubmitAnswer forwards an answer to the participant's duel.
func (r *SessionRegistry) SubmitAnswer(participantID string, answer int) (bool, error) {
	session, ok := r.sessionFor(participantID)
	if !ok {
		log.Debug().Str("participant_id", participantID).Msg("answer without active duel")
		return false, domain.ErrSessionNotFound
	}
	return session.SubmitAnswer(participantID, answer)
}

// Disconnect drops the participant from the queue and ends any duel it is in.
func (r *SessionRegistry) Disconnect(participantID string) {
	r.mu.Lock()
	r.queue.Dequeue(participantID)
	session, ok := r.sessions.ForParticipant(participantID)
	r.mu.Unlock()

	if !ok {
		return
	}
	// The session's end hook reclaims it; the explicit call covers a duel that
	// ended concurrently and has not been reclaimed yet.
	session.HandleDisconnect(participantID)
	r.reclaim(session.ID())
}

func (r *SessionRegistry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		QueueLength:    r.queue.Len(),
		ActiveSessions: r.sessions.Count(),
	}
}

func (r *SessionRegistry) sessionFor(participantID string) (*DuelSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions.ForParticipant(participantID)
}

func (r *SessionRegistry) startDuelLocked(pair Pairing) {
	seq, err := r.opts.Generator.Sequence(r.opts.Challenges)
	if err != nil {
		log.Error().Err(err).
			Str("player1", pair[0].ID).
			Str("player2", pair[1].ID).
			Msg("aborting duel creation")
		for _, p := range pair {
			p.Send(domain.NewError("Could not create duel, please join again"))
		}
		return
	}

	session := NewDuelSession(r.opts.NewID(), pair[0], pair[1], seq, DuelOptions{
		Rooms:        r.rooms,
		Clock:        r.opts.Clock,
		TimeLimit:    r.opts.TimeLimit,
		TickInterval: r.opts.TickInterval,
		OnEnd:        r.onDuelEnd,
	})
	r.sessions.Add(session)
	if err := session.Start(); err != nil {
		log.Error().Err(err).Str("session_id", session.ID()).Msg("start duel")
		r.sessions.Remove(session.ID())
	}
}

func (r *SessionRegistry) onDuelEnd(outcome domain.DuelOutcome) {
	r.reclaim(outcome.Result.SessionID)
	if r.opts.Publisher == nil {
		return
	}
	if err := r.opts.Publisher.PublishOutcome(outcome); err != nil {
		log.Warn().Err(err).Str("session_id", outcome.Result.SessionID).Msg("publish duel outcome")
	}
}

// reclaim removes an ended duel and all of its participant routes. Only the first
// call for a session has an effect.
func (r *SessionRegistry) reclaim(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sessions.Remove(sessionID) {
		return false
	}
	log.Debug().Str("session_id", sessionID).Int("active_sessions", r.sessions.Count()).Msg("duel reclaimed")
	return true
}
