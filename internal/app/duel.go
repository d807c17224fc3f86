package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/domain"
)

// DefaultTimeLimit is the duel length in seconds.
const DefaultTimeLimit = 120

// Channel delivers messages to one participant. Send must not block.
type Channel interface {
	Send(msg domain.Message)
}

// Broadcaster groups participant channels into rooms for group-wide messages.
type Broadcaster interface {
	Join(room, participantID string, ch Channel)
	Leave(room, participantID string)
	Broadcast(room string, msg domain.Message)
}

// Participant is one side of a duel. Score, cursor and current challenge are
// only mutated by the owning DuelSession.
type Participant struct {
	ID      string
	channel Channel

	score   int
	cursor  int
	current *domain.Challenge
}

func NewParticipant(id string, ch Channel) *Participant {
	return &Participant{ID: id, channel: ch}
}

// Send forwards a message to the participant's transport channel.
func (p *Participant) Send(msg domain.Message) {
	if p.channel != nil {
		p.channel.Send(msg)
	}
}

// Status is the lifecycle state of a duel.
type Status int

const (
	StatusPending Status = iota
	StatusActive
	StatusEnded
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusEnded:
		return "ended"
	}
	return "unknown"
}

// DuelOptions configures a DuelSession. Zero values fall back to defaults.
type DuelOptions struct {
	Rooms        Broadcaster
	Clock        clockwork.Clock
	TimeLimit    int // seconds
	TickInterval time.Duration
	// OnEnd runs once, outside the session lock, after the duel ends.
	OnEnd func(domain.DuelOutcome)
}

// DuelSession is the state machine for one two-player duel.
type DuelSession struct {
	id       string
	players  [2]*Participant
	sequence Sequence
	rooms    Broadcaster
	clock    clockwork.Clock
	interval time.Duration
	onEnd    func(domain.DuelOutcome)
	log      zerolog.Logger

	mu            sync.Mutex
	status        Status
	timeRemaining int
	startedAt     time.Time
	ticker        clockwork.Ticker
	stop          chan struct{}
}

func NewDuelSession(id string, a, b *Participant, seq Sequence, opts DuelOptions) *DuelSession {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.TimeLimit <= 0 {
		opts.TimeLimit = DefaultTimeLimit
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Rooms == nil {
		opts.Rooms = noopRooms{}
	}
	return &DuelSession{
		id:            id,
		players:       [2]*Participant{a, b},
		sequence:      seq,
		rooms:         opts.Rooms,
		clock:         opts.Clock,
		interval:      opts.TickInterval,
		onEnd:         opts.OnEnd,
		log:           log.With().Str("session_id", id).Logger(),
		status:        StatusPending,
		timeRemaining: opts.TimeLimit,
	}
}

func (s *DuelSession) ID() string { return s.id }

// ParticipantIDs returns both participant ids in seat order.
func (s *DuelSession) ParticipantIDs() []string {
	return []string{s.players[0].ID, s.players[1].ID}
}

// Sequence exposes the shared, read-only challenge list.
func (s *DuelSession) Sequence() Sequence { return s.sequence }

func (s *DuelSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Start moves the duel from Pending to Active, issues the first challenge to each
// participant and begins the countdown.
func (s *DuelSession) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusPending {
		return domain.ErrDuelNotPending
	}
	s.status = StatusActive
	s.startedAt = s.clock.Now()

	for _, p := range s.players {
		p.score = 0
		p.cursor = 0
		p.current = nil
		s.rooms.Join(s.id, p.ID, p.channel)
	}

	s.rooms.Broadcast(s.id, domain.Message{Type: domain.MsgDuelStart, Payload: domain.DuelStart{
		SessionID:     s.id,
		Participants:  s.scoresLocked(),
		TimeRemaining: s.timeRemaining,
	}})

	for _, p := range s.players {
		s.issueLocked(p)
	}

	s.ticker = s.clock.NewTicker(s.interval)
	s.stop = make(chan struct{})
	go s.countdown(s.ticker, s.stop)

	s.log.Info().
		Str("player1", s.players[0].ID).
		Str("player2", s.players[1].ID).
		Int("challenges", len(s.sequence)).
		Msg("duel started")
	return nil
}

func (s *DuelSession) countdown(ticker clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if outcome, ended := s.tick(); ended {
				s.finish(outcome)
				return
			}
		}
	}
}

// tick runs one countdown step. Ticks delivered after the end are discarded.
func (s *DuelSession) tick() (domain.DuelOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return domain.DuelOutcome{}, false
	}
	s.timeRemaining--
	s.rooms.Broadcast(s.id, domain.Message{Type: domain.MsgTimeUpdate, Payload: domain.TimeUpdate{
		TimeRemaining: s.timeRemaining,
	}})
	if s.timeRemaining > 0 {
		return domain.DuelOutcome{}, false
	}
	return s.endLocked(domain.EndTimeout)
}

// issueLocked sends the participant the challenge at its cursor. Past the end of the
// sequence nothing is sent and the participant keeps no pending challenge.
func (s *DuelSession) issueLocked(p *Participant) {
	c := s.sequence.At(p.cursor)
	if c == nil {
		p.current = nil
		s.log.Info().Str("participant_id", p.ID).Int("cursor", p.cursor).Msg("challenge sequence exhausted")
		return
	}
	p.Send(domain.Message{Type: domain.MsgNewChallenge, Payload: domain.NewChallenge{Question: c.Question}})
	p.current = c
	p.cursor++
}

// SubmitAnswer scores an answer against the participant's pending challenge and
// reports whether it was correct. Requests that cannot be scored return an error
// and leave the duel untouched.
func (s *DuelSession) SubmitAnswer(participantID string, answer int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return false, domain.ErrDuelNotActive
	}
	p := s.playerLocked(participantID)
	if p == nil {
		return false, domain.ErrParticipantNotFound
	}
	if p.current == nil {
		return false, domain.ErrNoPendingChallenge
	}

	if answer != p.current.Answer {
		p.Send(domain.Message{Type: domain.MsgAnswerResult, Payload: domain.AnswerResult{Correct: false}})
		return false, nil
	}

	p.score++
	p.current = nil
	s.rooms.Broadcast(s.id, domain.Message{Type: domain.MsgScoreUpdate, Payload: domain.ScoreUpdate{
		Scores: s.scoresLocked(),
	}})
	s.issueLocked(p)
	p.Send(domain.Message{Type: domain.MsgAnswerResult, Payload: domain.AnswerResult{Correct: true}})
	return true, nil
}

// End terminates an active duel. Repeated calls are no-ops.
func (s *DuelSession) End() {
	s.endWith(domain.EndTimeout)
}

// HandleDisconnect tells the remaining participant their opponent left and ends the
// duel with the current scores.
func (s *DuelSession) HandleDisconnect(participantID string) {
	s.mu.Lock()
	if s.status != StatusActive {
		s.mu.Unlock()
		return
	}
	s.log.Info().Str("participant_id", participantID).Msg("participant disconnected mid-duel")
	for _, p := range s.players {
		if p.ID != participantID {
			p.Send(domain.Message{Type: domain.MsgOpponentDisconnected})
		}
	}
	outcome, ended := s.endLocked(domain.EndDisconnect)
	s.mu.Unlock()

	if ended {
		s.finish(outcome)
	}
}

func (s *DuelSession) endWith(reason domain.EndReason) {
	s.mu.Lock()
	outcome, ended := s.endLocked(reason)
	s.mu.Unlock()

	if ended {
		s.finish(outcome)
	}
}

// endLocked performs the Active -> Ended transition at most once.
func (s *DuelSession) endLocked(reason domain.EndReason) (domain.DuelOutcome, bool) {
	if s.status != StatusActive {
		return domain.DuelOutcome{}, false
	}
	s.status = StatusEnded
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.stop != nil {
		close(s.stop)
	}

	now := s.clock.Now()
	result := domain.DuelResult{
		SessionID: s.id,
		Players:   s.scoresLocked(),
		Winner:    s.winnerLocked(),
		Duration:  int(now.Sub(s.startedAt) / time.Second),
	}
	s.rooms.Broadcast(s.id, domain.Message{Type: domain.MsgDuelEnd, Payload: result})
	for _, p := range s.players {
		s.rooms.Leave(s.id, p.ID)
	}

	players := zerolog.Arr()
	for _, p := range s.players {
		players.Dict(zerolog.Dict().Str("id", p.ID).Int("score", p.score).Int("reached", p.cursor))
	}
	evt := s.log.Info().Str("reason", string(reason)).Int("duration", result.Duration).Array("players", players)
	if result.Winner != nil {
		evt = evt.Str("winner", *result.Winner)
	} else {
		evt = evt.Bool("draw", true)
	}
	evt.Msg("duel ended")

	return domain.DuelOutcome{Result: result, Reason: reason, EndedAt: now}, true
}

func (s *DuelSession) finish(outcome domain.DuelOutcome) {
	if s.onEnd != nil {
		s.onEnd(outcome)
	}
}

// winnerLocked returns the unique top scorer, or nil when the top score is shared.
func (s *DuelSession) winnerLocked() *string {
	best := -1
	var leaders []*Participant
	for _, p := range s.players {
		switch {
		case p.score > best:
			best = p.score
			leaders = []*Participant{p}
		case p.score == best:
			leaders = append(leaders, p)
		}
	}
	if len(leaders) != 1 {
		return nil
	}
	id := leaders[0].ID
	return &id
}

func (s *DuelSession) playerLocked(id string) *Participant {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *DuelSession) scoresLocked() []domain.ScoreEntry {
	scores := make([]domain.ScoreEntry, 0, len(s.players))
	for _, p := range s.players {
		scores = append(scores, domain.ScoreEntry{ID: p.ID, Score: p.score})
	}
	return scores
}

// PlayerSnapshot is a read-only view of one participant's progress.
type PlayerSnapshot struct {
	ID       string
	Score    int
	Cursor   int
	Question string
}

// DuelSnapshot is a point-in-time copy of the session state.
type DuelSnapshot struct {
	ID            string
	Status        Status
	TimeRemaining int
	StartedAt     time.Time
	Players       []PlayerSnapshot
}

func (s *DuelSession) Snapshot() DuelSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := DuelSnapshot{
		ID:            s.id,
		Status:        s.status,
		TimeRemaining: s.timeRemaining,
		StartedAt:     s.startedAt,
		Players:       make([]PlayerSnapshot, 0, len(s.players)),
	}
	for _, p := range s.players {
		ps := PlayerSnapshot{ID: p.ID, Score: p.score, Cursor: p.cursor}
		if p.current != nil {
			ps.Question = p.current.Question
		}
		snap.Players = append(snap.Players, ps)
	}
	return snap
}

type noopRooms struct{}

func (noopRooms) Join(string, string, Channel)    {}
func (noopRooms) Leave(string, string)            {}
func (noopRooms) Broadcast(string, domain.Message) {}
