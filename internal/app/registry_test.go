package app_test

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/domain"
	"zetaduel-service/internal/infra/memory"
)

type fakePublisher struct {
	mu       sync.Mutex
	outcomes []domain.DuelOutcome
	err      error
}

func (p *fakePublisher) PublishOutcome(o domain.DuelOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return p.err
}

func (p *fakePublisher) published() []domain.DuelOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DuelOutcome(nil), p.outcomes...)
}

type registryFixture struct {
	registry  *app.SessionRegistry
	store     *memory.SessionStore
	clock     *clockwork.FakeClock
	publisher *fakePublisher
}

func newRegistryFixture(t *testing.T) *registryFixture {
	t.Helper()
	var n int
	f := &registryFixture{
		store:     memory.NewSessionStore(),
		clock:     clockwork.NewFakeClock(),
		publisher: &fakePublisher{},
	}
	f.registry = app.NewSessionRegistry(f.store, memory.NewRooms(), app.RegistryOptions{
		Clock:     f.clock,
		Generator: app.NewChallengeGeneratorWithSource(rand.NewSource(9)),
		Publisher: f.publisher,
		NewID: func() string {
			n++
			return fmt.Sprintf("duel-%d", n)
		},
	})
	return f
}

// answer submits the correct answer to the participant's pending challenge.
func (f *registryFixture) answer(t *testing.T, id string) {
	t.Helper()
	session, ok := f.store.ForParticipant(id)
	if !ok {
		t.Fatalf("no duel for %s", id)
	}
	for _, p := range session.Snapshot().Players {
		if p.ID == id {
			correct, err := f.registry.SubmitAnswer(id, session.Sequence()[p.Cursor-1].Answer)
			if err != nil || !correct {
				t.Fatalf("expected correct answer, got correct=%v err=%v", correct, err)
			}
			return
		}
	}
}

func TestJoinQueueRejectsDoubleJoin(t *testing.T) {
	f := newRegistryFixture(t)
	x := newRecorder()

	if err := f.registry.JoinQueue(app.NewParticipant("x", x)); err != nil {
		t.Fatalf("join: %v", err)
	}
	joined := x.next(t, domain.MsgQueueJoined).Payload.(domain.QueueJoined)
	if joined.Position != 1 {
		t.Fatalf("expected position 1, got %d", joined.Position)
	}

	if err := f.registry.JoinQueue(app.NewParticipant("x", x)); !errors.Is(err, domain.ErrAlreadyQueued) {
		t.Fatalf("expected ErrAlreadyQueued, got %v", err)
	}
	msg := x.next(t, domain.MsgError).Payload.(domain.ErrorPayload)
	if msg.Message != "Already in queue or in duel" {
		t.Fatalf("unexpected error text %q", msg.Message)
	}
	if got := f.registry.Stats().QueueLength; got != 1 {
		t.Fatalf("expected queue length 1, got %d", got)
	}
}

func TestJoinQueuePairsAndStartsDuel(t *testing.T) {
	f := newRegistryFixture(t)
	x, y := newRecorder(), newRecorder()

	_ = f.registry.JoinQueue(app.NewParticipant("x", x))
	_ = f.registry.JoinQueue(app.NewParticipant("y", y))

	start := x.next(t, domain.MsgDuelStart).Payload.(domain.DuelStart)
	if start.SessionID != "duel-1" {
		t.Fatalf("expected duel-1, got %s", start.SessionID)
	}
	y.next(t, domain.MsgDuelStart)

	stats := f.registry.Stats()
	if stats.QueueLength != 0 || stats.ActiveSessions != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	for _, id := range []string{"x", "y"} {
		s, ok := f.store.ForParticipant(id)
		if !ok || s.ID() != "duel-1" {
			t.Fatalf("%s not routed to duel-1", id)
		}
	}

	// A participant already in a duel cannot queue again.
	if err := f.registry.JoinQueue(app.NewParticipant("x", x)); !errors.Is(err, domain.ErrAlreadyInDuel) {
		t.Fatalf("expected ErrAlreadyInDuel, got %v", err)
	}
}

func TestSubmitAnswerRoutesToDuel(t *testing.T) {
	f := newRegistryFixture(t)
	x, y := newRecorder(), newRecorder()
	_ = f.registry.JoinQueue(app.NewParticipant("x", x))
	_ = f.registry.JoinQueue(app.NewParticipant("y", y))

	f.answer(t, "x")
	update := y.next(t, domain.MsgScoreUpdate).Payload.(domain.ScoreUpdate)
	if scoreOf(update.Scores, "x") != 1 {
		t.Fatalf("expected x to score, got %+v", update.Scores)
	}

	if _, err := f.registry.SubmitAnswer("nobody", 4); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestLeaveQueue(t *testing.T) {
	f := newRegistryFixture(t)
	_ = f.registry.JoinQueue(app.NewParticipant("x", newRecorder()))
	f.registry.LeaveQueue("x")
	f.registry.LeaveQueue("x")

	if got := f.registry.Stats().QueueLength; got != 0 {
		t.Fatalf("expected empty queue, got %d", got)
	}

	// z now waits alone instead of pairing with x.
	z := newRecorder()
	_ = f.registry.JoinQueue(app.NewParticipant("z", z))
	if z.count(domain.MsgDuelStart) != 0 {
		t.Fatalf("z must not be paired with a departed participant")
	}
}

func TestDisconnectMidDuel(t *testing.T) {
	f := newRegistryFixture(t)
	x, y := newRecorder(), newRecorder()
	_ = f.registry.JoinQueue(app.NewParticipant("x", x))
	_ = f.registry.JoinQueue(app.NewParticipant("y", y))

	for i := 0; i < 3; i++ {
		f.answer(t, "x")
	}
	f.answer(t, "y")

	f.registry.Disconnect("x")

	y.next(t, domain.MsgOpponentDisconnected)
	end := y.next(t, domain.MsgDuelEnd).Payload.(domain.DuelResult)
	if end.Winner == nil || *end.Winner != "x" {
		t.Fatalf("expected x to win on score, got %+v", end.Winner)
	}
	if scoreOf(end.Players, "x") != 3 || scoreOf(end.Players, "y") != 1 {
		t.Fatalf("unexpected scores %+v", end.Players)
	}

	if f.registry.Stats().ActiveSessions != 0 {
		t.Fatalf("expected duel to be reclaimed")
	}
	if _, ok := f.store.ForParticipant("y"); ok {
		t.Fatalf("y must no longer be routed to the ended duel")
	}
	if _, err := f.registry.SubmitAnswer("y", 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after reclaim, got %v", err)
	}

	published := f.publisher.published()
	if len(published) != 1 || published[0].Reason != domain.EndDisconnect {
		t.Fatalf("expected one disconnect outcome, got %+v", published)
	}

	// y may queue again once reclaimed.
	if err := f.registry.JoinQueue(app.NewParticipant("y", y)); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
}

func TestDisconnectWhileQueued(t *testing.T) {
	f := newRegistryFixture(t)
	_ = f.registry.JoinQueue(app.NewParticipant("x", newRecorder()))
	f.registry.Disconnect("x")
	f.registry.Disconnect("ghost")

	if got := f.registry.Stats().QueueLength; got != 0 {
		t.Fatalf("expected empty queue, got %d", got)
	}
	if len(f.publisher.published()) != 0 {
		t.Fatalf("no duel should have been published")
	}
}

func TestDuelTimesOutAndIsReclaimed(t *testing.T) {
	f := newRegistryFixture(t)
	x, y := newRecorder(), newRecorder()
	_ = f.registry.JoinQueue(app.NewParticipant("x", x))
	_ = f.registry.JoinQueue(app.NewParticipant("y", y))
	f.answer(t, "y")

	for i := 0; i < app.DefaultTimeLimit; i++ {
		f.clock.Advance(time.Second)
		x.next(t, domain.MsgTimeUpdate)
	}

	end := x.next(t, domain.MsgDuelEnd).Payload.(domain.DuelResult)
	if end.Winner == nil || *end.Winner != "y" || end.Duration != 120 {
		t.Fatalf("unexpected result %+v", end)
	}
	eventually(t, func() bool { return f.registry.Stats().ActiveSessions == 0 })
	eventually(t, func() bool { return len(f.publisher.published()) == 1 })
	if got := f.publisher.published()[0].Reason; got != domain.EndTimeout {
		t.Fatalf("expected timeout reason, got %s", got)
	}
}

func TestPublishFailureDoesNotBlockReclaim(t *testing.T) {
	f := newRegistryFixture(t)
	f.publisher.err = errors.New("feed unavailable")
	_ = f.registry.JoinQueue(app.NewParticipant("x", newRecorder()))
	_ = f.registry.JoinQueue(app.NewParticipant("y", newRecorder()))

	f.registry.Disconnect("y")

	if f.registry.Stats().ActiveSessions != 0 {
		t.Fatalf("expected duel to be reclaimed")
	}
}

func TestQueueMatchesInArrivalOrderThroughRegistry(t *testing.T) {
	f := newRegistryFixture(t)
	recs := map[string]*recorder{}
	for _, id := range []string{"A", "B", "C", "D"} {
		recs[id] = newRecorder()
		_ = f.registry.JoinQueue(app.NewParticipant(id, recs[id]))
	}

	for id, want := range map[string]string{"A": "duel-1", "B": "duel-1", "C": "duel-2", "D": "duel-2"} {
		start := recs[id].next(t, domain.MsgDuelStart).Payload.(domain.DuelStart)
		if start.SessionID != want {
			t.Fatalf("%s: expected %s, got %s", id, want, start.SessionID)
		}
	}
	if got := f.registry.Stats().ActiveSessions; got != 2 {
		t.Fatalf("expected 2 active duels, got %d", got)
	}
}

// lingeringStore never drops sessions, keeping ended duels routed as if their reclaim
// had not run yet.
type lingeringStore struct {
	*memory.SessionStore
}

func (lingeringStore) Remove(string) bool { return false }

func TestRejoinAllowedBeforeEndedDuelIsReclaimed(t *testing.T) {
	store := lingeringStore{memory.NewSessionStore()}
	var n int
	registry := app.NewSessionRegistry(store, memory.NewRooms(), app.RegistryOptions{
		Clock:     clockwork.NewFakeClock(),
		Generator: app.NewChallengeGeneratorWithSource(rand.NewSource(9)),
		NewID: func() string {
			n++
			return fmt.Sprintf("duel-%d", n)
		},
	})

	x, y, z := newRecorder(), newRecorder(), newRecorder()
	_ = registry.JoinQueue(app.NewParticipant("x", x))
	_ = registry.JoinQueue(app.NewParticipant("y", y))
	registry.Disconnect("x")
	y.next(t, domain.MsgDuelEnd)

	if _, ok := store.ForParticipant("y"); !ok {
		t.Fatalf("expected y still routed to the ended duel")
	}
	if err := registry.JoinQueue(app.NewParticipant("y", y)); err != nil {
		t.Fatalf("rejoin after duelEnd: %v", err)
	}
	if y.count(domain.MsgError) != 0 {
		t.Fatalf("rejoin must not be reported as an error")
	}

	_ = registry.JoinQueue(app.NewParticipant("z", z))
	start := z.next(t, domain.MsgDuelStart).Payload.(domain.DuelStart)
	if start.SessionID != "duel-2" {
		t.Fatalf("expected y and z paired in duel-2, got %s", start.SessionID)
	}
	session, ok := store.ForParticipant("y")
	if !ok || session.ID() != "duel-2" {
		t.Fatalf("expected y routed to duel-2")
	}
}
