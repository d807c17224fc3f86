package app_test

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/domain"
	"zetaduel-service/internal/infra/memory"
)

// recorder is a Channel that keeps every message it receives.
type recorder struct {
	mu   sync.Mutex
	msgs []domain.Message
	ch   chan domain.Message
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan domain.Message, 2048)}
}

func (r *recorder) Send(msg domain.Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	select {
	case r.ch <- msg:
	default:
	}
}

func (r *recorder) count(typ domain.MessageType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

func (r *recorder) last(typ domain.MessageType) (domain.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == typ {
			return r.msgs[i], true
		}
	}
	return domain.Message{}, false
}

// next consumes messages until one of type typ arrives.
func (r *recorder) next(t *testing.T, typ domain.MessageType) domain.Message {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg := <-r.ch:
			if msg.Type == typ {
				return msg
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

type duelFixture struct {
	session *app.DuelSession
	clock   *clockwork.FakeClock
	rooms   *memory.Rooms
	a, b    *recorder
	ended   chan domain.DuelOutcome
}

func newDuelFixture(t *testing.T, challenges int) *duelFixture {
	t.Helper()
	gen := app.NewChallengeGeneratorWithSource(rand.NewSource(42))
	seq, err := gen.Sequence(challenges)
	if err != nil {
		t.Fatalf("sequence: %v", err)
	}
	f := &duelFixture{
		clock: clockwork.NewFakeClock(),
		rooms: memory.NewRooms(),
		a:     newRecorder(),
		b:     newRecorder(),
		ended: make(chan domain.DuelOutcome, 4),
	}
	f.session = app.NewDuelSession("duel-1",
		app.NewParticipant("alice", f.a),
		app.NewParticipant("bob", f.b),
		seq,
		app.DuelOptions{
			Rooms: f.rooms,
			Clock: f.clock,
			OnEnd: func(o domain.DuelOutcome) { f.ended <- o },
		})
	return f
}

func (f *duelFixture) start(t *testing.T) {
	t.Helper()
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// answerCorrectly submits the right answer for the participant's pending challenge.
func (f *duelFixture) answerCorrectly(t *testing.T, id string) {
	t.Helper()
	snap := f.session.Snapshot()
	for _, p := range snap.Players {
		if p.ID != id {
			continue
		}
		answer := f.session.Sequence()[p.Cursor-1].Answer
		correct, err := f.session.SubmitAnswer(id, answer)
		if err != nil || !correct {
			t.Fatalf("expected correct answer for %s, got correct=%v err=%v", id, correct, err)
		}
		return
	}
	t.Fatalf("unknown participant %s", id)
}

func (f *duelFixture) outcome(t *testing.T) domain.DuelOutcome {
	t.Helper()
	select {
	case o := <-f.ended:
		return o
	case <-time.After(2 * time.Second):
		t.Fatalf("duel did not end")
	}
	return domain.DuelOutcome{}
}

func scoreOf(scores []domain.ScoreEntry, id string) int {
	for _, s := range scores {
		if s.ID == id {
			return s.Score
		}
	}
	return -1
}
