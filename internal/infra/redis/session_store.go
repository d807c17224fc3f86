package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/app"
	"zetaduel-service/internal/infra/memory"
)

const (
	// DefaultWriteTimeout bounds each marker write.
	DefaultWriteTimeout = 250 * time.Millisecond

	markerBuffer = 256
)

// markerOp is one pending marker write. Ops are applied in submission order, so a
// session's markers are always cleared after they were set.
type markerOp struct {
	set          bool
	sessionID    string
	participants []string
}

// SessionStore is a Redis-aware implementation of app.SessionStore.
// Notes:
//   - Sessions live in the embedded in-memory store; duel state never leaves the process.
//   - Redis only carries best-effort liveness markers (session -> participants and
//     participant -> session) with a TTL, so operators can inspect live duels.
//   - Marker writes run on a background writer, never on the caller's goroutine, so a
//     slow or unreachable Redis cannot stall the registry.
type SessionStore struct {
	*memory.SessionStore
	client  *redis.Client
	ttl     time.Duration
	timeout time.Duration

	ops  chan markerOp
	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return NewSessionStoreWithTimeout(client, ttl, DefaultWriteTimeout)
}

// NewSessionStoreWithTimeout sets the deadline applied to every marker write.
func NewSessionStoreWithTimeout(client *redis.Client, ttl, timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	s := &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		ttl:          ttl,
		timeout:      timeout,
		ops:          make(chan markerOp, markerBuffer),
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *SessionStore) Add(session *app.DuelSession) {
	s.SessionStore.Add(session)
	s.submit(markerOp{set: true, sessionID: session.ID(), participants: session.ParticipantIDs()})
}

func (s *SessionStore) Remove(sessionID string) bool {
	session, ok := s.SessionStore.Get(sessionID)
	if !ok || !s.SessionStore.Remove(sessionID) {
		return false
	}
	s.submit(markerOp{sessionID: sessionID, participants: session.ParticipantIDs()})
	return true
}

// Close stops the marker writer after draining queued writes.
func (s *SessionStore) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *SessionStore) submit(op markerOp) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.ops <- op:
	default:
		log.Warn().Str("session_id", op.sessionID).Bool("set", op.set).Msg("marker queue full, dropping write")
	}
}

func (s *SessionStore) run() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.ops:
			s.apply(op)
		case <-s.done:
			for {
				select {
				case op := <-s.ops:
					s.apply(op)
				default:
					return
				}
			}
		}
	}
}

func (s *SessionStore) apply(op markerOp) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if !op.set {
		keys := []string{sessionKey(op.sessionID)}
		for _, id := range op.participants {
			keys = append(keys, participantKey(id))
		}
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			log.Warn().Err(err).Str("session_id", op.sessionID).Msg("clear session marker")
		}
		return
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, sessionKey(op.sessionID), "player1", op.participants[0], "player2", op.participants[1])
	for _, id := range op.participants {
		pipe.Set(ctx, participantKey(id), op.sessionID, s.ttl)
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, sessionKey(op.sessionID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warn().Err(err).Str("session_id", op.sessionID).Msg("write session marker")
	}
}

func sessionKey(sessionID string) string {
	return "duel:session:" + sessionID
}

func participantKey(participantID string) string {
	return "duel:participant:" + participantID
}
