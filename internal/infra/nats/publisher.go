package nats

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/domain"
)

// DefaultSubjectPrefix is used when no prefix is configured.
const DefaultSubjectPrefix = "duel.events"

// Config holds the connection settings for the outcome feed.
type Config struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		SubjectPrefix: DefaultSubjectPrefix,
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// OutcomePublisher publishes finished duels on core NATS (fire-and-forget, no stream).
// Subject: {prefix}.ended
type OutcomePublisher struct {
	nc     *nats.Conn
	prefix string
}

// Connect dials NATS and returns a publisher that owns the connection.
func Connect(cfg Config) (*OutcomePublisher, error) {
	opts := []nats.Option{
		nats.Name("zetaduel-service"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Error().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewOutcomePublisher(nc, cfg.SubjectPrefix), nil
}

func NewOutcomePublisher(nc *nats.Conn, prefix string) *OutcomePublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &OutcomePublisher{nc: nc, prefix: prefix}
}

// Subject returns the subject outcomes are published on.
func (p *OutcomePublisher) Subject() string {
	return p.prefix + ".ended"
}

func (p *OutcomePublisher) PublishOutcome(outcome domain.DuelOutcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := p.nc.Publish(p.Subject(), data); err != nil {
		return fmt.Errorf("publish outcome: %w", err)
	}
	return nil
}

// Connected reports whether the underlying connection is usable.
func (p *OutcomePublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close flushes pending messages and closes the connection.
func (p *OutcomePublisher) Close() {
	if p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}
