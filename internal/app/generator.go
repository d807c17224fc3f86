package app

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"zetaduel-service/internal/domain"
)

// DefaultSequenceLength is the number of challenges pre-generated for every duel.
const DefaultSequenceLength = 120

// Operand bounds used by Generate.
const (
	minOperand = 2
	maxOperand = 100
	maxFactor  = 12

	// constrained multiplication/division never go past this factor
	maxConstrainedFactor = 25

	// constrained operands stay within ±maxConstrainedOperand so sums and spans fit in an int
	maxConstrainedOperand = 1_000_000_000

	// attempts to replace a malformed challenge before giving up on a sequence
	maxRegenerateAttempts = 8
)

// ChallengeGenerator produces arithmetic challenges whose answers are integers by construction.
type ChallengeGenerator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewChallengeGenerator() *ChallengeGenerator {
	return NewChallengeGeneratorWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewChallengeGeneratorWithSource allows deterministic sequences in tests.
func NewChallengeGeneratorWithSource(src rand.Source) *ChallengeGenerator {
	return &ChallengeGenerator{rnd: rand.New(src)}
}

// Generate draws an operator uniformly and builds a challenge under its rules.
func (g *ChallengeGenerator) Generate() domain.Challenge {
	g.mu.Lock()
	defer g.mu.Unlock()

	op := domain.Operators[g.rnd.Intn(len(domain.Operators))]
	switch op {
	case domain.OpAdd:
		a, b := g.intn(minOperand, maxOperand), g.intn(minOperand, maxOperand)
		return newChallenge(op, a, b, a+b)
	case domain.OpSubtract:
		// reverse addition: (a+b) - b = a
		a, b := g.intn(minOperand, maxOperand), g.intn(minOperand, maxOperand)
		return newChallenge(op, a+b, b, a)
	case domain.OpMultiply:
		a, b := g.intn(minOperand, maxFactor), g.intn(minOperand, maxOperand)
		return newChallenge(op, a, b, a*b)
	default:
		// reverse multiplication: (q*d) ÷ d = q
		q, d := g.intn(minOperand, maxFactor), g.intn(minOperand, maxOperand)
		return newChallenge(domain.OpDivide, q*d, d, q)
	}
}

// GenerateWithConstraints builds a challenge restricted to ops with operands drawn from
// [min, max]. Multiplication and division factors are additionally clamped to [2, 25].
// Bounds beyond ±1e9 are rejected with ErrInvalidRange.
func (g *ChallengeGenerator) GenerateWithConstraints(ops []domain.Operator, min, max int) (domain.Challenge, error) {
	if len(ops) == 0 {
		ops = domain.Operators
	}
	if min > max {
		return domain.Challenge{}, fmt.Errorf("%w: min %d > max %d", domain.ErrInvalidRange, min, max)
	}
	if min < -maxConstrainedOperand || max > maxConstrainedOperand {
		return domain.Challenge{}, fmt.Errorf("%w: operands must be within ±%d", domain.ErrInvalidRange, maxConstrainedOperand)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	op := ops[g.rnd.Intn(len(ops))]
	switch op {
	case domain.OpAdd:
		a, b := g.intn(min, max), g.intn(min, max)
		return newChallenge(op, a, b, a+b), nil
	case domain.OpSubtract:
		a := g.intn(min, max)
		b := g.intn(min, a)
		return newChallenge(op, a, b, a-b), nil
	case domain.OpMultiply, domain.OpDivide:
		lo, hi := maxInt(minOperand, min), minInt(maxConstrainedFactor, max)
		if lo > hi {
			return domain.Challenge{}, fmt.Errorf("%w: no factors in [%d, %d] for %s", domain.ErrInvalidRange, min, max, op)
		}
		a, b := g.intn(lo, hi), g.intn(lo, hi)
		if op == domain.OpMultiply {
			return newChallenge(op, a, b, a*b), nil
		}
		return newChallenge(op, a*b, b, a), nil
	}
	return domain.Challenge{}, fmt.Errorf("%w: %q", domain.ErrUnknownOperator, op)
}

// Sequence generates n validated challenges. A malformed challenge is logged and
// replaced; the sequence is abandoned if replacements keep failing.
func (g *ChallengeGenerator) Sequence(n int) (Sequence, error) {
	seq := make(Sequence, 0, n)
	for len(seq) < n {
		c, err := g.validated()
		if err != nil {
			return nil, err
		}
		seq = append(seq, c)
	}
	return seq, nil
}

func (g *ChallengeGenerator) validated() (domain.Challenge, error) {
	var err error
	for attempt := 0; attempt < maxRegenerateAttempts; attempt++ {
		c := g.Generate()
		if err = c.Validate(); err == nil {
			return c, nil
		}
		log.Error().Err(err).Int("attempt", attempt).Msg("discarding malformed challenge")
	}
	return domain.Challenge{}, fmt.Errorf("generate sequence: %w", err)
}

// intn returns a uniform integer in [lo, hi]. Callers hold g.mu.
func (g *ChallengeGenerator) intn(lo, hi int) int {
	return lo + g.rnd.Intn(hi-lo+1)
}

func newChallenge(op domain.Operator, a, b, answer int) domain.Challenge {
	return domain.Challenge{
		Question: domain.FormatQuestion(op, a, b),
		Answer:   answer,
		Operator: op,
		Operand1: a,
		Operand2: b,
	}
}

// Sequence is the ordered challenge list shared by both participants of a duel.
type Sequence []domain.Challenge

// At returns the shared challenge at index i, or nil past the end.
func (s Sequence) At(i int) *domain.Challenge {
	if i < 0 || i >= len(s) {
		return nil
	}
	return &s[i]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
