package domain

import (
	"fmt"
	"time"
)

// Operator identifies the arithmetic operation of a challenge.
type Operator string

const (
	OpAdd      Operator = "add"
	OpSubtract Operator = "subtract"
	OpMultiply Operator = "multiply"
	OpDivide   Operator = "divide"
)

// Operators lists every supported operator in a stable order.
var Operators = []Operator{OpAdd, OpSubtract, OpMultiply, OpDivide}

// Symbol returns the display glyph used in question text.
func (o Operator) Symbol() string {
	switch o {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "×"
	case OpDivide:
		return "÷"
	}
	return "?"
}

// ParseOperator accepts either the operator name or its symbol.
func ParseOperator(raw string) (Operator, error) {
	switch raw {
	case "add", "+":
		return OpAdd, nil
	case "subtract", "sub", "-":
		return OpSubtract, nil
	case "multiply", "mul", "*", "×", "x":
		return OpMultiply, nil
	case "divide", "div", "/", "÷":
		return OpDivide, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperator, raw)
}

// Challenge is one arithmetic question with its pre-computed integer answer.
// Values are never mutated after generation.
type Challenge struct {
	Question string   `json:"question" yaml:"question"`
	Answer   int      `json:"answer" yaml:"answer"`
	Operator Operator `json:"operator" yaml:"operator"`
	Operand1 int      `json:"operand1" yaml:"operand1"`
	Operand2 int      `json:"operand2" yaml:"operand2"`
}

// Validate re-checks the displayed arithmetic against the stored answer.
func (c Challenge) Validate() error {
	var ok bool
	switch c.Operator {
	case OpAdd:
		ok = c.Operand1+c.Operand2 == c.Answer
	case OpSubtract:
		ok = c.Operand1-c.Operand2 == c.Answer
	case OpMultiply:
		ok = c.Operand1*c.Operand2 == c.Answer
	case OpDivide:
		ok = c.Operand2 != 0 && c.Operand1%c.Operand2 == 0 && c.Operand1/c.Operand2 == c.Answer
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Operator)
	}
	if !ok {
		return fmt.Errorf("%w: %s = %d", ErrMalformedChallenge, c.Question, c.Answer)
	}
	if c.Question != FormatQuestion(c.Operator, c.Operand1, c.Operand2) {
		return fmt.Errorf("%w: question text %q does not match operands", ErrMalformedChallenge, c.Question)
	}
	return nil
}

// FormatQuestion renders the display text, e.g. "57 × 8".
func FormatQuestion(op Operator, a, b int) string {
	return fmt.Sprintf("%d %s %d", a, op.Symbol(), b)
}

// ScoreEntry is the public view of one participant's score.
type ScoreEntry struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// DuelResult is the final result broadcast when a duel ends.
// Winner is nil on a draw.
type DuelResult struct {
	SessionID string       `json:"sessionId"`
	Players   []ScoreEntry `json:"players"`
	Winner    *string      `json:"winner"`
	Duration  int          `json:"duration"`
}

// EndReason records why a duel ended.
type EndReason string

const (
	EndTimeout    EndReason = "timeout"
	EndDisconnect EndReason = "disconnect"
)

// DuelOutcome wraps a result with the termination context for observers.
type DuelOutcome struct {
	Result  DuelResult `json:"result"`
	Reason  EndReason  `json:"reason"`
	EndedAt time.Time  `json:"endedAt"`
}
