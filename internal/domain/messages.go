package domain

// MessageType tags every envelope exchanged with clients.
type MessageType string

// Client to server.
const (
	MsgJoinQueue    MessageType = "joinQueue"
	MsgLeaveQueue   MessageType = "leaveQueue"
	MsgSubmitAnswer MessageType = "submitAnswer"
)

// Server to client.
const (
	MsgQueueJoined          MessageType = "queueJoined"
	MsgDuelStart            MessageType = "duelStart"
	MsgNewChallenge         MessageType = "newChallenge"
	MsgScoreUpdate          MessageType = "scoreUpdate"
	MsgTimeUpdate           MessageType = "timeUpdate"
	MsgAnswerResult         MessageType = "answerResult"
	MsgDuelEnd              MessageType = "duelEnd"
	MsgOpponentDisconnected MessageType = "opponentDisconnected"
	MsgError                MessageType = "error"
)

// Message is a server-originated envelope. Payload is nil for signal-only messages.
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

type QueueJoined struct {
	Position int `json:"position"`
}

type DuelStart struct {
	SessionID     string       `json:"sessionId"`
	Participants  []ScoreEntry `json:"participants"`
	TimeRemaining int          `json:"timeRemaining"`
}

// NewChallenge carries the question text only; the answer never leaves the server.
type NewChallenge struct {
	Question string `json:"question"`
}

type ScoreUpdate struct {
	Scores []ScoreEntry `json:"scores"`
}

type TimeUpdate struct {
	TimeRemaining int `json:"timeRemaining"`
}

type AnswerResult struct {
	Correct bool `json:"correct"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// SubmitAnswer is the validated client payload of a submitAnswer message.
type SubmitAnswer struct {
	Answer *int `json:"answer"`
}

// NewError builds an error envelope.
func NewError(message string) Message {
	return Message{Type: MsgError, Payload: ErrorPayload{Message: message}}
}
