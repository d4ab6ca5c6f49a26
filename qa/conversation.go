package qa

import (
	"github.com/google/uuid"

	"github.com/alusci/ask-bi/docs"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryLimit caps the conversation window at 10 turns (5 question/answer
// pairs), both in memory and in the prompt the model sees.
const HistoryLimit = 10

// Turn is one message in a conversation. Assistant turns also carry the
// metadata of the documents that grounded the answer so the presentation
// layer can show sources.
type Turn struct {
	Role     string
	Content  string
	Metadata []docs.Metadata
}

// Conversation is the session-scoped message history. It is owned by the
// caller and handed to the engine on each query; nothing here is shared
// across sessions.
type Conversation struct {
	ID    string
	turns []Turn
}

func NewConversation() *Conversation {
	return &Conversation{ID: uuid.NewString()}
}

// Append adds a turn and trims the history to the most recent HistoryLimit
// turns.
func (c *Conversation) Append(turn Turn) {
	c.turns = append(c.turns, turn)
	if len(c.turns) > HistoryLimit {
		c.turns = c.turns[len(c.turns)-HistoryLimit:]
	}
}

// Turns returns a copy of the history in chronological order.
func (c *Conversation) Turns() []Turn {
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

func (c *Conversation) Len() int { return len(c.turns) }

// Clear resets the history; the session ID survives.
func (c *Conversation) Clear() {
	c.turns = nil
}
