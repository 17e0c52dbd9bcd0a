package gateway

import (
	"sync"

	"github.com/normanking/jarvis/internal/llm"
)

// DefaultContextExchanges is how many exchanges the conversation keeps.
const DefaultContextExchanges = 5

// Exchange is one prompt and the answer it got.
type Exchange struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// Conversation is the rolling buffer of recent exchanges.
type Conversation struct {
	mu        sync.Mutex
	max       int
	exchanges []Exchange
}

// NewConversation keeps at most max exchanges. Zero disables the buffer.
func NewConversation(max int) *Conversation {
	return &Conversation{max: max}
}

// Add appends an exchange, dropping the oldest beyond the bound.
func (c *Conversation) Add(user, assistant string) {
	if c.max <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.exchanges = append(c.exchanges, Exchange{User: user, Assistant: assistant})
	if len(c.exchanges) > c.max {
		c.exchanges = c.exchanges[len(c.exchanges)-c.max:]
	}
}

// Exchanges returns a copy of the buffer, oldest first.
func (c *Conversation) Exchanges() []Exchange {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Exchange, len(c.exchanges))
	copy(out, c.exchanges)
	return out
}

// Messages renders the buffer as alternating user/assistant messages.
func (c *Conversation) Messages() []llm.Message {
	exchanges := c.Exchanges()
	msgs := make([]llm.Message, 0, len(exchanges)*2)
	for _, e := range exchanges {
		msgs = append(msgs,
			llm.Message{Role: llm.RoleUser, Content: e.User},
			llm.Message{Role: llm.RoleAssistant, Content: e.Assistant},
		)
	}
	return msgs
}

// Len returns the number of buffered exchanges.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchanges)
}

// Clear empties the buffer.
func (c *Conversation) Clear() {
	c.mu.Lock()
	c.exchanges = nil
	c.mu.Unlock()
}
