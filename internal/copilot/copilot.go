// Package copilot holds multi-turn conversations with the investigation
// assistant about one claim at a time.
package copilot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"veritas/internal/api"
	"veritas/internal/logging"
)

// Sender identifies who wrote a transcript message.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAI    Sender = "ai"
	SenderError Sender = "error"
)

// User-facing error texts.
const (
	MsgSessionExpired   = "Session expired. Please log in again."
	MsgPermissionDenied = "You do not have permission to investigate this claim."
	MsgNoResponse       = "Failed to get AI response"
)

var (
	// ErrEmptyQuestion rejects a blank question.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrNoClaim rejects a question before a claim is selected.
	ErrNoClaim = errors.New("no claim selected")
)

// Message is one transcript entry.
type Message struct {
	ID     string    `json:"id"`
	Sender Sender    `json:"sender"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Backend is the part of the API client a conversation calls.
type Backend interface {
	StartConversation(ctx context.Context, claimID string) (*api.Conversation, error)
	Query(ctx context.Context, claimID string, q api.QueryRequest) (*api.QueryResponse, error)
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithClock sets the time source for message stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Conversation) { c.now = now }
}

// WithLogger sets the conversation's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.log = l }
}

// Conversation tracks the server-side conversation for the selected claim.
// The server conversation is opened lazily on the first question; each answer
// becomes the parent of the next question.
type Conversation struct {
	backend Backend
	now     func() time.Time
	log     *slog.Logger

	ask sync.Mutex // one question in flight

	mu             sync.Mutex
	claimID        string
	conversationID string
	parentID       string
	messages       []Message
}

// New starts a transcript greeting firstName ("there" when empty).
func New(backend Backend, firstName string, opts ...Option) *Conversation {
	c := &Conversation{backend: backend, now: time.Now, log: logging.New("copilot")}
	for _, o := range opts {
		o(c)
	}
	c.messages = append(c.messages, c.message(SenderAI, Greeting(firstName)))
	return c
}

// Greeting is the assistant's opening line.
func Greeting(firstName string) string {
	if strings.TrimSpace(firstName) == "" {
		firstName = "there"
	}
	return "Hello " + firstName + "! I'm your AI investigative assistant. I have access to all claim data " +
		"and can help you dig deeper into fraud patterns, timeline inconsistencies, and evidence analysis. " +
		"What would you like to investigate?"
}

// Select switches to claimID. Switching to a different claim drops the
// server conversation; the transcript is kept.
func (c *Conversation) Select(claimID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if claimID == c.claimID {
		return
	}
	c.claimID = claimID
	c.conversationID = ""
	c.parentID = ""
}

// ClaimID is the selected claim.
func (c *Conversation) ClaimID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.claimID
}

// IDs returns the server conversation id and the current parent message id.
func (c *Conversation) IDs() (conversationID, parentMessageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID, c.parentID
}

// Transcript returns a copy of every message so far.
func (c *Conversation) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

// Ask sends question about the selected claim and returns the assistant's
// reply. A failed call appends an error message to the transcript and returns
// that message alongside the error.
func (c *Conversation) Ask(ctx context.Context, question string) (Message, error) {
	if strings.TrimSpace(question) == "" {
		return Message{}, ErrEmptyQuestion
	}
	c.ask.Lock()
	defer c.ask.Unlock()

	c.mu.Lock()
	claimID, convID, parentID := c.claimID, c.conversationID, c.parentID
	if claimID == "" {
		c.mu.Unlock()
		return Message{}, ErrNoClaim
	}
	c.messages = append(c.messages, c.message(SenderUser, question))
	c.mu.Unlock()

	if convID == "" {
		conv, err := c.backend.StartConversation(ctx, claimID)
		if err != nil {
			return c.failed(claimID, err)
		}
		convID, parentID = conv.ConversationID, conv.SystemMessageID
		c.mu.Lock()
		if c.claimID == claimID {
			c.conversationID, c.parentID = convID, parentID
		}
		c.mu.Unlock()
		c.log.Debug("conversation started", "claim", claimID, "conversation", convID)
	}

	resp, err := c.backend.Query(ctx, claimID, api.QueryRequest{
		Query:           question,
		ConversationID:  convID,
		ParentMessageID: parentID,
	})
	if err != nil {
		return c.failed(claimID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if resp.SystemMessageID != "" && c.claimID == claimID {
		c.parentID = resp.SystemMessageID
	}
	reply := c.message(SenderAI, resp.Answer)
	c.messages = append(c.messages, reply)
	return reply, nil
}

func (c *Conversation) failed(claimID string, err error) (Message, error) {
	c.log.Warn("copilot query failed", "claim", claimID, "error", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.message(SenderError, ErrorText(err))
	c.messages = append(c.messages, msg)
	return msg, err
}

func (c *Conversation) message(sender Sender, text string) Message {
	return Message{ID: uuid.NewString(), Sender: sender, Text: text, Time: c.now()}
}

// ErrorText maps a failed call to the line shown in the transcript. An expired
// session is reported but does not log the user out.
func ErrorText(err error) string {
	switch {
	case api.IsUnauthorized(err), errors.Is(err, api.ErrNoSession):
		return MsgSessionExpired
	case api.IsNotFound(err), api.IsForbidden(err):
		return MsgPermissionDenied
	}
	if text := api.Detail(err); text != "" {
		return text
	}
	return MsgNoResponse
}
