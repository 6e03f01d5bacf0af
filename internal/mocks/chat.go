package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// SentMessage is one outbound chat message captured by ChatSender.
type SentMessage struct {
	ChatID   int64
	Text     string
	Markdown bool
}

// ChatSender is a mock chat client that also records every message it was
// asked to send, in order.
type ChatSender struct {
	mock.Mock

	mu   sync.Mutex
	sent []SentMessage
}

func (m *ChatSender) SendText(ctx context.Context, chatID int64, text string, markdown bool) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentMessage{ChatID: chatID, Text: text, Markdown: markdown})
	m.mu.Unlock()

	args := m.Called(ctx, chatID, text, markdown)
	return args.Error(0)
}

// Sent returns a copy of the recorded messages.
func (m *ChatSender) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}
