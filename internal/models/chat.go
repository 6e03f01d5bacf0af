package models

import "strconv"

// ChatRequest is one inbound chat message addressed to the bridge.
type ChatRequest struct {
	ConversationID int64  // Chat the reply must go back to
	Text           string // Raw text as typed by the user
}

// Key returns the correlation key for the request's conversation.
func (r ChatRequest) Key() string {
	return strconv.FormatInt(r.ConversationID, 10)
}
