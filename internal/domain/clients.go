package domain

import "context"

// Completer is the interface for LLM chat-completion backends.
type Completer interface {
	// Complete sends the given turns and returns the assistant reply.
	Complete(ctx context.Context, messages []ChatMessage) (ChatMessage, error)
}

// Pusher is the interface for delivering a text message to a user on the
// originating chat platform. Push is an externally visible side effect; callers
// must not retry it blindly.
type Pusher interface {
	Push(ctx context.Context, userID string, text string) error
}
