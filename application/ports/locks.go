package ports

import "context"

// ConversationLock is a held cross-instance lock.
type ConversationLock interface {
	Release(ctx context.Context) error
}

// ConversationLocker serializes turn processing for one conversation
// across engine instances. The in-process mutex already orders turns
// within an instance; this guards the window where two instances hold
// events for the same sender.
type ConversationLocker interface {
	Acquire(ctx context.Context, conversationID string) (ConversationLock, error)
}
