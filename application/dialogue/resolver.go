package dialogue

import (
	"context"

	"chatflow-backend/application/ports"
	"chatflow-backend/domain/conversation"
	"chatflow-backend/pkg/errors"

	"go.uber.org/zap"
)

// Resolver maps an inbound channel event to its conversation and
// enforces the idempotency and echo-suppression rules that guard the
// rest of the turn.
type Resolver struct {
	conversations ports.ConversationStore
	messages      ports.MessageStore
	logger        *zap.Logger
}

// NewResolver creates a conversation resolver.
func NewResolver(
	conversations ports.ConversationStore,
	messages ports.MessageStore,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// Resolve loads or creates the conversation for the event's sender.
// It returns a duplicate-classified error when the external message
// id was already recorded, and a validation error for echo events
// (the page messaging itself); in both cases the event must be
// dropped without any state mutation.
func (r *Resolver) Resolve(
	ctx context.Context,
	evt conversation.InboundEvent,
	ictx conversation.IntegrationContext,
) (*conversation.Conversation, error) {
	if evt.SenderID == "" {
		return nil, errors.NewValidationError("event has no sender")
	}
	if evt.SenderID == ictx.PageID {
		return nil, errors.NewValidationError("echo event from own page")
	}

	if evt.MessageID != "" {
		seen, err := r.messages.Exists(ctx, evt.MessageID)
		if err != nil {
			return nil, errors.Wrap(err, "idempotency check failed")
		}
		if seen {
			r.logger.Debug("duplicate event dropped",
				zap.String("externalMessageID", evt.MessageID),
				zap.String("senderID", evt.SenderID),
			)
			return nil, errors.NewDuplicateError(evt.MessageID)
		}
	}

	conv, err := r.conversations.GetOrCreate(ctx, ictx.IntegrationID, evt.SenderID)
	if err != nil {
		return nil, errors.Wrap(err, "conversation lookup failed")
	}
	return conv, nil
}
