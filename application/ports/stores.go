// Package ports defines the interfaces the dialogue engine consumes.
// Storage, the reservation system and the messenger transport are
// collaborators behind these ports; the engine never knows the
// implementation.
package ports

import (
	"context"

	"chatflow-backend/domain/conversation"
	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/variables"
)

// FlowStore reads flow definitions authored in the dashboard. The
// engine only reads flows; authoring is a separate surface.
type FlowStore interface {
	// GetFlow retrieves a flow graph by id.
	GetFlow(ctx context.Context, flowID string) (*flow.Flow, error)

	// FindFlowsByTenant retrieves every flow of a tenant, trigger
	// definitions included.
	FindFlowsByTenant(ctx context.Context, tenantID string) ([]*flow.Flow, error)
}

// ConversationStore persists dialogue state per (integration, sender).
type ConversationStore interface {
	// GetOrCreate looks up the conversation for the pair, atomically
	// creating an active empty one on first contact.
	GetOrCreate(ctx context.Context, integrationID, senderID string) (*conversation.Conversation, error)

	// Update applies a turn's patch as one conditional write. It
	// fails with a conflict error when the stored version no longer
	// matches patch.ExpectedVersion.
	Update(ctx context.Context, conversationID string, patch conversation.Patch) error
}

// MessageStore is the append-only message log.
type MessageStore interface {
	// Exists reports whether an incoming message with this external
	// id was already recorded.
	Exists(ctx context.Context, externalMessageID string) (bool, error)

	// Append records one turn.
	Append(ctx context.Context, msg *conversation.Message) error
}

// IntegrationStore resolves webhook events to their integration.
type IntegrationStore interface {
	GetByPageID(ctx context.Context, pageID string) (*conversation.Integration, error)
}

// ReservationRequest carries everything needed to create a booking
// from a completed flow.
type ReservationRequest struct {
	TenantID       string
	ConversationID string
	FlowID         string
	SenderID       string
	Variables      variables.Variables
}

// ReservationResult is the explicit outcome of a reservation attempt.
// MissingFields is set when required variables were absent; the turn
// itself still succeeds.
type ReservationResult struct {
	Success       bool
	ReservationID string
	MissingFields []string
}

// ReservationTrigger creates a booking record once a flow reaches
// end-of-flow with enough data.
type ReservationTrigger interface {
	Create(ctx context.Context, req ReservationRequest) (ReservationResult, error)
}

// QuickReply is one button on an outbound message.
type QuickReply struct {
	Title   string
	Payload string
}

// OutboundMessage is a rendered response ready for dispatch. When
// ImageURL is set the image is sent first, then the text with its
// buttons.
type OutboundMessage struct {
	Text         string
	ImageURL     string
	QuickReplies []QuickReply
}

// DispatchResult reports a successful send.
type DispatchResult struct {
	ExternalMessageID string
	Attempts          int
}

// Dispatcher sends an outbound message through the messenger channel
// with the retry policy applied. Failures come back as classified
// errors from pkg/errors.
type Dispatcher interface {
	Send(ctx context.Context, recipientID string, msg OutboundMessage, accessToken string) (*DispatchResult, error)
}
