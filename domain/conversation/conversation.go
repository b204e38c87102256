// Package conversation models one ongoing dialogue between a
// messenger user and an integration, plus the immutable message log.
package conversation

import (
	"time"

	"chatflow-backend/domain/variables"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Direction distinguishes inbound user messages from outbound bot
// messages.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// MessageType classifies a turn by its payload shape.
type MessageType string

const (
	TypeText       MessageType = "text"
	TypeQuickReply MessageType = "quick_reply"
	TypeImage      MessageType = "image"
)

// Metadata carries the per-conversation working state: the variables
// collected so far and the reservation outcome once a flow completes.
type Metadata struct {
	Variables     variables.Variables `json:"variables,omitempty"`
	ReservationID string              `json:"reservationId,omitempty"`
	FlowCompleted bool                `json:"flowCompleted,omitempty"`
}

// Conversation identifies a single ongoing dialogue for an
// (integration, sender) pair. It is created on the first inbound
// event from a new sender and mutated only by the orchestrator.
type Conversation struct {
	ID            string    `json:"id"`
	IntegrationID string    `json:"integrationId"`
	SenderID      string    `json:"senderId"`
	CurrentFlowID string    `json:"currentFlowId,omitempty"`
	CurrentNodeID string    `json:"currentNodeId,omitempty"`
	Status        Status    `json:"status"`
	Metadata      Metadata  `json:"metadata"`
	LastMessageAt time.Time `json:"lastMessageAt"`

	// Version guards conditional updates so two concurrent turns for
	// the same sender cannot both win a read-modify-write.
	Version int64 `json:"version"`
}

// HasActiveFlow reports whether the dialogue is inside a flow.
func (c *Conversation) HasActiveFlow() bool {
	return c.CurrentFlowID != "" && c.Status == StatusActive
}

// Patch is the explicit result of one turn, applied to the store as a
// single conditional update.
type Patch struct {
	CurrentFlowID *string
	CurrentNodeID *string
	Status        *Status
	Metadata      *Metadata
	LastMessageAt *time.Time

	// ExpectedVersion must match the stored conversation for the
	// update to apply.
	ExpectedVersion int64
}

// Apply mutates c in place with the patch fields that are set and
// bumps the version. Store implementations use it after their
// version check.
func (p Patch) Apply(c *Conversation) {
	if p.CurrentFlowID != nil {
		c.CurrentFlowID = *p.CurrentFlowID
	}
	if p.CurrentNodeID != nil {
		c.CurrentNodeID = *p.CurrentNodeID
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Metadata != nil {
		c.Metadata = *p.Metadata
	}
	if p.LastMessageAt != nil {
		c.LastMessageAt = *p.LastMessageAt
	}
	c.Version++
}

// Message is one immutable inbound or outbound turn.
type Message struct {
	ID                string      `json:"id"`
	ConversationID    string      `json:"conversationId"`
	Direction         Direction   `json:"direction"`
	Type              MessageType `json:"type"`
	Content           string      `json:"content"`
	QuickReplyPayload string      `json:"quickReplyPayload,omitempty"`

	// ExternalMessageID is the channel-provided message id, used for
	// idempotency on incoming messages.
	ExternalMessageID string `json:"externalMessageId,omitempty"`

	FlowID    string    `json:"flowId,omitempty"`
	NodeID    string    `json:"nodeId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
