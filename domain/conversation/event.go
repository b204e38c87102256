package conversation

import "time"

// InboundEvent is one normalized messaging event from the webhook
// payload. Exactly one of Text, QuickReplyPayload, PostbackPayload or
// AttachmentURLs is expected to carry the user's input.
type InboundEvent struct {
	SenderID    string
	RecipientID string

	// MessageID is the channel's external message id, the idempotency
	// key for at-least-once webhook delivery.
	MessageID string

	Timestamp time.Time

	Text              string
	QuickReplyPayload string
	PostbackPayload   string
	AttachmentURLs    []string
}

// ButtonPayload returns the quick-reply or postback payload, both of
// which reference a flow node the same way.
func (e *InboundEvent) ButtonPayload() string {
	if e.QuickReplyPayload != "" {
		return e.QuickReplyPayload
	}
	return e.PostbackPayload
}

// Classify derives the message type from the event shape.
func (e *InboundEvent) Classify() MessageType {
	switch {
	case e.ButtonPayload() != "":
		return TypeQuickReply
	case len(e.AttachmentURLs) > 0:
		return TypeImage
	default:
		return TypeText
	}
}

// Content returns what gets recorded in the message log.
func (e *InboundEvent) Content() string {
	if e.Text != "" {
		return e.Text
	}
	if p := e.ButtonPayload(); p != "" {
		return p
	}
	if len(e.AttachmentURLs) > 0 {
		return e.AttachmentURLs[0]
	}
	return ""
}

// Integration is one connected messenger channel (a page) belonging
// to a tenant.
type Integration struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	PageID      string    `json:"pageId"`
	AccessToken string    `json:"-"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

// IntegrationContext is the slice of integration state a single turn
// needs.
type IntegrationContext struct {
	IntegrationID string
	TenantID      string
	PageID        string
	AccessToken   string
}
