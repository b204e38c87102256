// Package handlers holds the HTTP handlers for the webhook intake
// and the dashboard's read API.
package handlers

import (
	"net/http"
	"time"

	"chatflow-backend/application/dialogue"
	"chatflow-backend/application/ports"
	"chatflow-backend/domain/conversation"
	"chatflow-backend/pkg/common"
	"chatflow-backend/pkg/errors"

	"go.uber.org/zap"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// webhookPayload mirrors the channel's webhook envelope. Unknown
// fields are ignored; the platform adds new ones without notice.
type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

type webhookEntry struct {
	ID        string             `json:"id"` // page id
	Time      int64              `json:"time"`
	Messaging []messagingEnvelope `json:"messaging"`
}

type messagingEnvelope struct {
	Sender    participant       `json:"sender"`
	Recipient participant       `json:"recipient"`
	Timestamp int64             `json:"timestamp"`
	Message   *inboundMessage   `json:"message"`
	Postback  *inboundPostback  `json:"postback"`
}

type participant struct {
	ID string `json:"id"`
}

type inboundMessage struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text"`
	IsEcho      bool                `json:"is_echo"`
	QuickReply  *inboundQuickReply  `json:"quick_reply"`
	Attachments []inboundAttachment `json:"attachments"`
}

type inboundQuickReply struct {
	Payload string `json:"payload"`
}

type inboundAttachment struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}

type inboundPostback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// WebhookHandler receives channel events. Verification handshakes
// answer the challenge; event posts are acknowledged with 200
// unconditionally so the platform never retries because of an
// internal failure.
type WebhookHandler struct {
	orchestrator *dialogue.Orchestrator
	integrations ports.IntegrationStore
	verifyToken  string
	logger       *zap.Logger
}

// NewWebhookHandler creates the webhook handler.
func NewWebhookHandler(
	orchestrator *dialogue.Orchestrator,
	integrations ports.IntegrationStore,
	verifyToken string,
	logger *zap.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		orchestrator: orchestrator,
		integrations: integrations,
		verifyToken:  verifyToken,
		logger:       logger,
	}
}

// Verify handles the subscription handshake (GET /webhook).
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn("webhook verification rejected",
			zap.String("mode", mode),
		)
		common.RespondError(w, http.StatusForbidden, "FORBIDDEN", "verification failed")
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive handles event delivery (POST /webhook). Every messaging
// envelope becomes one normalized event processed to completion;
// the response is 200 regardless of per-event outcomes.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := common.ParseJSONBody(r, &payload, maxWebhookBody); err != nil {
		h.logger.Warn("unparseable webhook payload", zap.Error(err))
		// Still acknowledge; a retry of a broken payload cannot
		// succeed either.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("EVENT_RECEIVED"))
		return
	}

	if payload.Object == "page" {
		for _, entry := range payload.Entry {
			h.processEntry(r, entry)
		}
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

func (h *WebhookHandler) processEntry(r *http.Request, entry webhookEntry) {
	ctx := r.Context()

	integration, err := h.integrations.GetByPageID(ctx, entry.ID)
	if err != nil {
		if errors.IsNotFound(err) {
			h.logger.Warn("event for unknown page dropped",
				zap.String("pageID", entry.ID),
			)
		} else {
			h.logger.Error("integration lookup failed",
				zap.Error(err),
				zap.String("pageID", entry.ID),
			)
		}
		return
	}

	ictx := conversation.IntegrationContext{
		IntegrationID: integration.ID,
		TenantID:      integration.TenantID,
		PageID:        integration.PageID,
		AccessToken:   integration.AccessToken,
	}

	for _, envelope := range entry.Messaging {
		evt, ok := normalize(envelope)
		if !ok {
			continue
		}
		h.orchestrator.HandleInboundEvent(ctx, evt, ictx)
	}
}

// normalize flattens one messaging envelope into the engine's event
// shape. Echoes and delivery/read receipts produce no event.
func normalize(envelope messagingEnvelope) (conversation.InboundEvent, bool) {
	evt := conversation.InboundEvent{
		SenderID:    envelope.Sender.ID,
		RecipientID: envelope.Recipient.ID,
		Timestamp:   time.UnixMilli(envelope.Timestamp),
	}

	switch {
	case envelope.Message != nil:
		msg := envelope.Message
		if msg.IsEcho {
			return evt, false
		}
		evt.MessageID = msg.MID
		evt.Text = msg.Text
		if msg.QuickReply != nil {
			evt.QuickReplyPayload = msg.QuickReply.Payload
		}
		for _, att := range msg.Attachments {
			if att.Payload.URL != "" {
				evt.AttachmentURLs = append(evt.AttachmentURLs, att.Payload.URL)
			}
		}
	case envelope.Postback != nil:
		evt.PostbackPayload = envelope.Postback.Payload
	default:
		return evt, false
	}

	return evt, true
}
