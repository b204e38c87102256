package dialogue

import (
	"context"
	"sync"
	"testing"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/application/reservations"
	"chatflow-backend/domain/conversation"
	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/variables"
	"chatflow-backend/infrastructure/persistence/memory"
	"chatflow-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeDispatcher records sends and can be told to fail.
type fakeDispatcher struct {
	mu       sync.Mutex
	sent     []sentMessage
	failWith error
}

type sentMessage struct {
	RecipientID string
	Message     ports.OutboundMessage
}

func (d *fakeDispatcher) Send(_ context.Context, recipientID string, msg ports.OutboundMessage, _ string) (*ports.DispatchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return nil, d.failWith
	}
	d.sent = append(d.sent, sentMessage{RecipientID: recipientID, Message: msg})
	return &ports.DispatchResult{ExternalMessageID: "out-1", Attempts: 1}, nil
}

func (d *fakeDispatcher) messages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]sentMessage, len(d.sent))
	copy(out, d.sent)
	return out
}

type fixture struct {
	orchestrator  *Orchestrator
	flows         *memory.FlowStore
	conversations *memory.ConversationStore
	messages      *memory.MessageStore
	reservations  *memory.ReservationStore
	dispatcher    *fakeDispatcher
	ictx          conversation.IntegrationContext
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	flows := memory.NewFlowStore()
	conversations := memory.NewConversationStore()
	messages := memory.NewMessageStore()
	reservationStore := memory.NewReservationStore()
	dispatcher := &fakeDispatcher{}

	trigger := reservations.NewTrigger(reservationStore, nil, zap.NewNop())

	extractor := &variables.Extractor{
		Location: time.UTC,
		Now:      func() time.Time { return time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC) },
	}

	orchestrator := NewOrchestrator(
		flows,
		conversations,
		messages,
		trigger,
		dispatcher,
		extractor,
		nil,
		nil,
		zap.NewNop(),
	)

	return &fixture{
		orchestrator:  orchestrator,
		flows:         flows,
		conversations: conversations,
		messages:      messages,
		reservations:  reservationStore,
		dispatcher:    dispatcher,
		ictx: conversation.IntegrationContext{
			IntegrationID: "int-1",
			TenantID:      "t1",
			PageID:        "page-1",
			AccessToken:   "token",
		},
	}
}

// bookingFlow walks welcome -> ask-name -> ask-date -> confirm, with
// free-text answers throughout.
func bookingFlow() *flow.Flow {
	return &flow.Flow{
		ID:          "booking",
		TenantID:    "t1",
		StartNodeID: "welcome",
		Nodes: []flow.Node{
			{ID: "welcome", Kind: flow.KindMessage, Text: "Gerne! Wie heißen Sie?", AwaitsField: variables.KeyName},
			{ID: "ask-when", Kind: flow.KindMessage, Text: "Danke {{name}}! Wann und für wie viele?"},
			{ID: "confirm", Kind: flow.KindMessage, Text: "Perfekt, wir haben reserviert."},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "welcome", Target: "ask-when"},
			{ID: "e2", Source: "ask-when", Target: "confirm"},
		},
		Trigger: flow.Trigger{Keywords: []string{"reservieren"}},
	}
}

func textEvent(sender, messageID, text string) conversation.InboundEvent {
	return conversation.InboundEvent{
		SenderID:    sender,
		RecipientID: "page-1",
		MessageID:   messageID,
		Timestamp:   time.Now(),
		Text:        text,
	}
}

func TestTriggerMatchStartsFlow(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())

	fx.orchestrator.HandleInboundEvent(context.Background(), textEvent("user-1", "m1", "Ich möchte reservieren"), fx.ictx)

	sent := fx.dispatcher.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "Gerne! Wie heißen Sie?", sent[0].Message.Text)

	conv, err := fx.conversations.GetOrCreate(context.Background(), "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "booking", conv.CurrentFlowID)
	assert.Equal(t, "welcome", conv.CurrentNodeID)
	assert.Equal(t, conversation.StatusActive, conv.Status)
}

func TestNoMatchLeavesFlowStateUntouched(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())

	fx.orchestrator.HandleInboundEvent(context.Background(), textEvent("user-1", "m1", "hallo"), fx.ictx)

	assert.Empty(t, fx.dispatcher.messages())

	conv, err := fx.conversations.GetOrCreate(context.Background(), "int-1", "user-1")
	require.NoError(t, err)
	assert.Empty(t, conv.CurrentFlowID)
	// The incoming message is still recorded.
	require.Len(t, fx.messages.Messages(), 1)
}

func TestDuplicateEventIsDroppedCompletely(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())

	evt := textEvent("user-1", "m1", "Ich möchte reservieren")
	fx.orchestrator.HandleInboundEvent(context.Background(), evt, fx.ictx)
	fx.orchestrator.HandleInboundEvent(context.Background(), evt, fx.ictx)

	// One send, one incoming record, one outgoing record.
	assert.Len(t, fx.dispatcher.messages(), 1)
	var incoming int
	for _, m := range fx.messages.Messages() {
		if m.Direction == conversation.DirectionIncoming {
			incoming++
		}
	}
	assert.Equal(t, 1, incoming)
}

func TestEchoEventIsIgnored(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())

	evt := textEvent("page-1", "m1", "reservieren")
	fx.orchestrator.HandleInboundEvent(context.Background(), evt, fx.ictx)

	assert.Empty(t, fx.dispatcher.messages())
	assert.Empty(t, fx.messages.Messages())
}

func TestFullBookingConversation(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren bitte"), fx.ictx)
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m2", "Max Mustermann"), fx.ictx)
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m3", "morgen um 19:30 für 4 Personen"), fx.ictx)

	sent := fx.dispatcher.messages()
	require.Len(t, sent, 3)
	assert.Equal(t, "Danke Max Mustermann! Wann und für wie viele?", sent[1].Message.Text)
	assert.Contains(t, sent[2].Message.Text, "Perfekt, wir haben reserviert.")
	assert.Contains(t, sent[2].Message.Text, "Datum: 04.03.2026")

	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusClosed, conv.Status)
	assert.True(t, conv.Metadata.FlowCompleted)
	require.NotEmpty(t, conv.Metadata.ReservationID)

	r, ok := fx.reservations.Get(conv.Metadata.ReservationID)
	require.True(t, ok)
	assert.Equal(t, "Max Mustermann", r.Name)
	assert.Equal(t, "2026-03-04", r.Date)
	assert.Equal(t, "19:30", r.Time)
	assert.Equal(t, 4, r.GuestCount)
	assert.Equal(t, "t1", r.TenantID)
}

func TestIncompleteFlowCreatesNoReservation(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren"), fx.ictx)
	// Refuses the name, then completes the flow without one.
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m2", "weiß nicht"), fx.ictx)
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m3", "morgen um 19:30 für 4 Personen"), fx.ictx)

	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StatusClosed, conv.Status)
	assert.False(t, conv.Metadata.FlowCompleted)
	assert.Empty(t, conv.Metadata.ReservationID)
}

func TestQuickReplyContinuation(t *testing.T) {
	fx := newFixture(t)
	f := &flow.Flow{
		ID:          "qr-flow",
		TenantID:    "t1",
		StartNodeID: "choose",
		Nodes: []flow.Node{
			{
				ID:   "choose",
				Kind: flow.KindQuickReply,
				Text: "Drinnen oder draußen?",
				QuickReplies: []flow.QuickReply{
					{ID: "q1", Title: "Drinnen", TargetNodeID: "inside"},
				},
			},
			{ID: "inside", Kind: flow.KindMessage, Text: "Drinnen, sehr gut."},
		},
		Trigger: flow.Trigger{Keywords: []string{"platz"}},
	}
	fx.flows.Put(f)
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "platz"), fx.ictx)

	press := conversation.InboundEvent{
		SenderID:          "user-1",
		RecipientID:       "page-1",
		MessageID:         "m2",
		Timestamp:         time.Now(),
		QuickReplyPayload: "flow:qr-flow:node:inside",
	}
	fx.orchestrator.HandleInboundEvent(ctx, press, fx.ictx)

	sent := fx.dispatcher.messages()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1].Message.Text, "Drinnen, sehr gut.")
}

func TestForeignButtonPayloadFallsThrough(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren"), fx.ictx)

	press := conversation.InboundEvent{
		SenderID:          "user-1",
		RecipientID:       "page-1",
		MessageID:         "m2",
		Timestamp:         time.Now(),
		QuickReplyPayload: "flow:other-flow:node:x",
	}
	fx.orchestrator.HandleInboundEvent(ctx, press, fx.ictx)

	// The payload references a different flow and carries no text, so
	// the turn produces no response and the position is unchanged.
	assert.Len(t, fx.dispatcher.messages(), 1)
	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "welcome", conv.CurrentNodeID)
}

func TestDispatchFailureKeepsPosition(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren"), fx.ictx)

	fx.dispatcher.failWith = errors.NewCredentialError("token expired")
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m2", "Max Mustermann"), fx.ictx)

	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	// The failed turn must not advance the flow position.
	assert.Equal(t, "welcome", conv.CurrentNodeID)
}

func TestConcurrentEventsForOneSenderAreSerialized(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			evt := textEvent("user-1", "", "reservieren")
			evt.MessageID = "m-" + string(rune('a'+n))
			fx.orchestrator.HandleInboundEvent(ctx, evt, fx.ictx)
		}(i)
	}
	wg.Wait()

	// Serialization means every conditional update succeeded: eight
	// turns, eight sends, no lost writes.
	assert.Len(t, fx.dispatcher.messages(), 8)
	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "booking", conv.CurrentFlowID)
}

func TestVariablesAccumulateAcrossTurns(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren für 4 Personen"), fx.ictx)
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m2", "Anna"), fx.ictx)

	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "4", conv.Metadata.Variables[variables.KeyGuestCount])
	assert.Equal(t, "Anna", conv.Metadata.Variables[variables.KeyName])
}

func TestFirstWriteWinsAcrossTurns(t *testing.T) {
	fx := newFixture(t)
	fx.flows.Put(bookingFlow())
	ctx := context.Background()

	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m1", "reservieren um 19:00"), fx.ictx)
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m2", "Max"), fx.ictx)
	// A later time must not overwrite the first answer.
	fx.orchestrator.HandleInboundEvent(ctx, textEvent("user-1", "m3", "oder doch 20:00?"), fx.ictx)

	conv, err := fx.conversations.GetOrCreate(ctx, "int-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "19:00", conv.Metadata.Variables[variables.KeyTime])
}
