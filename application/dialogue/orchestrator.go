package dialogue

import (
	"context"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/domain/conversation"
	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/variables"
	"chatflow-backend/pkg/errors"
	"chatflow-backend/pkg/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// responseSource labels where a turn's response came from, for logs
// and metrics.
type responseSource string

const (
	sourceQuickReply responseSource = "quick_reply"
	sourceFreeText   responseSource = "free_text"
	sourceNewFlow    responseSource = "new_flow"
	sourceNone       responseSource = "none"
)

// Orchestrator is the top-level controller for one inbound event. It
// owns the response priority order, applies each turn's outcome as a
// single conditional conversation update, and triggers reservation
// creation when a flow completes with enough data.
//
// Turns for the same (integration, sender) pair are serialized
// through an in-process keyed mutex; turns for different senders run
// in parallel.
type Orchestrator struct {
	flows         ports.FlowStore
	conversations ports.ConversationStore
	messages      ports.MessageStore
	reservations  ports.ReservationTrigger
	dispatcher    ports.Dispatcher

	resolver  *Resolver
	executor  *Executor
	matcher   *Matcher
	extractor *variables.Extractor

	metrics *observability.Metrics
	locks   *keyedMutex
	locker  ports.ConversationLocker
	logger  *zap.Logger

	now func() time.Time
}

// NewOrchestrator wires the engine. Every collaborator is injected;
// there are no package-level singletons.
func NewOrchestrator(
	flows ports.FlowStore,
	conversations ports.ConversationStore,
	messages ports.MessageStore,
	reservations ports.ReservationTrigger,
	dispatcher ports.Dispatcher,
	extractor *variables.Extractor,
	locker ports.ConversationLocker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		flows:         flows,
		conversations: conversations,
		messages:      messages,
		reservations:  reservations,
		dispatcher:    dispatcher,
		resolver:      NewResolver(conversations, messages, logger),
		executor:      NewExecutor(logger),
		matcher:       NewMatcher(flows, logger),
		extractor:     extractor,
		metrics:       metrics,
		locks:         newKeyedMutex(),
		locker:        locker,
		logger:        logger,
		now:           time.Now,
	}
}

// HandleInboundEvent processes one normalized webhook event to
// completion. It never panics outward and never returns an error: a
// malformed or failing event must not take down processing of any
// other event, and the webhook transport is acknowledged regardless.
func (o *Orchestrator) HandleInboundEvent(
	ctx context.Context,
	evt conversation.InboundEvent,
	ictx conversation.IntegrationContext,
) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic in turn processing",
				zap.Any("panic", r),
				zap.String("senderID", evt.SenderID),
			)
		}
	}()

	key := ictx.IntegrationID + "#" + evt.SenderID
	o.locks.Lock(key)
	defer o.locks.Unlock(key)

	if o.locker != nil {
		lock, err := o.locker.Acquire(ctx, key)
		if err != nil {
			o.logger.Warn("conversation lock unavailable, event deferred to redelivery",
				zap.Error(err),
				zap.String("senderID", evt.SenderID),
			)
			return
		}
		defer lock.Release(ctx)
	}

	conv, err := o.resolver.Resolve(ctx, evt, ictx)
	if err != nil {
		// Duplicates and echoes are expected traffic, not failures.
		if errors.IsDuplicate(err) {
			o.countTurn(ctx, "duplicate")
			return
		}
		o.logger.Warn("event dropped",
			zap.Error(err),
			zap.String("senderID", evt.SenderID),
			zap.String("integrationID", ictx.IntegrationID),
		)
		return
	}

	o.recordIncoming(ctx, conv, evt)

	merged := o.extractVariables(conv, evt)

	resp, matchedFlowID, source := o.resolveResponse(ctx, conv, evt, ictx, merged)

	logger := o.logger.With(
		zap.String("conversationID", conv.ID),
		zap.String("senderID", evt.SenderID),
		zap.String("source", string(source)),
	)

	if resp == nil {
		o.applyPatch(ctx, conv, conversation.Patch{
			Metadata: &conversation.Metadata{
				Variables:     merged,
				ReservationID: conv.Metadata.ReservationID,
				FlowCompleted: conv.Metadata.FlowCompleted,
			},
			LastMessageAt:   timePtr(o.now()),
			ExpectedVersion: conv.Version,
		}, logger)
		o.countTurn(ctx, string(sourceNone))
		return
	}

	result, err := o.dispatcher.Send(ctx, evt.SenderID, ports.OutboundMessage{
		Text:         resp.Text,
		ImageURL:     resp.ImageURL,
		QuickReplies: resp.QuickReplies,
	}, ictx.AccessToken)
	if err != nil {
		// No reply this turn; the conversation keeps its position so
		// the user's next message continues where they left off.
		if errors.IsCredential(err) {
			logger.Error("access token rejected, integration unhealthy",
				zap.Error(err),
				zap.String("integrationID", ictx.IntegrationID),
			)
		} else {
			logger.Warn("dispatch failed", zap.Error(err))
		}
		o.metrics.IncrementCounter(ctx, "DispatchFailed", map[string]string{
			"Classification": string(classify(err)),
		})
		return
	}

	metadata := conversation.Metadata{
		Variables:     merged,
		ReservationID: conv.Metadata.ReservationID,
		FlowCompleted: conv.Metadata.FlowCompleted,
	}

	if resp.EndOfFlow {
		o.triggerReservation(ctx, conv, evt, ictx, matchedFlowID, merged, &metadata, logger)
	}

	o.recordOutgoing(ctx, conv, resp, matchedFlowID)

	// The conversation waits at the node just rendered: the user's
	// free-text answer advances along its edge, a button press jumps
	// to the pressed button's target.
	status := conversation.StatusActive
	if resp.EndOfFlow {
		status = conversation.StatusClosed
	}

	o.applyPatch(ctx, conv, conversation.Patch{
		CurrentFlowID:   &matchedFlowID,
		CurrentNodeID:   &resp.NodeID,
		Status:          &status,
		Metadata:        &metadata,
		LastMessageAt:   timePtr(o.now()),
		ExpectedVersion: conv.Version,
	}, logger)

	logger.Info("turn completed",
		zap.String("flowID", matchedFlowID),
		zap.String("nodeID", resp.NodeID),
		zap.Bool("endOfFlow", resp.EndOfFlow),
		zap.Int("dispatchAttempts", result.Attempts),
	)
	o.countTurn(ctx, string(source))
}

// resolveResponse walks the strict priority order: quick-reply
// continuation, then free-text continuation, then a fresh flow match.
func (o *Orchestrator) resolveResponse(
	ctx context.Context,
	conv *conversation.Conversation,
	evt conversation.InboundEvent,
	ictx conversation.IntegrationContext,
	vars variables.Variables,
) (*Response, string, responseSource) {
	// 1. Quick-reply continuation inside the active flow.
	if payload := evt.ButtonPayload(); payload != "" && conv.HasActiveFlow() {
		if flowID, nodeID, ok := ParseQuickReplyPayload(payload); ok && flowID == conv.CurrentFlowID {
			if resp := o.executeNode(ctx, flowID, nodeID, vars); resp != nil {
				return resp, flowID, sourceQuickReply
			}
		}
	}

	isText := evt.Classify() == conversation.TypeText && evt.Text != ""

	// 2. Free-text continuation from the current node.
	if isText && conv.HasActiveFlow() && conv.CurrentNodeID != "" {
		if resp := o.continueFreeText(ctx, conv, vars); resp != nil {
			return resp, conv.CurrentFlowID, sourceFreeText
		}
	}

	// 3. Match a new flow by trigger.
	if isText {
		matched, err := o.matcher.Match(ctx, ictx.TenantID, evt.Text)
		if err != nil {
			o.logger.Warn("flow matching failed", zap.Error(err))
		} else if matched != nil {
			if resp := o.executeNode(ctx, matched.ID, matched.StartNodeID, vars); resp != nil {
				return resp, matched.ID, sourceNewFlow
			}
		}
	}

	return nil, "", sourceNone
}

// continueFreeText advances along the current node's first non-button
// edge, provided the node actually expects free text.
func (o *Orchestrator) continueFreeText(
	ctx context.Context,
	conv *conversation.Conversation,
	vars variables.Variables,
) *Response {
	f, err := o.flows.GetFlow(ctx, conv.CurrentFlowID)
	if err != nil {
		o.logger.Warn("active flow unavailable",
			zap.Error(err),
			zap.String("flowID", conv.CurrentFlowID),
		)
		return nil
	}
	node, ok := f.NodeByID(conv.CurrentNodeID)
	if !ok {
		o.logger.Warn("current node missing from flow",
			zap.String("flowID", f.ID),
			zap.String("nodeID", conv.CurrentNodeID),
		)
		return nil
	}
	if f.ResolveInputMode(node) != flow.InputModeFreeText {
		return nil
	}
	for _, edge := range f.OutgoingEdges(node.ID) {
		if !edge.IsQuickReplyEdge() {
			return o.executeNode(ctx, f.ID, edge.Target, vars)
		}
	}
	return nil
}

// executeNode loads the flow and runs the executor, treating any
// failure as "no response" per the local error policy.
func (o *Orchestrator) executeNode(ctx context.Context, flowID, nodeID string, vars variables.Variables) *Response {
	f, err := o.flows.GetFlow(ctx, flowID)
	if err != nil {
		o.logger.Warn("flow load failed",
			zap.Error(err),
			zap.String("flowID", flowID),
		)
		return nil
	}
	resp, err := o.executor.Execute(f, nodeID, vars)
	if err != nil {
		o.logger.Warn("node execution failed",
			zap.Error(err),
			zap.String("flowID", flowID),
			zap.String("nodeID", nodeID),
		)
		return nil
	}
	return resp
}

// extractVariables runs the pattern extractors over the message text
// and merges first-write-wins into the conversation's variables. The
// name extractor only runs when the current node is collecting a
// name.
func (o *Orchestrator) extractVariables(conv *conversation.Conversation, evt conversation.InboundEvent) variables.Variables {
	existing := conv.Metadata.Variables
	if existing == nil {
		existing = variables.Variables{}
	}
	if evt.Text == "" {
		return existing
	}

	found := o.extractor.Extract(evt.Text, existing)

	if o.awaitingName(conv) && !existing.Has(variables.KeyName) {
		if name, ok := o.extractor.ExtractName(evt.Text); ok {
			found[variables.KeyName] = name
		}
	}

	return variables.Merge(existing, found)
}

// awaitingName reports whether the dialogue's current node collects
// the guest's name.
func (o *Orchestrator) awaitingName(conv *conversation.Conversation) bool {
	if !conv.HasActiveFlow() || conv.CurrentNodeID == "" {
		return false
	}
	f, err := o.flows.GetFlow(context.Background(), conv.CurrentFlowID)
	if err != nil {
		return false
	}
	node, ok := f.NodeByID(conv.CurrentNodeID)
	return ok && node.AwaitsField == variables.KeyName
}

// triggerReservation creates the booking when a completed flow has
// every required field. A failed or incomplete trigger is logged and
// never fails the turn.
func (o *Orchestrator) triggerReservation(
	ctx context.Context,
	conv *conversation.Conversation,
	evt conversation.InboundEvent,
	ictx conversation.IntegrationContext,
	flowID string,
	vars variables.Variables,
	metadata *conversation.Metadata,
	logger *zap.Logger,
) {
	if missing := variables.MissingReservationFields(vars); len(missing) > 0 {
		logger.Info("flow completed without reservation",
			zap.Strings("missingFields", missing),
		)
		return
	}

	result, err := o.reservations.Create(ctx, ports.ReservationRequest{
		TenantID:       ictx.TenantID,
		ConversationID: conv.ID,
		FlowID:         flowID,
		SenderID:       evt.SenderID,
		Variables:      vars,
	})
	if err != nil {
		logger.Error("reservation creation failed", zap.Error(err))
		return
	}
	if !result.Success {
		logger.Warn("reservation rejected",
			zap.Strings("missingFields", result.MissingFields),
		)
		return
	}

	metadata.ReservationID = result.ReservationID
	metadata.FlowCompleted = true
	o.metrics.IncrementCounter(ctx, "ReservationCreated", nil)
	logger.Info("reservation created",
		zap.String("reservationID", result.ReservationID),
	)
}

// recordIncoming appends the inbound turn to the message log. The
// record also backs the idempotency check for redelivered events.
func (o *Orchestrator) recordIncoming(ctx context.Context, conv *conversation.Conversation, evt conversation.InboundEvent) {
	msg := &conversation.Message{
		ID:                uuid.New().String(),
		ConversationID:    conv.ID,
		Direction:         conversation.DirectionIncoming,
		Type:              evt.Classify(),
		Content:           evt.Content(),
		QuickReplyPayload: evt.ButtonPayload(),
		ExternalMessageID: evt.MessageID,
		FlowID:            conv.CurrentFlowID,
		NodeID:            conv.CurrentNodeID,
		CreatedAt:         o.now(),
	}
	if err := o.messages.Append(ctx, msg); err != nil {
		o.logger.Warn("failed to record incoming message", zap.Error(err))
	}
}

// recordOutgoing appends the dispatched response to the message log.
func (o *Orchestrator) recordOutgoing(ctx context.Context, conv *conversation.Conversation, resp *Response, flowID string) {
	msgType := conversation.TypeText
	if resp.ImageURL != "" {
		msgType = conversation.TypeImage
	}
	msg := &conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conv.ID,
		Direction:      conversation.DirectionOutgoing,
		Type:           msgType,
		Content:        resp.Text,
		FlowID:         flowID,
		NodeID:         resp.NodeID,
		CreatedAt:      o.now(),
	}
	if err := o.messages.Append(ctx, msg); err != nil {
		o.logger.Warn("failed to record outgoing message", zap.Error(err))
	}
}

func (o *Orchestrator) applyPatch(ctx context.Context, conv *conversation.Conversation, patch conversation.Patch, logger *zap.Logger) {
	if err := o.conversations.Update(ctx, conv.ID, patch); err != nil {
		if errors.IsConflict(err) {
			logger.Warn("conversation update lost a concurrent race", zap.Error(err))
			return
		}
		logger.Error("conversation update failed", zap.Error(err))
	}
}

func (o *Orchestrator) countTurn(ctx context.Context, source string) {
	o.metrics.IncrementCounter(ctx, "TurnsProcessed", map[string]string{"Source": source})
}

func classify(err error) errors.ErrorType {
	if appErr := errors.GetAppError(err); appErr != nil {
		return appErr.Type
	}
	return errors.ErrorTypeInternal
}

func timePtr(t time.Time) *time.Time {
	return &t
}
