// Package dialogue is the conversation flow engine: it resolves
// inbound events to conversations, advances the flow graph and
// produces the outbound response for each turn.
package dialogue

import (
	"fmt"
	"strings"

	"chatflow-backend/application/ports"
	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/variables"
	"chatflow-backend/pkg/errors"

	"go.uber.org/zap"
)

// Response is the rendered outcome of executing one node. NextNodeID
// names the linear continuation target when exactly one plain edge
// leaves the node; with multiple outgoing edges it stays empty and
// the dialogue waits for a button press instead.
type Response struct {
	Text         string
	ImageURL     string
	QuickReplies []ports.QuickReply
	NodeID       string
	NextNodeID   string
	EndOfFlow    bool
}

// Executor renders flow nodes into responses.
type Executor struct {
	logger *zap.Logger
}

// NewExecutor creates a node executor.
func NewExecutor(logger *zap.Logger) *Executor {
	return &Executor{logger: logger}
}

// QuickReplyPayload encodes the button payload that routes back to a
// flow node.
func QuickReplyPayload(flowID, nodeID string) string {
	return fmt.Sprintf("flow:%s:node:%s", flowID, nodeID)
}

// ParseQuickReplyPayload decodes a button payload produced by
// QuickReplyPayload. ok is false for foreign payloads.
func ParseQuickReplyPayload(payload string) (flowID, nodeID string, ok bool) {
	parts := strings.Split(payload, ":")
	if len(parts) != 4 || parts[0] != "flow" || parts[2] != "node" {
		return "", "", false
	}
	return parts[1], parts[3], true
}

// Execute renders the node with the conversation's variables and
// determines how the dialogue continues. An unknown node id is a
// local error; the caller logs it and treats the turn as "no
// response".
func (e *Executor) Execute(f *flow.Flow, nodeID string, vars variables.Variables) (*Response, error) {
	node, ok := f.NodeByID(nodeID)
	if !ok {
		return nil, errors.NewNotFoundError(fmt.Sprintf("node %s in flow %s", nodeID, f.ID))
	}

	text := variables.Substitute(node.Text, vars)

	outgoing := e.continuationEdges(f, node)
	endOfFlow := len(outgoing) == 0 && len(node.QuickReplies) == 0

	// A terminal node whose raw template carries no placeholders gets
	// the synthesized reservation summary appended, so the guest sees
	// exactly the fields that were collected.
	if endOfFlow && !variables.HasPlaceholders(node.Text) {
		if summary := buildSummary(vars); summary != "" {
			if text != "" {
				text += "\n\n"
			}
			text += summary
		}
	}

	resp := &Response{
		Text:      text,
		ImageURL:  node.ImageURL,
		NodeID:    node.ID,
		EndOfFlow: endOfFlow,
	}

	resp.QuickReplies = e.buildQuickReplies(f, node, outgoing)

	// Auto-advance only on a single plain edge. A button-bound edge
	// waits for its press even when it is the only way out.
	if len(outgoing) == 1 && len(node.QuickReplies) == 0 && !outgoing[0].IsQuickReplyEdge() {
		resp.NextNodeID = outgoing[0].Target
	}

	return resp, nil
}

// continuationEdges returns the outgoing edges relevant to the node's
// input mode: free-text nodes ignore button-bound edges.
func (e *Executor) continuationEdges(f *flow.Flow, node *flow.Node) []flow.Edge {
	all := f.OutgoingEdges(node.ID)
	if f.ResolveInputMode(node) != flow.InputModeFreeText {
		return all
	}
	var out []flow.Edge
	for _, edge := range all {
		if !edge.IsQuickReplyEdge() {
			out = append(out, edge)
		}
	}
	return out
}

// buildQuickReplies prefers the node's configured buttons; with none
// configured and several outgoing edges, one button per edge is
// synthesized from the target node's label. A single edge emits no
// buttons at all because the caller auto-advances.
func (e *Executor) buildQuickReplies(f *flow.Flow, node *flow.Node, outgoing []flow.Edge) []ports.QuickReply {
	if len(node.QuickReplies) > 0 {
		replies := make([]ports.QuickReply, 0, len(node.QuickReplies))
		for _, qr := range node.QuickReplies {
			payload := qr.Payload
			if qr.TargetNodeID != "" {
				payload = QuickReplyPayload(f.ID, qr.TargetNodeID)
			}
			replies = append(replies, ports.QuickReply{Title: qr.Title, Payload: payload})
		}
		return replies
	}

	if len(outgoing) <= 1 {
		return nil
	}

	replies := make([]ports.QuickReply, 0, len(outgoing))
	for _, edge := range outgoing {
		title := edge.Target
		if target, ok := f.NodeByID(edge.Target); ok {
			title = target.DisplayLabel()
		}
		replies = append(replies, ports.QuickReply{
			Title:   title,
			Payload: QuickReplyPayload(f.ID, edge.Target),
		})
	}
	return replies
}

// summaryFields is the render order of the synthesized end-of-flow
// summary. Only filled fields appear.
var summaryFields = []struct {
	key   string
	label string
}{
	{variables.KeyName, "Name"},
	{variables.KeyDate, "Datum"},
	{variables.KeyTime, "Uhrzeit"},
	{variables.KeyGuestCount, "Personen"},
	{variables.KeyPhone, "Telefon"},
	{variables.KeyEmail, "E-Mail"},
	{variables.KeySpecialRequests, "Anmerkungen"},
}

func buildSummary(vars variables.Variables) string {
	var lines []string
	for _, field := range summaryFields {
		if !vars.Has(field.key) {
			continue
		}
		line := variables.Substitute(
			fmt.Sprintf("%s: {{%s}}", field.label, field.key), vars)
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
