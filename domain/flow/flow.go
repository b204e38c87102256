// Package flow holds the in-memory model of a dialogue flow: a
// directed graph of message nodes authored in the visual flow builder,
// plus the trigger definition used to match new conversations to it.
package flow

import (
	"fmt"
	"strings"
)

// NodeKind tags the shape of a node. Source graphs carry loosely
// typed optional fields; the kind makes the valid combinations
// explicit.
type NodeKind string

const (
	KindMessage    NodeKind = "message"
	KindQuickReply NodeKind = "quick_reply"
	KindImage      NodeKind = "image"
	KindAction     NodeKind = "action"
)

// InputMode says how a node expects the user to answer.
type InputMode string

const (
	// InputModeUnset defers to inference from quick replies and edges.
	InputModeUnset    InputMode = ""
	InputModeButtons  InputMode = "buttons"
	InputModeFreeText InputMode = "free_text"
)

// QuickReply is one button offered under a node's message. Payload is
// used verbatim when no target node is configured.
type QuickReply struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Payload      string `json:"payload,omitempty"`
	TargetNodeID string `json:"targetNodeId,omitempty"`
}

// Node is a single dialogue step.
type Node struct {
	ID    string   `json:"id"`
	Kind  NodeKind `json:"kind"`
	Label string   `json:"label,omitempty"`
	Text  string   `json:"text,omitempty"`

	// ImageURL is set for KindImage nodes only.
	ImageURL string `json:"imageUrl,omitempty"`

	InputMode    InputMode    `json:"inputMode,omitempty"`
	QuickReplies []QuickReply `json:"quickReplies,omitempty"`

	// AwaitsField names the variable this node collects ("name",
	// "date", ...). The orchestrator uses it to pick the name
	// extractor for free-text answers.
	AwaitsField string `json:"awaitsField,omitempty"`
}

// DisplayLabel is the node's label, falling back to its text.
func (n *Node) DisplayLabel() string {
	if n.Label != "" {
		return n.Label
	}
	return n.Text
}

// Edge is a directed connection between two nodes. QuickReplyID is
// set when the edge belongs to a button; a free-text continuation
// edge has it empty.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	QuickReplyID string `json:"quickReplyId,omitempty"`
}

// IsQuickReplyEdge reports whether the edge is bound to a button.
func (e *Edge) IsQuickReplyEdge() bool {
	return e.QuickReplyID != ""
}

// Trigger defines when the matcher starts this flow for a free-text
// message that belongs to no active dialogue.
type Trigger struct {
	Keywords []string `json:"keywords"`
}

// Flow is a complete dialogue graph for one tenant.
type Flow struct {
	ID          string  `json:"id"`
	TenantID    string  `json:"tenantId"`
	Name        string  `json:"name"`
	StartNodeID string  `json:"startNodeId"`
	Nodes       []Node  `json:"nodes"`
	Edges       []Edge  `json:"edges"`
	Trigger     Trigger `json:"trigger"`
}

// NodeByID looks a node up by id.
func (f *Flow) NodeByID(id string) (*Node, bool) {
	for i := range f.Nodes {
		if f.Nodes[i].ID == id {
			return &f.Nodes[i], true
		}
	}
	return nil, false
}

// OutgoingEdges returns every edge leaving nodeID, in declaration
// order so downstream behavior is deterministic.
func (f *Flow) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range f.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IsTerminal reports end-of-flow for a node: no outgoing edges and no
// quick replies.
func (f *Flow) IsTerminal(n *Node) bool {
	return len(f.OutgoingEdges(n.ID)) == 0 && len(n.QuickReplies) == 0
}

// ResolveInputMode determines how a node expects input: explicit
// configuration wins; otherwise buttons if the node has quick
// replies; otherwise free text if any outgoing edge is not a
// quick-reply edge; otherwise buttons.
func (f *Flow) ResolveInputMode(n *Node) InputMode {
	if n.InputMode != InputModeUnset {
		return n.InputMode
	}
	if len(n.QuickReplies) > 0 {
		return InputModeButtons
	}
	for _, e := range f.OutgoingEdges(n.ID) {
		if !e.IsQuickReplyEdge() {
			return InputModeFreeText
		}
	}
	return InputModeButtons
}

// MatchesTrigger reports whether text activates this flow and, if so,
// the longest matching keyword. Matching is case-insensitive
// containment.
func (f *Flow) MatchesTrigger(text string) (string, bool) {
	lower := strings.ToLower(text)
	best := ""
	for _, kw := range f.Trigger.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) && len(kw) > len(best) {
			best = kw
		}
	}
	return best, best != ""
}

// Validate checks the graph invariants at load time: ids are unique,
// edges reference existing nodes, the start node exists, and every
// node reachable from the start either has a continuation or is
// terminal. (The terminal rule is definitional, so the reachability
// walk only guards against dangling references.)
func (f *Flow) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("flow id cannot be empty")
	}
	if len(f.Nodes) == 0 {
		return fmt.Errorf("flow %s has no nodes", f.ID)
	}

	ids := make(map[string]bool, len(f.Nodes))
	for i := range f.Nodes {
		n := &f.Nodes[i]
		if n.ID == "" {
			return fmt.Errorf("flow %s: node %d has no id", f.ID, i)
		}
		if ids[n.ID] {
			return fmt.Errorf("flow %s: duplicate node id %s", f.ID, n.ID)
		}
		ids[n.ID] = true
		if n.Kind == KindImage && n.ImageURL == "" {
			return fmt.Errorf("flow %s: image node %s has no imageUrl", f.ID, n.ID)
		}
	}

	if f.StartNodeID == "" {
		return fmt.Errorf("flow %s has no start node", f.ID)
	}
	if !ids[f.StartNodeID] {
		return fmt.Errorf("flow %s: start node %s does not exist", f.ID, f.StartNodeID)
	}

	for _, e := range f.Edges {
		if !ids[e.Source] {
			return fmt.Errorf("flow %s: edge %s references unknown source %s", f.ID, e.ID, e.Source)
		}
		if !ids[e.Target] {
			return fmt.Errorf("flow %s: edge %s references unknown target %s", f.ID, e.ID, e.Target)
		}
	}

	for i := range f.Nodes {
		n := &f.Nodes[i]
		for _, qr := range n.QuickReplies {
			if qr.TargetNodeID != "" && !ids[qr.TargetNodeID] {
				return fmt.Errorf("flow %s: quick reply %s on node %s targets unknown node %s",
					f.ID, qr.ID, n.ID, qr.TargetNodeID)
			}
		}
	}

	return nil
}
