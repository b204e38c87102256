package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearFlow() *Flow {
	return &Flow{
		ID:          "f1",
		TenantID:    "t1",
		Name:        "Reservierung",
		StartNodeID: "start",
		Nodes: []Node{
			{ID: "start", Kind: KindMessage, Text: "Willkommen!"},
			{ID: "ask-date", Kind: KindMessage, Text: "Wann?", AwaitsField: "date"},
			{ID: "done", Kind: KindMessage, Text: "Danke!"},
		},
		Edges: []Edge{
			{ID: "e1", Source: "start", Target: "ask-date"},
			{ID: "e2", Source: "ask-date", Target: "done"},
		},
		Trigger: Trigger{Keywords: []string{"reservieren", "tisch"}},
	}
}

func TestNodeByID(t *testing.T) {
	f := linearFlow()

	n, ok := f.NodeByID("ask-date")
	require.True(t, ok)
	assert.Equal(t, "Wann?", n.Text)

	_, ok = f.NodeByID("missing")
	assert.False(t, ok)
}

func TestOutgoingEdgesPreserveOrder(t *testing.T) {
	f := linearFlow()
	f.Edges = append(f.Edges, Edge{ID: "e3", Source: "start", Target: "done"})

	edges := f.OutgoingEdges("start")
	require.Len(t, edges, 2)
	assert.Equal(t, "e1", edges[0].ID)
	assert.Equal(t, "e3", edges[1].ID)
}

func TestIsTerminal(t *testing.T) {
	f := linearFlow()

	start, _ := f.NodeByID("start")
	done, _ := f.NodeByID("done")

	assert.False(t, f.IsTerminal(start))
	assert.True(t, f.IsTerminal(done))

	// Quick replies keep a node alive even without edges.
	done.QuickReplies = []QuickReply{{ID: "q1", Title: "Ja", Payload: "yes"}}
	assert.False(t, f.IsTerminal(done))
}

func TestResolveInputMode(t *testing.T) {
	f := linearFlow()

	t.Run("explicit wins", func(t *testing.T) {
		n := &Node{ID: "start", InputMode: InputModeButtons}
		assert.Equal(t, InputModeButtons, f.ResolveInputMode(n))
	})

	t.Run("quick replies imply buttons", func(t *testing.T) {
		n := &Node{ID: "x", QuickReplies: []QuickReply{{ID: "q", Title: "Ja"}}}
		assert.Equal(t, InputModeButtons, f.ResolveInputMode(n))
	})

	t.Run("plain edge implies free text", func(t *testing.T) {
		n, _ := f.NodeByID("ask-date")
		assert.Equal(t, InputModeFreeText, f.ResolveInputMode(n))
	})

	t.Run("only button edges imply buttons", func(t *testing.T) {
		f2 := linearFlow()
		f2.Edges = []Edge{{ID: "e1", Source: "start", Target: "done", QuickReplyID: "q1"}}
		n, _ := f2.NodeByID("start")
		assert.Equal(t, InputModeButtons, f2.ResolveInputMode(n))
	})
}

func TestMatchesTrigger(t *testing.T) {
	f := linearFlow()

	kw, ok := f.MatchesTrigger("Ich möchte gerne RESERVIEREN bitte")
	require.True(t, ok)
	assert.Equal(t, "reservieren", kw)

	// Longest keyword wins when several match.
	kw, ok = f.MatchesTrigger("tisch reservieren")
	require.True(t, ok)
	assert.Equal(t, "reservieren", kw)

	_, ok = f.MatchesTrigger("hallo welt")
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	t.Run("valid flow", func(t *testing.T) {
		assert.NoError(t, linearFlow().Validate())
	})

	t.Run("duplicate node id", func(t *testing.T) {
		f := linearFlow()
		f.Nodes = append(f.Nodes, Node{ID: "start", Kind: KindMessage})
		assert.Error(t, f.Validate())
	})

	t.Run("missing start node", func(t *testing.T) {
		f := linearFlow()
		f.StartNodeID = "nope"
		assert.Error(t, f.Validate())
	})

	t.Run("edge to unknown node", func(t *testing.T) {
		f := linearFlow()
		f.Edges = append(f.Edges, Edge{ID: "bad", Source: "start", Target: "ghost"})
		assert.Error(t, f.Validate())
	})

	t.Run("image node needs url", func(t *testing.T) {
		f := linearFlow()
		f.Nodes = append(f.Nodes, Node{ID: "img", Kind: KindImage})
		assert.Error(t, f.Validate())
	})

	t.Run("quick reply to unknown target", func(t *testing.T) {
		f := linearFlow()
		f.Nodes[2].QuickReplies = []QuickReply{{ID: "q1", Title: "Ja", TargetNodeID: "ghost"}}
		assert.Error(t, f.Validate())
	})
}
