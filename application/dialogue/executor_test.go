package dialogue

import (
	"testing"

	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/variables"
	"chatflow-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func reservationFlow() *flow.Flow {
	return &flow.Flow{
		ID:          "resv",
		TenantID:    "t1",
		StartNodeID: "welcome",
		Nodes: []flow.Node{
			{ID: "welcome", Kind: flow.KindMessage, Text: "Willkommen bei {{name}}!"},
			{
				ID:   "choose",
				Kind: flow.KindQuickReply,
				Text: "Drinnen oder draußen?",
				QuickReplies: []flow.QuickReply{
					{ID: "q-in", Title: "Drinnen", TargetNodeID: "confirm"},
					{ID: "q-out", Title: "Draußen", TargetNodeID: "confirm"},
				},
			},
			{ID: "ask-date", Kind: flow.KindMessage, Text: "Für wann?", AwaitsField: variables.KeyDate},
			{ID: "confirm", Kind: flow.KindMessage, Text: "Alles klar, bis bald!"},
			{ID: "menu", Kind: flow.KindImage, Label: "Speisekarte", ImageURL: "https://cdn.example.com/menu.jpg"},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "welcome", Target: "ask-date"},
			{ID: "e2", Source: "ask-date", Target: "choose"},
			{ID: "e3", Source: "choose", Target: "confirm", QuickReplyID: "q-in"},
		},
	}
}

func TestExecuteSubstitutesAndAdvances(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	f := reservationFlow()

	resp, err := e.Execute(f, "welcome", variables.Variables{variables.KeyName: "Luigi"})
	require.NoError(t, err)

	assert.Equal(t, "Willkommen bei Luigi!", resp.Text)
	assert.Equal(t, "welcome", resp.NodeID)
	assert.Equal(t, "ask-date", resp.NextNodeID)
	assert.False(t, resp.EndOfFlow)
	assert.Empty(t, resp.QuickReplies)
}

func TestExecuteUnresolvedPlaceholderStaysVerbatim(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	resp, err := e.Execute(reservationFlow(), "welcome", variables.Variables{})
	require.NoError(t, err)
	assert.Equal(t, "Willkommen bei {{name}}!", resp.Text)
}

func TestExecuteConfiguredQuickReplies(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	resp, err := e.Execute(reservationFlow(), "choose", variables.Variables{})
	require.NoError(t, err)

	require.Len(t, resp.QuickReplies, 2)
	assert.Equal(t, "Drinnen", resp.QuickReplies[0].Title)
	assert.Equal(t, "flow:resv:node:confirm", resp.QuickReplies[0].Payload)
	assert.False(t, resp.EndOfFlow)
	// A button choice is pending, so there is no auto-advance.
	assert.Empty(t, resp.NextNodeID)
}

func TestExecuteTerminalNodeAppendsSummary(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	vars := variables.Variables{
		variables.KeyName:       "Max Mustermann",
		variables.KeyDate:       "2026-05-12",
		variables.KeyTime:       "19:30",
		variables.KeyGuestCount: "4",
	}

	resp, err := e.Execute(reservationFlow(), "confirm", vars)
	require.NoError(t, err)

	assert.True(t, resp.EndOfFlow)
	assert.Contains(t, resp.Text, "Alles klar, bis bald!")
	assert.Contains(t, resp.Text, "Name: Max Mustermann")
	assert.Contains(t, resp.Text, "Datum: 12.05.2026")
	assert.Contains(t, resp.Text, "Uhrzeit: 19:30")
	assert.Contains(t, resp.Text, "Personen: 4")
	assert.NotContains(t, resp.Text, "Telefon")
}

func TestExecuteTerminalWithoutVariablesSkipsSummary(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	resp, err := e.Execute(reservationFlow(), "confirm", variables.Variables{})
	require.NoError(t, err)
	assert.Equal(t, "Alles klar, bis bald!", resp.Text)
	assert.True(t, resp.EndOfFlow)
}

func TestExecuteImageNode(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	resp, err := e.Execute(reservationFlow(), "menu", variables.Variables{})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/menu.jpg", resp.ImageURL)
}

func TestExecuteUnknownNode(t *testing.T) {
	e := NewExecutor(zap.NewNop())

	_, err := e.Execute(reservationFlow(), "ghost", variables.Variables{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteSynthesizedButtonsFromEdges(t *testing.T) {
	e := NewExecutor(zap.NewNop())
	f := &flow.Flow{
		ID:          "branchy",
		StartNodeID: "fork",
		Nodes: []flow.Node{
			{ID: "fork", Kind: flow.KindMessage, Text: "Wie weiter?", InputMode: flow.InputModeButtons},
			{ID: "a", Kind: flow.KindMessage, Label: "Reservieren", Text: "..."},
			{ID: "b", Kind: flow.KindMessage, Text: "Öffnungszeiten"},
		},
		Edges: []flow.Edge{
			{ID: "e1", Source: "fork", Target: "a"},
			{ID: "e2", Source: "fork", Target: "b"},
		},
	}

	resp, err := e.Execute(f, "fork", variables.Variables{})
	require.NoError(t, err)

	require.Len(t, resp.QuickReplies, 2)
	assert.Equal(t, "Reservieren", resp.QuickReplies[0].Title)
	assert.Equal(t, "flow:branchy:node:a", resp.QuickReplies[0].Payload)
	// Label missing, text used instead.
	assert.Equal(t, "Öffnungszeiten", resp.QuickReplies[1].Title)
	assert.Empty(t, resp.NextNodeID)
}

func TestQuickReplyPayloadRoundTrip(t *testing.T) {
	payload := QuickReplyPayload("f1", "n1")
	assert.Equal(t, "flow:f1:node:n1", payload)

	flowID, nodeID, ok := ParseQuickReplyPayload(payload)
	require.True(t, ok)
	assert.Equal(t, "f1", flowID)
	assert.Equal(t, "n1", nodeID)

	_, _, ok = ParseQuickReplyPayload("something-external")
	assert.False(t, ok)
	_, _, ok = ParseQuickReplyPayload("flow:f1:edge:n1")
	assert.False(t, ok)
}
