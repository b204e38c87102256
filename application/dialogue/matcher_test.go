package dialogue

import (
	"context"
	"testing"

	"chatflow-backend/domain/flow"
	"chatflow-backend/infrastructure/persistence/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func triggerFlow(id, tenantID string, keywords ...string) *flow.Flow {
	return &flow.Flow{
		ID:          id,
		TenantID:    tenantID,
		StartNodeID: "start",
		Nodes:       []flow.Node{{ID: "start", Kind: flow.KindMessage, Text: "Hi"}},
		Trigger:     flow.Trigger{Keywords: keywords},
	}
}

func TestMatcherPicksLongestKeyword(t *testing.T) {
	store := memory.NewFlowStore()
	store.Put(triggerFlow("f-menu", "t1", "karte"))
	store.Put(triggerFlow("f-resv", "t1", "tisch reservieren", "tisch"))

	m := NewMatcher(store, zap.NewNop())

	got, err := m.Match(context.Background(), "t1", "Ich möchte einen Tisch reservieren")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f-resv", got.ID)
}

func TestMatcherTieBreaksOnFlowID(t *testing.T) {
	store := memory.NewFlowStore()
	store.Put(triggerFlow("f-b", "t1", "tisch"))
	store.Put(triggerFlow("f-a", "t1", "essen"))

	m := NewMatcher(store, zap.NewNop())

	// Both keywords are five runes; the lexically smaller flow id
	// wins regardless of store iteration order.
	got, err := m.Match(context.Background(), "t1", "tisch und essen")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "f-a", got.ID)
}

func TestMatcherNoMatch(t *testing.T) {
	store := memory.NewFlowStore()
	store.Put(triggerFlow("f1", "t1", "reservieren"))

	m := NewMatcher(store, zap.NewNop())

	got, err := m.Match(context.Background(), "t1", "hallo")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMatcherScopedToTenant(t *testing.T) {
	store := memory.NewFlowStore()
	store.Put(triggerFlow("f1", "other-tenant", "reservieren"))

	m := NewMatcher(store, zap.NewNop())

	got, err := m.Match(context.Background(), "t1", "reservieren bitte")
	require.NoError(t, err)
	assert.Nil(t, got)
}
