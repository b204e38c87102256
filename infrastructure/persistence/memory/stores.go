// Package memory holds in-memory store implementations used for
// local development and tests. Semantics mirror the DynamoDB
// repositories, version check included.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"chatflow-backend/domain/conversation"
	"chatflow-backend/domain/flow"
	"chatflow-backend/domain/reservation"
	"chatflow-backend/pkg/errors"
)

// ConversationStore is an in-memory ports.ConversationStore.
type ConversationStore struct {
	mu    sync.RWMutex
	items map[string]*conversation.Conversation
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{items: make(map[string]*conversation.Conversation)}
}

// GetOrCreate returns the conversation for the pair, creating an
// active empty one on first contact.
func (s *ConversationStore) GetOrCreate(_ context.Context, integrationID, senderID string) (*conversation.Conversation, error) {
	id := fmt.Sprintf("%s#%s", integrationID, senderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.items[id]; ok {
		return clone(existing), nil
	}

	fresh := &conversation.Conversation{
		ID:            id,
		IntegrationID: integrationID,
		SenderID:      senderID,
		Status:        conversation.StatusActive,
		LastMessageAt: time.Now().UTC(),
		Version:       1,
	}
	s.items[id] = fresh
	return clone(fresh), nil
}

// Update applies the patch when the stored version still matches.
func (s *ConversationStore) Update(_ context.Context, conversationID string, patch conversation.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.items[conversationID]
	if !ok {
		return errors.NewNotFoundError("conversation")
	}
	if stored.Version != patch.ExpectedVersion {
		return errors.NewConflictError(fmt.Sprintf("conversation %s changed concurrently", conversationID))
	}
	patch.Apply(stored)
	return nil
}

func clone(c *conversation.Conversation) *conversation.Conversation {
	out := *c
	out.Metadata.Variables = c.Metadata.Variables.Clone()
	return &out
}

// MessageStore is an in-memory ports.MessageStore.
type MessageStore struct {
	mu       sync.RWMutex
	messages []*conversation.Message
	seen     map[string]bool
}

// NewMessageStore creates an empty message log.
func NewMessageStore() *MessageStore {
	return &MessageStore{seen: make(map[string]bool)}
}

// Exists reports whether the external message id was recorded.
func (s *MessageStore) Exists(_ context.Context, externalMessageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seen[externalMessageID], nil
}

// Append records one turn.
func (s *MessageStore) Append(_ context.Context, msg *conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Direction == conversation.DirectionIncoming && msg.ExternalMessageID != "" {
		if s.seen[msg.ExternalMessageID] {
			return errors.NewDuplicateError(msg.ExternalMessageID)
		}
		s.seen[msg.ExternalMessageID] = true
	}

	copied := *msg
	s.messages = append(s.messages, &copied)
	return nil
}

// Messages returns a snapshot of the log, oldest first.
func (s *MessageStore) Messages() []*conversation.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*conversation.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// FlowStore is an in-memory ports.FlowStore.
type FlowStore struct {
	mu    sync.RWMutex
	flows map[string]*flow.Flow
}

// NewFlowStore creates an empty flow store.
func NewFlowStore() *FlowStore {
	return &FlowStore{flows: make(map[string]*flow.Flow)}
}

// Put adds or replaces a flow definition.
func (s *FlowStore) Put(f *flow.Flow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[f.ID] = f
}

// GetFlow retrieves a flow graph by id.
func (s *FlowStore) GetFlow(_ context.Context, flowID string) (*flow.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[flowID]
	if !ok {
		return nil, errors.NewNotFoundError("flow")
	}
	return f, nil
}

// FindFlowsByTenant returns every flow of a tenant.
func (s *FlowStore) FindFlowsByTenant(_ context.Context, tenantID string) ([]*flow.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*flow.Flow
	for _, f := range s.flows {
		if f.TenantID == tenantID {
			out = append(out, f)
		}
	}
	return out, nil
}

// IntegrationStore is an in-memory ports.IntegrationStore.
type IntegrationStore struct {
	mu     sync.RWMutex
	byPage map[string]*conversation.Integration
}

// NewIntegrationStore creates an empty integration store.
func NewIntegrationStore() *IntegrationStore {
	return &IntegrationStore{byPage: make(map[string]*conversation.Integration)}
}

// Put registers an integration under its page id.
func (s *IntegrationStore) Put(i *conversation.Integration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPage[i.PageID] = i
}

// GetByPageID resolves the integration for a page.
func (s *IntegrationStore) GetByPageID(_ context.Context, pageID string) (*conversation.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.byPage[pageID]
	if !ok {
		return nil, errors.NewNotFoundError("integration")
	}
	return i, nil
}

// ReservationStore is an in-memory ports.ReservationStore.
type ReservationStore struct {
	mu    sync.RWMutex
	items map[string]*reservation.Reservation
}

// NewReservationStore creates an empty reservation store.
func NewReservationStore() *ReservationStore {
	return &ReservationStore{items: make(map[string]*reservation.Reservation)}
}

// Put writes a new reservation.
func (s *ReservationStore) Put(_ context.Context, r *reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[r.ID]; ok {
		return errors.NewConflictError(fmt.Sprintf("reservation %s already exists", r.ID))
	}
	copied := *r
	s.items[r.ID] = &copied
	return nil
}

// Get returns a reservation by id.
func (s *ReservationStore) Get(id string) (*reservation.Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.items[id]
	return r, ok
}
