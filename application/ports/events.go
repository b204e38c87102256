package ports

import (
	"context"
	"time"

	"chatflow-backend/domain/reservation"
)

// ReservationStore persists booking records.
type ReservationStore interface {
	Put(ctx context.Context, r *reservation.Reservation) error
}

// ReservationCreatedEvent is published when a completed flow produced
// a booking. Downstream consumers (notifications, the restaurant
// dashboard) subscribe via bus rules.
type ReservationCreatedEvent struct {
	ReservationID  string    `json:"reservationId"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	FlowID         string    `json:"flowId"`
	Name           string    `json:"name"`
	Date           string    `json:"date"`
	Time           string    `json:"time"`
	GuestCount     int       `json:"guestCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EventPublisher pushes integration events onto the event bus.
// Publishing is best-effort from the engine's point of view: a failed
// publish is logged by the implementation and never fails the turn.
type EventPublisher interface {
	PublishReservationCreated(ctx context.Context, evt ReservationCreatedEvent) error
}
