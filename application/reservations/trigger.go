// Package reservations creates bookings from completed dialogue
// flows.
package reservations

import (
	"context"
	"time"

	"chatflow-backend/application/ports"
	"chatflow-backend/domain/reservation"
	"chatflow-backend/domain/variables"
	"chatflow-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Trigger implements ports.ReservationTrigger: it validates the
// collected variables, persists the booking and announces it on the
// event bus.
type Trigger struct {
	store     ports.ReservationStore
	publisher ports.EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewTrigger creates the reservation trigger.
func NewTrigger(store ports.ReservationStore, publisher ports.EventPublisher, logger *zap.Logger) *Trigger {
	return &Trigger{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Create builds and persists a reservation from the request. Missing
// required variables make the result unsuccessful without an error;
// only the persistence layer can fail the call.
func (t *Trigger) Create(ctx context.Context, req ports.ReservationRequest) (ports.ReservationResult, error) {
	if missing := variables.MissingReservationFields(req.Variables); len(missing) > 0 {
		return ports.ReservationResult{MissingFields: missing}, nil
	}

	r := reservation.FromVariables(req.Variables)
	r.ID = uuid.New().String()
	r.TenantID = req.TenantID
	r.ConversationID = req.ConversationID
	r.FlowID = req.FlowID
	r.SenderID = req.SenderID
	r.CreatedAt = t.now()

	if err := t.store.Put(ctx, &r); err != nil {
		return ports.ReservationResult{}, errors.Wrap(err, "persist reservation")
	}

	if t.publisher != nil {
		evt := ports.ReservationCreatedEvent{
			ReservationID:  r.ID,
			TenantID:       r.TenantID,
			ConversationID: r.ConversationID,
			FlowID:         r.FlowID,
			Name:           r.Name,
			Date:           r.Date,
			Time:           r.Time,
			GuestCount:     r.GuestCount,
			CreatedAt:      r.CreatedAt,
		}
		if err := t.publisher.PublishReservationCreated(ctx, evt); err != nil {
			// The booking is saved; a lost event only delays
			// downstream notification.
			t.logger.Warn("reservation event publish failed",
				zap.Error(err),
				zap.String("reservationID", r.ID),
			)
		}
	}

	return ports.ReservationResult{Success: true, ReservationID: r.ID}, nil
}
