// Package reservation models the booking created when a dialogue
// flow completes with every required field collected.
package reservation

import (
	"strconv"
	"time"

	"chatflow-backend/domain/variables"
)

// Status is the lifecycle state of a reservation. New reservations
// start pending; confirmation happens outside the dialogue engine.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
)

// Reservation is a booking request assembled from conversation
// variables. Date is YYYY-MM-DD and Time is HH:MM, as stored in the
// variables.
type Reservation struct {
	ID             string `json:"id"`
	TenantID       string `json:"tenantId"`
	ConversationID string `json:"conversationId"`
	FlowID         string `json:"flowId"`
	SenderID       string `json:"senderId"`

	Name            string `json:"name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	GuestCount      int    `json:"guestCount"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty"`
	SpecialRequests string `json:"specialRequests,omitempty"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// FromVariables builds a pending reservation from collected
// variables. The caller must have verified the required fields are
// present; a malformed guest count falls back to zero rather than
// failing the booking.
func FromVariables(vars variables.Variables) Reservation {
	guests, _ := strconv.Atoi(vars[variables.KeyGuestCount])
	return Reservation{
		Name:            vars[variables.KeyName],
		Date:            vars[variables.KeyDate],
		Time:            vars[variables.KeyTime],
		GuestCount:      guests,
		Phone:           vars[variables.KeyPhone],
		Email:           vars[variables.KeyEmail],
		SpecialRequests: vars[variables.KeySpecialRequests],
		Status:          StatusPending,
	}
}
