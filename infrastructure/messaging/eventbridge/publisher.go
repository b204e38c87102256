// Package eventbridge publishes integration events to an AWS
// EventBridge bus.
package eventbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"chatflow-backend/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

const (
	source                = "chatflow.engine"
	detailTypeReservation = "ReservationCreated"
)

// Publisher implements ports.EventPublisher on EventBridge.
type Publisher struct {
	client       *eventbridge.Client
	eventBusName string
	logger       *zap.Logger
}

// NewPublisher creates an EventBridge publisher.
func NewPublisher(client *eventbridge.Client, eventBusName string, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:       client,
		eventBusName: eventBusName,
		logger:       logger,
	}
}

// PublishReservationCreated puts one ReservationCreated event on the
// bus. Rules and targets for consumers are managed in infrastructure
// code, not here.
func (p *Publisher) PublishReservationCreated(ctx context.Context, evt ports.ReservationCreatedEvent) error {
	detail, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal reservation event: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.eventBusName),
		Source:       aws.String(source),
		DetailType:   aws.String(detailTypeReservation),
		Detail:       aws.String(string(detail)),
		Time:         aws.Time(evt.CreatedAt),
		Resources: []string{
			fmt.Sprintf("arn:aws:chatflow::%s", evt.ReservationID),
		},
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("publish to EventBridge: %w", err)
	}
	if result.FailedEntryCount > 0 {
		for _, e := range result.Entries {
			if e.ErrorCode != nil {
				p.logger.Error("event entry rejected",
					zap.String("errorCode", *e.ErrorCode),
					zap.String("errorMessage", aws.ToString(e.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("reservation event published",
		zap.String("reservationID", evt.ReservationID),
		zap.String("eventBus", p.eventBusName),
	)
	return nil
}
