package dynamodb

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"chatflow-backend/domain/reservation"
	"chatflow-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// ReservationRepository implements ports.ReservationStore.
// Reservations partition by tenant so the dashboard can list a
// restaurant's bookings with one query.
type ReservationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewReservationRepository creates a DynamoDB-backed reservation
// store.
func NewReservationRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *ReservationRepository {
	return &ReservationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type reservationItem struct {
	PK              string `dynamodbav:"PK"`
	SK              string `dynamodbav:"SK"`
	EntityType      string `dynamodbav:"EntityType"`
	ID              string `dynamodbav:"ID"`
	TenantID        string `dynamodbav:"TenantID"`
	ConversationID  string `dynamodbav:"ConversationID"`
	FlowID          string `dynamodbav:"FlowID"`
	SenderID        string `dynamodbav:"SenderID"`
	Name            string `dynamodbav:"Name"`
	Date            string `dynamodbav:"Date"`
	Time            string `dynamodbav:"Time"`
	GuestCount      int    `dynamodbav:"GuestCount"`
	Phone           string `dynamodbav:"Phone,omitempty"`
	Email           string `dynamodbav:"Email,omitempty"`
	SpecialRequests string `dynamodbav:"SpecialRequests,omitempty"`
	Status          string `dynamodbav:"Status"`
	CreatedAt       string `dynamodbav:"CreatedAt"`
}

// Put writes a new reservation. The id is fresh per call, so an
// existing item with the same key means a bug upstream and fails the
// write.
func (r *ReservationRepository) Put(ctx context.Context, res *reservation.Reservation) error {
	item, err := attributevalue.MarshalMap(reservationItem{
		PK:              fmt.Sprintf("TENANT#%s", res.TenantID),
		SK:              fmt.Sprintf("RESERVATION#%s", res.ID),
		EntityType:      "RESERVATION",
		ID:              res.ID,
		TenantID:        res.TenantID,
		ConversationID:  res.ConversationID,
		FlowID:          res.FlowID,
		SenderID:        res.SenderID,
		Name:            res.Name,
		Date:            res.Date,
		Time:            res.Time,
		GuestCount:      res.GuestCount,
		Phone:           res.Phone,
		Email:           res.Email,
		SpecialRequests: res.SpecialRequests,
		Status:          string(res.Status),
		CreatedAt:       res.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.NewDatabaseError("marshal reservation", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			return errors.NewConflictError(fmt.Sprintf("reservation %s already exists", res.ID))
		}
		return errors.NewDatabaseError("put reservation", err)
	}

	r.logger.Info("reservation persisted",
		zap.String("reservationID", res.ID),
		zap.String("tenantID", res.TenantID),
		zap.String("date", res.Date),
		zap.String("time", res.Time),
	)
	return nil
}
