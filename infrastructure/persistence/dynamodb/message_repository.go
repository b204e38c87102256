package dynamodb

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"chatflow-backend/domain/conversation"
	"chatflow-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// MessageRepository implements ports.MessageStore. Messages append
// under their conversation's partition; incoming messages also write
// a dedup marker keyed by the channel's message id, which backs the
// idempotency check.
type MessageRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewMessageRepository creates a DynamoDB-backed message log.
func NewMessageRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *MessageRepository {
	return &MessageRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type messageItem struct {
	PK                string `dynamodbav:"PK"`
	SK                string `dynamodbav:"SK"`
	EntityType        string `dynamodbav:"EntityType"`
	ID                string `dynamodbav:"ID"`
	ConversationID    string `dynamodbav:"ConversationID"`
	Direction         string `dynamodbav:"Direction"`
	Type              string `dynamodbav:"Type"`
	Content           string `dynamodbav:"Content,omitempty"`
	QuickReplyPayload string `dynamodbav:"QuickReplyPayload,omitempty"`
	ExternalMessageID string `dynamodbav:"ExternalMessageID,omitempty"`
	FlowID            string `dynamodbav:"FlowID,omitempty"`
	NodeID            string `dynamodbav:"NodeID,omitempty"`
	CreatedAt         string `dynamodbav:"CreatedAt"`
}

type dedupItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	CreatedAt string `dynamodbav:"CreatedAt"`
}

func dedupPK(externalMessageID string) string {
	return fmt.Sprintf("MSGID#%s", externalMessageID)
}

// Exists reports whether an incoming message with this external id
// was already recorded. The read is strongly consistent so a
// redelivery racing its original sees the marker.
func (r *MessageRepository) Exists(ctx context.Context, externalMessageID string) (bool, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: dedupPK(externalMessageID)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return false, errors.NewDatabaseError("check message dedup", err)
	}
	return out.Item != nil, nil
}

// Append records one turn. For incoming messages the dedup marker is
// written first with a conditional put, so a concurrent redelivery of
// the same external id fails as a duplicate before the log grows.
func (r *MessageRepository) Append(ctx context.Context, msg *conversation.Message) error {
	if msg.Direction == conversation.DirectionIncoming && msg.ExternalMessageID != "" {
		if err := r.putDedupMarker(ctx, msg); err != nil {
			return err
		}
	}

	item, err := attributevalue.MarshalMap(messageItem{
		PK:                fmt.Sprintf("CONV#%s", msg.ConversationID),
		SK:                fmt.Sprintf("MSG#%s#%s", msg.CreatedAt.UTC().Format(time.RFC3339Nano), msg.ID),
		EntityType:        "MESSAGE",
		ID:                msg.ID,
		ConversationID:    msg.ConversationID,
		Direction:         string(msg.Direction),
		Type:              string(msg.Type),
		Content:           msg.Content,
		QuickReplyPayload: msg.QuickReplyPayload,
		ExternalMessageID: msg.ExternalMessageID,
		FlowID:            msg.FlowID,
		NodeID:            msg.NodeID,
		CreatedAt:         msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.NewDatabaseError("marshal message", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return errors.NewDatabaseError("append message", err)
	}
	return nil
}

func (r *MessageRepository) putDedupMarker(ctx context.Context, msg *conversation.Message) error {
	item, err := attributevalue.MarshalMap(dedupItem{
		PK:         dedupPK(msg.ExternalMessageID),
		SK:         metadataSK,
		EntityType: "MESSAGE_DEDUP",
		CreatedAt:  msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.NewDatabaseError("marshal dedup marker", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			r.logger.Debug("dedup marker already present",
				zap.String("externalMessageID", msg.ExternalMessageID),
			)
			return errors.NewDuplicateError(msg.ExternalMessageID)
		}
		return errors.NewDatabaseError("write dedup marker", err)
	}
	return nil
}
