// Package dynamodb implements the engine's stores on a single
// DynamoDB table. Conversations, messages, flows and reservations
// share the table under entity-prefixed keys; flows additionally
// project onto a tenant GSI.
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
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const metadataSK = "METADATA"

// ConversationRepository implements ports.ConversationStore.
type ConversationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewConversationRepository creates a DynamoDB-backed conversation
// store.
func NewConversationRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *ConversationRepository {
	return &ConversationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// conversationItem is the DynamoDB item for one conversation.
type conversationItem struct {
	PK            string            `dynamodbav:"PK"`
	SK            string            `dynamodbav:"SK"`
	EntityType    string            `dynamodbav:"EntityType"`
	ID            string            `dynamodbav:"ID"`
	IntegrationID string            `dynamodbav:"IntegrationID"`
	SenderID      string            `dynamodbav:"SenderID"`
	CurrentFlowID string            `dynamodbav:"CurrentFlowID,omitempty"`
	CurrentNodeID string            `dynamodbav:"CurrentNodeID,omitempty"`
	Status        string            `dynamodbav:"Status"`
	Variables     map[string]string `dynamodbav:"Variables,omitempty"`
	ReservationID string            `dynamodbav:"ReservationID,omitempty"`
	FlowCompleted bool              `dynamodbav:"FlowCompleted"`
	LastMessageAt string            `dynamodbav:"LastMessageAt"`
	Version       int64             `dynamodbav:"Version"`
}

// conversationID derives the stable id for an (integration, sender)
// pair. The id doubles as the partition key suffix, so Update never
// needs a lookup to locate the item.
func conversationID(integrationID, senderID string) string {
	return fmt.Sprintf("%s#%s", integrationID, senderID)
}

func conversationPK(conversationID string) string {
	return fmt.Sprintf("CONV#%s", conversationID)
}

// GetOrCreate returns the conversation for the pair, creating an
// empty active one on first contact. Creation uses a conditional put;
// losing the race to a concurrent creator falls back to reading the
// winner's item.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, integrationID, senderID string) (*conversation.Conversation, error) {
	id := conversationID(integrationID, senderID)

	conv, err := r.get(ctx, id)
	if err == nil {
		return conv, nil
	}
	if !errors.IsNotFound(err) {
		return nil, err
	}

	fresh := &conversation.Conversation{
		ID:            id,
		IntegrationID: integrationID,
		SenderID:      senderID,
		Status:        conversation.StatusActive,
		LastMessageAt: time.Now().UTC(),
		Version:       1,
	}

	item, err := attributevalue.MarshalMap(toConversationItem(fresh))
	if err != nil {
		return nil, errors.NewDatabaseError("marshal conversation", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			// Another event for this sender created it first.
			return r.get(ctx, id)
		}
		return nil, errors.NewDatabaseError("create conversation", err)
	}

	r.logger.Debug("conversation created",
		zap.String("conversationID", id),
		zap.String("integrationID", integrationID),
	)
	return fresh, nil
}

// Update applies the patch as one conditional write guarded by the
// expected version. A version mismatch surfaces as a conflict error.
func (r *ConversationRepository) Update(ctx context.Context, conversationID string, patch conversation.Patch) error {
	update := expression.Set(expression.Name("Version"), expression.Value(patch.ExpectedVersion+1))
	if patch.CurrentFlowID != nil {
		update = update.Set(expression.Name("CurrentFlowID"), expression.Value(*patch.CurrentFlowID))
	}
	if patch.CurrentNodeID != nil {
		update = update.Set(expression.Name("CurrentNodeID"), expression.Value(*patch.CurrentNodeID))
	}
	if patch.Status != nil {
		update = update.Set(expression.Name("Status"), expression.Value(string(*patch.Status)))
	}
	if patch.Metadata != nil {
		update = update.
			Set(expression.Name("Variables"), expression.Value(map[string]string(patch.Metadata.Variables))).
			Set(expression.Name("ReservationID"), expression.Value(patch.Metadata.ReservationID)).
			Set(expression.Name("FlowCompleted"), expression.Value(patch.Metadata.FlowCompleted))
	}
	if patch.LastMessageAt != nil {
		update = update.Set(expression.Name("LastMessageAt"), expression.Value(patch.LastMessageAt.UTC().Format(time.RFC3339Nano)))
	}

	condition := expression.Equal(expression.Name("Version"), expression.Value(patch.ExpectedVersion))

	expr, err := expression.NewBuilder().WithUpdate(update).WithCondition(condition).Build()
	if err != nil {
		return errors.NewDatabaseError("build update expression", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPK(conversationID)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			return errors.NewConflictError(fmt.Sprintf("conversation %s changed concurrently", conversationID))
		}
		return errors.NewDatabaseError("update conversation", err)
	}
	return nil
}

func (r *ConversationRepository) get(ctx context.Context, id string) (*conversation.Conversation, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conversationPK(id)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.NewDatabaseError("get conversation", err)
	}
	if out.Item == nil {
		return nil, errors.NewNotFoundError("conversation")
	}

	var item conversationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, errors.NewDatabaseError("unmarshal conversation", err)
	}
	return fromConversationItem(item)
}

func toConversationItem(c *conversation.Conversation) conversationItem {
	return conversationItem{
		PK:            conversationPK(c.ID),
		SK:            metadataSK,
		EntityType:    "CONVERSATION",
		ID:            c.ID,
		IntegrationID: c.IntegrationID,
		SenderID:      c.SenderID,
		CurrentFlowID: c.CurrentFlowID,
		CurrentNodeID: c.CurrentNodeID,
		Status:        string(c.Status),
		Variables:     c.Metadata.Variables,
		ReservationID: c.Metadata.ReservationID,
		FlowCompleted: c.Metadata.FlowCompleted,
		LastMessageAt: c.LastMessageAt.UTC().Format(time.RFC3339Nano),
		Version:       c.Version,
	}
}

func fromConversationItem(item conversationItem) (*conversation.Conversation, error) {
	lastMessageAt, err := time.Parse(time.RFC3339Nano, item.LastMessageAt)
	if err != nil {
		return nil, errors.NewDatabaseError("parse LastMessageAt", err)
	}
	return &conversation.Conversation{
		ID:            item.ID,
		IntegrationID: item.IntegrationID,
		SenderID:      item.SenderID,
		CurrentFlowID: item.CurrentFlowID,
		CurrentNodeID: item.CurrentNodeID,
		Status:        conversation.Status(item.Status),
		Metadata: conversation.Metadata{
			Variables:     item.Variables,
			ReservationID: item.ReservationID,
			FlowCompleted: item.FlowCompleted,
		},
		LastMessageAt: lastMessageAt,
		Version:       item.Version,
	}, nil
}
