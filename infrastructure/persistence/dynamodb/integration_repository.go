package dynamodb

import (
	"context"
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

// IntegrationRepository implements ports.IntegrationStore.
// Integrations are keyed by the messenger page id, which is what a
// webhook event carries.
type IntegrationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewIntegrationRepository creates a DynamoDB-backed integration
// store.
func NewIntegrationRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *IntegrationRepository {
	return &IntegrationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

type integrationItem struct {
	PK          string `dynamodbav:"PK"`
	SK          string `dynamodbav:"SK"`
	EntityType  string `dynamodbav:"EntityType"`
	ID          string `dynamodbav:"ID"`
	TenantID    string `dynamodbav:"TenantID"`
	PageID      string `dynamodbav:"PageID"`
	AccessToken string `dynamodbav:"AccessToken"`
	Status      string `dynamodbav:"Status"`
	CreatedAt   string `dynamodbav:"CreatedAt"`
}

// GetByPageID resolves the integration receiving events for a page.
func (r *IntegrationRepository) GetByPageID(ctx context.Context, pageID string) (*conversation.Integration, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("PAGE#%s", pageID)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return nil, errors.NewDatabaseError("get integration", err)
	}
	if out.Item == nil {
		return nil, errors.NewNotFoundError("integration")
	}

	var item integrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, errors.NewDatabaseError("unmarshal integration", err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	return &conversation.Integration{
		ID:          item.ID,
		TenantID:    item.TenantID,
		PageID:      item.PageID,
		AccessToken: item.AccessToken,
		Status:      item.Status,
		CreatedAt:   createdAt,
	}, nil
}
