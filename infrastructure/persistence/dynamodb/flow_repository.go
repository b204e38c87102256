package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"

	"chatflow-backend/domain/flow"
	"chatflow-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// FlowRepository implements ports.FlowStore. Flow graphs are written
// by the dashboard and read here; the definition is stored as one
// JSON document per flow, with a tenant GSI projection for trigger
// matching.
type FlowRepository struct {
	client    *dynamodb.Client
	tableName string
	indexName string
	logger    *zap.Logger
}

// NewFlowRepository creates a DynamoDB-backed flow store.
func NewFlowRepository(client *dynamodb.Client, tableName, indexName string, logger *zap.Logger) *FlowRepository {
	return &FlowRepository{
		client:    client,
		tableName: tableName,
		indexName: indexName,
		logger:    logger,
	}
}

type flowItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"EntityType"`
	FlowID     string `dynamodbav:"FlowID"`
	TenantID   string `dynamodbav:"TenantID"`
	Name       string `dynamodbav:"Name"`
	Definition string `dynamodbav:"Definition"`
}

func flowPK(flowID string) string {
	return fmt.Sprintf("FLOW#%s", flowID)
}

// GetFlow retrieves one flow graph by id.
func (r *FlowRepository) GetFlow(ctx context.Context, flowID string) (*flow.Flow, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: flowPK(flowID)},
			"SK": &types.AttributeValueMemberS{Value: metadataSK},
		},
	})
	if err != nil {
		return nil, errors.NewDatabaseError("get flow", err)
	}
	if out.Item == nil {
		return nil, errors.NewNotFoundError("flow")
	}

	var item flowItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, errors.NewDatabaseError("unmarshal flow", err)
	}
	return decodeFlow(item)
}

// FindFlowsByTenant queries the tenant GSI and returns every flow of
// the tenant, definition included.
func (r *FlowRepository) FindFlowsByTenant(ctx context.Context, tenantID string) ([]*flow.Flow, error) {
	keyCondition := expression.Key("GSI1PK").Equal(expression.Value(fmt.Sprintf("TENANT#%s", tenantID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCondition).Build()
	if err != nil {
		return nil, errors.NewDatabaseError("build flow query", err)
	}

	var flows []*flow.Flow
	var startKey map[string]types.AttributeValue
	for {
		out, err := r.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(r.tableName),
			IndexName:                 aws.String(r.indexName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, errors.NewDatabaseError("query flows by tenant", err)
		}

		for _, raw := range out.Items {
			var item flowItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				return nil, errors.NewDatabaseError("unmarshal flow", err)
			}
			f, err := decodeFlow(item)
			if err != nil {
				// A broken definition must not hide the tenant's
				// other flows from the matcher.
				r.logger.Error("skipping undecodable flow",
					zap.Error(err),
					zap.String("flowID", item.FlowID),
					zap.String("tenantID", tenantID),
				)
				continue
			}
			flows = append(flows, f)
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return flows, nil
}

func decodeFlow(item flowItem) (*flow.Flow, error) {
	var f flow.Flow
	if err := json.Unmarshal([]byte(item.Definition), &f); err != nil {
		return nil, errors.NewDatabaseError("decode flow definition", err)
	}
	f.ID = item.FlowID
	f.TenantID = item.TenantID
	if f.Name == "" {
		f.Name = item.Name
	}
	return &f, nil
}
