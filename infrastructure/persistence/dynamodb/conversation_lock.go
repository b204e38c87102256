package dynamodb

import (
	"context"
	goerrors "errors"
	"fmt"
	"time"

	"chatflow-backend/application/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConversationLocker implements ports.ConversationLocker with
// DynamoDB conditional writes. A lock item carries a TTL so a crashed
// instance cannot strand its conversation; the conditional put treats
// an expired item as free.
type ConversationLocker struct {
	client       *dynamodb.Client
	tableName    string
	lockDuration time.Duration
	waitTimeout  time.Duration
	logger       *zap.Logger
}

// NewConversationLocker creates a DynamoDB-backed conversation
// locker.
func NewConversationLocker(client *dynamodb.Client, tableName string, logger *zap.Logger) *ConversationLocker {
	return &ConversationLocker{
		client:       client,
		tableName:    tableName,
		lockDuration: 30 * time.Second,
		waitTimeout:  10 * time.Second,
		logger:       logger,
	}
}

var errLockHeld = goerrors.New("conversation lock held")

// Acquire blocks until the conversation's lock is free or the wait
// timeout passes. Contention here is rare; it only happens when the
// platform delivers events for one sender to two instances at once.
func (l *ConversationLocker) Acquire(ctx context.Context, conversationID string) (ports.ConversationLock, error) {
	deadline := time.Now().Add(l.waitTimeout)
	retryInterval := 100 * time.Millisecond

	for {
		lock, err := l.tryAcquire(ctx, conversationID)
		if err == nil {
			return lock, nil
		}
		if !goerrors.Is(err, errLockHeld) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout acquiring lock for conversation %s", conversationID)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

func (l *ConversationLocker) tryAcquire(ctx context.Context, conversationID string) (ports.ConversationLock, error) {
	lockID := uuid.New().String()
	now := time.Now()
	expiresAt := now.Add(l.lockDuration)

	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", conversationID)},
		"SK":         &types.AttributeValueMemberS{Value: "LOCK"},
		"LockID":     &types.AttributeValueMemberS{Value: lockID},
		"AcquiredAt": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		"ExpiresAt":  &types.AttributeValueMemberS{Value: expiresAt.Format(time.RFC3339)},
		"TTL":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expiresAt.Unix())},
	}

	_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK) OR ExpiresAt < :now"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":now": &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			l.logger.Debug("conversation lock held elsewhere",
				zap.String("conversationID", conversationID),
			)
			return nil, errLockHeld
		}
		return nil, fmt.Errorf("acquire conversation lock: %w", err)
	}

	return &heldLock{
		locker:         l,
		conversationID: conversationID,
		lockID:         lockID,
	}, nil
}

type heldLock struct {
	locker         *ConversationLocker
	conversationID string
	lockID         string
}

// Release deletes the lock item, provided this holder still owns it.
// A lock that expired and was taken over is left alone.
func (h *heldLock) Release(ctx context.Context) error {
	_, err := h.locker.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(h.locker.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LOCK#%s", h.conversationID)},
			"SK": &types.AttributeValueMemberS{Value: "LOCK"},
		},
		ConditionExpression: aws.String("LockID = :lockId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":lockId": &types.AttributeValueMemberS{Value: h.lockID},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if goerrors.As(err, &conditionFailed) {
			h.locker.logger.Warn("conversation lock expired before release",
				zap.String("conversationID", h.conversationID),
			)
			return nil
		}
		return fmt.Errorf("release conversation lock: %w", err)
	}
	return nil
}
