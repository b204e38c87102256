// Package di wires the application's dependency graph with Wire.
package di

import (
	"context"
	"time"

	"chatflow-backend/application/dialogue"
	"chatflow-backend/application/ports"
	"chatflow-backend/application/reservations"
	"chatflow-backend/domain/variables"
	"chatflow-backend/infrastructure/config"
	"chatflow-backend/infrastructure/messaging/eventbridge"
	"chatflow-backend/infrastructure/messaging/messenger"
	dynamostore "chatflow-backend/infrastructure/persistence/dynamodb"
	"chatflow-backend/infrastructure/persistence/memory"
	"chatflow-backend/interfaces/http/rest"
	"chatflow-backend/pkg/observability"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// Stores bundles the persistence ports so the backend switch happens
// in one place.
type Stores struct {
	Flows         ports.FlowStore
	Conversations ports.ConversationStore
	Messages      ports.MessageStore
	Integrations  ports.IntegrationStore
	Reservations  ports.ReservationStore
}

// ProvideStores selects the persistence backend. The memory backend
// exists for local development and starts empty.
func ProvideStores(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *Stores {
	if cfg.StorageBackend == "memory" {
		logger.Warn("using in-memory stores, state is not persisted")
		return &Stores{
			Flows:         memory.NewFlowStore(),
			Conversations: memory.NewConversationStore(),
			Messages:      memory.NewMessageStore(),
			Integrations:  memory.NewIntegrationStore(),
			Reservations:  memory.NewReservationStore(),
		}
	}
	return &Stores{
		Flows:         dynamostore.NewFlowRepository(client, cfg.DynamoDBTable, cfg.FlowsIndexName, logger),
		Conversations: dynamostore.NewConversationRepository(client, cfg.DynamoDBTable, logger),
		Messages:      dynamostore.NewMessageRepository(client, cfg.DynamoDBTable, logger),
		Integrations:  dynamostore.NewIntegrationRepository(client, cfg.DynamoDBTable, logger),
		Reservations:  dynamostore.NewReservationRepository(client, cfg.DynamoDBTable, logger),
	}
}

// ProvideConversationLocker creates the cross-instance conversation
// lock. The memory backend is single-instance and relies on the
// in-process mutex alone.
func ProvideConversationLocker(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) ports.ConversationLocker {
	if cfg.StorageBackend == "memory" {
		return nil
	}
	return dynamostore.NewConversationLocker(client, cfg.DynamoDBTable, logger)
}

// ProvideEventPublisher creates the reservation event publisher. The
// memory backend runs without a bus.
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	if cfg.StorageBackend == "memory" {
		return nil
	}
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideMetrics creates the metrics publisher; disabled metrics get
// the no-op form.
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config) *observability.Metrics {
	if !cfg.EnableMetrics {
		return observability.NewMetrics("ChatFlow", nil)
	}
	return observability.NewMetrics("ChatFlow", client)
}

// ProvideExtractor creates the variable extractor in the configured
// timezone.
func ProvideExtractor(cfg *config.Config, logger *zap.Logger) *variables.Extractor {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown timezone, falling back to UTC",
			zap.String("timezone", cfg.Timezone),
		)
		location = time.UTC
	}
	return &variables.Extractor{
		Location:             location,
		DotTimeWithoutSuffix: cfg.AcceptDotTimesWithoutUhr,
	}
}

// ProvideDispatcher creates the messenger dispatcher.
func ProvideDispatcher(cfg *config.Config, logger *zap.Logger) ports.Dispatcher {
	client := messenger.NewClient(cfg.MessengerAPIBaseURL, logger)
	return messenger.NewDispatcher(client, logger)
}

// ProvideReservationTrigger creates the reservation trigger.
func ProvideReservationTrigger(stores *Stores, publisher ports.EventPublisher, logger *zap.Logger) ports.ReservationTrigger {
	return reservations.NewTrigger(stores.Reservations, publisher, logger)
}

// ProvideOrchestrator creates the dialogue orchestrator.
func ProvideOrchestrator(
	stores *Stores,
	trigger ports.ReservationTrigger,
	dispatcher ports.Dispatcher,
	extractor *variables.Extractor,
	locker ports.ConversationLocker,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *dialogue.Orchestrator {
	return dialogue.NewOrchestrator(
		stores.Flows,
		stores.Conversations,
		stores.Messages,
		trigger,
		dispatcher,
		extractor,
		locker,
		metrics,
		logger,
	)
}

// ProvideRouter creates the HTTP router.
func ProvideRouter(
	orchestrator *dialogue.Orchestrator,
	stores *Stores,
	cfg *config.Config,
	logger *zap.Logger,
) *rest.Router {
	return rest.NewRouter(orchestrator, stores.Flows, stores.Integrations, cfg, logger)
}
