package main

import (
	"context"
	"log"
	"time"

	"chatflow-backend/infrastructure/config"
	"chatflow-backend/infrastructure/di"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	chiadapter "github.com/awslabs/aws-lambda-go-api-proxy/chi"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var (
	// chiLambda wraps the Chi router for AWS Lambda integration
	chiLambda *chiadapter.ChiLambdaV2

	// container holds the dependency injection container
	container *di.Container

	coldStart     = true
	coldStartTime time.Time
)

// init runs during cold start
func init() {
	coldStartTime = time.Now()

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	handler := container.Router.Setup()

	chiRouter, ok := handler.(*chi.Mux)
	if !ok {
		log.Fatal("Failed to cast handler to chi.Mux")
	}
	chiLambda = chiadapter.NewV2(chiRouter)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
	)
}

// Handler proxies API Gateway events into the Chi router. Webhook
// deliveries and dashboard reads share this entrypoint.
func Handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	resp, err := chiLambda.ProxyWithContextV2(ctx, req)

	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	if coldStart {
		resp.Headers["X-Cold-Start"] = "true"
		coldStart = false
	}
	if req.RequestContext.RequestID != "" {
		resp.Headers["X-Request-ID"] = req.RequestContext.RequestID
	}

	if resp.StatusCode >= 500 {
		container.Logger.Error("Lambda error response",
			zap.String("method", req.RequestContext.HTTP.Method),
			zap.String("path", req.RequestContext.HTTP.Path),
			zap.Int("statusCode", resp.StatusCode),
		)
	}

	return resp, err
}

func main() {
	lambda.Start(Handler)
}
