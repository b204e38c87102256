package di

import (
	"chatflow-backend/application/dialogue"
	"chatflow-backend/infrastructure/config"
	"chatflow-backend/interfaces/http/rest"
	"chatflow-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	Logger       *zap.Logger
	Stores       *Stores
	Orchestrator *dialogue.Orchestrator
	Metrics      *observability.Metrics
	Router       *rest.Router
}
