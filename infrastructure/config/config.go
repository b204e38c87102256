package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chatflow-backend/pkg/utils"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"serverAddress" validate:"required"`
	Environment   string `yaml:"environment" validate:"oneof=development staging production"`

	// AWS configuration
	AWSRegion      string `yaml:"awsRegion" validate:"required"`
	DynamoDBTable  string `yaml:"dynamodbTable"`
	FlowsIndexName string `yaml:"flowsIndexName"` // GSI - flows by tenant
	EventBusName   string `yaml:"eventBusName"`

	// Storage backend: "dynamodb" or "memory" (local development)
	StorageBackend string `yaml:"storageBackend" validate:"oneof=dynamodb memory"`

	// Messenger channel configuration
	MessengerAPIBaseURL string `yaml:"messengerApiBaseUrl" validate:"url"`
	WebhookVerifyToken  string `yaml:"webhookVerifyToken"`

	// Variable extraction locale
	Timezone                 string `yaml:"timezone" validate:"required"`
	AcceptDotTimesWithoutUhr bool   `yaml:"acceptDotTimesWithoutUhr"`

	// Lambda configuration
	IsLambda bool `yaml:"isLambda"`

	// Logging
	LogLevel string `yaml:"logLevel" validate:"oneof=debug info warn error"`

	// Authentication
	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`

	// Feature flags
	EnableMetrics bool `yaml:"enableMetrics"`
	EnableCORS    bool `yaml:"enableCors"`
}

// LoadConfig loads configuration from environment variables, with an
// optional YAML file (CONFIG_FILE) layered underneath: file values
// become the defaults, environment variables win.
func LoadConfig() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig.
func Load() (*Config, error) {
	return LoadConfig()
}

func defaults() *Config {
	return &Config{
		ServerAddress:       ":8080",
		Environment:         "development",
		AWSRegion:           "eu-central-1",
		DynamoDBTable:       "chatflow",
		FlowsIndexName:      "TenantFlowsIndex",
		EventBusName:        "chatflow-events",
		StorageBackend:      "dynamodb",
		MessengerAPIBaseURL: "https://graph.facebook.com/v19.0",
		Timezone:            "Europe/Berlin",
		LogLevel:            "info",
		JWTIssuer:           "chatflow-backend",
		EnableMetrics:       false,
		EnableCORS:          true,
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.DynamoDBTable = getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", c.DynamoDBTable))
	c.FlowsIndexName = getEnv("FLOWS_INDEX_NAME", c.FlowsIndexName)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.StorageBackend = getEnv("STORAGE_BACKEND", c.StorageBackend)
	c.MessengerAPIBaseURL = getEnv("MESSENGER_API_BASE_URL", c.MessengerAPIBaseURL)
	c.WebhookVerifyToken = getEnv("WEBHOOK_VERIFY_TOKEN", c.WebhookVerifyToken)
	c.Timezone = getEnv("TIMEZONE", c.Timezone)
	c.AcceptDotTimesWithoutUhr = getEnvBool("ACCEPT_DOT_TIMES_WITHOUT_UHR", c.AcceptDotTimesWithoutUhr)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableCORS = getEnvBool("ENABLE_CORS", c.EnableCORS)
}

// Validate checks the configuration shape plus the stricter
// production requirements.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return err
	}

	if c.Environment == "production" {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if c.StorageBackend != "dynamodb" {
			return fmt.Errorf("STORAGE_BACKEND must be dynamodb in production")
		}
		if c.DynamoDBTable == "" {
			return fmt.Errorf("DYNAMODB_TABLE is required")
		}
		if c.EventBusName == "" {
			return fmt.Errorf("EVENT_BUS_NAME is required")
		}
		if c.WebhookVerifyToken == "" {
			return fmt.Errorf("WEBHOOK_VERIFY_TOKEN is required in production")
		}
	}

	return nil
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}
