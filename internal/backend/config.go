package backend

import (
	"fmt"
	"time"

	"aadash/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Live aggregator
	BaseURL         string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration

	// Data fetcher behaviour
	DemoFallback         bool
	SortLiveTransactions bool
	MockTransactionCount int

	// Consent audit log and events, both optional
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := MockBackend
	if !appConfig.MockMode() {
		backendType = LiveBackend
	}

	return Config{
		Type: backendType,

		BaseURL:         appConfig.AABaseURL,
		Timeout:         appConfig.AATimeout,
		BreakerFailures: appConfig.BreakerFailures,
		BreakerCooldown: appConfig.BreakerCooldown,

		DemoFallback:         appConfig.DemoFallback,
		SortLiveTransactions: appConfig.SortLiveTransactions,
		MockTransactionCount: appConfig.MockTransactionCount,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case LiveBackend:
		if c.BaseURL == "" {
			return fmt.Errorf("AA base URL is required for live backend")
		}
		if c.BreakerFailures < 0 {
			return fmt.Errorf("breaker failure threshold must not be negative")
		}
	case MockBackend:
		if c.BaseURL != "" {
			return fmt.Errorf("mock backend must not have an AA base URL")
		}
	}

	if c.AMQPURL != "" && (c.AMQPExchange == "" || c.AMQPQueue == "") {
		return fmt.Errorf("AMQP exchange and queue are required when AMQP URL is set")
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{MockBackend, LiveBackend}
}
