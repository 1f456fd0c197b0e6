package config

import "time"

// Application constants.
const (
	AppName    = "Subtitle Job Service"
	AppVersion = "1.0.0"

	// Job defaults (spec §6.5)
	DefaultJobTimeout           = 2 * time.Hour
	DefaultTerminateGracePeriod = 10 * time.Second
	DefaultResultMessageMaxLen  = 500
	DefaultLogSnippetMaxLen     = 64 * 1024 // bytes

	// Broker
	DefaultBrokerQueueDepth = 256

	// Log Bus
	DefaultLogBusHistoryCap = 1000

	// Rate limiting
	DefaultRateLimit = 100 // requests per second
	DefaultBurstSize = 50

	// Network timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// Logging
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Synthetic exit codes (spec §4.2 step 5, glossary)
	ExitCodeHardKill = -9
	ExitCodeSoftTerm = -15
	ExitCodeTimeout  = -99
)

// API endpoints.
const (
	APIBasePath     = "/api/v1"
	JobsEndpoint    = "/jobs"
	HealthEndpoint  = "/health"
	MetricsEndpoint = "/metrics"
)
