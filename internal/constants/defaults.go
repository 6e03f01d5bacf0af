package constants

import "time"

// Transport defaults.
const (
	DefaultBrokerURL      = "mqtt://broker.hivemq.com:1883"
	DefaultTopic          = "varal/controle"
	DefaultClientIDPrefix = "varal-bridge"
	DefaultReconnectMs    = 3000
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
	DisconnectQuiesceMs   = 250
	CommandQOS            = 0 // Commands are fire-and-forget
	StatusQOS             = 0
	CommandRetained       = false
)

// Relay defaults.
const (
	DefaultMotionIntervalMs = 3000
	DefaultStatusTimeoutMs  = 7000
	DefaultWorkers          = 8

	// DefaultSweepIntervalMs is how often idle rate-limit entries are evicted.
	DefaultSweepIntervalMs = 60000
	// SweepAgeFactor times the motion interval is the age at which an entry
	// is considered idle.
	SweepAgeFactor = 10
)

// Logging defaults.
const (
	DefaultLogLevel      = "info"
	DefaultLogMaxSizeMB  = 10
	DefaultLogMaxBackups = 3
	DefaultLogMaxAgeDays = 28
)

// User-facing replies that do not depend on the command table.
const (
	ReplyTimeout     = "⏱️ Não recebi o status a tempo."
	ReplyRateLimited = "⚠️ Aguarde %ds antes de enviar outro comando de movimento."
)
