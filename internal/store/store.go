package store

import (
	"context"
	"errors"
)

// Stable logical keys for persisted state. Shapes under these keys must
// round-trip without loss.
const (
	KeyIncidents      = "incidents"
	KeySOCAlerts      = "soc_alerts"
	KeyLoggingConfig  = "logging_configuration"
	KeyCentralLogs    = "centralized_logs"
	KeyThreatIntel    = "threat_intelligence"
	KeyThreatHunts    = "threat_hunts"
)

// ErrNotFound is returned by Load when no value exists under the key.
var ErrNotFound = errors.New("store: key not found")

// Store persists serialized blobs under stable logical keys. Services treat
// writes as fire-and-forget: a failed Save is logged by the caller and the
// in-memory state remains authoritative.
type Store interface {
	Save(ctx context.Context, key string, value interface{}) error
	Load(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, key string) error
}
