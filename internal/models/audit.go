package models

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the single version stamp row written into every tenant
// database at provisioning time.
type SchemaVersion struct {
	Version     int       `json:"version" db:"version"`
	Description string    `json:"description" db:"description"`
	Checksum    string    `json:"checksum" db:"checksum"`
	AppliedAt   time.Time `json:"applied_at" db:"applied_at"`
	AppliedBy   string    `json:"applied_by" db:"applied_by"`
}

// Provisioning event statuses recorded in the catalog.
const (
	ProvisionStatusSuccess = "success"
	ProvisionStatusFailed  = "failed"
)

// DatabaseEvent is one provisioning attempt against a tenant database,
// recorded in the catalog's agency_databases table.
type DatabaseEvent struct {
	ID           uuid.UUID `json:"id" db:"id"`
	AgencyID     uuid.UUID `json:"agency_id" db:"agency_id"`
	DatabasePath string    `json:"database_path" db:"database_path"`
	Status       string    `json:"status" db:"status"`
	Detail       *string   `json:"detail,omitempty" db:"detail"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Connection event kinds recorded in the catalog.
const (
	ConnectionEventOpened  = "opened"
	ConnectionEventClosed  = "closed"
	ConnectionEventEvicted = "evicted"
	ConnectionEventFailed  = "failed"
)

// ConnectionEvent is one pool event against a tenant database, recorded in
// the catalog's agency_database_connections table.
type ConnectionEvent struct {
	ID        uuid.UUID `json:"id" db:"id"`
	AgencyID  uuid.UUID `json:"agency_id" db:"agency_id"`
	Event     string    `json:"event" db:"event"`
	Detail    *string   `json:"detail,omitempty" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
