package models

import (
	"time"

	"github.com/google/uuid"
)

// Agency statuses. An agency is never hard-deleted outside of the explicit
// destructive delete flow; lifecycle changes move the status instead.
const (
	AgencyStatusActive    = "ACTIVE"
	AgencyStatusInactive  = "INACTIVE"
	AgencyStatusSuspended = "SUSPENDED"
)

// Agency is one row of the shared catalog: a tenant organization together
// with the filesystem path of its own physical database.
type Agency struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Name         string         `json:"name" db:"name"`
	DatabasePath string         `json:"database_path" db:"database_path"`
	Status       string         `json:"status" db:"status"`
	ContactName  *string        `json:"contact_name,omitempty" db:"contact_name"`
	ContactEmail *string        `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone *string        `json:"contact_phone,omitempty" db:"contact_phone"`
	Settings     AgencySettings `json:"settings" db:"settings"`
	CreatedBy    *uuid.UUID     `json:"created_by,omitempty" db:"created_by"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// AgencySettings is the structured settings blob stored on the catalog row.
// It is validated at the catalog boundary and passed through to the tenant
// database as-is.
type AgencySettings struct {
	CreditPolicy  string             `json:"credit_policy,omitempty"`
	CreditLimit   *float64           `json:"credit_limit,omitempty"`
	Currency      string             `json:"currency,omitempty"`
	TaxRate       *float64           `json:"tax_rate,omitempty"`
	BusinessHours *BusinessHours     `json:"business_hours,omitempty"`
	Notifications *NotificationFlags `json:"notifications,omitempty"`
}

type BusinessHours struct {
	Open  string `json:"open,omitempty"`
	Close string `json:"close,omitempty"`
	Days  []int  `json:"days,omitempty"`
}

type NotificationFlags struct {
	LowStock      bool `json:"low_stock"`
	LotExpiry     bool `json:"lot_expiry"`
	OrderActivity bool `json:"order_activity"`
}

// IsActive reports whether the agency may open connections or accept
// context activation.
func (a *Agency) IsActive() bool {
	return a.Status == AgencyStatusActive
}
