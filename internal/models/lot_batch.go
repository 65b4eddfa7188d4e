package models

import (
	"time"

	"github.com/google/uuid"
)

// Lot statuses. Only ACTIVE lots participate in reservation and
// consumption; terminal states replace physical deletion.
const (
	LotStatusActive     = "ACTIVE"
	LotStatusQuarantine = "QUARANTINE"
	LotStatusExpired    = "EXPIRED"
	LotStatusRecalled   = "RECALLED"
	LotStatusDamaged    = "DAMAGED"
	LotStatusReserved   = "RESERVED"
	LotStatusConsumed   = "CONSUMED"
)

// LotBatch is a traceable unit of inventory inside one tenant database.
//
// Quantity bookkeeping invariant, checked after every mutation:
//
//	0 <= ReservedQuantity <= RemainingQuantity <= Quantity
type LotBatch struct {
	ID                uuid.UUID  `json:"id" db:"id"`
	LotNumber         string     `json:"lot_number" db:"lot_number"`
	BatchNumber       *string    `json:"batch_number,omitempty" db:"batch_number"`
	ProductID         uuid.UUID  `json:"product_id" db:"product_id"`
	AgencyID          uuid.UUID  `json:"agency_id" db:"agency_id"`
	ManufacturingDate time.Time  `json:"manufacturing_date" db:"manufacturing_date"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty" db:"expiry_date"`
	Quantity          int        `json:"quantity" db:"quantity"`
	RemainingQuantity int        `json:"remaining_quantity" db:"remaining_quantity"`
	ReservedQuantity  int        `json:"reserved_quantity" db:"reserved_quantity"`
	Status            string     `json:"status" db:"status"`
	SupplierID        *uuid.UUID `json:"supplier_id,omitempty" db:"supplier_id"`
	SupplierLotCode   *string    `json:"supplier_lot_code,omitempty" db:"supplier_lot_code"`
	CreatedBy         uuid.UUID  `json:"created_by" db:"created_by"`
	UpdatedBy         uuid.UUID  `json:"updated_by" db:"updated_by"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// AvailableQuantity is the portion free to reserve. It is derived, never
// stored.
func (l *LotBatch) AvailableQuantity() int {
	return l.RemainingQuantity - l.ReservedQuantity
}

// IsExpired reports whether the lot has an expiry date in the past.
func (l *LotBatch) IsExpired(now time.Time) bool {
	return l.ExpiryDate != nil && l.ExpiryDate.Before(now)
}

// LotAllocation is one (lot, quantity) pair of a FIFO selection.
type LotAllocation struct {
	Lot               *LotBatch `json:"lot"`
	AllocatedQuantity int       `json:"allocated_quantity"`
}

// FifoAllocationResult is the outcome of a FIFO selection. The selection is
// read-only; callers apply reservations afterwards.
type FifoAllocationResult struct {
	Allocations            []LotAllocation `json:"allocations"`
	RequestedQuantity      int             `json:"requested_quantity"`
	TotalAllocatedQuantity int             `json:"total_allocated_quantity"`
	RemainingQuantity      int             `json:"remaining_quantity"`
	HasFullAllocation      bool            `json:"has_full_allocation"`
}

// QuantityAdjustment is a signed stock correction against one lot.
// Reason is opaque audit metadata; the engine logs it but never parses it.
type QuantityAdjustment struct {
	LotID          uuid.UUID `json:"lot_id"`
	QuantityChange int       `json:"quantity_change"`
	Reason         string    `json:"reason"`
	AdjustedBy     uuid.UUID `json:"adjusted_by"`
}
