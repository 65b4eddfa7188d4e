package common

import (
	"fmt"

	"github.com/google/uuid"
)

// TenantNotFoundError reports an unknown or unregistered agency.
type TenantNotFoundError struct {
	AgencyID uuid.UUID
	Name     string
}

func (e *TenantNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("agency %q not found", e.Name)
	}
	return fmt.Sprintf("agency %s not found", e.AgencyID)
}

// TenantAlreadyExistsError reports a duplicate name or database path at
// registration time.
type TenantAlreadyExistsError struct {
	Name         string
	DatabasePath string
}

func (e *TenantAlreadyExistsError) Error() string {
	if e.DatabasePath != "" {
		return fmt.Sprintf("agency with database path %q already exists", e.DatabasePath)
	}
	return fmt.Sprintf("agency %q already exists", e.Name)
}

// ConnectionError reports an I/O failure opening or using a tenant
// database handle.
type ConnectionError struct {
	AgencyID uuid.UUID
	Cause    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("tenant database connection for agency %s failed: %v", e.AgencyID, e.Cause)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// ProvisioningError reports a tenant schema materialization failure. The
// partially written database file has already been cleaned up best-effort
// by the time this error is returned.
type ProvisioningError struct {
	AgencyID     uuid.UUID
	DatabasePath string
	Cause        error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning database %s for agency %s failed: %v", e.DatabasePath, e.AgencyID, e.Cause)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

// InsufficientQuantityError reports a reserve or consume attempt that
// exceeds what the lot can supply.
type InsufficientQuantityError struct {
	LotID     uuid.UUID
	Requested int
	Available int
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("lot %s: requested %d but only %d available", e.LotID, e.Requested, e.Available)
}

// InvalidLotStatusError reports an operation attempted against a lot whose
// status does not allow it.
type InvalidLotStatusError struct {
	LotID     uuid.UUID
	Status    string
	Operation string
}

func (e *InvalidLotStatusError) Error() string {
	return fmt.Sprintf("lot %s: cannot %s a %s lot", e.LotID, e.Operation, e.Status)
}

// InvariantViolationError reports a mutation that would break the
// reserved <= remaining <= quantity bookkeeping invariant.
type InvariantViolationError struct {
	LotID  uuid.UUID
	Detail string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("lot %s: %s", e.LotID, e.Detail)
}
