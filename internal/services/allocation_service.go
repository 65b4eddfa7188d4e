package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"flowlytix/internal/common"
	"flowlytix/internal/models"
	"flowlytix/internal/repositories"

	"github.com/google/uuid"
)

// AllocationService is the FIFO lot/batch allocation engine. Selection is
// read-only; the four quantity mutations load, validate, write
// transactionally, and return the re-read lot. No mutation partially
// applies: either every invariant check passes and the full write commits,
// or nothing is written.
type AllocationService interface {
	CreateLotBatch(ctx context.Context, lot *models.LotBatch) (*models.LotBatch, error)
	GetLotBatch(ctx context.Context, agencyID, lotID uuid.UUID) (*models.LotBatch, error)
	GetLotBatchByNumber(ctx context.Context, agencyID, productID uuid.UUID, lotNumber string) (*models.LotBatch, error)
	SelectFifoLots(ctx context.Context, agencyID, productID uuid.UUID, requestedQuantity int) (*models.FifoAllocationResult, error)
	ReserveQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error)
	ReleaseReservedQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error)
	ConsumeQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error)
	AdjustQuantity(ctx context.Context, agencyID uuid.UUID, adj *models.QuantityAdjustment) (*models.LotBatch, error)
	UpdateLotStatus(ctx context.Context, agencyID, lotID uuid.UUID, status string, userID uuid.UUID) (*models.LotBatch, error)
}

type allocationService struct {
	lotRepo repositories.LotBatchRepository

	// One mutex per lot id serializes conflicting mutations on the same
	// lot; the repository's compare-on-write guard catches anything that
	// still slips through (e.g. another process).
	lotLocks sync.Map
}

func NewAllocationService(lotRepo repositories.LotBatchRepository) AllocationService {
	return &allocationService{lotRepo: lotRepo}
}

func (s *allocationService) lockLot(lotID uuid.UUID) *sync.Mutex {
	mu, _ := s.lotLocks.LoadOrStore(lotID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// CreateLotBatch records a stock receipt as a new ACTIVE lot.
func (s *allocationService) CreateLotBatch(ctx context.Context, lot *models.LotBatch) (*models.LotBatch, error) {
	if lot.Quantity <= 0 {
		return nil, fmt.Errorf("lot quantity must be positive")
	}
	if lot.LotNumber == "" {
		return nil, fmt.Errorf("lot number is required")
	}
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusActive
	}
	lot.RemainingQuantity = lot.Quantity
	lot.ReservedQuantity = 0
	if lot.UpdatedBy == uuid.Nil {
		lot.UpdatedBy = lot.CreatedBy
	}
	if err := s.lotRepo.Create(ctx, lot); err != nil {
		return nil, err
	}
	return s.lotRepo.GetByID(ctx, lot.AgencyID, lot.ID)
}

func (s *allocationService) GetLotBatch(ctx context.Context, agencyID, lotID uuid.UUID) (*models.LotBatch, error) {
	return s.lotRepo.GetByID(ctx, agencyID, lotID)
}

// GetLotBatchByNumber resolves a lot by its business key, the
// (product, lot number) pair printed on physical stock.
func (s *allocationService) GetLotBatchByNumber(ctx context.Context, agencyID, productID uuid.UUID, lotNumber string) (*models.LotBatch, error) {
	if lotNumber == "" {
		return nil, fmt.Errorf("lot number is required")
	}
	return s.lotRepo.GetByLotNumber(ctx, agencyID, productID, lotNumber)
}

// SelectFifoLots greedily covers requestedQuantity from ACTIVE lots in
// (manufacturingDate, lotNumber) order, skipping lots with nothing
// available. Read-only: callers apply ReserveQuantity afterwards.
func (s *allocationService) SelectFifoLots(ctx context.Context, agencyID, productID uuid.UUID, requestedQuantity int) (*models.FifoAllocationResult, error) {
	if requestedQuantity <= 0 {
		return nil, fmt.Errorf("requested quantity must be positive")
	}

	lots, err := s.lotRepo.ListActiveByProduct(ctx, agencyID, productID)
	if err != nil {
		return nil, err
	}

	result := &models.FifoAllocationResult{
		Allocations:       []models.LotAllocation{},
		RequestedQuantity: requestedQuantity,
		RemainingQuantity: requestedQuantity,
	}

	for _, lot := range lots {
		if result.RemainingQuantity == 0 {
			break
		}
		available := lot.AvailableQuantity()
		if available <= 0 {
			continue
		}
		take := available
		if take > result.RemainingQuantity {
			take = result.RemainingQuantity
		}
		result.Allocations = append(result.Allocations, models.LotAllocation{
			Lot:               lot,
			AllocatedQuantity: take,
		})
		result.TotalAllocatedQuantity += take
		result.RemainingQuantity -= take
	}

	result.HasFullAllocation = result.RemainingQuantity == 0
	return result, nil
}

// ReserveQuantity earmarks stock on an ACTIVE lot. Requires
// availableQuantity >= amount.
func (s *allocationService) ReserveQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("reserve amount must be positive")
	}

	mu := s.lockLot(lotID)
	mu.Lock()
	defer mu.Unlock()

	lot, err := s.lotRepo.GetByID(ctx, agencyID, lotID)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotStatusActive {
		return nil, &common.InvalidLotStatusError{LotID: lotID, Status: lot.Status, Operation: "reserve"}
	}
	if available := lot.AvailableQuantity(); available < amount {
		return nil, &common.InsufficientQuantityError{LotID: lotID, Requested: amount, Available: available}
	}

	expectedRemaining, expectedReserved := lot.RemainingQuantity, lot.ReservedQuantity
	lot.ReservedQuantity += amount
	lot.UpdatedBy = userID

	if err := s.applyAndReload(ctx, lot, expectedRemaining, expectedReserved); err != nil {
		return nil, err
	}
	return s.lotRepo.GetByID(ctx, agencyID, lotID)
}

// ReleaseReservedQuantity returns earmarked stock to the available pool.
// Requires reservedQuantity >= amount; the lot status is not checked so
// reservations on quarantined or recalled stock can still be freed.
func (s *allocationService) ReleaseReservedQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("release amount must be positive")
	}

	mu := s.lockLot(lotID)
	mu.Lock()
	defer mu.Unlock()

	lot, err := s.lotRepo.GetByID(ctx, agencyID, lotID)
	if err != nil {
		return nil, err
	}
	if lot.ReservedQuantity < amount {
		return nil, &common.InsufficientQuantityError{LotID: lotID, Requested: amount, Available: lot.ReservedQuantity}
	}

	expectedRemaining, expectedReserved := lot.RemainingQuantity, lot.ReservedQuantity
	lot.ReservedQuantity -= amount
	lot.UpdatedBy = userID

	if err := s.applyAndReload(ctx, lot, expectedRemaining, expectedReserved); err != nil {
		return nil, err
	}
	return s.lotRepo.GetByID(ctx, agencyID, lotID)
}

// ConsumeQuantity draws down physical stock on an ACTIVE lot. Requires
// remainingQuantity >= amount. Consumption draws reservedQuantity down
// first (to zero) for the portion that was reserved, then reduces
// remainingQuantity by the full amount, so reserved never exceeds
// remaining. A lot whose remaining quantity reaches zero moves to
// CONSUMED.
func (s *allocationService) ConsumeQuantity(ctx context.Context, agencyID, lotID uuid.UUID, amount int, userID uuid.UUID) (*models.LotBatch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("consume amount must be positive")
	}

	mu := s.lockLot(lotID)
	mu.Lock()
	defer mu.Unlock()

	lot, err := s.lotRepo.GetByID(ctx, agencyID, lotID)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotStatusActive {
		return nil, &common.InvalidLotStatusError{LotID: lotID, Status: lot.Status, Operation: "consume"}
	}
	if lot.RemainingQuantity < amount {
		return nil, &common.InsufficientQuantityError{LotID: lotID, Requested: amount, Available: lot.RemainingQuantity}
	}

	expectedRemaining, expectedReserved := lot.RemainingQuantity, lot.ReservedQuantity

	fromReserved := amount
	if fromReserved > lot.ReservedQuantity {
		fromReserved = lot.ReservedQuantity
	}
	lot.ReservedQuantity -= fromReserved
	lot.RemainingQuantity -= amount
	lot.UpdatedBy = userID
	if lot.RemainingQuantity == 0 {
		lot.Status = models.LotStatusConsumed
	}

	if err := s.applyAndReload(ctx, lot, expectedRemaining, expectedReserved); err != nil {
		return nil, err
	}
	return s.lotRepo.GetByID(ctx, agencyID, lotID)
}

// AdjustQuantity applies a signed correction: quantity and
// remainingQuantity move together by the delta. Rejects a zero delta, a
// result with negative quantity, and any writeoff that would eat into
// already-reserved stock.
func (s *allocationService) AdjustQuantity(ctx context.Context, agencyID uuid.UUID, adj *models.QuantityAdjustment) (*models.LotBatch, error) {
	if adj.QuantityChange == 0 {
		return nil, &common.InvariantViolationError{LotID: adj.LotID, Detail: "adjustment of zero is a no-op"}
	}

	mu := s.lockLot(adj.LotID)
	mu.Lock()
	defer mu.Unlock()

	lot, err := s.lotRepo.GetByID(ctx, agencyID, adj.LotID)
	if err != nil {
		return nil, err
	}
	if lot.Status != models.LotStatusActive {
		return nil, &common.InvalidLotStatusError{LotID: adj.LotID, Status: lot.Status, Operation: "adjust"}
	}

	newQuantity := lot.Quantity + adj.QuantityChange
	newRemaining := lot.RemainingQuantity + adj.QuantityChange
	if newQuantity < 0 {
		return nil, &common.InvariantViolationError{
			LotID:  adj.LotID,
			Detail: fmt.Sprintf("adjustment %d would make quantity negative (current %d)", adj.QuantityChange, lot.Quantity),
		}
	}
	if newRemaining < lot.ReservedQuantity {
		return nil, &common.InvariantViolationError{
			LotID: adj.LotID,
			Detail: fmt.Sprintf("adjustment %d would leave remaining %d below reserved %d",
				adj.QuantityChange, newRemaining, lot.ReservedQuantity),
		}
	}

	expectedRemaining, expectedReserved := lot.RemainingQuantity, lot.ReservedQuantity
	lot.Quantity = newQuantity
	lot.RemainingQuantity = newRemaining
	lot.UpdatedBy = adj.AdjustedBy

	if err := s.applyAndReload(ctx, lot, expectedRemaining, expectedReserved); err != nil {
		return nil, err
	}

	// Reason is opaque audit metadata, logged alongside the mutation.
	log.Printf("Adjusted lot %s by %+d (reason: %s, by %s)", adj.LotID, adj.QuantityChange, adj.Reason, adj.AdjustedBy)
	return s.lotRepo.GetByID(ctx, agencyID, adj.LotID)
}

// UpdateLotStatus moves a lot through its lifecycle (quarantine, recall,
// damage, expiry). Quantities are untouched.
func (s *allocationService) UpdateLotStatus(ctx context.Context, agencyID, lotID uuid.UUID, status string, userID uuid.UUID) (*models.LotBatch, error) {
	if err := common.ValidateLotStatus(status); err != nil {
		return nil, err
	}

	mu := s.lockLot(lotID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.lotRepo.UpdateStatus(ctx, agencyID, lotID, status, userID); err != nil {
		return nil, err
	}
	return s.lotRepo.GetByID(ctx, agencyID, lotID)
}

func (s *allocationService) applyAndReload(ctx context.Context, lot *models.LotBatch, expectedRemaining, expectedReserved int) error {
	if err := validateQuantities(lot); err != nil {
		return err
	}
	return s.lotRepo.ApplyQuantities(ctx, lot, expectedRemaining, expectedReserved)
}

// validateQuantities is the last line of defense before a write:
// 0 <= reserved <= remaining <= quantity.
func validateQuantities(lot *models.LotBatch) error {
	if lot.ReservedQuantity < 0 || lot.ReservedQuantity > lot.RemainingQuantity || lot.RemainingQuantity > lot.Quantity {
		return &common.InvariantViolationError{
			LotID: lot.ID,
			Detail: fmt.Sprintf("quantities out of order: reserved=%d remaining=%d quantity=%d",
				lot.ReservedQuantity, lot.RemainingQuantity, lot.Quantity),
		}
	}
	return nil
}
