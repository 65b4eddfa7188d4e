package handlers

import (
	"net/http"
	"strconv"
	"time"

	"flowlytix/internal/common"
	"flowlytix/internal/models"
	"flowlytix/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// LotHandlers handles lot/batch allocation HTTP requests. Every route is
// scoped to one agency; the agency id travels in the path so request
// handling never depends on process-global context state.
type LotHandlers struct {
	allocationService services.AllocationService
}

// NewLotHandlers creates a new lot handlers instance
func NewLotHandlers(allocationService services.AllocationService) *LotHandlers {
	return &LotHandlers{allocationService: allocationService}
}

// CreateLotRequest represents a stock receipt payload
type CreateLotRequest struct {
	LotNumber         string     `json:"lot_number" validate:"required"`
	BatchNumber       *string    `json:"batch_number,omitempty"`
	ProductID         uuid.UUID  `json:"product_id" validate:"required"`
	ManufacturingDate time.Time  `json:"manufacturing_date" validate:"required"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
	Quantity          int        `json:"quantity" validate:"required,min=1"`
	SupplierID        *uuid.UUID `json:"supplier_id,omitempty"`
	SupplierLotCode   *string    `json:"supplier_lot_code,omitempty"`
	CreatedBy         uuid.UUID  `json:"created_by" validate:"required"`
}

// CreateLot handles recording a stock receipt as a new lot
func (h *LotHandlers) CreateLot(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}

	var req CreateLotRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}
	if err := common.ValidateRequiredString(req.LotNumber, "lot_number"); err != nil {
		return common.SendValidationError(c, "lot_number", err.Error())
	}
	if err := common.ValidatePositiveInteger(req.Quantity, "quantity", 1000000); err != nil {
		return common.SendValidationError(c, "quantity", err.Error())
	}

	lot := &models.LotBatch{
		LotNumber:         req.LotNumber,
		BatchNumber:       req.BatchNumber,
		ProductID:         req.ProductID,
		AgencyID:          agencyID,
		ManufacturingDate: req.ManufacturingDate,
		ExpiryDate:        req.ExpiryDate,
		Quantity:          req.Quantity,
		SupplierID:        req.SupplierID,
		SupplierLotCode:   req.SupplierLotCode,
		CreatedBy:         req.CreatedBy,
	}

	created, err := h.allocationService.CreateLotBatch(common.WithAgencyID(c.Request().Context(), agencyID), lot)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// GetLot handles fetching one lot by id
func (h *LotHandlers) GetLot(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}
	lotID, err := common.ValidateUUID(c.Param("id"), "lot id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	lot, err := h.allocationService.GetLotBatch(c.Request().Context(), agencyID, lotID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// SelectFifoLots returns a read-only FIFO allocation plan; callers apply
// reservations afterwards. Parameters travel as query parameters so the
// preview stays a plain GET.
func (h *LotHandlers) SelectFifoLots(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}
	productID, err := common.ValidateUUID(c.QueryParam("product_id"), "product id")
	if err != nil {
		return common.SendValidationError(c, "product_id", err.Error())
	}
	requested, err := strconv.Atoi(c.QueryParam("requested_quantity"))
	if err != nil {
		return common.SendValidationError(c, "requested_quantity", "requested_quantity must be an integer")
	}
	if err := common.ValidatePositiveInteger(requested, "requested_quantity", 1000000); err != nil {
		return common.SendValidationError(c, "requested_quantity", err.Error())
	}

	result, err := h.allocationService.SelectFifoLots(c.Request().Context(), agencyID, productID, requested)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetLotByNumber resolves a lot by the (product, lot number) pair printed
// on physical stock
func (h *LotHandlers) GetLotByNumber(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}
	productID, err := common.ValidateUUID(c.QueryParam("product_id"), "product id")
	if err != nil {
		return common.SendValidationError(c, "product_id", err.Error())
	}
	lotNumber := c.QueryParam("lot_number")
	if err := common.ValidateRequiredString(lotNumber, "lot_number"); err != nil {
		return common.SendValidationError(c, "lot_number", err.Error())
	}

	lot, err := h.allocationService.GetLotBatchByNumber(c.Request().Context(), agencyID, productID, lotNumber)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// QuantityRequest represents a reserve/release/consume payload
type QuantityRequest struct {
	Amount int       `json:"amount" validate:"required,min=1"`
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

func (h *LotHandlers) bindQuantityRequest(c echo.Context) (uuid.UUID, uuid.UUID, *QuantityRequest, error) {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return uuid.Nil, uuid.Nil, nil, common.SendValidationError(c, "agencyId", err.Error())
	}
	lotID, err := common.ValidateUUID(c.Param("id"), "lot id")
	if err != nil {
		return uuid.Nil, uuid.Nil, nil, common.SendValidationError(c, "id", err.Error())
	}
	var req QuantityRequest
	if err := c.Bind(&req); err != nil {
		return uuid.Nil, uuid.Nil, nil, common.SendClientError(c, "Invalid request payload")
	}
	if err := common.ValidatePositiveInteger(req.Amount, "amount", 1000000); err != nil {
		return uuid.Nil, uuid.Nil, nil, common.SendValidationError(c, "amount", err.Error())
	}
	return agencyID, lotID, &req, nil
}

// ReserveQuantity earmarks stock on a lot
func (h *LotHandlers) ReserveQuantity(c echo.Context) error {
	agencyID, lotID, req, errResp := h.bindQuantityRequest(c)
	if req == nil {
		return errResp
	}
	lot, err := h.allocationService.ReserveQuantity(c.Request().Context(), agencyID, lotID, req.Amount, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// ReleaseReservedQuantity returns earmarked stock to the available pool
func (h *LotHandlers) ReleaseReservedQuantity(c echo.Context) error {
	agencyID, lotID, req, errResp := h.bindQuantityRequest(c)
	if req == nil {
		return errResp
	}
	lot, err := h.allocationService.ReleaseReservedQuantity(c.Request().Context(), agencyID, lotID, req.Amount, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// ConsumeQuantity draws down physical stock on a lot
func (h *LotHandlers) ConsumeQuantity(c echo.Context) error {
	agencyID, lotID, req, errResp := h.bindQuantityRequest(c)
	if req == nil {
		return errResp
	}
	lot, err := h.allocationService.ConsumeQuantity(c.Request().Context(), agencyID, lotID, req.Amount, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// AdjustQuantityRequest represents a signed stock correction payload
type AdjustQuantityRequest struct {
	QuantityChange int       `json:"quantity_change" validate:"required"`
	Reason         string    `json:"reason" validate:"required"`
	AdjustedBy     uuid.UUID `json:"adjusted_by" validate:"required"`
}

// AdjustQuantity applies a signed correction to a lot's quantities
func (h *LotHandlers) AdjustQuantity(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}
	lotID, err := common.ValidateUUID(c.Param("id"), "lot id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req AdjustQuantityRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}
	if err := common.ValidateRequiredString(req.Reason, "reason"); err != nil {
		return common.SendValidationError(c, "reason", err.Error())
	}

	lot, err := h.allocationService.AdjustQuantity(c.Request().Context(), agencyID, &models.QuantityAdjustment{
		LotID:          lotID,
		QuantityChange: req.QuantityChange,
		Reason:         req.Reason,
		AdjustedBy:     req.AdjustedBy,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}

// UpdateLotStatusRequest represents a lifecycle transition payload
type UpdateLotStatusRequest struct {
	Status string    `json:"status" validate:"required"`
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// UpdateLotStatus moves a lot through its lifecycle
func (h *LotHandlers) UpdateLotStatus(c echo.Context) error {
	agencyID, err := common.ValidateUUID(c.Param("agencyId"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "agencyId", err.Error())
	}
	lotID, err := common.ValidateUUID(c.Param("id"), "lot id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req UpdateLotStatusRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}
	if err := common.ValidateLotStatus(req.Status); err != nil {
		return common.SendValidationError(c, "status", err.Error())
	}

	lot, err := h.allocationService.UpdateLotStatus(c.Request().Context(), agencyID, lotID, req.Status, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, lot)
}
