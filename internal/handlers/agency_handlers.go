package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"flowlytix/internal/common"
	"flowlytix/internal/models"
	"flowlytix/internal/repositories"
	"flowlytix/internal/services"
	"flowlytix/internal/tenant"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// AgencyHandlers handles agency catalog and context HTTP requests
type AgencyHandlers struct {
	agencyService services.AgencyService
	contextMgr    *tenant.ContextManager
}

// NewAgencyHandlers creates a new agency handlers instance
func NewAgencyHandlers(agencyService services.AgencyService, contextMgr *tenant.ContextManager) *AgencyHandlers {
	return &AgencyHandlers{
		agencyService: agencyService,
		contextMgr:    contextMgr,
	}
}

// RegisterAgency handles agency registration, including provisioning of
// the agency's database
func (h *AgencyHandlers) RegisterAgency(c echo.Context) error {
	var req services.RegisterAgencyRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}
	if err := common.ValidateRequiredString(req.Name, "name"); err != nil {
		return common.SendValidationError(c, "name", err.Error())
	}

	agency, err := h.agencyService.Register(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, agency)
}

// GetAgency handles fetching one agency by id
func (h *AgencyHandlers) GetAgency(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	agency, err := h.agencyService.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, agency)
}

// ListAgenciesRequest represents query parameters for listing agencies
type ListAgenciesRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// ListAgencies handles listing catalog agencies
func (h *AgencyHandlers) ListAgencies(c echo.Context) error {
	var req ListAgenciesRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid query parameters")
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Limit > 100 {
		req.Limit = 100
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	agencies, err := h.agencyService.List(c.Request().Context(), req.Limit, req.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agencies": agencies,
		"limit":    req.Limit,
		"offset":   req.Offset,
	})
}

// UpdateAgency handles updating an agency's mutable catalog fields
func (h *AgencyHandlers) UpdateAgency(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	var req services.UpdateAgencyRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}

	agency, err := h.agencyService.Update(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, agency)
}

// SuspendAgency handles suspending an agency
func (h *AgencyHandlers) SuspendAgency(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := h.agencyService.Suspend(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.AgencyStatusSuspended})
}

// ActivateAgency handles re-activating a suspended agency
func (h *AgencyHandlers) ActivateAgency(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := h.agencyService.Activate(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": models.AgencyStatusActive})
}

// DeleteAgency handles the explicit destructive delete of an agency and
// its database file
func (h *AgencyHandlers) DeleteAgency(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}
	if err := h.agencyService.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// SetContextRequest represents the context activation payload
type SetContextRequest struct {
	AgencyID uuid.UUID `json:"agency_id" validate:"required"`
	UserID   uuid.UUID `json:"user_id" validate:"required"`
}

// SetContext activates an agency as the current working context
func (h *AgencyHandlers) SetContext(c echo.Context) error {
	var req SetContextRequest
	if err := c.Bind(&req); err != nil {
		return common.SendClientError(c, "Invalid request payload")
	}
	if req.AgencyID == uuid.Nil {
		return common.SendValidationError(c, "agency_id", "agency_id is required")
	}

	agencyCtx, err := h.contextMgr.SetContext(c.Request().Context(), req.AgencyID, req.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, agencyCtx)
}

// SwitchToPreviousContext reverts to the previously active agency context
func (h *AgencyHandlers) SwitchToPreviousContext(c echo.Context) error {
	agencyCtx, ok := h.contextMgr.SwitchToPreviousContext()
	if !ok {
		return common.SendClientError(c, "No previous context to switch to")
	}
	return c.JSON(http.StatusOK, agencyCtx)
}

// GetCurrentContext returns the active agency context, if any
func (h *AgencyHandlers) GetCurrentContext(c echo.Context) error {
	agencyCtx := h.contextMgr.CurrentContext()
	if agencyCtx == nil {
		return common.SendNotFoundError(c, "Active context")
	}
	return c.JSON(http.StatusOK, agencyCtx)
}

// respondError translates the core error taxonomy into HTTP responses.
func respondError(c echo.Context, err error) error {
	var (
		notFound      *common.TenantNotFoundError
		alreadyExists *common.TenantAlreadyExistsError
		connErr       *common.ConnectionError
		provErr       *common.ProvisioningError
		insufficient  *common.InsufficientQuantityError
		badStatus     *common.InvalidLotStatusError
		invariant     *common.InvariantViolationError
	)
	switch {
	case errors.As(err, &notFound):
		return common.SendNotFoundError(c, "Agency")
	case repositories.IsLotNotFound(err):
		return common.SendNotFoundError(c, "Lot")
	case errors.Is(err, repositories.ErrQuantityConflict):
		return common.SendConflictError(c, "Lot was modified concurrently, re-fetch and retry")
	case errors.As(err, &alreadyExists):
		return common.SendConflictError(c, err.Error())
	case errors.As(err, &insufficient):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INSUFFICIENT_QUANTITY", err.Error(), map[string]string{
			"requested": strconv.Itoa(insufficient.Requested),
			"available": strconv.Itoa(insufficient.Available),
		}))
	case errors.As(err, &badStatus):
		return c.JSON(http.StatusConflict, common.CreateErrorResponse("INVALID_LOT_STATUS", err.Error(), nil))
	case errors.As(err, &invariant):
		return c.JSON(http.StatusUnprocessableEntity, common.CreateErrorResponse("INVARIANT_VIOLATION", err.Error(), nil))
	case errors.As(err, &connErr), errors.As(err, &provErr):
		return common.SendServerError(c, err.Error())
	default:
		return common.SendServerError(c, err.Error())
	}
}
