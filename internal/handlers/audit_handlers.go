package handlers

import (
	"net/http"
	"strconv"

	"flowlytix/internal/common"
	"flowlytix/internal/repositories"

	"github.com/labstack/echo/v4"
)

// AuditHandlers exposes the catalog's provisioning and connection event
// trails for one agency
type AuditHandlers struct {
	auditRepo repositories.AgencyAuditRepository
}

// NewAuditHandlers creates a new audit handlers instance
func NewAuditHandlers(auditRepo repositories.AgencyAuditRepository) *AuditHandlers {
	return &AuditHandlers{auditRepo: auditRepo}
}

func auditLimit(c echo.Context) int {
	limit, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}

// ListDatabaseEvents returns the provisioning attempts recorded against
// one agency's database, newest first
func (h *AuditHandlers) ListDatabaseEvents(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	events, err := h.auditRepo.ListDatabaseEvents(c.Request().Context(), id, auditLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}

// ListConnectionEvents returns the pool's open/close/evict trail for one
// agency, newest first
func (h *AuditHandlers) ListConnectionEvents(c echo.Context) error {
	id, err := common.ValidateUUID(c.Param("id"), "agency id")
	if err != nil {
		return common.SendValidationError(c, "id", err.Error())
	}

	events, err := h.auditRepo.ListConnectionEvents(c.Request().Context(), id, auditLimit(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"events": events})
}
