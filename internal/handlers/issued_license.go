// internal/handlers/issued_license.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/repository"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
)

type IssuedLicenseHandler struct {
	licenseService *services.IssuedLicenseService
}

func NewIssuedLicenseHandler(licenseService *services.IssuedLicenseService) *IssuedLicenseHandler {
	return &IssuedLicenseHandler{
		licenseService: licenseService,
	}
}

// GET /issued-licenses
func (h *IssuedLicenseHandler) ListIssuedLicenses(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	filter := repository.IssuedLicenseFilter{
		Plate: c.Query("plate"),
	}
	if state := c.Query("state"); state != "" {
		code, err := conflict.ParseState(state)
		if err != nil {
			respondError(c, err)
			return
		}
		filter.State = &code
	}
	if status := c.Query("status"); status != "" {
		lStatus := models.LicenseStatus(status)
		filter.Status = &lStatus
	}

	licenses, total, err := h.licenseService.List(c.Request.Context(), filter, params)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(licenses, total, params))
}

// GET /issued-licenses/:id
func (h *IssuedLicenseHandler) GetIssuedLicense(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	license, err := h.licenseService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license": license,
	})
}

// PUT /issued-licenses/:id/cancel
func (h *IssuedLicenseHandler) CancelIssuedLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req services.CancelLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	license, err := h.licenseService.Cancel(c.Request.Context(), id, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseCanceled),
		"license": license,
	})
}
