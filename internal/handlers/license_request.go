// internal/handlers/license_request.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
)

type LicenseRequestHandler struct {
	requestService *services.LicenseRequestService
}

func NewLicenseRequestHandler(requestService *services.LicenseRequestService) *LicenseRequestHandler {
	return &LicenseRequestHandler{
		requestService: requestService,
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		lang := utils.GetLangFromContext(c)
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "id"), nil)
		return uuid.Nil, false
	}
	return id, true
}

// POST /license-requests
func (h *LicenseRequestHandler) CreateLicenseRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateLicenseRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	// Operators without a CNPJ in the request file under their token's CNPJ.
	if req.TransporterCNPJ == "" {
		if cnpj, ok := c.Get("transporter_cnpj"); ok {
			req.TransporterCNPJ, _ = cnpj.(string)
		}
	}

	var creatorID *uuid.UUID
	if userIDStr, exists := utils.GetUserIDFromContext(c); exists {
		if id, err := uuid.Parse(userIDStr); err == nil {
			creatorID = &id
		}
	}

	request, err := h.requestService.Create(c.Request.Context(), creatorID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyRequestCreated),
		"request": request,
	})
}

// GET /license-requests
func (h *LicenseRequestHandler) ListLicenseRequests(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.LicenseRequestSearchParams{
		PaginationParams: params,
		TransporterCNPJ:  c.Query("transporter_cnpj"),
	}
	if status := c.Query("status"); status != "" {
		rStatus := models.RequestStatus(status)
		searchParams.Status = &rStatus
	}
	if state := c.Query("state"); state != "" {
		code, err := conflict.ParseState(state)
		if err != nil {
			respondError(c, err)
			return
		}
		searchParams.State = &code
	}

	requests, total, err := h.requestService.Search(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}

// GET /license-requests/:id
func (h *LicenseRequestHandler) GetLicenseRequest(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	request, err := h.requestService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"request": request,
	})
}

// POST /license-requests/:id/validate
func (h *LicenseRequestHandler) ValidateLicenseRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	verdicts, err := h.requestService.Validate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"verdicts":       verdictViews(lang, verdicts),
		"blocked_states": conflict.BlockedStates(verdicts),
		"allowed":        len(conflict.BlockedStates(verdicts)) == 0,
	})
}

// POST /license-requests/:id/submit
func (h *LicenseRequestHandler) SubmitLicenseRequest(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	request, verdicts, err := h.requestService.Submit(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":  i18n.T(lang, i18n.KeyRequestSubmitted),
		"request":  request,
		"verdicts": verdictViews(lang, verdicts),
	})
}

// PUT /license-requests/:id/states/:state
func (h *LicenseRequestHandler) UpdateStateStatus(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req services.UpdateStateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	change, err := h.requestService.UpdateStateStatus(c.Request.Context(), id, c.Param("state"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":        i18n.T(lang, i18n.KeyRequestStateUpdated),
		"state_status":   change.StateStatus,
		"issued_license": change.IssuedLicense,
	})
}
