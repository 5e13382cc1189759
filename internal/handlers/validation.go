// internal/handlers/validation.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
)

type ValidationHandler struct {
	validationService *services.ValidationService
}

func NewValidationHandler(validationService *services.ValidationService) *ValidationHandler {
	return &ValidationHandler{
		validationService: validationService,
	}
}

// GET /plates/normalize
func (h *ValidationHandler) NormalizePlate(c *gin.Context) {
	raw := c.Query("plate")
	utils.SuccessResponse(c, gin.H{
		"plate":      raw,
		"normalized": conflict.Normalize(raw),
	})
}

// POST /validation/classify
func (h *ValidationHandler) Classify(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ClassifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	result, err := h.validationService.Classify(&req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}

// POST /validation/composition
func (h *ValidationHandler) ValidateComposition(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ValidateCompositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	verdict, err := h.validationService.ValidateComposition(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, verdictView(lang, *verdict))
}

// POST /validation/states
func (h *ValidationHandler) ValidateStates(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.ValidateStatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if len(req.States) == 0 {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationStatesRequired), nil)
		return
	}
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	verdicts, err := h.validationService.ValidateStates(c.Request.Context(), &req)
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
