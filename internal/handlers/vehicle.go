// internal/handlers/vehicle.go
package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
)

type VehicleHandler struct {
	vehicleService *services.VehicleService
}

func NewVehicleHandler(vehicleService *services.VehicleService) *VehicleHandler {
	return &VehicleHandler{
		vehicleService: vehicleService,
	}
}

// POST /vehicles
func (h *VehicleHandler) CreateVehicle(c *gin.Context) {
	lang := utils.GetLangFromContext(c)

	var req services.CreateVehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalid, "input"), err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	vehicle, err := h.vehicleService.Create(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyVehicleCreated),
		"vehicle": vehicle,
	})
}

// GET /vehicles
func (h *VehicleHandler) ListVehicles(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.VehicleSearchParams{
		PaginationParams: params,
		OwnerCNPJ:        c.Query("owner_cnpj"),
	}
	if vehicleType := c.Query("type"); vehicleType != "" {
		vType := models.VehicleType(vehicleType)
		searchParams.Type = &vType
	}

	vehicles, total, err := h.vehicleService.Search(c.Request.Context(), searchParams)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.PaginatedResponse(c, utils.CreatePaginationResult(vehicles, total, params))
}

// GET /vehicles/:plate
func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	vehicle, err := h.vehicleService.GetByPlate(c.Request.Context(), c.Param("plate"))
	if err != nil {
		if errors.Is(err, services.ErrVehicleNotFound) {
			utils.NotFoundResponse(c, "vehicle")
			return
		}
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"vehicle": vehicle,
	})
}
