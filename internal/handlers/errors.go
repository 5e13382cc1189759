// internal/handlers/errors.go
package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/aetflow/aet-backend/internal/conflict"
	"github.com/aetflow/aet-backend/internal/i18n"
	"github.com/aetflow/aet-backend/internal/models"
	"github.com/aetflow/aet-backend/internal/services"
	"github.com/aetflow/aet-backend/internal/utils"
)

var log = logrus.WithField("component", "handlers")

// VerdictView is a verdict as sent to clients, with a localized message.
type VerdictView struct {
	conflict.Verdict
	Message string `json:"message"`
}

func verdictViews(lang string, verdicts []conflict.Verdict) []VerdictView {
	views := make([]VerdictView, len(verdicts))
	for i, v := range verdicts {
		views[i] = verdictView(lang, v)
	}
	return views
}

func verdictView(lang string, v conflict.Verdict) VerdictView {
	view := VerdictView{Verdict: v}
	if v.Allowed() || v.DaysRemaining == nil {
		view.Message = i18n.T(lang, i18n.KeyValidationStateAllowed, v.State)
	} else {
		view.Message = i18n.T(lang, i18n.KeyValidationStateBlocked, v.State, v.ConflictingLicense, *v.DaysRemaining, v.ThresholdDays)
	}
	return view
}

// respondError maps service and resolver errors onto the response helpers.
func respondError(c *gin.Context, err error) {
	lang := utils.GetLangFromContext(c)

	var validationErrs validator.ValidationErrors
	var unknownState *conflict.UnknownStateCodeError
	var blocked *services.StatesBlockedError

	switch {
	case errors.As(err, &validationErrs):
		utils.ValidationErrorResponse(c, utils.GetValidationErrors(validationErrs))
	case errors.As(err, &unknownState):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationUnknownState, unknownState.Code), nil)
	case errors.Is(err, conflict.ErrInvalidComposition):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationComposition), err.Error())
	case errors.Is(err, conflict.ErrInvalidPolicy):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyValidationInvalidPolicy), err.Error())
	case errors.As(err, &blocked):
		states := conflict.BlockedStates(blocked.Verdicts)
		codes := make([]string, len(states))
		for i, s := range states {
			codes[i] = string(s)
		}
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyRequestStatesBlocked, strings.Join(codes, ", ")), gin.H{
			"verdicts": verdictViews(lang, blocked.Verdicts),
		})
	case errors.Is(err, services.ErrRequestNotFound):
		utils.NotFoundResponse(c, "request")
	case errors.Is(err, services.ErrLicenseNotFound):
		utils.NotFoundResponse(c, "license")
	case errors.Is(err, services.ErrVehicleNotFound):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyVehicleNotFound), err.Error())
	case errors.Is(err, services.ErrVehicleExists):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyVehicleExists), nil)
	case errors.Is(err, services.ErrRequestNotDraft):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyRequestNotDraft), nil)
	case errors.Is(err, services.ErrStateNotRequested):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyRequestStateNotRequested), nil)
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, models.ErrApprovalIncomplete),
		errors.Is(err, models.ErrValidUntilWithoutApproval),
		errors.Is(err, models.ErrInvalidValidity):
		utils.BadRequestResponse(c, i18n.T(lang, i18n.KeyRequestInvalidTransition), err.Error())
	case errors.Is(err, services.ErrLicenseAlreadyCanceled):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyLicenseAlreadyClosed), nil)
	case errors.Is(err, services.ErrLicenseNumberTaken):
		utils.ConflictResponse(c, i18n.T(lang, i18n.KeyLicenseNumberConflict), nil)
	default:
		log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		utils.InternalErrorResponse(c, i18n.T(lang, i18n.KeyInternalError))
	}
}
