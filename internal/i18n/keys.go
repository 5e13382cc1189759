// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	// Authentication
	KeyAuthRequired     = "auth.required"
	KeyAuthInvalidToken = "auth.invalid_token"
	KeyAuthTokenExpired = "auth.token_expired"

	// Admin
	KeyAdminAccessDenied = "admin.access_denied"

	// Validation
	KeyValidationInvalid        = "validation.invalid"
	KeyValidationRateLimited    = "validation.rate_limited"
	KeyValidationStateBlocked   = "validation.state_blocked"
	KeyValidationStateAllowed   = "validation.state_allowed"
	KeyValidationUnknownState   = "validation.unknown_state"
	KeyValidationComposition    = "validation.invalid_composition"
	KeyValidationInvalidPolicy  = "validation.invalid_policy"
	KeyValidationStatesRequired = "validation.states_required"

	// Vehicles
	KeyVehicleCreated  = "vehicle.created"
	KeyVehicleNotFound = "vehicle.not_found"
	KeyVehicleExists   = "vehicle.exists"

	// License requests
	KeyRequestCreated           = "request.created"
	KeyRequestNotFound          = "request.not_found"
	KeyRequestSubmitted         = "request.submitted"
	KeyRequestStatesBlocked     = "request.states_blocked"
	KeyRequestNotDraft          = "request.not_draft"
	KeyRequestStateUpdated      = "request.state_updated"
	KeyRequestInvalidTransition = "request.invalid_transition"
	KeyRequestStateNotRequested = "request.state_not_requested"

	// Issued licenses
	KeyLicenseNotFound       = "license.not_found"
	KeyLicenseCanceled       = "license.canceled"
	KeyLicenseAlreadyClosed  = "license.already_closed"
	KeyLicenseNumberConflict = "license.number_conflict"

	// Generic
	KeyInternalError = "error.internal"
)
