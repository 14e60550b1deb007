package errors

// Error codes returned in the "error" field of every error response.
// Format: CATEGORY_SPECIFIC_DETAIL. Clients map these to their own copy.

const (
	// ==================== Authentication (AUTH_) ====================
	AuthUnauthorized       = "AUTH_UNAUTHORIZED"        // login required
	AuthInvalidCredentials = "AUTH_INVALID_CREDENTIALS" // wrong identifier/password
	AuthAccountDisabled    = "AUTH_ACCOUNT_DISABLED"    // is_active = false
	AuthTokenExpired       = "AUTH_TOKEN_EXPIRED"
	AuthTokenInvalid       = "AUTH_TOKEN_INVALID"
	AuthTokenRevoked       = "AUTH_TOKEN_REVOKED"
	AuthCodeInvalid        = "AUTH_CODE_INVALID" // reset / verification token unknown
	AuthCodeExpired        = "AUTH_CODE_EXPIRED" // reset token past expiry
	AuthCodeUsed           = "AUTH_CODE_USED"    // reset token already consumed
	AuthAlreadyVerified    = "AUTH_ALREADY_VERIFIED"
	AuthTooManyRequests    = "AUTH_TOO_MANY_REQUESTS"

	// ==================== Authorization (AUTHZ_) ====================
	AuthzForbidden = "AUTHZ_FORBIDDEN"

	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput  = "VALIDATION_INVALID_INPUT"
	ValidationInvalidID     = "VALIDATION_INVALID_ID"
	ValidationInvalidFormat = "VALIDATION_INVALID_FORMAT"
	ValidationRequired      = "VALIDATION_REQUIRED"

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT" // optimistic version check lost

	// ==================== Delivery (DELIVERY_) ====================
	DeliveryPreconditionFailed = "DELIVERY_PRECONDITION_FAILED" // transition guard
	DeliveryPhotosRequired     = "DELIVERY_PHOTOS_REQUIRED"
	DeliveryETARequired        = "DELIVERY_ETA_REQUIRED"

	// ==================== Upload (UPLOAD_) ====================
	UploadFileMissing  = "UPLOAD_FILE_MISSING"
	UploadFileTooLarge = "UPLOAD_FILE_TOO_LARGE"
	UploadInvalidType  = "UPLOAD_INVALID_TYPE"
	UploadFailed       = "UPLOAD_FAILED"

	// ==================== Server (INTERNAL_) ====================
	InternalServerError = "INTERNAL_SERVER_ERROR"
	InternalDatabase    = "INTERNAL_DATABASE_ERROR"
	InternalExternalAPI = "INTERNAL_EXTERNAL_API_ERROR"
)
