package shared

// DomainError represents a domain-level error with a machine-readable code
// that is safe to relay directly to API clients.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrTenantNotFound      = NewDomainError("TENANT_NOT_FOUND", "Tenant not found")
	ErrPlanNotFound        = NewDomainError("PLAN_NOT_FOUND", "No plan configured for tenant")
	ErrPriceNotFound       = NewDomainError("PRICE_NOT_FOUND", "No price configured for service")
	ErrExternalService     = NewDomainError("EXTERNAL_SERVICE_ERROR", "External service call failed")
)
