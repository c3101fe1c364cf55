package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	csvuploaddomain "github.com/smallbiznis/licensor/internal/csvupload/domain"
	licensedomain "github.com/smallbiznis/licensor/internal/license/domain"
	obscontext "github.com/smallbiznis/licensor/internal/observability/context"
)

const (
	codeValidationError = "validation_error"
	codeRateLimited     = "rate_limited"
	codeInternalError   = "internal_error"
)

type licenseErrorPayload struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type licenseErrorResponse struct {
	Success bool                `json:"success"`
	Error   licenseErrorPayload `json:"error"`
}

// fieldErrors collects request fields that failed validation.
type fieldErrors map[string]string

func (f fieldErrors) Error() string {
	return codeValidationError
}

// licenseErrorCode returns the machine code of a client-visible licensing
// error, or "" when err is not one.
func licenseErrorCode(err error) string {
	var fields fieldErrors
	switch {
	case errors.As(err, &fields):
		return codeValidationError
	case errors.Is(err, licensedomain.ErrLicenseNotFound):
		return licensedomain.ErrLicenseNotFound.Error()
	case errors.Is(err, licensedomain.ErrLicenseInactive):
		return licensedomain.ErrLicenseInactive.Error()
	case errors.Is(err, licensedomain.ErrLicenseExpired):
		return licensedomain.ErrLicenseExpired.Error()
	case errors.Is(err, licensedomain.ErrDomainLimitReached):
		return licensedomain.ErrDomainLimitReached.Error()
	case errors.Is(err, licensedomain.ErrActivationNotFound):
		return licensedomain.ErrActivationNotFound.Error()
	case errors.Is(err, licensedomain.ErrInvalidLicenseKey),
		errors.Is(err, licensedomain.ErrInvalidProductSlug),
		errors.Is(err, licensedomain.ErrInvalidDomain):
		return codeValidationError
	default:
		return ""
	}
}

func licenseErrorStatus(err error) (int, licenseErrorPayload) {
	var fields fieldErrors
	if errors.As(err, &fields) {
		return http.StatusUnprocessableEntity, licenseErrorPayload{
			Message: "The given data was invalid.",
			Code:    codeValidationError,
			Fields:  fields,
		}
	}

	message := licensedomain.MessageOf(err)
	switch {
	case errors.Is(err, licensedomain.ErrLicenseNotFound):
		return http.StatusNotFound, licenseErrorPayload{Message: orDefault(message, "Invalid license key or product."), Code: licenseErrorCode(err)}
	case errors.Is(err, licensedomain.ErrActivationNotFound):
		return http.StatusNotFound, licenseErrorPayload{Message: orDefault(message, "No active activation found for this domain."), Code: licenseErrorCode(err)}
	case errors.Is(err, licensedomain.ErrLicenseInactive),
		errors.Is(err, licensedomain.ErrLicenseExpired),
		errors.Is(err, licensedomain.ErrDomainLimitReached):
		return http.StatusForbidden, licenseErrorPayload{Message: orDefault(message, "License cannot be used."), Code: licenseErrorCode(err)}
	case errors.Is(err, licensedomain.ErrInvalidLicenseKey):
		return validationFailure("license_key", "The license key field is required.")
	case errors.Is(err, licensedomain.ErrInvalidProductSlug):
		return validationFailure("product_slug", "The product slug field is required.")
	case errors.Is(err, licensedomain.ErrInvalidDomain):
		return validationFailure("domain", "The domain field must be a valid domain.")
	case errors.Is(err, csvuploaddomain.ErrInvalidFile):
		return validationFailure("file", "The file must be a CSV file.")
	case errors.Is(err, csvuploaddomain.ErrEmptyFile):
		return validationFailure("file", "The file is empty.")
	case errors.Is(err, csvuploaddomain.ErrInvalidID):
		return validationFailure("id", "The upload id is invalid.")
	case errors.Is(err, csvuploaddomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, licenseErrorPayload{Message: "The file exceeds the upload size limit.", Code: csvuploaddomain.ErrFileTooLarge.Error()}
	case errors.Is(err, csvuploaddomain.ErrNotFound):
		return http.StatusNotFound, licenseErrorPayload{Message: "Upload not found.", Code: csvuploaddomain.ErrNotFound.Error()}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, licenseErrorPayload{Message: "Too many requests.", Code: codeRateLimited}
	default:
		return http.StatusInternalServerError, licenseErrorPayload{Message: "Internal server error.", Code: codeInternalError}
	}
}

func validationFailure(field, message string) (int, licenseErrorPayload) {
	return http.StatusUnprocessableEntity, licenseErrorPayload{
		Message: "The given data was invalid.",
		Code:    codeValidationError,
		Fields:  map[string]string{field: message},
	}
}

// abortLicenseError renders err in the license API shape. The error is also
// attached to the context so the request logger can classify it.
func abortLicenseError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	status, payload := licenseErrorStatus(err)
	c.Set(obscontext.GinKeyLicenseOutcome, payload.Code)
	c.AbortWithStatusJSON(status, licenseErrorResponse{Success: false, Error: payload})
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
