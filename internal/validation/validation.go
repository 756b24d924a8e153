// Package validation provides input validation middleware for the HTTP API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (4MB). Uploads are batches
// of transactions, so this is roomier than a typical JSON API limit.
const MaxRequestSize = 4 << 20

// MaxStringLength is the maximum length for string fields
const MaxStringLength = 10000

// accountIDRegex validates account identifiers: printable token, no
// whitespace, bounded length. Account IDs come straight out of uploaded
// files, so the charset stays permissive.
var accountIDRegex = regexp.MustCompile(`^[A-Za-z0-9_.:@-]{1,128}$`)

// transactionIDRegex validates session-assigned transaction identifiers.
var transactionIDRegex = regexp.MustCompile(`^TXN-[0-9]{6,}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAccountID checks if a string is a plausible account identifier.
func IsValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// IsValidTransactionID checks if a string matches the session ID format.
func IsValidTransactionID(id string) bool {
	return transactionIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	// Trim whitespace
	s = strings.TrimSpace(s)

	// Limit length
	if len(s) > maxLen {
		s = s[:maxLen]
	}

	// Remove null bytes
	s = strings.ReplaceAll(s, "\x00", "")

	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAccount checks if a field is a well-formed account identifier.
func ValidAccount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAccountID(value) {
			return &ValidationError{Field: field, Message: "must be a valid account identifier"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// AccountParamMiddleware validates the :id URL parameter on account routes.
// Apply to route groups that include account params to reject malformed
// identifiers early.
func AccountParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if id != "" && !IsValidAccountID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_account",
				"message": "account must be a printable identifier of at most 128 characters",
			})
			return
		}
		c.Next()
	}
}

// ValidAmount checks if a value is a well-formed monetary amount
// (non-negative decimal).
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		// Should be a non-negative decimal number with at most one decimal point
		decimalCount := 0
		for i, c := range value {
			if c == '.' {
				decimalCount++
				if decimalCount > 1 {
					return &ValidationError{Field: field, Message: "invalid amount format"}
				}
				if i == 0 || i == len(value)-1 {
					return &ValidationError{Field: field, Message: "invalid amount format"}
				}
				continue
			}
			if c < '0' || c > '9' {
				return &ValidationError{Field: field, Message: "invalid amount format"}
			}
		}
		return nil
	}
}
