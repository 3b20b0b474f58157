package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ksred/exec-engine/internal/types"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeForbidden            = "FORBIDDEN"
	ErrCodeInternalError        = "INTERNAL_ERROR"
	ErrCodeValidationFailed     = "VALIDATION_FAILED"
	ErrCodeTradingHalted        = "TRADING_HALTED"
	ErrCodeOrderRejected        = "ORDER_REJECTED"
	ErrCodeOrderFailed          = "ORDER_FAILED"
	ErrCodeGatewayError         = "GATEWAY_ERROR"
	ErrCodeInsufficientPosition = "INSUFFICIENT_POSITION"
)

// Handle processes the error and returns appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		NotFound(c, "Resource not found")
	default:
		handleError(c, err)
	}
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == "POST" {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	fail(c, http.StatusForbidden, ErrCodeForbidden, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// handleError maps the execution error taxonomy onto HTTP statuses so
// clients can branch on code without parsing messages.
func handleError(c *gin.Context, err error) {
	switch types.KindOf(err) {
	case types.KindValidation:
		fail(c, http.StatusBadRequest, ErrCodeValidationFailed, err.Error())
	case types.KindTradingHalted:
		fail(c, http.StatusConflict, ErrCodeTradingHalted, err.Error())
	case types.KindInsufficientPosition:
		fail(c, http.StatusConflict, ErrCodeInsufficientPosition, err.Error())
	case types.KindRejectedOrder:
		fail(c, http.StatusUnprocessableEntity, ErrCodeOrderRejected, err.Error())
	case types.KindOrderFailed:
		fail(c, http.StatusBadGateway, ErrCodeOrderFailed, err.Error())
	case types.KindTransientGateway:
		fail(c, http.StatusBadGateway, ErrCodeGatewayError, err.Error())
	default:
		InternalError(c, "An unexpected error occurred")
	}
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}
