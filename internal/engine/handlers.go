package engine

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ksred/exec-engine/internal/types"
	"github.com/ksred/exec-engine/pkg/response"
)

// GinHandlers contains HTTP handlers for the execution core endpoints.
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// SubmitSignalHandler handles POST requests carrying an approved signal.
// Rejections map onto the error taxonomy via the response package.
func (h *GinHandlers) SubmitSignalHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var sig types.Signal
		if err := c.ShouldBindJSON(&sig); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		group, err := h.service.SubmitSignal(c.Request.Context(), sig)
		response.Handle(c, group, err)
	}
}

// GetOrderGroupHandler handles GET requests for order group status.
// URL parameter: group_id
func (h *GinHandlers) GetOrderGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("group_id")
		if groupID == "" {
			response.BadRequest(c, "Group ID is required")
			return
		}

		group, err := h.service.OrderGroup(groupID)
		if err != nil {
			// An unknown ID is a 404; store failures surface as 5xx.
			if types.IsKind(err, types.KindValidation) {
				response.NotFound(c, "Order group not found")
				return
			}
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, group)
	}
}

// CancelOrderGroupHandler handles DELETE requests cancelling a group.
// Cancelling a completed group is a no-op and still succeeds.
func (h *GinHandlers) CancelOrderGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("group_id")
		if groupID == "" {
			response.BadRequest(c, "Group ID is required")
			return
		}

		group, err := h.service.CancelOrderGroup(c.Request.Context(), groupID)
		response.Handle(c, group, err)
	}
}

// PortfolioHandler handles GET requests for the portfolio snapshot.
func (h *GinHandlers) PortfolioHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.GetPortfolioSnapshot())
	}
}

// EmergencyLogHandler handles GET requests for the emergency event log.
// Query parameter: since_hours (default 24)
func (h *GinHandlers) EmergencyLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sinceHours := 24
		if raw := c.Query("since_hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				response.BadRequest(c, "since_hours must be a positive integer")
				return
			}
			sinceHours = parsed
		}

		events, err := h.service.GetEmergencyLog(sinceHours)
		response.Handle(c, events, err)
	}
}

type liquidateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// LiquidateHandler handles POST requests forcing full liquidation.
// Operator-only; requires internal authentication.
func (h *GinHandlers) LiquidateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req liquidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "reason is required")
			return
		}

		err := h.service.ForceLiquidateAll(c.Request.Context(), req.Reason)
		response.Handle(c, gin.H{"liquidated": err == nil}, err)
	}
}

type riskModeRequest struct {
	Mode *string `json:"mode"`
}

// RiskModeHandler handles PUT requests pinning or releasing the risk
// mode. A null mode releases the override.
func (h *GinHandlers) RiskModeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req riskModeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.SetRiskModeOverride(req.Mode); err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, h.service.GetPortfolioSnapshot())
	}
}
