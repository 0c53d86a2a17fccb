package swap

import (
	"github.com/gin-gonic/gin"
	"github.com/poolfund/poolfund-api/internal/auth"
	"github.com/poolfund/poolfund-api/pkg/response"
)

// GinHandlers contains HTTP handlers for individual swap orders
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// QuoteRequest is the typed form of a "build swap" action.
type QuoteRequest struct {
	TokenMint string  `json:"token_mint" binding:"required"`
	Side      string  `json:"side" binding:"required,oneof=BUY SELL"`
	Amount    float64 `json:"amount" binding:"required,gt=0"`
}

// ApproveRequest is the typed form of an order approval callback.
type ApproveRequest struct {
	RequestID string `json:"request_id" binding:"required"`
	Side      string `json:"side" binding:"omitempty,oneof=BUY SELL"`
}

// QuoteHandler handles POST requests to build a swap and open a pending
// approval session. Requires a valid JWT token.
func (h *GinHandlers) QuoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var req QuoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		quote, err := h.service.Quote(c.Request.Context(), userID, req.TokenMint, req.Side, req.Amount)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		response.Success(c, quote)
	}
}

// ApproveHandler handles POST requests to approve the pending swap.
// The result is returned to the user whether or not the broadcast
// succeeded; a failed broadcast requires a fresh quote.
func (h *GinHandlers) ApproveHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var req ApproveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		result, err := h.service.Approve(c.Request.Context(), userID, req.RequestID, req.Side)
		response.Handle(c, result, err)
	}
}

// DeclineHandler handles POST requests to discard the pending swap.
func (h *GinHandlers) DeclineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		h.service.Decline(userID)
		response.Success(c, gin.H{"message": "pending order declined"})
	}
}

func userIDFromContext(c *gin.Context) string {
	claims, exists := c.Get("claims")
	if !exists {
		return ""
	}
	return auth.GetUserID(claims)
}
