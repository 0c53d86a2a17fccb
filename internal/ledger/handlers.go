package ledger

import (
	"github.com/gin-gonic/gin"
	"github.com/poolfund/poolfund-api/internal/auth"
	"github.com/poolfund/poolfund-api/internal/summary"
	"github.com/poolfund/poolfund-api/pkg/response"
)

// GinHandlers contains HTTP handlers for group and ledger endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

type CreateGroupRequest struct {
	Name       string `json:"name" binding:"required"`
	MaxMembers int    `json:"max_members" binding:"required,gte=1"`
}

type JoinGroupRequest struct {
	Role string `json:"role" binding:"omitempty,oneof=MEMBER TRADER"`
}

type DepositRequest struct {
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

// CreateGroupHandler handles POST requests to create a new group.
// The authenticated user becomes the group's admin.
func (h *GinHandlers) CreateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		var req CreateGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		group, err := h.service.CreateGroup(req.Name, userID, req.MaxMembers)
		response.Handle(c, group, err)
	}
}

// JoinGroupHandler handles POST requests to join an existing group.
func (h *GinHandlers) JoinGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		groupID := c.Param("group_id")

		var req JoinGroupRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			response.BadRequest(c, err.Error())
			return
		}

		member, err := h.service.JoinGroup(groupID, userID, req.Role)
		response.Handle(c, member, err)
	}
}

// DepositHandler handles POST requests to contribute funds to the pool.
func (h *GinHandlers) DepositHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		groupID := c.Param("group_id")

		var req DepositRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		member, err := h.service.AddContribution(groupID, userID, req.Amount)
		response.Handle(c, member, err)
	}
}

// GroupSummaryHandler handles GET requests for group-level financials.
func (h *GinHandlers) GroupSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("group_id")

		group, err := h.service.GetGroup(groupID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		members, err := h.service.GetMembers(groupID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		response.Success(c, summary.SummarizeGroup(group, members))
	}
}

// MemberSummaryHandler handles GET requests for the authenticated
// member's share, rank, and projected profit within a group.
func (h *GinHandlers) MemberSummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		groupID := c.Param("group_id")

		group, err := h.service.GetGroup(groupID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		members, err := h.service.GetMembers(groupID)
		if err != nil {
			response.Handle(c, nil, err)
			return
		}

		memberSummary, err := summary.Summarize(group, members, userID)
		response.Handle(c, memberSummary, err)
	}
}

// TradesHandler handles GET requests for a group's trade history.
func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("group_id")

		trades, err := h.service.GetTrades(groupID)
		response.Handle(c, trades, err)
	}
}

func userIDFromContext(c *gin.Context) string {
	claims, exists := c.Get("claims")
	if !exists {
		return ""
	}
	return auth.GetUserID(claims)
}
