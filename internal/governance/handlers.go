package governance

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poolfund/poolfund-api/internal/auth"
	"github.com/poolfund/poolfund-api/pkg/response"
)

// GinHandlers contains HTTP handlers for governance endpoints
type GinHandlers struct {
	service       *Service
	defaultExpiry time.Duration
}

func NewGinHandlers(service *Service, defaultExpiry time.Duration) *GinHandlers {
	return &GinHandlers{
		service:       service,
		defaultExpiry: defaultExpiry,
	}
}

type CreatePollRequest struct {
	PollType  string  `json:"poll_type" binding:"required,oneof=TRADE END_GROUP"`
	TokenMint string  `json:"token_mint"`
	Side      string  `json:"side" binding:"omitempty,oneof=BUY SELL"`
	Amount    float64 `json:"amount"`
	ExpiresIn string  `json:"expires_in"` // duration, e.g. "24h"
}

type CastVoteRequest struct {
	Approve *bool `json:"approve" binding:"required"`
}

// CreatePollHandler handles POST requests to open a poll in a group.
func (h *GinHandlers) CreatePollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		groupID := c.Param("group_id")

		var req CreatePollRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		expiry := h.defaultExpiry
		if req.ExpiresIn != "" {
			d, err := time.ParseDuration(req.ExpiresIn)
			if err != nil || d <= 0 {
				response.BadRequest(c, "invalid expires_in duration")
				return
			}
			expiry = d
		}

		poll, err := h.service.CreatePoll(groupID, userID, req.PollType, req.TokenMint, req.Side, req.Amount, expiry)
		response.Handle(c, poll, err)
	}
}

// GetPollHandler handles GET requests for a poll and its current tally.
func (h *GinHandlers) GetPollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pollID := c.Param("poll_id")

		poll, err := h.service.GetPoll(pollID)
		response.Handle(c, poll, err)
	}
}

// ListPollsHandler handles GET requests for all polls of a group.
func (h *GinHandlers) ListPollsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID := c.Param("group_id")

		polls, err := h.service.GetPolls(groupID)
		response.Handle(c, polls, err)
	}
}

// CastVoteHandler handles POST requests to vote on an open poll.
func (h *GinHandlers) CastVoteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		pollID := c.Param("poll_id")

		var req CastVoteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		vote, err := h.service.CastVote(pollID, userID, *req.Approve)
		response.Handle(c, vote, err)
	}
}

// ExecutePollHandler handles POST requests to execute a consensus-passing
// poll. Requires internal authentication.
func (h *GinHandlers) ExecutePollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pollID := c.Param("poll_id")

		poll, err := h.service.ExecutePoll(c.Request.Context(), pollID)
		response.Handle(c, poll, err)
	}
}

// CancelPollHandler handles POST requests to cancel an open poll.
func (h *GinHandlers) CancelPollHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := userIDFromContext(c)
		if userID == "" {
			response.Unauthorized(c, "Invalid user ID in token")
			return
		}

		pollID := c.Param("poll_id")

		poll, err := h.service.CancelPoll(pollID, userID)
		response.Handle(c, poll, err)
	}
}

func userIDFromContext(c *gin.Context) string {
	claims, exists := c.Get("claims")
	if !exists {
		return ""
	}
	return auth.GetUserID(claims)
}
