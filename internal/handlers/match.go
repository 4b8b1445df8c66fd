package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veilchat/whispermatch/internal/errors"
	"github.com/veilchat/whispermatch/internal/match"
	"github.com/veilchat/whispermatch/internal/util"
)

// messageRequest is the body for POST /message
type messageRequest struct {
	MatchID string `json:"matchId" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// leaveRequest is the body for POST /leave
type leaveRequest struct {
	MatchID string `json:"matchId" binding:"required"`
}

// Join enters the caller into matchmaking.
// POST /api/v1/whisper-match/join
func (h *MatchHandlers) Join(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	result, err := h.svc.Join(c.Request.Context(), userID)
	if stderrors.Is(err, match.ErrAlreadyInSession) {
		// Embed the live session so the client can resume instead of
		// treating the conflict as fatal
		sess, cerr := h.svc.Current(c.Request.Context(), userID)
		if cerr == nil && sess != nil {
			c.JSON(http.StatusConflict, gin.H{
				"code":    errors.ErrAlreadyInSession,
				"message": "already in an active match session",
				"match":   sess,
			})
			return
		}
	}
	if err != nil {
		h.respondMatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Message appends a message to the caller's session and relays it.
// POST /api/v1/whisper-match/message
func (h *MatchHandlers) Message(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "matchId and content are required")
		return
	}
	if err := match.ValidateContent(req.Content); err != nil {
		util.RespondValidationError(c, "content", err.Error())
		return
	}

	msg, err := h.svc.SendMessage(c.Request.Context(), req.MatchID, userID, req.Content)
	if err != nil {
		h.respondMatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// Leave ends the caller's session.
// POST /api/v1/whisper-match/leave
func (h *MatchHandlers) Leave(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req leaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBadRequest(c, "matchId is required")
		return
	}

	if err := h.svc.Leave(c.Request.Context(), req.MatchID, userID); err != nil {
		h.respondMatchError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"left": true})
}

// Current returns the caller's current match state so a reconnecting
// client can resume.
// GET /api/v1/whisper-match/current
func (h *MatchHandlers) Current(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	sess, err := h.svc.Current(c.Request.Context(), userID)
	if err != nil {
		h.respondMatchError(c, err)
		return
	}

	if sess == nil {
		waiting := h.svc.Pool().Contains(userID)
		status := "idle"
		if waiting {
			status = match.JoinStatusWaiting
		}
		c.JSON(http.StatusOK, gin.H{"status": status})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": match.JoinStatusMatched,
		"match":  sess,
	})
}

// respondMatchError maps matchmaking sentinels onto the API error taxonomy
func (h *MatchHandlers) respondMatchError(c *gin.Context, err error) {
	switch {
	case stderrors.Is(err, match.ErrAlreadyWaiting):
		util.RespondWithAPIError(c, errors.New(errors.ErrAlreadyWaiting, "already waiting for a match"))
	case stderrors.Is(err, match.ErrAlreadyInSession):
		util.RespondWithAPIError(c, errors.New(errors.ErrAlreadyInSession, "already in an active match session"))
	case stderrors.Is(err, match.ErrSessionNotFound):
		util.RespondWithAPIError(c, errors.New(errors.ErrSessionNotFound, "match session not found"))
	case stderrors.Is(err, match.ErrSessionNotActive):
		util.RespondWithAPIError(c, errors.New(errors.ErrSessionNotActive, "match session is no longer active"))
	case stderrors.Is(err, match.ErrNotAParticipant):
		util.RespondWithAPIError(c, errors.New(errors.ErrNotAParticipant, "not a participant of this session"))
	case stderrors.Is(err, match.ErrUnavailable):
		util.RespondWithAPIError(c, errors.ServiceUnavailable("match service"))
	default:
		util.RespondInternalError(c, "unexpected matchmaking error")
	}
}
