package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/veilchat/whispermatch/internal/models"
	"github.com/veilchat/whispermatch/internal/util"
)

// AdminStatus reports pool and session counts for operators.
// GET /api/v1/admin/match/status
func (h *MatchHandlers) AdminStatus(c *gin.Context) {
	sessions, err := h.svc.Store().ListSessions(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "failed to list sessions")
		return
	}

	active, terminal := 0, 0
	for _, sess := range sessions {
		if sess.State == models.SessionActive {
			active++
		} else {
			terminal++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"waitingUsers":     h.svc.Pool().Len(),
		"waitingEntries":   h.svc.Pool().Snapshot(),
		"activeSessions":   active,
		"terminalSessions": terminal,
	})
}

// AdminSessions lists every session the store still holds.
// GET /api/v1/admin/match/sessions
func (h *MatchHandlers) AdminSessions(c *gin.Context) {
	sessions, err := h.svc.Store().ListSessions(c.Request.Context())
	if err != nil {
		util.RespondInternalError(c, "failed to list sessions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":    len(sessions),
		"sessions": sessions,
	})
}
