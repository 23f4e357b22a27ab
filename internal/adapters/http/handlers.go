package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	orch   *orch.Orchestrator
	minter *auth.Minter
	signal *signal.SignalWSController
}

type tokenRequest struct {
	Name string `json:"name" binding:"max=36"`
	Role string `json:"role" binding:"omitempty,oneof=publisher subscriber"`
}

type TokenResponse struct {
	Token     string             `json:"token"`
	ExpiresAt time.Time          `json:"expires_at"`
	UID       domain.UserID      `json:"uid"`
	Workspace domain.WorkspaceID `json:"workspace"`
	Channel   domain.ChannelName `json:"channel"`
	Role      domain.Role        `json:"role"`
}

type channelResponse struct {
	core.ChannelInfo
	Meeting domain.MeetingID `json:"meeting,omitempty"`
	Members []core.MemberDTO `json:"members"`
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func channelKey(c *gin.Context) (domain.ChannelKey, bool) {
	key, err := domain.NewChannelKey(c.Param("workspace"), c.Param("channel"))
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return domain.ChannelKey{}, false
	}
	return key, true
}

func (h *handlers) issueToken(c *gin.Context) {
	key, ok := channelKey(c)
	if !ok {
		return
	}
	var req tokenRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}

	sid := core.SessionID(c.GetString(ContextSID))
	user, _ := h.orch.Registry.GetOrCreateUser(sid)
	if req.Name != "" {
		if err := h.orch.Registry.UpdateUsername(sid, req.Name); err != nil {
			abortError(c, http.StatusBadRequest, err)
			return
		}
	}

	token, exp, err := h.minter.Mint(key, user.ID, role)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("mint token")
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("sid", string(sid)).Str("channel", key.String()).Str("role", string(role)).Msg("token issued")
	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		UID:       user.ID,
		Workspace: key.Workspace,
		Channel:   key.Name,
		Role:      role,
	})
}

func (h *handlers) listChannels(c *gin.Context) {
	ws := c.Param("workspace")
	if err := domain.ValidateName(ws); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, h.orch.Channels.List(domain.WorkspaceID(ws)))
}

func (h *handlers) getChannel(c *gin.Context) {
	key, ok := channelKey(c)
	if !ok {
		return
	}
	ch, ok := h.orch.Channels.Get(key)
	if !ok {
		abortError(c, http.StatusNotFound, app.ErrChannelNotFound)
		return
	}
	resp := channelResponse{
		ChannelInfo: core.ChannelInfo{Workspace: key.Workspace, Name: key.Name, MemberCount: ch.MemberCount()},
		Members:     ch.MembersSnapshot(),
	}
	if h.orch.Meetings != nil {
		resp.Meeting, _ = h.orch.Meetings.Current(key)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) evictChannel(c *gin.Context) {
	key, ok := channelKey(c)
	if !ok {
		return
	}
	if _, ok := h.orch.Channels.Get(key); !ok {
		abortError(c, http.StatusNotFound, app.ErrChannelNotFound)
		return
	}
	sids := h.orch.EvictChannel(c.Request.Context(), key)
	h.signal.NotifyLeft(sids)
	c.JSON(http.StatusOK, gin.H{"evicted": len(sids)})
}

func (h *handlers) listMeetings(c *gin.Context) {
	ws := c.Param("workspace")
	if err := domain.ValidateName(ws); err != nil {
		abortError(c, http.StatusBadRequest, err)
		return
	}
	limit := store.DefaultListLimit
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			abortError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	if h.orch.Meetings == nil {
		c.JSON(http.StatusOK, []domain.Meeting{})
		return
	}
	meetings, err := h.orch.Meetings.History(c.Request.Context(), domain.WorkspaceID(ws), limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("workspace", ws).Msg("meeting history")
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	if meetings == nil {
		meetings = []domain.Meeting{}
	}
	c.JSON(http.StatusOK, meetings)
}
