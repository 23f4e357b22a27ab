package http

import (
	"net/http"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/auth"
	"github.com/dkeye/huddle/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	sessionName = "huddle"
	sessionKey  = "sid"
	// ContextSID is the gin context key holding the caller's session id.
	ContextSID = "client_token"
)

// ClientTokenMiddleware assigns every browser a stable session id kept in the signed cookie session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		sid, _ := s.Get(sessionKey).(string)
		if sid == "" {
			sid = uuid.NewString()
			s.Set(sessionKey, sid)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(ContextSID, sid)
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, o *orch.Orchestrator, minter *auth.Minter, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: o, minter: minter, signal: ctl}
	api := r.Group("/api")
	api.GET("/ws/signal", ctl.HandleSignal)

	ws := api.Group("/workspaces/:workspace")
	ws.GET("/channels", h.listChannels)
	ws.GET("/channels/:channel", h.getChannel)
	ws.DELETE("/channels/:channel", h.evictChannel)
	ws.POST("/channels/:channel/token", h.issueToken)
	ws.GET("/meetings", h.listMeetings)

	return r
}
