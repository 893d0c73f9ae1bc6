package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"policy-audit/internal/audit"
	"policy-audit/internal/config"
	"policy-audit/internal/index"
	"policy-audit/internal/retriever"
	"policy-audit/internal/scorer"
)

// Server exposes the audit pipeline over HTTP. Job state lives in the
// manager; handlers stay thin.
type Server struct {
	cfg     *config.Config
	manager *audit.Manager
	indexer *index.Indexer
	retr    *retriever.Retriever
	router  *scorer.Router
	engine  *gin.Engine
}

func New(cfg *config.Config, manager *audit.Manager, ix *index.Indexer, retr *retriever.Retriever, router *scorer.Router) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:     cfg,
		manager: manager,
		indexer: ix,
		retr:    retr,
		router:  router,
	}

	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	e.GET("/health", s.health)

	a := e.Group("/audit")
	a.POST("/start", s.startAudit)
	a.GET("/:id/status", s.status)
	a.GET("/:id/stream", s.stream)
	a.POST("/:id/cancel", s.cancel)
	a.POST("/:id/rerun", s.rerun)
	a.GET("/:id/artifacts", s.artifacts)

	e.POST("/score", s.score)
	e.POST("/score/batch", s.scoreBatch)
	e.POST("/gaps", s.gapReport)

	s.engine = e
	return s
}

func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Server.Addr).Msg("http server listening")
	return s.engine.Run(s.cfg.Server.Addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
