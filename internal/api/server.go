package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"loadflow-server/internal/advisor"
	"loadflow-server/internal/config"
	"loadflow-server/internal/loadflow"
	"loadflow-server/internal/metrics"
	"loadflow-server/internal/report"
	"loadflow-server/internal/simulation"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	router     *gin.Engine
	server     *http.Server
	controller *simulation.Controller
	advisor    *advisor.Advisor
	collector  *metrics.Collector
	hub        *Hub
	config     config.ServerConfig
	logger     *logrus.Logger
}

func NewServer(cfg config.ServerConfig, controller *simulation.Controller, adv *advisor.Advisor, collector *metrics.Collector, logger *logrus.Logger) *Server {
	s := &Server{
		router:     gin.New(),
		controller: controller,
		advisor:    adv,
		collector:  collector,
		hub:        NewHub(controller, logger),
		config:     cfg,
		logger:     logger,
	}

	s.setupRoutes()
	return s
}

// Hub exposes the websocket hub so it can be registered as a listener.
func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ws", gin.WrapH(s.hub))

	if s.collector != nil {
		s.router.GET("/metrics", gin.WrapH(s.collector.Handler()))
	}

	reports := s.router.Group("/report")
	{
		reports.GET("/convergence", s.convergenceReport)
		reports.GET("/convergence.png", s.convergencePNG)
	}

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/grid", s.getGrid)
		v1.GET("/view", s.getView)
		v1.GET("/algorithms", s.listAlgorithms)
		v1.GET("/algorithms/comparison", s.getComparison)
		v1.GET("/state", s.getState)
		v1.GET("/history", s.getHistory)

		v1.POST("/advance", s.advance)
		v1.POST("/run", s.run)
		v1.POST("/algorithm", s.selectAlgorithm)
		v1.POST("/reset", s.reset)
		v1.POST("/recommend", s.recommend)
	}
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.logger.Infof("Starting load flow API on %s", addr)

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down server...")
		s.server.Close()
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debugf("API: %s %s -> %d", c.Request.Method, c.Request.URL.Path, c.Writer.Status())
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "websocketClients": s.hub.ClientCount()})
}

func (s *Server) getGrid(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Grid())
}

func (s *Server) getView(c *gin.Context) {
	c.JSON(http.StatusOK, NewView(s.controller.Grid(), s.controller.Snapshot()))
}

func (s *Server) listAlgorithms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":    s.controller.Registry().Default(),
		"selected":   s.controller.Snapshot().Algorithm,
		"algorithms": s.controller.Registry().Descriptors(),
	})
}

func (s *Server) getComparison(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Registry().Comparison())
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) getHistory(c *gin.Context) {
	snapshot := s.controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"runId":     snapshot.RunID,
		"algorithm": snapshot.Algorithm,
		"history":   s.controller.History(),
	})
}

func (s *Server) advance(c *gin.Context) {
	advanced := s.controller.Advance(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"advanced": advanced, "snapshot": s.controller.Snapshot()})
}

func (s *Server) run(c *gin.Context) {
	c.JSON(http.StatusOK, s.controller.RunToCompletion(c.Request.Context()))
}

type selectRequest struct {
	Key string `json:"key" binding:"required"`
}

func (s *Server) selectAlgorithm(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := s.controller.SelectAlgorithm(c.Request.Context(), loadflow.AlgorithmKey(req.Key)); err != nil {
		if errors.Is(err, loadflow.ErrUnknownAlgorithm) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) reset(c *gin.Context) {
	s.controller.Reset(c.Request.Context())
	c.JSON(http.StatusOK, s.controller.Snapshot())
}

func (s *Server) recommend(c *gin.Context) {
	if s.advisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recommender disabled"})
		return
	}

	var req advisor.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	rec, err := s.advisor.Recommend(c.Request.Context(), req)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, rec)
	case errors.Is(err, advisor.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, advisor.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Warnf("API: recommendation failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "could not get a recommendation, please try again"})
	}
}

func (s *Server) trace() report.Trace {
	snapshot := s.controller.Snapshot()
	return report.NewTrace(s.controller.Grid(), snapshot.AlgorithmName, s.controller.History())
}

func (s *Server) convergenceReport(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := report.Render(c.Writer, s.trace(), s.controller.Registry().Comparison()); err != nil {
		s.logger.Errorf("API: convergence report failed: %v", err)
	}
}

func (s *Server) convergencePNG(c *gin.Context) {
	c.Header("Content-Type", "image/png")
	c.Header("Cache-Control", "no-store")
	c.Header("X-Iteration", strconv.Itoa(s.controller.Snapshot().Iteration))
	c.Status(http.StatusOK)
	if err := report.RenderPNG(c.Writer, s.trace()); err != nil {
		s.logger.Errorf("API: convergence image failed: %v", err)
	}
}
