// Package api exposes the service over HTTP under /api.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"

	"github.com/baiirun/mesa/internal/metrics"
	"github.com/baiirun/mesa/internal/service"
)

type Options struct {
	Addr        string
	CORSOrigins []string

	// LoginRate is a limiter formatted rate such as "5-M".
	LoginRate        string
	RateLimitStorage string // memory or redis
	RedisURL         string

	MetricsPath string
}

type Server struct {
	svc     *service.Service
	log     *logrus.Logger
	metrics *metrics.Metrics
	opts    Options
	engine  *gin.Engine
	handler http.Handler
}

// New builds the router. m may be nil, which disables /metrics.
func New(svc *service.Service, log *logrus.Logger, m *metrics.Metrics, opts Options) (*Server, error) {
	if opts.LoginRate == "" {
		opts.LoginRate = "5-M"
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{svc: svc, log: log, metrics: m, opts: opts, engine: gin.New()}
	s.engine.Use(s.requestLogger(), s.recovery(), s.observe())
	s.engine.HandleMethodNotAllowed = true
	s.engine.NoRoute(func(c *gin.Context) { detail(c, http.StatusNotFound, "Not Found") })
	s.engine.NoMethod(func(c *gin.Context) { detail(c, http.StatusMethodNotAllowed, "Method Not Allowed") })

	loginLimit, err := s.loginLimiter()
	if err != nil {
		return nil, err
	}
	s.routes(loginLimit)

	s.handler = cors.New(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
		AllowCredentials: true,
	}).Handler(s.engine)
	return s, nil
}

func (s *Server) routes(loginLimit gin.HandlerFunc) {
	s.engine.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if s.metrics != nil {
		s.engine.GET(s.opts.MetricsPath, gin.WrapH(s.metrics.Handler()))
	}

	api := s.engine.Group("/api")
	api.POST("/auth/login", loginLimit, s.login)

	authed := api.Group("", s.authenticate())
	authed.GET("/auth/me", s.me)
	authed.PATCH("/auth/me", s.updateMe)

	authed.GET("/users", s.listUsers)
	authed.POST("/users", s.createUser)
	authed.PATCH("/users/:id", s.updateUser)
	authed.DELETE("/users/:id", s.deleteUser)

	authed.GET("/departments", s.departments)
	authed.GET("/config", s.config)
	authed.PUT("/config/departments", s.replaceDepartments)
	authed.PUT("/config/request-options", s.replaceRequestOptions)

	authed.GET("/requests", s.listRequests)
	authed.POST("/requests", s.createRequest)
	authed.GET("/requests/export", s.exportRequests)
	authed.GET("/requests/trash", s.listTrash)
	authed.DELETE("/requests/trash", s.emptyTrash)
	authed.DELETE("/requests/trash/:id", s.purgeRequest)
	authed.GET("/requests/me/worklogs", s.myWorklogs)
	authed.GET("/requests/:id", s.getRequest)
	authed.PUT("/requests/:id", s.updateRequest)
	authed.DELETE("/requests/:id", s.deleteRequest)
	authed.POST("/requests/:id/classify", s.classify)
	authed.POST("/requests/:id/assign", s.assign)
	authed.POST("/requests/:id/unassign", s.unassign)
	authed.POST("/requests/:id/transition", s.transition)
	authed.POST("/requests/:id/feedback", s.feedback)
	authed.POST("/requests/:id/restore", s.restore)
	authed.GET("/requests/:id/worklogs", s.requestWorklogs)
	authed.POST("/requests/:id/worklogs", s.addWorklog)

	authed.GET("/reports/summary", s.summary)
	authed.GET("/reports/productivity", s.productivity)
	authed.GET("/analytics/dashboard", s.dashboard)
}

// Handler is the full HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on opts.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.opts.Addr).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
