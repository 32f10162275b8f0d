package server

import (
	"github.com/labstack/echo/v4"
	"github.com/nfrund/herald/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	d := s.deps

	if d.Metrics != nil {
		s.E.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	api := s.E.Group(d.APIPrefix)
	if d.Health != nil {
		api.GET("/health", d.Health.Check)
	}
	if d.Topics != nil {
		api.GET("/topics", d.Topics.List)
		api.GET("/topics/:name", d.Topics.Status)
		api.POST("/topics/:name/messages", d.Topics.Publish, middleware.RateLimiter(d.PublishRate))
		api.POST("/cleanup", d.Topics.Cleanup)
	}
	if d.Stream != nil {
		api.GET("/topics/:name/stream", d.Stream.ServeWS)
	}
	if d.Jobs != nil {
		api.GET("/jobs", d.Jobs.List)
		api.POST("/jobs/:name/run", d.Jobs.Run)
	}
}
