package main

import (
	"github.com/gin-gonic/gin"
	"github.com/schoolfeedback/feedbackd/internal/handlers"
	"github.com/schoolfeedback/feedbackd/internal/middleware"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
)

// feedbackPaths all serve the feedback form. The netlify path keeps
// existing forms working unchanged.
var feedbackPaths = []string{
	"/process",
	"/.netlify/functions/process",
	"/feedback",
}

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(middleware.RequestID(), logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	// Any method is routed so the handler can answer 405 itself.
	feedback := r.Group("")
	if svc.limiter != nil {
		feedback.Use(svc.limiter.Middleware())
	}
	for _, path := range feedbackPaths {
		feedback.Any(path, svc.feedbackHandler.Process)
	}
}
