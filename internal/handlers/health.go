package handlers

import (
	"github.com/gin-gonic/gin"
)

// Pinger is implemented by the submission log store.
type Pinger interface {
	Ping() error
}

// HealthHandler reports the state of the processor and its database.
type HealthHandler struct {
	db          Pinger // nil when the submission log is disabled
	feedback    *FeedbackHandler
	llmProvider string
	mailer      string
}

func NewHealthHandler(db Pinger, feedback *FeedbackHandler, llmProvider, mailProvider string) *HealthHandler {
	return &HealthHandler{
		db:          db,
		feedback:    feedback,
		llmProvider: llmProvider,
		mailer:      mailProvider,
	}
}

// CheckHealth returns the health status of all subsystems.
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "ok"

	dbStatus := "disabled"
	if h.db != nil {
		dbStatus = "ok"
		if err := h.db.Ping(); err != nil {
			dbStatus = "error: " + err.Error()
			overall = "degraded"
		}
	}

	processor := "ready"
	if h.feedback == nil || !h.feedback.Configured() {
		processor = "not configured"
		overall = "degraded"
	}

	c.JSON(200, gin.H{
		"status":  overall,
		"service": "feedbackd",
		"components": gin.H{
			"database":      dbStatus,
			"processor":     processor,
			"llm_provider":  h.llmProvider,
			"mail_provider": h.mailer,
		},
	})
}
