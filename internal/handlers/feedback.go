package handlers

import (
	"fmt"
	"html"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/schoolfeedback/feedbackd/internal/models"
	"github.com/schoolfeedback/feedbackd/internal/services"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"github.com/schoolfeedback/feedbackd/pkg/metrics"
	"github.com/schoolfeedback/feedbackd/pkg/response"
)

const successPage = `<HTML><body>Thank you! Your feedback has been submitted, processed, AI-labeled, and an email has been sent to %s <a href="%s">Back to the main page</a></body></html>`

type FeedbackHandler struct {
	service   *services.FeedbackService
	configErr error
	backLink  string
	recorder  services.SubmissionRecorder
}

// NewFeedbackHandler returns the handler for the feedback form. When
// configErr is set (usually a missing API key) every POST is answered with a
// 500 carrying its message and no outbound call is made.
func NewFeedbackHandler(service *services.FeedbackService, configErr error, backLink string) *FeedbackHandler {
	if service == nil && configErr == nil {
		configErr = fmt.Errorf("feedback processor not configured")
	}
	return &FeedbackHandler{
		service:   service,
		configErr: configErr,
		backLink:  backLink,
		recorder:  services.NopRecorder{},
	}
}

// WithRecorder records rejected submissions that never reach the service.
func (h *FeedbackHandler) WithRecorder(recorder services.SubmissionRecorder) *FeedbackHandler {
	if recorder != nil {
		h.recorder = recorder
	}
	return h
}

// Configured reports whether submissions can be processed.
func (h *FeedbackHandler) Configured() bool {
	return h.configErr == nil
}

// Process handles one form submission.
func (h *FeedbackHandler) Process(c *gin.Context) {
	if c.Request.Method != http.MethodPost {
		metrics.RecordSubmission(response.KindMethod.String())
		response.Text(c, response.NewMethodNotAllowed())
		return
	}

	if h.configErr != nil {
		l := logger.WithRequest(c)
		l.Error().Str("reason", h.configErr.Error()).Msg("[Feedback] Rejecting submission, processor not configured")
		appErr := response.NewConfigError(h.configErr.Error(), h.configErr)
		metrics.RecordSubmission(appErr.Kind.String())
		h.recorder.Record(c.Request.Context(), &models.SubmissionLog{
			RequestID:  c.GetString(logger.RequestIDKey),
			Outcome:    appErr.Kind.String(),
			StatusCode: appErr.HTTPStatus,
			Error:      appErr.Message,
		})
		response.Text(c, appErr)
		return
	}

	// A missing or unparseable body is treated as empty feedback.
	feedback := c.PostForm("feedback")

	result, err := h.service.Process(c.Request.Context(), c.GetString(logger.RequestIDKey), feedback)
	if err != nil {
		response.Text(c, err)
		return
	}

	response.HTML(c, http.StatusOK, fmt.Sprintf(successPage,
		html.EscapeString(result.Recipient), html.EscapeString(h.backLink)))
}
