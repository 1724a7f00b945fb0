package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/schoolfeedback/feedbackd/internal/config"
	"github.com/schoolfeedback/feedbackd/internal/models"
	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"github.com/schoolfeedback/feedbackd/pkg/metrics"
	"github.com/schoolfeedback/feedbackd/pkg/response"
)

// FeedbackBodyPrefix precedes the raw feedback in the e-mail body.
const FeedbackBodyPrefix = "Feedback content:\n\n"

// FeedbackService runs the classify -> subject -> mail pipeline for one
// submission.
type FeedbackService struct {
	classifier     Classifier
	mailer         Mailer
	recorder       SubmissionRecorder
	from           string
	to             string
	logModelOutput bool
}

type FeedbackOptions struct {
	From           string
	To             string
	LogModelOutput bool
	Recorder       SubmissionRecorder // nil means NopRecorder
}

// NewFeedbackService builds the classifier and mailer from cfg. Missing
// secrets are returned as *config.MissingSecretError.
func NewFeedbackService(cfg *config.Config, recorder SubmissionRecorder) (*FeedbackService, error) {
	classifier, err := NewClassifier(&cfg.LLM)
	if err != nil {
		return nil, err
	}
	mailer, err := NewMailer(&cfg.Mail)
	if err != nil {
		return nil, err
	}
	return NewFeedbackServiceWith(classifier, mailer, FeedbackOptions{
		From:           cfg.Mail.From,
		To:             cfg.Mail.To,
		LogModelOutput: cfg.Log.ModelOutput,
		Recorder:       recorder,
	}), nil
}

func NewFeedbackServiceWith(classifier Classifier, mailer Mailer, opts FeedbackOptions) *FeedbackService {
	recorder := opts.Recorder
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &FeedbackService{
		classifier:     classifier,
		mailer:         mailer,
		recorder:       recorder,
		from:           opts.From,
		to:             opts.To,
		logModelOutput: opts.LogModelOutput,
	}
}

// Recipient is the fixed address every feedback is sent to.
func (s *FeedbackService) Recipient() string {
	return s.to
}

// ClassifyOutcome is the parsed model verdict plus the subject built from it.
type ClassifyOutcome struct {
	Classification Classification
	Fallback       bool // model output was not valid JSON
	Violations     []string
	Subject        string
}

// ClassifyFeedback asks classifier about feedback and composes the subject.
// Only a failed call is an error; unusable output falls back to
// DefaultClassification.
func ClassifyFeedback(ctx context.Context, classifier Classifier, feedback string, logOutput bool) (*ClassifyOutcome, error) {
	provider := classifier.Provider()

	start := time.Now()
	raw, err := classifier.Classify(ctx, feedback)
	metrics.RecordLLMCall(provider, err, time.Since(start))
	if err != nil {
		logger.Error().Err(err).Str("provider", provider).Msg("[LLM] Classification call failed")
		return nil, response.NewUpstreamError(
			fmt.Sprintf("%s API error, please try again later", config.ProviderName(provider)), err)
	}

	logModelOutput(logOutput, provider, raw)

	outcome := &ClassifyOutcome{}
	parsed := ParseClassification(raw)
	if !parsed.OK() {
		logger.Warn().Err(parsed.Err).Str("provider", provider).Int("length", len(raw)).
			Msg("[LLM] Failed to parse classification, using default")
		metrics.ClassificationFallbackTotal.Inc()
		outcome.Fallback = true
	} else if strings.TrimSpace(raw) != "" {
		outcome.Violations = ContractViolations(raw)
		if len(outcome.Violations) > 0 {
			logger.Warn().Strs("violations", outcome.Violations).Str("provider", provider).
				Msg("[LLM] Classification does not follow the requested format")
			metrics.ContractViolationsTotal.Inc()
		}
	}

	outcome.Classification = parsed.OrDefault()
	outcome.Subject = BuildSubject(outcome.Classification)
	return outcome, nil
}

// FeedbackResult describes a delivered submission.
type FeedbackResult struct {
	ClassifyOutcome
	Recipient string
}

// Process classifies feedback, mails it and records the outcome. Errors are
// *response.AppError values: upstream for a failed classification call,
// internal for a failed mail send.
func (s *FeedbackService) Process(ctx context.Context, requestID, feedback string) (result *FeedbackResult, err error) {
	start := time.Now()
	entry := &models.SubmissionLog{
		RequestID:    requestID,
		LLMProvider:  s.classifier.Provider(),
		MailProvider: s.mailer.Provider(),
	}
	defer func() {
		entry.LatencyMS = time.Since(start).Milliseconds()
		s.finish(ctx, entry, err)
	}()

	outcome, err := ClassifyFeedback(ctx, s.classifier, feedback, s.logModelOutput)
	if err != nil {
		return nil, err
	}
	entry.Categories = strings.Join(outcome.Classification.Categories, ",")
	entry.Offensive = outcome.Classification.Offensive
	entry.ClassificationFell = outcome.Fallback

	email := &Email{
		To:      s.to,
		From:    s.from,
		Subject: outcome.Subject,
		Text:    FeedbackBodyPrefix + feedback,
	}
	sendErr := s.mailer.Send(ctx, email)
	metrics.RecordMailSend(s.mailer.Provider(), sendErr)
	if sendErr != nil {
		logger.Error().Err(sendErr).Str("request_id", requestID).Str("provider", s.mailer.Provider()).
			Msg("[Mail] Failed to send feedback email")
		return nil, response.NewInternalError(sendErr)
	}

	logger.Info().Str("request_id", requestID).Strs("categories", outcome.Classification.Categories).
		Bool("offensive", outcome.Classification.Offensive).Bool("fallback", outcome.Fallback).
		Msg("[Feedback] Feedback classified and sent")

	return &FeedbackResult{ClassifyOutcome: *outcome, Recipient: s.to}, nil
}

func (s *FeedbackService) finish(ctx context.Context, entry *models.SubmissionLog, err error) {
	if err == nil {
		entry.Outcome = "sent"
		entry.StatusCode = 200
	} else {
		appErr := response.FromError(err)
		entry.Outcome = response.KindOf(err).String()
		entry.StatusCode = appErr.HTTPStatus
		entry.Error = appErr.Error()
	}
	metrics.RecordSubmission(entry.Outcome)
	s.recorder.Record(ctx, entry)
}
