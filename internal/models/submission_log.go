package models

import "time"

// SubmissionLog records the outcome of one feedback submission. It never
// holds the feedback text, the model summary or the e-mail subject.
type SubmissionLog struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	RequestID          string    `gorm:"size:64;index" json:"request_id"`
	Outcome            string    `gorm:"size:32;index" json:"outcome"` // sent, config_error, upstream_error, internal_error
	StatusCode         int       `json:"status_code"`
	LLMProvider        string    `gorm:"size:32" json:"llm_provider"`
	MailProvider       string    `gorm:"size:32" json:"mail_provider"`
	Categories         string    `gorm:"type:text" json:"categories"` // comma-joined, model order, unbounded
	Offensive          bool      `json:"offensive"`
	ClassificationFell bool      `json:"classification_fallback"`
	Error              string    `gorm:"type:text" json:"error"`
	LatencyMS          int64     `json:"latency_ms"`
	CreatedAt          time.Time `gorm:"index" json:"created_at"`
}

func (SubmissionLog) TableName() string { return "submission_logs" }
