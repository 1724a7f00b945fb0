package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/schoolfeedback/feedbackd/pkg/logger"
	"github.com/xeipuuv/gojsonschema"
)

// Categories is the label vocabulary the model is asked to use. It is not
// enforced on the response.
var Categories = []string{"bullying", "complaint", "suggestions", "praise", "administrative", "other"}

// ClassificationPrompt is the system instruction sent with every feedback.
const ClassificationPrompt = `You are a helpful AI assistant. Classify the user's feedback into one or more labels from this set:
[bullying, complaint, suggestions, praise, administrative, other].

Also detect if the feedback has offensive or bad words.
Return your answer in strict JSON format as follows:

{
  "categories": ["one or more labels"],
  "offensive": true/false,
  "summary": "a short summary of the content"
}

Do not include extra keys or text outside the JSON.`

// Classification is the model's verdict on one feedback.
type Classification struct {
	Categories []string `json:"categories"`
	Offensive  bool     `json:"offensive"`
	Summary    string   `json:"summary"`
}

// DefaultClassification is used when the model output cannot be parsed.
func DefaultClassification() Classification {
	return Classification{Categories: []string{"other"}}
}

// ParsedClassification is the tagged result of ParseClassification: either
// Value is usable or Err says why the output was rejected.
type ParsedClassification struct {
	Value Classification
	Err   error
}

func (p ParsedClassification) OK() bool { return p.Err == nil }

// OrDefault returns Value, or DefaultClassification when parsing failed.
func (p ParsedClassification) OrDefault() Classification {
	if p.Err != nil {
		return DefaultClassification()
	}
	return p.Value
}

// ParseClassification decodes raw model content. Empty content counts as
// "{}". Anything that does not decode into a Classification, including
// valid JSON of the wrong shape, is a failure.
func ParseClassification(raw string) ParsedClassification {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}

	var c Classification
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return ParsedClassification{Err: fmt.Errorf("invalid classification JSON: %w", err)}
	}
	return ParsedClassification{Value: c}
}

const classificationSchema = `{
  "type": "object",
  "properties": {
    "categories": {
      "type": "array",
      "items": {"enum": ["bullying", "complaint", "suggestions", "praise", "administrative", "other"]}
    },
    "offensive": {"type": "boolean"},
    "summary": {"type": "string"}
  },
  "required": ["categories", "offensive", "summary"],
  "additionalProperties": false
}`

var classificationSchemaLoader = gojsonschema.NewStringLoader(classificationSchema)

// ContractViolations lists the ways raw deviates from the requested output
// contract (unknown labels, missing or extra keys). Violations are reported,
// never enforced.
func ContractViolations(raw string) []string {
	result, err := gojsonschema.Validate(classificationSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return []string{err.Error()}
	}
	if result.Valid() {
		return nil
	}
	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, e.String())
	}
	return violations
}

// BuildSubject composes the e-mail subject:
// "[cat1][cat2][contains bad words] summary". Categories keep model order and
// duplicates. With no tags at all the prefix is "[other]"; an empty summary
// becomes "New Feedback".
func BuildSubject(c Classification) string {
	var labels strings.Builder
	for _, cat := range c.Categories {
		labels.WriteString("[" + cat + "]")
	}
	if c.Offensive {
		labels.WriteString("[contains bad words]")
	}

	prefix := labels.String()
	if prefix == "" {
		prefix = "[other]"
	}
	summary := c.Summary
	if summary == "" {
		summary = "New Feedback"
	}
	return strings.TrimSpace(prefix + " " + summary)
}

const maxLoggedOutput = 300

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// RedactModelOutput prepares raw model output for debug logs: e-mail
// addresses are masked and the text is truncated.
func RedactModelOutput(raw string) string {
	out := emailPattern.ReplaceAllString(raw, "<email>")
	if len(out) > maxLoggedOutput {
		out = out[:maxLoggedOutput] + "...(truncated)"
	}
	return out
}

func logModelOutput(enabled bool, provider, raw string) {
	if !enabled {
		return
	}
	logger.Debug().
		Str("provider", provider).
		Int("length", len(raw)).
		Str("output", RedactModelOutput(raw)).
		Msg("[LLM] classification output")
}
