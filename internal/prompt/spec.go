package prompt

import "strings"

// Format is the mandatory shape of the model's answer.
type Format string

const (
	FormatText  Format = "Text"
	FormatTable Format = "Table"
)

// ParseFormat accepts the format name in any case.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text":
		return FormatText, true
	case "table":
		return FormatTable, true
	}
	return "", false
}

// Specification is the structured task context sent with every request.
type Specification struct {
	Description       string `json:"description" dynamodbav:"description"`
	FunctionalContext string `json:"functional_context" dynamodbav:"functional_context"`
	TechnicalContext  string `json:"technical_context" dynamodbav:"technical_context"`
	Format            Format `json:"format" dynamodbav:"format"`
	UsageExample      string `json:"usage_example" dynamodbav:"usage_example"`
}

func DefaultSpecification() Specification {
	return Specification{Format: FormatText}
}
