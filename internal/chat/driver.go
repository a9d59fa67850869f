package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
)

// MaxParts bounds the number of model calls spent on one answer.
const MaxParts = 10

// ErrorMarker prefixes the single part returned when the model call fails.
const ErrorMarker = "❌ Model call failed: "

// Driver requests an answer part by part until the model stops emitting the
// continuation sentinel.
type Driver struct {
	client   llm.Client
	maxParts int
}

func NewDriver(client llm.Client) *Driver {
	return &Driver{client: client, maxParts: MaxParts}
}

// WithMaxParts returns a copy of the driver with a different cap.
func (d *Driver) WithMaxParts(n int) *Driver {
	if n < 1 {
		n = 1
	}
	return &Driver{client: d.client, maxParts: n}
}

// Converse returns the answer parts in generation order. If any call fails
// the result is a single part starting with ErrorMarker; parts produced
// before the failure are discarded. The messages slice is not modified.
func (d *Driver) Converse(ctx context.Context, messages []llm.Message, system string) []string {
	msgs := make([]llm.Message, len(messages), len(messages)+2*d.maxParts)
	copy(msgs, messages)

	var parts []string
	for n := 1; n <= d.maxParts; n++ {
		if n > 1 {
			msgs = append(msgs, llm.UserMessage(continuePrompt(n, d.maxParts)))
		}
		resp, err := d.client.Generate(ctx, llm.Request{System: system, Messages: msgs})
		if err != nil {
			log.Printf("model call failed on part %d: %v", n, err)
			return []string{ErrorMarker + err.Error()}
		}
		log.Printf("LLM response part %d [model=%s, tokens: prompt=%d, completion=%d, total=%d]",
			n, resp.Model, resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens)

		parts = append(parts, resp.Content)
		msgs = append(msgs, llm.AssistantMessage(resp.Content))
		if !strings.Contains(resp.Content, prompt.ContinuationSentinel) {
			break
		}
	}
	return parts
}

func continuePrompt(part, total int) string {
	return fmt.Sprintf("Continue your previous answer (Part %d/%d). End your answer with %s if it is still not complete.",
		part, total, prompt.ContinuationSentinel)
}

// Clean strips the continuation sentinel from a part for display.
func Clean(part string) string {
	return strings.TrimSpace(strings.ReplaceAll(part, prompt.ContinuationSentinel, ""))
}
