// Package history splits a conversation into fixed-size batches and renders
// older batches into compact summaries.
package history

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"doc-chatter/internal/llm"
)

// SummaryTruncate is the number of characters of each turn kept in a summary.
const SummaryTruncate = 100

// Batch is a contiguous run of turns.
type Batch []llm.Message

// Split partitions turns into consecutive batches of exactly size turns; the
// last batch holds the remainder. The result is a pure function of
// (len(turns), size). A non-positive size yields a single batch.
func Split(turns []llm.Message, size int) []Batch {
	if len(turns) == 0 {
		return nil
	}
	if size <= 0 || size > len(turns) {
		size = len(turns)
	}
	out := make([]Batch, 0, len(turns)/size+1)
	for i := 0; i < len(turns); i += size {
		end := min(i+size, len(turns))
		b := make(Batch, end-i)
		copy(b, turns[i:end])
		out = append(out, b)
	}
	return out
}

// Flatten concatenates batches in order.
func Flatten(batches []Batch) []llm.Message {
	var out []llm.Message
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

// Summarize renders b as a synthetic user turn listing the first limit
// characters of every turn, followed by an assistant acknowledgment. ordinal
// is the 1-based position of the batch among those being summarized.
func Summarize(b Batch, ordinal, limit int) (llm.Message, llm.Message) {
	lines := make([]string, 0, len(b))
	for _, m := range b {
		lines = append(lines, fmt.Sprintf("%s: %s...", roleLabel(m.Role), Truncate(m.Content, limit)))
	}
	summary := fmt.Sprintf("[Summary of message batch %d]\n%s", ordinal, strings.Join(lines, "\n"))
	ack := fmt.Sprintf("I have taken note of the messages in batch %d.", ordinal)
	return llm.UserMessage(summary), llm.AssistantMessage(ack)
}

// Truncate returns at most n characters (runes) of s.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func roleLabel(role string) string {
	r, size := utf8.DecodeRuneInString(role)
	if r == utf8.RuneError {
		return role
	}
	return string(unicode.ToUpper(r)) + role[size:]
}
