// Package analytics computes usage statistics over stored conversations.
package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
	"doc-chatter/internal/storage"
)

// Stats summarises the conversation store.
type Stats struct {
	Conversations  int                   `json:"conversations"`
	UserTurns      int                   `json:"user_turns"`
	AssistantTurns int                   `json:"assistant_turns"`
	WithAttachment int                   `json:"with_attachment"`
	ByFormat       map[prompt.Format]int `json:"by_format"`
	ActiveSince    int                   `json:"active_since"`
	Since          time.Time             `json:"since"`
	LongestTurns   int                   `json:"longest_turns"`
	LongestQuery   string                `json:"longest_query,omitempty"`
}

// Analyze counts turns per role, attachments and response formats. A
// conversation is active if it was updated at or after since.
func Analyze(recs []storage.Record, since time.Time) *Stats {
	st := &Stats{ByFormat: make(map[prompt.Format]int), Since: since}
	for _, r := range recs {
		st.Conversations++
		turns := r.Turns()
		for _, m := range turns {
			switch m.Role {
			case llm.RoleUser:
				st.UserTurns++
			case llm.RoleAssistant:
				st.AssistantTurns++
			}
		}
		if len(turns) > st.LongestTurns {
			st.LongestTurns = len(turns)
			st.LongestQuery = r.Query
		}
		if r.AttachmentID != "" {
			st.WithAttachment++
		}
		format := r.Spec.Format
		if format == "" {
			format = prompt.FormatText
		}
		st.ByFormat[format]++

		last := r.UpdatedAt
		if last.IsZero() {
			last = r.CreatedAt
		}
		if !last.Before(since) {
			st.ActiveSince++
		}
	}
	return st
}

// Report renders the stats for a chat message.
func (st *Stats) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conversations: %d\n", st.Conversations)
	fmt.Fprintf(&b, "Active since %s: %d\n", st.Since.UTC().Format("2006-01-02 15:04"), st.ActiveSince)
	fmt.Fprintf(&b, "Turns: %d user, %d assistant\n", st.UserTurns, st.AssistantTurns)
	fmt.Fprintf(&b, "With attachment: %d\n", st.WithAttachment)

	formats := make([]string, 0, len(st.ByFormat))
	for f := range st.ByFormat {
		formats = append(formats, string(f))
	}
	sort.Strings(formats)
	for _, f := range formats {
		fmt.Fprintf(&b, "Format %s: %d\n", f, st.ByFormat[prompt.Format(f)])
	}
	if st.LongestTurns > 0 {
		fmt.Fprintf(&b, "Longest conversation: %d turns (%q)\n", st.LongestTurns, st.LongestQuery)
	}
	return b.String()
}

func (st *Stats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
