// Package prompt turns batched history, the task specification and the
// attached document into the message list and system preamble of a model call.
package prompt

import (
	"fmt"
	"strings"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
)

// FileContentLimit is the number of characters of the attached document
// embedded in the preamble.
const FileContentLimit = 1000

// ContinuationSentinel marks a part of an answer that is not complete yet.
const ContinuationSentinel = "[CONTINUE]"

type Input struct {
	Prompt      string
	Prior       []history.Batch
	Spec        Specification
	FileContent string
	// MaxBatches bounds how many of the most recent prior batches are kept.
	// Zero or less keeps them all.
	MaxBatches int
}

// Assemble builds the messages and system preamble for a model call. Only the
// last MaxBatches prior batches are used: all but the last are summarized and
// the last one is passed verbatim, followed by the new prompt.
func Assemble(in Input) ([]llm.Message, string) {
	recent := in.Prior
	if in.MaxBatches > 0 && len(recent) > in.MaxBatches {
		recent = recent[len(recent)-in.MaxBatches:]
	}

	var msgs []llm.Message
	for i, b := range recent {
		if i < len(recent)-1 {
			summary, ack := history.Summarize(b, i+1, history.SummaryTruncate)
			msgs = append(msgs, summary, ack)
			continue
		}
		msgs = append(msgs, b...)
	}
	msgs = append(msgs, llm.UserMessage(in.Prompt))

	return msgs, System(in.Spec, in.FileContent)
}

// System renders the preamble. The output depends only on its arguments.
func System(spec Specification, fileContent string) string {
	format := spec.Format
	if format == "" {
		format = FormatText
	}

	var b strings.Builder
	if spec.Description != "" {
		fmt.Fprintf(&b, "### Feature description:\n%s\n\n", spec.Description)
	}
	fmt.Fprintf(&b, "### Functional context:\n%s\n\n", spec.FunctionalContext)
	fmt.Fprintf(&b, "### Technical context:\n%s\n\n", spec.TechnicalContext)

	b.WriteString("### Required response format:\n")
	fmt.Fprintf(&b, "IMPORTANT: you MUST answer in the following format: %s\n", format)
	b.WriteString("- If \"Text\": answer in continuous prose organised in paragraphs.\n")
	b.WriteString("- If \"Table\": present your answer as a structured table using markdown formatting.\n\n")

	b.WriteString("### Long answers:\n")
	b.WriteString("Your answer must be complete regardless of its length. If it is very long, split it into numbered parts " +
		"(Part 1/N, Part 2/N, and so on). ")
	fmt.Fprintf(&b, "Every part must end with %s while the answer is not finished.\n\n", ContinuationSentinel)

	fmt.Fprintf(&b, "### Usage example:\n%s\n\n", spec.UsageExample)
	fmt.Fprintf(&b, "### File content (if provided):\n%s\n\n", history.Truncate(fileContent, FileContentLimit))

	b.WriteString("Note: you receive messages organised in batches. " +
		"Older batches are summarized, the most recent batch is given in full. " +
		"Answer the last question taking all of the provided context into account.\n")
	return b.String()
}
