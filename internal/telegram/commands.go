package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/history"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/prompt"
	"doc-chatter/internal/session"
	"doc-chatter/internal/storage"
)

const (
	formatPrefix  = "format:"
	loadPrefix    = "load:"
	approvePrefix = "approve:"
	denyPrefix    = "deny:"

	historyPageSize = 10
)

const helpText = `Upload a PDF or Word (.docx) document and ask questions about it.

Context:
/description <text> - what the feature is about
/functional <text> - functional context
/technical <text> - technical context
/example <text> - usage example
/format - answer as prose (Text) or as a markdown table (Table)

History:
/batch_size <1-10> - turns per history batch
/max_batches <1-5> - batches sent to the model
/new - start a new chat
/history - stored conversations
/load <n> - continue conversation n from /history
/clear_history - delete all stored conversations
/settings - show the current settings`

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		b.sendMessage(chatID, helpText)
	case "description":
		b.setSpecField(chatID, "Description", args, func(s *prompt.Specification) *string { return &s.Description })
	case "functional":
		b.setSpecField(chatID, "Functional context", args, func(s *prompt.Specification) *string { return &s.FunctionalContext })
	case "technical":
		b.setSpecField(chatID, "Technical context", args, func(s *prompt.Specification) *string { return &s.TechnicalContext })
	case "example":
		b.setSpecField(chatID, "Usage example", args, func(s *prompt.Specification) *string { return &s.UsageExample })
	case "format":
		b.handleFormat(chatID, args)
	case "batch_size":
		b.handleBatchSetting(chatID, args, "Batch size", (*session.Session).SetBatchSize)
	case "max_batches":
		b.handleBatchSetting(chatID, args, "Max batches", (*session.Session).SetMaxBatches)
	case "settings":
		_ = b.sessions.Do(chatID, func(sess *session.Session) error {
			b.sendMessage(chatID, renderSettings(sess))
			return nil
		})
	case "new":
		_ = b.sessions.Do(chatID, func(sess *session.Session) error {
			sess.Reset()
			return nil
		})
		b.sendMessage(chatID, "Started a new chat. Context and batch settings are kept.")
	case "history":
		b.handleHistory(ctx, chatID)
	case "load":
		b.handleLoadByIndex(ctx, chatID, args)
	case "clear_history":
		b.handleClearHistory(ctx, chatID)
	case "allowlist", "remove", "pending", "approve", "deny", "stats":
		b.handleAdminCommand(ctx, msg)
	default:
		b.sendMessage(chatID, "Unknown command. See /help.")
	}
}

func (b *Bot) setSpecField(chatID int64, label, value string, field func(*prompt.Specification) *string) {
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		f := field(&sess.Spec)
		if value == "" {
			current := *f
			if current == "" {
				current = "(empty)"
			}
			b.sendMessage(chatID, fmt.Sprintf("%s: %s\n\nSend the command followed by text to change it.", label, current))
			return nil
		}
		*f = value
		b.sendMessage(chatID, label+" updated.")
		return nil
	})
}

func (b *Bot) handleFormat(chatID int64, args string) {
	if args != "" {
		f, ok := prompt.ParseFormat(args)
		if !ok {
			b.sendMessage(chatID, "Format must be Text or Table.")
			return
		}
		b.applyFormat(chatID, f)
		return
	}
	var current prompt.Format
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		current = sess.Spec.Format
		return nil
	})
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(string(prompt.FormatText), formatPrefix+string(prompt.FormatText)),
			tgbotapi.NewInlineKeyboardButtonData(string(prompt.FormatTable), formatPrefix+string(prompt.FormatTable)),
		),
	)
	if err := b.sendText(chatID, fmt.Sprintf("Response format (current: %s):", current), kb); err != nil {
		log.Printf("failed to send format keyboard: %v", err)
	}
}

func (b *Bot) applyFormat(chatID int64, f prompt.Format) {
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		sess.Spec.Format = f
		return nil
	})
	b.sendMessage(chatID, fmt.Sprintf("Response format set to %s.", f))
}

func (b *Bot) handleBatchSetting(chatID int64, args, label string, set func(*session.Session, int) error) {
	n, err := strconv.Atoi(args)
	if err != nil {
		b.sendMessage(chatID, fmt.Sprintf("Usage: %s takes a whole number.", label))
		return
	}
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		if err := set(sess, n); err != nil {
			b.sendMessage(chatID, err.Error())
			return nil
		}
		b.sendMessage(chatID, fmt.Sprintf("%s set to %d.", label, n))
		return nil
	})
}

func renderSettings(sess *session.Session) string {
	var bld strings.Builder
	bld.WriteString("Settings\n")
	fmt.Fprintf(&bld, "Batch size: %d\n", sess.BatchSize)
	fmt.Fprintf(&bld, "Max batches: %d\n", sess.MaxBatches)
	fmt.Fprintf(&bld, "Format: %s\n", sess.Spec.Format)
	fmt.Fprintf(&bld, "Description: %s\n", shorten(sess.Spec.Description, 200))
	fmt.Fprintf(&bld, "Functional context: %s\n", shorten(sess.Spec.FunctionalContext, 200))
	fmt.Fprintf(&bld, "Technical context: %s\n", shorten(sess.Spec.TechnicalContext, 200))
	fmt.Fprintf(&bld, "Usage example: %s\n", shorten(sess.Spec.UsageExample, 200))
	if sess.FileName != "" {
		fmt.Fprintf(&bld, "Document: %s (%d characters)\n", sess.FileName, len([]rune(sess.FileContent)))
	} else {
		bld.WriteString("Document: none\n")
	}
	if id, ok := sess.ConversationID(); ok {
		fmt.Fprintf(&bld, "Conversation: %s (%d turns)", id, len(sess.Turns))
	} else {
		fmt.Fprintf(&bld, "Conversation: new (%d turns)", len(sess.Turns))
	}
	return bld.String()
}

func shorten(s string, n int) string {
	if s == "" {
		return "(empty)"
	}
	t := history.Truncate(s, n)
	if t != s {
		t += "..."
	}
	return t
}

func (b *Bot) handleHistory(ctx context.Context, chatID int64) {
	recs, err := b.chat.List(ctx)
	if err != nil {
		log.Printf("failed to list conversations: %v", err)
		b.sendMessage(chatID, "Could not read the conversation history.")
		return
	}
	if len(recs) == 0 {
		b.sendMessage(chatID, "No stored conversations yet.")
		return
	}
	if len(recs) > historyPageSize {
		recs = recs[:historyPageSize]
	}

	var bld strings.Builder
	bld.WriteString("Stored conversations:\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, r := range recs {
		title := fmt.Sprintf("%d. %s", i+1, shorten(r.Query, 40))
		fmt.Fprintf(&bld, "%s (%s)\n", title, r.CreatedAt.UTC().Format("2006-01-02 15:04"))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(title, loadPrefix+r.ID),
		))
	}
	if err := b.sendText(chatID, bld.String(), tgbotapi.NewInlineKeyboardMarkup(rows...)); err != nil {
		log.Printf("failed to send history: %v", err)
	}
}

func (b *Bot) handleLoadByIndex(ctx context.Context, chatID int64, args string) {
	n, err := strconv.Atoi(args)
	if err != nil || n < 1 {
		b.sendMessage(chatID, "Usage: /load <n>, where n is a number from /history.")
		return
	}
	recs, err := b.chat.List(ctx)
	if err != nil {
		log.Printf("failed to list conversations: %v", err)
		b.sendMessage(chatID, "Could not read the conversation history.")
		return
	}
	if n > len(recs) {
		b.sendMessage(chatID, fmt.Sprintf("There are only %d stored conversations.", len(recs)))
		return
	}
	b.loadConversation(ctx, chatID, recs[n-1].ID)
}

func (b *Bot) loadConversation(ctx context.Context, chatID int64, id string) {
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		rec, err := b.chat.Load(ctx, sess, id)
		if errors.Is(err, storage.ErrNotFound) {
			b.sendMessage(chatID, "That conversation no longer exists.")
			return nil
		}
		if err != nil {
			log.Printf("failed to load conversation %s: %v", id, err)
			b.sendMessage(chatID, "Could not load the conversation.")
			return nil
		}
		b.sendMessage(chatID, fmt.Sprintf("Loaded %q (%d turns). New messages continue this conversation.",
			shorten(rec.Query, 60), len(sess.Turns)))
		if last := lastAnswer(sess); last != "" {
			b.sendMessage(chatID, "Last answer:\n\n"+last)
		}
		return nil
	})
}

func lastAnswer(sess *session.Session) string {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		if sess.Turns[i].Role == llm.RoleAssistant {
			return sess.Turns[i].Content
		}
	}
	return ""
}

func (b *Bot) handleClearHistory(ctx context.Context, chatID int64) {
	if err := b.chat.ClearAll(ctx); err != nil {
		log.Printf("failed to clear history: %v", err)
		b.sendMessage(chatID, "Could not clear the conversation history.")
		return
	}
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		sess.Reset()
		return nil
	})
	b.sendMessage(chatID, "All stored conversations were deleted. Started a new chat.")
}
