package telegram

import (
	"fmt"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength leaves headroom under Telegram's 4096 character limit.
const maxMessageLength = 4000

func (b *Bot) parseModeValue() string {
	switch strings.ToLower(strings.TrimSpace(b.parseMode)) {
	case "html":
		return tgbotapi.ModeHTML
	case "markdown":
		return tgbotapi.ModeMarkdown
	case "markdownv2":
		return tgbotapi.ModeMarkdownV2
	}
	return ""
}

func (b *Bot) escapeIfNeeded(text string) string {
	if b.parseModeValue() == tgbotapi.ModeHTML {
		return html.EscapeString(text)
	}
	return text
}

func (b *Bot) sendMessage(chatID int64, text string) {
	if err := b.sendText(chatID, text, nil); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

// sendText splits text into messages and attaches markup to the last one.
// A message the parse mode rejects is sent again as plain text.
func (b *Bot) sendText(chatID int64, text string, markup interface{}) error {
	width := runeWidth
	if b.parseModeValue() == tgbotapi.ModeHTML {
		width = htmlEscapedWidth
	}
	chunks := splitMessageWidth(text, maxMessageLength, width)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, b.escapeIfNeeded(chunk))
		msg.ParseMode = b.parseModeValue()
		if markup != nil && i == len(chunks)-1 {
			msg.ReplyMarkup = markup
		}
		_, err := b.s.Send(msg)
		if err == nil {
			continue
		}
		if msg.ParseMode == "" {
			return err
		}
		log.Printf("⚠️ Send with parse mode %s failed, retrying as plain text: %v", msg.ParseMode, err)
		msg.Text = chunk
		msg.ParseMode = ""
		if _, err := b.s.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

// sendParts sends each answer part as its own message, labelled when there
// is more than one.
func (b *Bot) sendParts(chatID int64, parts []string) {
	for i, p := range parts {
		if strings.TrimSpace(p) == "" {
			p = "(empty response)"
		}
		if len(parts) > 1 {
			p = fmt.Sprintf("Part %d/%d\n\n%s", i+1, len(parts), p)
		}
		if err := b.sendText(chatID, p, nil); err != nil {
			log.Printf("failed to send answer part %d/%d: %v", i+1, len(parts), err)
		}
	}
}

// splitMessage cuts text into chunks of at most max characters, preferring
// to break after a newline in the second half of a chunk.
func splitMessage(text string, max int) []string {
	return splitMessageWidth(text, max, runeWidth)
}

func runeWidth(rune) int { return 1 }

// htmlEscapedWidth is the length of r after html.EscapeString.
func htmlEscapedWidth(r rune) int {
	switch r {
	case '&', '\'', '"':
		return 5
	case '<', '>':
		return 4
	}
	return 1
}

// splitMessageWidth is splitMessage with each rune counted as width(r)
// characters, so chunks stay under max once escaped.
func splitMessageWidth(text string, max int, width func(rune) int) []string {
	runes := []rune(text)
	var parts []string
	for len(runes) > 0 {
		n, total := 0, 0
		for n < len(runes) && total+width(runes[n]) <= max {
			total += width(runes[n])
			n++
		}
		if n == len(runes) {
			parts = append(parts, string(runes))
			break
		}
		if n == 0 {
			n = 1
		}
		breakPoint := n
		for i := n - 1; i > n/2; i-- {
			if runes[i] == '\n' {
				breakPoint = i + 1
				break
			}
		}
		parts = append(parts, string(runes[:breakPoint]))
		runes = runes[breakPoint:]
	}
	if len(parts) == 0 {
		return []string{text}
	}
	return parts
}
