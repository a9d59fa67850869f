package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/document"
	"doc-chatter/internal/session"
)

// handleDocument attaches an uploaded PDF or DOCX to the chat. A caption is
// submitted as the first question about it.
func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	doc := msg.Document
	log.Printf("📄 Document received from %d: %s (%s, %d bytes)", msg.From.ID, doc.FileName, doc.MimeType, doc.FileSize)

	if document.Kind(doc.FileName, doc.MimeType) == "" {
		b.sendMessage(chatID, "Only PDF and Word (.docx) documents are supported.")
		return
	}
	if doc.FileSize > document.MaxDownloadSize {
		b.sendMessage(chatID, "The document is too large. Telegram bots can only download files up to 20 MB.")
		return
	}

	url, err := b.s.GetFileDirectURL(doc.FileID)
	if err != nil {
		log.Printf("failed to resolve file %s: %v", doc.FileID, err)
		b.sendMessage(chatID, "Could not download the document, please try again.")
		return
	}
	data, err := b.files.Download(ctx, url)
	if err != nil {
		log.Printf("failed to download %s: %v", doc.FileName, err)
		b.sendMessage(chatID, "Could not download the document, please try again.")
		return
	}

	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		if err := b.chat.Attach(ctx, sess, doc.FileName, doc.MimeType, data); err != nil {
			log.Printf("failed to attach %s: %v", doc.FileName, err)
			if errors.Is(err, document.ErrUnsupported) {
				b.sendMessage(chatID, "Only PDF and Word (.docx) documents are supported.")
			} else {
				b.sendMessage(chatID, "Could not read the document: "+err.Error())
			}
			return nil
		}

		chars := len([]rune(sess.FileContent))
		if strings.TrimSpace(sess.FileContent) == "" {
			b.sendMessage(chatID, fmt.Sprintf("📄 %s attached, but no text could be extracted from it.", doc.FileName))
		} else {
			b.sendMessage(chatID, fmt.Sprintf("📄 %s attached (%d characters extracted).", doc.FileName, chars))
		}

		if caption := strings.TrimSpace(msg.Caption); caption != "" {
			b.submit(ctx, sess, chatID, caption)
		}
		return nil
	})
}
