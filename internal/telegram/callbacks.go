package telegram

import (
	"context"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/prompt"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		log.Printf("failed to answer callback: %v", err)
	}
	if cb.From == nil || cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(cb.Data, approvePrefix), strings.HasPrefix(cb.Data, denyPrefix):
		if !b.authSvc.IsAdmin(cb.From.ID) {
			return
		}
		approve := strings.HasPrefix(cb.Data, approvePrefix)
		idStr := strings.TrimPrefix(strings.TrimPrefix(cb.Data, approvePrefix), denyPrefix)
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			log.Printf("bad access callback %q", cb.Data)
			return
		}
		if approve {
			b.approveUser(id)
		} else {
			b.denyUser(id)
		}
	case !b.authSvc.IsAllowed(cb.From.ID):
		log.Printf("Unauthorized callback from user ID: %d", cb.From.ID)
	case strings.HasPrefix(cb.Data, formatPrefix):
		f, ok := prompt.ParseFormat(strings.TrimPrefix(cb.Data, formatPrefix))
		if !ok {
			return
		}
		b.applyFormat(chatID, f)
	case strings.HasPrefix(cb.Data, loadPrefix):
		b.loadConversation(ctx, chatID, strings.TrimPrefix(cb.Data, loadPrefix))
	}
}
