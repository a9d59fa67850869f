package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/analytics"
	"doc-chatter/internal/auth"
)

// statsWindow is how far back /stats counts a conversation as active.
const statsWindow = 24 * time.Hour

func (b *Bot) requestAccess(msg *tgbotapi.Message) {
	u := auth.User{ID: msg.From.ID, Username: msg.From.UserName, FirstName: msg.From.FirstName, LastName: msg.From.LastName}
	isNew, err := b.requests.Add(u)
	if err != nil {
		log.Printf("failed to store access request from %d: %v", u.ID, err)
	}
	if !isNew {
		b.sendMessage(msg.Chat.ID, "Your access request has already been sent to the administrator. You will be notified once it is approved.")
		return
	}
	b.sendMessage(msg.Chat.ID, "An access request has been sent to the administrator. You will be notified once it is approved.")
	b.notifyAdminRequest(u)
}

func (b *Bot) notifyAdminRequest(u auth.User) {
	adminID := b.authSvc.AdminID()
	if adminID == 0 {
		return
	}
	text := fmt.Sprintf("User @%s (%s %s) with id %d wants to use the bot", u.Username, u.FirstName, u.LastName, u.ID)
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", approvePrefix+strconv.FormatInt(u.ID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("Deny", denyPrefix+strconv.FormatInt(u.ID, 10)),
		),
	)
	if err := b.sendText(adminID, text, kb); err != nil {
		log.Printf("failed to notify admin: %v", err)
	}
}

func (b *Bot) approveUser(userID int64) {
	u, err := b.requests.Take(userID)
	if err != nil {
		log.Printf("failed to remove access request %d: %v", userID, err)
	}
	if err := b.authSvc.Upsert(u); err != nil {
		log.Printf("failed to allow user %d: %v", userID, err)
		b.sendMessage(b.authSvc.AdminID(), fmt.Sprintf("Could not add %d to the allowlist: %v", userID, err))
		return
	}
	log.Printf("✅ User %d (@%s) approved", u.ID, u.Username)
	b.sendMessage(userID, "Access granted. Send /help to get started.")
	b.sendMessage(b.authSvc.AdminID(), fmt.Sprintf("User %d added to the allowlist", userID))
}

func (b *Bot) denyUser(userID int64) {
	if _, err := b.requests.Take(userID); err != nil {
		log.Printf("failed to remove access request %d: %v", userID, err)
	}
	log.Printf("⛔ User %d denied", userID)
	b.sendMessage(userID, "Your access request was declined.")
	b.sendMessage(b.authSvc.AdminID(), fmt.Sprintf("Access request of %d declined", userID))
}

func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.authSvc.IsAdmin(msg.From.ID) {
		b.sendMessage(chatID, "This command is only available to the administrator.")
		return
	}

	switch msg.Command() {
	case "allowlist":
		var bld strings.Builder
		bld.WriteString("Allowlist:\n")
		for _, u := range b.authSvc.List() {
			fmt.Fprintf(&bld, "- id=%d, @%s %s %s\n", u.ID, u.Username, u.FirstName, u.LastName)
		}
		b.sendMessage(chatID, bld.String())
	case "pending":
		lst := b.requests.List()
		if len(lst) == 0 {
			b.sendMessage(chatID, "No pending access requests.")
			return
		}
		var bld strings.Builder
		bld.WriteString("Pending requests:\n")
		for _, u := range lst {
			fmt.Fprintf(&bld, "- id=%d, @%s %s %s\n", u.ID, u.Username, u.FirstName, u.LastName)
		}
		b.sendMessage(chatID, bld.String())
	case "remove", "approve", "deny":
		uid, ok := b.parseUserID(chatID, msg)
		if !ok {
			return
		}
		switch msg.Command() {
		case "remove":
			if err := b.authSvc.Remove(uid); err != nil {
				b.sendMessage(chatID, fmt.Sprintf("Failed to remove: %v", err))
				return
			}
			b.sendMessage(chatID, fmt.Sprintf("User %d removed from the allowlist", uid))
		case "approve":
			b.approveUser(uid)
		case "deny":
			b.denyUser(uid)
		}
	case "stats":
		recs, err := b.chat.List(ctx)
		if err != nil {
			log.Printf("failed to list conversations: %v", err)
			b.sendMessage(chatID, "Could not read the conversation history.")
			return
		}
		st := analytics.Analyze(recs, b.now().Add(-statsWindow))
		b.sendMessage(chatID, st.Report())
	}
}

func (b *Bot) parseUserID(chatID int64, msg *tgbotapi.Message) (int64, bool) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		b.sendMessage(chatID, fmt.Sprintf("Usage: /%s <user_id>", msg.Command()))
		return 0, false
	}
	uid, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.sendMessage(chatID, "Invalid user_id")
		return 0, false
	}
	return uid, true
}
