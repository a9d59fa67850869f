// Package telegram exposes the document chat over a Telegram bot.
package telegram

import (
	"context"
	"log"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/auth"
	"doc-chatter/internal/chat"
	"doc-chatter/internal/pending"
	"doc-chatter/internal/session"
)

type Bot struct {
	api       *tgbotapi.BotAPI
	s         sender
	authSvc   *auth.Service
	requests  *pending.Queue
	sessions  *session.Manager
	chat      *chat.Service
	files     Downloader
	parseMode string
	now       func() time.Time
}

func New(botToken string, authSvc *auth.Service, requests *pending.Queue, sessions *session.Manager,
	chatSvc *chat.Service, files Downloader, parseMode string) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	log.Printf("Authorized on account %s", api.Self.UserName)
	return &Bot{
		api:       api,
		s:         botAPISender{api: api},
		authSvc:   authSvc,
		requests:  requests,
		sessions:  sessions,
		chat:      chatSvc,
		files:     files,
		parseMode: parseMode,
		now:       time.Now,
	}, nil
}

// Start polls for updates until ctx is cancelled, then waits for the
// updates already taken to be handled.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	d := newDispatcher(b.updateHandler(ctx))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			d.wait()
			return
		case up, ok := <-updates:
			if !ok {
				d.wait()
				return
			}
			c := up.FromChat()
			if c == nil {
				continue
			}
			d.dispatch(c.ID, up)
		}
	}
}

// updateHandler handles updates with a context that survives ctx's
// cancellation, so a turn taken before shutdown is answered and stored
// instead of failing half way.
func (b *Bot) updateHandler(ctx context.Context) func(tgbotapi.Update) {
	work := context.WithoutCancel(ctx)
	return func(up tgbotapi.Update) { b.handleUpdate(work, up) }
}

func (b *Bot) handleUpdate(ctx context.Context, up tgbotapi.Update) {
	switch {
	case up.Message != nil:
		b.handleMessage(ctx, up.Message)
	case up.CallbackQuery != nil:
		b.handleCallback(ctx, up.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if !b.authSvc.IsAllowed(msg.From.ID) {
		log.Printf("Unauthorized access attempt by user ID: %d, username: @%s", msg.From.ID, msg.From.UserName)
		b.requestAccess(msg)
		return
	}
	log.Printf("Incoming message from %d (@%s): %q", msg.From.ID, msg.From.UserName, msg.Text)

	switch {
	case msg.IsCommand():
		b.handleCommand(ctx, msg)
	case msg.Document != nil:
		b.handleDocument(ctx, msg)
	case strings.TrimSpace(msg.Text) != "":
		b.handleText(ctx, msg.Chat.ID, strings.TrimSpace(msg.Text))
	default:
		b.sendMessage(msg.Chat.ID, "Send a question as text, or a PDF/DOCX document to discuss.")
	}
}

func (b *Bot) handleText(ctx context.Context, chatID int64, text string) {
	_ = b.sessions.Do(chatID, func(sess *session.Session) error {
		b.submit(ctx, sess, chatID, text)
		return nil
	})
}

// submit runs one turn and sends the answer. The caller holds the session.
func (b *Bot) submit(ctx context.Context, sess *session.Session, chatID int64, text string) {
	stop := b.keepTyping(ctx, chatID)
	reply, err := b.chat.Submit(ctx, sess, text)
	stop()

	b.sendParts(chatID, reply.Parts)
	if err != nil {
		log.Printf("failed to store conversation for chat %d: %v", chatID, err)
		b.sendMessage(chatID, "⚠️ The answer could not be saved to history. It will be retried with your next message.")
	}
}

// keepTyping shows the typing indicator until the returned func is called.
// Telegram clears the indicator after about five seconds.
func (b *Bot) keepTyping(ctx context.Context, chatID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(4 * time.Second)
		defer t.Stop()
		for {
			if _, err := b.s.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
				log.Printf("failed to send typing action: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
