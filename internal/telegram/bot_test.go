package telegram

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"html"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"doc-chatter/internal/auth"
	"doc-chatter/internal/chat"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/pending"
	"doc-chatter/internal/prompt"
	"doc-chatter/internal/session"
	"doc-chatter/internal/storage"
)

const adminID = 999

type fakeSender struct {
	mu              sync.Mutex
	sent            []tgbotapi.MessageConfig
	requests        []tgbotapi.Chattable
	failWithParsing bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg, ok := c.(tgbotapi.MessageConfig)
	if !ok {
		return tgbotapi.Message{}, nil
	}
	if f.failWithParsing && msg.ParseMode != "" {
		return tgbotapi.Message{}, errors.New("Bad Request: can't parse entities")
	}
	f.sent = append(f.sent, msg)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	return "https://files.example/" + fileID, nil
}

func (f *fakeSender) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.sent {
		if m.ChatID == chatID {
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	f.sent = nil
	f.mu.Unlock()
}

type fakeLLM struct {
	mu      sync.Mutex
	replies []string
	calls   []llm.Request
}

func (f *fakeLLM) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if err := ctx.Err(); err != nil {
		return llm.Response{}, err
	}
	reply := "ok"
	if len(f.replies) > 0 {
		reply = f.replies[0]
		f.replies = f.replies[1:]
	}
	return llm.Response{Content: reply, Model: "fake"}, nil
}

type fakeDownloader struct{ data []byte }

func (f fakeDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	return f.data, nil
}

func newTestBot(t *testing.T, model llm.Client, allowed ...int64) (*Bot, *fakeSender) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(dir, "conversations.jsonl"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	attachments, err := storage.NewDirStore(filepath.Join(dir, "attachments"))
	if err != nil {
		t.Fatalf("attachments: %v", err)
	}
	authSvc, err := auth.NewWithRepo(nil, adminID, allowed)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	requests, err := pending.NewQueue(nil)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	fs := &fakeSender{}
	b := &Bot{
		s:        fs,
		authSvc:  authSvc,
		requests: requests,
		sessions: session.NewManager(),
		chat:     chat.NewService(chat.NewDriver(model), store, attachments),
		files:    fakeDownloader{},
		now:      time.Now,
	}
	return b, fs
}

func textMessage(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID, UserName: "user"},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
	}}
}

func commandMessage(userID int64, text string) tgbotapi.Update {
	up := textMessage(userID, text)
	cmd := strings.Fields(text)[0]
	up.Message.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}}
	return up
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func sessionOf(t *testing.T, b *Bot, chatID int64) session.Session {
	t.Helper()
	var out session.Session
	_ = b.sessions.Do(chatID, func(s *session.Session) error {
		out = *s
		return nil
	})
	return out
}

func TestUnauthorized_RequestsAccessOnce(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{})
	ctx := context.Background()

	b.handleUpdate(ctx, textMessage(123, "hi"))
	if got := fs.textsTo(123); len(got) != 1 || !strings.Contains(got[0], "access request has been sent") {
		t.Fatalf("unexpected reply: %+v", got)
	}
	admin := fs.textsTo(adminID)
	if len(admin) != 1 || !strings.Contains(admin[0], "wants to use the bot") {
		t.Fatalf("admin not notified: %+v", admin)
	}

	b.handleUpdate(ctx, textMessage(123, "hi again"))
	if got := fs.textsTo(123); len(got) != 2 || !strings.Contains(got[1], "already been sent") {
		t.Fatalf("unexpected second reply: %+v", got)
	}
	if len(fs.textsTo(adminID)) != 1 {
		t.Fatalf("admin notified twice")
	}
}

func TestApproveCallback(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{})
	ctx := context.Background()
	b.handleUpdate(ctx, textMessage(123, "hi"))

	// only the admin can approve
	b.handleUpdate(ctx, callback(123, approvePrefix+"123"))
	if b.authSvc.IsAllowed(123) {
		t.Fatalf("non-admin approved itself")
	}

	b.handleUpdate(ctx, callback(adminID, approvePrefix+"123"))
	if !b.authSvc.IsAllowed(123) {
		t.Fatalf("user not approved")
	}
	if len(b.requests.List()) != 0 {
		t.Fatalf("request not removed")
	}
	got := fs.textsTo(123)
	if !strings.Contains(got[len(got)-1], "Access granted") {
		t.Fatalf("user not notified: %+v", got)
	}
}

func TestTextMessage_SendsLabelledParts(t *testing.T) {
	model := &fakeLLM{replies: []string{"first half " + prompt.ContinuationSentinel, "second half"}}
	b, fs := newTestBot(t, model, 42)

	b.handleUpdate(context.Background(), textMessage(42, "explain the API"))

	got := fs.textsTo(42)
	if len(got) != 2 || got[0] != "Part 1/2\n\nfirst half" || got[1] != "Part 2/2\n\nsecond half" {
		t.Fatalf("unexpected messages: %q", got)
	}
	sess := sessionOf(t, b, 42)
	if _, ok := sess.ConversationID(); !ok || len(sess.Turns) != 3 {
		t.Fatalf("session not updated: %+v", sess)
	}
	if len(fs.requests) == 0 {
		t.Fatalf("typing action not sent")
	}
}

func TestBatchSizeValidation(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{}, 42)
	ctx := context.Background()

	b.handleUpdate(ctx, commandMessage(42, "/batch_size 11"))
	if got := fs.textsTo(42); !strings.Contains(got[0], "between 1 and 10") {
		t.Fatalf("unexpected reply: %q", got)
	}
	if sessionOf(t, b, 42).BatchSize != session.DefaultBatchSize {
		t.Fatalf("invalid size applied")
	}

	b.handleUpdate(ctx, commandMessage(42, "/batch_size 7"))
	b.handleUpdate(ctx, commandMessage(42, "/max_batches 0"))
	sess := sessionOf(t, b, 42)
	if sess.BatchSize != 7 || sess.MaxBatches != session.DefaultMaxBatches {
		t.Fatalf("unexpected settings: %d/%d", sess.BatchSize, sess.MaxBatches)
	}
}

func TestSpecCommandsAndFormatCallback(t *testing.T) {
	model := &fakeLLM{}
	b, _ := newTestBot(t, model, 42)
	ctx := context.Background()

	b.handleUpdate(ctx, commandMessage(42, "/functional Checkout flow for guests"))
	b.handleUpdate(ctx, callback(42, formatPrefix+"Table"))
	b.handleUpdate(ctx, textMessage(42, "list the endpoints"))

	sess := sessionOf(t, b, 42)
	if sess.Spec.FunctionalContext != "Checkout flow for guests" || sess.Spec.Format != prompt.FormatTable {
		t.Fatalf("spec not updated: %+v", sess.Spec)
	}
	sys := model.calls[0].System
	if !strings.Contains(sys, "Checkout flow for guests") || !strings.Contains(sys, "Table") {
		t.Fatalf("preamble misses the context: %s", sys)
	}
}

func TestUpdateHandler_FinishesTurnAfterShutdown(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{replies: []string{"finished answer"}}, 42)
	ctx, cancel := context.WithCancel(context.Background())
	handle := b.updateHandler(ctx)
	cancel()

	handle(textMessage(42, "question during shutdown"))
	got := fs.textsTo(42)
	if len(got) != 1 || got[0] != "finished answer" {
		t.Fatalf("unexpected reply: %q", got)
	}
	sess := sessionOf(t, b, 42)
	if len(sess.Turns) != 2 || strings.HasPrefix(sess.Turns[1].Content, chat.ErrorMarker) {
		t.Fatalf("turn not stored cleanly: %+v", sess.Turns)
	}
}

func TestHistoryLoadAndNew(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{replies: []string{"answer one"}}, 42)
	ctx := context.Background()

	b.handleUpdate(ctx, textMessage(42, "question one"))
	id, _ := sessionOf(t, b, 42).ConversationID()

	b.handleUpdate(ctx, commandMessage(42, "/new"))
	if sess := sessionOf(t, b, 42); len(sess.Turns) != 0 {
		t.Fatalf("new chat kept turns")
	}

	fs.reset()
	b.handleUpdate(ctx, commandMessage(42, "/history"))
	got := fs.textsTo(42)
	if len(got) != 1 || !strings.Contains(got[0], "1. question one") {
		t.Fatalf("unexpected history: %q", got)
	}

	b.handleUpdate(ctx, commandMessage(42, "/load 1"))
	sess := sessionOf(t, b, 42)
	if cur, ok := sess.ConversationID(); !ok || cur != id || len(sess.Turns) != 2 {
		t.Fatalf("conversation not loaded: %+v", sess)
	}

	b.handleUpdate(ctx, commandMessage(42, "/load 5"))
	got = fs.textsTo(42)
	if !strings.Contains(got[len(got)-1], "only 1 stored") {
		t.Fatalf("unexpected reply: %q", got[len(got)-1])
	}
}

func TestClearHistory(t *testing.T) {
	b, _ := newTestBot(t, &fakeLLM{}, 42)
	ctx := context.Background()
	b.handleUpdate(ctx, textMessage(42, "q"))
	b.handleUpdate(ctx, commandMessage(42, "/clear_history"))

	recs, err := b.chat.List(ctx)
	if err != nil || len(recs) != 0 {
		t.Fatalf("history not cleared: %v %d", err, len(recs))
	}
	if _, ok := sessionOf(t, b, 42).ConversationID(); ok {
		t.Fatalf("session should start a new conversation")
	}
}

func TestDocumentWithCaption(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("word/document.xml")
	w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>Refund endpoint</w:t></w:r></w:p></w:body></w:document>`))
	zw.Close()

	model := &fakeLLM{replies: []string{"summary"}}
	b, fs := newTestBot(t, model, 42)
	b.files = fakeDownloader{data: buf.Bytes()}

	up := textMessage(42, "")
	up.Message.Document = &tgbotapi.Document{FileID: "f1", FileName: "api.docx", FileSize: buf.Len()}
	up.Message.Caption = "summarize it"
	b.handleUpdate(context.Background(), up)

	got := fs.textsTo(42)
	if len(got) != 2 || !strings.Contains(got[0], "api.docx attached") || got[1] != "summary" {
		t.Fatalf("unexpected messages: %q", got)
	}
	if !strings.Contains(model.calls[0].System, "Refund endpoint") {
		t.Fatalf("document text missing from preamble")
	}
}

func TestUnsupportedDocument(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{}, 42)
	up := textMessage(42, "")
	up.Message.Document = &tgbotapi.Document{FileID: "f1", FileName: "notes.txt", MimeType: "text/plain"}
	b.handleUpdate(context.Background(), up)

	got := fs.textsTo(42)
	if len(got) != 1 || !strings.Contains(got[0], "Only PDF and Word") {
		t.Fatalf("unexpected reply: %q", got)
	}
}

func TestAdminCommandsRequireAdmin(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{}, 42)
	ctx := context.Background()

	b.handleUpdate(ctx, commandMessage(42, "/stats"))
	if got := fs.textsTo(42); !strings.Contains(got[0], "only available to the administrator") {
		t.Fatalf("unexpected reply: %q", got)
	}

	b.handleUpdate(ctx, commandMessage(adminID, "/stats"))
	if got := fs.textsTo(adminID); len(got) != 1 || !strings.Contains(got[0], "Conversations: 0") {
		t.Fatalf("unexpected stats: %q", got)
	}
}

func TestSendText_FallsBackToPlainText(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{})
	b.parseMode = "Markdown"
	fs.failWithParsing = true

	if err := b.sendText(1, "*unbalanced", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(fs.sent) != 1 || fs.sent[0].ParseMode != "" || fs.sent[0].Text != "*unbalanced" {
		t.Fatalf("unexpected sent: %+v", fs.sent)
	}
}

func TestSendText_EscapesHTML(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{})
	b.parseMode = "html"
	b.sendMessage(1, "a < b")
	if len(fs.sent) != 1 || fs.sent[0].Text != "a &lt; b" || fs.sent[0].ParseMode != tgbotapi.ModeHTML {
		t.Fatalf("unexpected sent: %+v", fs.sent)
	}
}

func TestSendText_HTMLChunksFitAfterEscaping(t *testing.T) {
	b, fs := newTestBot(t, &fakeLLM{})
	b.parseMode = "html"
	text := strings.Repeat("a<b & c\n", 1000)
	b.sendMessage(1, text)
	if len(fs.sent) < 2 {
		t.Fatalf("expected several chunks, got %d", len(fs.sent))
	}
	var joined strings.Builder
	for _, m := range fs.sent {
		if n := len([]rune(m.Text)); n > maxMessageLength {
			t.Fatalf("escaped chunk has %d characters", n)
		}
		joined.WriteString(html.UnescapeString(m.Text))
	}
	if joined.String() != text {
		t.Fatalf("chunks do not reassemble the text")
	}
}

func TestSplitMessage(t *testing.T) {
	if parts := splitMessage("short", 10); len(parts) != 1 {
		t.Fatalf("short text split: %q", parts)
	}
	text := strings.Repeat("ab\n", 10)
	parts := splitMessage(text, 10)
	if strings.Join(parts, "") != text {
		t.Fatalf("split lost text: %q", parts)
	}
	for _, p := range parts {
		if len([]rune(p)) > 10 {
			t.Fatalf("chunk too long: %q", p)
		}
	}
	if !strings.HasSuffix(parts[0], "\n") {
		t.Fatalf("expected break after newline, got %q", parts[0])
	}
	if got := splitMessage(strings.Repeat("я", 25), 10); len(got) != 3 || len([]rune(got[2])) != 5 {
		t.Fatalf("rune split wrong: %q", got)
	}
}

func TestDispatcher_OrdersPerChat(t *testing.T) {
	var mu sync.Mutex
	seen := map[int64][]int{}
	d := newDispatcher(func(u tgbotapi.Update) {
		mu.Lock()
		seen[u.Message.Chat.ID] = append(seen[u.Message.Chat.ID], u.UpdateID)
		mu.Unlock()
	})
	for i := 0; i < 100; i++ {
		chatID := int64(i % 3)
		d.dispatch(chatID, tgbotapi.Update{UpdateID: i, Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}}})
	}
	d.wait()

	total := 0
	for chatID, ids := range seen {
		total += len(ids)
		for i := 1; i < len(ids); i++ {
			if ids[i] < ids[i-1] {
				t.Fatalf("chat %d handled out of order: %v", chatID, ids)
			}
		}
	}
	if total != 100 {
		t.Fatalf("want 100 handled, got %d", total)
	}
}
