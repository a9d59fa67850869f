package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"doc-chatter/internal/auth"
	"doc-chatter/internal/chat"
	"doc-chatter/internal/config"
	"doc-chatter/internal/document"
	"doc-chatter/internal/llm"
	"doc-chatter/internal/pending"
	"doc-chatter/internal/scheduler"
	"doc-chatter/internal/session"
	"doc-chatter/internal/storage"
	"doc-chatter/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var allowRepo auth.Repository
	if cfg.AllowlistFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AllowlistFilePath)
		if err != nil {
			log.Printf("failed to init allowlist repo: %v", err)
		} else {
			allowRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(allowRepo, cfg.AdminUserID, cfg.AllowedUsers)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	var pRepo pending.Repository
	if cfg.PendingFilePath != "" {
		pr, err := pending.NewFileRepository(cfg.PendingFilePath)
		if err != nil {
			log.Printf("failed to init pending repo: %v", err)
		} else {
			pRepo = pr
		}
	}
	requests, err := pending.NewQueue(pRepo)
	if err != nil {
		log.Fatalf("failed to load access requests: %v", err)
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider))
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	store, closeStore, err := storage.OpenConversationStore(ctx, &cfg.StorageConfig)
	if err != nil {
		log.Fatalf("failed to init conversation store: %v", err)
	}
	defer closeStore()

	attachments, err := storage.OpenAttachmentStore(ctx, &cfg.StorageConfig)
	if err != nil {
		log.Fatalf("failed to init attachment store: %v", err)
	}

	sessions := session.NewManager()
	sched := scheduler.New(cfg.SessionSweepSchedule)
	sched.SetSweepFunction(func(ctx context.Context) error {
		n := sessions.Sweep(cfg.SessionIdleTTL)
		log.Printf("🧹 Session sweep removed %d idle sessions, %d active", n, sessions.Len())
		return nil
	})
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	chatSvc := chat.NewService(chat.NewDriver(llmClient), store, attachments)

	bot, err := telegram.New(
		cfg.TelegramBotToken,
		authSvc,
		requests,
		sessions,
		chatSvc,
		document.NewDownloader(),
		cfg.MessageParseMode,
	)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	log.Printf("Starting bot with provider %s, store %s, attachments %s", cfg.LLMProvider, cfg.StoreBackend, cfg.AttachmentBackend)
	bot.Start(ctx)
	log.Println("Bot stopped")
}
