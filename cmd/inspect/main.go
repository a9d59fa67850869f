// inspect prints what the bot would send to the model for a stored
// conversation: its batches, the summaries of older batches and the system
// preamble. It reads the same storage settings as the bot and never calls a
// model.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"doc-chatter/internal/config"
	"doc-chatter/internal/document"
	"doc-chatter/internal/history"
	"doc-chatter/internal/prompt"
	"doc-chatter/internal/session"
	"doc-chatter/internal/storage"
)

type options struct {
	id         string
	list       bool
	batchSize  int
	maxBatches int
	prompt     string
	file       string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	_ = godotenv.Load(".env")

	var opts options
	fs := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	fs.StringVar(&opts.id, "id", "", "conversation id (default: the newest one)")
	fs.BoolVar(&opts.list, "list", false, "list stored conversations and exit")
	fs.IntVar(&opts.batchSize, "batch-size", session.DefaultBatchSize, "turns per batch")
	fs.IntVar(&opts.maxBatches, "max-batches", session.DefaultMaxBatches, "batches sent to the model")
	fs.StringVar(&opts.prompt, "prompt", "<next question>", "prompt to assemble after the history")
	fs.StringVar(&opts.file, "file", "", "PDF or DOCX whose text goes into the preamble")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.ParseStorage()
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	ctx := context.Background()
	store, closeStore, err := storage.OpenConversationStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	recs, err := store.FindAll(ctx)
	if err != nil {
		return err
	}
	if opts.list {
		for _, r := range recs {
			fmt.Fprintf(out, "%s  %s  %d turns  %s\n", r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04"),
				len(r.Turns()), history.Truncate(r.Query, 60))
		}
		return nil
	}

	rec, err := pick(ctx, store, recs, opts.id)
	if err != nil {
		return err
	}

	var fileContent string
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return err
		}
		if fileContent, err = document.Extract(data, opts.file, ""); err != nil {
			return err
		}
	}

	return render(out, rec, opts, fileContent)
}

func pick(ctx context.Context, store storage.ConversationStore, recs []storage.Record, id string) (storage.Record, error) {
	if id != "" {
		return store.Get(ctx, id)
	}
	if len(recs) == 0 {
		return storage.Record{}, errors.New("no stored conversations")
	}
	return recs[0], nil
}

func render(out io.Writer, rec storage.Record, opts options, fileContent string) error {
	turns := rec.Turns()
	batches := history.Split(turns, opts.batchSize)
	fmt.Fprintf(out, "Conversation %s: %d turns in %d batches of %d\n", rec.ID, len(turns), len(batches), opts.batchSize)

	spec := rec.Spec
	if spec.Format == "" {
		spec.Format = prompt.FormatText
	}
	msgs, system := prompt.Assemble(prompt.Input{
		Prompt:      opts.prompt,
		Prior:       batches,
		Spec:        spec,
		FileContent: fileContent,
		MaxBatches:  opts.maxBatches,
	})

	fmt.Fprintf(out, "\n=== system (%d chars) ===\n%s\n", len([]rune(system)), system)
	for i, m := range msgs {
		fmt.Fprintf(out, "\n=== message %d/%d [%s] ===\n%s\n", i+1, len(msgs), m.Role, strings.TrimSpace(m.Content))
	}
	return nil
}
