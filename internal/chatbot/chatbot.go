// Package chatbot is the interactive shell around the conversation core:
// it turns stdin lines and slash commands into store and dispatcher calls
// and renders change notifications back to the terminal.
package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"SimpleChat/internal/backend"
	"SimpleChat/internal/cache"
	"SimpleChat/internal/chat"
	"SimpleChat/internal/config"
	"SimpleChat/internal/dispatch"
	"SimpleChat/internal/eliza"
	"SimpleChat/internal/storage"
	"SimpleChat/internal/telemetry"
)

// ChatBot represents the main application
type ChatBot struct {
	cfg        config.Config
	logger     *slog.Logger
	store      *chat.Store
	dispatcher *dispatch.Dispatcher
	db         *storage.SQLiteStore
	cleanup    func()
}

// NewChatBot creates a new ChatBot instance
func NewChatBot(cfg config.Config) (*ChatBot, error) {
	logger, err := telemetry.InitLogger("simplechat")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx := context.Background()
	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, "simplechat")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	var durable storage.Store
	var db *storage.SQLiteStore
	if cfg.DBPath != "" {
		db, err = storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		durable = db
	} else {
		durable = storage.NewMemoryStore()
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	store := chat.NewStore(chat.Options{
		Storage:    durable,
		StorageKey: cfg.StorageKey,
		Logger:     logger,
	})

	replyCache := cache.New(time.Duration(cfg.CacheTTLMinutes) * time.Minute)
	client := backend.NewClient(cfg.Endpoint, logger, tracer, meter, replyCache)

	mode := dispatch.Mode(cfg.Mode)
	dispatcher := dispatch.New(dispatch.Options{
		Store:      store,
		Engine:     eliza.New(time.Now().UnixNano()),
		Completer:  client,
		Logger:     logger,
		Mode:       mode,
		ReplyDelay: time.Duration(cfg.ReplyDelayMs) * time.Millisecond,
	})

	logger.Info("chatbot initialized", "mode", cfg.Mode, "endpoint", cfg.Endpoint)

	return &ChatBot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		dispatcher: dispatcher,
		db:         db,
		cleanup:    cleanup,
	}, nil
}

// Run starts the interactive loop.
func (cb *ChatBot) Run() error {
	defer cb.Close()

	unsubscribe := cb.store.Subscribe(cb.renderChange)
	defer unsubscribe()

	fmt.Println("=== SimpleChat ===")
	fmt.Printf("Mode: %s\n", cb.dispatcher.Mode())
	stats := cb.store.GetStats()
	if stats.Count > 0 {
		fmt.Printf("Restored %d message(s) from history\n", stats.Count)
	}
	fmt.Println("Type /help for commands, /quit to exit")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(input)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		cb.dispatcher.HandleSend(input, true)
		cb.waitForReply()
	}

	fmt.Println("Goodbye!")
	return nil
}

// Close releases the telemetry and database handles.
func (cb *ChatBot) Close() {
	if cb.cleanup != nil {
		cb.cleanup()
		cb.cleanup = nil
	}
	if cb.db != nil {
		if err := cb.db.Close(); err != nil {
			cb.logger.Error("failed to close database", "error", err)
		}
		cb.db = nil
	}
}

// renderChange prints bot activity from store notifications. The event
// snapshot carries the whole conversation; only the tail is shown.
func (cb *ChatBot) renderChange(event chat.ChangeEvent) {
	if len(event.Messages) == 0 {
		return
	}
	last := event.Messages[len(event.Messages)-1]

	switch event.Reason {
	case chat.ReasonAdd:
		if !last.IsUser {
			fmt.Printf("Bot: %s\n\n", last.Text)
		}
	case chat.ReasonUpdate:
		if !last.IsUser && last.Text != dispatch.ThinkingLabel {
			fmt.Printf("Bot: %s\n\n", last.Text)
		}
	}
}

// waitForReply blocks the prompt until pending reply work settles, so the
// bot's answer prints before the next "You:" line. Capped at the provider
// timeout; the dispatcher itself never needs this.
func (cb *ChatBot) waitForReply() {
	deadline := time.Now().Add(65 * time.Second)
	for cb.dispatcher.PendingCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(25 * time.Millisecond)
	}
}

// handleCommand handles slash commands. It returns true when the loop
// should exit.
func (cb *ChatBot) handleCommand(cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/mode":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /mode <eliza|chatgpt>")
		}
		if err := cb.dispatcher.SetMode(dispatch.Mode(parts[1])); err != nil {
			return false, err
		}
		fmt.Printf("Switched to %s mode\n", parts[1])
		return false, nil

	case "/history":
		cb.printHistory()
		return false, nil

	case "/stats":
		stats := cb.store.GetStats()
		fmt.Printf("Messages: %d\n", stats.Count)
		if stats.LastSavedAt != nil {
			fmt.Printf("Last saved: %s\n", stats.LastSavedAt.Format(time.RFC3339))
		}
		fmt.Printf("Pending replies: %d\n", cb.dispatcher.PendingCount())
		return false, nil

	case "/edit":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /edit <id> <new text>")
		}
		id, err := cb.resolveID(parts[1])
		if err != nil {
			return false, err
		}
		cb.dispatcher.HandleEdit(id, strings.Join(parts[2:], " "))
		cb.waitForReply()
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <id>")
		}
		id, err := cb.resolveID(parts[1])
		if err != nil {
			return false, err
		}
		cb.dispatcher.HandleDelete(id)
		fmt.Println("Deleted message and everything after it")
		return false, nil

	case "/clear":
		cb.dispatcher.HandleClear()
		fmt.Println("Chat cleared")
		return false, nil

	case "/export":
		path := fmt.Sprintf("chat-export-%s.json", time.Now().Format("2006-01-02T15-04-05"))
		if len(parts) > 1 {
			path = parts[1]
		}
		return false, cb.exportTo(path)

	case "/import":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /import <path>")
		}
		return false, cb.importFrom(parts[1])

	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /quit, /exit          - Exit the chat")
		fmt.Println("  /mode <eliza|chatgpt> - Switch reply mode")
		fmt.Println("  /history              - Show the conversation")
		fmt.Println("  /stats                - Show conversation stats")
		fmt.Println("  /edit <id> <text>     - Edit a user message (refreshes its answer)")
		fmt.Println("  /delete <id>          - Delete a message and everything after it")
		fmt.Println("  /clear                - Clear the conversation")
		fmt.Println("  /export [path]        - Export the conversation to a file")
		fmt.Println("  /import <path>        - Import a conversation from a file")
		fmt.Println("  /help                 - Show this help message")
		return false, nil

	default:
		return false, nil
	}
}

func (cb *ChatBot) printHistory() {
	messages := cb.store.GetAllMessages()
	if len(messages) == 0 {
		fmt.Println("No messages yet")
		return
	}
	for _, msg := range messages {
		speaker := "Bot"
		if msg.IsUser {
			speaker = "You"
		}
		edited := ""
		if msg.Edited {
			edited = " (edited)"
		}
		fmt.Printf("[%s] %s%s: %s\n", shortID(msg.ID), speaker, edited, msg.Text)
	}
}

// resolveID expands an id prefix (as shown by /history) to a full message id.
func (cb *ChatBot) resolveID(prefix string) (string, error) {
	var match string
	for _, msg := range cb.store.GetAllMessages() {
		if msg.ID == prefix {
			return msg.ID, nil
		}
		if strings.HasPrefix(msg.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("ambiguous message id: %s", prefix)
			}
			match = msg.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no message with id: %s", prefix)
	}
	return match, nil
}

func (cb *ChatBot) exportTo(path string) error {
	payload, err := cb.store.ExportMessages()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(payload), 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Printf("Exported chat to %s\n", path)
	return nil
}

func (cb *ChatBot) importFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read import file: %w", err)
	}

	imported, err := cb.dispatcher.HandleImport(raw)
	if errors.Is(err, chat.ErrInvalidFormat) {
		fmt.Println("Unable to import chat data.")
		cb.logger.Error("import rejected", "path", path, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d message(s)\n", len(imported))
	return nil
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
