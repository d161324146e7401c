package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"SimpleChat/internal/chatbot"
	"SimpleChat/internal/config"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to TOML config file")
	mode := flag.String("mode", "", "Reply mode (eliza|chatgpt)")
	endpoint := flag.String("endpoint", "", "Completion provider endpoint")
	dbPath := flag.String("db", "", "SQLite file for chat history")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *mode != "" {
		cfg.Mode = *mode
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *debug {
		cfg.Debug = true
	}

	bot, err := chatbot.NewChatBot(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize chatbot: %v\n", err)
		os.Exit(1)
	}

	if err := bot.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
