package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"SimpleChat/internal/config"
	"SimpleChat/internal/proxy"
	"SimpleChat/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to TOML config file")
	port := flag.String("port", "", "Listen port (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Proxy.Port = *port
	}

	if cfg.Proxy.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Missing OPENAI_API_KEY in env")
		os.Exit(1)
	}

	logger, err := telemetry.InitLogger("chatgpt-proxy")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	tracer, meter, cleanup, err := telemetry.InitTelemetry(context.Background(), "chatgpt-proxy")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	handler := proxy.New(cfg.Proxy, logger, tracer, meter)

	addr := ":" + cfg.Proxy.Port
	logger.Info("ChatGPT proxy listening", "addr", addr)
	fmt.Printf("ChatGPT proxy listening on http://localhost%s\n", addr)

	if err := http.ListenAndServe(addr, handler.SetupRouter()); err != nil {
		logger.Error("server failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
