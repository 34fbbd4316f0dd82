package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"imagent/pkg/agent"
	"imagent/pkg/cli"
	"imagent/pkg/config"
	"imagent/pkg/imagesvc"
	"imagent/pkg/llm"
	_ "imagent/pkg/llm/autoload" // 自動註冊 LLM Providers
	"imagent/pkg/monitor"
	"imagent/pkg/session"
	"imagent/pkg/tools"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	// --- 0. 讀取設定檔 ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	monitor.SetupSlog(os.Stderr, cfg.System.LogLevel)

	// --- 1. LLM 設定 ---
	client, err := llm.NewFromConfig(cfg.LLMGroups())
	if err != nil {
		slog.Error("Failed to init LLM client", "error", err)
		os.Exit(1)
	}
	client.SetDebug(cfg.System.DebugChunks)

	// --- 2. 圖片服務與工具 ---
	images := imagesvc.NewClient(cfg.Image.Settings(), nil)
	if !images.Settings().Configured() {
		slog.Warn("Image service is not configured; image tools will report a configuration error", "hint", "set OPENAI_BASE_URL and OPENAI_API_KEY")
	}
	registry := tools.NewRegistry(
		tools.NewGenerateImageTool(images),
		tools.NewEditImageTool(images, cfg.Image.StagingDir),
	)

	// --- 3. Session 與引擎 ---
	sessions := session.NewManager(cfg.SystemPrompt)
	sess := sessions.Create()
	mon := monitor.NewCLIMonitor(os.Stdout)
	engine := agent.NewEngine(client, registry, mon, cfg.System)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go config.Follow(ctx, *configPath, func(next *config.Config) {
		images.Configure(next.Image.Settings())
	})

	if err := mon.Start(); err != nil {
		slog.Warn("Monitor failed to start", "error", err)
	}
	defer mon.Stop()

	slog.Info("Session started", "session", sess.ID, "provider", client.Provider(), "tools", len(registry.All()))

	repl := cli.New(os.Stdin, os.Stdout, func(ctx context.Context, input string) (string, error) {
		return engine.HandleTurn(ctx, sess, input)
	})
	if err := repl.Run(ctx); err != nil {
		slog.Error("Input loop failed", "error", err)
		os.Exit(1)
	}
}
