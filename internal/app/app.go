package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/nutrimcp/internal/config"
	"github.com/hitoshi/nutrimcp/internal/fdc"
	"github.com/hitoshi/nutrimcp/internal/handler"
	"github.com/hitoshi/nutrimcp/internal/logger"
	"github.com/hitoshi/nutrimcp/internal/mcp"
	"github.com/hitoshi/nutrimcp/internal/metrics"
	"github.com/hitoshi/nutrimcp/internal/middleware"
	"github.com/hitoshi/nutrimcp/internal/nutrient"
	"github.com/hitoshi/nutrimcp/internal/quota"
	"github.com/hitoshi/nutrimcp/internal/tool"
)

// Init はアプリケーションの初期化を行う。
// .envファイル（存在する場合）と環境変数からConfigを読み込み、
// JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envファイルの読み込み（存在しない場合は環境変数のみを使用）
	_ = godotenv.Load()

	// 2. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
// MCPモードでは標準出力がプロトコル専用のため、wにはos.Stderrを渡すこと。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("upstream", cfg.FDCBaseURL),
	)

	switch cmd {
	case CommandMCP:
		return runMCP(cfg)
	default:
		return runServe(cfg)
	}
}

// buildToolService は上流クライアントとツールサービスの依存関係をワイヤリングする。
func buildToolService(cfg *config.Config, collector *metrics.Collector) (*tool.Service, error) {
	normalizer, err := nutrient.NewNormalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to load nutrient table: %w", err)
	}

	governor := quota.NewGovernor(cfg.RateLimitHourly)
	retryer := fdc.NewRetryer(cfg.RetryMaxRetries, cfg.RetryBaseDelay, slog.Default())

	client := fdc.NewClient(
		&http.Client{Timeout: cfg.HTTPTimeout},
		governor,
		retryer,
		normalizer,
		collector,
		slog.Default(),
		fdc.ClientConfig{
			APIKey:     cfg.FDCAPIKey,
			BaseURL:    cfg.FDCBaseURL,
			DenialWait: cfg.GovernorDenialWait,
		},
	)

	return tool.NewService(client, collector), nil
}

// runServe はHTTP APIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. メトリクスとサービスのワイヤリング
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	service, err := buildToolService(cfg, collector)
	if err != nil {
		return err
	}

	// 2. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.RequestsPerMinute = cfg.RateLimitClientRPM
	rateLimiterCfg.Burst = cfg.RateLimitClientRPM
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		ToolService:       service,
		MetricsGatherer:   registry,
	})

	// 3. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runMCP は標準入出力上のMCPサーバーモードで起動する。
// 標準出力はプロトコル専用のため、ログは標準エラー出力へ書き込まれる前提。
// 入力ストリームが閉じられるかシグナルを受信すると終了する。
func runMCP(cfg *config.Config) error {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	service, err := buildToolService(cfg, collector)
	if err != nil {
		return err
	}

	server := mcp.NewServer(service, slog.Default(), os.Stdin, os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down MCP server...")
		cancel()
	}()

	return server.Run(ctx)
}

// runHealthcheck はヘルスチェックを実行する。
// HTTPサーバーの/healthエンドポイントへの疎通を確認する。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
