package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mailpilot/config"
	"mailpilot/handlers"
	"mailpilot/logger"
	"mailpilot/middleware"
	"mailpilot/services"
	"mailpilot/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// 設定の初期化
	cfg, err := config.InitConfig()
	if err != nil {
		logger.Logger.Fatal("設定の初期化に失敗しました", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// サービスの初期化
	mailbox, err := services.NewGmailService(ctx, cfg.CredentialsFile, cfg.TokenFile, cfg.ReplyFrom, cfg.MaxResults)
	if err != nil {
		logger.Logger.Fatal("Gmailサービスの初期化に失敗しました", zap.Error(err))
	}

	archive, err := store.NewThreadArchive(ctx, cfg.ProjectID)
	if err != nil {
		logger.Logger.Fatal("アーカイブストアの初期化に失敗しました", zap.Error(err))
	}
	defer archive.Close()

	generator := services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel)
	index := services.NewPineconeService(cfg.PineconeKey, cfg.PineconeHost, cfg.EmbedModel)

	monitor := services.NewMonitor(services.MonitorDeps{
		Mailbox:   mailbox,
		Filter:    services.NewSenderFilter(cfg.BlockedSenders, cfg.BlockedPatterns),
		History:   services.NewHistoryBuilder(mailbox),
		Retriever: services.NewRetrievalEngine(index),
		Composer:  services.NewComposer(generator),
		Tone:      services.NewToneProfiler(generator, cfg.ToneCorpusPath, cfg.ToneIdentity),
		Archive:   archive,
		Notifier:  services.NewAlertNotifier(cfg.SendGridKey, cfg.AlertFrom, cfg.AlertTo),
	}, cfg.PollInterval, cfg.SignatureImage)

	// ルーターの設定
	r := gin.New()
	middlewareConfig := &middleware.Config{
		EnableLogger: true,
		EnableAuth:   cfg.Environment == "production", // 本番環境の場合のみ認証を有効化
		ServerConfig: cfg,
	}
	middleware.SetupMiddleware(r, middlewareConfig)

	// ハンドラーの設定
	statusHandler := handlers.NewStatusHandler(monitor, archive)
	r.GET("/health", handleHealthCheck)
	r.GET("/stats", statusHandler.HandleStats)
	r.GET("/status/:messageID", statusHandler.HandleCheckStatus)

	// サーバーの設定と起動
	srv := config.SetupServer(r, cfg)

	// 監視ループを起動（シグナル受信で停止）
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		monitor.Run(ctx)
	}()

	// グレースフルシャットダウンの実装
	handleGracefulShutdown(ctx, srv, monitorDone, cfg.ShutdownTimeout)
}

// handleHealthCheck はヘルスチェックエンドポイントを処理します
func handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleGracefulShutdown(ctx context.Context, srv *http.Server, monitorDone <-chan struct{}, timeout time.Duration) {
	// サーバーを別のゴルーチンで起動
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal("サーバーの起動に失敗しました", zap.Error(err))
		}
	}()

	// シグナルの受信を待機
	<-ctx.Done()
	logger.Logger.Info("シャットダウンを開始します...")

	// シャットダウンのタイムアウト設定
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// グレースフルシャットダウンの実行
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Logger.Error("サーバーのシャットダウンでエラーが発生", zap.Error(err))
	}

	// 監視ループの停止を待機
	select {
	case <-monitorDone:
	case <-shutdownCtx.Done():
		logger.Logger.Warn("監視ループの停止待機がタイムアウトしました")
	}

	logger.Logger.Info("サーバーを正常に終了しました")
}
