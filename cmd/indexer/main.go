package main

import (
	"context"
	"os/signal"
	"syscall"

	"mailpilot/config"
	"mailpilot/logger"
	"mailpilot/services"
	"mailpilot/store"

	"go.uber.org/zap"
)

// 過去スレッドの収集ジョブ。常駐せず、走査が完了したら終了します。
func main() {
	cfg, err := config.InitIndexerConfig()
	if err != nil {
		logger.Logger.Fatal("設定の初期化に失敗しました", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mailbox, err := services.NewGmailService(ctx, cfg.CredentialsFile, cfg.TokenFile, cfg.ReplyFrom, cfg.MaxResults)
	if err != nil {
		logger.Logger.Fatal("Gmailサービスの初期化に失敗しました", zap.Error(err))
	}

	archive, err := store.NewThreadArchive(ctx, cfg.ProjectID)
	if err != nil {
		logger.Logger.Fatal("アーカイブストアの初期化に失敗しました", zap.Error(err))
	}
	defer archive.Close()

	index := services.NewPineconeService(cfg.PineconeKey, cfg.PineconeHost, cfg.EmbedModel)

	indexer := services.NewIndexer(mailbox, index, archive, indexerMaxThreads)

	stats, err := indexer.Run(ctx)
	if err != nil {
		logger.Logger.Fatal("インデックスの構築に失敗しました",
			zap.Int("pairs_indexed", stats.PairsIndexed),
			zap.Error(err),
		)
	}

	logger.Logger.Info("インデックスの構築が完了しました",
		zap.Int("threads_scanned", stats.ThreadsScanned),
		zap.Int("pairs_indexed", stats.PairsIndexed),
		zap.Int("archived", stats.Archived),
	)
}

// indexerMaxThreads は1回の実行で走査するスレッド数の上限です
const indexerMaxThreads = 1000
