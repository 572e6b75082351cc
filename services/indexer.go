package services

import (
	"context"
	"strings"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

const (
	// upsertBatchSize はインデックスへの一括書き込みの上限件数です
	upsertBatchSize = 10

	// defaultReplyMarker は自動応答と判定する返信本文中のマーカーです
	defaultReplyMarker = "Customer Success Assistant"
)

// ThreadSource はインデクサが必要とするスレッド列挙への狭いインターフェースです
type ThreadSource interface {
	ListThreads(ctx context.Context, label string, maxThreads int64) ([]string, error)
	GetThread(ctx context.Context, threadID string) ([]models.Message, error)
}

// MessageArchiver はアーカイブ書き込みへの狭いインターフェースです
type MessageArchiver interface {
	SaveMessage(ctx context.Context, record *models.ArchivedMessage) error
}

// IndexStats はインデクサ1回分の実行結果です
type IndexStats struct {
	ThreadsScanned int `json:"threads_scanned"`
	PairsIndexed   int `json:"pairs_indexed"`
	Archived       int `json:"archived"`
	Flushes        int `json:"flushes"`
}

// Indexer は過去スレッドを{元メッセージ, 最初の返信}ペアとして収集し、
// アーカイブとベクトルインデックスの両方へ書き込むバッチジョブです。
type Indexer struct {
	source      ThreadSource
	index       VectorIndex
	archive     MessageArchiver
	replyMarker string
	label       string
	maxThreads  int64
}

func NewIndexer(source ThreadSource, index VectorIndex, archive MessageArchiver, maxThreads int64) *Indexer {
	return &Indexer{
		source:      source,
		index:       index,
		archive:     archive,
		replyMarker: defaultReplyMarker,
		label:       "INBOX",
		maxThreads:  maxThreads,
	}
}

// Run は対象ラベルの全スレッドを走査します。
// 2通以上のスレッドのうち、最初の返信がマーカーを含むものだけを対象とし、
// 元メッセージの埋め込みをキーにしたレコードをバッチでアップサートします。
// レコードIDは元メッセージのGmailメッセージIDを使うため、同一データに対する
// 再実行は重複を作らず既存エントリを上書きします。
func (ix *Indexer) Run(ctx context.Context) (IndexStats, error) {
	var stats IndexStats

	threadIDs, err := ix.source.ListThreads(ctx, ix.label, ix.maxThreads)
	if err != nil {
		return stats, err
	}

	logger.Logger.Info("スレッドの走査を開始します",
		zap.Int("thread_count", len(threadIDs)),
		zap.String("label", ix.label),
	)

	batch := make([]models.VectorRecord, 0, upsertBatchSize)

	for _, threadID := range threadIDs {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		stats.ThreadsScanned++

		messages, err := ix.source.GetThread(ctx, threadID)
		if err != nil {
			// 1スレッドの取得失敗は走査全体を止めない
			logger.Logger.Warn("スレッドの取得に失敗しました",
				zap.String("thread_id", threadID),
				zap.Error(err),
			)
			continue
		}

		record, ok := ix.extractPair(messages)
		if !ok {
			continue
		}

		vector, err := ix.index.Embed(ctx, record.Metadata.OriginalMessage)
		if err != nil {
			logger.Logger.Warn("埋め込みの生成に失敗しました",
				zap.String("thread_id", threadID),
				zap.Error(err),
			)
			continue
		}
		record.Values = vector

		batch = append(batch, record)
		stats.PairsIndexed++

		if len(batch) >= upsertBatchSize {
			if err := ix.flush(ctx, batch); err != nil {
				return stats, err
			}
			stats.Flushes++
			batch = batch[:0]
		}

		stats.Archived += ix.archiveThread(ctx, messages)
	}

	// 端数のバッチも必ず書き込む
	if len(batch) > 0 {
		if err := ix.flush(ctx, batch); err != nil {
			return stats, err
		}
		stats.Flushes++
	}

	logger.Logger.Info("スレッドの走査が完了しました",
		zap.Int("threads_scanned", stats.ThreadsScanned),
		zap.Int("pairs_indexed", stats.PairsIndexed),
		zap.Int("archived", stats.Archived),
	)

	return stats, nil
}

// extractPair はスレッドから{元メッセージ, 最初の返信}ペアを抽出します。
// 2通未満のスレッドと、返信がマーカーを含まないスレッドは対象外です。
func (ix *Indexer) extractPair(messages []models.Message) (models.VectorRecord, bool) {
	if len(messages) < 2 {
		return models.VectorRecord{}, false
	}

	original := messages[0]
	reply := messages[1]

	if !strings.Contains(reply.CleanedBody, ix.replyMarker) {
		return models.VectorRecord{}, false
	}

	return models.VectorRecord{
		ID: original.ID,
		Metadata: models.RetrievalExample{
			OriginalMessage: truncateText(original.RawBody, models.MetadataTextLimit),
			ReplyMessage:    truncateText(reply.CleanedBody, models.MetadataTextLimit),
		},
	}, true
}

func (ix *Indexer) flush(ctx context.Context, batch []models.VectorRecord) error {
	if err := ix.index.Upsert(ctx, batch); err != nil {
		return err
	}
	logger.Logger.Info("レコードをアップサートしました", zap.Int("count", len(batch)))
	return nil
}

// archiveThread はペアを構成した元メッセージと返信をアーカイブします
func (ix *Indexer) archiveThread(ctx context.Context, messages []models.Message) int {
	archived := 0
	for i := range messages[:2] {
		msg := messages[i]
		if err := ix.archive.SaveMessage(ctx, buildArchiveRecord(&msg, messages)); err != nil {
			logger.Logger.Warn("アーカイブの書き込みに失敗しました",
				zap.String("message_id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		archived++
	}
	return archived
}

// truncateText はルーン境界を保ったまま文字数上限で切り詰めます
func truncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
