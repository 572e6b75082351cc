package services

import (
	"context"
	"fmt"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

// RetrievalEngine は受信メッセージに最も類似した過去の応答例を検索します。
// キャッシュは持たず、呼び出しごとに1回の埋め込みと1回の近傍検索を行います。
type RetrievalEngine struct {
	index VectorIndex
}

func NewRetrievalEngine(index VectorIndex) *RetrievalEngine {
	return &RetrievalEngine{index: index}
}

// Retrieve はテキストを埋め込み、最近傍1件の応答例を返します。
// インデックスが空の場合は設定エラーとして扱います（空の結果は返しません）。
func (e *RetrievalEngine) Retrieve(ctx context.Context, queryText string) (*models.RetrievalExample, error) {
	vector, err := e.index.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	matches, err := e.index.Query(ctx, vector, 1)
	if err != nil {
		return nil, err
	}

	if len(matches) == 0 {
		logger.Logger.Error("インデックスから応答例が見つかりませんでした（インデックスが空の可能性があります）")
		return nil, fmt.Errorf("vector index returned no matches: index may be empty")
	}

	logger.Logger.Debug("応答例を取得しました",
		zap.String("match_id", matches[0].ID),
		zap.Float64("score", matches[0].Score),
	)

	example := matches[0].Metadata
	return &example, nil
}
