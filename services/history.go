package services

import (
	"context"
	"fmt"
	"strings"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

// HistoryBuilder はスレッド全体の会話履歴を組み立てます。
// 履歴はサイクルをまたいでキャッシュせず、返信生成のたびに再構築します。
type HistoryBuilder struct {
	mailbox Mailbox
}

func NewHistoryBuilder(mailbox Mailbox) *HistoryBuilder {
	return &HistoryBuilder{mailbox: mailbox}
}

// Fetch はスレッドの全メッセージを時系列順に取得します。
// 取得に失敗した場合はエラーを伝播させず空のスライスを返します
// （生成処理は文脈が欠けても進行可能であること）。
func (b *HistoryBuilder) Fetch(ctx context.Context, threadID string) []models.Message {
	messages, err := b.mailbox.GetThread(ctx, threadID)
	if err != nil {
		logger.Logger.Warn("スレッドの取得に失敗したため空の履歴で続行します",
			zap.String("thread_id", threadID),
			zap.Error(err),
		)
		return nil
	}
	return messages
}

// Build はスレッドの決定的なトランスクリプトとメッセージ数を返します
func (b *HistoryBuilder) Build(ctx context.Context, threadID string) (string, int) {
	messages := b.Fetch(ctx, threadID)
	return Transcript(messages), len(messages)
}

// Transcript はメッセージ列を送信者・日付・件名付きのトランスクリプトに整形します。
// 各本文は引用・転送部分を除去済みのものを使用します。
func Transcript(messages []models.Message) string {
	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("[%s | %s | %s]\n", msg.Sender, msg.Date, msg.Subject))
		sb.WriteString(msg.CleanedBody)
		sb.WriteString("\n")
	}
	return sb.String()
}
