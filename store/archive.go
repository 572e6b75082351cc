package store

import (
	"context"
	"fmt"
	"time"

	"mailpilot/logger"
	"mailpilot/models"

	"cloud.google.com/go/datastore"
	"go.uber.org/zap"
)

const (
	// Datastoreのエンティティ種別を定義します
	kindArchivedMessage   = "ArchivedMessage"   // スレッドアーカイブ用
	kindMessageProcessing = "MessageProcessing" // メッセージ処理状態用
)

// ThreadArchive はスレッドアーカイブと処理状態の永続化を担当する構造体です。
// どちらもメッセージIDをキーとした冪等なupsertで書き込みます。
type ThreadArchive struct {
	client    *datastore.Client
	projectID string
	logger    *zap.Logger
}

// NewThreadArchive は新しいThreadArchiveインスタンスを作成します
func NewThreadArchive(ctx context.Context, projectID string) (*ThreadArchive, error) {
	client, err := datastore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore client: %v", err)
	}

	archive := &ThreadArchive{
		client:    client,
		projectID: projectID,
		logger:    logger.Logger,
	}

	archive.logger.Info("ThreadArchiveを初期化しました",
		zap.String("project_id", projectID))

	return archive, nil
}

// SaveMessage はメッセージとスレッドスナップショットをアーカイブします。
// 同一メッセージIDへの書き込みは上書きとなり、冪等です。
func (a *ThreadArchive) SaveMessage(ctx context.Context, record *models.ArchivedMessage) error {
	logFields := []zap.Field{
		zap.String("message_id", record.MessageID),
		zap.String("operation", "SaveMessage"),
	}

	record.StoredAt = time.Now()
	key := datastore.NameKey(kindArchivedMessage, record.MessageID, nil)

	if _, err := a.client.Put(ctx, key, record); err != nil {
		a.logger.Error("アーカイブの書き込みに失敗しました",
			append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to archive message: %v", err)
	}

	a.logger.Debug("メッセージをアーカイブしました", logFields...)
	return nil
}

// CreateProcessing は新しいメッセージ処理エントリを作成します
func (a *ThreadArchive) CreateProcessing(ctx context.Context, messageID, threadID string) (*models.MessageProcessing, error) {
	logFields := []zap.Field{
		zap.String("message_id", messageID),
		zap.String("operation", "CreateProcessing"),
	}

	processing := models.NewMessageProcessing(messageID, threadID)
	key := datastore.NameKey(kindMessageProcessing, messageID, nil)

	if _, err := a.client.Put(ctx, key, processing); err != nil {
		a.logger.Error("MessageProcessingの作成に失敗しました",
			append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to create message processing: %v", err)
	}

	a.logger.Debug("処理状態を作成しました", logFields...)
	return processing, nil
}

// GetProcessing は指定されたメッセージの処理状態を取得します。
// 未登録の場合はnilを返します（エラーにはしません）。
func (a *ThreadArchive) GetProcessing(ctx context.Context, messageID string) (*models.MessageProcessing, error) {
	logFields := []zap.Field{
		zap.String("message_id", messageID),
		zap.String("operation", "GetProcessing"),
	}

	key := datastore.NameKey(kindMessageProcessing, messageID, nil)
	processing := new(models.MessageProcessing)

	if err := a.client.Get(ctx, key, processing); err != nil {
		if err == datastore.ErrNoSuchEntity {
			a.logger.Debug("MessageProcessingが見つかりません", logFields...)
			return nil, nil
		}
		a.logger.Error("MessageProcessingの取得に失敗しました",
			append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("failed to get message processing: %v", err)
	}

	processing.MessageID = messageID
	return processing, nil
}

// UpdateProcessing はメッセージ処理の状態を更新します
func (a *ThreadArchive) UpdateProcessing(ctx context.Context, processing *models.MessageProcessing) error {
	logFields := []zap.Field{
		zap.String("message_id", processing.MessageID),
		zap.String("status", string(processing.Status)),
		zap.String("operation", "UpdateProcessing"),
	}

	processing.UpdatedAt = time.Now()
	key := datastore.NameKey(kindMessageProcessing, processing.MessageID, nil)

	if _, err := a.client.Put(ctx, key, processing); err != nil {
		a.logger.Error("MessageProcessingの更新に失敗しました",
			append(logFields, zap.Error(err))...)
		return fmt.Errorf("failed to update message processing: %v", err)
	}

	a.logger.Debug("MessageProcessingを更新しました", logFields...)
	return nil
}

// WasHandled は指定されたメッセージが既に処理済み（完了またはスキップ）かを返します。
// 取得エラー時はfalseを返し、呼び出し元の判断で処理を続行させます。
func (a *ThreadArchive) WasHandled(ctx context.Context, messageID string) bool {
	processing, err := a.GetProcessing(ctx, messageID)
	if err != nil || processing == nil {
		return false
	}
	return processing.IsFinished()
}

// Close はThreadArchiveのリソースを解放します
func (a *ThreadArchive) Close() {
	if a.client != nil {
		a.client.Close()
	}
}
