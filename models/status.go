package models

import "time"

// ProcessStatus は処理状態を表す型です
type ProcessStatus string

const (
	// 処理状態の定義
	StatusPending  ProcessStatus = "PENDING"  // 処理待ち
	StatusRunning  ProcessStatus = "RUNNING"  // 処理実行中
	StatusComplete ProcessStatus = "COMPLETE" // 処理完了
	StatusFailed   ProcessStatus = "FAILED"   // 処理失敗
	StatusSkipped  ProcessStatus = "SKIPPED"  // フィルタにより対象外
)

// MessageProcessing はメッセージ処理の状態を管理する構造体です。
// メッセージIDをキーとして永続化され、再起動後の二重処理を防ぎます。
type MessageProcessing struct {
	MessageID    string        `datastore:"-" json:"message_id"`
	ThreadID     string        `datastore:"thread_id" json:"thread_id"`
	Status       ProcessStatus `datastore:"status" json:"status"`
	DraftID      string        `datastore:"draft_id,omitempty" json:"draft_id,omitempty"`
	ErrorMessage string        `datastore:"error_message,noindex,omitempty" json:"error_message,omitempty"`
	CreatedAt    time.Time     `datastore:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `datastore:"updated_at" json:"updated_at"`
	CompletedAt  *time.Time    `datastore:"completed_at,omitempty" json:"completed_at,omitempty"`
}

// MessageProcessingのメソッド群
func NewMessageProcessing(messageID, threadID string) *MessageProcessing {
	now := time.Now()
	return &MessageProcessing{
		MessageID: messageID,
		ThreadID:  threadID,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *MessageProcessing) SetRunning() {
	p.Status = StatusRunning
	p.UpdatedAt = time.Now()
}

func (p *MessageProcessing) SetComplete(draftID string) {
	p.Status = StatusComplete
	p.DraftID = draftID
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
}

func (p *MessageProcessing) SetSkipped(reason string) {
	p.Status = StatusSkipped
	p.ErrorMessage = reason
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
}

func (p *MessageProcessing) SetError(errorMessage string) {
	p.Status = StatusFailed
	p.ErrorMessage = errorMessage
	now := time.Now()
	p.CompletedAt = &now
	p.UpdatedAt = now
}

func (p *MessageProcessing) IsFinished() bool {
	return p.Status == StatusComplete || p.Status == StatusSkipped
}
