package models

import "time"

// ThreadSnapshot はアーカイブ時点でのスレッド全体の非正規化スナップショットです
type ThreadSnapshot struct {
	ThreadID     string            `datastore:"thread_id" json:"thread_id"`
	MessageCount int               `datastore:"message_count" json:"message_count"`
	Messages     []ArchivedSummary `datastore:"messages,noindex" json:"messages"`
}

// ArchivedSummary はスナップショットに含める各メッセージの要約です
type ArchivedSummary struct {
	MessageID string `datastore:"message_id" json:"message_id"`
	Sender    string `datastore:"sender,noindex" json:"sender"`
	Subject   string `datastore:"subject,noindex" json:"subject"`
	Date      string `datastore:"date,noindex" json:"date"`
	Body      string `datastore:"body,noindex" json:"body"`
}

// ArchivedMessage はスレッドアーカイブに保存する1メッセージのレコードです。
// メッセージIDをキーとした冪等なupsertで書き込まれます。
type ArchivedMessage struct {
	MessageID     string         `datastore:"-" json:"message_id"`
	ThreadID      string         `datastore:"thread_id" json:"thread_id"`
	Sender        string         `datastore:"sender" json:"sender"`
	Subject       string         `datastore:"subject,noindex" json:"subject"`
	Date          string         `datastore:"date,noindex" json:"date"`
	Body          string         `datastore:"body,noindex" json:"body"`
	ThreadContext ThreadSnapshot `datastore:"thread_context,noindex" json:"thread_context"`
	StoredAt      time.Time      `datastore:"stored_at" json:"stored_at"`
}
