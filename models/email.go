package models

import (
	"net/mail"
	"strings"
)

// MessageRef はメールボックス照会が返す最小限のメッセージ参照です
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
}

// Message は取得済みメッセージのデータ構造を定義します。
// 取得時に生成され、以降は変更されません。
type Message struct {
	ID              string `json:"id"`
	ThreadID        string `json:"thread_id"`
	Sender          string `json:"sender"`
	Subject         string `json:"subject"`
	Date            string `json:"date"`
	InternalDate    int64  `json:"internal_date"`
	MessageIDHeader string `json:"message_id_header,omitempty"`
	RawBody         string `json:"raw_body"`
	CleanedBody     string `json:"cleaned_body"`
}

// SenderAddress はFromヘッダーからメールアドレス部分のみを取り出します
func (m *Message) SenderAddress() string {
	addr, err := mail.ParseAddress(m.Sender)
	if err != nil {
		return strings.TrimSpace(m.Sender)
	}
	return addr.Address
}

// DraftReply は下書きとして保存する返信を表します。
// 作成後は更新されず、所有権はメールボックスに移ります。
type DraftReply struct {
	Recipient      string `json:"recipient"`
	ThreadID       string `json:"thread_id"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	SignatureImage string `json:"signature_image,omitempty"` // インライン署名画像のパス（任意）
}
