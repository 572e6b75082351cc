package services

import (
	"context"
	"strings"
	"testing"

	"mailpilot/models"

	"github.com/nalgeon/be"
)

func TestTranscriptFormat(t *testing.T) {
	messages := []models.Message{
		{Sender: "Anna <anna@example.com>", Date: "Mon, 6 Jan 2025 09:00:00 +0100", Subject: "Question", CleanedBody: "Hello, I have a question"},
		{Sender: "info@fastbookads.com", Date: "Mon, 6 Jan 2025 10:00:00 +0100", Subject: "Re: Question", CleanedBody: "Hi Anna, sure"},
	}

	transcript := Transcript(messages)

	be.True(t, strings.Contains(transcript, "[Anna <anna@example.com> | Mon, 6 Jan 2025 09:00:00 +0100 | Question]"))
	be.True(t, strings.Contains(transcript, "Hello, I have a question"))
	be.True(t, strings.Contains(transcript, "Hi Anna, sure"))
	// 2通目のヘッダーは1通目の後に来ること
	be.True(t, strings.Index(transcript, "Re: Question") > strings.Index(transcript, "Question"))
}

func TestTranscriptEmpty(t *testing.T) {
	be.Equal(t, Transcript(nil), "")
}

func TestFetchReturnsEmptyOnError(t *testing.T) {
	mailbox := &stubMailbox{threadErr: true}
	b := NewHistoryBuilder(mailbox)

	// スレッド取得の失敗は空の履歴に劣化し、エラーとして伝播しないこと
	messages := b.Fetch(context.Background(), "t1")
	be.Equal(t, len(messages), 0)
}

func TestBuildReturnsTranscriptAndCount(t *testing.T) {
	mailbox := &stubMailbox{
		threads: map[string][]models.Message{
			"t1": {
				{Sender: "anna@example.com", Subject: "Hi", CleanedBody: "first"},
				{Sender: "info@fastbookads.com", Subject: "Re: Hi", CleanedBody: "second"},
			},
		},
	}
	b := NewHistoryBuilder(mailbox)

	transcript, count := b.Build(context.Background(), "t1")
	be.Equal(t, count, 2)
	be.True(t, strings.Contains(transcript, "first"))
	be.True(t, strings.Contains(transcript, "second"))
}
