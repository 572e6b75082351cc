package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"mailpilot/models"

	"github.com/nalgeon/be"
)

// stubThreadSource はテスト用のThreadSource実装です
type stubThreadSource struct {
	order   []string
	threads map[string][]models.Message
	listErr error
}

func (s *stubThreadSource) ListThreads(ctx context.Context, label string, maxThreads int64) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.order, nil
}

func (s *stubThreadSource) GetThread(ctx context.Context, threadID string) ([]models.Message, error) {
	messages, ok := s.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("thread %s not found", threadID)
	}
	return messages, nil
}

func qualifyingThread(n int) []models.Message {
	return []models.Message{
		{
			ID:          fmt.Sprintf("orig-%d", n),
			RawBody:     fmt.Sprintf("question number %d", n),
			CleanedBody: fmt.Sprintf("question number %d", n),
		},
		{
			ID:          fmt.Sprintf("reply-%d", n),
			RawBody:     "Hi, happy to help.\n\nCustomer Success Assistant",
			CleanedBody: "Hi, happy to help.\n\nCustomer Success Assistant",
		},
	}
}

func newTestIndexerSource(threadCount int) *stubThreadSource {
	source := &stubThreadSource{threads: make(map[string][]models.Message)}
	for i := 0; i < threadCount; i++ {
		id := fmt.Sprintf("t%d", i)
		source.order = append(source.order, id)
		source.threads[id] = qualifyingThread(i)
	}
	return source
}

func TestIndexerIndexesQualifyingPairsOnly(t *testing.T) {
	source := &stubThreadSource{
		order: []string{"t1", "t2", "t3"},
		threads: map[string][]models.Message{
			"t1": qualifyingThread(1),
			// 1通だけのスレッドは対象外
			"t2": {{ID: "solo", RawBody: "no reply yet"}},
			// マーカーを含まない返信は対象外
			"t3": {
				{ID: "o3", RawBody: "question"},
				{ID: "r3", CleanedBody: "a human wrote this reply"},
			},
		},
	}
	index := &stubIndex{}
	store := newStubStore()

	stats, err := NewIndexer(source, index, store, 100).Run(context.Background())
	be.Err(t, err, nil)

	be.Equal(t, stats.ThreadsScanned, 3)
	be.Equal(t, stats.PairsIndexed, 1)
	be.Equal(t, len(index.batches), 1)
	be.Equal(t, len(index.batches[0]), 1)

	record := index.batches[0][0]
	// レコードIDは元メッセージのGmailメッセージID（再実行しても重複しない）
	be.Equal(t, record.ID, "orig-1")
	be.Equal(t, record.Metadata.OriginalMessage, "question number 1")
	be.True(t, strings.Contains(record.Metadata.ReplyMessage, "Customer Success Assistant"))
}

func TestIndexerFlushesInBoundedBatches(t *testing.T) {
	source := newTestIndexerSource(25)
	index := &stubIndex{}
	store := newStubStore()

	stats, err := NewIndexer(source, index, store, 100).Run(context.Background())
	be.Err(t, err, nil)

	// 25ペア → 10 + 10 + 5 の3バッチ。端数も必ず書き込まれること
	be.Equal(t, stats.PairsIndexed, 25)
	be.Equal(t, stats.Flushes, 3)
	be.Equal(t, len(index.batches), 3)

	total := 0
	for _, batch := range index.batches {
		be.True(t, len(batch) <= upsertBatchSize)
		total += len(batch)
	}
	be.Equal(t, total, 25)
}

func TestIndexerTruncatesMetadataText(t *testing.T) {
	long := strings.Repeat("a", models.MetadataTextLimit+500)
	source := &stubThreadSource{
		order: []string{"t1"},
		threads: map[string][]models.Message{
			"t1": {
				{ID: "o1", RawBody: long},
				{ID: "r1", CleanedBody: "thanks - Customer Success Assistant"},
			},
		},
	}
	index := &stubIndex{}

	_, err := NewIndexer(source, index, newStubStore(), 100).Run(context.Background())
	be.Err(t, err, nil)

	be.Equal(t, len(index.batches[0][0].Metadata.OriginalMessage), models.MetadataTextLimit)
}

func TestIndexerArchivesPairMessages(t *testing.T) {
	source := newTestIndexerSource(1)
	store := newStubStore()

	stats, err := NewIndexer(source, &stubIndex{}, store, 100).Run(context.Background())
	be.Err(t, err, nil)

	// 元メッセージと返信の両方がスレッド文脈付きでアーカイブされること
	be.Equal(t, stats.Archived, 2)
	be.Equal(t, len(store.saved), 2)
	be.Equal(t, store.saved[0].ThreadContext.MessageCount, 2)
}

func TestIndexerSkipsUnreadableThreads(t *testing.T) {
	source := newTestIndexerSource(2)
	delete(source.threads, "t0")
	index := &stubIndex{}

	stats, err := NewIndexer(source, index, newStubStore(), 100).Run(context.Background())
	be.Err(t, err, nil)

	// 取得できないスレッドは飛ばして走査を続けること
	be.Equal(t, stats.ThreadsScanned, 2)
	be.Equal(t, stats.PairsIndexed, 1)
}

func TestIndexerPropagatesListFailure(t *testing.T) {
	source := &stubThreadSource{listErr: errors.New("list failed")}

	_, err := NewIndexer(source, &stubIndex{}, newStubStore(), 100).Run(context.Background())
	be.True(t, err != nil)
}
