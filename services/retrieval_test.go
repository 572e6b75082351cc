package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"mailpilot/models"

	"github.com/nalgeon/be"
)

// stubIndex はテスト用のVectorIndex実装です
type stubIndex struct {
	mu       sync.Mutex
	matches  []models.VectorMatch
	batches  [][]models.VectorRecord
	embedErr error
	queryErr error
}

func (s *stubIndex) Embed(ctx context.Context, text string) ([]float64, error) {
	if s.embedErr != nil {
		return nil, s.embedErr
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (s *stubIndex) Upsert(ctx context.Context, records []models.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]models.VectorRecord, len(records))
	copy(batch, records)
	s.batches = append(s.batches, batch)
	return nil
}

func (s *stubIndex) Query(ctx context.Context, vector []float64, topK int) ([]models.VectorMatch, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if topK < len(s.matches) {
		return s.matches[:topK], nil
	}
	return s.matches, nil
}

func TestRetrieveReturnsNearestExample(t *testing.T) {
	index := &stubIndex{matches: []models.VectorMatch{
		{ID: "m1", Score: 0.92, Metadata: models.RetrievalExample{
			OriginalMessage: "old question",
			ReplyMessage:    "old reply",
		}},
		{ID: "m2", Score: 0.41},
	}}
	e := NewRetrievalEngine(index)

	example, err := e.Retrieve(context.Background(), "new question")
	be.Err(t, err, nil)
	be.Equal(t, example.ReplyMessage, "old reply")
}

func TestRetrieveEmptyIndexIsError(t *testing.T) {
	e := NewRetrievalEngine(&stubIndex{})

	// 空のインデックスは設定エラーであり、空の結果を返してはいけない
	_, err := e.Retrieve(context.Background(), "anything")
	be.True(t, err != nil)
}

func TestRetrievePropagatesEmbedError(t *testing.T) {
	e := NewRetrievalEngine(&stubIndex{embedErr: errors.New("embed down")})

	_, err := e.Retrieve(context.Background(), "anything")
	be.True(t, err != nil)
}
