package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

// VectorIndex はベクトルインデックスへの狭いインターフェースを定義します
type VectorIndex interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Upsert(ctx context.Context, records []models.VectorRecord) error
	Query(ctx context.Context, vector []float64, topK int) ([]models.VectorMatch, error)
}

const (
	defaultEmbedEndpoint = "https://api.pinecone.io/embed"
	pineconeAPIVersion   = "2025-01"
)

// PineconeService はPinecone REST APIを使用したVectorIndexの実装です。
// 埋め込みと近傍検索は同一の次元数・内積メトリックで設定されている前提です。
type PineconeService struct {
	apiKey        string
	indexHost     string
	embedModel    string
	embedEndpoint string
	client        *http.Client
}

func NewPineconeService(apiKey, indexHost, embedModel string) *PineconeService {
	if indexHost != "" && !strings.HasPrefix(indexHost, "http") {
		indexHost = "https://" + indexHost
	}

	service := &PineconeService{
		apiKey:        apiKey,
		indexHost:     strings.TrimSuffix(indexHost, "/"),
		embedModel:    embedModel,
		embedEndpoint: defaultEmbedEndpoint,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	logger.Logger.Info("ベクトルインデックスサービスを初期化しました",
		zap.Bool("has_api_key", apiKey != ""),
		zap.Bool("has_index_host", indexHost != ""),
		zap.String("embed_model", embedModel),
	)

	return service
}

// Embed はテキストを密ベクトルに変換します。
// 長すぎる入力はエラーにせず末尾で切り詰めます（passage埋め込みモード）。
func (s *PineconeService) Embed(ctx context.Context, text string) ([]float64, error) {
	embedRequest := models.EmbedRequest{
		Model:  s.embedModel,
		Inputs: []models.EmbedInput{{Text: text}},
	}
	embedRequest.Parameters.InputType = "passage"
	embedRequest.Parameters.Truncate = "END"

	var embedResponse models.EmbedResponse
	if err := s.post(ctx, s.embedEndpoint, embedRequest, &embedResponse); err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}

	if len(embedResponse.Data) == 0 || len(embedResponse.Data[0].Values) == 0 {
		logger.Logger.Error("埋め込みレスポンスにベクトルが存在しません")
		return nil, fmt.Errorf("embed response contains no vector")
	}

	return embedResponse.Data[0].Values, nil
}

// Upsert はレコードの一括upsertを実行します
func (s *PineconeService) Upsert(ctx context.Context, records []models.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	var upsertResponse models.UpsertResponse
	if err := s.post(ctx, s.indexHost+"/vectors/upsert", models.UpsertRequest{Vectors: records}, &upsertResponse); err != nil {
		return fmt.Errorf("upsert request failed: %w", err)
	}

	logger.Logger.Info("インデックスへupsertしました",
		zap.Int("record_count", len(records)),
		zap.Int("upserted_count", upsertResponse.UpsertedCount),
	)

	return nil
}

// Query は内積類似度による近傍検索を実行します
func (s *PineconeService) Query(ctx context.Context, vector []float64, topK int) ([]models.VectorMatch, error) {
	queryRequest := models.QueryRequest{
		Vector:          vector,
		TopK:            topK,
		IncludeValues:   false,
		IncludeMetadata: true,
	}

	var queryResponse models.QueryResponse
	if err := s.post(ctx, s.indexHost+"/query", queryRequest, &queryResponse); err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}

	return queryResponse.Matches, nil
}

func (s *PineconeService) post(ctx context.Context, url string, payload, result interface{}) error {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		logger.Logger.Error("ペイロードのJSONエンコードに失敗しました", zap.Error(err))
		return fmt.Errorf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		logger.Logger.Error("HTTPリクエストの作成に失敗しました",
			zap.Error(err),
			zap.String("url", url),
		)
		return fmt.Errorf("failed to create HTTP request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Logger.Error("HTTPリクエストの実行に失敗しました", zap.Error(err))
		return fmt.Errorf("failed to make HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Logger.Error("ベクトルAPIが異常なステータスを返しました",
			zap.Int("status_code", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("vector API returned non-200 status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		logger.Logger.Error("ベクトルAPIレスポンスのデコードに失敗しました", zap.Error(err))
		return fmt.Errorf("failed to decode response: %v", err)
	}

	return nil
}
