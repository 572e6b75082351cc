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

// Generator はテキスト生成への狭いインターフェースを定義します
type Generator interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

const (
	defaultChatEndpoint = "https://api.openai.com/v1/chat/completions"

	defaultShortTimeout = 30 * time.Second
	defaultLongTimeout  = 90 * time.Second
)

// OpenAIService はチャット補完APIを使用したGeneratorの実装です
type OpenAIService struct {
	endpoint    string
	apiKey      string
	model       string
	shortClient *http.Client
	longClient  *http.Client
}

func NewOpenAIService(apiKey, model string) *OpenAIService {
	service := &OpenAIService{
		endpoint: defaultChatEndpoint,
		apiKey:   apiKey,
		model:    model,
		shortClient: &http.Client{
			Timeout: defaultShortTimeout,
		},
		longClient: &http.Client{
			Timeout: defaultLongTimeout,
		},
	}

	logger.Logger.Info("生成AIサービスを初期化しました",
		zap.Bool("has_api_key", apiKey != ""),
		zap.String("model", model),
		zap.Duration("short_timeout", defaultShortTimeout),
		zap.Duration("long_timeout", defaultLongTimeout),
	)

	return service
}

// Complete はsystem/userロールを分離した1回の補完呼び出しを実行します。
// タイムアウトは回復可能な失敗として呼び出し元に返します。
func (s *OpenAIService) Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error) {
	if s.apiKey == "" {
		logger.Logger.Error("生成AIのAPIキーが設定されていません")
		return "", fmt.Errorf("generator API key is not set")
	}

	chatRequest := models.ChatRequest{
		Model: s.model,
		Messages: []models.ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}

	payloadBytes, err := json.Marshal(chatRequest)
	if err != nil {
		logger.Logger.Error("ペイロードのJSONエンコードに失敗しました", zap.Error(err))
		return "", fmt.Errorf("failed to marshal payload: %v", err)
	}

	// リクエストペイロードはDEBUGレベル
	logger.Logger.Debug("生成AI APIリクエストペイロード",
		zap.Int("payload_size", len(payloadBytes)),
		zap.Int("max_tokens", maxTokens),
		zap.Float64("temperature", temperature),
	)

	req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewBuffer(payloadBytes))
	if err != nil {
		logger.Logger.Error("HTTPリクエストの作成に失敗しました",
			zap.Error(err),
			zap.String("endpoint", s.endpoint),
		)
		return "", fmt.Errorf("failed to create HTTP request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.shortClient.Do(req)
	if err != nil {
		logger.Logger.Error("HTTPリクエストの実行に失敗しました", zap.Error(err))
		return "", fmt.Errorf("failed to make HTTP request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Logger.Error("生成AI APIが異常なステータスを返しました",
			zap.Int("status_code", resp.StatusCode),
		)
		return "", fmt.Errorf("generator API returned non-200 status: %d", resp.StatusCode)
	}

	var chatResponse models.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResponse); err != nil {
		logger.Logger.Error("生成AIレスポンスのデコードに失敗しました", zap.Error(err))
		return "", fmt.Errorf("failed to decode generator response: %v", err)
	}

	if chatResponse.Error != nil {
		logger.Logger.Error("生成AIレスポンスにエラーが含まれています",
			zap.String("error_type", chatResponse.Error.Type),
			zap.String("error_message", chatResponse.Error.Message),
		)
		return "", fmt.Errorf("generator error: %s", chatResponse.Error.Message)
	}

	if len(chatResponse.Choices) == 0 {
		logger.Logger.Error("生成AIレスポンスにchoicesが存在しません")
		return "", fmt.Errorf("generator response missing choices")
	}

	content := strings.TrimSpace(chatResponse.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("generator returned empty content")
	}

	// 処理完了のログは重要なのでINFOレベル
	logger.Logger.Info("生成AI処理が完了しました",
		zap.String("finish_reason", chatResponse.Choices[0].Finish),
		zap.Int("total_tokens", chatResponse.Usage.TotalTokens),
	)

	return content, nil
}
