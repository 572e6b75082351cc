package models

// 生成リクエストの既定パラメータ
const (
	// ReplyMaxTokens は返信生成の出力トークン上限です
	ReplyMaxTokens = 500
	// ReplyTemperature は返信生成のサンプリング温度です（多様性を優先しつつ暴走を抑える）
	ReplyTemperature = 0.7
	// ToneMaxTokens はトーンプロファイル生成の出力トークン上限です
	ToneMaxTokens = 120
	// ToneTemperature はトーンプロファイル生成の温度です（実行間の安定性を優先）
	ToneTemperature = 0.2
)

// FallbackReply は生成に失敗した場合に使用する固定の応答文です。
// 言語判定に依存しない中立な文面とします。
const FallbackReply = "Grazie per il suo messaggio. / Thank you for your message.\n" +
	"Le risponderemo al più presto. / We will get back to you as soon as possible."

// ChatMessage はチャット補完APIのメッセージを定義します
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest はチャット補完APIへのリクエストペイロードです
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// ChatResponse はチャット補完APIからのレスポンスです
type ChatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int         `json:"index"`
		Message ChatMessage `json:"message"`
		Finish  string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *ChatError `json:"error,omitempty"`
}

// ChatError はチャット補完APIのエラー情報です
type ChatError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}
