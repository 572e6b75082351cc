package models

// メタデータに保存する本文の上限文字数（インデックス側のレコードサイズ制限対策）
const MetadataTextLimit = 15000

// RetrievalExample は過去の（受信メッセージ, 返信）ペアを表します。
// 生成時のスタイル参照として使用されます。
type RetrievalExample struct {
	OriginalMessage string `json:"original_message"`
	ReplyMessage    string `json:"reply_message"`
}

// EmbedRequest は埋め込みAPIへのリクエストペイロードです
type EmbedRequest struct {
	Model      string `json:"model"`
	Parameters struct {
		InputType string `json:"input_type"`
		Truncate  string `json:"truncate"`
	} `json:"parameters"`
	Inputs []EmbedInput `json:"inputs"`
}

// EmbedInput は埋め込み対象のテキストです
type EmbedInput struct {
	Text string `json:"text"`
}

// EmbedResponse は埋め込みAPIからのレスポンスです
type EmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Values []float64 `json:"values"`
	} `json:"data"`
}

// VectorRecord はインデックスへupsertする1レコードを定義します
type VectorRecord struct {
	ID       string           `json:"id"`
	Values   []float64        `json:"values"`
	Metadata RetrievalExample `json:"metadata"`
}

// UpsertRequest はインデックスへのupsertリクエストです
type UpsertRequest struct {
	Vectors []VectorRecord `json:"vectors"`
}

// UpsertResponse はupsertの結果です
type UpsertResponse struct {
	UpsertedCount int `json:"upsertedCount"`
}

// QueryRequest はインデックスへの近傍検索リクエストです
type QueryRequest struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeValues   bool      `json:"includeValues"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

// VectorMatch は近傍検索の1件のマッチです
type VectorMatch struct {
	ID       string           `json:"id"`
	Score    float64          `json:"score"`
	Metadata RetrievalExample `json:"metadata"`
}

// QueryResponse は近傍検索のレスポンスです
type QueryResponse struct {
	Matches []VectorMatch `json:"matches"`
}
