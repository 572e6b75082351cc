package config

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"mailpilot/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// ServerConfig サーバーとパイプラインの基本設定
type ServerConfig struct {
	Port     string
	GinMode  string
	LogLevel zapcore.Level

	// 生成AI関連
	OpenAIKey   string
	OpenAIModel string

	// ベクトルインデックス関連
	PineconeKey    string
	PineconeHost   string
	EmbedModel     string
	EmbedDimension int

	// Gmail関連
	CredentialsFile string
	TokenFile       string
	MaxResults      int64

	// アーカイブ関連
	ProjectID string

	// トーンプロファイル関連
	ToneCorpusPath string
	ToneIdentity   string

	// 応答ポリシー関連
	BlockedSenders  []string
	BlockedPatterns []string
	SignatureImage  string
	ReplyFrom       string

	// 監視ループ関連
	PollInterval time.Duration

	// 通知関連
	SendGridKey string
	AlertTo     string
	AlertFrom   string

	ServiceToken    string
	Environment     string
	ServiceName     string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

// InitConfig は環境設定を初期化します
func InitConfig() (*ServerConfig, error) {
	config := loadConfig()
	return config, config.Validate()
}

// InitIndexerConfig は収集ジョブ向けの設定を初期化します。
// 生成AIとトーンコーパスは使わないため、必須チェックの対象から外します。
func InitIndexerConfig() (*ServerConfig, error) {
	config := loadConfig()
	return config, config.validateRequired(map[string]string{
		"PineconeKey":  config.PineconeKey,
		"PineconeHost": config.PineconeHost,
		"ProjectID":    config.ProjectID,
	})
}

func loadConfig() *ServerConfig {
	// .envファイルの読み込み
	if err := godotenv.Load(); err != nil {
		fmt.Println(".envファイルが見つかりません")
	}

	// ログレベルの設定
	logLevel := initLogLevel()

	// Ginモードの設定
	ginMode := initGinMode()

	config := &ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		GinMode:        ginMode,
		LogLevel:       logLevel,
		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o"),
		PineconeKey:    getEnv("PINECONE_API_KEY", ""),
		PineconeHost:   getEnv("PINECONE_INDEX_HOST", ""),
		EmbedModel:     getEnv("EMBED_MODEL", "llama-text-embed-v2"),
		EmbedDimension: getInt("EMBED_DIMENSION", 1024),

		CredentialsFile: getEnv("GMAIL_CREDENTIALS_FILE", "credentials.json"),
		TokenFile:       getEnv("GMAIL_TOKEN_FILE", "token.json"),
		MaxResults:      int64(getInt("GMAIL_MAX_RESULTS", 50)),

		ProjectID: getEnv("GOOGLE_CLOUD_PROJECT", ""),

		ToneCorpusPath: getEnv("TONE_CORPUS_PATH", "reference_chat.txt"),
		ToneIdentity:   getEnv("TONE_IDENTITY", "Fast Book Ads"),

		BlockedSenders:  getList("BLOCKED_SENDERS", defaultBlockedSenders),
		BlockedPatterns: getList("BLOCKED_PATTERNS", defaultBlockedPatterns),
		SignatureImage:  getEnv("SIGNATURE_IMAGE", ""),
		ReplyFrom:       getEnv("REPLY_FROM", "info@fastbookads.com"),

		PollInterval: getDuration("POLL_INTERVAL", time.Minute),

		SendGridKey: getEnv("SENDGRID_API_KEY", ""),
		AlertTo:     getEnv("ALERT_TO", ""),
		AlertFrom:   getEnv("ALERT_FROM", "alerts@fastbookads.com"),

		ServiceToken:    getEnv("SERVICE_TOKEN", ""),
		Environment:     getEnv("ENVIRONMENT", "development"),
		ServiceName:     getEnv("K_SERVICE", "mailpilot"),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		ReadTimeout:     getDuration("HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
	}

	return config
}

// defaultBlockedSenders は自動応答の対象外とする送信元アドレスの既定値です
var defaultBlockedSenders = []string{
	"fastbookads@gmail.com",
	"info@fastbookads.com",
	"alerts@fastbookads.com",
}

// defaultBlockedPatterns は送信元アドレスに含まれていた場合に除外する断片の既定値です
var defaultBlockedPatterns = []string{
	"no-reply",
	"noreply",
	"mailer-daemon",
	"notifications@",
}

// SetupServer はサーバーの設定を行います
func SetupServer(r *gin.Engine, config *ServerConfig) *http.Server {
	displayServerConfig(r, config)

	return &http.Server{
		Addr:              ":" + config.Port,
		Handler:           r,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func initLogLevel() zapcore.Level {
	logLevelStr := getEnv("LOG_LEVEL", "info")
	var logLevel zapcore.Level
	if err := logLevel.UnmarshalText([]byte(logLevelStr)); err != nil {
		fmt.Printf("Invalid LOG_LEVEL '%s', defaulting to 'info'\n", logLevelStr)
		logLevel = zapcore.InfoLevel
	}
	logger.LogLevel.SetLevel(logLevel)
	return logLevel
}

func initGinMode() string {
	ginMode := os.Getenv("GIN_MODE")
	if ginMode == "" {
		ginMode = "release"
	}
	gin.SetMode(ginMode)
	return ginMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}

// Validate は必須の認証情報が揃っているかを検証します。
// 欠落している場合は起動時エラーとして扱います（監視ループには入りません）。
func (c *ServerConfig) Validate() error {
	err := c.validateRequired(map[string]string{
		"OpenAIKey":    c.OpenAIKey,
		"PineconeKey":  c.PineconeKey,
		"PineconeHost": c.PineconeHost,
		"ProjectID":    c.ProjectID,
	})
	if err != nil {
		return err
	}

	// トーンプロファイルの参照コーパスは起動時に存在確認を行う
	if _, err := os.Stat(c.ToneCorpusPath); err != nil {
		return fmt.Errorf("tone corpus file is not readable: %v", err)
	}

	return nil
}

func (c *ServerConfig) validateRequired(required map[string]string) error {
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	return nil
}

func displayServerConfig(r *gin.Engine, config *ServerConfig) {
	var routeInfo strings.Builder
	routeInfo.WriteString("Registered Endpoints:\n")
	for _, route := range r.Routes() {
		routeInfo.WriteString(fmt.Sprintf("- %s: %s -> %s\n",
			route.Method,
			route.Path,
			route.Handler))
	}

	fmt.Printf("\n"+
		"=================================\n"+
		"Server Configuration:\n"+
		"- Port: %s\n"+
		"- Mode: %s\n"+
		"- Log Level: %s\n"+
		"- Environment: %s\n"+
		"- Service: %s\n"+
		"- Poll Interval: %s\n"+
		"=================================\n"+
		"%s"+
		"=================================\n",
		config.Port,
		config.GinMode,
		logger.LogLevel.String(),
		config.Environment,
		config.ServiceName,
		config.PollInterval,
		routeInfo.String())
}
