package middleware

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"mailpilot/config"
	"mailpilot/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Config struct {
	EnableLogger bool
	EnableAuth   bool
	ServerConfig *config.ServerConfig
}

// SetupMiddleware ミドルウェアの設定
func SetupMiddleware(r *gin.Engine, cfg *Config) {
	r.Use(gin.Recovery())

	if cfg.EnableLogger {
		r.Use(GinLogger())
	}

	if cfg.EnableAuth {
		r.Use(AuthMiddleware(cfg.ServerConfig))
	}
}

// AuthMiddleware サービストークンによる認証ミドルウェア。
// ヘルスチェックは監視系から素通しでアクセスできる必要があるため除外します。
func AuthMiddleware(cfg *config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		if authenticateRequest(c, cfg) {
			c.Next()
			return
		}

		logger.Logger.Warn("未認証リクエスト",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
		)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// authenticateRequest SERVICE_TOKENによる認証チェック
func authenticateRequest(c *gin.Context, cfg *config.ServerConfig) bool {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return false
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	return cfg.ServiceToken != "" && token == cfg.ServiceToken
}

// GinLogger ロギングミドルウェア
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("user-agent", c.Request.UserAgent()),
		}

		if errors := c.Errors.ByType(gin.ErrorTypePrivate).String(); errors != "" {
			fields = append(fields, zap.String("errors", errors))
		}

		if traceID := getTraceID(c); traceID != "" {
			fields = append(fields, zap.String("logging.googleapis.com/trace", traceID))
		}

		logRequestWithLevel(c, fields...)
	}
}

// getTraceID トレースIDの取得と整形
func getTraceID(c *gin.Context) string {
	traceHeader := c.Request.Header.Get("X-Cloud-Trace-Context")
	if traceHeader == "" {
		return ""
	}

	traceParts := strings.Split(traceHeader, "/")
	projectID := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if projectID == "" || len(traceParts) == 0 {
		return ""
	}

	return fmt.Sprintf("projects/%s/traces/%s", projectID, traceParts[0])
}

// logRequestWithLevel ステータスコードに応じたログレベルでログを出力
func logRequestWithLevel(c *gin.Context, fields ...zap.Field) {
	switch {
	case c.Writer.Status() >= 500:
		logger.Logger.Error("サーバーエラー", fields...)
	case c.Writer.Status() >= 400:
		logger.Logger.Warn("クライアントエラー", fields...)
	default:
		logger.Logger.Info("リクエスト完了", fields...)
	}
}
