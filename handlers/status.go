package handlers

import (
	"net/http"

	"mailpilot/logger"
	"mailpilot/services"
	"mailpilot/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusHandler は監視ループの状態を公開する運用系ハンドラーです
type StatusHandler struct {
	monitor *services.Monitor
	archive *store.ThreadArchive
}

func NewStatusHandler(monitor *services.Monitor, archive *store.ThreadArchive) *StatusHandler {
	return &StatusHandler{
		monitor: monitor,
		archive: archive,
	}
}

// HandleStats は監視ループの統計情報を返します
func (h *StatusHandler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.monitor.Stats())
}

// HandleCheckStatus はメッセージ単位の処理状態を返します
func (h *StatusHandler) HandleCheckStatus(c *gin.Context) {
	ctx := c.Request.Context()
	messageID := c.Param("messageID")
	if messageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message_id is required"})
		return
	}

	logFields := []zap.Field{
		zap.String("message_id", messageID),
		zap.String("handler", "HandleCheckStatus"),
	}

	processing, err := h.archive.GetProcessing(ctx, messageID)
	if err != nil {
		logger.Logger.Error("処理状態の取得に失敗しました",
			append(logFields, zap.Error(err))...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get processing status"})
		return
	}

	if processing == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Status not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message_id": messageID,
		"processing": processing,
	})
}
