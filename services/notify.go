package services

import (
	"sync"

	"mailpilot/logger"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// 連続でこの回数サイクルが失敗した場合に運用者へ通知する
const alertThreshold = 3

// AlertNotifier は監視ループの連続失敗を運用者へメールで通知します。
// APIキーまたは宛先が未設定の場合は通知を行いません（無効化された状態）。
type AlertNotifier struct {
	client *sendgrid.Client
	from   string
	to     string

	mu       sync.Mutex
	notified bool
}

func NewAlertNotifier(apiKey, from, to string) *AlertNotifier {
	n := &AlertNotifier{from: from, to: to}
	if apiKey != "" && to != "" {
		n.client = sendgrid.NewSendClient(apiKey)
	}

	logger.Logger.Info("通知サービスを初期化しました",
		zap.Bool("enabled", n.client != nil),
	)

	return n
}

// NotifyCycleFailure は連続失敗回数がしきい値に達した時点で1回だけ通知します。
// 次に成功サイクルが来るまで再通知はしません。
func (n *AlertNotifier) NotifyCycleFailure(consecutive int, cause error) {
	if n == nil || n.client == nil {
		return
	}
	if consecutive < alertThreshold {
		return
	}

	n.mu.Lock()
	if n.notified {
		n.mu.Unlock()
		return
	}
	n.notified = true
	n.mu.Unlock()

	logFields := []zap.Field{
		zap.Int("consecutive_failures", consecutive),
		zap.Error(cause),
	}

	from := mail.NewEmail("mailpilot", n.from)
	to := mail.NewEmail("", n.to)
	subject := "[mailpilot] polling cycle keeps failing"
	body := "The mail polling cycle has failed " +
		"repeatedly. Last error:\n\n" + cause.Error()

	message := mail.NewSingleEmail(from, subject, to, body, "")
	response, err := n.client.Send(message)
	if err != nil {
		logger.Logger.Error("アラートメールの送信に失敗しました",
			append(logFields, zap.Error(err))...)
		return
	}

	if response.StatusCode >= 300 {
		logger.Logger.Error("SendGridからエラーレスポンスを受信しました",
			append(logFields,
				zap.Int("status_code", response.StatusCode),
				zap.String("response_body", response.Body))...)
		return
	}

	logger.Logger.Info("アラートメールを送信しました", logFields...)
}

// Reset は成功サイクル後に通知済みフラグを解除します
func (n *AlertNotifier) Reset() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.notified = false
	n.mu.Unlock()
}
