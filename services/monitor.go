package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"mailpilot/logger"
	"mailpilot/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Retriever は応答例の検索への狭いインターフェースです
type Retriever interface {
	Retrieve(ctx context.Context, queryText string) (*models.RetrievalExample, error)
}

// ToneSource はトーンプロファイルの供給元への狭いインターフェースです
type ToneSource interface {
	Refresh(ctx context.Context) (string, error)
	Current() string
}

// ProcessingStore はアーカイブと処理状態の永続化への狭いインターフェースです
type ProcessingStore interface {
	SaveMessage(ctx context.Context, record *models.ArchivedMessage) error
	CreateProcessing(ctx context.Context, messageID, threadID string) (*models.MessageProcessing, error)
	UpdateProcessing(ctx context.Context, processing *models.MessageProcessing) error
	WasHandled(ctx context.Context, messageID string) bool
}

// MonitorStats は監視ループの統計情報です
type MonitorStats struct {
	Cycles         int        `json:"cycles"`
	Handled        int        `json:"handled"`
	Drafted        int        `json:"drafted"`
	Skipped        int        `json:"skipped"`
	Failures       int        `json:"failures"`
	LastCycleAt    *time.Time `json:"last_cycle_at,omitempty"`
	LastCycleError string     `json:"last_cycle_error,omitempty"`
}

// Monitor は監視ループ全体を駆動します。
// 取得→フィルタ→文脈構築→生成→下書き保存→処理済み記録→待機のサイクルを
// 停止シグナルを受けるまで繰り返します。
type Monitor struct {
	mailbox   Mailbox
	filter    *SenderFilter
	history   *HistoryBuilder
	retriever Retriever
	composer  *Composer
	tone      ToneSource
	archive   ProcessingStore
	notifier  *AlertNotifier

	interval       time.Duration
	signatureImage string

	mu        sync.Mutex
	processed map[string]struct{} // プロセス生存期間内の処理済みメッセージID
	lastCheck time.Time
	stats     MonitorStats
}

// MonitorDeps はMonitorの依存コンポーネントをまとめた構造体です
type MonitorDeps struct {
	Mailbox   Mailbox
	Filter    *SenderFilter
	History   *HistoryBuilder
	Retriever Retriever
	Composer  *Composer
	Tone      ToneSource
	Archive   ProcessingStore
	Notifier  *AlertNotifier
}

func NewMonitor(deps MonitorDeps, interval time.Duration, signatureImage string) *Monitor {
	return &Monitor{
		mailbox:        deps.Mailbox,
		filter:         deps.Filter,
		history:        deps.History,
		retriever:      deps.Retriever,
		composer:       deps.Composer,
		tone:           deps.Tone,
		archive:        deps.Archive,
		notifier:       deps.Notifier,
		interval:       interval,
		signatureImage: signatureImage,
		processed:      make(map[string]struct{}),
	}
}

// Run は監視ループを開始します。
// ctxのキャンセル（割り込みシグナル）以外では停止せず、1メッセージの処理失敗は
// そのメッセージ単位で記録して後続の処理を継続します。
func (m *Monitor) Run(ctx context.Context) {
	logger.Logger.Info("メールボックスの監視を開始します",
		zap.Duration("interval", m.interval),
	)

	consecutiveFailures := 0

	for {
		cycleStart := time.Now()
		cycleID := uuid.NewString()

		err := m.runCycle(ctx, cycleID)
		if err != nil && ctx.Err() == nil {
			consecutiveFailures++
			m.notifier.NotifyCycleFailure(consecutiveFailures, err)
		} else if err == nil {
			consecutiveFailures = 0
			m.notifier.Reset()
		}

		m.finishCycle(cycleStart, err)

		select {
		case <-ctx.Done():
			logger.Logger.Info("監視ループを停止します")
			return
		case <-time.After(m.interval):
		}
	}
}

// runCycle は1サイクル分の取得と処理を実行します
func (m *Monitor) runCycle(ctx context.Context, cycleID string) error {
	logFields := []zap.Field{
		zap.String("cycle_id", cycleID),
	}

	// トーンプロファイルはサイクルごとに再計算する（失敗時は前回値で続行）
	toneProfile, err := m.tone.Refresh(ctx)
	if err != nil {
		logger.Logger.Warn("トーンプロファイルの更新に失敗しました",
			append(logFields, zap.Error(err))...)
		toneProfile = m.tone.Current()
	}

	refs, err := m.mailbox.ListUnread(ctx, m.sinceDate())
	if err != nil {
		logger.Logger.Error("メッセージ一覧の取得に失敗しました",
			append(logFields, zap.Error(err))...)
		return err
	}

	newRefs := make([]models.MessageRef, 0, len(refs))
	for _, ref := range refs {
		if m.markSeen(ref.ID) {
			newRefs = append(newRefs, ref)
		}
	}

	if len(newRefs) == 0 {
		logger.Logger.Debug("新しいメッセージはありません", logFields...)
		return nil
	}

	logger.Logger.Info("新しいメッセージを検出しました",
		append(logFields, zap.Int("count", len(newRefs)))...)

	for _, ref := range newRefs {
		// 1メッセージの失敗はそのメッセージで閉じ、バッチの残りを継続する
		m.processMessage(ctx, ref, toneProfile, cycleID)

		if ctx.Err() != nil {
			return nil
		}
	}

	return nil
}

// processMessage は1メッセージ分のパイプラインを実行します
func (m *Monitor) processMessage(ctx context.Context, ref models.MessageRef, toneProfile, cycleID string) {
	logFields := []zap.Field{
		zap.String("message_id", ref.ID),
		zap.String("thread_id", ref.ThreadID),
		zap.String("cycle_id", cycleID),
	}

	// 永続化された処理状態を確認し、再起動後の二重下書きを防ぐ
	if m.archive.WasHandled(ctx, ref.ID) {
		logger.Logger.Debug("処理済みのメッセージをスキップします", logFields...)
		return
	}

	msg, err := m.mailbox.GetMessage(ctx, ref.ID)
	if err != nil {
		logger.Logger.Error("メッセージの取得に失敗しました",
			append(logFields, zap.Error(err))...)
		m.addFailure()
		return
	}

	sender := msg.SenderAddress()
	logFields = append(logFields, zap.String("sender", sender))

	// フィルタ判定は生成処理より前に行う
	if m.filter.IsBlocked(sender) {
		logger.Logger.Info("ブロック対象の送信元のためスキップします", logFields...)
		m.recordSkipped(ctx, ref, "sender is blocked")
		return
	}

	processing, err := m.archive.CreateProcessing(ctx, ref.ID, ref.ThreadID)
	if err != nil {
		// 状態記録ができなくても処理自体は継続する（劣化運転）
		logger.Logger.Warn("処理状態の作成に失敗しました",
			append(logFields, zap.Error(err))...)
	}
	if processing != nil {
		processing.SetRunning()
		m.updateProcessing(ctx, processing, logFields)
	}

	// 会話履歴はキャッシュせず毎回再構築する
	thread := m.history.Fetch(ctx, msg.ThreadID)
	transcript := Transcript(thread)
	firstReply := len(thread) <= 1

	exemplar, err := m.retriever.Retrieve(ctx, msg.CleanedBody)
	if err != nil {
		// 応答例なしでも生成は続行する
		logger.Logger.Warn("応答例の取得に失敗したため参照なしで生成します",
			append(logFields, zap.Error(err))...)
		exemplar = nil
	}

	reply := m.composer.Compose(ctx, msg, transcript, exemplar, toneProfile, firstReply)

	draftID, err := m.mailbox.CreateDraft(ctx, &models.DraftReply{
		Recipient:      sender,
		ThreadID:       msg.ThreadID,
		Subject:        replySubject(msg.Subject),
		Body:           reply,
		SignatureImage: m.signatureImage,
	})
	if err != nil {
		logger.Logger.Error("下書きの作成に失敗しました",
			append(logFields, zap.Error(err))...)
		if processing != nil {
			processing.SetError(err.Error())
			m.updateProcessing(ctx, processing, logFields)
		}
		m.addFailure()
		return
	}

	// スレッドスナップショット付きでアーカイブする（失敗しても下書きは有効）
	if err := m.archive.SaveMessage(ctx, buildArchiveRecord(msg, thread)); err != nil {
		logger.Logger.Warn("アーカイブの書き込みに失敗しました",
			append(logFields, zap.Error(err))...)
	}

	if processing != nil {
		processing.SetComplete(draftID)
		m.updateProcessing(ctx, processing, logFields)
	}

	logger.Logger.Info("返信の下書きを保存しました",
		append(logFields, zap.String("draft_id", draftID))...)

	m.mu.Lock()
	m.stats.Handled++
	m.stats.Drafted++
	m.mu.Unlock()
}

func (m *Monitor) recordSkipped(ctx context.Context, ref models.MessageRef, reason string) {
	processing, err := m.archive.CreateProcessing(ctx, ref.ID, ref.ThreadID)
	if err == nil && processing != nil {
		processing.SetSkipped(reason)
		if err := m.archive.UpdateProcessing(ctx, processing); err != nil {
			logger.Logger.Warn("スキップ状態の記録に失敗しました",
				zap.String("message_id", ref.ID),
				zap.Error(err),
			)
		}
	}

	m.mu.Lock()
	m.stats.Skipped++
	m.mu.Unlock()
}

func (m *Monitor) updateProcessing(ctx context.Context, processing *models.MessageProcessing, logFields []zap.Field) {
	if err := m.archive.UpdateProcessing(ctx, processing); err != nil {
		logger.Logger.Warn("処理状態の更新に失敗しました",
			append(logFields, zap.Error(err))...)
	}
}

// markSeen はメッセージIDをプロセス内の処理済み集合に追加します。
// 既に存在する場合はfalseを返します（1プロセスにつき最大1回の処理）。
func (m *Monitor) markSeen(messageID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.processed[messageID]; ok {
		return false
	}
	m.processed[messageID] = struct{}{}
	return true
}

// sinceDate は前回サイクル開始時刻に基づくウォーターマークを返します
func (m *Monitor) sinceDate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCheck
}

// finishCycle はウォーターマークをバッチ開始時刻へ進め、統計を更新します
func (m *Monitor) finishCycle(cycleStart time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastCheck = cycleStart
	m.stats.Cycles++
	now := time.Now()
	m.stats.LastCycleAt = &now
	if err != nil {
		m.stats.LastCycleError = err.Error()
	} else {
		m.stats.LastCycleError = ""
	}
}

func (m *Monitor) addFailure() {
	m.mu.Lock()
	m.stats.Failures++
	m.mu.Unlock()
}

// Stats は統計情報のコピーを返します
func (m *Monitor) Stats() MonitorStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

func replySubject(subject string) string {
	if subject == "" {
		return "Re:"
	}
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	return "Re: " + subject
}

// buildArchiveRecord はメッセージとスレッドからアーカイブレコードを構築します
func buildArchiveRecord(msg *models.Message, thread []models.Message) *models.ArchivedMessage {
	summaries := make([]models.ArchivedSummary, 0, len(thread))
	for _, t := range thread {
		summaries = append(summaries, models.ArchivedSummary{
			MessageID: t.ID,
			Sender:    t.Sender,
			Subject:   t.Subject,
			Date:      t.Date,
			Body:      t.RawBody,
		})
	}

	return &models.ArchivedMessage{
		MessageID: msg.ID,
		ThreadID:  msg.ThreadID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Date:      msg.Date,
		Body:      msg.RawBody,
		ThreadContext: models.ThreadSnapshot{
			ThreadID:     msg.ThreadID,
			MessageCount: len(thread),
			Messages:     summaries,
		},
	}
}
