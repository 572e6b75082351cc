package services

import (
	"context"
	"fmt"
	"os"
	"sync"

	"mailpilot/logger"
	"mailpilot/models"

	"go.uber.org/zap"
)

// ToneProfiler は参照コーパスから文体の短い記述子を導出します。
// 記述子はサイクルごとに再計算され、サイクル内ではキャッシュが使われます。
type ToneProfiler struct {
	gen        Generator
	corpusPath string
	identity   string

	mu      sync.Mutex
	current string
}

func NewToneProfiler(gen Generator, corpusPath, identity string) *ToneProfiler {
	return &ToneProfiler{
		gen:        gen,
		corpusPath: corpusPath,
		identity:   identity,
	}
}

const toneSystemPrompt = "You are a writing style analyst. You produce short, reusable style descriptors."

// Refresh は参照コーパスを読み直して記述子を再計算します。
// 失敗した場合は前回の記述子を保持したままエラーを返します。
func (t *ToneProfiler) Refresh(ctx context.Context) (string, error) {
	corpus, err := os.ReadFile(t.corpusPath)
	if err != nil {
		logger.Logger.Error("参照コーパスの読み込みに失敗しました",
			zap.String("path", t.corpusPath),
			zap.Error(err),
		)
		return t.Current(), fmt.Errorf("failed to read tone corpus: %v", err)
	}

	prompt := fmt.Sprintf(`Analyze how "%s" writes in the chat log below. Ignore all other participants.

Summarize, in at most 40 words, the following aspects of their writing:
- formality level
- greeting and closing conventions
- sentence rhythm and structure
- punctuation habits
- vocabulary and recurring phrases
- directness and overall tone
- idiosyncrasies

Output only the descriptor, no preamble.

Chat log:
%s`, t.identity, string(corpus))

	descriptor, err := t.gen.Complete(ctx, toneSystemPrompt, prompt, models.ToneMaxTokens, models.ToneTemperature)
	if err != nil {
		logger.Logger.Warn("トーンプロファイルの生成に失敗したため前回値を使用します", zap.Error(err))
		return t.Current(), err
	}

	t.mu.Lock()
	t.current = descriptor
	t.mu.Unlock()

	logger.Logger.Debug("トーンプロファイルを更新しました",
		zap.Int("descriptor_length", len(descriptor)),
	)

	return descriptor, nil
}

// Current は最後に計算された記述子を返します（未計算の場合は空文字列）
func (t *ToneProfiler) Current() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}
