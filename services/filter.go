package services

import "strings"

// SenderFilter は自動応答の対象外とする送信元を判定します。
// 固定のブロックリストへの完全一致（大文字小文字を無視）と、
// パターン断片の部分一致の2段階で判定します。副作用やI/Oはありません。
type SenderFilter struct {
	blocked  map[string]struct{}
	patterns []string
}

func NewSenderFilter(blockedSenders, blockedPatterns []string) *SenderFilter {
	blocked := make(map[string]struct{}, len(blockedSenders))
	for _, sender := range blockedSenders {
		blocked[strings.ToLower(strings.TrimSpace(sender))] = struct{}{}
	}

	patterns := make([]string, 0, len(blockedPatterns))
	for _, pattern := range blockedPatterns {
		patterns = append(patterns, strings.ToLower(strings.TrimSpace(pattern)))
	}

	return &SenderFilter{blocked: blocked, patterns: patterns}
}

// IsBlocked はアドレスが自動応答の対象外かどうかを返します。
// 生成処理の前に必ず評価し、無駄なモデル呼び出しを避けます。
func (f *SenderFilter) IsBlocked(address string) bool {
	address = strings.ToLower(strings.TrimSpace(address))
	if address == "" {
		return true
	}

	if _, ok := f.blocked[address]; ok {
		return true
	}

	for _, pattern := range f.patterns {
		if strings.Contains(address, pattern) {
			return true
		}
	}

	return false
}
