package services

import (
	"testing"

	"github.com/nalgeon/be"
)

func newTestFilter() *SenderFilter {
	return NewSenderFilter(
		[]string{"fastbookads@gmail.com", "info@fastbookads.com"},
		[]string{"no-reply", "noreply", "mailer-daemon", "notifications@"},
	)
}

func TestIsBlockedExactMatch(t *testing.T) {
	f := newTestFilter()
	be.True(t, f.IsBlocked("fastbookads@gmail.com"))
	be.True(t, !f.IsBlocked("customer@example.com"))
}

func TestIsBlockedCaseInsensitive(t *testing.T) {
	f := newTestFilter()
	be.True(t, f.IsBlocked("Fastbookads@Gmail.com"))
	be.True(t, f.IsBlocked("  INFO@FASTBOOKADS.COM  "))
}

func TestIsBlockedPatternMatch(t *testing.T) {
	f := newTestFilter()
	// 完全一致リストに無くてもパターンの部分一致で除外されること
	be.True(t, f.IsBlocked("foo-noreply@example.com"))
	be.True(t, f.IsBlocked("mailer-daemon@googlemail.com"))
	be.True(t, f.IsBlocked("notifications@github.com"))
}

func TestIsBlockedEmptyAddress(t *testing.T) {
	f := newTestFilter()
	be.True(t, f.IsBlocked(""))
	be.True(t, f.IsBlocked("   "))
}
