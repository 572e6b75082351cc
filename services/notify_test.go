package services

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func TestNotifierDisabledWithoutCredentials(t *testing.T) {
	n := NewAlertNotifier("", "", "")
	be.True(t, n.client == nil)

	// 無効化された状態でも呼び出しは安全であること
	n.NotifyCycleFailure(alertThreshold, errors.New("boom"))
	n.Reset()
}

func TestNotifierDisabledWithoutRecipient(t *testing.T) {
	n := NewAlertNotifier("key", "from@example.com", "")
	be.True(t, n.client == nil)
}

func TestNotifierNilReceiverIsSafe(t *testing.T) {
	var n *AlertNotifier
	n.NotifyCycleFailure(alertThreshold, errors.New("boom"))
	n.Reset()
}
