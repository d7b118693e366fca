package telegram

import (
	"strings"
	"testing"

	"matrix-sync/internal/services"
)

func TestFormatSignup(t *testing.T) {
	referrer := uint(3)
	msg := FormatSignup(&services.UserSignup{
		UserID:        7,
		WalletAddress: "0x1111111111111111111111111111111111111111",
		FullName:      "alice",
		ReferrerID:    &referrer,
	})

	for _, want := range []string{"#7", "alice", "0x1111111111111111111111111111111111111111", "Referrer: #3"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	root := FormatSignup(&services.UserSignup{UserID: 1})
	if !strings.Contains(root, "Referrer: none") || !strings.Contains(root, "Name: -") {
		t.Errorf("unexpected root message %q", root)
	}
}

func TestNewNotifierDisabled(t *testing.T) {
	n, err := NewNotifier("", 0)
	if err != nil || n != nil {
		t.Errorf("expected disabled notifier, got %v %v", n, err)
	}
}
