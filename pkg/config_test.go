package nano

import (
	"testing"
	"time"
)

func TestNodeConfigIntervalDefaults(t *testing.T) {
	var n NodeConfig
	if n.PollInterval() != 10*time.Second {
		t.Fatalf("receivable poll default: %v", n.PollInterval())
	}
	if n.WalletPollInterval() != 2*time.Minute {
		t.Fatalf("wallet poll default: %v", n.WalletPollInterval())
	}
	if n.TrackerInterval() != 30*time.Second {
		t.Fatalf("tracker default: %v", n.TrackerInterval())
	}
}

func TestNodeConfigIntervalOverrides(t *testing.T) {
	n := NodeConfig{PollSeconds: 3, WalletPollSeconds: 45, TrackerSeconds: 5}
	if n.PollInterval() != 3*time.Second {
		t.Fatalf("receivable poll override: %v", n.PollInterval())
	}
	if n.WalletPollInterval() != 45*time.Second {
		t.Fatalf("wallet poll override: %v", n.WalletPollInterval())
	}
	if n.TrackerInterval() != 5*time.Second {
		t.Fatalf("tracker override: %v", n.TrackerInterval())
	}
}
