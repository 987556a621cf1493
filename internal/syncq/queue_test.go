package syncq

import (
	"testing"
	"time"
)

func TestQueueRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	queue, err := Load()
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("fresh queue has %d entries", len(queue))
	}

	now := time.Now().UTC().Truncate(time.Second)
	if err := Push(Command{Kind: KindTap, Taps: 5, IdempotencyKey: "k1", QueuedAt: now}); err != nil {
		t.Fatalf("push tap: %v", err)
	}
	if err := Push(Command{Kind: KindBuy, UpgradeID: "clicker", IdempotencyKey: "k2", QueuedAt: now}); err != nil {
		t.Fatalf("push buy: %v", err)
	}

	queue, err = Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("got %d entries want 2", len(queue))
	}
	if queue[0].Kind != KindTap || queue[0].Taps != 5 || queue[0].IdempotencyKey != "k1" {
		t.Fatalf("tap entry mangled: %+v", queue[0])
	}
	if queue[1].Kind != KindBuy || queue[1].UpgradeID != "clicker" {
		t.Fatalf("buy entry mangled: %+v", queue[1])
	}

	if err := Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	queue, err = Load()
	if err != nil {
		t.Fatalf("load after clear: %v", err)
	}
	if len(queue) != 0 {
		t.Fatalf("queue not cleared: %d entries", len(queue))
	}
}

func TestCommandDescribe(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Kind: KindTap, Taps: 3}, "tap x3"},
		{Command{Kind: KindBuy, UpgradeID: "vipStatus"}, "buy vipStatus"},
		{Command{Kind: Kind("mystery")}, "mystery"},
	}
	for _, tc := range tests {
		if got := tc.cmd.Describe(); got != tc.want {
			t.Fatalf("got %q want %q", got, tc.want)
		}
	}
}
