package minigames

import "testing"

func TestGuessReward(t *testing.T) {
	tests := []struct {
		attempts int
		want     int64
	}{
		{attempts: 1, want: 185}, // floor(100 * 13/7)
		{attempts: 4, want: 142}, // floor(100 * 10/7)
		{attempts: 7, want: 100},
	}
	for _, tc := range tests {
		if got := guessReward(tc.attempts); got != tc.want {
			t.Fatalf("attempts=%d got=%d want=%d", tc.attempts, got, tc.want)
		}
	}
}

func TestSpeedReward(t *testing.T) {
	tests := []struct {
		clicks int64
		want   int64
	}{
		{clicks: 0, want: 0},
		{clicks: 40, want: 80},
		{clicks: 150, want: 300},
		{clicks: 300, want: 600},
		// 30 clicks/s over the window is the ceiling
		{clicks: 301, want: 600},
		{clicks: 100000, want: 600},
		{clicks: -5, want: 0},
	}
	for _, tc := range tests {
		if got := speedReward(tc.clicks); got != tc.want {
			t.Fatalf("clicks=%d got=%d want=%d", tc.clicks, got, tc.want)
		}
	}
}
