package utils

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: 100 * time.Millisecond, Max: time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{60, time.Second},
	}
	for _, tt := range tests {
		if got := b.Delay(tt.attempt); got != tt.want {
			t.Fatalf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	uncapped := ExponentialBackoff{Base: time.Millisecond}
	if got := uncapped.Delay(11); got != 1024*time.Millisecond {
		t.Fatalf("uncapped Delay(11) = %v", got)
	}
}

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff(50 * time.Millisecond)
	if b.Delay(0) != 0 {
		t.Fatalf("expected no delay before the first attempt")
	}
	for attempt := 1; attempt <= 3; attempt++ {
		if got := b.Delay(attempt); got != 50*time.Millisecond {
			t.Fatalf("Delay(%d) = %v", attempt, got)
		}
	}
}
