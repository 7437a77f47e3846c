package main

import (
	"testing"
	"time"
)

func TestStopTimeout(t *testing.T) {
	tests := []struct {
		name string
		wait time.Duration
		want time.Duration
	}{
		{"unbounded readiness", 0, defaultStopTimeout},
		{"negative", -time.Second, defaultStopTimeout},
		{"bounded readiness", 2 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stopTimeout(tt.wait); got != tt.want {
				t.Errorf("stopTimeout(%v) = %v, want %v", tt.wait, got, tt.want)
			}
		})
	}
}
