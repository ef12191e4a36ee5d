package utils

import (
	"testing"
	"time"
)

func TestRound6(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{1.23456749, 1.234567},
		{1.2345675, 1.234568},
		{-0.0000005, -0.000001},
		{100, 100},
	}
	for _, tt := range tests {
		if got := Round6(tt.in); got != tt.want {
			t.Errorf("Round6(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Round6Ptr(nil) != nil {
		t.Error("nil stays nil")
	}
}

func TestMaskSecret(t *testing.T) {
	if got := MaskSecret("change-me"); got != "*****e-me" {
		t.Errorf("MaskSecret = %q", got)
	}
	if got := MaskSecret("abc"); got != "***" {
		t.Errorf("short secret = %q", got)
	}
}

func TestBarDuration(t *testing.T) {
	if d, ok := BarDuration("4H"); !ok || d != 4*time.Hour {
		t.Errorf("4H = %v %v", d, ok)
	}
	if IsValidBar("4h") {
		t.Error("bar labels are case sensitive")
	}
	if SafeInstID("ETH/USDT") != "ETH-USDT" {
		t.Error("slash should be replaced")
	}
}
