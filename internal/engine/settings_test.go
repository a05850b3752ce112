package engine

import "testing"

func TestThreshold(t *testing.T) {
	tests := []struct {
		duration, percent, want int
	}{
		{200, 50, 100},
		{10, 50, 30},
		{0, 50, 30},
		{61, 50, 30},
		{90, 75, 67},
		{300, 100, 240},
		{1000, 50, 240},
		{480, 50, 240},
		{479, 50, 239},
	}
	for _, tt := range tests {
		if got := Threshold(tt.duration, tt.percent); got != tt.want {
			t.Errorf("Threshold(%d, %d) = %d, want %d", tt.duration, tt.percent, got, tt.want)
		}
	}
}

func TestSettings_Percent(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 50},
		{10, 50},
		{50, 50},
		{75, 75},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if got := (Settings{ScrobblePercent: tt.in}).Percent(); got != tt.want {
			t.Errorf("Settings{%d}.Percent() = %d, want %d", tt.in, got, tt.want)
		}
	}
}
