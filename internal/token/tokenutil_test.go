package token

import "testing"

func TestEstimateFast(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", "   \n\t", 0},
		{"single word", "hi", 1},
		{"longer text uses rune quarter", "aaaaaaaaaaaaaaaa", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateFast(tt.text); got != tt.want {
				t.Errorf("EstimateFast(%q) = %d, want %d", tt.text, got, tt.want)
			}
		})
	}
}

func TestCountIsPositiveForText(t *testing.T) {
	if got := Count("hello there, how are you today?"); got <= 0 {
		t.Fatalf("expected positive token count, got %d", got)
	}
}
