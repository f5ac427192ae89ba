package security

import (
	"strings"
	"testing"
)

func TestSanitize_StripsTags(t *testing.T) {
	sanitizer := NewTextSanitizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"空文字列は空文字列", "", ""},
		{"プレーンテキストはそのまま", "Near India Gate", "Near India Gate"},
		{"装飾タグは除去される", "<b>Near</b> gate 3", "Near gate 3"},
		{"エンティティは元の文字に戻る", "Taj & Co <i>hotel</i>", "Taj & Co hotel"},
		{"改行とタブは空白になる", "line1\nline2\tend", "line1 line2 end"},
		{"前後の空白は除去される", "   Connaught Place  ", "Connaught Place"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input, 0); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestSanitize_RemovesScript はscriptタグとその中身が除去されることを検証する。
func TestSanitize_RemovesScript(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize(`<script>alert("x")</script>Hotel Lobby<img src=x onerror=alert(1)>`, 0)
	if strings.Contains(got, "script") || strings.Contains(got, "alert") || strings.Contains(got, "onerror") {
		t.Errorf("危険な要素が残存: %q", got)
	}
	if !strings.Contains(got, "Hotel Lobby") {
		t.Errorf("本文が失われた: %q", got)
	}
}

// TestSanitize_Truncates はルーン数で切り詰めることを検証する。
func TestSanitize_Truncates(t *testing.T) {
	sanitizer := NewTextSanitizer()

	got := sanitizer.Sanitize("東京駅の丸の内北口", 3)
	if got != "東京駅" {
		t.Errorf("Sanitize = %q, want %q", got, "東京駅")
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewTextSanitizer()

	input := "<p>Gate 4 &amp; parking</p>"
	first := sanitizer.Sanitize(input, 0)
	second := sanitizer.Sanitize(first, 0)
	if first != second {
		t.Errorf("not idempotent: %q then %q", first, second)
	}
}
