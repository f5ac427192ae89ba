// Package logger はJSON構造化ログの初期化と、ログ出力用の秘匿化ヘルパーを提供する。
package logger

import (
	"io"
	"log/slog"
	"os"
)

// level はSetupDefaultで生成したロガーの出力レベル。
// 設定読み込み後にSetLevelで変更する。
var level = new(slog.LevelVar)

// Setup はJSON構造化ログ出力のslog.Loggerを生成して返す。
func Setup(w io.Writer, lv slog.Leveler) *slog.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: lv,
	})
	return slog.New(handler)
}

// SetupDefault はJSON構造化ログ出力をグローバルロガーとして設定する。
// 本番ではos.Stdoutを渡すことを想定している。
func SetupDefault(w io.Writer) {
	if w == nil {
		w = os.Stdout
	}
	slog.SetDefault(Setup(w, level))
}

// SetLevel はグローバルロガーの出力レベルを変更する。
func SetLevel(lv slog.Level) {
	level.Set(lv)
}

// MaskPhone は電話番号の末尾4桁以外を伏せた文字列を返す。
// 先頭の国番号（+と続く2桁まで）は残す。
func MaskPhone(phone string) string {
	runes := []rune(phone)
	if len(runes) <= 4 {
		return "****"
	}

	keepHead := 0
	if runes[0] == '+' {
		keepHead = 3
	}
	if keepHead > len(runes)-4 {
		keepHead = 0
	}

	out := make([]rune, len(runes))
	for i, r := range runes {
		if i < keepHead || i >= len(runes)-4 {
			out[i] = r
		} else {
			out[i] = '*'
		}
	}
	return string(out)
}
