// Package security はユーザー入力の無害化を提供する。
//
// TextSanitizer はSOSアラートの住所や管理者メモ、緊急連絡先の名前などの
// 自由入力テキストからHTMLを取り除く。これらの値は管理画面にそのまま表示され、
// SMS本文にも埋め込まれるため、保存前にプレーンテキストへ正規化する。
package security

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由入力テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、制御文字を取り除いた上で前後の空白を削る。
	// maxLenが0より大きい場合はルーン数で切り詰める。
	Sanitize(raw string, maxLen int) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのStrictPolicyは並行利用に対して安全。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを全て除去したプレーンテキストを返す。
// StrictPolicyはエスケープ済みHTMLを返すため、エンティティは元の文字に戻す。
func (s *textSanitizer) Sanitize(raw string, maxLen int) string {
	if raw == "" {
		return ""
	}

	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}

var _ TextSanitizer = (*textSanitizer)(nil)
