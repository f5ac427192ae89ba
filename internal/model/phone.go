package model

import "strings"

// NormalizePhone は電話番号をE.164形式に整える。
// +で始まらない番号はインドの番号とみなし、+91を補う。
// 10桁未満の番号はfalseを返す。
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	phone := b.String()

	switch {
	case strings.HasPrefix(phone, "+"):
		if len(phone) < 8 {
			return "", false
		}
		return phone, true
	case len(phone) == 10:
		return "+91" + phone, true
	case len(phone) == 12 && strings.HasPrefix(phone, "91"):
		return "+" + phone, true
	case len(phone) >= 10:
		return "+91" + phone[len(phone)-10:], true
	default:
		return "", false
	}
}
