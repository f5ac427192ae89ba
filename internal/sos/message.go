package sos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hitoshi/touristguard/internal/model"
)

// mapsBaseURL は位置情報リンクのベースURL。
const mapsBaseURL = "https://maps.google.com/maps?q="

// MapsLink は緯度経度から地図リンクを生成する。
func MapsLink(lat, lon float64) string {
	return mapsBaseURL + formatCoord(lat) + "," + formatCoord(lon)
}

// BuildMessage は緊急連絡先と警察に送るSOS本文を組み立てる。
func BuildMessage(user *model.User, lat, lon float64) string {
	var b strings.Builder
	b.WriteString("SOS! I need help.\n")
	fmt.Fprintf(&b, "Name: %s\n", user.Name)
	fmt.Fprintf(&b, "Phone: %s\n", user.Phone)
	fmt.Fprintf(&b, "Location: %s", MapsLink(lat, lon))
	return b.String()
}

// WithSequence は本文に送信回数の注記を付ける。totalが1以下なら本文をそのまま返す。
func WithSequence(body string, n, total int) string {
	if total <= 1 {
		return body
	}
	return fmt.Sprintf("%s (Alert %d/%d)", body, n, total)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
