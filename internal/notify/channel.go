// Package notify はSMS送信チャネルを提供する。
//
// Channel は「電話番号へテキストを送る」ことだけを抽象化する。実装は
// SMSプロバイダーを呼び出すTwilioChannelと、ネットワークを使わずに送信済みとして
// 扱うDemoChannelの2つで、起動時の設定によってどちらか一方が選ばれる。
package notify

import (
	"context"
	"time"

	"github.com/hitoshi/touristguard/internal/model"
)

// Message は1通のSMS。
type Message struct {
	From string
	To   string
	Body string
}

// Result は1回の送信試行の結果。
// Channel.Sendはエラーを返さず、失敗は全てStatus=failedとして表現する。
type Result struct {
	Status model.NotificationStatus
	// StatusCode はプロバイダーのHTTPステータス。通信自体に失敗した場合は0。
	StatusCode int
	// Err は失敗の原因。ログとリトライ判定のためだけに使う。
	Err    error
	SentAt time.Time
}

// Sent は送信に成功したかを返す。
func (r Result) Sent() bool {
	return r.Status == model.NotificationSent
}

// Channel はSMS送信の抽象。
// 実装はpanicやエラーを呼び出し元に伝播させてはならない。
type Channel interface {
	Send(ctx context.Context, msg Message) Result
	// Name はログとメトリクス用のチャネル名。
	Name() string
}

func sentResult(code int) Result {
	return Result{Status: model.NotificationSent, StatusCode: code, SentAt: time.Now()}
}

func failedResult(code int, err error) Result {
	return Result{Status: model.NotificationFailed, StatusCode: code, Err: err}
}
