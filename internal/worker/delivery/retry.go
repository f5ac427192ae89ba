package delivery

import (
	"time"

	"github.com/hitoshi/touristguard/internal/notify"
)

// DeliveryResult は送信結果の分類。
type DeliveryResult int

const (
	// DeliveryResultSent は送信成功。
	DeliveryResultSent DeliveryResult = iota
	// DeliveryResultRetry はバックオフ後に再送するべき失敗（通信エラー/429/5xx）。
	DeliveryResultRetry
	// DeliveryResultDrop は再送しても成功しない失敗（429以外の4xx）。
	DeliveryResultDrop
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 2 * time.Second
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = time.Minute
)

// String はログ出力用の名前を返す。
func (r DeliveryResult) String() string {
	switch r {
	case DeliveryResultSent:
		return "sent"
	case DeliveryResultRetry:
		return "retry"
	default:
		return "dropped"
	}
}

// ClassifyResult は送信結果を分類する。
// StatusCodeが0の失敗はタイムアウトや接続エラーとして再送対象にする。
func ClassifyResult(res notify.Result) DeliveryResult {
	if res.Sent() {
		return DeliveryResultSent
	}
	code := res.StatusCode
	switch {
	case code == 0:
		return DeliveryResultRetry
	case code == 429:
		return DeliveryResultRetry
	case code >= 500:
		return DeliveryResultRetry
	default:
		return DeliveryResultDrop
	}
}

// CalculateBackoff は試行回数に基づいて指数バックオフ遅延を計算する。
// 初回2秒、2倍ずつ増加、最大1分。
func CalculateBackoff(attempt int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
