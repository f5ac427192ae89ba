// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recipient kinds
const (
	RecipientContact = "contact"
	RecipientPolice  = "police"
)

// MetricsCollector はメトリクス収集のインターフェース。
// SOS送信、状態遷移、補助送信ワーカーから利用する。
type MetricsCollector interface {
	RecordAlertDispatched(alertType string)
	RecordNotification(recipient, status string)
	RecordDispatchLatency(duration time.Duration)
	RecordPersistenceFailure()
	RecordAlertTransition(status string)
	RecordSupplementarySend(outcome string)
	RecordProviderStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	alertsDispatched   *prometheus.CounterVec
	notifications      *prometheus.CounterVec
	dispatchLatency    prometheus.Histogram
	persistenceFailure prometheus.Counter
	transitions        *prometheus.CounterVec
	supplementarySends *prometheus.CounterVec
	providerStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		alertsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touristguard_sos_alerts_total",
			Help: "記録されたSOSアラートの合計数（種別ごと）",
		}, []string{"alert_type"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touristguard_sos_notifications_total",
			Help: "SOS通知の送信結果（宛先種別・結果ごと）",
		}, []string{"recipient", "status"}),
		dispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "touristguard_sos_dispatch_seconds",
			Help:    "SOS受付から記録完了までの所要時間（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30},
		}),
		persistenceFailure: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "touristguard_sos_persistence_failures_total",
			Help: "SOSアラートの保存に失敗した回数",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touristguard_sos_transitions_total",
			Help: "アラートの状態遷移数（遷移先ごと）",
		}, []string{"status"}),
		supplementarySends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touristguard_supplementary_sends_total",
			Help: "補助送信の処理結果（sent/retry/dropped/enqueue_failed）",
		}, []string{"outcome"}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "touristguard_sms_provider_status_total",
			Help: "SMSプロバイダーのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.alertsDispatched,
		c.notifications,
		c.dispatchLatency,
		c.persistenceFailure,
		c.transitions,
		c.supplementarySends,
		c.providerStatus,
	)

	return c
}

// RecordAlertDispatched はアラートの記録完了を種別ごとに数える。
func (c *Collector) RecordAlertDispatched(alertType string) {
	c.alertsDispatched.WithLabelValues(alertType).Inc()
}

// RecordNotification は宛先1件の送信結果を記録する。
func (c *Collector) RecordNotification(recipient, status string) {
	c.notifications.WithLabelValues(recipient, status).Inc()
}

// RecordDispatchLatency はSOS処理全体の所要時間を記録する。
func (c *Collector) RecordDispatchLatency(duration time.Duration) {
	c.dispatchLatency.Observe(duration.Seconds())
}

// RecordPersistenceFailure はアラート保存失敗を記録する。
func (c *Collector) RecordPersistenceFailure() {
	c.persistenceFailure.Inc()
}

// RecordAlertTransition は終端状態への遷移を記録する。
func (c *Collector) RecordAlertTransition(status string) {
	c.transitions.WithLabelValues(status).Inc()
}

// RecordSupplementarySend は補助送信の結果を記録する。
func (c *Collector) RecordSupplementarySend(outcome string) {
	c.supplementarySends.WithLabelValues(outcome).Inc()
}

// RecordProviderStatus はSMSプロバイダーのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderStatus(statusCode int) {
	c.providerStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordAlertDispatched(string)        {}
func (Nop) RecordNotification(string, string)   {}
func (Nop) RecordDispatchLatency(time.Duration) {}
func (Nop) RecordPersistenceFailure()           {}
func (Nop) RecordAlertTransition(string)        {}
func (Nop) RecordSupplementarySend(string)      {}
func (Nop) RecordProviderStatus(int)            {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
