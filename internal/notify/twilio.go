package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hitoshi/touristguard/internal/logger"
	"github.com/hitoshi/touristguard/internal/metrics"
)

var tracer = otel.Tracer("touristguard/notify")

const (
	// defaultBaseURL はTwilio REST APIのベースURL。
	defaultBaseURL = "https://api.twilio.com"
	// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
	maxErrorBody = 4096
)

// TwilioConfig はTwilioChannelの設定。
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	BaseURL    string
	// Timeout は1回の送信に許す最大時間。呼び出し元のcontextより短い方が優先される。
	Timeout time.Duration
}

// TwilioChannel はTwilio互換のMessages APIでSMSを送るチャネル。
type TwilioChannel struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	cfg        TwilioConfig
	endpoint   string // テスト用にエンドポイントを差し替え可能
}

// NewTwilioChannel はTwilioChannelの新しいインスタンスを生成する。
func NewTwilioChannel(httpClient *http.Client, logger *slog.Logger, m metrics.MetricsCollector, cfg TwilioConfig) *TwilioChannel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if m == nil {
		m = metrics.Nop{}
	}
	return &TwilioChannel{
		httpClient: httpClient,
		logger:     logger,
		metrics:    m,
		cfg:        cfg,
		endpoint: fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
			strings.TrimRight(cfg.BaseURL, "/"), url.PathEscape(cfg.AccountSID)),
	}
}

// Name はチャネル名を返す。
func (c *TwilioChannel) Name() string { return "twilio" }

// twilioError はTwilioのエラーレスポンス。
type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send はSMSを1通送信する。2xx以外、タイムアウト、通信エラーは全てfailedになる。
func (c *TwilioChannel) Send(ctx context.Context, msg Message) (res Result) {
	ctx, span := tracer.Start(ctx, "notify.twilio.send")
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			res = failedResult(0, fmt.Errorf("panic during SMS send: %v", rec))
		}
		if !res.Sent() {
			span.SetStatus(codes.Error, "sms send failed")
			if res.Err != nil {
				span.RecordError(res.Err)
			}
		}
		span.SetAttributes(attribute.Int("http.status_code", res.StatusCode))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("To", msg.To)
	form.Set("From", msg.From)
	form.Set("Body", msg.Body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failedResult(0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err))
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "SMSプロバイダーの呼び出しに失敗しました",
			slog.String("to", logger.MaskPhone(msg.To)),
			slog.String("error", err.Error()),
		)
		return failedResult(0, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordProviderStatus(resp.StatusCode)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return sentResult(resp.StatusCode)
	}

	var apiErr twilioError
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	_ = json.Unmarshal(body, &apiErr)

	c.logger.WarnContext(ctx, "SMSプロバイダーがエラーステータスを返しました",
		slog.String("to", logger.MaskPhone(msg.To)),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("provider_code", apiErr.Code),
		slog.String("provider_message", apiErr.Message),
	)
	return failedResult(resp.StatusCode, fmt.Errorf("SMSプロバイダーがステータス %d を返しました", resp.StatusCode))
}

var _ Channel = (*TwilioChannel)(nil)
