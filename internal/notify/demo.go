package notify

import (
	"context"
	"log/slog"

	"github.com/hitoshi/touristguard/internal/logger"
)

// DemoChannel はプロバイダーの認証情報がない環境向けのチャネル。
// ネットワーク呼び出しを行わず、送信内容をログに出して成功として扱う。
type DemoChannel struct {
	logger *slog.Logger
}

// NewDemoChannel はDemoChannelを生成する。
func NewDemoChannel(logger *slog.Logger) *DemoChannel {
	return &DemoChannel{logger: logger}
}

// Name はチャネル名を返す。
func (c *DemoChannel) Name() string { return "demo" }

// Send は送信をログに記録し、常にsentを返す。
func (c *DemoChannel) Send(ctx context.Context, msg Message) Result {
	c.logger.InfoContext(ctx, "SMS (demo mode)",
		slog.String("to", logger.MaskPhone(msg.To)),
		slog.Int("body_length", len(msg.Body)),
	)
	return sentResult(0)
}

var _ Channel = (*DemoChannel)(nil)
