// Package sos はSOSアラートの発信とライフサイクル管理を提供する。
//
// Dispatcherは1回のSOS発信を「検証、緊急連絡先と警察への一斉送信、結果の記録」
// として処理する。送信は宛先ごとに独立したgoroutineで行い、一部または全部の
// 送信に失敗してもアラート記録は必ず保存する。リクエストが失敗として返るのは
// 入力不備、検証ゲート、記録の保存失敗のいずれかの場合だけである。
package sos

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/touristguard/internal/events"
	"github.com/hitoshi/touristguard/internal/logger"
	"github.com/hitoshi/touristguard/internal/metrics"
	"github.com/hitoshi/touristguard/internal/model"
	"github.com/hitoshi/touristguard/internal/notify"
	"github.com/hitoshi/touristguard/internal/queue"
	"github.com/hitoshi/touristguard/internal/security"
)

var tracer = otel.Tracer("touristguard/sos")

const (
	// maxAddressLength は住所として保存する最大文字数。
	maxAddressLength = 500
	// defaultSendTimeout は1回の送信に許す既定の時間。
	defaultSendTimeout = 8 * time.Second
	// defaultDispatchTimeout は一斉送信全体の既定の待ち時間。
	defaultDispatchTimeout = 15 * time.Second
	// defaultPersistTimeout はアラート記録の保存に許す既定の時間。
	defaultPersistTimeout = 10 * time.Second
	// defaultPublishTimeout はイベント発行を待つ既定の時間。
	defaultPublishTimeout = 3 * time.Second
)

// UserReader はユーザーの取得に使うインターフェース。
type UserReader interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// ContactLister は緊急連絡先の取得に使うインターフェース。
type ContactLister interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.EmergencyContact, error)
}

// AlertCreator はアラート記録の保存に使うインターフェース。
type AlertCreator interface {
	Create(ctx context.Context, alert *model.SOSAlert) error
}

// Enqueuer は補助送信をキューに積むインターフェース。
type Enqueuer interface {
	Enqueue(ctx context.Context, tasks ...queue.Task) error
}

// DispatcherConfig はDispatcherの設定。
type DispatcherConfig struct {
	// FromNumber は送信元として使う番号。
	FromNumber string
	// PoliceNumber は警察の通報先番号。
	PoliceNumber string
	// SendTimeout は1回の送信に許す最大時間。
	SendTimeout time.Duration
	// DispatchTimeout は一斉送信全体の待ち時間。期限までに終わらなかった宛先はfailedとして記録する。
	DispatchTimeout time.Duration
	// PersistTimeout はアラート記録の保存に許す最大時間。
	PersistTimeout time.Duration
	// PublishTimeout はイベント発行を待つ最大時間。超過しても発信は成功として扱う。
	PublishTimeout time.Duration
	// RepeatSends は連絡先ごとの補助送信の回数。0なら補助送信を行わない。
	RepeatSends int
	// RepeatSpacing は補助送信の間隔。
	RepeatSpacing time.Duration
}

// DispatcherDeps はDispatcherの依存関係。
type DispatcherDeps struct {
	Users     UserReader
	Contacts  ContactLister
	Alerts    AlertCreator
	Channel   notify.Channel
	Repeats   Enqueuer
	Publisher events.Publisher
	Sanitizer security.TextSanitizer
	Metrics   metrics.MetricsCollector
	Logger    *slog.Logger
}

// TriggerRequest は1回のSOS発信要求。
type TriggerRequest struct {
	UserID string
	// Latitude とLongitude は必須。nilの場合はMISSING_LOCATIONになる。
	Latitude  *float64
	Longitude *float64
	Address   string
	AlertType string
}

// Summary はSOS発信の結果の要約。
type Summary struct {
	AlertID   string
	AlertType model.AlertType
	Location  model.Location
	// ContactsNotified は送信を試みた連絡先の数。
	ContactsNotified int
	// ContactsSent は送信に成功した連絡先の数。
	ContactsSent   int
	PoliceNotified bool
	CreatedAt      time.Time
}

// Dispatcher はSOS発信を処理する。
type Dispatcher struct {
	users     UserReader
	contacts  ContactLister
	alerts    AlertCreator
	channel   notify.Channel
	repeats   Enqueuer
	publisher events.Publisher
	sanitizer security.TextSanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	cfg       DispatcherConfig
	now       func() time.Time
}

// NewDispatcher はDispatcherの新しいインスタンスを生成する。
func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.DispatchTimeout <= 0 {
		cfg.DispatchTimeout = defaultDispatchTimeout
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = defaultPersistTimeout
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	if cfg.RepeatSends < 0 {
		cfg.RepeatSends = 0
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Publisher == nil {
		deps.Publisher = events.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Dispatcher{
		users:     deps.Users,
		contacts:  deps.Contacts,
		alerts:    deps.Alerts,
		channel:   deps.Channel,
		repeats:   deps.Repeats,
		publisher: deps.Publisher,
		sanitizer: deps.Sanitizer,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// recipient は一斉送信の1宛先。
type recipient struct {
	name  string
	phone string
	body  string
}

// outcome はfan-outの1スロット分の結果。
type outcome struct {
	index  int
	result notify.Result
}

// Trigger はSOSを発信する。
// 検証ゲートを通過した後は、呼び出し元のcontextがキャンセルされても送信と記録を続ける。
func (d *Dispatcher) Trigger(ctx context.Context, req TriggerRequest) (*Summary, error) {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "sos.Trigger", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	loc, alertType, err := d.validate(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("alert.type", string(alertType)))

	user, err := d.users.FindByID(ctx, req.UserID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user lookup failed")
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		span.SetStatus(codes.Error, "user not found")
		return nil, model.NewUserNotFoundError()
	}
	if !user.IsFullyVerified() {
		d.logger.WarnContext(ctx, "未検証ユーザーのSOS発信を拒否しました",
			slog.String("user_id", user.ID),
			slog.Bool("phone_verified", user.PhoneVerified),
			slog.Bool("document_verified", user.DocumentVerified),
		)
		span.SetStatus(codes.Error, "user not fully verified")
		return nil, model.NewNotFullyVerifiedError()
	}

	contacts, err := d.contacts.ListByUserID(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "contact lookup failed")
		return nil, fmt.Errorf("failed to load emergency contacts: %w", err)
	}

	// ここから先は呼び出し元の切断で中断しない
	detached := context.WithoutCancel(ctx)

	alert := &model.SOSAlert{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Location:  loc,
		AlertType: alertType,
		Status:    model.AlertStatusActive,
	}

	message := BuildMessage(user, loc.Latitude, loc.Longitude)
	total := d.cfg.RepeatSends + 1

	recipients := make([]recipient, 0, len(contacts)+1)
	for _, c := range contacts {
		recipients = append(recipients, recipient{name: c.Name, phone: c.Phone, body: WithSequence(message, 1, total)})
	}
	policeIdx := len(recipients)
	recipients = append(recipients, recipient{name: "police", phone: d.cfg.PoliceNumber, body: message})

	results := d.fanOut(detached, recipients)

	alert.ContactsNotified = make([]model.ContactNotification, len(contacts))
	for i, c := range contacts {
		res := results[i]
		n := model.ContactNotification{
			Name:               c.Name,
			Phone:              c.Phone,
			NotificationStatus: model.NotificationFailed,
		}
		if res.Sent() {
			sentAt := res.SentAt.UTC()
			n.NotificationStatus = model.NotificationSent
			n.SentAt = &sentAt
		}
		alert.ContactsNotified[i] = n
		d.metrics.RecordNotification(metrics.RecipientContact, string(n.NotificationStatus))
	}

	police := results[policeIdx]
	alert.PoliceNotified = police.Sent()
	alert.PoliceNotificationStatus = model.NotificationFailed
	if alert.PoliceNotified {
		alert.PoliceNotificationStatus = model.NotificationSent
	}
	d.metrics.RecordNotification(metrics.RecipientPolice, string(alert.PoliceNotificationStatus))

	now := d.now().UTC()
	alert.CreatedAt = now
	alert.UpdatedAt = now

	persistErr := d.persist(detached, alert)

	d.metrics.RecordDispatchLatency(time.Since(start))

	// 記録のないアラートには補助送信を行わない
	if persistErr != nil {
		d.metrics.RecordPersistenceFailure()
		span.RecordError(persistErr)
		span.SetStatus(codes.Error, "alert persistence failed")
		d.logger.ErrorContext(ctx, "SOSアラートの保存に失敗しました",
			slog.String("alert_id", alert.ID),
			slog.String("user_id", user.ID),
			slog.Int("contacts_attempted", len(contacts)),
			slog.Int("contacts_sent", alert.ContactsSentCount()),
			slog.Bool("police_notified", alert.PoliceNotified),
			slog.String("error", persistErr.Error()),
		)
		return nil, model.NewPersistenceFailureError()
	}

	d.metrics.RecordAlertDispatched(string(alertType))

	d.scheduleRepeats(detached, alert.ID, contacts, message, now)

	if err := publishEvent(detached, d.publisher, d.cfg.PublishTimeout, events.NewAlertEvent(events.TypeAlertCreated, alert, now)); err != nil {
		d.logger.WarnContext(ctx, "アラート作成イベントの発行に失敗しました",
			slog.String("alert_id", alert.ID),
			slog.String("error", err.Error()),
		)
	}

	d.logger.InfoContext(ctx, "SOSアラートを発信しました",
		slog.String("alert_id", alert.ID),
		slog.String("user_id", user.ID),
		slog.String("alert_type", string(alertType)),
		slog.Int("contacts_attempted", len(contacts)),
		slog.Int("contacts_sent", alert.ContactsSentCount()),
		slog.Bool("police_notified", alert.PoliceNotified),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	return &Summary{
		AlertID:          alert.ID,
		AlertType:        alert.AlertType,
		Location:         alert.Location,
		ContactsNotified: len(alert.ContactsNotified),
		ContactsSent:     alert.ContactsSentCount(),
		PoliceNotified:   alert.PoliceNotified,
		CreatedAt:        alert.CreatedAt,
	}, nil
}

// validate は入力を検証し、保存用の位置情報とアラート種別を返す。
func (d *Dispatcher) validate(req TriggerRequest) (model.Location, model.AlertType, error) {
	if req.Latitude == nil || req.Longitude == nil {
		return model.Location{}, "", model.NewMissingLocationError()
	}
	lat, lon := *req.Latitude, *req.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return model.Location{}, "", model.NewInvalidRequestError("緯度または経度が範囲外です")
	}

	alertType, ok := model.ParseAlertType(req.AlertType)
	if !ok {
		return model.Location{}, "", model.NewInvalidAlertTypeError(req.AlertType)
	}

	address := req.Address
	if d.sanitizer != nil {
		address = d.sanitizer.Sanitize(address, maxAddressLength)
	}
	if address == "" {
		address = model.DefaultAddress
	}

	return model.Location{Latitude: lat, Longitude: lon, Address: address}, alertType, nil
}

// fanOut は全宛先へ同時に送信し、宛先と同じ順序の結果を返す。
// DispatchTimeoutまでに結果が揃わなかった宛先はfailedになる。
func (d *Dispatcher) fanOut(ctx context.Context, recipients []recipient) []notify.Result {
	ctx, span := tracer.Start(ctx, "sos.fanOut", trace.WithAttributes(
		attribute.Int("recipients", len(recipients)),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DispatchTimeout)
	defer cancel()

	results := make([]notify.Result, len(recipients))
	for i := range results {
		results[i] = notify.Result{
			Status: model.NotificationFailed,
			Err:    fmt.Errorf("送信結果が期限内に揃いませんでした"),
		}
	}

	// バッファ付きなので、期限後に終わった送信もブロックせずに終了できる
	ch := make(chan outcome, len(recipients))

	var g errgroup.Group
	for i, r := range recipients {
		g.Go(func() error {
			ch <- outcome{index: i, result: d.send(ctx, r)}
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	received := 0
collect:
	for received < len(recipients) {
		select {
		case o := <-ch:
			results[o.index] = o.result
			received++
		case <-done:
			// 全goroutineが終了済みなので残りはバッファに入っている
			for received < len(recipients) {
				o := <-ch
				results[o.index] = o.result
				received++
			}
		case <-ctx.Done():
			d.logger.WarnContext(ctx, "一斉送信の待ち時間を超過しました",
				slog.Int("completed", received),
				slog.Int("total", len(recipients)),
			)
			break collect
		}
	}

	return results
}

// send は1宛先への送信を行う。チャネルがpanicしてもfailedとして扱う。
func (d *Dispatcher) send(ctx context.Context, r recipient) (res notify.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			res = notify.Result{Status: model.NotificationFailed, Err: fmt.Errorf("panic during send: %v", rec)}
		}
		if !res.Sent() {
			attrs := []any{
				slog.String("recipient", r.name),
				slog.String("to", logger.MaskPhone(r.phone)),
				slog.Int("status_code", res.StatusCode),
			}
			if res.Err != nil {
				attrs = append(attrs, slog.String("error", res.Err.Error()))
			}
			d.logger.WarnContext(ctx, "SMS送信に失敗しました", attrs...)
		}
	}()

	if r.phone == "" {
		return notify.Result{Status: model.NotificationFailed, Err: fmt.Errorf("宛先の電話番号がありません")}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	res = d.channel.Send(ctx, notify.Message{From: d.cfg.FromNumber, To: r.phone, Body: r.body})
	if res.Sent() && res.SentAt.IsZero() {
		res.SentAt = d.now()
	}
	return res
}

// persist はアラート記録を保存する。
func (d *Dispatcher) persist(ctx context.Context, alert *model.SOSAlert) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "sos.persist")
	defer span.End()

	if err := d.alerts.Create(ctx, alert); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create alert failed")
		return err
	}
	return nil
}

// publishEvent はtimeoutを上限にイベントを発行する。
func publishEvent(ctx context.Context, p events.Publisher, timeout time.Duration, event events.AlertEvent) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.Publish(ctx, event)
}

// scheduleRepeats は連絡先ごとの補助送信をキューに積む。失敗はログに残すだけで呼び出し元には返さない。
func (d *Dispatcher) scheduleRepeats(ctx context.Context, alertID string, contacts []*model.EmergencyContact, message string, base time.Time) {
	if d.cfg.RepeatSends == 0 || d.repeats == nil || len(contacts) == 0 {
		return
	}

	total := d.cfg.RepeatSends + 1
	tasks := make([]queue.Task, 0, len(contacts)*d.cfg.RepeatSends)
	for _, c := range contacts {
		if c.Phone == "" {
			continue
		}
		for n := 2; n <= total; n++ {
			tasks = append(tasks, queue.Task{
				ID:      uuid.NewString(),
				AlertID: alertID,
				From:    d.cfg.FromNumber,
				To:      c.Phone,
				Body:    WithSequence(message, n, total),
				DueAt:   base.Add(d.cfg.RepeatSpacing * time.Duration(n-1)),
			})
		}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.PersistTimeout)
	defer cancel()

	if err := d.repeats.Enqueue(ctx, tasks...); err != nil {
		d.logger.WarnContext(ctx, "補助送信のキュー登録に失敗しました",
			slog.String("alert_id", alertID),
			slog.Int("tasks", len(tasks)),
			slog.String("error", err.Error()),
		)
		d.metrics.RecordSupplementarySend("enqueue_failed")
	}
}
