package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultTopic はアラートイベントの既定トピック。
const DefaultTopic = "sos-alerts"

const (
	// recordDeliveryTimeout はレコード1件の配送を諦めるまでの時間。
	recordDeliveryTimeout = 5 * time.Second
	// recordRetries はレコード1件の再試行回数の上限。
	recordRetries = 3
)

// KafkaPublisher はfranz-goでイベントをKafkaに書き込むPublisher。
// レコードキーはアラートIDで、同一アラートのイベントは同じパーティションに入る。
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
}

// NewKafkaPublisher はKafkaPublisherの新しいインスタンスを生成する。
// ブローカーへの接続は最初の書き込み時に行われる。
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("Kafkaブローカーが指定されていません")
	}
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordDeliveryTimeout(recordDeliveryTimeout),
		kgo.RecordRetries(recordRetries),
	)
	if err != nil {
		return nil, fmt.Errorf("Kafkaクライアントの生成に失敗しました: %w", err)
	}
	return &KafkaPublisher{client: client, topic: topic}, nil
}

// Publish はイベントをJSONにして同期的に書き込む。
// ctxの期限か配送タイムアウトのどちらか早い方で失敗として戻る。
func (p *KafkaPublisher) Publish(ctx context.Context, event AlertEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("イベントのエンコードに失敗しました: %w", err)
	}

	record := &kgo.Record{
		Key:   []byte(event.AlertID),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event-type", Value: []byte(event.Type)},
		},
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("イベントの書き込みに失敗しました (topic=%s): %w", p.topic, err)
	}
	return nil
}

// Close は未送信のレコードをフラッシュしてクライアントを閉じる。
func (p *KafkaPublisher) Close() {
	p.client.Close()
}

var _ Publisher = (*KafkaPublisher)(nil)
