package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey は遅延送信タスクを保持するソート済みセットのキー。
const DefaultKey = "touristguard:delivery:pending"

// Connect はREDIS_URLからクライアントを生成し、疎通を確認する。
// URLが空の場合はnilを返す。
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗しました: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの接続確認に失敗しました: %w", err)
	}
	return client, nil
}

// RedisQueue はRedisのソート済みセットを使ったQueueの実装。
// スコアは送信予定時刻のUnixミリ秒、メンバーはJSONエンコードしたTask。
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue はRedisQueueの新しいインスタンスを生成する。
// keyが空の場合はDefaultKeyを使う。
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue はタスクを1回のZADDでまとめて追加する。
func (q *RedisQueue) Enqueue(ctx context.Context, tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}

	members := make([]redis.Z, 0, len(tasks))
	for _, t := range tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("タスクのエンコードに失敗しました: %w", err)
		}
		members = append(members, redis.Z{
			Score:  float64(t.DueAt.UnixMilli()),
			Member: string(data),
		})
	}

	if err := q.client.ZAdd(ctx, q.key, members...).Err(); err != nil {
		return fmt.Errorf("タスクの追加に失敗しました: %w", err)
	}
	return nil
}

// ClaimDue は期限到来済みのメンバーを取得し、ZREMに成功したものだけを返す。
// 同じメンバーを複数のワーカーが同時に取得しても、削除できるのは1つだけになる。
func (q *RedisQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	count := int64(limit)
	if limit <= 0 {
		count = -1
	}

	members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: count,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("期限到来タスクの取得に失敗しました: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	pipe := q.client.Pipeline()
	rems := make([]*redis.IntCmd, len(members))
	for i, m := range members {
		rems[i] = pipe.ZRem(ctx, q.key, m)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("タスクの取り出しに失敗しました: %w", err)
	}

	tasks := make([]Task, 0, len(members))
	for i, m := range members {
		if rems[i].Val() == 0 {
			continue
		}
		var t Task
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			// 壊れたメンバーは既に削除済みなので読み飛ばす
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// Len はキューに残っているタスク数を返す。
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("キュー長の取得に失敗しました: %w", err)
	}
	return int(n), nil
}

var _ Queue = (*RedisQueue)(nil)
