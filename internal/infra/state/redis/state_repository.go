package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"
)

// RedisStateRepository 负责房间的短期状态：变更通知 (Pub/Sub)、预览图缓存、预览任务去抖标记。
// 持久数据都在数据库里，这里的 key 丢失只会让预览晚一点生成。
type RedisStateRepository struct {
	client     *redis.Client
	keyPrefix  string
	previewTTL time.Duration
}

var (
	_ repository.ChangeNotifier = (*RedisStateRepository)(nil)
	_ repository.PreviewStore   = (*RedisStateRepository)(nil)
)

// NewRedisStateRepository 创建 RedisStateRepository 实例，previewTTL 为 0 表示预览不过期
func NewRedisStateRepository(client *redis.Client, keyPrefix string, previewTTL time.Duration) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "cc:" // collaborative canvas
	}
	return &RedisStateRepository{
		client:     client,
		keyPrefix:  keyPrefix,
		previewTTL: previewTTL,
	}
}

// --- Key Generation Helpers ---
func roomPubSubChannel(prefix string, roomID uint) string {
	return fmt.Sprintf("%sroom:%d:pubsub", prefix, roomID)
}

func roomPubSubPattern(prefix string) string {
	return prefix + "room:*:pubsub"
}

func roomPreviewKey(prefix string, roomID uint) string {
	return fmt.Sprintf("%sroom:%d:preview", prefix, roomID)
}

func roomPreviewPendingKey(prefix string, roomID uint) string {
	return fmt.Sprintf("%sroom:%d:preview_pending", prefix, roomID)
}

// Publish 把变更提示发布到房间频道
func (r *RedisStateRepository) Publish(ctx context.Context, notice domain.ChangeNotice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("redis: failed to marshal notice for room %d: %w", notice.RoomID, err)
	}
	channel := roomPubSubChannel(r.keyPrefix, notice.RoomID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish to %s: %w", channel, err)
	}
	return nil
}

// SubscribeAll 订阅所有房间的变更频道。handler 在单独的 goroutine 中被依次调用，
// 返回的 stop 用于取消订阅；ctx 结束时也会退出。
func (r *RedisStateRepository) SubscribeAll(ctx context.Context, handler func(domain.ChangeNotice)) (stop func() error) {
	pubsub := r.client.PSubscribe(ctx, roomPubSubPattern(r.keyPrefix))
	log := logrus.WithField("component", "redis_subscriber")

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					log.Info("Subscription channel closed")
					return
				}
				var notice domain.ChangeNotice
				if err := json.Unmarshal([]byte(msg.Payload), &notice); err != nil {
					log.WithError(err).WithField("channel", msg.Channel).Warn("Dropping malformed change notice")
					continue
				}
				handler(notice)
			}
		}
	}()
	return pubsub.Close
}

// PutPreview 缓存房间预览图
func (r *RedisStateRepository) PutPreview(ctx context.Context, roomID uint, png []byte) error {
	key := roomPreviewKey(r.keyPrefix, roomID)
	if err := r.client.Set(ctx, key, png, r.previewTTL).Err(); err != nil {
		return fmt.Errorf("redis: failed to set preview for room %d on key %s: %w", roomID, key, err)
	}
	return nil
}

// GetPreview 读取房间预览图
func (r *RedisStateRepository) GetPreview(ctx context.Context, roomID uint) ([]byte, error) {
	key := roomPreviewKey(r.keyPrefix, roomID)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrPreviewNotFound
		}
		return nil, fmt.Errorf("redis: failed to get preview for room %d from %s: %w", roomID, key, err)
	}
	return data, nil
}

// TryMarkPreviewPending 用 SETNX 做去抖：窗口内只有第一次调用返回 true
func (r *RedisStateRepository) TryMarkPreviewPending(ctx context.Context, roomID uint, window time.Duration) (bool, error) {
	key := roomPreviewPendingKey(r.keyPrefix, roomID)
	ok, err := r.client.SetNX(ctx, key, "1", window).Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to mark preview pending for room %d: %w", roomID, err)
	}
	return ok, nil
}

// ClearPreviewPending 删除去抖标记，任务开始执行时调用，使其后的修改能再次触发渲染
func (r *RedisStateRepository) ClearPreviewPending(ctx context.Context, roomID uint) error {
	if err := r.client.Del(ctx, roomPreviewPendingKey(r.keyPrefix, roomID)).Err(); err != nil {
		return fmt.Errorf("redis: failed to clear preview pending for room %d: %w", roomID, err)
	}
	return nil
}
