package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// RedisCache shares liveness state across server instances. Presence is a
// plain key with TTL; typing is a per-conversation sorted set scored by
// expiry so expired entries can be trimmed in one call.
type RedisCache struct {
	cli *redis.Client
}

func NewRedisCache(url string) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	cli := redis.NewClient(opt)
	if err := cli.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &RedisCache{cli: cli}, nil
}

func (c *RedisCache) Close() error {
	return c.cli.Close()
}

func presenceKey(userID uuid.UUID) string {
	return "presence:" + userID.String()
}

func typingKey(conversationID uuid.UUID) string {
	return "typing:" + conversationID.String()
}

func (c *RedisCache) TouchPresence(ctx context.Context, userID uuid.UUID) error {
	return c.cli.Set(ctx, presenceKey(userID), "1", PresenceTTL).Err()
}

func (c *RedisCache) ClearPresence(ctx context.Context, userID uuid.UUID) error {
	return c.cli.Del(ctx, presenceKey(userID)).Err()
}

func (c *RedisCache) Online(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := c.cli.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisCache) OnlineMany(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	pipe := c.cli.Pipeline()
	cmds := make([]*redis.IntCmd, len(userIDs))
	for i, id := range userIDs {
		cmds[i] = pipe.Exists(ctx, presenceKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for i, id := range userIDs {
		out[id] = cmds[i].Val() > 0
	}
	return out, nil
}

func (c *RedisCache) SetTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	deadline := float64(time.Now().Add(TypingTTL).UnixMilli())
	pipe := c.cli.Pipeline()
	pipe.ZAdd(ctx, typingKey(conversationID), redis.Z{Score: deadline, Member: userID.String()})
	pipe.Expire(ctx, typingKey(conversationID), TypingTTL*2)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) ClearTyping(ctx context.Context, conversationID, userID uuid.UUID) error {
	return c.cli.ZRem(ctx, typingKey(conversationID), userID.String()).Err()
}

func (c *RedisCache) Typing(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	now := time.Now().UnixMilli()
	key := typingKey(conversationID)

	pipe := c.cli.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(now, 10))
	alive := pipe.ZRange(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	var users []uuid.UUID
	for _, member := range alive.Val() {
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		users = append(users, id)
	}
	return users, nil
}
