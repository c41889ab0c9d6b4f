package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultPushChannel is the Redis channel push workers subscribe to.
const DefaultPushChannel = "push:outbound"

type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisGateway hands messages to push workers over Redis pub/sub. A message
// that reaches no subscriber counts as failed for every token.
type RedisGateway struct {
	rdb     publisher
	channel string
}

func NewRedisGateway(rdb publisher, channel string) *RedisGateway {
	if channel == "" {
		channel = DefaultPushChannel
	}
	return &RedisGateway{rdb: rdb, channel: channel}
}

func (g *RedisGateway) Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (SendResult, error) {
	if len(tokens) == 0 {
		return SendResult{}, nil
	}
	failed := SendResult{FailureCount: len(tokens)}

	msg, err := json.Marshal(pushRequest{Tokens: tokens, Title: title, Body: body, Data: data})
	if err != nil {
		return failed, fmt.Errorf("encode push message: %w", err)
	}
	receivers, err := g.rdb.Publish(ctx, g.channel, string(msg)).Result()
	if err != nil {
		return failed, fmt.Errorf("publish to %s: %w", g.channel, err)
	}
	if receivers == 0 {
		return failed, fmt.Errorf("no push worker subscribed to %s", g.channel)
	}
	return SendResult{SuccessCount: len(tokens)}, nil
}
