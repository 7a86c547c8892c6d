package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultStopChannel is the pub/sub channel carrying stop requests.
const DefaultStopChannel = "mammoth:stop"

// StopListener turns a message on a pub/sub channel into a local stop request,
// letting an operator stop every worker process at once.
type StopListener struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// NewStopListener creates a listener on channel (DefaultStopChannel when empty).
func NewStopListener(client redis.UniversalClient, channel string, logger *slog.Logger) *StopListener {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultStopChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StopListener{client: client, channel: channel, logger: logger.With("component", "stop_listener")}
}

// Listen blocks until a stop message arrives, calling onStop with its payload, or until
// ctx is done. It returns nil in both cases and an error only if subscribing fails.
func (l *StopListener) Listen(ctx context.Context, onStop func(reason string)) error {
	sub := l.client.Subscribe(ctx, l.channel)
	defer func() {
		if err := sub.Close(); err != nil {
			l.logger.DebugContext(ctx, "close stop subscription", "error", err)
		}
	}()

	// Wait for the subscription confirmation so a publish right after Listen starts is not missed.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", l.channel, err)
	}
	l.logger.InfoContext(ctx, "listening for remote stop requests", "channel", l.channel)

	select {
	case <-ctx.Done():
		return nil
	case msg, ok := <-sub.Channel():
		if !ok {
			return errors.New("stop subscription closed")
		}
		l.logger.InfoContext(ctx, "remote stop requested", "channel", l.channel, "reason", msg.Payload)
		onStop(msg.Payload)
		return nil
	}
}

// PublishStop broadcasts a stop request and returns how many listeners received it.
func PublishStop(ctx context.Context, client redis.UniversalClient, channel, reason string) (int64, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultStopChannel
	}
	n, err := client.Publish(ctx, channel, reason).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return n, nil
}
