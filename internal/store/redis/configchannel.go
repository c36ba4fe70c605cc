package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
)

// ConfigChannel distributes engine configuration over Redis. The current
// document lives at "{channel}:current"; updates are announced on the
// PubSub channel itself.
type ConfigChannel struct {
	client  *goredis.Client
	channel string
	log     zerolog.Logger
}

// NewConfigChannel creates a config channel named channel.
func NewConfigChannel(client *goredis.Client, channel string, log zerolog.Logger) *ConfigChannel {
	return &ConfigChannel{client: client, channel: channel, log: log}
}

func (c *ConfigChannel) currentKey() string { return c.channel + ":current" }

// Publish stores e as the current document and announces it.
func (c *ConfigChannel) Publish(ctx context.Context, e *config.Engine) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode engine config: %w", err)
	}
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.currentKey(), b, 0)
	pipe.Publish(ctx, c.channel, b)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish engine config: %w", err)
	}
	return nil
}

// Current loads the stored document. It returns nil, nil when none exists.
func (c *ConfigChannel) Current(ctx context.Context) (*config.Engine, error) {
	b, err := c.client.Get(ctx, c.currentKey()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get engine config: %w", err)
	}
	return config.ParseEngine(b)
}

// Watch calls apply with every valid document announced on the channel
// until ctx is cancelled. Invalid documents are logged and skipped so a bad
// publish never replaces a good configuration.
func (c *ConfigChannel) Watch(ctx context.Context, apply func(*config.Engine)) error {
	sub := c.client.Subscribe(ctx, c.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.channel, err)
	}
	c.log.Info().Str("channel", c.channel).Msg("watching engine config")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if e, ok := c.decode(msg.Payload); ok {
				apply(e)
			}
		}
	}
}

func (c *ConfigChannel) decode(payload string) (*config.Engine, bool) {
	e, err := config.ParseEngine([]byte(payload))
	if err != nil {
		c.log.Error().Err(err).Str("channel", c.channel).Msg("rejected engine config")
		return nil, false
	}
	c.log.Info().Int("version", e.Version).Int("rigidity", e.Rigidity.Global).Msg("engine config received")
	return e, true
}
