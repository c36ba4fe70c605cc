package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// FeedConfig configures the candle stream feed.
type FeedConfig struct {
	Symbols []string
	TFs     []int
	// Group and Consumer name the Redis consumer group member.
	Group    string
	Consumer string
	Block    time.Duration
	Count    int64
	Logger   zerolog.Logger
}

type seriesRef struct {
	symbol string
	tf     int
}

// Feed reads candle upserts from the per-series streams
// "candle:{tf}s:{symbol}" through a consumer group. It implements
// model.CandleFeed.
type Feed struct {
	client  *goredis.Client
	cfg     FeedConfig
	streams []string
	series  map[string]seriesRef
}

// NewFeed creates a feed over every (symbol, tf) stream.
func NewFeed(client *goredis.Client, cfg FeedConfig) *Feed {
	if cfg.Group == "" {
		cfg.Group = "hermes"
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "worker-1"
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	f := &Feed{client: client, cfg: cfg, series: make(map[string]seriesRef)}
	for _, sym := range cfg.Symbols {
		for _, tf := range cfg.TFs {
			key := model.StreamKey(sym, tf)
			if _, dup := f.series[key]; dup {
				continue
			}
			f.streams = append(f.streams, key)
			f.series[key] = seriesRef{symbol: sym, tf: tf}
		}
	}
	return f
}

// Streams returns the stream keys the feed consumes.
func (f *Feed) Streams() []string { return f.streams }

// Run ensures the consumer group, drains messages left pending by a previous
// run, then blocks on XREADGROUP until ctx is cancelled.
func (f *Feed) Run(ctx context.Context, out chan<- model.CandleUpdate) error {
	if len(f.streams) == 0 {
		return errors.New("feed has no streams")
	}
	if err := f.ensureGroup(ctx); err != nil {
		return err
	}
	// "0" re-reads this consumer's pending entries, ">" reads new ones.
	if err := f.consume(ctx, "0", out); err != nil {
		return err
	}
	f.cfg.Logger.Info().Int("streams", len(f.streams)).Str("group", f.cfg.Group).Msg("feed started")
	for {
		if err := f.consume(ctx, ">", out); err != nil {
			return err
		}
	}
}

func (f *Feed) ensureGroup(ctx context.Context) error {
	for _, stream := range f.streams {
		err := f.client.XGroupCreateMkStream(ctx, stream, f.cfg.Group, "$").Err()
		if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("xgroup create %s: %w", stream, err)
		}
	}
	return nil
}

// consume performs one XREADGROUP round. For pending reads ("0") it loops
// until the backlog is empty.
func (f *Feed) consume(ctx context.Context, id string, out chan<- model.CandleUpdate) error {
	args := make([]string, len(f.streams)*2)
	for i, s := range f.streams {
		args[i] = s
		args[len(f.streams)+i] = id
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		block := f.cfg.Block
		if id != ">" {
			block = -1
		}
		results, err := f.client.XReadGroup(ctx, &goredis.XReadGroupArgs{
			Group:    f.cfg.Group,
			Consumer: f.cfg.Consumer,
			Streams:  args,
			Count:    f.cfg.Count,
			Block:    block,
		}).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.cfg.Logger.Warn().Err(err).Msg("xreadgroup failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(500 * time.Millisecond):
			}
			return nil
		}

		n := 0
		for _, stream := range results {
			for _, msg := range stream.Messages {
				n++
				u, err := f.decode(stream.Stream, msg)
				if err != nil {
					f.cfg.Logger.Warn().Err(err).Str("stream", stream.Stream).Str("id", msg.ID).Msg("bad candle message")
					// ACK poison messages.
					f.client.XAck(ctx, stream.Stream, f.cfg.Group, msg.ID)
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					return ctx.Err()
				}
				f.client.XAck(ctx, stream.Stream, f.cfg.Group, msg.ID)
			}
		}
		if id == ">" || n == 0 {
			return nil
		}
	}
}

// decode parses the "data" field of a stream entry as a candle.
func (f *Feed) decode(stream string, msg goredis.XMessage) (model.CandleUpdate, error) {
	ref, ok := f.series[stream]
	if !ok {
		return model.CandleUpdate{}, fmt.Errorf("unknown stream %q", stream)
	}
	data, ok := msg.Values["data"].(string)
	if !ok {
		return model.CandleUpdate{}, errors.New("missing data field")
	}
	var c model.Candle
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return model.CandleUpdate{}, fmt.Errorf("unmarshal candle: %w", err)
	}
	if c.OpenTime <= 0 || c.CloseTime < c.OpenTime {
		return model.CandleUpdate{}, fmt.Errorf("invalid candle times %d/%d", c.OpenTime, c.CloseTime)
	}
	return model.CandleUpdate{Symbol: ref.symbol, TF: ref.tf, Candle: c}, nil
}
