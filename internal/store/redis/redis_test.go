package redis

import (
	"context"
	"encoding/json"
	"testing"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/config"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/orchestrator"
)

func TestFeed_Streams(t *testing.T) {
	f := NewFeed(nil, FeedConfig{Symbols: []string{"BTCUSDT", "ETHUSDT", "BTCUSDT"}, TFs: []int{60, 300}})
	assert.Equal(t, []string{
		"candle:60s:BTCUSDT", "candle:300s:BTCUSDT",
		"candle:60s:ETHUSDT", "candle:300s:ETHUSDT",
	}, f.Streams())
}

func TestFeed_Decode(t *testing.T) {
	f := NewFeed(nil, FeedConfig{Symbols: []string{"BTCUSDT"}, TFs: []int{60}})
	c := model.Candle{OpenTime: 60_000, CloseTime: 119_999, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, Closed: true}

	tests := []struct {
		name    string
		stream  string
		values  map[string]interface{}
		wantErr string
	}{
		{"valid", "candle:60s:BTCUSDT", map[string]interface{}{"data": string(c.JSON())}, ""},
		{"unknown stream", "candle:60s:DOGE", map[string]interface{}{"data": string(c.JSON())}, "unknown stream"},
		{"missing data", "candle:60s:BTCUSDT", map[string]interface{}{"x": "1"}, "missing data"},
		{"bad json", "candle:60s:BTCUSDT", map[string]interface{}{"data": "{"}, "unmarshal"},
		{"bad times", "candle:60s:BTCUSDT", map[string]interface{}{"data": `{"open_time":10,"close_time":5}`}, "invalid candle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := f.decode(tt.stream, goredis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.CandleUpdate{Symbol: "BTCUSDT", TF: 60, Candle: c}, u)
		})
	}
}

func TestPublisher_BuffersWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker(1, 0)
	cb.now = (&fakeClock{}).now
	cb.cooldown = 1 << 62
	p := NewPublisher(context.Background(), nil, cb, PublisherConfig{MaxBuffer: 2, Logger: zerolog.Nop()})

	cb.Execute(func() error { return errFail })
	require.Equal(t, StateOpen, cb.CurrentState())

	for _, sym := range []string{"A", "B", "C"} {
		res := orchestrator.Result{Snapshot: &orchestrator.Snapshot{Symbol: sym}}
		require.NoError(t, p.Publish(context.Background(), res))
	}
	assert.Equal(t, 2, p.Pending())

	p.mu.Lock()
	assert.Equal(t, "B", p.buffer[0].Snapshot.Symbol, "oldest dropped")
	p.mu.Unlock()

	// Still open: nothing is flushed.
	assert.Equal(t, 0, p.Flush())
	assert.Equal(t, 2, p.Pending())

	assert.NoError(t, p.Publish(context.Background(), orchestrator.Result{}), "results without a snapshot are ignored")
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "snapshot:latest:BTCUSDT", SnapshotKey("BTCUSDT"))
	assert.Equal(t, "pub:snapshot:BTCUSDT", SnapshotChannel("BTCUSDT"))
	assert.Equal(t, "signals:BTCUSDT", SignalStream("BTCUSDT"))
	assert.Equal(t, "pub:signal:BTCUSDT", SignalChannel("BTCUSDT"))
}

func TestConfigChannel_Decode(t *testing.T) {
	c := NewConfigChannel(nil, "config:engine", zerolog.Nop())

	want := config.Default().Engine
	want.Rigidity.Global = 70
	want.Priority = []string{"emaCross", "orb"}
	want.Relax.Exempt = []string{}
	b, err := json.Marshal(&want)
	require.NoError(t, err)

	got, ok := c.decode(string(b))
	require.True(t, ok)
	assert.Equal(t, 70, got.Rigidity.Global)
	assert.Equal(t, want.Priority, got.Priority)
	assert.Equal(t, want.ExecutionTF, got.ExecutionTF)
	assert.Empty(t, got.RelaxExempt(), "explicit empty exempt list survives the round trip")
	assert.Equal(t, want.RelaxValues(), got.RelaxValues())

	_, ok = c.decode(`{"version": 3, "rigidity": {"global": 500}}`)
	assert.False(t, ok, "invalid documents are rejected")
	_, ok = c.decode(`{"version": 9}`)
	assert.False(t, ok)
}
