package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

type memReader map[string]map[int][]model.Candle

func (m memReader) ReadCandles(symbol string, tf int, afterMs int64) ([]model.Candle, error) {
	var out []model.Candle
	for _, c := range m[symbol][tf] {
		if c.OpenTime > afterMs {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m memReader) Symbols(tf int) ([]string, error) {
	var out []string
	for s, byTF := range m {
		if len(byTF[tf]) > 0 {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m memReader) Close() error { return nil }

type failingReader struct{ memReader }

func (failingReader) ReadCandles(string, int, int64) ([]model.Candle, error) {
	return nil, errors.New("disk gone")
}

func bars(tf int, n int) []model.Candle {
	ms := int64(tf) * 1000
	out := make([]model.Candle, n)
	for i := range out {
		open := int64(i) * ms
		out[i] = model.Candle{OpenTime: open, CloseTime: open + ms - 1, Close: float64(i)}
	}
	return out
}

func TestLoad_MergesInCloseOrder(t *testing.T) {
	r := New(memReader{
		"BTC": {60: bars(60, 5), 300: bars(300, 1)},
		"ETH": {60: bars(60, 2)},
	}, zerolog.Nop())

	all, err := r.Load([]string{"BTC", "ETH"}, []int{60, 300}, -1)
	require.NoError(t, err)
	require.Len(t, all, 8)
	for i := 1; i < len(all); i++ {
		assert.LessOrEqual(t, all[i-1].Candle.CloseTime, all[i].Candle.CloseTime)
	}
	last := all[len(all)-1]
	assert.Equal(t, 300, last.TF, "5m bar closes with the 5th 1m bar and sorts after it")
	for _, u := range all {
		assert.True(t, u.Candle.Closed)
	}
}

func TestRun_EmitsAllAsFastAsPossible(t *testing.T) {
	r := New(memReader{"BTC": {60: bars(60, 10)}}, zerolog.Nop())
	out := make(chan model.CandleUpdate, 16)
	require.NoError(t, r.Run(context.Background(), nil, []int{60}, 2*60_000, 0, out))
	close(out)

	var n int
	for u := range out {
		assert.Equal(t, "BTC", u.Symbol)
		n++
	}
	assert.Equal(t, 7, n)
}

func TestRun_Cancelled(t *testing.T) {
	r := New(memReader{"BTC": {60: bars(60, 10)}}, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := r.Run(ctx, nil, []int{60}, -1, 0, make(chan model.CandleUpdate))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_ReaderError(t *testing.T) {
	r := New(failingReader{memReader{"BTC": {60: bars(60, 1)}}}, zerolog.Nop())
	err := r.Run(context.Background(), []string{"BTC"}, []int{60}, 0, 0, make(chan model.CandleUpdate, 1))
	assert.ErrorContains(t, err, "disk gone")
}
