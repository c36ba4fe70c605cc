package indicator

import (
	"math"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// wave builds a deterministic, non-trivial OHLCV series.
func wave(n int) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		f := float64(i)
		c := 100 + 10*math.Sin(f/5) + 0.1*f
		out[i] = model.Candle{
			OpenTime:  int64(i) * 60_000,
			CloseTime: int64(i+1)*60_000 - 1,
			Open:      c - 0.3*math.Cos(f),
			High:      c + 1 + 0.5*math.Abs(math.Cos(f)),
			Low:       c - 1 - 0.3*math.Abs(math.Sin(f)),
			Close:     c,
			Volume:    1000 + 100*math.Abs(math.Sin(f/3)),
			Closed:    true,
		}
	}
	return out
}

func highs(cs []model.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.High
	}
	return out
}

func lows(cs []model.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Low
	}
	return out
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMASeries_HandCalculated(t *testing.T) {
	// period 3 -> k = 0.5
	// 1 -> 1
	// 2 -> 2*0.5 + 1*0.5 = 1.5
	// 3 -> 3*0.5 + 1.5*0.5 = 2.25
	s := EMASeries([]float64{1, 2, 3}, 3)
	require.Equal(t, 3, s.Len())
	require.Equal(t, 0, s.Start)
	assertClose(t, "EMA[0]", s.Values[0], 1, 1e-12)
	assertClose(t, "EMA[1]", s.Values[1], 1.5, 1e-12)
	assertClose(t, "EMA[2]", s.Values[2], 2.25, 1e-12)
}

func TestEMASeries_NonFiniteCarriesPrevious(t *testing.T) {
	s := EMASeries([]float64{math.NaN(), 4, math.Inf(1), 8}, 3)
	require.Equal(t, 1, s.Start)
	_, ok := s.At(0)
	assert.False(t, ok)
	assertClose(t, "EMA[1]", s.Values[1], 4, 1e-12)
	assertClose(t, "EMA[2]", s.Values[2], 4, 1e-12)
	assertClose(t, "EMA[3]", s.Values[3], 6, 1e-12)
	for _, v := range s.Values {
		assert.False(t, math.IsNaN(v))
	}
}

func TestEMASeries_LengthAndNoOvershoot(t *testing.T) {
	for _, period := range []int{2, 5, 20, 50} {
		in := make([]float64, 0, 60)
		for i := 0; i < 10; i++ {
			in = append(in, 10)
		}
		for i := 0; i < 50; i++ {
			in = append(in, 20)
		}
		s := EMASeries(in, period)
		require.Equal(t, len(in), s.Len())
		prev := 10.0
		for i, v := range s.Values {
			assert.GreaterOrEqual(t, v, 10.0, "period %d idx %d", period, i)
			assert.LessOrEqual(t, v, 20.0, "period %d idx %d", period, i)
			assert.GreaterOrEqual(t, v, prev, "period %d idx %d must be monotone", period, i)
			prev = v
		}
	}
}

func TestEMASeries_EmptyAndBadPeriod(t *testing.T) {
	assert.False(t, EMASeries(nil, 3).Ready())
	s := EMASeries([]float64{1, 2}, 0)
	assert.Equal(t, 2, s.Len())
	assert.False(t, s.Ready())
}

// ────────────────────────────────────────────────────────────
// SMA
// ────────────────────────────────────────────────────────────

func TestSMASeries_HandCalculated(t *testing.T) {
	// SMA(3) of 100, 102, 104, 103, 105 -> -, -, 102, 103, 104
	s := SMASeries([]float64{100, 102, 104, 103, 105}, 3)
	require.Equal(t, 2, s.Start)
	assertClose(t, "SMA[2]", s.Values[2], 102, 1e-9)
	assertClose(t, "SMA[3]", s.Values[3], 103, 1e-9)
	assertClose(t, "SMA[4]", s.Values[4], 104, 1e-9)
}

// ────────────────────────────────────────────────────────────
// ATR
// ────────────────────────────────────────────────────────────

func TestATRSeries_MatchesTalib(t *testing.T) {
	cs := wave(120)
	for _, period := range []int{5, 14} {
		got := ATRSeries(cs, period)
		want := talib.Atr(highs(cs), lows(cs), Closes(cs), period)
		require.Equal(t, period, got.Start)
		for i := period; i < len(cs); i++ {
			assertClose(t, "ATR", got.Values[i], want[i], 1e-9)
		}
	}
}

func TestATRSeries_ConstantRange(t *testing.T) {
	cs := make([]model.Candle, 20)
	for i := range cs {
		cs[i] = model.Candle{Open: 10, High: 11, Low: 9, Close: 10, Closed: true}
	}
	v, ok := ATR(cs, 14)
	require.True(t, ok)
	assertClose(t, "ATR", v, 2, 1e-12)
}

func TestATRSeries_NotReady(t *testing.T) {
	_, ok := ATR(wave(14), 14)
	assert.False(t, ok, "needs period+1 candles")
	_, ok = ATR(wave(15), 14)
	assert.True(t, ok)
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSISeries_MatchesTalib(t *testing.T) {
	closes := Closes(wave(150))
	got := RSISeries(closes, 14)
	want := talib.Rsi(closes, 14)
	require.Equal(t, 14, got.Start)
	for i := 14; i < len(closes); i++ {
		assertClose(t, "RSI", got.Values[i], want[i], 1e-9)
	}
}

func TestRSISeries_Extremes(t *testing.T) {
	up := []float64{1, 2, 3, 4, 5, 6}
	v, ok := RSI(up, 3)
	require.True(t, ok)
	assert.Equal(t, 100.0, v)

	flat := []float64{5, 5, 5, 5, 5}
	v, ok = RSI(flat, 3)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	_, ok = RSI([]float64{1, 2, 3}, 3)
	assert.False(t, ok)
}

// ────────────────────────────────────────────────────────────
// ADX
// ────────────────────────────────────────────────────────────

func TestADX_SteadyUptrend(t *testing.T) {
	// Every bar: +DM = 1, -DM = 0, TR = 2 -> DI+ = 50, DI- = 0, DX = 100.
	cs := make([]model.Candle, 40)
	for i := range cs {
		c := float64(100 + i)
		cs[i] = model.Candle{Open: c, High: c + 1, Low: c - 1, Close: c, Closed: true}
	}
	d, ok := ADX(cs, 14)
	require.True(t, ok)
	assertClose(t, "ADX", d.ADX, 100, 1e-9)
	assertClose(t, "DI+", d.PlusDI, 50, 1e-9)
	assertClose(t, "DI-", d.MinusDI, 0, 1e-9)
}

func TestADX_FlatMarketIsZero(t *testing.T) {
	cs := make([]model.Candle, 30)
	for i := range cs {
		cs[i] = model.Candle{Open: 10, High: 11, Low: 9, Close: 10, Closed: true}
	}
	d, ok := ADX(cs, 14)
	require.True(t, ok)
	assert.Equal(t, 0.0, d.ADX)
}

func TestADX_InsufficientHistory(t *testing.T) {
	_, ok := ADX(wave(14), 14)
	assert.False(t, ok)
	d, ok := ADX(wave(15), 14)
	require.True(t, ok, "period+1 candles yield one DX")
	assert.GreaterOrEqual(t, d.ADX, 0.0)
	assert.LessOrEqual(t, d.ADX, 100.0)
}

// ────────────────────────────────────────────────────────────
// VWAP
// ────────────────────────────────────────────────────────────

func TestAnchoredVWAP(t *testing.T) {
	cs := []model.Candle{
		{OpenTime: 0, High: 50, Low: 50, Close: 50, Volume: 999},
		{OpenTime: 1000, High: 12, Low: 9, Close: 9, Volume: 100},  // tp 10
		{OpenTime: 2000, High: 22, Low: 19, Close: 19, Volume: 300}, // tp 20
	}
	// (10*100 + 20*300) / 400 = 17.5
	v, ok := AnchoredVWAP(cs, 1000)
	require.True(t, ok)
	assertClose(t, "AVWAP", v, 17.5, 1e-12)

	_, ok = AnchoredVWAP(cs, 5000)
	assert.False(t, ok, "no volume after anchor")
}

// ────────────────────────────────────────────────────────────
// Bollinger
// ────────────────────────────────────────────────────────────

func TestBollingerWidth_HandCalculated(t *testing.T) {
	// closes 1,2,3: mean 2, population sd sqrt(2/3)
	cs := []model.Candle{{Close: 1}, {Close: 2}, {Close: 3}}
	b, ok := BollingerWidth(cs, 3, 2)
	require.True(t, ok)
	sd := math.Sqrt(2.0 / 3.0)
	assertClose(t, "basis", b.Basis, 2, 1e-9)
	assertClose(t, "upper", b.Upper, 2+2*sd, 1e-9)
	assertClose(t, "lower", b.Lower, 2-2*sd, 1e-9)
	assertClose(t, "width", b.Width, 4*sd/2, 1e-9)
}

func TestBollingerWidthSeries_AlignedWithLast(t *testing.T) {
	cs := wave(60)
	s := BollingerWidthSeries(cs, 20, 2)
	require.Equal(t, 19, s.Start)
	last, ok := s.Last()
	require.True(t, ok)
	b, ok := BollingerWidth(cs, 20, 2)
	require.True(t, ok)
	assertClose(t, "width", last, b.Width, 1e-12)

	_, ok = BollingerWidth(cs[:10], 20, 2)
	assert.False(t, ok)
}

// ────────────────────────────────────────────────────────────
// Percentile
// ────────────────────────────────────────────────────────────

func TestPercentile_Median(t *testing.T) {
	v, ok := Percentile([]float64{5, 1, 3}, 50)
	require.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = Percentile([]float64{4, 1, 3, 2}, 50)
	require.True(t, ok)
	assertClose(t, "median even", v, 2.5, 1e-12)

	_, ok = Percentile(nil, 50)
	assert.False(t, ok)
}

func TestPercentile_RankRoundTrip(t *testing.T) {
	values := []float64{1, 2, 4, 8, 16, 32, 64}
	for _, p := range []float64{0, 5, 12.5, 33, 50, 71.2, 99, 100} {
		v, ok := Percentile(values, p)
		require.True(t, ok)
		r, ok := PercentileRank(values, v)
		require.True(t, ok)
		assertClose(t, "round trip", r, p, 1e-9)
	}
}

func TestPercentileRank_OutOfRange(t *testing.T) {
	r, _ := PercentileRank([]float64{1, 2, 3}, -5)
	assert.Equal(t, 0.0, r)
	r, _ = PercentileRank([]float64{1, 2, 3}, 10)
	assert.Equal(t, 100.0, r)
}

// ────────────────────────────────────────────────────────────
// Slope
// ────────────────────────────────────────────────────────────

func TestSlope(t *testing.T) {
	s := Series{Values: []float64{100, 101, 102, 110}, Start: 0}
	v, ok := Slope(s, 3)
	require.True(t, ok)
	assertClose(t, "slope", v, 0.1, 1e-12)

	_, ok = Slope(s, 4)
	assert.False(t, ok)
}
