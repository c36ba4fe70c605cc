package indicator

import "github.com/igorpenaa/Hermes-orquestrador-sub000/internal/model"

// AnchoredVWAP returns Σ(typical×volume)/Σvolume over candles whose OpenTime
// is at or after anchorMs. Typical price is (h+l+c)/3.
// Returns false when no volume traded since the anchor.
func AnchoredVWAP(candles []model.Candle, anchorMs int64) (float64, bool) {
	var pv, vol float64
	for _, c := range candles {
		if c.OpenTime < anchorMs || !finite(c.Volume) || c.Volume <= 0 {
			continue
		}
		tp := (c.High + c.Low + c.Close) / 3
		if !finite(tp) {
			continue
		}
		pv += tp * c.Volume
		vol += c.Volume
	}
	if vol == 0 {
		return 0, false
	}
	return pv / vol, true
}
