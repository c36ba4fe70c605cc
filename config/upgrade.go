package config

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// CurrentVersion is the engine config layout written by this release.
const CurrentVersion = 3

// ErrUnsupportedVersion is returned for configs newer than CurrentVersion.
var ErrUnsupportedVersion = errors.New("unsupported engine config version")

// legacyTuningKeys maps v1 snake_case tuning names to their current names.
var legacyTuningKeys = map[string]string{
	"slope_min":   "slopeMin",
	"vol_mult":    "volumeMult",
	"volume_mult": "volumeMult",
	"atr_min":     "atrMin",
	"atr_max":     "atrMax",
	"range_bars":  "rangeBars",
	"adx_max":     "adxMax",
}

// Upgrade migrates a decoded engine document to CurrentVersion. A missing
// version is treated as 1. The input map is not modified.
//
//	v1 -> v2: relax_minutes/auto_relax move under relax; per-strategy
//	          guard_toggles maps become disabled_guards lists; snake_case
//	          tuning keys are renamed.
//	v2 -> v3: a scalar rigidity becomes rigidity.global; gate.ema_divisor
//	          and gate.ema_directional become *_period.
func Upgrade(raw map[string]any) (map[string]any, error) {
	doc := deepCopy(raw)
	v := 1
	if n, ok := doc["version"]; ok {
		f, ok := number(n)
		if !ok {
			return nil, fmt.Errorf("engine config version %v: not a number", n)
		}
		v = int(f)
	}
	if v > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
	}
	if v < 2 {
		upgradeV1(doc)
	}
	if v < 3 {
		upgradeV2(doc)
	}
	doc["version"] = CurrentVersion
	return doc, nil
}

func upgradeV1(doc map[string]any) {
	rel, _ := asMap(doc["relax"])
	if rel == nil {
		rel = map[string]any{}
	}
	if m, ok := doc["relax_minutes"]; ok {
		if _, set := rel["after_minutes"]; !set {
			rel["after_minutes"] = m
		}
		delete(doc, "relax_minutes")
	}
	if a, ok := doc["auto_relax"]; ok {
		if _, set := rel["auto"]; !set {
			rel["auto"] = a
		}
		delete(doc, "auto_relax")
	}
	if len(rel) > 0 {
		doc["relax"] = rel
	}

	strategies, _ := asMap(doc["strategies"])
	for id, v := range strategies {
		sc, ok := asMap(v)
		if !ok {
			continue
		}
		if toggles, ok := asMap(sc["guard_toggles"]); ok {
			var idx []int
			for k, on := range toggles {
				i, err := strconv.Atoi(k)
				if b, _ := on.(bool); err == nil && b && i >= 0 {
					idx = append(idx, i)
				}
			}
			sort.Ints(idx)
			sc["disabled_guards"] = idx
			delete(sc, "guard_toggles")
		}
		if tun, ok := asMap(sc["tuning"]); ok {
			for old, cur := range legacyTuningKeys {
				val, had := tun[old]
				if !had {
					continue
				}
				if _, clash := tun[cur]; !clash {
					tun[cur] = val
				}
				delete(tun, old)
			}
			sc["tuning"] = tun
		}
		strategies[id] = sc
	}
	if strategies != nil {
		doc["strategies"] = strategies
	}
}

func upgradeV2(doc map[string]any) {
	if r, ok := doc["rigidity"]; ok {
		if n, ok := number(r); ok {
			doc["rigidity"] = map[string]any{"global": int(n)}
		}
	}
	g, ok := asMap(doc["gate"])
	if !ok {
		return
	}
	for old, cur := range map[string]string{
		"ema_divisor":     "divisor_period",
		"ema_directional": "directional_period",
	} {
		if val, had := g[old]; had {
			if _, clash := g[cur]; !clash {
				g[cur] = val
			}
			delete(g, old)
		}
	}
	doc["gate"] = g
}

// asMap normalises the two mapping shapes a YAML decoder may produce.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := asMap(v); ok {
			out[k] = deepCopy(sub)
			continue
		}
		if list, ok := v.([]any); ok {
			cp := make([]any, len(list))
			copy(cp, list)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
