package guard

import "math"

// Comparators used in condition results.
const (
	CmpGTE    = ">="
	CmpLTE    = "<="
	CmpRange  = "between"
	CmpReady  = "ready"
	CmpAbsGTE = "|x|>="
)

// AtLeast passes when ok and v >= min.
func AtLeast(v float64, ok bool, min float64) Outcome {
	return compare(v, ok, min, CmpGTE, func() bool { return v >= min })
}

// AtMost passes when ok and v <= max.
func AtMost(v float64, ok bool, max float64) Outcome {
	return compare(v, ok, max, CmpLTE, func() bool { return v <= max })
}

// AbsAtLeast passes when ok and |v| >= min.
func AbsAtLeast(v float64, ok bool, min float64) Outcome {
	return compare(v, ok, min, CmpAbsGTE, func() bool { return math.Abs(v) >= min })
}

// Within passes when ok and lo <= v <= hi. Expected reports hi.
func Within(v float64, ok bool, lo, hi float64) Outcome {
	return compare(v, ok, hi, CmpRange, func() bool { return v >= lo && v <= hi })
}

// Ready passes when every flag is true.
func Ready(flags ...bool) Outcome {
	for _, f := range flags {
		if !f {
			return Outcome{Comparator: CmpReady}
		}
	}
	return Outcome{Pass: true, Comparator: CmpReady}
}

// Pass is an unconditional pass.
func Pass() Outcome { return Outcome{Pass: true} }

func compare(v float64, ok bool, expected float64, cmp string, test func() bool) Outcome {
	o := Outcome{Comparator: cmp, Expected: num(expected)}
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return o
	}
	o.Actual = num(v)
	o.Pass = test()
	return o
}

func num(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
