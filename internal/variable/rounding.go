package variable

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// RoundingMode selects how non-integral leveled values are scaled.
type RoundingMode string

const (
	RoundHalfUp   RoundingMode = "HALF_UP"
	RoundHalfDown RoundingMode = "HALF_DOWN"
	RoundHalfEven RoundingMode = "HALF_EVEN"
	RoundUp       RoundingMode = "UP"
	RoundDown     RoundingMode = "DOWN"
	RoundCeiling  RoundingMode = "CEILING"
	RoundFloor    RoundingMode = "FLOOR"
)

var rounders = map[RoundingMode]apd.Rounder{
	RoundHalfUp:   apd.RoundHalfUp,
	RoundHalfDown: apd.RoundHalfDown,
	RoundHalfEven: apd.RoundHalfEven,
	RoundUp:       apd.RoundUp,
	RoundDown:     apd.RoundDown,
	RoundCeiling:  apd.RoundCeiling,
	RoundFloor:    apd.RoundFloor,
}

// ParseRoundingMode parses a case-insensitive mode name.
func ParseRoundingMode(s string) (RoundingMode, error) {
	mode := RoundingMode(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := rounders[mode]; !ok {
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
	return mode, nil
}

// FormatNumber renders v the way leveled variables display it: integral
// values without a fractional part, anything else rounded to scale digits.
//
//	FormatNumber(6, 2, RoundHalfUp)     // "6"
//	FormatNumber(2.675, 2, RoundHalfUp) // "2.68"
//	FormatNumber(2.5, 2, RoundHalfUp)   // "2.50"
func FormatNumber(v float64, scale int, mode RoundingMode) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	if v == math.Floor(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}

	rounder, ok := rounders[mode]
	if !ok {
		rounder = apd.RoundHalfUp
	}

	d, err := new(apd.Decimal).SetFloat64(v)
	if err != nil {
		return strconv.FormatFloat(v, 'f', scale, 64)
	}
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Rounding = rounder

	var out apd.Decimal
	if _, err := ctx.Quantize(&out, d, int32(-scale)); err != nil {
		return strconv.FormatFloat(v, 'f', scale, 64)
	}
	return out.Text('f')
}
