package cpp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NumericFlags records the suffixes of a numeric literal.
type NumericFlags uint

const (
	NumUnsigned NumericFlags = 1 << iota
	NumInt
	NumLong
	NumLongLong
	NumFloat
	NumDouble
)

// numSizeMask covers the mutually exclusive size suffixes.
const numSizeMask = NumInt | NumLong | NumLongLong | NumFloat | NumDouble

// NumericValue is the parsed form of a numeric literal.
type NumericValue struct {
	Base        int // 2, 8, 10 or 16
	Integer     string
	Fraction    string
	HasFraction bool
	Exponent    string // signed decimal digits
	HasExponent bool
	Flags       NumericFlags
}

// IsFloat reports whether the literal denotes a floating constant.
func (v NumericValue) IsFloat() bool {
	return v.HasFraction || v.HasExponent || v.Flags&(NumFloat|NumDouble) != 0
}

// Uint64 returns the integer value, truncating floating literals.
func (v NumericValue) Uint64() (uint64, error) {
	if v.IsFloat() {
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return uint64(f), nil
	}
	if v.Integer == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v.Integer, v.Base, 64)
	if err != nil {
		return 0, fmt.Errorf("numeric constant %s: %w", v, err)
	}
	return n, nil
}

// Int64 returns the integer value as a signed 64-bit number.
func (v NumericValue) Int64() (int64, error) {
	if v.IsFloat() {
		f, err := v.Float64()
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
	n, err := v.Uint64()
	return int64(n), err
}

// Float64 returns the value as a float.
func (v NumericValue) Float64() (float64, error) {
	var sb strings.Builder
	switch v.Base {
	case 16:
		sb.WriteString("0x")
		sb.WriteString(orZero(v.Integer))
		if v.HasFraction {
			sb.WriteString(".")
			sb.WriteString(v.Fraction)
		}
		sb.WriteString("p")
		sb.WriteString(orZero(v.Exponent))
	case 10:
		sb.WriteString(orZero(v.Integer))
		if v.HasFraction {
			sb.WriteString(".")
			sb.WriteString(orZero(v.Fraction))
		}
		if v.HasExponent {
			sb.WriteString("e")
			sb.WriteString(orZero(v.Exponent))
		}
	default:
		n, err := strconv.ParseUint(orZero(v.Integer), v.Base, 64)
		if err != nil {
			return 0, fmt.Errorf("numeric constant %s: %w", v, err)
		}
		return float64(n), nil
	}
	f, err := strconv.ParseFloat(sb.String(), 64)
	if err != nil && !math.IsInf(f, 0) {
		return 0, fmt.Errorf("numeric constant %s: %w", v, err)
	}
	return f, nil
}

// String renders the canonical form of the literal, without suffixes.
func (v NumericValue) String() string {
	var sb strings.Builder
	switch v.Base {
	case 2:
		sb.WriteString("0b")
	case 8:
		sb.WriteString("0")
	case 16:
		sb.WriteString("0x")
	}
	sb.WriteString(v.Integer)
	if v.HasFraction {
		sb.WriteString(".")
		sb.WriteString(v.Fraction)
	}
	if v.HasExponent {
		if v.Base == 16 {
			sb.WriteString("p")
		} else {
			sb.WriteString("e")
		}
		sb.WriteString(v.Exponent)
	}
	return sb.String()
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
