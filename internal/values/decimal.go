package values

import (
	"math/big"
	"reflect"

	"github.com/shopspring/decimal"
)

// Fractional is the set of types the DecimalParser can produce.
type Fractional interface {
	~float32 | ~float64 | decimal.Decimal
}

// DecimalParser reads a number with an optional fractional part into an
// exact scaled integer: the digits form the mantissa and the count of digits
// after the decimal point is the scale. The thousands separator is ignored
// before the decimal point.
type DecimalParser[F Fractional] struct {
	base
	point     rune
	thousands rune
	convert   func(decimal.Decimal) F

	mantissa int64
	wide     *big.Int
	scale    int32
	digits   int
	negative bool
	seenSign bool
	seenDot  bool
}

// NewDecimalParser returns a parser producing exact decimal.Decimal values.
func NewDecimalParser(point, thousands rune, nullable bool) *DecimalParser[decimal.Decimal] {
	return newDecimalParser(point, thousands, nullable, KindDecimal,
		func(d decimal.Decimal) decimal.Decimal { return d })
}

// NewFloat64Parser returns a parser producing float64 values.
func NewFloat64Parser(point, thousands rune, nullable bool) *DecimalParser[float64] {
	return newDecimalParser(point, thousands, nullable, KindFloat,
		func(d decimal.Decimal) float64 {
			f, _ := d.Float64()
			return f
		})
}

// NewFloat32Parser returns a parser producing float32 values.
func NewFloat32Parser(point, thousands rune, nullable bool) *DecimalParser[float32] {
	return newDecimalParser(point, thousands, nullable, KindFloat,
		func(d decimal.Decimal) float32 {
			f, _ := d.Float64()
			return float32(f)
		})
}

func newDecimalParser[F Fractional](point, thousands rune, nullable bool, kind Kind, convert func(decimal.Decimal) F) *DecimalParser[F] {
	var zero F
	return &DecimalParser[F]{
		base:      base{kind: kind, typ: reflect.TypeOf(zero), nullable: nullable},
		point:     point,
		thousands: thousands,
		convert:   convert,
	}
}

func (p *DecimalParser[F]) Process(c rune) {
	if p.state == FastForward {
		return
	}
	switch {
	case isDigit(c):
		p.addDigit(int64(c - '0'))
		p.digits++
		if p.seenDot {
			p.scale++
		}
	case c == p.point:
		if p.seenDot {
			p.state = FastForward
			return
		}
		p.seenDot = true
	case c == p.thousands:
		if p.seenDot {
			p.state = FastForward
		}
	case c == '-' && !p.seenSign && p.digits == 0 && !p.seenDot:
		p.seenSign = true
		p.negative = true
	default:
		p.state = FastForward
	}
}

func (p *DecimalParser[F]) addDigit(d int64) {
	if p.wide != nil {
		p.wide.Mul(p.wide, bigTen)
		p.wide.Add(p.wide, big.NewInt(d))
		return
	}
	const limit = (1<<63 - 1) / 10
	if p.mantissa > limit || (p.mantissa == limit && d > 7) {
		p.wide = new(big.Int).SetInt64(p.mantissa)
		p.addDigit(d)
		return
	}
	p.mantissa = p.mantissa*10 + d
}

var bigTen = big.NewInt(10)

func (p *DecimalParser[F]) Finish() (ResultValue, error) {
	state, digits, seenSign := p.state, p.digits, p.seenSign
	value := p.value()
	p.mantissa, p.wide, p.scale, p.digits = 0, nil, 0, 0
	p.negative, p.seenSign, p.seenDot = false, false, false

	switch {
	case state == FastForward:
		return p.null(reasonUnparsable)
	case digits == 0 && seenSign:
		return p.null(reasonUnparsable)
	case digits == 0:
		return p.null(reasonEmpty)
	}
	return ResultValue{Kind: p.kind, Value: p.convert(value)}, nil
}

func (p *DecimalParser[F]) value() decimal.Decimal {
	var d decimal.Decimal
	if p.wide != nil {
		d = decimal.NewFromBigInt(p.wide, -p.scale)
	} else {
		d = decimal.New(p.mantissa, -p.scale)
	}
	if p.negative {
		d = d.Neg()
	}
	return d
}
