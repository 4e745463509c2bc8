package values

import "reflect"

// Integer is the set of integer types the IntegerParser can produce.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// IntegerParser accumulates decimal digits into N. A leading '-' is
// accepted on signed types only. Any other character, or a value that does
// not fit N, makes the field unparsable.
type IntegerParser[N Integer] struct {
	base
	signed   bool
	value    N
	negative bool
	digits   int
}

// NewIntegerParser returns a parser producing values of type N.
func NewIntegerParser[N Integer](nullable bool) *IntegerParser[N] {
	var zero N
	signed := zero-1 < zero
	kind := KindUnsigned
	if signed {
		kind = KindInteger
	}
	return &IntegerParser[N]{
		base:   base{kind: kind, typ: reflect.TypeOf(zero), nullable: nullable},
		signed: signed,
	}
}

func (p *IntegerParser[N]) Process(c rune) {
	if p.state == FastForward {
		return
	}
	switch {
	case isDigit(c):
		d := N(c - '0')
		next := p.value * 10
		if next/10 != p.value {
			p.state = FastForward
			return
		}
		if p.negative {
			if next-d > next {
				p.state = FastForward
				return
			}
			next -= d
		} else {
			if next+d < next {
				p.state = FastForward
				return
			}
			next += d
		}
		p.value = next
		p.digits++
	case c == '-' && p.signed && p.digits == 0 && !p.negative:
		p.negative = true
	default:
		p.state = FastForward
	}
}

func (p *IntegerParser[N]) Finish() (ResultValue, error) {
	value, digits, negative, state := p.value, p.digits, p.negative, p.state
	p.value, p.digits, p.negative = 0, 0, false
	switch {
	case state == FastForward:
		return p.null(reasonUnparsable)
	case digits == 0 && negative:
		return p.null(reasonUnparsable)
	case digits == 0:
		return p.null(reasonEmpty)
	}
	return ResultValue{Kind: p.kind, Value: value}, nil
}
