package values

import (
	"reflect"
	"time"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// TwoDigitYearPivot splits two digit years: below it they are 20xx, from it
// on they are 19xx.
const TwoDigitYearPivot = 36

var timeType = reflect.TypeOf(time.Time{})

// DateTimeParser reads a date by position. Each input character is routed
// by the format character at the same offset:
//
//	y year, M month, d day, H hour (0-23), h hour (1-12), m minute,
//	s second, f fraction of a second, t/T AM/PM marker
//
// Every other format character is a literal and its input character is
// skipped. A 'P' at a t/T position marks the afternoon; any other input
// there is taken as a literal, so the 'T' of an ISO 8601 format works
// unchanged. Results are in UTC.
type DateTimeParser struct {
	base
	format   []rune
	hasYear  bool
	hasMonth bool
	hasDay   bool

	pos            int
	year           int
	yearDigits     int
	month          int
	day            int
	hour           int
	twelveHour     bool
	pm             bool
	minute         int
	second         int
	fraction       int
	fractionDigits int
	tooLong        bool
}

// NewDateTimeParser returns a parser for the given positional format.
func NewDateTimeParser(format string, nullable bool) *DateTimeParser {
	p := &DateTimeParser{
		base:   base{kind: KindDateTime, typ: timeType, nullable: nullable},
		format: []rune(format),
	}
	for _, f := range p.format {
		switch f {
		case 'y':
			p.hasYear = true
		case 'M':
			p.hasMonth = true
		case 'd':
			p.hasDay = true
		}
	}
	return p
}

// Format returns the positional format of the parser.
func (p *DateTimeParser) Format() string { return string(p.format) }

func (p *DateTimeParser) Process(c rune) {
	if p.state == FastForward {
		return
	}
	if p.pos >= len(p.format) {
		p.tooLong = true
		p.state = FastForward
		return
	}
	f := p.format[p.pos]
	p.pos++

	switch f {
	case 'y', 'M', 'd', 'H', 'h', 'm', 's', 'f':
	case 't', 'T':
		if c == 'P' || c == 'p' {
			p.pm = true
		}
		return
	default:
		return
	}

	if !isDigit(c) {
		p.state = FastForward
		return
	}
	d := int(c - '0')
	switch f {
	case 'y':
		p.year = p.year*10 + d
		p.yearDigits++
	case 'M':
		p.month = p.month*10 + d
	case 'd':
		p.day = p.day*10 + d
	case 'H':
		p.hour = p.hour*10 + d
	case 'h':
		p.hour = p.hour*10 + d
		p.twelveHour = true
	case 'm':
		p.minute = p.minute*10 + d
	case 's':
		p.second = p.second*10 + d
	case 'f':
		// digits beyond nanosecond precision are dropped
		if p.fractionDigits < 9 {
			p.fraction = p.fraction*10 + d
			p.fractionDigits++
		}
	}
}

func (p *DateTimeParser) Finish() (ResultValue, error) {
	defer p.reset()

	if p.tooLong {
		p.state = Parsing
		return ResultValue{Kind: KindDateTime}, errors.New(errors.ErrorTypeMalformed, "date value is longer than its format").
			WithDetail("format", string(p.format))
	}
	if p.state == FastForward {
		return p.null(reasonUnparsable)
	}
	if p.pos == 0 {
		return p.null(reasonEmpty)
	}

	t, ok := p.build()
	if !ok {
		if p.nullable {
			return ResultValue{Kind: KindDateTime}, nil
		}
		return ResultValue{Kind: KindDateTime}, errors.New(errors.ErrorTypeMalformed, "date value is out of range").
			WithDetail("format", string(p.format))
	}
	return ResultValue{Kind: KindDateTime, Value: t}, nil
}

func (p *DateTimeParser) build() (time.Time, bool) {
	year, month, day := p.year, p.month, p.day
	if !p.hasYear {
		year = 1
	} else if p.yearDigits <= 2 {
		if year < TwoDigitYearPivot {
			year += 2000
		} else {
			year += 1900
		}
	}
	if !p.hasMonth {
		month = 1
	}
	if !p.hasDay {
		day = 1
	}

	hour := p.hour
	if p.twelveHour {
		if hour < 1 || hour > 12 {
			return time.Time{}, false
		}
		if hour == 12 {
			hour = 0
		}
	}
	if p.pm && hour < 12 {
		hour += 12
	}

	if year < 1 || year > 9999 || month < 1 || month > 12 || day < 1 || day > daysIn(year, month) ||
		hour > 23 || p.minute > 59 || p.second > 59 {
		return time.Time{}, false
	}

	nanos := p.fraction
	for i := p.fractionDigits; i < 9; i++ {
		nanos *= 10
	}
	return time.Date(year, time.Month(month), day, hour, p.minute, p.second, nanos, time.UTC), true
}

func (p *DateTimeParser) reset() {
	p.state = Parsing
	p.pos = 0
	p.year, p.yearDigits, p.month, p.day = 0, 0, 0, 0
	p.hour, p.minute, p.second = 0, 0, 0
	p.fraction, p.fractionDigits = 0, 0
	p.twelveHour, p.pm, p.tooLong = false, false, false
}

func daysIn(year, month int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
