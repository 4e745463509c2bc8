package values

import (
	"reflect"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

var decimalType = reflect.TypeOf(decimal.Decimal{})

type parserKey struct {
	typ      reflect.Type
	nullable bool
	format   string
}

// Provider builds parsers lazily and hands out one instance per type,
// nullability and date format. Parsers are reset by every Finish, so the
// shared instances are safe as long as a single goroutine lexes the input.
type Provider struct {
	cfg     *config.Configuration
	parsers map[parserKey]Parser
	text    *StringParser
	skip    *SkipParser
}

// NewProvider returns a provider for the given configuration.
func NewProvider(cfg *config.Configuration) *Provider {
	return &Provider{
		cfg:     cfg,
		parsers: make(map[parserKey]Parser),
	}
}

// String returns the shared string parser. It is also used for every
// column while searching for the header row.
func (p *Provider) String() *StringParser {
	if p.text == nil {
		p.text = NewStringParser(p.cfg.MaxColumnLength)
	}
	return p.text
}

// Skip returns the shared parser for unmapped columns.
func (p *Provider) Skip() *SkipParser {
	if p.skip == nil {
		p.skip = NewSkipParser()
	}
	return p.skip
}

// For returns the parser for values of type t. Date columns need a format.
func (p *Provider) For(t reflect.Type, nullable bool, format string) (Parser, error) {
	if t == stringType {
		return p.String(), nil
	}
	if t == timeType {
		if format == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "date column requires an input format")
		}
		return p.Cached(t, nullable, format, func() (Parser, error) {
			return NewDateTimeParser(format, nullable), nil
		})
	}
	if format != "" {
		return nil, errors.New(errors.ErrorTypeConfig, "input format is only supported for time.Time columns").
			WithDetail("type", t.String())
	}
	return p.Cached(t, nullable, "", func() (Parser, error) {
		return p.build(t, nullable)
	})
}

// Cached returns the parser stored for (t, nullable, format), building it
// on first use.
func (p *Provider) Cached(t reflect.Type, nullable bool, format string, build func() (Parser, error)) (Parser, error) {
	key := parserKey{typ: t, nullable: nullable, format: format}
	if parser, ok := p.parsers[key]; ok {
		return parser, nil
	}
	parser, err := build()
	if err != nil {
		return nil, err
	}
	p.parsers[key] = parser
	return parser, nil
}

func (p *Provider) build(t reflect.Type, nullable bool) (Parser, error) {
	point := rune(p.cfg.DecimalPoint)
	thousands := p.cfg.ThousandsChar()

	switch t {
	case charType:
		return NewCharParser(nullable), nil
	case decimalType:
		return NewDecimalParser(point, thousands, nullable), nil
	}

	switch t.Kind() {
	case reflect.Int:
		return NewIntegerParser[int](nullable), nil
	case reflect.Int8:
		return NewIntegerParser[int8](nullable), nil
	case reflect.Int16:
		return NewIntegerParser[int16](nullable), nil
	case reflect.Int32:
		return NewIntegerParser[int32](nullable), nil
	case reflect.Int64:
		return NewIntegerParser[int64](nullable), nil
	case reflect.Uint:
		return NewIntegerParser[uint](nullable), nil
	case reflect.Uint8:
		return NewIntegerParser[uint8](nullable), nil
	case reflect.Uint16:
		return NewIntegerParser[uint16](nullable), nil
	case reflect.Uint32:
		return NewIntegerParser[uint32](nullable), nil
	case reflect.Uint64:
		return NewIntegerParser[uint64](nullable), nil
	case reflect.Float32:
		return NewFloat32Parser(point, thousands, nullable), nil
	case reflect.Float64:
		return NewFloat64Parser(point, thousands, nullable), nil
	}

	return nil, errors.New(errors.ErrorTypeConfig, "unsupported column type").
		WithDetail("type", t.String())
}

// Release returns pooled buffers held by the provider's parsers.
func (p *Provider) Release() {
	if p.text != nil {
		p.text.Release()
		p.text = nil
	}
}
