// Package values holds the per-type value parsers that turn the characters
// of one CSV field directly into a typed value.
//
// A parser is fed one rune at a time through Process and produces its value
// on Finish, which also resets it for the next field. A parser that sees a
// character it cannot accept switches to FastForward: the lexer stops
// feeding it but still looks for the field boundary, and Finish yields null
// (or an error for non-nullable columns).
//
// Parsers are stateful and are only ever used from the goroutine that lexes
// the input.
package values

import (
	"reflect"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// Kind tags the type family of a ResultValue.
type Kind uint8

const (
	KindSkip Kind = iota
	KindString
	KindChar
	KindInteger
	KindUnsigned
	KindFloat
	KindDecimal
	KindDateTime
	KindEnum
)

var kindNames = [...]string{
	KindSkip:     "skip",
	KindString:   "string",
	KindChar:     "char",
	KindInteger:  "integer",
	KindUnsigned: "unsigned",
	KindFloat:    "float",
	KindDecimal:  "decimal",
	KindDateTime: "datetime",
	KindEnum:     "enum",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// State is the parsing state of a Parser within the current field.
type State uint8

const (
	// Parsing means the parser wants the next character
	Parsing State = iota
	// FastForward means the rest of the field can be skipped
	FastForward
)

// Char is a single character column value.
type Char rune

func (c Char) String() string { return string(rune(c)) }

// ResultValue is one parsed field. A nil Value is null.
type ResultValue struct {
	Kind  Kind
	Value any
}

// IsNull reports whether the field produced no value.
func (v ResultValue) IsNull() bool { return v.Value == nil }

// Parser converts the characters of one field into a value.
type Parser interface {
	// Process consumes one character of the current field.
	Process(c rune)
	// Finish ends the field and resets the parser.
	Finish() (ResultValue, error)
	// State reports whether the parser still wants characters.
	State() State
	// Kind is the type family of produced values.
	Kind() Kind
	// Type is the Go type of produced values.
	Type() reflect.Type
	// Nullable reports whether an empty or unparsable field yields null
	// instead of an error.
	Nullable() bool
}

type base struct {
	kind     Kind
	typ      reflect.Type
	nullable bool
	state    State
}

func (b *base) State() State       { return b.state }
func (b *base) Kind() Kind         { return b.kind }
func (b *base) Type() reflect.Type { return b.typ }
func (b *base) Nullable() bool     { return b.nullable }

// null returns the null value of the parser, or a malformed input error when
// the column is not nullable.
func (b *base) null(reason string) (ResultValue, error) {
	b.state = Parsing
	if b.nullable {
		return ResultValue{Kind: b.kind}, nil
	}
	return ResultValue{Kind: b.kind}, errors.New(errors.ErrorTypeMalformed, reason).
		WithDetail("type", b.typ.String())
}

const (
	reasonEmpty       = "non-nullable column received an empty value"
	reasonUnparsable  = "non-nullable column received an unparsable value"
	reasonEnumNoMatch = "enum value has no match"
)

func isDigit(c rune) bool { return c >= '0' && c <= '9' }
