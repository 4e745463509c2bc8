package values

import (
	"reflect"
	"unicode/utf8"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/pool"
)

const initialStringBuffer = 256

var (
	stringType = reflect.TypeOf("")
	charType   = reflect.TypeOf(Char(0))
)

// StringParser collects a field into a pooled UTF-8 buffer. The buffer
// doubles on demand up to maxLength bytes. An empty field is null.
type StringParser struct {
	base
	buf       []byte
	n         int
	maxLength int
	tooLong   bool
}

// NewStringParser returns a string parser bounded to maxLength bytes per
// field. Release returns its buffer to the pool.
func NewStringParser(maxLength int) *StringParser {
	size := initialStringBuffer
	if maxLength < size {
		size = maxLength
	}
	return &StringParser{
		base:      base{kind: KindString, typ: stringType, nullable: true},
		buf:       pool.GlobalBufferPool.Get(size),
		maxLength: maxLength,
	}
}

func (p *StringParser) Process(c rune) {
	if p.state == FastForward {
		return
	}
	size := utf8.RuneLen(c)
	if size < 0 {
		size = utf8.RuneLen(utf8.RuneError)
		c = utf8.RuneError
	}
	if p.n+size > len(p.buf) && !p.grow(p.n+size) {
		p.tooLong = true
		p.state = FastForward
		return
	}
	p.n += utf8.EncodeRune(p.buf[p.n:], c)
}

func (p *StringParser) grow(need int) bool {
	if need > p.maxLength {
		return false
	}
	size := len(p.buf) * 2
	if size < need {
		size = need
	}
	if size > p.maxLength {
		size = p.maxLength
	}
	grown := pool.GlobalBufferPool.Get(size)
	copy(grown, p.buf[:p.n])
	pool.GlobalBufferPool.Put(p.buf)
	p.buf = grown
	return true
}

func (p *StringParser) Finish() (ResultValue, error) {
	n := p.n
	p.n = 0
	p.state = Parsing
	if p.tooLong {
		p.tooLong = false
		return ResultValue{Kind: KindString}, errors.New(errors.ErrorTypeMalformed, "column exceeds maximum length").
			WithDetail("max_length", p.maxLength)
	}
	if n == 0 {
		return ResultValue{Kind: KindString}, nil
	}
	return ResultValue{Kind: KindString, Value: string(p.buf[:n])}, nil
}

// Release returns the work buffer to the pool. The parser must not be used
// afterwards.
func (p *StringParser) Release() {
	if p.buf != nil {
		pool.GlobalBufferPool.Put(p.buf)
		p.buf = nil
	}
}

// CharParser accepts exactly one character.
type CharParser struct {
	base
	value Char
	count int
}

// NewCharParser returns a parser producing Char values.
func NewCharParser(nullable bool) *CharParser {
	return &CharParser{base: base{kind: KindChar, typ: charType, nullable: nullable}}
}

func (p *CharParser) Process(c rune) {
	if p.state == FastForward {
		return
	}
	p.count++
	if p.count > 1 {
		p.state = FastForward
		return
	}
	p.value = Char(c)
}

func (p *CharParser) Finish() (ResultValue, error) {
	count, value, state := p.count, p.value, p.state
	p.count, p.value = 0, 0
	switch {
	case count == 0:
		return p.null(reasonEmpty)
	case state == FastForward:
		return p.null(reasonUnparsable)
	}
	return ResultValue{Kind: KindChar, Value: value}, nil
}

// SkipParser discards a field. It keeps unmapped columns inside the mapped
// range aligned with their CSV position.
type SkipParser struct {
	base
}

// NewSkipParser returns a parser that never wants characters.
func NewSkipParser() *SkipParser {
	return &SkipParser{base: base{kind: KindSkip, typ: reflect.TypeOf((*any)(nil)).Elem(), nullable: true, state: FastForward}}
}

func (p *SkipParser) Process(rune) {}

func (p *SkipParser) Finish() (ResultValue, error) {
	return ResultValue{Kind: KindSkip}, nil
}
