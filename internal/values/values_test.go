package values

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// feed drives p the way the lexer does: characters are only handed over
// while the parser is still parsing.
func feed(p Parser, s string) (ResultValue, error) {
	for _, c := range s {
		if p.State() == FastForward {
			continue
		}
		p.Process(c)
	}
	return p.Finish()
}

func TestStringParser(t *testing.T) {
	p := NewStringParser(4096)
	defer p.Release()

	v, err := feed(p, "hello, wörld")
	require.NoError(t, err)
	assert.Equal(t, "hello, wörld", v.Value)

	v, err = feed(p, "")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	// state does not leak between fields
	v, err = feed(p, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", v.Value)
}

func TestStringParserGrowsAndLimits(t *testing.T) {
	p := NewStringParser(1000)
	defer p.Release()

	long := make([]rune, 1000)
	for i := range long {
		long[i] = 'a' + rune(i%26)
	}
	v, err := feed(p, string(long))
	require.NoError(t, err)
	assert.Equal(t, string(long), v.Value)

	_, err = feed(p, string(long)+"z")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))

	// the parser recovers for the next field
	v, err = feed(p, "ok")
	require.NoError(t, err)
	assert.Equal(t, "ok", v.Value)
}

func TestCharParser(t *testing.T) {
	p := NewCharParser(false)

	v, err := feed(p, "x")
	require.NoError(t, err)
	assert.Equal(t, Char('x'), v.Value)

	_, err = feed(p, "xy")
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))

	_, err = feed(p, "")
	assert.Error(t, err)

	nullable := NewCharParser(true)
	v, err = feed(nullable, "xy")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestIntegerParser(t *testing.T) {
	tests := []struct {
		input string
		want  int
		null  bool
	}{
		{"0", 0, false},
		{"42", 42, false},
		{"-4", -4, false},
		{"007", 7, false},
		{"", 0, true},
		{"-", 0, true},
		{"4-2", 0, true},
		{"--4", 0, true},
		{"1.5", 0, true},
		{"12a", 0, true},
		{" 12", 0, true},
	}

	p := NewIntegerParser[int](true)
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := feed(p, tt.input)
			require.NoError(t, err)
			if tt.null {
				assert.True(t, v.IsNull())
				return
			}
			assert.Equal(t, tt.want, v.Value)
			assert.Equal(t, KindInteger, v.Kind)
		})
	}
}

func TestIntegerParserNonNullable(t *testing.T) {
	p := NewIntegerParser[int32](false)

	_, err := feed(p, "")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))

	_, err = feed(p, "abc")
	require.Error(t, err)

	v, err := feed(p, "-2147483648")
	require.NoError(t, err)
	assert.Equal(t, int32(-2147483648), v.Value)
}

func TestIntegerParserWidths(t *testing.T) {
	i8 := NewIntegerParser[int8](true)
	v, _ := feed(i8, "127")
	assert.Equal(t, int8(127), v.Value)
	v, _ = feed(i8, "-128")
	assert.Equal(t, int8(-128), v.Value)
	v, _ = feed(i8, "128")
	assert.True(t, v.IsNull(), "overflow is unparsable")
	v, _ = feed(i8, "-129")
	assert.True(t, v.IsNull())

	u8 := NewIntegerParser[uint8](true)
	assert.Equal(t, KindUnsigned, u8.Kind())
	v, _ = feed(u8, "255")
	assert.Equal(t, uint8(255), v.Value)
	v, _ = feed(u8, "256")
	assert.True(t, v.IsNull())
	v, _ = feed(u8, "-1")
	assert.True(t, v.IsNull(), "unsigned types reject a sign")

	u64 := NewIntegerParser[uint64](true)
	v, _ = feed(u64, "18446744073709551615")
	assert.Equal(t, uint64(18446744073709551615), v.Value)
	v, _ = feed(u64, "18446744073709551616")
	assert.True(t, v.IsNull())

	i64 := NewIntegerParser[int64](true)
	v, _ = feed(i64, "-9223372036854775808")
	assert.Equal(t, int64(-9223372036854775808), v.Value)
	v, _ = feed(i64, "9223372036854775808")
	assert.True(t, v.IsNull())
}

func TestDecimalParser(t *testing.T) {
	tests := []struct {
		name      string
		point     rune
		thousands rune
		input     string
		want      string
	}{
		{"integer", '.', ',', "3", "3"},
		{"negative", '.', ',', "-4", "-4"},
		{"fraction", '.', ',', "123.456", "123.456"},
		{"leading point", '.', ',', ".5", "0.5"},
		{"thousands", '.', ',', "1,234,567.89", "1234567.89"},
		{"comma decimal", ',', '.', "123.456.789,123", "123456789.123"},
		{"negative comma", ',', '.', "-0,001", "-0.001"},
		{"wide", '.', ',', "123456789012345678901234.5", "123456789012345678901234.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDecimalParser(tt.point, tt.thousands, false)
			v, err := feed(p, tt.input)
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.want)
			got, ok := v.Value.(decimal.Decimal)
			require.True(t, ok)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}

func TestDecimalParserExact(t *testing.T) {
	p := NewDecimalParser('.', ',', false)
	v, err := feed(p, "0.1")
	require.NoError(t, err)
	d := v.Value.(decimal.Decimal)

	sum := d.Add(d).Add(d)
	assert.True(t, sum.Equal(decimal.RequireFromString("0.3")))
	assert.Equal(t, int32(-1), d.Exponent())
}

func TestDecimalParserUnparsable(t *testing.T) {
	inputs := []string{"1.2.3", "1.234,5", "1e5", "--1", "1-", "-", "abc"}

	p := NewDecimalParser('.', ',', true)
	for _, input := range inputs {
		v, err := feed(p, input)
		require.NoError(t, err, input)
		assert.True(t, v.IsNull(), input)
	}

	strict := NewDecimalParser('.', ',', false)
	_, err := feed(strict, "1.2.3")
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))
}

func TestFloatParsers(t *testing.T) {
	f64 := NewFloat64Parser(',', '.', false)
	v, err := feed(f64, "1.000,25")
	require.NoError(t, err)
	assert.Equal(t, 1000.25, v.Value)
	assert.Equal(t, KindFloat, v.Kind)

	f32 := NewFloat32Parser('.', ',', false)
	v, err = feed(f32, "-2.5")
	require.NoError(t, err)
	assert.Equal(t, float32(-2.5), v.Value)
}

func TestDateTimeParser(t *testing.T) {
	tests := []struct {
		name   string
		format string
		input  string
		want   time.Time
	}{
		{"iso", "yyyy-MM-ddTHH:mm:ss.fffZ", "2023-04-05T13:14:15.678Z",
			time.Date(2023, 4, 5, 13, 14, 15, 678000000, time.UTC)},
		{"date only", "dd.MM.yyyy", "31.12.1999", time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC)},
		{"two digit year low", "dd/MM/yy", "01/02/35", time.Date(2035, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"two digit year high", "dd/MM/yy", "01/02/36", time.Date(1936, 2, 1, 0, 0, 0, 0, time.UTC)},
		{"pm", "yyyy-MM-dd hh:mm tt", "2020-01-01 03:30 PM", time.Date(2020, 1, 1, 15, 30, 0, 0, time.UTC)},
		{"noon", "yyyy-MM-dd hh:mm tt", "2020-01-01 12:00 PM", time.Date(2020, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"midnight", "yyyy-MM-dd hh:mm tt", "2020-01-01 12:00 AM", time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"shorter input", "yyyy-MM-dd HH:mm", "2020-06-07", time.Date(2020, 6, 7, 0, 0, 0, 0, time.UTC)},
		{"time only", "HH:mm", "08:09", time.Date(1, 1, 1, 8, 9, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewDateTimeParser(tt.format, false)
			v, err := feed(p, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Value)
		})
	}
}

func TestDateTimeParserErrors(t *testing.T) {
	p := NewDateTimeParser("yyyy-MM-dd", false)

	_, err := feed(p, "2020-01-011")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longer than its format")

	_, err = feed(p, "2020-02-30")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")

	_, err = feed(p, "2020-1a-01")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed))

	_, err = feed(p, "")
	require.Error(t, err)

	// recovers after errors
	v, err := feed(p, "2020-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), v.Value)

	nullable := NewDateTimeParser("yyyy-MM-dd", true)
	v, err = feed(nullable, "2021-02-29")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	// too long is malformed even for nullable columns
	_, err = feed(nullable, "2021-02-011")
	assert.Error(t, err)
}

type color int

const (
	red color = iota
	red2
	green
	grey
)

func TestEnumParserAmbiguity(t *testing.T) {
	p, err := NewEnumParser([]string{"RED", "RED2", "GREEN", "GREY"}, []color{red, red2, green, grey}, false)
	require.NoError(t, err)

	tests := []struct {
		input string
		want  color
	}{
		{"RED", red},
		{"RED2", red2},
		{"red", red},
		{"Red2", red2},
		{"GREEN", green},
		{"grey", grey},
		{"g-r-e-y", grey},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := feed(p, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Value)
		})
	}
}

func TestEnumParserNoMatch(t *testing.T) {
	p, err := NewEnumParser([]string{"RED", "RED2", "GREEN", "GREY"}, []color{red, red2, green, grey}, false)
	require.NoError(t, err)

	for _, input := range []string{"BLUE", "RE", "GR", ""} {
		_, err := feed(p, input)
		require.Error(t, err, input)
		assert.True(t, errors.IsType(err, errors.ErrorTypeMalformed), input)
	}

	nullable, err := NewEnumParser([]string{"RED", "GREEN"}, []color{red, green}, true)
	require.NoError(t, err)
	v, err := feed(nullable, "BLUE")
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestEnumParserUniquePrefix(t *testing.T) {
	p, err := NewEnumParser([]string{"Monday", "Tuesday"}, []int{1, 2}, false)
	require.NoError(t, err)

	// once a prefix is unique the rest of the field is not examined
	v, err := feed(p, "Mon")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Value)
	assert.Equal(t, Parsing, p.State())

	single, err := NewEnumParser([]string{"Only"}, []int{7}, false)
	require.NoError(t, err)
	v, err = feed(single, "o")
	require.NoError(t, err)
	assert.Equal(t, 7, v.Value)
}

func TestEnumTrie(t *testing.T) {
	trie, err := NewEnumTrie([]string{"RED", "RED2", "GREEN"})
	require.NoError(t, err)

	assert.Equal(t, 0, trie.Lookup("red"))
	assert.Equal(t, 1, trie.Lookup("RED 2"))
	assert.Equal(t, 2, trie.Lookup("green"))
	assert.Equal(t, -1, trie.Lookup("blue"))
	assert.Equal(t, -1, trie.Lookup(""))

	id := 0
	for _, c := range "red2" {
		id, _ = trie.Next(id, c)
	}
	assert.Equal(t, "red2", trie.Path(id))

	_, err = NewEnumTrie([]string{"A_B", "ab"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = NewEnumTrie(nil)
	assert.Error(t, err)
	_, err = NewEnumTrie([]string{"--"})
	assert.Error(t, err)
}

func TestProvider(t *testing.T) {
	cfg := config.NewConfiguration()
	p := NewProvider(cfg)
	defer p.Release()

	a, err := p.For(reflect.TypeOf(0), false, "")
	require.NoError(t, err)
	b, err := p.For(reflect.TypeOf(0), false, "")
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := p.For(reflect.TypeOf(0), true, "")
	require.NoError(t, err)
	assert.NotSame(t, a, c)

	d1, err := p.For(reflect.TypeOf(time.Time{}), false, "yyyy")
	require.NoError(t, err)
	d2, err := p.For(reflect.TypeOf(time.Time{}), false, "yy")
	require.NoError(t, err)
	assert.NotSame(t, d1, d2)

	s, err := p.For(reflect.TypeOf(""), false, "")
	require.NoError(t, err)
	assert.Same(t, p.String(), s)

	_, err = p.For(reflect.TypeOf(time.Time{}), false, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = p.For(reflect.TypeOf(0), false, "yyyy")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
	_, err = p.For(reflect.TypeOf(struct{}{}), false, "")
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	type age int
	named, err := p.For(reflect.TypeOf(age(0)), false, "")
	require.NoError(t, err)
	assert.Equal(t, reflect.TypeOf(0), named.Type())
}

func TestProviderUsesDecimalPoint(t *testing.T) {
	cfg := config.NewConfiguration()
	require.NoError(t, cfg.SetDecimalPoint(','))
	p := NewProvider(cfg)

	parser, err := p.For(reflect.TypeOf(decimal.Decimal{}), false, "")
	require.NoError(t, err)
	v, err := feed(parser, "1.234,5")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("1234.5").Equal(v.Value.(decimal.Decimal)))
}
