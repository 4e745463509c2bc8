package values

import (
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/csvmachine/pkg/config"
)

func TestRoundTrip(t *testing.T) {
	dotted := config.NewConfiguration()
	comma := config.NewConfiguration()
	require.NoError(t, comma.SetDecimalPoint(','))

	tests := []struct {
		name   string
		cfg    *config.Configuration
		typ    reflect.Type
		format string
		input  string
	}{
		{"int", dotted, reflect.TypeOf(0), "", "-12345"},
		{"uint16", dotted, reflect.TypeOf(uint16(0)), "", "65535"},
		{"decimal", dotted, reflect.TypeOf(decimal.Decimal{}), "", "-1234.0625"},
		{"decimal comma", comma, reflect.TypeOf(decimal.Decimal{}), "", "3,14159"},
		{"float", dotted, reflect.TypeOf(0.0), "", "0.125"},
		{"float comma", comma, reflect.TypeOf(0.0), "", "-7,5"},
		{"iso date", dotted, reflect.TypeOf(time.Time{}), "yyyy-MM-ddTHH:mm:ss.fffZ", "2023-04-05T13:14:15.678Z"},
		{"twelve hour", dotted, reflect.TypeOf(time.Time{}), "dd/MM/yy hh:mm tt", "09/11/21 07:05 PM"},
		{"string", dotted, reflect.TypeOf(""), "", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(tt.cfg)
			defer p.Release()

			parser, err := p.For(tt.typ, false, tt.format)
			require.NoError(t, err)
			v, err := feed(parser, tt.input)
			require.NoError(t, err)

			assert.Equal(t, tt.input, Format(v.Value, tt.cfg, tt.format))
		})
	}
}

func TestRoundTripDropsThousands(t *testing.T) {
	cfg := config.NewConfiguration()
	p := NewProvider(cfg)
	parser, err := p.For(reflect.TypeOf(decimal.Decimal{}), false, "")
	require.NoError(t, err)

	v, err := feed(parser, "1,234,567.5")
	require.NoError(t, err)
	assert.Equal(t, "1234567.5", Format(v.Value, cfg, ""))
}

func TestFormatDateTime(t *testing.T) {
	ts := time.Date(2005, 3, 4, 0, 7, 8, 900000000, time.UTC)

	assert.Equal(t, "2005-03-04 00:07:08.9", FormatDateTime(ts, "yyyy-MM-dd HH:mm:ss.f"))
	assert.Equal(t, "04.03.05 12:07 AM", FormatDateTime(ts, "dd.MM.yy hh:mm tt"))
	assert.Equal(t, "", Format(nil, config.NewConfiguration(), ""))
	assert.Equal(t, "x", Format(Char('x'), config.NewConfiguration(), ""))
}
