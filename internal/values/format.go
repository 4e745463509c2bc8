package values

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/csvmachine/pkg/config"
)

// Format renders a parsed value back to CSV text using the number format of
// cfg. Dates use the positional format understood by DateTimeParser.
func Format(v any, cfg *config.Configuration, format string) string {
	point := rune(cfg.DecimalPoint)
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case Char:
		return string(rune(x))
	case decimal.Decimal:
		return withPoint(x.String(), point)
	case float64:
		return withPoint(strconv.FormatFloat(x, 'f', -1, 64), point)
	case float32:
		return withPoint(strconv.FormatFloat(float64(x), 'f', -1, 32), point)
	case time.Time:
		return FormatDateTime(x, format)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func withPoint(s string, point rune) string {
	if point == '.' {
		return s
	}
	return strings.Replace(s, ".", string(point), 1)
}

// FormatDateTime renders t with a positional format. Runs of a format
// character are zero padded to the run length; a run of 'y' shorter than
// three prints the last two digits of the year.
func FormatDateTime(t time.Time, format string) string {
	f := []rune(format)
	twelveHour := strings.ContainsRune(format, 'h')

	var b strings.Builder
	for i := 0; i < len(f); {
		c := f[i]
		n := 1
		for i+n < len(f) && f[i+n] == c {
			n++
		}
		i += n

		switch c {
		case 'y':
			year := t.Year()
			if n <= 2 {
				year %= 100
			}
			pad(&b, year, n)
		case 'M':
			pad(&b, int(t.Month()), n)
		case 'd':
			pad(&b, t.Day(), n)
		case 'H':
			pad(&b, t.Hour(), n)
		case 'h':
			h := t.Hour() % 12
			if h == 0 {
				h = 12
			}
			pad(&b, h, n)
		case 'm':
			pad(&b, t.Minute(), n)
		case 's':
			pad(&b, t.Second(), n)
		case 'f':
			frac := t.Nanosecond()
			for d := 9; d > n; d-- {
				frac /= 10
			}
			pad(&b, frac, n)
		case 't', 'T':
			if !twelveHour {
				b.WriteString(strings.Repeat(string(c), n))
				continue
			}
			marker := "AM"
			if t.Hour() >= 12 {
				marker = "PM"
			}
			b.WriteString(marker[:min(n, 2)])
		default:
			b.WriteString(strings.Repeat(string(c), n))
		}
	}
	return b.String()
}

func pad(b *strings.Builder, v, width int) {
	s := strconv.Itoa(v)
	for i := len(s); i < width; i++ {
		b.WriteByte('0')
	}
	b.WriteString(s)
}
