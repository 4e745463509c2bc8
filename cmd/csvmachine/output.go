package main

import (
	"bufio"
	"io"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/csvmachine"
	"github.com/ajitpratap0/csvmachine/pkg/json"
)

// jsonLines writes one JSON object per record with the keys in schema
// order.
type jsonLines struct {
	buf    *bufio.Writer
	lines  *json.LinesWriter
	cfg    *config.Configuration
	schema *Schema
	// text renders every value through csvmachine.Format instead of its
	// JSON encoding
	text bool
	row  []any
}

func newJSONLines(w io.Writer, schema *Schema, cfg *config.Configuration, text bool) (*jsonLines, error) {
	keys := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		keys[i] = c.key()
	}
	buf := bufio.NewWriter(w)
	lines, err := json.NewLinesWriter(buf, keys)
	if err != nil {
		return nil, err
	}
	return &jsonLines{
		buf:    buf,
		lines:  lines,
		cfg:    cfg,
		schema: schema,
		text:   text,
		row:    make([]any, len(keys)),
	}, nil
}

func (o *jsonLines) write(r record) error {
	for i := range o.row {
		var v any
		if i < len(r.values) {
			v = r.values[i]
		}
		o.row[i] = o.value(v, o.schema.Columns[i].Format)
	}
	return o.lines.Write(o.row)
}

// value converts the values go-json would not render as text.
func (o *jsonLines) value(v any, format string) any {
	if v == nil {
		return nil
	}
	if o.text {
		return csvmachine.Format(v, o.cfg, format)
	}
	switch t := v.(type) {
	case label:
		return string(t)
	case csvmachine.Char:
		return string(rune(t))
	}
	return v
}

func (o *jsonLines) flush() error {
	return o.buf.Flush()
}
