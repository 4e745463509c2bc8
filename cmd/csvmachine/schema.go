package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/csvmachine"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// Schema describes the columns the parse command maps. It is read from YAML:
//
//	columns:
//	  - name: id
//	    type: int64
//	  - name: price
//	    type: decimal
//	    nullable: true
//	  - name: traded_at
//	    type: datetime
//	    format: yyyy-MM-dd HH:mm
//	  - name: side
//	    type: enum
//	    values: [BUY, SELL]
type Schema struct {
	Columns []ColumnSchema `yaml:"columns" json:"columns"`
}

// ColumnSchema is one mapped column. Exactly one of Name and Index is set.
type ColumnSchema struct {
	Name     string   `yaml:"name" json:"name,omitempty"`
	Index    *int     `yaml:"index" json:"index,omitempty"`
	Field    string   `yaml:"field" json:"field,omitempty"`
	Type     string   `yaml:"type" json:"type"`
	Format   string   `yaml:"format" json:"format,omitempty"`
	Nullable bool     `yaml:"nullable" json:"nullable,omitempty"`
	Values   []string `yaml:"values" json:"values,omitempty"`
}

// key is the JSON key the column is written under.
func (c ColumnSchema) key() string {
	switch {
	case c.Field != "":
		return c.Field
	case c.Name != "":
		return c.Name
	default:
		return fmt.Sprintf("column_%d", *c.Index)
	}
}

// label is an enum member declared in a schema.
type label string

func (l label) String() string { return string(l) }

// record is the entity the parse command maps rows into. values[i] holds
// schema column i.
type record struct {
	values []any
}

func (r *record) set(i int, v any) {
	for len(r.values) <= i {
		r.values = append(r.values, nil)
	}
	r.values[i] = v
}

// LoadSchema reads a schema file. ${VAR} references are expanded from the
// environment.
func LoadSchema(path string) (*Schema, error) {
	var s Schema
	if err := config.Load(path, &s); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load schema").
			WithDetail("path", path)
	}
	if len(s.Columns) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "schema has no columns").
			WithDetail("path", path)
	}
	return &s, nil
}

// Build registers every schema column on a new parser.
func (s *Schema) Build(opts ...csvmachine.Option) (*csvmachine.Parser[record], error) {
	p := csvmachine.New[record](opts...)
	for i, c := range s.Columns {
		if (c.Name == "") == (c.Index == nil) {
			return nil, errors.New(errors.ErrorTypeConfig, "schema column needs exactly one of name and index").
				WithDetail("position", i)
		}
		col, err := c.register(p, i)
		if err != nil {
			return nil, err
		}
		if c.Format != "" {
			col.Format(c.Format)
		}
		if c.Nullable {
			col.Nullable()
		}
	}
	return p, nil
}

func (c ColumnSchema) register(p *csvmachine.Parser[record], slot int) (*csvmachine.Column[record], error) {
	switch strings.ToLower(c.Type) {
	case "", "string":
		return add[string](p, c, slot), nil
	case "char":
		return add[csvmachine.Char](p, c, slot), nil
	case "int":
		return add[int](p, c, slot), nil
	case "int8":
		return add[int8](p, c, slot), nil
	case "int16":
		return add[int16](p, c, slot), nil
	case "int32":
		return add[int32](p, c, slot), nil
	case "int64":
		return add[int64](p, c, slot), nil
	case "uint":
		return add[uint](p, c, slot), nil
	case "uint8":
		return add[uint8](p, c, slot), nil
	case "uint16":
		return add[uint16](p, c, slot), nil
	case "uint32":
		return add[uint32](p, c, slot), nil
	case "uint64":
		return add[uint64](p, c, slot), nil
	case "float32":
		return add[float32](p, c, slot), nil
	case "float", "float64":
		return add[float64](p, c, slot), nil
	case "decimal":
		return add[decimal.Decimal](p, c, slot), nil
	case "datetime":
		if c.Format == "" {
			return nil, errors.New(errors.ErrorTypeConfig, "datetime column needs a format").
				WithDetail("column", c.key())
		}
		return add[time.Time](p, c, slot), nil
	case "enum":
		if len(c.Values) == 0 {
			return nil, errors.New(errors.ErrorTypeConfig, "enum column needs values").
				WithDetail("column", c.key())
		}
		members := make([]label, len(c.Values))
		for i, v := range c.Values {
			members[i] = label(v)
		}
		return csvmachine.WithEnum(add[label](p, c, slot), members...), nil
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "unknown column type").
			WithDetail("column", c.key()).
			WithDetail("type", c.Type)
	}
}

func add[V any](p *csvmachine.Parser[record], c ColumnSchema, slot int) *csvmachine.Column[record] {
	action := func(r *record, v V) { r.set(slot, v) }
	if c.Index != nil {
		return csvmachine.CustomIndex(p, *c.Index, action)
	}
	return csvmachine.Custom(p, c.Name, action)
}
