// Package factory turns completed rows into entities of type T.
package factory

import (
	"fmt"

	"github.com/ajitpratap0/csvmachine/internal/column"
	"github.com/ajitpratap0/csvmachine/internal/machine"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// LineAction receives the whole row. values[i] is the typed value of CSV
// column i, or nil.
type LineAction[T any] func(entity *T, values []any)

// Factory builds entities from rows. It is read only after New and is
// shared by every consumer goroutine.
type Factory[T any] struct {
	properties []*column.Spec[T]
	custom     []*column.Spec[T]
	lines      []LineAction[T]
}

// New checks that every column is bound and indexed and splits them into
// property and custom columns, keeping registration order.
func New[T any](columns []*column.Spec[T], lines ...LineAction[T]) (*Factory[T], error) {
	f := &Factory[T]{lines: lines}
	for _, c := range columns {
		if !c.Bound() {
			return nil, errors.New(errors.ErrorTypeInternal, "column used before its setter was bound").
				WithDetail("column", c.Label())
		}
		if c.Index < 0 {
			return nil, errors.New(errors.ErrorTypeInternal, "column has no index").
				WithDetail("column", c.Label())
		}
		if c.Custom {
			f.custom = append(f.custom, c)
		} else {
			f.properties = append(f.properties, c)
		}
	}
	return f, nil
}

// Create builds one entity. Null values and columns missing from the row
// leave the entity untouched. A panic in a custom or line action is
// returned as an error carrying the row's line.
func (f *Factory[T]) Create(line machine.ResultLine) (entity T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrorTypeWorker, "entity construction panicked").
				WithDetail("line", line.Line).
				WithDetail("panic", fmt.Sprint(r))
		}
	}()

	for _, c := range f.properties {
		apply(&entity, c, line)
	}
	for _, c := range f.custom {
		apply(&entity, c, line)
	}
	if len(f.lines) > 0 {
		row := make([]any, len(line.Fields))
		for i, v := range line.Fields {
			row[i] = v.Value
		}
		for _, action := range f.lines {
			action(&entity, row)
		}
	}
	return entity, nil
}

// CreateAll builds entities for a batch of rows into dst.
func (f *Factory[T]) CreateAll(dst []T, lines []machine.ResultLine) ([]T, error) {
	for _, line := range lines {
		e, err := f.Create(line)
		if err != nil {
			return dst, err
		}
		dst = append(dst, e)
	}
	return dst, nil
}

func apply[T any](entity *T, c *column.Spec[T], line machine.ResultLine) {
	if c.Index >= len(line.Fields) {
		return
	}
	v := line.Fields[c.Index]
	if v.IsNull() {
		return
	}
	c.Apply(entity, v.Value)
}
