// Package csvmachine maps CSV input straight into typed Go values.
//
// # Overview
//
// A Parser[T] holds the column mapping of one entity type. Columns are bound
// by header name (the header row is searched for in the first
// HeaderSearchLimit lines) or by 0-based index (no header search). Fields
// are parsed character by character into the column's Go type without an
// intermediate string table, and rows are turned into entities on
// FactoryThreads goroutines. The result keeps the order of the input.
//
// # Basic Usage
//
//	type Trade struct {
//	    Symbol string
//	    Qty    int
//	    Price  decimal.Decimal
//	    Fee    *decimal.Decimal // nullable
//	}
//
//	p := csvmachine.New[Trade]()
//	csvmachine.Property[string](p, "symbol", func(t *Trade) any { return &t.Symbol })
//	csvmachine.Property[int](p, "qty", func(t *Trade) any { return &t.Qty })
//	csvmachine.Property[decimal.Decimal](p, "price", func(t *Trade) any { return &t.Price })
//	csvmachine.Property[decimal.Decimal](p, "fee", func(t *Trade) any { return &t.Fee })
//
//	trades, err := p.ParseFile(ctx, "trades.csv.gz", nil)
//
// # Supported Types
//
// string, Char, every integer width, float32, float64, decimal.Decimal,
// time.Time (with a Format) and enums registered with Enum. A property
// whose field is a pointer to the column type is nullable: empty or
// unparsable fields leave it nil. Other columns reject them with an
// ErrorTypeMalformed error.
//
// # Thread Safety
//
// Register columns before the first Parse. After that a Parser may be used
// by several goroutines at once.
package csvmachine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/internal/column"
	"github.com/ajitpratap0/csvmachine/internal/factory"
	"github.com/ajitpratap0/csvmachine/internal/values"
	"github.com/ajitpratap0/csvmachine/internal/workflow"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/logger"
	"github.com/ajitpratap0/csvmachine/pkg/source"
)

// Char is a single-character column type.
type Char = values.Char

// Parser maps CSV rows onto values of type T.
type Parser[T any] struct {
	columns []*column.Spec[T]
	lines   []factory.LineAction[T]
	logger  *zap.Logger
}

// Option configures a Parser.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger of every run. By default runs log through
// logger.Get. Either way every entry of a run carries its run_id.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New creates a parser without columns.
func New[T any](opts ...Option) *Parser[T] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &Parser[T]{logger: o.logger}
}

// Column is a registered column. Its methods refine the mapping.
type Column[T any] struct {
	spec *column.Spec[T]
}

// Format sets the input format of a time.Time column, e.g. "yyyy-MM-dd".
func (c *Column[T]) Format(format string) *Column[T] {
	c.spec.Format = format
	return c
}

// Nullable lets the column accept empty or unparsable fields, leaving the
// field at its zero value.
func (c *Column[T]) Nullable() *Column[T] {
	c.spec.Nullable = true
	return c
}

// Name returns the header name, or "" for an index-bound column.
func (c *Column[T]) Name() string { return c.spec.Name }

func (p *Parser[T]) add(spec *column.Spec[T]) *Column[T] {
	p.columns = append(p.columns, spec)
	return &Column[T]{spec: spec}
}

// Property maps the header column name onto the field returned by
// accessor, which must return the address of a field of its argument.
// V is the column type; the field must be a V or a *V.
func Property[V, T any](p *Parser[T], name string, accessor func(*T) any) *Column[T] {
	return p.add(column.Property[T, V](name, column.Unresolved, accessor))
}

// PropertyIndex is Property for the column at a 0-based index. A parser
// that uses index-bound columns does not search for a header row.
func PropertyIndex[V, T any](p *Parser[T], index int, accessor func(*T) any) *Column[T] {
	return p.add(column.Property[T, V]("", index, accessor))
}

// Custom hands the non-null values of the header column name to action.
func Custom[V, T any](p *Parser[T], name string, action func(*T, V)) *Column[T] {
	return p.add(column.Custom[T, V](name, column.Unresolved, action))
}

// CustomIndex is Custom for the column at a 0-based index.
func CustomIndex[V, T any](p *Parser[T], index int, action func(*T, V)) *Column[T] {
	return p.add(column.Custom[T, V]("", index, action))
}

// Member is an enum value that can name itself.
type Member interface {
	comparable
	fmt.Stringer
}

// Enum maps the header column name onto an enum field. Members are matched
// by their String form: case-insensitive, ignoring characters other than
// letters and digits, accepting any prefix that identifies one member.
func Enum[V Member, T any](p *Parser[T], name string, accessor func(*T) any, members ...V) *Column[T] {
	return WithEnum(Property[V](p, name, accessor), members...)
}

// WithEnum turns an already registered column into an enum column.
func WithEnum[V Member, T any](c *Column[T], members ...V) *Column[T] {
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.String()
	}
	column.Enum(c.spec, names, members)
	return c
}

// LineAction registers an action that sees every row as a whole. values[i]
// is the typed value of CSV column i, or nil. Line actions run after all
// column setters.
func LineAction[T any](p *Parser[T], action func(entity *T, values []any)) {
	p.lines = append(p.lines, action)
}

// Parse maps r. A nil cfg uses NewConfiguration. Compression other than
// CompressionAuto and the configured Encoding are applied to r.
func (p *Parser[T]) Parse(ctx context.Context, r io.Reader, cfg *config.Configuration) ([]T, error) {
	cfg = orDefault(cfg)
	src, err := source.NewReader(r, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return p.run(ctx, src, cfg)
}

// ParseString maps the CSV document s.
func (p *Parser[T]) ParseString(ctx context.Context, s string, cfg *config.Configuration) ([]T, error) {
	return p.Parse(ctx, strings.NewReader(s), cfg)
}

// ParseFile maps the file at path. With CompressionAuto the compression is
// detected from the file extension.
func (p *Parser[T]) ParseFile(ctx context.Context, path string, cfg *config.Configuration) ([]T, error) {
	cfg = orDefault(cfg)
	src, err := source.Open(path, cfg)
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return p.run(ctx, src, cfg)
}

func (p *Parser[T]) run(ctx context.Context, src *source.Source, cfg *config.Configuration) ([]T, error) {
	ctx = logger.WithRun(ctx, "", src.Name)
	runID, _ := logger.RunID(ctx)
	log := p.logger
	if log == nil {
		log = logger.Get()
	}
	log = log.With(zap.String("run_id", runID))

	w, err := workflow.New(workflow.Options[T]{
		Config:  cfg,
		Columns: p.columns,
		Lines:   p.lines,
		Source:  src.Name,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}
	return w.Run(ctx, src)
}

// Format renders a value produced by a column back into CSV text using the
// same configuration. format is only used for time.Time values.
func Format(v any, cfg *config.Configuration, format string) string {
	return values.Format(v, orDefault(cfg), format)
}

func orDefault(cfg *config.Configuration) *config.Configuration {
	if cfg == nil {
		return config.NewConfiguration()
	}
	return cfg
}
