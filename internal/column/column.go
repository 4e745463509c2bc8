// Package column describes how one CSV column maps onto a field, or onto a
// custom action, of the entity type T.
package column

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/ajitpratap0/csvmachine/internal/values"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// Unresolved is the Index of a column whose position is not known yet.
const Unresolved = -1

// Spec is one mapped column. Index is Unresolved until the header row is
// found, unless the column was bound by index. After Bind and Resolve the
// spec is read only and may be shared between goroutines.
type Spec[T any] struct {
	Name     string
	Index    int
	Format   string
	Type     reflect.Type
	Nullable bool
	Custom   bool
	Parser   values.Parser

	bind      func() (apply func(*T, any), nullable bool, err error)
	newParser func(p *values.Provider, nullable bool) (values.Parser, error)
	apply     func(*T, any)
	bound     bool
}

// Property maps a column onto the field returned by accessor. accessor must
// return the address of a field of its argument: a *V field is filled
// directly, a **V field makes the column nullable.
func Property[T, V any](name string, index int, accessor func(*T) any) *Spec[T] {
	s := newSpec[T, V](name, index)
	s.bind = func() (func(*T, any), bool, error) {
		if accessor == nil {
			return nil, false, errors.New(errors.ErrorTypeConfig, "column has no field accessor")
		}
		switch probe := accessor(new(T)); probe.(type) {
		case *V:
			return func(e *T, v any) {
				*(accessor(e).(*V)) = v.(V)
			}, false, nil
		case **V:
			return func(e *T, v any) {
				x := v.(V)
				*(accessor(e).(**V)) = &x
			}, true, nil
		default:
			return nil, false, errors.New(errors.ErrorTypeConfig, "column type mismatch").
				WithDetail("declared", s.Type.String()).
				WithDetail("field", fmt.Sprintf("%T", probe))
		}
	}
	return s
}

// Custom maps a column onto action. The action only sees non-null values.
func Custom[T, V any](name string, index int, action func(*T, V)) *Spec[T] {
	s := newSpec[T, V](name, index)
	s.Custom = true
	s.bind = func() (func(*T, any), bool, error) {
		if action == nil {
			return nil, false, errors.New(errors.ErrorTypeConfig, "custom column has no action")
		}
		return func(e *T, v any) {
			action(e, v.(V))
		}, false, nil
	}
	return s
}

// Enum makes s parse its values with an enum trie over names. names[i] is
// the CSV spelling of members[i]. Columns of one type share a parser only
// when their members are the same.
func Enum[T any, V comparable](s *Spec[T], names []string, members []V) {
	key := enumKey(names, members)
	s.newParser = func(p *values.Provider, nullable bool) (values.Parser, error) {
		return p.Cached(s.Type, nullable, key, func() (values.Parser, error) {
			return values.NewEnumParser(names, members, nullable)
		})
	}
}

func enumKey[V comparable](names []string, members []V) string {
	var b strings.Builder
	b.WriteString("enum")
	for i, name := range names {
		fmt.Fprintf(&b, "\x00%s", name)
		if i < len(members) {
			fmt.Fprintf(&b, "\x01%v", members[i])
		}
	}
	return b.String()
}

func newSpec[T, V any](name string, index int) *Spec[T] {
	return &Spec[T]{
		Name:  name,
		Index: index,
		Type:  reflect.TypeOf((*V)(nil)).Elem(),
	}
}

// Clone returns an unresolved copy of s for one parse run, so that specs
// registered once can be used by concurrent runs.
func (s *Spec[T]) Clone() *Spec[T] {
	c := *s
	c.Parser = nil
	return &c
}

// Bind resolves the setter. It runs once; later calls return nil.
func (s *Spec[T]) Bind() error {
	if s.bound {
		return nil
	}
	apply, nullable, err := s.bind()
	if err != nil {
		return s.describe(err)
	}
	s.apply = apply
	s.Nullable = s.Nullable || nullable
	s.bound = true
	return nil
}

// Resolve picks the value parser and checks that it produces the declared
// type.
func (s *Spec[T]) Resolve(p *values.Provider) error {
	var (
		parser values.Parser
		err    error
	)
	if s.newParser != nil {
		parser, err = s.newParser(p, s.Nullable)
	} else {
		parser, err = p.For(s.Type, s.Nullable, s.Format)
	}
	if err != nil {
		return s.describe(err)
	}
	if parser.Type() != s.Type {
		return errors.New(errors.ErrorTypeConfig, "column type mismatch").
			WithDetail("column", s.Label()).
			WithDetail("declared", s.Type.String()).
			WithDetail("produced", parser.Type().String())
	}
	s.Parser = parser
	return nil
}

// Apply writes a non-null value into e.
func (s *Spec[T]) Apply(e *T, v any) {
	s.apply(e, v)
}

// Bound reports whether Bind succeeded.
func (s *Spec[T]) Bound() bool { return s.bound }

// Label names the column for error messages.
func (s *Spec[T]) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("#%d", s.Index)
}

func (s *Spec[T]) describe(err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		e.WithDetail("column", s.Label())
		return e
	}
	return errors.Wrap(err, errors.ErrorTypeConfig, "invalid column").WithDetail("column", s.Label())
}
