// Package machine implements the lexical state machine that splits a CSV
// character stream into fields and rows while feeding every field straight
// into its column's value parser.
//
// The machine runs in one of two modes. While searching for the header row
// every column is read as a string and each completed row is tested against
// the registered column names. In content mode each column has its typed
// parser and completed rows are handed to the emitter.
package machine

import (
	"go.uber.org/zap"

	"github.com/ajitpratap0/csvmachine/internal/values"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// ResultLine is one completed content row. Fields[i] holds CSV column i;
// columns missing from the row are null. Line is the 0-based line the row
// started on.
type ResultLine struct {
	Fields []values.ResultValue
	Line   int
}

// Emitter receives completed content rows. An error stops the machine.
type Emitter func(ResultLine) error

type lineState uint8

const (
	stateInitial lineState = iota
	stateUnquoted
	stateQuoted
	stateComment
	stateSkip
)

type quoteState uint8

const (
	quoteRunning quoteState = iota
	quoteEscaped
	quoteClosed
)

type mode uint8

const (
	modeHeader mode = iota
	modeAwaitingContent
	modeContent
)

// rows of fields are cut from slabs of this many rows
const slabRows = 256

// Machine is the CSV lexer. It is not safe for concurrent use.
type Machine struct {
	delimiter rune
	quote     rune
	escape    rune
	comment   rune
	newline   rune
	dropCR    bool

	maxColumns  int
	headerLimit int
	headerNames []string
	headerIndex map[string]int

	provider *values.Provider
	parsers  []values.Parser
	emit     Emitter
	log      *zap.Logger

	mode    mode
	state   lineState
	quoting quoting
	parser  values.Parser
	fields  []values.ResultValue
	slab    []values.ResultValue
	column  int
	pending bool
	line    int
	rowLine int
	started bool
	rows    int
}

type quoting struct {
	state   quoteState
	inSkip  bool
	escaped bool
}

// New returns a machine in header search mode for the given column names.
// Call SetContent before Process to skip the header search.
func New(cfg *config.Configuration, provider *values.Provider, names []string, logger *zap.Logger) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Machine{
		delimiter:   rune(cfg.Delimiter),
		quote:       rune(cfg.Quote),
		escape:      cfg.Escape(),
		comment:     rune(cfg.Comment),
		newline:     rune(cfg.NewLine),
		dropCR:      cfg.NewLine == '\n',
		maxColumns:  cfg.MaxNumberOfColumns,
		headerLimit: cfg.HeaderSearchLimit,
		headerNames: names,
		provider:    provider,
		log:         logger.With(zap.String("component", "csv_machine")),
		fields:      make([]values.ResultValue, 0, cfg.MaxNumberOfColumns),
	}
	m.parser = provider.String()
	return m
}

// SetContent switches the machine to content mode. parsers[i] parses CSV
// column i; a nil entry discards the column. Columns beyond the slice are
// skipped without parsing.
func (m *Machine) SetContent(parsers []values.Parser, emit Emitter) error {
	if m.state != stateInitial || m.pending {
		return errors.New(errors.ErrorTypeInternal, "content mode can only start at a row boundary")
	}
	if len(parsers) == 0 {
		return errors.New(errors.ErrorTypeConfig, "no columns registered")
	}
	m.parsers = make([]values.Parser, len(parsers))
	for i, p := range parsers {
		if p == nil {
			p = m.provider.Skip()
		}
		m.parsers[i] = p
	}
	m.emit = emit
	m.mode = modeContent
	m.fields = make([]values.ResultValue, len(parsers))
	m.beginField()
	return nil
}

// HeaderFound reports whether the header row has been found and the
// machine now waits for SetContent.
func (m *Machine) HeaderFound() bool {
	return m.mode == modeAwaitingContent
}

// Headers returns the column index of every registered name, taken from
// the header row. It is nil until the header row is found.
func (m *Machine) Headers() map[string]int {
	return m.headerIndex
}

// Line returns the number of lines consumed so far.
func (m *Machine) Line() int {
	return m.line
}

// Rows returns the number of content rows emitted so far.
func (m *Machine) Rows() int {
	return m.rows
}

// Process feeds buf to the machine and returns how many runes it consumed.
// It returns early, right after the header row, when that row is found so
// the caller can switch to content mode before any content row is read.
func (m *Machine) Process(buf []rune) (int, error) {
	if m.mode == modeAwaitingContent {
		return 0, errors.New(errors.ErrorTypeInternal, "header found, content mode not set")
	}
	for i, c := range buf {
		if !m.started {
			m.started = true
			if c == '\uFEFF' {
				continue
			}
		}
		if c == '\r' && m.dropCR {
			continue
		}
		if err := m.step(c); err != nil {
			return i + 1, err
		}
		if m.mode == modeAwaitingContent {
			return i + 1, nil
		}
	}
	return len(buf), nil
}

// Finish signals the end of the stream. A pending row is completed as if a
// newline had been read.
func (m *Machine) Finish() error {
	if m.mode == modeAwaitingContent {
		return nil
	}
	if (m.state == stateQuoted && m.quoting.state != quoteClosed) || (m.state == stateSkip && m.quoting.inSkip) {
		return m.malformed("unterminated quoted field")
	}
	if m.state != stateInitial || m.pending {
		if err := m.step(m.newline); err != nil {
			return err
		}
	}
	if m.mode == modeHeader {
		return errors.New(errors.ErrorTypeMalformed, "header not found").
			WithDetail("lines", m.line).
			WithDetail("search_limit", m.headerLimit)
	}
	return nil
}

func (m *Machine) step(c rune) error {
	switch m.state {
	case stateInitial:
		switch {
		case c == m.quote:
			m.state = stateQuoted
			m.quoting.state = quoteRunning
		case c == m.comment && m.comment != 0 && m.column == 0 && !m.pending:
			m.state = stateComment
		case c == m.newline:
			if m.column == 0 && !m.pending {
				m.line++
				m.rowLine = m.line
				return m.checkHeaderLimit()
			}
			return m.endRow()
		case c == m.delimiter:
			return m.nextField()
		default:
			m.state = stateUnquoted
			m.feed(c)
		}

	case stateUnquoted:
		switch c {
		case m.delimiter:
			return m.nextField()
		case m.newline:
			return m.endRow()
		default:
			m.feed(c)
		}

	case stateQuoted:
		return m.stepQuoted(c)

	case stateComment:
		if c == m.newline {
			m.line++
			m.rowLine = m.line
			m.state = stateInitial
			return m.checkHeaderLimit()
		}

	case stateSkip:
		m.stepSkip(c)
		if c == m.newline && !m.quoting.inSkip {
			return m.completeRow()
		}
	}
	return nil
}

func (m *Machine) stepQuoted(c rune) error {
	switch m.quoting.state {
	case quoteRunning:
		switch {
		case c == m.quote:
			m.quoting.state = quoteClosed
		case c == m.escape && m.escape != m.quote:
			m.quoting.state = quoteEscaped
		default:
			// a newline inside quotes is data
			if c == m.newline {
				m.line++
			}
			m.feed(c)
		}

	case quoteEscaped:
		if c == m.newline {
			m.line++
		}
		m.feed(c)
		m.quoting.state = quoteRunning

	case quoteClosed:
		switch {
		case c == m.quote && m.escape == m.quote:
			m.feed(c)
			m.quoting.state = quoteRunning
		case c == m.delimiter:
			return m.nextField()
		case c == m.newline:
			return m.endRow()
		default:
			return m.malformed("invalid character after closing quote").
				WithDetail("char", string(c))
		}
	}
	return nil
}

// stepSkip tracks quotes in skipped columns so that delimiters and
// newlines inside them are not taken as boundaries.
func (m *Machine) stepSkip(c rune) {
	q := &m.quoting
	switch {
	case q.escaped:
		q.escaped = false
	case q.inSkip && c == m.escape && m.escape != m.quote:
		q.escaped = true
	case c == m.quote:
		// a doubled quote toggles twice and stays inside the field
		q.inSkip = !q.inSkip
	case c == m.newline && q.inSkip:
		m.line++
	}
}

func (m *Machine) feed(c rune) {
	if m.parser.State() == values.Parsing {
		m.parser.Process(c)
	}
}

func (m *Machine) endField() error {
	v, err := m.parser.Finish()
	if err != nil {
		return m.fieldError(err)
	}
	if m.mode == modeHeader {
		m.fields = append(m.fields, v)
	} else {
		m.fields[m.column] = v
	}
	m.column++
	m.pending = true
	m.state = stateInitial
	return nil
}

func (m *Machine) nextField() error {
	if err := m.endField(); err != nil {
		return err
	}
	return m.beginField()
}

func (m *Machine) endRow() error {
	if err := m.endField(); err != nil {
		return err
	}
	return m.completeRow()
}

// beginField selects the parser for the current column.
func (m *Machine) beginField() error {
	switch m.mode {
	case modeHeader:
		if m.column >= m.maxColumns {
			return errors.New(errors.ErrorTypeConfig, "row exceeds max_number_of_columns while searching for headers").
				WithDetail("line", m.rowLine).
				WithDetail("max_number_of_columns", m.maxColumns)
		}
		m.parser = m.provider.String()
	case modeContent:
		if m.column < len(m.parsers) {
			m.parser = m.parsers[m.column]
		} else {
			m.state = stateSkip
			m.quoting = quoting{}
		}
	}
	return nil
}

func (m *Machine) completeRow() error {
	rowLine := m.rowLine
	m.line++
	m.rowLine = m.line
	m.column = 0
	m.pending = false
	m.state = stateInitial
	m.quoting = quoting{}

	if m.mode == modeHeader {
		if rowLine < m.headerLimit && m.matchHeaders() {
			m.log.Debug("header row found",
				zap.Int("line", rowLine),
				zap.Int("columns", len(m.fields)))
			m.mode = modeAwaitingContent
			m.fields = m.fields[:0]
			return nil
		}
		m.fields = m.fields[:0]
		if err := m.checkHeaderLimit(); err != nil {
			return err
		}
		return m.beginField()
	}

	row := m.cut(len(m.fields))
	copy(row, m.fields)
	for i := range m.fields {
		m.fields[i] = values.ResultValue{}
	}
	m.rows++
	if err := m.beginField(); err != nil {
		return err
	}
	if m.emit == nil {
		return nil
	}
	return m.emit(ResultLine{Fields: row, Line: rowLine})
}

// cut hands out a row-sized slice of a shared slab so that emitting a row
// does not allocate every time.
func (m *Machine) cut(width int) []values.ResultValue {
	if len(m.slab) < width {
		m.slab = make([]values.ResultValue, width*slabRows)
	}
	row := m.slab[:width:width]
	m.slab = m.slab[width:]
	return row
}

func (m *Machine) matchHeaders() bool {
	index := make(map[string]int, len(m.fields))
	for i, v := range m.fields {
		name, ok := v.Value.(string)
		if !ok {
			continue
		}
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}
	found := make(map[string]int, len(m.headerNames))
	for _, name := range m.headerNames {
		i, ok := index[name]
		if !ok {
			return false
		}
		found[name] = i
	}
	m.headerIndex = found
	return true
}

func (m *Machine) checkHeaderLimit() error {
	if m.mode == modeHeader && m.line >= m.headerLimit {
		return errors.New(errors.ErrorTypeMalformed, "header not found").
			WithDetail("lines", m.line).
			WithDetail("search_limit", m.headerLimit)
	}
	return nil
}

func (m *Machine) malformed(message string) *errors.Error {
	return errors.New(errors.ErrorTypeMalformed, message).
		WithDetail("line", m.rowLine).
		WithDetail("column", m.column)
}

func (m *Machine) fieldError(err error) error {
	var e *errors.Error
	if errors.As(err, &e) {
		e.WithDetail("line", m.rowLine).WithDetail("column", m.column)
		return e
	}
	return errors.Wrap(err, errors.ErrorTypeMalformed, "field could not be parsed").
		WithDetail("line", m.rowLine).
		WithDetail("column", m.column)
}
