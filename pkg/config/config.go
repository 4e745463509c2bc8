package config

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// Char is a single character setting. The zero value means "not set".
// In YAML and JSON it is written as a one character string.
type Char rune

// String returns the character, or "" when unset.
func (c Char) String() string {
	if c == 0 {
		return ""
	}
	return string(rune(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Char) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Char) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*c = 0
		return nil
	}
	r, size := utf8.DecodeRune(text)
	if r == utf8.RuneError || size != len(text) {
		return fmt.Errorf("expected a single character, got %q", string(text))
	}
	*c = Char(r)
	return nil
}

// Compression selects how the input stream is decompressed.
type Compression string

const (
	// CompressionAuto picks the algorithm from the file extension
	CompressionAuto Compression = "auto"
	// CompressionNone reads the input as is
	CompressionNone Compression = "none"
	// CompressionGzip reads gzip input
	CompressionGzip Compression = "gzip"
	// CompressionZstd reads zstd input
	CompressionZstd Compression = "zstd"
	// CompressionLZ4 reads lz4 frame input
	CompressionLZ4 Compression = "lz4"
	// CompressionSnappy reads snappy framed input
	CompressionSnappy Compression = "snappy"
	// CompressionS2 reads s2 framed input
	CompressionS2 Compression = "s2"
)

// Valid reports whether c names a supported compression.
func (c Compression) Valid() bool {
	switch c {
	case "", CompressionAuto, CompressionNone, CompressionGzip, CompressionZstd,
		CompressionLZ4, CompressionSnappy, CompressionS2:
		return true
	default:
		return false
	}
}

const (
	// MinEntityQueueSize is the smallest accepted queue capacity
	MinEntityQueueSize = 20
	// MaxFactoryThreads is the largest accepted number of consumer goroutines
	MaxFactoryThreads = 10
)

// Configuration controls one CSV mapping run.
type Configuration struct {
	// CSV dialect

	// Delimiter separates fields
	Delimiter Char `yaml:"delimiter" json:"delimiter"`
	// Quote starts and ends a quoted field
	Quote Char `yaml:"quote" json:"quote"`
	// QuoteEscape escapes a quote inside a quoted field. When it equals Quote
	// a quote is escaped by doubling it.
	QuoteEscape Char `yaml:"quote_escape" json:"quote_escape"`
	// Comment marks a comment line when it is the first character of a line
	Comment Char `yaml:"comment" json:"comment"`
	// NewLine terminates a row. When it is '\n', '\r' is dropped from the input.
	NewLine Char `yaml:"newline" json:"newline"`

	// Number format

	// DecimalPoint is '.' or ','. Use SetDecimalPoint to change it.
	DecimalPoint Char `yaml:"decimal_point" json:"decimal_point"`

	// Input

	// Encoding is the IANA name of the input character set
	Encoding string `yaml:"encoding" json:"encoding"`
	// Compression selects input decompression
	Compression Compression `yaml:"compression" json:"compression"`
	// BufferSize is the read buffer size in bytes
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`

	// Limits

	// HeaderSearchLimit is the number of lines searched for the header row
	HeaderSearchLimit int `yaml:"header_search_limit" json:"header_search_limit"`
	// MaxNumberOfColumns bounds the width of a row while searching for headers
	MaxNumberOfColumns int `yaml:"max_number_of_columns" json:"max_number_of_columns"`
	// MaxColumnLength bounds a string field in bytes
	MaxColumnLength int `yaml:"max_column_length" json:"max_column_length"`

	// Concurrency

	// EntityQueueSize is the capacity of the row queue
	EntityQueueSize int `yaml:"entity_queue_size" json:"entity_queue_size"`
	// FactoryThreads is the number of goroutines building entities
	FactoryThreads int `yaml:"factory_threads" json:"factory_threads"`
}

// NewConfiguration returns a Configuration with the default CSV dialect:
// comma separated, double quoted, '\n' terminated, '.' decimal point, UTF-8.
func NewConfiguration() *Configuration {
	return &Configuration{
		Delimiter:          ',',
		Quote:              '"',
		QuoteEscape:        '"',
		NewLine:            '\n',
		DecimalPoint:       '.',
		Encoding:           "utf-8",
		Compression:        CompressionAuto,
		BufferSize:         81920,
		HeaderSearchLimit:  15,
		MaxNumberOfColumns: 15,
		MaxColumnLength:    4096,
		EntityQueueSize:    2000,
		FactoryThreads:     2,
	}
}

// SetDecimalPoint sets the decimal point. Only '.' and ',' are accepted.
func (c *Configuration) SetDecimalPoint(point rune) error {
	if point != '.' && point != ',' {
		return errors.Newf(errors.ErrorTypeConfig, "decimal point must be '.' or ',', got %q", point).
			WithDetail("field", "decimal_point")
	}
	c.DecimalPoint = Char(point)
	return nil
}

// ThousandsChar returns the thousands separator, which is always the
// character DecimalPoint is not.
func (c *Configuration) ThousandsChar() rune {
	if c.DecimalPoint == ',' {
		return '.'
	}
	return ','
}

// Escape returns the effective quote escape character.
func (c *Configuration) Escape() rune {
	if c.QuoteEscape == 0 {
		return rune(c.Quote)
	}
	return rune(c.QuoteEscape)
}

// TextEncoding resolves Encoding. UTF-8 (or an empty name) resolves to
// unicode.UTF8, which callers treat as "no transcoding".
func (c *Configuration) TextEncoding() (encoding.Encoding, error) {
	name := strings.TrimSpace(c.Encoding)
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return unicode.UTF8, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "unknown encoding").
			WithDetail("encoding", c.Encoding)
	}
	if enc == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "unsupported encoding").
			WithDetail("encoding", c.Encoding)
	}
	return enc, nil
}

// Validate checks the configuration. All failures are ErrorTypeConfig errors.
func (c *Configuration) Validate() error {
	if c.Delimiter == 0 {
		return configError("delimiter", "delimiter is required")
	}
	if c.Quote == 0 {
		return configError("quote", "quote is required")
	}
	if c.NewLine == 0 {
		return configError("newline", "newline is required")
	}
	if c.Delimiter == c.Quote || c.Delimiter == c.NewLine || c.Quote == c.NewLine {
		return configError("delimiter", "delimiter, quote and newline must be distinct")
	}
	if c.Comment != 0 && (c.Comment == c.Delimiter || c.Comment == c.Quote || c.Comment == c.NewLine) {
		return configError("comment", "comment must differ from delimiter, quote and newline")
	}
	if c.DecimalPoint != '.' && c.DecimalPoint != ',' {
		return configError("decimal_point", "decimal point must be '.' or ','")
	}
	if c.BufferSize < utf8.UTFMax {
		return configError("buffer_size", fmt.Sprintf("buffer_size must be at least %d", utf8.UTFMax))
	}
	if c.HeaderSearchLimit <= 0 {
		return configError("header_search_limit", "header_search_limit must be positive")
	}
	if c.MaxNumberOfColumns <= 0 {
		return configError("max_number_of_columns", "max_number_of_columns must be positive")
	}
	if c.MaxColumnLength <= 0 {
		return configError("max_column_length", "max_column_length must be positive")
	}
	if c.FactoryThreads <= 0 {
		return configError("factory_threads", "factory_threads must be positive")
	}
	if c.FactoryThreads > MaxFactoryThreads {
		return configError("factory_threads", fmt.Sprintf("factory_threads cannot exceed %d", MaxFactoryThreads))
	}
	if c.EntityQueueSize < MinEntityQueueSize {
		return configError("entity_queue_size", fmt.Sprintf("entity_queue_size must be at least %d", MinEntityQueueSize))
	}
	if c.EntityQueueSize <= c.FactoryThreads {
		return configError("entity_queue_size", "entity_queue_size must be greater than factory_threads")
	}
	if !c.Compression.Valid() {
		return configError("compression", fmt.Sprintf("unknown compression %q", c.Compression))
	}
	if _, err := c.TextEncoding(); err != nil {
		return err
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Configuration) Clone() *Configuration {
	clone := *c
	return &clone
}

func configError(field, message string) error {
	return errors.New(errors.ErrorTypeConfig, message).WithDetail("field", field)
}
