// Package source opens CSV inputs. It undoes compression and transcodes the
// configured character encoding so that the mapper always reads UTF-8.
package source

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ajitpratap0/csvmachine/pkg/compression"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
)

// Source is a UTF-8 byte stream ready for the mapper.
type Source struct {
	io.Reader
	// Name labels the source in logs and metrics.
	Name string
	// Algorithm is the decompression applied to the raw stream.
	Algorithm compression.Algorithm

	closers []io.Closer
}

// Open opens the file at path. With CompressionAuto the algorithm is taken
// from the file extension.
func Open(path string, cfg *config.Configuration) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV file").
			WithDetail("path", path)
	}
	alg := algorithm(cfg.Compression, path)
	s, err := wrap(f, alg, cfg)
	if err != nil {
		f.Close()
		return nil, describe(err, path)
	}
	s.Name = filepath.Base(path)
	s.closers = append([]io.Closer{f}, s.closers...)
	return s, nil
}

// NewReader wraps r. There is no file name to detect compression from, so
// CompressionAuto reads r as is.
func NewReader(r io.Reader, cfg *config.Configuration) (*Source, error) {
	s, err := wrap(r, algorithm(cfg.Compression, ""), cfg)
	if err != nil {
		return nil, err
	}
	s.Name = "stream"
	return s, nil
}

// Close releases decoders and closes the file opened by Open. Readers
// passed to NewReader are left open.
func (s *Source) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, s.closers[i].Close())
	}
	s.closers = nil
	return err
}

func wrap(r io.Reader, alg compression.Algorithm, cfg *config.Configuration) (*Source, error) {
	enc, err := cfg.TextEncoding()
	if err != nil {
		return nil, err
	}
	dec, err := compression.NewReader(alg, r)
	if err != nil {
		return nil, err
	}
	s := &Source{Reader: dec, Algorithm: alg, closers: []io.Closer{dec}}
	if enc != unicode.UTF8 {
		s.Reader = transform.NewReader(dec, enc.NewDecoder())
	}
	return s, nil
}

func algorithm(c config.Compression, path string) compression.Algorithm {
	switch c {
	case "", config.CompressionAuto:
		if path == "" {
			return compression.None
		}
		return compression.Detect(path)
	default:
		return compression.Algorithm(c)
	}
}

func describe(err error, path string) error {
	var e *errors.Error
	if errors.As(err, &e) {
		return e.WithDetail("path", path)
	}
	return errors.Wrap(err, errors.ErrorTypeFile, "failed to open CSV file").WithDetail("path", path)
}
