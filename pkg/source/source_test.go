package source

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/ajitpratap0/csvmachine/pkg/compression"
	"github.com/ajitpratap0/csvmachine/pkg/config"
	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/testutil"
)

const sample = "name,city\nJosé,Zürich\n"

func compress(t *testing.T, alg compression.Algorithm, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := compression.NewWriter(alg, &buf, compression.Default)
	require.NoError(t, err)
	_, err = w.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func readAll(t *testing.T, s *Source) string {
	t.Helper()
	got, err := io.ReadAll(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	return string(got)
}

func TestOpenDetectsCompression(t *testing.T) {
	files := map[string]compression.Algorithm{
		"plain.csv":    compression.None,
		"data.csv.gz":  compression.Gzip,
		"data.csv.zst": compression.Zstd,
		"data.csv.lz4": compression.LZ4,
		"data.csv.sz":  compression.Snappy,
		"data.csv.s2":  compression.S2,
	}
	for name, alg := range files {
		path := testutil.WriteFile(t, name, compress(t, alg, []byte(sample)))

		s, err := Open(path, config.NewConfiguration())
		require.NoError(t, err, name)
		assert.Equal(t, alg, s.Algorithm, name)
		assert.Equal(t, name, s.Name)
		assert.Equal(t, sample, readAll(t, s), name)
	}
}

func TestOpenExplicitCompression(t *testing.T) {
	path := testutil.WriteFile(t, "data.bin", compress(t, compression.Zstd, []byte(sample)))
	cfg := config.NewConfiguration()
	cfg.Compression = config.CompressionZstd

	s, err := Open(path, cfg)
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, s))
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/does/not/exist.csv", config.NewConfiguration())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))

	var typed *errors.Error
	require.True(t, errors.As(err, &typed))
	path, _ := typed.Detail("path")
	assert.Equal(t, "/does/not/exist.csv", path)
}

func TestOpenCorruptGzip(t *testing.T) {
	path := testutil.WriteFile(t, "broken.csv.gz", []byte(sample))
	_, err := Open(path, config.NewConfiguration())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeFile))
}

func TestNewReaderTranscodes(t *testing.T) {
	latin1, err := charmap.ISO8859_1.NewEncoder().String(sample)
	require.NoError(t, err)

	cfg := config.NewConfiguration()
	cfg.Encoding = "iso-8859-1"
	s, err := NewReader(strings.NewReader(latin1), cfg)
	require.NoError(t, err)
	assert.Equal(t, "stream", s.Name)
	assert.Equal(t, sample, readAll(t, s))
}

func TestNewReaderAutoIsPlain(t *testing.T) {
	s, err := NewReader(strings.NewReader(sample), config.NewConfiguration())
	require.NoError(t, err)
	assert.Equal(t, compression.None, s.Algorithm)
	assert.Equal(t, sample, readAll(t, s))
}

func TestNewReaderUnknownEncoding(t *testing.T) {
	cfg := config.NewConfiguration()
	cfg.Encoding = "klingon"
	_, err := NewReader(strings.NewReader(sample), cfg)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
