package workflow

import (
	"io"
	"unicode/utf8"

	"github.com/ajitpratap0/csvmachine/pkg/errors"
	"github.com/ajitpratap0/csvmachine/pkg/pool"
)

// runeReader decodes a UTF-8 byte stream into rune buffers. A sequence
// split across two reads is carried over to the next buffer.
type runeReader struct {
	r     io.Reader
	buf   []byte
	tail  int
	runes []rune
	eof   bool
	bytes int64
}

func newRuneReader(r io.Reader, size int) *runeReader {
	if size < utf8.UTFMax {
		size = utf8.UTFMax
	}
	return &runeReader{
		r:     r,
		buf:   pool.GlobalBufferPool.Get(size)[:size],
		runes: make([]rune, 0, size),
	}
}

// next returns the next decoded buffer, valid until the following call.
// It returns io.EOF once the stream is exhausted.
func (rr *runeReader) next() ([]rune, error) {
	for !rr.eof {
		n, err := rr.r.Read(rr.buf[rr.tail:])
		rr.bytes += int64(n)
		final := false
		switch {
		case err == io.EOF:
			rr.eof = true
			final = true
		case err != nil:
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to read CSV input").
				WithDetail("offset", rr.bytes)
		}
		data := rr.buf[:rr.tail+n]
		if len(data) == 0 {
			continue
		}
		rr.runes = rr.runes[:0]
		i := 0
		for i < len(data) {
			if c := data[i]; c < utf8.RuneSelf {
				rr.runes = append(rr.runes, rune(c))
				i++
				continue
			}
			if !final && !utf8.FullRune(data[i:]) {
				break
			}
			r, size := utf8.DecodeRune(data[i:])
			rr.runes = append(rr.runes, r)
			i += size
		}
		rr.tail = copy(rr.buf, data[i:])
		if len(rr.runes) > 0 {
			return rr.runes, nil
		}
	}
	return nil, io.EOF
}

// release hands the byte buffer back to the pool.
func (rr *runeReader) release() {
	if rr.buf != nil {
		pool.GlobalBufferPool.Put(rr.buf)
		rr.buf = nil
	}
}
