// Package json writes records as JSON lines with goccy/go-json and pooled
// buffers.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is gojson.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// LinesWriter writes one JSON object per line. Every object has the same
// keys, in the order given to NewLinesWriter.
type LinesWriter struct {
	w    io.Writer
	keys [][]byte
	rows int
}

// NewLinesWriter encodes keys once and returns a writer for rows with
// those keys.
func NewLinesWriter(w io.Writer, keys []string) (*LinesWriter, error) {
	encoded := make([][]byte, len(keys))
	for i, k := range keys {
		b, err := gojson.Marshal(k)
		if err != nil {
			return nil, err
		}
		encoded[i] = b
	}
	return &LinesWriter{w: w, keys: encoded}, nil
}

// Write writes values as one object. values[i] belongs to key i; missing
// trailing values are written as null.
func (l *LinesWriter) Write(values []interface{}) error {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('{')
	for i, key := range l.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(key)
		buf.WriteByte(':')

		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		b, err := gojson.MarshalWithOption(v, gojson.DisableHTMLEscape())
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	buf.WriteString("}\n")

	if _, err := l.w.Write(buf.Bytes()); err != nil {
		return err
	}
	l.rows++
	return nil
}

// Rows returns the number of objects written.
func (l *LinesWriter) Rows() int {
	return l.rows
}
