// Package utils provides small file, path and hashing helpers shared across the module.
package utils

import (
	"bytes"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// LogInterceptor is an io.Writer that prefixes every line passing
// through it with a monotonic sequence number and a wall-clock stamp
// before handing it to the target. Partial writes are buffered until
// their newline arrives, so interleaved writers can't shear a line.
type LogInterceptor struct {
	target io.Writer
	seq    atomic.Uint64
	buf    bytes.Buffer
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target}
}

func (l *LogInterceptor) Write(p []byte) (int, error) {
	l.buf.Write(p)
	for {
		data := l.buf.Bytes()
		nl := bytes.IndexByte(data, '\n')
		if nl < 0 {
			return len(p), nil
		}
		line := append([]byte(nil), data[:nl]...)
		l.buf.Next(nl + 1)
		if err := l.emit(line); err != nil {
			return len(p), err
		}
	}
}

// Close flushes a trailing line that never received its newline.
func (l *LogInterceptor) Close() error {
	if l.buf.Len() == 0 {
		return nil
	}
	line := append([]byte(nil), l.buf.Bytes()...)
	l.buf.Reset()
	return l.emit(line)
}

func (l *LogInterceptor) emit(line []byte) error {
	line = bytes.TrimSuffix(line, []byte("\r"))
	prefix := fmt.Sprintf("line=%d time=%s ", l.seq.Add(1), time.Now().Format(time.RFC3339))
	if _, err := io.WriteString(l.target, prefix); err != nil {
		return err
	}
	if _, err := l.target.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}
