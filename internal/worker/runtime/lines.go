package runtime

import (
	"bytes"
	"strings"
)

// lineWriter splits a byte stream into lines and forwards each one to a Sink.
// It also keeps the last few lines for error reporting.
type lineWriter struct {
	out  Sink
	buf  bytes.Buffer
	tail []string
}

const tailLines = 5

func newLineWriter(out Sink) *lineWriter {
	if out == nil {
		out = Discard
	}
	return &lineWriter{out: out}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			return len(p), nil
		}
		w.emit(line)
	}
}

// Flush forwards any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	w.out.Send(line)
	w.tail = append(w.tail, line)
	if len(w.tail) > tailLines {
		w.tail = w.tail[1:]
	}
}

func (w *lineWriter) Tail() string {
	return strings.Join(w.tail, "\n")
}
