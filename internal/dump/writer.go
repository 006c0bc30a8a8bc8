package dump

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const (
	indentUnit      = "    "
	recursionMarker = "{...recursion...}"
)

var plainScalar = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// Writer renders values to a sink. A Writer may be reused for several values;
// each call to Write has its own root.
type Writer struct {
	out  *bufio.Writer
	root Value
}

// NewWriter returns a Writer emitting to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// Write renders v and flushes the sink.
func (w *Writer) Write(v Value) error {
	w.root = v
	defer func() { w.root = nil }()

	switch t := v.(type) {
	case *Mapping:
		w.mapping(t, 0)
	case *Sequence:
		w.sequence(t, 0)
	default:
		w.inline(v)
		w.out.WriteByte('\n')
	}
	return w.out.Flush()
}

// Write renders v to sink.
func Write(sink io.Writer, v Value) error {
	return NewWriter(sink).Write(v)
}

// String renders v and returns the text.
func String(v Value) string {
	var buf bytes.Buffer
	_ = Write(&buf, v)
	return buf.String()
}

// QuoteScalar returns s unquoted when it is plain, otherwise as an escaped
// double-quoted literal. The empty string is never plain.
func QuoteScalar(s string) string {
	if plainScalar.MatchString(s) {
		return s
	}
	return strconv.Quote(s)
}

func (w *Writer) mapping(m *Mapping, depth int) {
	prefix := strings.Repeat(indentUnit, depth)
	for _, e := range m.entries {
		w.out.WriteString(prefix)
		w.out.WriteString(QuoteScalar(e.Key))
		w.out.WriteByte(':')
		w.child(e.Value, depth)
	}
}

func (w *Writer) sequence(s *Sequence, depth int) {
	prefix := strings.Repeat(indentUnit, depth)
	for _, item := range s.items {
		w.out.WriteString(prefix)
		w.out.WriteByte('-')
		w.child(item, depth)
	}
}

// child finishes the line opened by a key or list marker at depth.
func (w *Writer) child(v Value, depth int) {
	if w.isRoot(v) {
		w.out.WriteByte(' ')
		w.out.WriteString(recursionMarker)
		w.out.WriteByte('\n')
		return
	}

	switch t := v.(type) {
	case *Mapping:
		w.out.WriteByte('\n')
		w.mapping(t, depth+1)
	case *Sequence:
		w.out.WriteByte('\n')
		w.sequence(t, depth+1)
	default:
		w.out.WriteByte(' ')
		w.inline(v)
		w.out.WriteByte('\n')
	}
}

func (w *Writer) inline(v Value) {
	switch t := v.(type) {
	case Scalar:
		w.out.WriteString(QuoteScalar(string(t)))
	case Opaque:
		w.out.WriteString(t.Text)
	case nil:
		w.out.WriteString(`""`)
	}
}

// isRoot compares composite identity against the root of the current call.
func (w *Writer) isRoot(v Value) bool {
	switch t := v.(type) {
	case *Mapping:
		r, ok := w.root.(*Mapping)
		return ok && r == t
	case *Sequence:
		r, ok := w.root.(*Sequence)
		return ok && r == t
	}
	return false
}
